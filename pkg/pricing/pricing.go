// Package pricing provides token pricing data and cost estimation for
// realtime speech models.
package pricing

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// TokenRates holds the cost per million tokens of each token class, in USD.
type TokenRates struct {
	TextInputPerMillion   float64 `json:"text_input_per_million"`
	TextOutputPerMillion  float64 `json:"text_output_per_million"`
	AudioInputPerMillion  float64 `json:"audio_input_per_million"`
	AudioOutputPerMillion float64 `json:"audio_output_per_million"`
}

// ModelRates binds a model identifier to its token rates.
type ModelRates struct {
	Name        string     `json:"name"`
	DisplayName string     `json:"display_name"`
	Rates       TokenRates `json:"rates"`
}

// Service estimates session cost from token counts.
type Service interface {
	// ModelRates returns the rate card for a model.
	ModelRates(model string) (*ModelRates, error)

	// EstimateCost returns the USD cost of the given token counts for a
	// model. Unknown models estimate to zero with an error.
	EstimateCost(model string, textIn, textOut, audioIn, audioOut int) (float64, error)

	// Models returns the known model identifiers.
	Models() []string
}

type service struct {
	ratesFilePath string

	mu     sync.Mutex
	models map[string]ModelRates
}

// NewService creates a pricing service. When ratesFilePath is empty the
// built-in rate table is used; otherwise rates load lazily from the JSON file
// at that path.
func NewService(ratesFilePath string) Service {
	return &service{ratesFilePath: ratesFilePath}
}

// defaultRates covers the realtime-capable models, per the published price
// list. Rates are USD per million tokens.
var defaultRates = map[string]ModelRates{
	"gpt-4o-realtime-preview": {
		Name:        "gpt-4o-realtime-preview",
		DisplayName: "GPT-4o Realtime",
		Rates: TokenRates{
			TextInputPerMillion:   5,
			TextOutputPerMillion:  20,
			AudioInputPerMillion:  40,
			AudioOutputPerMillion: 80,
		},
	},
	"gpt-4o-mini-realtime-preview": {
		Name:        "gpt-4o-mini-realtime-preview",
		DisplayName: "GPT-4o mini Realtime",
		Rates: TokenRates{
			TextInputPerMillion:   0.6,
			TextOutputPerMillion:  2.4,
			AudioInputPerMillion:  10,
			AudioOutputPerMillion: 20,
		},
	},
}

func (s *service) load() map[string]ModelRates {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.models != nil {
		return s.models
	}

	if s.ratesFilePath == "" {
		s.models = defaultRates
		return s.models
	}

	data, err := os.ReadFile(s.ratesFilePath)
	if err != nil {
		s.models = defaultRates
		return s.models
	}

	var fileRates struct {
		Models map[string]ModelRates `json:"models"`
	}
	if err := json.Unmarshal(data, &fileRates); err != nil || len(fileRates.Models) == 0 {
		s.models = defaultRates
		return s.models
	}

	s.models = fileRates.Models
	return s.models
}

func (s *service) ModelRates(model string) (*ModelRates, error) {
	models := s.load()

	if rates, ok := models[model]; ok {
		return &rates, nil
	}

	return nil, fmt.Errorf("no pricing data for model: %s", model)
}

func (s *service) EstimateCost(model string, textIn, textOut, audioIn, audioOut int) (float64, error) {
	rates, err := s.ModelRates(model)
	if err != nil {
		return 0, err
	}

	perMillion := func(tokens int, rate float64) float64 {
		return float64(tokens) / 1_000_000 * rate
	}

	cost := perMillion(textIn, rates.Rates.TextInputPerMillion) +
		perMillion(textOut, rates.Rates.TextOutputPerMillion) +
		perMillion(audioIn, rates.Rates.AudioInputPerMillion) +
		perMillion(audioOut, rates.Rates.AudioOutputPerMillion)

	return cost, nil
}

func (s *service) Models() []string {
	models := s.load()

	names := make([]string, 0, len(models))
	for name := range models {
		names = append(names, name)
	}

	return names
}
