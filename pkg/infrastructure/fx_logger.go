// Package infrastructure provides reusable infrastructure components for Go applications.
package infrastructure

import (
	"strings"

	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// FxLoggerAdapter adapts a zap.Logger to the fxevent.Logger interface so the
// dependency injection framework logs through the application logger.
type FxLoggerAdapter struct {
	logger *zap.Logger
}

// NewFxLoggerAdapter creates a new Fx logger adapter backed by the given logger.
func NewFxLoggerAdapter(logger *zap.Logger) fxevent.Logger {
	return &FxLoggerAdapter{logger: logger}
}

// LogEvent implements fxevent.Logger.
func (a *FxLoggerAdapter) LogEvent(event fxevent.Event) {
	switch e := event.(type) {
	case *fxevent.OnStartExecuting:
		a.logger.Debug("OnStart hook executing",
			zap.String("caller", e.CallerName),
			zap.String("function", e.FunctionName))
	case *fxevent.OnStartExecuted:
		a.logHookResult("OnStart", e.CallerName, e.FunctionName, e.Err, e.Runtime.String())
	case *fxevent.OnStopExecuting:
		a.logger.Debug("OnStop hook executing",
			zap.String("caller", e.CallerName),
			zap.String("function", e.FunctionName))
	case *fxevent.OnStopExecuted:
		a.logHookResult("OnStop", e.CallerName, e.FunctionName, e.Err, e.Runtime.String())
	case *fxevent.Supplied:
		if e.Err != nil {
			a.logger.Error("Supply failed", zap.String("type", e.TypeName), zap.Error(e.Err))
		} else {
			a.logger.Debug("Supplied", zap.String("type", e.TypeName))
		}
	case *fxevent.Provided:
		if e.Err != nil {
			a.logger.Error("Provide failed", zap.Error(e.Err))
		} else {
			a.logger.Debug("Provided", zap.String("types", strings.Join(e.OutputTypeNames, ", ")))
		}
	case *fxevent.Invoking:
		a.logger.Debug("Invoking", zap.String("function", e.FunctionName))
	case *fxevent.Invoked:
		if e.Err != nil {
			a.logger.Error("Invoke failed", zap.String("function", e.FunctionName), zap.Error(e.Err))
		}
	case *fxevent.Stopping:
		a.logger.Info("Stopping", zap.String("signal", strings.ToUpper(e.Signal.String())))
	case *fxevent.Stopped:
		a.logResult("Stopped", e.Err)
	case *fxevent.RollingBack:
		a.logger.Error("Start failed, rolling back", zap.Error(e.StartErr))
	case *fxevent.RolledBack:
		a.logResult("Rolled back", e.Err)
	case *fxevent.Started:
		a.logResult("Started", e.Err)
	case *fxevent.LoggerInitialized:
		if e.Err != nil {
			a.logger.Error("Logger initialization failed", zap.Error(e.Err))
		} else {
			a.logger.Debug("Logger initialized", zap.String("constructor", e.ConstructorName))
		}
	}
}

func (a *FxLoggerAdapter) logHookResult(hook, caller, function string, err error, runtime string) {
	if err != nil {
		a.logger.Error(hook+" hook failed",
			zap.String("caller", caller),
			zap.String("function", function),
			zap.Error(err))
		return
	}
	a.logger.Debug(hook+" hook executed",
		zap.String("caller", caller),
		zap.String("function", function),
		zap.String("runtime", runtime))
}

func (a *FxLoggerAdapter) logResult(action string, err error) {
	if err != nil {
		a.logger.Error(action+" with error", zap.Error(err))
		return
	}
	a.logger.Info(action)
}
