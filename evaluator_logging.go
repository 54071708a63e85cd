package strata

import "time"

// EvaluatorLogEvent describes one matcher expression run against a URL.
type EvaluatorLogEvent struct {
	Engine   string
	Expr     string
	Label    string
	URL      string
	Matched  bool
	Duration time.Duration
	Err      error
}

// EvaluatorLogger records evaluator events.
type EvaluatorLogger interface {
	LogEvaluation(EvaluatorLogEvent)
}

// EvaluatorLoggerFunc adapts a function to EvaluatorLogger.
type EvaluatorLoggerFunc func(EvaluatorLogEvent)

// LogEvaluation implements EvaluatorLogger.
func (f EvaluatorLoggerFunc) LogEvaluation(event EvaluatorLogEvent) {
	if f != nil {
		f(event)
	}
}

type noopEvaluatorLogger struct{}

func (noopEvaluatorLogger) LogEvaluation(EvaluatorLogEvent) {}

// EvaluatorLoggerFrom bridges evaluator events onto a Logger. Successful
// evaluations log at debug level and failures at warn level.
func EvaluatorLoggerFrom(logger Logger) EvaluatorLogger {
	if logger == nil {
		return noopEvaluatorLogger{}
	}
	return EvaluatorLoggerFunc(func(event EvaluatorLogEvent) {
		kv := []any{
			"engine", event.Engine,
			"rule", event.Label,
			"url", event.URL,
			"matched", event.Matched,
			"duration", event.Duration,
		}
		if event.Err != nil {
			logger.Warn("matcher expression failed", append(kv, "expr", event.Expr, "error", event.Err)...)
			return
		}
		logger.Debug("matcher expression evaluated", kv...)
	})
}
