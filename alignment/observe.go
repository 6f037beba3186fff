package alignment

import "time"

// Logger is the structured logging surface used by the engine.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Observer receives alignment events, typically to feed metrics.
type Observer interface {
	RunCompleted(summary Summary, elapsed time.Duration)
	MatchAccepted(method MatchMethod, action ActionType, needsReview bool)
	TermUnmatched(category TermCategory)
	SemanticFallback()
	BackendDegraded(backend string)
}

type nopObserver struct{}

func (nopObserver) RunCompleted(Summary, time.Duration)         {}
func (nopObserver) MatchAccepted(MatchMethod, ActionType, bool) {}
func (nopObserver) TermUnmatched(TermCategory)                  {}
func (nopObserver) SemanticFallback()                           {}
func (nopObserver) BackendDegraded(string)                      {}
