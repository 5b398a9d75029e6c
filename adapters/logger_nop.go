package adapters

import "popfork/ports"

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any)       {}
func (NopLogger) Info(string, ...any)        {}
func (NopLogger) Warn(string, ...any)        {}
func (NopLogger) Error(string, ...any)       {}
func (n NopLogger) With(...any) ports.Logger { return n }

func ensureLogger(l ports.Logger) ports.Logger {
	if l == nil {
		return NopLogger{}
	}
	return l
}
