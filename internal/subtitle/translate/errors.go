package translate

import (
	"errors"
	"fmt"
	"syscall"
)

// ErrorKind classifies engine failures
type ErrorKind string

const (
	KindMissingCredential   ErrorKind = "missing_credential"
	KindUnsupportedLanguage ErrorKind = "unsupported_language"
	KindProvider            ErrorKind = "provider_error"
	KindConnectionRefused   ErrorKind = "connection_refused"
)

// EngineError is returned by the gateway for every failed call.
type EngineError struct {
	Kind    ErrorKind
	Engine  string
	Message string
	Err     error
}

func (e *EngineError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("%s: %s: %s", e.Engine, e.Kind, msg)
}

func (e *EngineError) Unwrap() error { return e.Err }

// Permanent reports whether repeating the same call cannot succeed.
func (e *EngineError) Permanent() bool {
	return e.Kind == KindMissingCredential || e.Kind == KindUnsupportedLanguage
}

// IsPermanent reports whether err is an EngineError that retrying will not fix.
func IsPermanent(err error) bool {
	var ee *EngineError
	return errors.As(err, &ee) && ee.Permanent()
}

func missingCredential(engine string) *EngineError {
	return &EngineError{Kind: KindMissingCredential, Engine: engine, Message: "engine is not configured"}
}

func unsupportedLanguage(engine, lang string) *EngineError {
	return &EngineError{Kind: KindUnsupportedLanguage, Engine: engine, Message: fmt.Sprintf("language %q is not supported", lang)}
}

// classify turns an adapter error into an EngineError.
func classify(engine string, err error) *EngineError {
	var ee *EngineError
	if errors.As(err, &ee) {
		if ee.Engine == "" {
			ee.Engine = engine
		}
		return ee
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return &EngineError{Kind: KindConnectionRefused, Engine: engine, Message: "connection refused", Err: err}
	}
	return &EngineError{Kind: KindProvider, Engine: engine, Err: err}
}
