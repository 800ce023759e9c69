package core

import "errors"

// Sentinel errors returned by the rule engine. Callers match them with
// errors.Is; the engine always wraps them with the offending value.
var (
	// ErrUnrecognisedTaskType is returned when a definition's applies-to
	// kind is outside the closed set of recognised kinds.
	ErrUnrecognisedTaskType = errors.New("unrecognised task type")

	// ErrInvalidWindow is returned when an event's start offset lies after
	// its end offset.
	ErrInvalidWindow = errors.New("invalid event window")

	// ErrMissingContactKind is returned when a contact carries no
	// recognisable person/place kind.
	ErrMissingContactKind = errors.New("contact kind is required")

	// ErrHookFailed wraps errors raised by content hooks.
	ErrHookFailed = errors.New("modify content hook failed")

	// ErrTargetsUnsupported is returned by the target evaluator until the
	// aggregation contract for targets is confirmed.
	ErrTargetsUnsupported = errors.New("target evaluation is not supported")

	// ErrInvalidRules is returned when a rule project cannot be compiled.
	ErrInvalidRules = errors.New("invalid rules")
)
