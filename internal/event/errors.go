package event

import "errors"

var (
	// ErrDuplicateEventType is returned when a variant is registered under an
	// event type that is already taken.
	ErrDuplicateEventType = errors.New("event type already registered")

	// ErrMissingEventType is returned when metadata has no event type.
	ErrMissingEventType = errors.New("event type is required")

	// ErrMissingSerialNumber is returned when metadata has no machine serial number.
	ErrMissingSerialNumber = errors.New("machine_serial_number is required")

	// ErrMalformedEvent is returned when a wire event has no usable metadata section.
	ErrMalformedEvent = errors.New("malformed wire event")

	// ErrTemplateNotFound is returned by a Renderer that has no template for
	// the requested event type and part.
	ErrTemplateNotFound = errors.New("notification template not found")
)
