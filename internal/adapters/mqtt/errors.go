package mqtt

import "errors"

// Errors returned by the MQTT device.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotStarted is returned when operating on a device that is not started,
	// or that was stopped or destroyed.
	ErrNotStarted = errors.New("mqtt: device not started")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("mqtt: device already started")

	// ErrConnectionFailed is returned when the initial connection attempt fails.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnknownInterface is returned when publishing on an interface the device
	// did not declare.
	ErrUnknownInterface = errors.New("mqtt: interface not in device introspection")
)
