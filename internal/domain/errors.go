package domain

import "errors"

// Domain errors represent error conditions in the edgemetrics domain.
// These errors are returned by the public API and can be checked with errors.Is.
var (
	// ErrSensorNotReady is returned when the required temperature sensor is missing.
	ErrSensorNotReady = errors.New("edgemetrics: sensor not ready")

	// ErrConnectivity is returned when network connectivity cannot be brought up.
	ErrConnectivity = errors.New("edgemetrics: connectivity initialization failed")

	// ErrDeviceCreate is returned when the managed device handle cannot be created.
	ErrDeviceCreate = errors.New("edgemetrics: device creation failed")

	// ErrDeviceStart is returned when the managed device fails to start.
	ErrDeviceStart = errors.New("edgemetrics: device start failed")

	// ErrDevicePoll is returned when a device poll fails.
	ErrDevicePoll = errors.New("edgemetrics: device poll failed")

	// ErrDeviceStop is returned when the managed device fails to stop.
	ErrDeviceStop = errors.New("edgemetrics: device stop failed")

	// ErrNotConnected is returned when publishing without a backend connection.
	ErrNotConnected = errors.New("edgemetrics: not connected")

	// ErrNoDevice is returned when publishing before the device exists or after it is destroyed.
	ErrNoDevice = errors.New("edgemetrics: no device")

	// ErrJoinTimeout is returned when a worker does not exit within its bound.
	ErrJoinTimeout = errors.New("edgemetrics: join timeout")

	// ErrInvalidTransition is returned for a lifecycle transition the state machine forbids.
	ErrInvalidTransition = errors.New("edgemetrics: invalid lifecycle transition")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("edgemetrics: invalid configuration")
)
