// Package mqtt implements the managed telemetry device on top of an MQTT broker
// using paho.mqtt.golang.
//
// A device publishes individually-addressed datapoints to
// <realm>/<device_id>/<interface><endpoint> with a JSON payload
// {"v": <value>, "t": <unix millis>}. On every connection it announces its
// introspection (the interfaces it implements) on <realm>/<device_id>.
//
// OTA lifecycle requests arrive on
// <realm>/<device_id>/io.edgehog.devicemanager.OTAEvent/request and are
// forwarded onto the OTA event channel. Reboot confirmations published on the
// channel are acknowledged on .../io.edgehog.devicemanager.OTAEvent/confirm.
//
// Connection state changes are reported from Poll, on the goroutine that owns
// the device, never from paho's callback goroutines.
package mqtt
