package mqtt

import (
	"fmt"
	"strings"

	"github.com/bft-labs/edgemetrics/internal/ports"
)

// Well-known management interfaces.
const (
	OTAEventInterface     = "io.edgehog.devicemanager.OTAEvent"
	SystemStatusInterface = "io.edgehog.devicemanager.SystemStatus"
	SystemStatusEndpoint  = "/systemStatus"
)

// Topics builds the topics of one device.
type Topics struct {
	Realm    string
	DeviceID string
}

// Base returns <realm>/<device_id>, the introspection topic.
func (t Topics) Base() string {
	return fmt.Sprintf("%s/%s", t.Realm, t.DeviceID)
}

// Datapoint returns the topic of an individually-addressed datapoint.
//
// Example: demo/dev-1/com.example.poc.CpuTemp/temp
func (t Topics) Datapoint(iface, endpoint string) string {
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return t.Base() + "/" + iface + endpoint
}

// OTARequest returns the topic on which OTA lifecycle requests are received.
func (t Topics) OTARequest() string {
	return t.Datapoint(OTAEventInterface, "/request")
}

// OTAConfirm returns the topic on which reboot confirmations are sent.
func (t Topics) OTAConfirm() string {
	return t.Datapoint(OTAEventInterface, "/confirm")
}

// SystemStatus returns the topic of the periodic system status.
func (t Topics) SystemStatus() string {
	return t.Datapoint(SystemStatusInterface, SystemStatusEndpoint)
}

// Introspection renders the introspection string name:major:minor;... for ifaces.
func Introspection(ifaces []ports.Interface) string {
	parts := make([]string, 0, len(ifaces))
	for _, i := range ifaces {
		parts = append(parts, fmt.Sprintf("%s:%d:%d", i.Name, i.MajorVersion, i.MinorVersion))
	}
	return strings.Join(parts, ";")
}
