package domain

import "strings"

// OTAKind identifies an over-the-air update lifecycle notification.
type OTAKind int

const (
	OTAInvalid OTAKind = iota
	OTAInit
	OTAPendingReboot
	OTAConfirmReboot
	OTAFailed
	OTASuccess
)

// String returns the wire name of the kind.
func (k OTAKind) String() string {
	switch k {
	case OTAInit:
		return "init"
	case OTAPendingReboot:
		return "pending_reboot"
	case OTAConfirmReboot:
		return "confirm_reboot"
	case OTAFailed:
		return "failed"
	case OTASuccess:
		return "success"
	default:
		return "invalid"
	}
}

// ParseOTAKind maps a wire name to its kind. Unknown names map to OTAInvalid.
func ParseOTAKind(s string) OTAKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "init":
		return OTAInit
	case "pending_reboot":
		return OTAPendingReboot
	case "confirm_reboot":
		return OTAConfirmReboot
	case "failed":
		return OTAFailed
	case "success":
		return OTASuccess
	default:
		return OTAInvalid
	}
}

// OTAEvent is a transient OTA notification carried on the OTA channel.
type OTAEvent struct {
	Kind OTAKind

	// ID correlates a confirmation with the request it answers.
	ID string
}
