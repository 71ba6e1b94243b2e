package cliconfig

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

// DefaultDeviceFileName is the identity file looked up under the device home.
const DefaultDeviceFileName = "device.json"

// deviceNamespace seeds device IDs derived from a hardware ID.
var deviceNamespace = uuid.MustParse("b3a1a7a2-5d2e-4c8b-9f0e-6a8c2d1e4f70")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type deviceFile struct {
	DeviceID         string `json:"device_id"`
	HardwareID       string `json:"hardware_id"`
	CredentialSecret string `json:"credential_secret"`
}

// LoadDeviceInfo fills DeviceID and CredentialSecret from <device-home>/device.json
// when they are not already set. A device file without device_id but with a
// hardware_id gets a device ID derived from it.
func LoadDeviceInfo(cfg *Config) error {
	if cfg.DeviceID != "" && cfg.CredentialSecret != "" {
		return nil
	}
	if cfg.DeviceHome == "" {
		if cfg.DeviceID == "" {
			return fmt.Errorf("device-id is required (or device-home)")
		}
		return nil
	}

	df, err := readDeviceFile(filepath.Join(cfg.DeviceHome, DefaultDeviceFileName))
	if err != nil {
		return fmt.Errorf("read device info: %w", err)
	}

	if cfg.DeviceID == "" {
		switch {
		case df.DeviceID != "":
			cfg.DeviceID = df.DeviceID
		case df.HardwareID != "":
			cfg.DeviceID = DeriveDeviceID(df.HardwareID)
		default:
			return fmt.Errorf("device-id is required: %s has neither device_id nor hardware_id", DefaultDeviceFileName)
		}
	}
	if cfg.CredentialSecret == "" {
		cfg.CredentialSecret = df.CredentialSecret
	}
	return nil
}

// DeriveDeviceID returns the URL-safe base64 encoding of a name-based UUID of hardwareID.
func DeriveDeviceID(hardwareID string) string {
	id := uuid.NewSHA1(deviceNamespace, []byte(hardwareID))
	return base64.RawURLEncoding.EncodeToString(id[:])
}

func readDeviceFile(path string) (deviceFile, error) {
	var df deviceFile
	b, err := os.ReadFile(path)
	if err != nil {
		return df, err
	}
	if err := json.Unmarshal(b, &df); err != nil {
		return df, err
	}
	return df, nil
}
