package cliconfig

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
)

func writeDeviceFile(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, DefaultDeviceFileName), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestLoadDeviceInfo(t *testing.T) {
	tests := []struct {
		name       string
		file       string
		initial    Config
		wantID     string
		wantSecret string
		wantErr    bool
	}{
		{
			name:       "reads id and secret",
			file:       `{"device_id":"dev-1","credential_secret":"s3cret"}`,
			wantID:     "dev-1",
			wantSecret: "s3cret",
		},
		{
			name:       "keeps configured values",
			file:       `{"device_id":"dev-1","credential_secret":"s3cret"}`,
			initial:    Config{DeviceID: "flag-dev", CredentialSecret: "flag-secret"},
			wantID:     "flag-dev",
			wantSecret: "flag-secret",
		},
		{
			name:       "fills only the missing secret",
			file:       `{"device_id":"dev-1","credential_secret":"s3cret"}`,
			initial:    Config{DeviceID: "flag-dev"},
			wantID:     "flag-dev",
			wantSecret: "s3cret",
		},
		{
			name:       "derives id from hardware id",
			file:       `{"hardware_id":"board-0042","credential_secret":"s3cret"}`,
			wantID:     DeriveDeviceID("board-0042"),
			wantSecret: "s3cret",
		},
		{
			name:    "no identity in file",
			file:    `{"credential_secret":"s3cret"}`,
			wantErr: true,
		},
		{
			name:    "malformed file",
			file:    `{"device_id":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeDeviceFile(t, dir, tt.file)

			cfg := tt.initial
			cfg.DeviceHome = dir
			err := LoadDeviceInfo(&cfg)

			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadDeviceInfo() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if cfg.DeviceID != tt.wantID {
				t.Errorf("DeviceID = %v, want %v", cfg.DeviceID, tt.wantID)
			}
			if cfg.CredentialSecret != tt.wantSecret {
				t.Errorf("CredentialSecret = %v, want %v", cfg.CredentialSecret, tt.wantSecret)
			}
		})
	}
}

func TestLoadDeviceInfo_NoDeviceHome(t *testing.T) {
	cfg := Config{}
	if err := LoadDeviceInfo(&cfg); err == nil {
		t.Error("LoadDeviceInfo() expected error without device id or device home")
	}

	cfg = Config{DeviceID: "dev-1"}
	if err := LoadDeviceInfo(&cfg); err != nil {
		t.Errorf("LoadDeviceInfo() error = %v, want nil when device id is set", err)
	}
}

func TestLoadDeviceInfo_MissingFile(t *testing.T) {
	cfg := Config{DeviceHome: t.TempDir()}
	if err := LoadDeviceInfo(&cfg); err == nil {
		t.Error("LoadDeviceInfo() expected error for missing device file")
	}
}

func TestDeriveDeviceID(t *testing.T) {
	a := DeriveDeviceID("board-0042")
	b := DeriveDeviceID("board-0042")
	c := DeriveDeviceID("board-0043")

	if a != b {
		t.Errorf("DeriveDeviceID not stable: %v != %v", a, b)
	}
	if a == c {
		t.Errorf("DeriveDeviceID(%q) == DeriveDeviceID(%q)", "board-0042", "board-0043")
	}

	raw, err := base64.RawURLEncoding.DecodeString(a)
	if err != nil {
		t.Fatalf("DeriveDeviceID() = %v is not URL-safe base64: %v", a, err)
	}
	if len(raw) != 16 {
		t.Errorf("decoded length = %d, want 16", len(raw))
	}
}
