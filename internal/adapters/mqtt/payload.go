package mqtt

import (
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/bft-labs/edgemetrics/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// datapoint is the wire form of an individual datapoint.
type datapoint struct {
	Value     interface{} `json:"v"`
	Timestamp int64       `json:"t"`
}

func encodeDatapoint(value interface{}, ts time.Time) ([]byte, error) {
	return json.Marshal(datapoint{Value: value, Timestamp: ts.UnixMilli()})
}

// systemStatus is the value of a SystemStatus datapoint.
type systemStatus struct {
	Goroutines   int   `json:"goroutines"`
	UptimeMillis int64 `json:"uptimeMillis"`
}

// otaMessage is the wire form of an OTA request or confirmation.
type otaMessage struct {
	Event string `json:"event"`
	ID    string `json:"id"`
}

func decodeOTAMessage(payload []byte) (domain.OTAEvent, error) {
	var m otaMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return domain.OTAEvent{}, fmt.Errorf("decode OTA message: %w", err)
	}
	return domain.OTAEvent{Kind: domain.ParseOTAKind(m.Event), ID: strings.TrimSpace(m.ID)}, nil
}

func encodeOTAMessage(ev domain.OTAEvent, ts time.Time) ([]byte, error) {
	return encodeDatapoint(otaMessage{Event: ev.Kind.String(), ID: ev.ID}, ts)
}
