// Package influx mirrors every telemetry sample into an InfluxDB v2 bucket.
//
// Writes are non-blocking and batched by the client library; the sampler is
// never slowed down by the mirror.
package influx

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/bft-labs/edgemetrics/internal/domain"
	"github.com/bft-labs/edgemetrics/internal/ports"
)

// Measurement is the measurement name of mirrored samples.
const Measurement = "edgemetrics_sample"

const (
	defaultPingTimeout   = 5 * time.Second
	defaultBatchSize     = 50
	defaultFlushInterval = 10 * time.Second
)

var (
	// ErrConnectionFailed is returned when the server cannot be reached.
	ErrConnectionFailed = errors.New("influx: connection failed")
)

// Config contains configuration for the mirror.
type Config struct {
	URL           string
	Token         string
	Org           string
	Bucket        string
	BatchSize     uint
	FlushInterval time.Duration
}

// pointWriter is the subset of api.WriteAPI used by the mirror.
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// Mirror implements ports.SampleSink.
type Mirror struct {
	deviceID string
	writer   pointWriter
	close    func()
}

// Connect creates the client, checks the server is healthy and starts the
// asynchronous writer. Write errors are logged.
func Connect(ctx context.Context, config Config, deviceID string, logger ports.Logger) (*Mirror, error) {
	batch := config.BatchSize
	if batch == 0 {
		batch = defaultBatchSize
	}
	flush := config.FlushInterval
	if flush <= 0 {
		flush = defaultFlushInterval
	}

	client := influxdb2.NewClientWithOptions(config.URL, config.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(batch).
			SetFlushInterval(uint(flush.Milliseconds())),
	)

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	writeAPI := client.WriteAPI(config.Org, config.Bucket)
	go func() {
		for err := range writeAPI.Errors() {
			logger.Warn("influx write failed", ports.Err(err))
		}
	}()

	logger.Info("influx mirror connected",
		ports.String("url", config.URL),
		ports.String("bucket", config.Bucket),
	)

	return &Mirror{
		deviceID: deviceID,
		writer:   writeAPI,
		close:    client.Close,
	}, nil
}

// Record queues the sample for writing.
func (m *Mirror) Record(s domain.Sample) {
	m.writer.WritePoint(pointFor(m.deviceID, s))
}

// Close flushes pending points and closes the client.
func (m *Mirror) Close() error {
	m.writer.Flush()
	if m.close != nil {
		m.close()
	}
	return nil
}

func pointFor(deviceID string, s domain.Sample) *write.Point {
	return write.NewPoint(
		Measurement,
		map[string]string{
			"device":    deviceID,
			"interface": s.Interface,
			"endpoint":  s.Endpoint,
			"bootstrap": strconv.FormatBool(s.Bootstrap),
		},
		map[string]interface{}{
			"value": s.Value,
		},
		s.Timestamp,
	)
}

var _ ports.SampleSink = (*Mirror)(nil)
