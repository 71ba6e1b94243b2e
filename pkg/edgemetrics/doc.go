// Package edgemetrics provides an embeddable device telemetry agent.
//
// The agent samples CPU utilization and die temperature on a fixed period,
// publishes both as individual datapoints through a managed MQTT device while
// the device is connected, and relays OTA lifecycle events, confirming a
// pending reboot back to the backend.
//
// # Basic Usage
//
//	cfg := edgemetrics.DefaultConfig()
//	cfg.DeviceID = "my-device"
//	cfg.Broker = "tcp://broker.local:1883"
//
//	agent, err := edgemetrics.New(cfg, edgemetrics.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Run blocks until cfg.Duration elapses, ctx is done or the device fails.
//	if err := agent.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Optional Subsystems
//
// Configuration toggles are evaluated once in [New]:
//
//   - OTARelay starts the OTA relay once the device is running.
//   - TLS provisions the CA files and keeps them reloaded while running.
//   - A non-empty InfluxURL mirrors every published sample to InfluxDB.
//   - A non-empty MetricsAddr serves Prometheus metrics on /metrics.
//
// # Dependency Injection
//
// For testing, platform collaborators can be replaced:
//
//	agent, err := edgemetrics.New(cfg,
//	    edgemetrics.WithDeviceClient(fakeClient),
//	    edgemetrics.WithConnectivity(fakeLink),
//	    edgemetrics.WithTemperatureSensor(fakeSensor),
//	)
package edgemetrics
