// Package ports defines the interfaces (ports) that connect the application
// layer to infrastructure adapters.
//
// In Clean Architecture / Hexagonal Architecture, ports are the boundaries
// between the application core and the outside world. They define what the
// application needs from external systems without specifying how those needs
// are fulfilled.
//
// # Port Interfaces
//
//   - [DeviceClient], [Device], [Transport]: The telemetry/management client
//   - [ConnectionHandler]: Connection callbacks implemented by the core
//   - [Connectivity]: Network link bring-up and health polling
//   - [CPUStats], [TemperatureSensor], [Clock]: Platform sensors and time
//   - [TimeSync], [TrustProvisioner]: Best-effort startup services
//   - [SampleSink]: Optional local record of every sample
//   - [Logger]: Structured logging abstraction
//
// # Usage
//
// The application layer (internal/app) depends only on these interfaces.
// Infrastructure adapters (internal/adapters) implement these interfaces
// with concrete implementations (MQTT, procfs, NTP, zerolog, etc.).
//
// This separation enables:
//   - Testing the orchestration with fake devices and sensors
//   - Swapping infrastructure without changing lifecycle logic
//   - Clear boundaries and dependency direction
package ports
