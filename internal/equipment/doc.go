// Package equipment provides the equipment catalogue and the field-bus
// gateway for the poucon core.
//
// Equipment is every controllable or readable unit in the poultry house:
// exhaust fans, water pumps, sirens, feeders, egg and dung belts, and
// environment sensors. The catalogue stores identity and addressing only.
// Live status is always read from the field bus so the safety engines
// never act on stale cached values.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────────┐
//	│                         Equipment Package                            │
//	│                                                                      │
//	│  ┌──────────────────┐   ┌──────────────────┐   ┌──────────────────┐  │
//	│  │     Registry     │   │    Repository    │   │     Gateway      │  │
//	│  │   (registry.go)  │──▶│  (repository.go) │   │   (gateway.go)   │  │
//	│  │                  │   │                  │   │                  │  │
//	│  │ • CRUD ops       │   │ • SQLite queries │   │ • GetStatus      │  │
//	│  │ • Name index     │   │ • equipment table│   │ • TurnOn/TurnOff │  │
//	│  │ • In-memory cache│   │                  │   │ • req/resp match │  │
//	│  └──────────────────┘   └──────────────────┘   └────────┬─────────┘  │
//	│                                                         │            │
//	└─────────────────────────────────────────────────────────│────────────┘
//	                                                          ▼
//	                                         ┌─────────────────────────────┐
//	                                         │         MQTT broker         │
//	                                         │ poucon/bus/request/{name}   │
//	                                         │ poucon/bus/response/{name}  │
//	                                         │ poucon/bus/command/{name}   │
//	                                         └─────────────────────────────┘
//
// # Key Types
//
//   - Equipment: catalogue entry (name, type, bus address, enabled)
//   - EquipmentType: classification (fan, pump, siren, feeder, belts, sensor)
//   - StatusMap: raw adapter status payload with typed accessors
//   - Gateway: live status reads and switch commands over MQTT
//
// # Usage
//
//	repo := equipment.NewSQLiteRepository(db)
//	registry := equipment.NewRegistry(repo)
//	registry.SetLogger(log)
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	gateway := equipment.NewGateway(mqttClient, topics, 1)
//	gateway.SetLogger(log)
//	if err := gateway.Start(); err != nil {
//	    return err
//	}
//
//	status, err := gateway.GetStatus(ctx, "fan-exhaust-1", 500*time.Millisecond)
//	if errors.Is(err, equipment.ErrUnreachable) {
//	    // fail-safe handling is the caller's job
//	}
//	running, _ := status.Bool("is_running")
//
// # Thread Safety
//
// Registry and Gateway are safe for concurrent use. The gateway keeps a
// pending-request table protected by a mutex; each status read owns a
// buffered reply channel, so the MQTT handler never blocks on a slow
// caller.
package equipment
