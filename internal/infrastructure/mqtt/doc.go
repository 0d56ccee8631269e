// Package mqtt provides MQTT client connectivity for the poucon core.
//
// This package manages:
//   - Connection to the Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// poucon uses MQTT as the message bus between the core and the
// field-bus adapter that drives the relay boards and sensor heads in
// each house. The broker decouples the safety logic from the wiring.
//
//	poucon core ↔ MQTT Broker ↔ field-bus adapter ↔ relays/sensors
//
// Status reads are request/response: the core publishes a
// RequestMessage on {prefix}/bus/request/{name} and the adapter
// answers on {prefix}/bus/response/{name}, correlated by request id.
// Switch commands are one-way CommandMessages on
// {prefix}/bus/command/{name}.
//
// # Security Considerations
//
//   - TLS is required for off-site brokers (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topics := mqtt.Topics{Prefix: cfg.MQTT.TopicPrefix}
//
//	// Watch every status response from the adapter
//	err = client.Subscribe(topics.AllBusResponses(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Switch a siren on
//	cmd := mqtt.NewCommandMessage("siren-house-3", mqtt.CommandTurnOn, "alarm")
//	payload, _ := json.Marshal(&cmd)
//	client.Publish(topics.BusCommand("siren-house-3"), payload, 1, false)
package mqtt
