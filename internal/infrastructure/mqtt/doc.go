// Package mqtt provides MQTT client connectivity for the Shelly bridge.
//
// This package manages:
//   - Connection to the Gray Logic broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Gray Logic uses MQTT as the internal message bus connecting Core to
// protocol bridges. This bridge publishes device state, click events, and
// health on the flat topic scheme and accepts commands addressed to its
// devices:
//
//	Gray Logic Core ↔ MQTT Broker ↔ Shelly Bridge ↔ Shelly devices
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Accept commands for every device this bridge manages
//	err = client.Subscribe(mqtt.Topics{}.AllDeviceCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish a click event
//	topic := mqtt.Topics{}.DeviceEvent("shelly-hallway-button")
//	client.Publish(topic, payload, 1, false)
package mqtt
