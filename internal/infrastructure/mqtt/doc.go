// Package mqtt provides MQTT client connectivity for the iT600 bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Caller-supplied Last Will and Testament registration
//   - Connection health monitoring
//
// # Architecture
//
// The bridge publishes device state, command acknowledgements, and health
// onto the broker and consumes commands from it. This package is transport
// only: topic layout and payload formats belong to the bridge package.
//
//	iT600 bridge ↔ MQTT Broker ↔ Home automation core
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
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.WithWill(mqtt.Will{
//	    Topic:    "graylogic/health/it600",
//	    Payload:  lwtPayload,
//	    QoS:      1,
//	    Retained: true,
//	}))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe("graylogic/command/it600/+", 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
package mqtt
