// Package mqtt provides MQTT client connectivity for the vmgrid mirror.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// vmgrid publishes mirror changes onto MQTT so dashboards, tray widgets
// and other consumers can follow domain, device and label state without
// talking to the admin daemon themselves:
//
//	admin daemon -> vmgrid mirror -> MQTT broker -> consumers
//
// State topics are retained, so a consumer connecting late immediately
// sees the current state of every entity.
//
// # Security Considerations
//
//   - TLS is required for non-local deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Follow every domain state update
//	err = client.Subscribe(mqtt.Topics{}.AllDomainStates(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
package mqtt
