// Package mqtt is the broker-client collaborator of the MQTT manager.
//
// It wraps paho.mqtt.golang behind a small lifecycle API modelled on the
// embedded MQTT stacks the manager was designed around:
//
//	New (init) -> Start -> Stop -> Destroy
//
// A Client is built for one connection and destroyed afterwards; the manager
// creates a fresh Client for every connect order. All notifications flow
// through a single EventHandler:
//   - EventConnected / EventDisconnected for the connection itself
//   - EventError with a classified ErrorType and code for failed attempts
//   - EventSubscribed, EventUnsubscribed, EventPublished, EventData
//
// # Security Considerations
//
//   - mqtts://, ssl://, tls:// and wss:// URIs use TLS 1.2 or later
//   - Certificate verification can be disabled for LAN brokers with
//     self-signed certificates; this is opt-in via configuration
//   - Passwords are passed to paho only and never logged here
//
// # Usage
//
//	client, err := mqtt.New(mqtt.ClientConfig{
//	    URI:      "mqtt://broker.local:1883",
//	    ClientID: "device-001",
//	}, mqtt.EventHandlerFunc(func(ev mqtt.Event) {
//	    log.Printf("mqtt event: %s", ev.Kind)
//	}))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Destroy()
//
//	if err := client.Start(); err != nil {
//	    log.Fatal(err)
//	}
package mqtt
