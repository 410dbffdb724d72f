// Package mqtt provides the bridge's MQTT transport.
//
// It wraps paho.mqtt.golang and adds:
//   - a last-will message registered at connect time
//   - subscriptions tracked and restored after every reconnect
//   - connect/disconnect callbacks installed before the first attempt
//   - panic recovery around message handlers
//   - topic helpers (join, validate, wildcard match)
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.Options{
//	    Will:      &mqtt.Will{Topic: "ac/LWT", Payload: "offline", QoS: 1, Retained: true},
//	    OnConnect: func() { ... },
//	})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe("ac/+/+/set", 0, func(topic string, payload []byte) error {
//	    return nil
//	})
//
// Credentials are sent only when both user and password are configured.
// Use TLS when the broker is not on the local host.
package mqtt
