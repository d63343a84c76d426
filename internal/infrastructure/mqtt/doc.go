// Package mqtt connects the DREAMS core to its MQTT broker.
//
// Operators and upstream systems publish control requests to
// dreams/request/{op}; replies go to dreams/response/{request_id}. The core's
// own liveness is a retained message on dreams/system/status, with a Last
// Will so a crash shows up as "offline".
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllRequests(), 1, handle)
//
// Use TLS (mqtt.broker.tls) outside a trusted network; request payloads carry
// site tokens.
package mqtt
