// Package mqtt publishes orgbd lighting state and session activity to an
// MQTT broker.
//
// # Topics
//
// All topics live under a configurable prefix (default "orgb"):
//
//	{prefix}/state/{index}     retained JSON snapshot of a controller's colours
//	{prefix}/session/{id}      session opened/closed events
//	{prefix}/system/status     retained online/offline status, also the LWT
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(client.Topics().DeviceState(0), state, true)
//
// Auto-reconnect is handled by paho; the online status is re-published on
// every reconnect.
package mqtt
