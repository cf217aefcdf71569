// Package influxdb records orgbd activity as time series in InfluxDB v2.
//
// Two measurements are written:
//
//	orgb_requests  one point per dispatched frame (device, packet, outcome)
//	orgb_sessions  one point per session open, close or rejection
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteRequest(influxdb.RequestPoint{DeviceIndex: 0, Packet: "update_leds", Outcome: "applied"})
//
// Writes are batched according to batch_size and flush_interval, stamped at
// microsecond precision, and tagged service=orgbd.
package influxdb
