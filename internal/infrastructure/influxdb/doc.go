// Package influxdb records MQTT connection telemetry in InfluxDB.
//
// It wraps the influxdb-client-go v2 batching write API. Two measurements
// are written:
//   - mqtt_transition: one point per processed dispatcher message, tagged
//     with device_id and kind
//   - mqtt_status: one point per status snapshot update
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.SetOnError(func(err error) { log.Warn("telemetry write failed", "error", err) })
//	client.WriteTransition(influxdb.Transition{DeviceID: "device-001", Kind: "broker_connected", Connected: true})
//
// Telemetry is optional. Write methods on a closed client do nothing, so
// callers never need to check connection state before writing.
package influxdb
