package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementTransition = "mqtt_transition"
	MeasurementStatus     = "mqtt_status"
)

// Transition is one processed dispatcher message.
type Transition struct {
	DeviceID  string
	Kind      string
	Connected bool
	Flags     uint32
	At        time.Time
	Duration  time.Duration
}

// WriteTransition records a processed dispatcher message. The kind is a
// tag so connect/disconnect series can be queried separately.
func (c *Client) WriteTransition(t Transition) {
	if !c.IsConnected() {
		return
	}

	at := t.At
	if at.IsZero() {
		at = time.Now()
	}

	point := write.NewPoint(
		MeasurementTransition,
		map[string]string{
			"device_id": t.DeviceID,
			"kind":      t.Kind,
		},
		map[string]interface{}{
			"connected":   t.Connected,
			"flags":       int64(t.Flags),
			"duration_us": t.Duration.Microseconds(),
		},
		at,
	)
	c.writeAPI.WritePoint(point)
}

// WriteStatus records a status snapshot: the broker URI, the reason code
// and the last error text.
func (c *Client) WriteStatus(deviceID, uri string, reason int, errText string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		MeasurementStatus,
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"uri":    uri,
			"reason": int64(reason),
			"error":  errText,
		},
		time.Now(),
	)
	c.writeAPI.WritePoint(point)
}
