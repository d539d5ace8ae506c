package main

import (
	"bytes"

	"github.com/nerrad567/gray-logic-mqttmgr/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-mqttmgr/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-mqttmgr/internal/manager"
)

// snapshotFanout forwards status snapshots to several observers.
type snapshotFanout []manager.SnapshotObserver

func (f snapshotFanout) SnapshotUpdated(doc []byte) {
	for _, o := range f {
		o.SnapshotUpdated(doc)
	}
}

// telemetry writes dispatcher transitions and status snapshots to InfluxDB.
type telemetry struct {
	client   *influxdb.Client
	deviceID string
	logger   *logging.Logger
}

func (t *telemetry) RecordTransition(tr manager.Transition) {
	t.client.WriteTransition(influxdb.Transition{
		DeviceID:  t.deviceID,
		Kind:      tr.Kind.String(),
		Connected: tr.Flags.Has(manager.FlagBrokerConnected),
		Flags:     uint32(tr.Flags),
		At:        tr.At,
		Duration:  tr.Duration,
	})
}

func (t *telemetry) SnapshotUpdated(doc []byte) {
	if bytes.Equal(bytes.TrimSpace(doc), []byte("{}")) {
		return
	}
	status, err := manager.DecodeStatus(string(doc))
	if err != nil {
		t.logger.Warn("status snapshot not recorded", "error", err)
		return
	}
	t.client.WriteStatus(t.deviceID, status.URI, int(status.Reason), status.Error)
}
