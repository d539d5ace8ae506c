package influxdb

import (
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-mqttmgr/internal/infrastructure/config"
)

func TestWriteOptions(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.InfluxDBConfig
		wantBatch uint
		wantFlush uint
	}{
		{"defaults", config.InfluxDBConfig{}, defaultBatchSize, 10000},
		{"negative falls back", config.InfluxDBConfig{BatchSize: -1, FlushInterval: -3}, defaultBatchSize, 10000},
		{"configured", config.InfluxDBConfig{BatchSize: 20, FlushInterval: 2}, 20, 2000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := writeOptions(tt.cfg)
			if got := opts.BatchSize(); got != tt.wantBatch {
				t.Errorf("BatchSize() = %d, want %d", got, tt.wantBatch)
			}
			if got := opts.FlushInterval(); got != tt.wantFlush {
				t.Errorf("FlushInterval() = %d, want %d", got, tt.wantFlush)
			}
			if got := opts.Precision(); got != time.Microsecond {
				t.Errorf("Precision() = %v, want 1µs", got)
			}
			if got := opts.MaxRetries(); got != maxRetries {
				t.Errorf("MaxRetries() = %d, want %d", got, maxRetries)
			}
		})
	}
}
