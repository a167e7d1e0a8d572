// Package influxdb provides InfluxDB connectivity for the vmgrid
// mirror.
//
// It wraps the official influxdb-client-go v2 library with vmgrid
// patterns for connection management, metric writing, and health
// monitoring.
//
// # Purpose
//
// This package handles time-series data storage for:
//   - Domain runtime counters from stats events (memory, cpu)
//   - Domain lifecycle transitions as event overlays
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "vmgrid",
//	    Bucket: "metrics",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.RecordDomainStats("work", map[string]int64{"memory_usage": 409600})
//
// Writes are batched and asynchronous; a failed write is reported
// through the SetOnError callback rather than a return value.
package influxdb
