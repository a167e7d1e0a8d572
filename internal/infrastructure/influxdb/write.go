package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// RecordDomainStats writes one batch of domain runtime counters.
//
// This is the primary telemetry path: every stats event the router
// applies to the mirror lands here too, tagged by domain name. The
// write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - domain: Domain name (e.g., "work", "sys-net")
//   - fields: Counter values from the stats event (memory_usage,
//     cpu_time, cpu_usage, ...)
//
// Example:
//
//	client.RecordDomainStats("work", map[string]int64{
//	    "memory_usage": 409600,
//	    "cpu_usage":    17,
//	})
func (c *Client) RecordDomainStats(domain string, fields map[string]int64) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}

	values := make(map[string]interface{}, len(fields))
	for name, v := range fields {
		values[name] = v
	}

	point := write.NewPoint(
		"domain_stats",
		map[string]string{
			"domain": domain,
		},
		values,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// RecordLifecycle writes a domain lifecycle transition as an event
// point, so dashboards can overlay starts and stops on resource graphs.
//
// Parameters:
//   - identity: Entity identity (e.g., "domains/5")
//   - state: The lifecycle state the domain landed in
func (c *Client) RecordLifecycle(identity string, state string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"domain_lifecycle",
		map[string]string{
			"identity": identity,
		},
		map[string]interface{}{
			"state": state,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
