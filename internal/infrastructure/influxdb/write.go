package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePoint queues one point. It never blocks on the network and is a no-op
// when the client is closed.
//
//	client.WritePoint("dnp3_dispatch",
//	    map[string]string{"kind": "write", "outcome": "ok"},
//	    map[string]any{"duration_ms": int64(412)},
//	    time.Now())
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}
