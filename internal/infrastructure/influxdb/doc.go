// Package influxdb writes dispatch outcomes to InfluxDB v2.
//
// It wraps influxdb-client-go with connection checks and a non-blocking,
// batched write path. Recording is best effort: a closed or failing client
// never slows down a dispatch.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.SetOnError(func(err error) { log.Warn("influx write", "error", err) })
//
// Batch size and flush interval come from the influxdb section of
// config.yaml.
package influxdb
