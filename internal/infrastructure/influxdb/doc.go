// Package influxdb writes device telemetry to InfluxDB v2.
//
// Each successful poll produces one device_metrics point tagged by device
// address with the fields setpoint_c, ambient_c and power (1/0). The
// integration is optional; when disabled Connect returns ErrDisabled and
// the bridge runs without telemetry.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
package influxdb
