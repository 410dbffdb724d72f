package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/ac-mqtt-bridge/internal/device"
)

// Measurement and field names for device telemetry.
const (
	MeasurementDeviceMetrics = "device_metrics"

	FieldSetpoint = "setpoint_c"
	FieldAmbient  = "ambient_c"
	FieldPower    = "power"
)

// WriteDeviceState records the numeric parts of a polled state.
// States with no numeric field known are skipped.
func (c *Client) WriteDeviceState(address string, st device.State) {
	if !c.IsConnected() {
		return
	}
	if p := devicePoint(address, st); p != nil {
		c.writeAPI.WritePoint(p)
	}
}

// devicePoint builds the device_metrics point for a state, or nil when
// nothing numeric is known. Power is written as 1 or 0 so it can be graphed.
func devicePoint(address string, st device.State) *write.Point {
	fields := make(map[string]interface{}, 3)
	if st.Temperature != nil {
		fields[FieldSetpoint] = *st.Temperature
	}
	if st.AmbientTemperature != nil {
		fields[FieldAmbient] = *st.AmbientTemperature
	}
	if st.Power != nil {
		power := 0.0
		if *st.Power {
			power = 1
		}
		fields[FieldPower] = power
	}
	if len(fields) == 0 {
		return nil
	}

	ts := st.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return write.NewPoint(
		MeasurementDeviceMetrics,
		map[string]string{"address": address},
		fields,
		ts,
	)
}
