package tsdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteSensorReading mirrors a single numeric sensor reading.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: Gateway identifier
//   - moduleIndex: Module position on the gateway
//   - measurement: The metric name ("temp", "hum" or "noise")
//   - sensorIndex: Normalized sensor index (10..18)
//   - value: The reading
//   - at: Event creation time
func (c *Client) WriteSensorReading(deviceID string, moduleIndex int, measurement string, sensorIndex int, value float64, at time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"rack_telemetry",
		map[string]string{
			"device_id":    deviceID,
			"module_index": strconv.Itoa(moduleIndex),
			"measurement":  measurement,
			"sensor_index": strconv.Itoa(sensorIndex),
		},
		map[string]interface{}{
			"value": value,
		},
		at,
	)

	c.writeAPI.WritePoint(point)
}
