package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics is a JSON snapshot for quick inspection. Prometheus scrapes
// /metrics instead.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	BridgeState   string         `json:"bridge_state"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	MQTT          MQTTMetrics    `json:"mqtt"`
	Devices       DeviceMetrics  `json:"devices"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// DeviceMetrics counts devices by reachability and family.
type DeviceMetrics struct {
	Total       int            `json:"total"`
	Reachable   int            `json:"reachable"`
	Unreachable int            `json:"unreachable"`
	ByFamily    map[string]int `json:"by_family"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		BridgeState:   s.bridge.State().String(),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		MQTT: MQTTMetrics{
			Connected: s.bridge.BusConnected(),
		},
	}

	devices := s.bridge.Devices()
	metrics.Devices = DeviceMetrics{
		Total:    len(devices),
		ByFamily: make(map[string]int),
	}
	for _, ds := range devices {
		// Devices not yet polled count as unreachable.
		if ds.Reachable {
			metrics.Devices.Reachable++
		} else {
			metrics.Devices.Unreachable++
		}
		metrics.Devices.ByFamily[ds.Descriptor.Family]++
	}

	writeJSON(w, http.StatusOK, metrics)
}
