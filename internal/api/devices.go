package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/ac-mqtt-bridge/internal/bridges/aircon"
	"github.com/nerrad567/ac-mqtt-bridge/internal/device"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500

	// maxAddressLen covers every MAC notation the registry accepts.
	maxAddressLen = 32

	// Rediscovery is bounded by the bridge's own discovery timeout; this caps
	// the request in case the client never goes away.
	discoveryRequestTimeout = time.Minute
)

// handleListDevices returns every registered device with its last-known state.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.bridge.Devices()
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns one device by address, in any MAC notation.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

// handleGetDeviceHistory returns recorded snapshots for a device, newest first.
func (s *Server) handleGetDeviceHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "state history is disabled")
		return
	}

	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	ds, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}

	entries, err := s.history.GetHistory(r.Context(), ds.Descriptor.Address, limit)
	if err != nil {
		s.logger.Error("failed to read state history", "address", ds.Descriptor.Address, "error", err)
		writeInternalError(w, "failed to read state history")
		return
	}
	if entries == nil {
		entries = []device.StateHistoryEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"address": ds.Descriptor.Address,
		"history": entries,
		"count":   len(entries),
	})
}

// handleDiscovery re-runs discovery and reports how many devices are now registered.
func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), discoveryRequestTimeout)
	defer cancel()

	n, err := s.bridge.Rediscover(ctx)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"devices": n})
	case errors.Is(err, device.ErrDiscoveryEmpty):
		writeConflict(w, "discovery found no usable devices; registry unchanged")
	case errors.Is(err, aircon.ErrNotReady):
		writeUnavailable(w, "bridge is not accepting rediscovery in state "+s.bridge.State().String())
	default:
		s.logger.Error("rediscovery failed", "error", err)
		writeInternalError(w, "rediscovery failed")
	}
}

func (s *Server) lookupDevice(w http.ResponseWriter, r *http.Request) (aircon.DeviceStatus, bool) {
	address := chi.URLParam(r, "address")
	if address == "" || len(address) > maxAddressLen {
		writeBadRequest(w, "invalid device address")
		return aircon.DeviceStatus{}, false
	}
	ds, ok := s.bridge.Device(address)
	if !ok {
		writeNotFound(w, "device not found")
		return aircon.DeviceStatus{}, false
	}
	return ds, true
}

// parseHistoryLimit validates the limit query parameter.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid limit")
	}
	if limit > maxHistoryLimit {
		return 0, fmt.Errorf("limit exceeds maximum")
	}

	return limit, nil
}
