// Package logging provides structured logging for the bridge.
//
// It wraps log/slog so every component logs with the same handler and
// default fields (service, version). Components receive a *Logger and
// scope it with With("component", ...).
//
// Configuration (config.yaml):
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Never log MQTT credentials or the InfluxDB token.
package logging
