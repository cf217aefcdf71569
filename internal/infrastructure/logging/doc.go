// Package logging provides structured logging for orgbd.
//
// It wraps log/slog with JSON or text output, level filtering and default
// service/version fields on every entry.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Component("server").Info("listening", "addr", addr)
//
// Never log secrets such as the MQTT password or InfluxDB token.
package logging
