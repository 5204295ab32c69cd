// Package logging provides the structured logger shared by the CLI, the
// gateway client and the HTTP API.
//
// It is a thin layer over log/slog that adds the service name and build
// version to every entry and redacts credential attributes.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version, os.Stderr)
//	logger.Info("gateway connected", "gateway_id", gwID)
package logging
