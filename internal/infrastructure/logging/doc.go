// Package logging wraps log/slog for the MQTT manager.
//
// Every entry carries service and version fields. Subsystems take a child
// logger from Component so entries can be filtered by origin:
//
//	log := logging.New(cfg.Logging, version)
//	log.Component("dispatcher").Info("broker connected", "uri", uri)
//
// The handler is JSON unless logging.format is "text", and writes to stdout
// unless logging.output is "stderr".
//
// Attributes whose key contains password, pwd, token or secret are written
// as [REDACTED]. Values interpolated into the message itself are not
// inspected, so never format credentials into a message.
package logging
