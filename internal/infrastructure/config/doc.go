// Package config loads the MQTT manager's process settings from YAML.
//
// Load reads the file, applies MQTTMGR_* environment overrides and runs
// Validate. LoadDefaults does the same starting from Default when no file
// exists.
//
// The broker URI and credentials are not here. They make up the
// connection profile, which is provisioned at runtime through the console
// and persisted by the manager.
//
// Secrets (Redis password, InfluxDB token, JWT secret) are best supplied
// through the environment rather than the file:
//
//	MQTTMGR_REDIS_PASSWORD, MQTTMGR_INFLUXDB_TOKEN, MQTTMGR_JWT_SECRET
package config
