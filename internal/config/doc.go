// Package config loads and validates the pulsewatch configuration. Static
// settings (ports, sampling interval, default thresholds) come from an
// optional YAML file; sink settings (webhook URL, SMTP credentials, database
// URL) are resolved from the environment so secrets stay out of the file.
// The config file can be watched for hot-reload.
package config
