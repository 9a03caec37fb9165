// Package config provides configuration loading, validation, and hot
// reload for Veridion Sentinel.
//
// Configuration is read from a YAML file, overlaid with SENTINEL_*
// environment variables, and validated before use. Every field has a
// documented default applied when the file leaves it unset. A
// fsnotify-based Watcher reloads the file on change so controller
// thresholds can be tuned without a restart.
package config
