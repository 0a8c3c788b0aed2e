// Package config loads and watches the daemon configuration file (config.yaml).
//
// Sections:
//   - daemon: rule file, logging (level, format, rotating file)
//   - dispatcher: collector host/port, timeout, backoff, poll interval,
//     check_response, events_log, optional TLS
//   - mibs: extra MODULE::name symbols and enum labels
//   - snmp: listen address, reverse DNS, version2 community, version3 user
//   - sources: TTL of the trap source table
//   - api: optional HTTP API with apikey auth
//
// Durations are Seconds values: a bare number of seconds, or a Go duration
// string such as "1500ms".
// Secrets never live in the file; *_env keys name environment variables.
//
// Load(path) reads the YAML file, applies defaults, then validates.
// Watch(ctx, path, logger, onChange) reloads the file on change with fsnotify.
package config
