// Package config loads the relay server configuration from config.yaml.
//
// Config sections:
//   - server: host/port (default 0.0.0.0:3000), read and shutdown timeouts
//   - auth: "apikey" or "none"; key_env names the variable holding the key
//   - stream: overlap policy (queue|concurrent), queue_size, max_delay, send_buffer
//   - search: collaborator driver (swapi|fixture), SWAPI settings, redis cache
//   - logging: zap preset env and level override
//
// Load(path) expands ${VAR} references, unmarshals, applies defaults and
// validates. A missing file is not an error: the defaults are returned.
//
// Watch(ctx, path, onChange) re-runs Load whenever the file is written.
package config
