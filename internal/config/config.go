package config

import (
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultTrapFile      = "conf/traps.json"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "json"
	DefaultLogMaxSizeMB  = 100
	DefaultLogMaxBackups = 5
	DefaultLogMaxAgeDays = 30

	DefaultDispatcherHost = "127.0.0.1"
	DefaultDispatcherPort = 3030
	DefaultTimeout        = 5 * time.Second
	DefaultBackoff        = 10 * time.Second
	DefaultPollInterval   = 1 * time.Second

	DefaultMIBCacheSize = 4096

	DefaultSNMPAddress    = "127.0.0.1"
	DefaultSNMPPort       = 1610
	DefaultCommunity      = "public"
	DefaultResolveTimeout = 2 * time.Second

	DefaultSourceTTL = time.Hour

	DefaultAPIListen = "127.0.0.1:9162"
	DefaultAPIHeader = "x-api-key"
)

// Config is the top-level daemon configuration.
// Fields map 1:1 to conf/config.yaml.
type Config struct {
	Daemon     DaemonConfig     `yaml:"daemon"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	MIBs       MIBConfig        `yaml:"mibs"`
	SNMP       SNMPConfig       `yaml:"snmp"`
	Sources    SourcesConfig    `yaml:"sources"`
	API        APIConfig        `yaml:"api"`
}

// Seconds is a duration that accepts either a bare number of seconds
// ("timeout: 5") or a Go duration string ("timeout: 500ms").
type Seconds time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Seconds) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected seconds or duration", n.Line)
	}
	v := strings.TrimSpace(n.Value)
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		*s = Seconds(time.Duration(f * float64(time.Second)))
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", n.Line, v)
	}
	*s = Seconds(d)
	return nil
}

// MarshalYAML renders the value as a duration string.
func (s Seconds) MarshalYAML() (any, error) {
	return time.Duration(s).String(), nil
}

// Duration returns s as a time.Duration.
func (s Seconds) Duration() time.Duration { return time.Duration(s) }

// DaemonConfig holds process-level settings.
type DaemonConfig struct {
	// TrapFile is the JSON rule file.
	TrapFile string `yaml:"trap_file"`

	// WatchRules reloads TrapFile when it changes on disk.
	WatchRules bool `yaml:"watch_rules"`

	// LogFile sends logs to a rotating file instead of stdout.
	LogFile       string `yaml:"log_file"`
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
	LogMaxSizeMB  int    `yaml:"log_max_size_mb"`
	LogMaxBackups int    `yaml:"log_max_backups"`
	LogMaxAgeDays int    `yaml:"log_max_age_days"`
}

// DispatcherConfig controls delivery to the collector's client socket.
type DispatcherConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Timeout bounds both connect and the acknowledgment wait.
	Timeout Seconds `yaml:"timeout"`

	// Backoff is the pause after a failed connect.
	Backoff Seconds `yaml:"backoff"`

	// PollInterval is the idle sleep when the queue is empty.
	PollInterval Seconds `yaml:"poll_interval"`

	// CheckResponse requires an "ok" acknowledgment per event.
	CheckResponse bool `yaml:"check_response"`

	// EventsLog records every delivered event to a separate file.
	EventsLog string `yaml:"events_log"`

	TLS TLSConfig `yaml:"tls"`
}

// Address returns host:port of the collector.
func (d DispatcherConfig) Address() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// TLSConfig holds optional TLS dial options for the collector connection.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CAFile   string `yaml:"ca_file"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	// InsecureSkipVerify disables certificate verification.
	// Only use this for internal CAs in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// MIBConfig extends the built-in symbol table.
type MIBConfig struct {
	// Symbols maps "MODULE::name" to a numeric OID.
	Symbols map[string]string `yaml:"symbols"`

	// Enums maps "MODULE::name" to integer display labels.
	Enums map[string]map[int64]string `yaml:"enums"`

	CacheSize int `yaml:"cache_size"`
}

// SNMPConfig configures the notification listener.
type SNMPConfig struct {
	ListenAddress string `yaml:"listen_address"`
	ListenPort    int    `yaml:"listen_port"`

	// ResolveHostnames enables reverse DNS for trap sources.
	ResolveHostnames bool    `yaml:"resolve_hostnames"`
	ResolveTimeout   Seconds `yaml:"resolve_timeout"`

	Version2 V2Config `yaml:"version2"`
	Version3 V3Config `yaml:"version3"`
}

// Address returns the UDP listen address.
func (s SNMPConfig) Address() string {
	return net.JoinHostPort(s.ListenAddress, strconv.Itoa(s.ListenPort))
}

// V2Config enables SNMPv1/v2c community authentication.
type V2Config struct {
	Enabled   bool   `yaml:"enabled"`
	Community string `yaml:"community"`
}

// V3Config enables one SNMPv3 USM user.
type V3Config struct {
	Enabled bool   `yaml:"enabled"`
	User    string `yaml:"user"`

	// AuthProtocol is one of MD5 | SHA | SHA224 | SHA256 | SHA384 | SHA512.
	AuthProtocol string `yaml:"auth_protocol"`
	// AuthPassphraseEnv names the environment variable holding the passphrase.
	AuthPassphraseEnv string `yaml:"auth_passphrase_env"`

	// PrivProtocol is one of DES | AES | AES192 | AES256 | AES192C | AES256C.
	PrivProtocol      string `yaml:"priv_protocol"`
	PrivPassphraseEnv string `yaml:"priv_passphrase_env"`

	// EngineID is the sender's authoritative engine ID in hex, used to
	// localize keys when set.
	EngineID string `yaml:"engine_id"`
}

// EngineIDBytes decodes EngineID, accepting an optional 0x prefix.
func (v V3Config) EngineIDBytes() ([]byte, error) {
	id := strings.TrimPrefix(strings.TrimPrefix(v.EngineID, "0x"), "0X")
	return hex.DecodeString(id)
}

// AuthPassphrase returns the authentication passphrase from the environment.
func (v V3Config) AuthPassphrase() string {
	if v.AuthPassphraseEnv == "" {
		return ""
	}
	return os.Getenv(v.AuthPassphraseEnv)
}

// PrivPassphrase returns the privacy passphrase from the environment.
func (v V3Config) PrivPassphrase() string {
	if v.PrivPassphraseEnv == "" {
		return ""
	}
	return os.Getenv(v.PrivPassphraseEnv)
}

// SourcesConfig controls the in-memory table of trap sources.
type SourcesConfig struct {
	// TTL is how long a source stays listed after its last trap.
	TTL Seconds `yaml:"ttl"`
}

// APIConfig configures the read-only HTTP API, /metrics and /ws/events.
type APIConfig struct {
	Enabled bool       `yaml:"enabled"`
	Listen  string     `yaml:"listen"`
	Auth    AuthConfig `yaml:"auth"`
}

// AuthConfig controls API authentication.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header to read the key from.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return DefaultAPIHeader
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML document on top of the defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Defaults returns a Config pre-populated with default values.
func Defaults() *Config {
	return &Config{
		Daemon: DaemonConfig{
			TrapFile:      DefaultTrapFile,
			WatchRules:    true,
			LogLevel:      DefaultLogLevel,
			LogFormat:     DefaultLogFormat,
			LogMaxSizeMB:  DefaultLogMaxSizeMB,
			LogMaxBackups: DefaultLogMaxBackups,
			LogMaxAgeDays: DefaultLogMaxAgeDays,
		},
		Dispatcher: DispatcherConfig{
			Host:          DefaultDispatcherHost,
			Port:          DefaultDispatcherPort,
			Timeout:       Seconds(DefaultTimeout),
			Backoff:       Seconds(DefaultBackoff),
			PollInterval:  Seconds(DefaultPollInterval),
			CheckResponse: true,
		},
		MIBs: MIBConfig{
			CacheSize: DefaultMIBCacheSize,
		},
		SNMP: SNMPConfig{
			ListenAddress:    DefaultSNMPAddress,
			ListenPort:       DefaultSNMPPort,
			ResolveHostnames: true,
			ResolveTimeout:   Seconds(DefaultResolveTimeout),
			Version2: V2Config{
				Enabled:   true,
				Community: DefaultCommunity,
			},
		},
		Sources: SourcesConfig{
			TTL: Seconds(DefaultSourceTTL),
		},
		API: APIConfig{
			Listen: DefaultAPIListen,
			Auth:   AuthConfig{Mode: "none", Header: DefaultAPIHeader},
		},
	}
}

var (
	authProtocols = []string{"MD5", "SHA", "SHA224", "SHA256", "SHA384", "SHA512"}
	privProtocols = []string{"DES", "AES", "AES192", "AES256", "AES192C", "AES256C"}
)

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.Daemon.TrapFile == "" {
		return fmt.Errorf("daemon.trap_file is required")
	}
	switch strings.ToLower(cfg.Daemon.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("daemon.log_level %q unknown: want debug|info|warn|error", cfg.Daemon.LogLevel)
	}
	switch cfg.Daemon.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("daemon.log_format %q unknown: want json|text", cfg.Daemon.LogFormat)
	}

	d := cfg.Dispatcher
	if d.Host == "" {
		return fmt.Errorf("dispatcher.host is required")
	}
	if d.Port <= 0 || d.Port > 65535 {
		return fmt.Errorf("dispatcher.port %d is out of range [1, 65535]", d.Port)
	}
	if d.Timeout <= 0 {
		return fmt.Errorf("dispatcher.timeout must be positive")
	}
	if d.Backoff < 0 {
		return fmt.Errorf("dispatcher.backoff must not be negative")
	}
	if d.PollInterval <= 0 {
		return fmt.Errorf("dispatcher.poll_interval must be positive")
	}
	if d.TLS.Enabled && (d.TLS.CertFile == "") != (d.TLS.KeyFile == "") {
		return fmt.Errorf("dispatcher.tls: cert_file and key_file must be set together")
	}

	if cfg.MIBs.CacheSize <= 0 {
		return fmt.Errorf("mibs.cache_size must be positive")
	}
	for name, oid := range cfg.MIBs.Symbols {
		if !strings.Contains(name, "::") {
			return fmt.Errorf("mibs.symbols: %q is not MODULE::name", name)
		}
		if oid == "" {
			return fmt.Errorf("mibs.symbols: %q has no oid", name)
		}
	}

	s := cfg.SNMP
	if s.ListenPort <= 0 || s.ListenPort > 65535 {
		return fmt.Errorf("snmp.listen_port %d is out of range [1, 65535]", s.ListenPort)
	}
	if !s.Version2.Enabled && !s.Version3.Enabled {
		return fmt.Errorf("snmp: at least one of version2 or version3 must be enabled")
	}
	if s.Version2.Enabled && s.Version2.Community == "" {
		return fmt.Errorf("snmp.version2.community is required")
	}
	if v3 := s.Version3; v3.Enabled {
		if v3.User == "" {
			return fmt.Errorf("snmp.version3.user is required")
		}
		if _, err := v3.EngineIDBytes(); err != nil {
			return fmt.Errorf("snmp.version3.engine_id: %w", err)
		}
		if v3.AuthProtocol != "" && !oneOf(v3.AuthProtocol, authProtocols) {
			return fmt.Errorf("snmp.version3.auth_protocol %q unknown: want %s", v3.AuthProtocol, strings.Join(authProtocols, "|"))
		}
		if v3.PrivProtocol != "" {
			if !oneOf(v3.PrivProtocol, privProtocols) {
				return fmt.Errorf("snmp.version3.priv_protocol %q unknown: want %s", v3.PrivProtocol, strings.Join(privProtocols, "|"))
			}
			if v3.AuthProtocol == "" {
				return fmt.Errorf("snmp.version3.priv_protocol requires auth_protocol")
			}
		}
	}

	if cfg.Sources.TTL < 0 {
		return fmt.Errorf("sources.ttl must not be negative")
	}

	if cfg.API.Enabled && cfg.API.Listen == "" {
		return fmt.Errorf("api.listen is required when the api is enabled")
	}
	switch cfg.API.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("api.auth.mode %q unknown: want apikey|none", cfg.API.Auth.Mode)
	}
	if cfg.API.Auth.Mode == "apikey" && cfg.API.Auth.KeyEnv == "" {
		return fmt.Errorf("api.auth.key_env is required for apikey mode")
	}
	return nil
}

func oneOf(v string, set []string) bool {
	for _, s := range set {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
