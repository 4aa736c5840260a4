package config

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vango-dev/pulse/internal/errors"
	"github.com/vango-dev/pulse/pkg/auth"
	"github.com/vango-dev/pulse/pkg/encryption"
	"github.com/vango-dev/pulse/pkg/protocol"
	"github.com/vango-dev/pulse/pkg/realtime"
)

// Config file names, in lookup order.
var FileNames = []string{"pulse.json", "pulse.yaml", "pulse.yml"}

// Environment variables that override the file.
const (
	EnvKey   = "PULSE_KEY"
	EnvToken = "PULSE_TOKEN"
	EnvHost  = "PULSE_HOST"
)

// Config represents a pulse.json or pulse.yaml client configuration.
type Config struct {
	// Key is an API key, "appId.keyId:secret".
	Key string `json:"key,omitempty" yaml:"key,omitempty"`

	// Token is a static access token. It takes precedence over Key.
	Token string `json:"token,omitempty" yaml:"token,omitempty"`

	// AuthURL serves fresh tokens. It takes precedence over Token and Key.
	AuthURL string `json:"authUrl,omitempty" yaml:"authUrl,omitempty"`

	// ClientID identifies this client for presence.
	ClientID string `json:"clientId,omitempty" yaml:"clientId,omitempty"`

	Host     string `json:"host,omitempty" yaml:"host,omitempty"`
	Port     int    `json:"port,omitempty" yaml:"port,omitempty"`
	Insecure bool   `json:"insecure,omitempty" yaml:"insecure,omitempty"`

	// FallbackHosts replaces the default fallback hosts.
	FallbackHosts []string `json:"fallbackHosts,omitempty" yaml:"fallbackHosts,omitempty"`

	// NoFallback disables fallback hosts.
	NoFallback bool `json:"noFallback,omitempty" yaml:"noFallback,omitempty"`

	// Format is "json" or "binary".
	Format string `json:"format,omitempty" yaml:"format,omitempty"`

	// Echo controls whether the client receives its own messages.
	// Default: true
	Echo *bool `json:"echo,omitempty" yaml:"echo,omitempty"`

	Timeouts     TimeoutsConfig     `json:"timeouts,omitempty" yaml:"timeouts,omitempty"`
	Connectivity ConnectivityConfig `json:"connectivity,omitempty" yaml:"connectivity,omitempty"`
	Log          LogConfig          `json:"log,omitempty" yaml:"log,omitempty"`

	// Channels holds per-channel settings by channel name.
	Channels map[string]ChannelConfig `json:"channels,omitempty" yaml:"channels,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// TimeoutsConfig holds durations such as "15s".
type TimeoutsConfig struct {
	Connect           string `json:"connect,omitempty" yaml:"connect,omitempty"`
	DisconnectedRetry string `json:"disconnectedRetry,omitempty" yaml:"disconnectedRetry,omitempty"`
	SuspendedRetry    string `json:"suspendedRetry,omitempty" yaml:"suspendedRetry,omitempty"`
	Suspend           string `json:"suspend,omitempty" yaml:"suspend,omitempty"`
}

// ConnectivityConfig configures the internet-up check.
type ConnectivityConfig struct {
	URL     string `json:"url,omitempty" yaml:"url,omitempty"`
	Body    string `json:"body,omitempty" yaml:"body,omitempty"`
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// LogConfig configures CLI logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
}

// ChannelConfig holds settings for one channel.
type ChannelConfig struct {
	// CipherKey is a base64 AES key; payloads on the channel are encrypted.
	CipherKey string `json:"cipherKey,omitempty" yaml:"cipherKey,omitempty"`
}

// New creates a Config with default values.
func New() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads the first config file found in dir.
func Load(dir string) (*Config, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, errors.Newf(errors.CodeConfigNotFound, "no %s found in %s", strings.Join(FileNames, " or "), dir)
}

// LoadFile reads configuration from path. The extension selects the
// format.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.CodeConfigNotFound, "config file %s does not exist", path)
		}
		return nil, errors.Wrap(errors.CodeConfigInvalid, err)
	}

	cfg := &Config{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, errors.Newf(errors.CodeConfigInvalid, "failed to parse %s: %v", filepath.Base(path), err)
	}

	cfg.configPath = path
	cfg.applyDefaults()
	return cfg, nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CodeConfigInvalid, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to path, as YAML for .yaml and .yml
// files and JSON otherwise.
func (c *Config) SaveTo(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return errors.Wrap(errors.CodeConfigInvalid, err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.Wrap(errors.CodeConfigInvalid, err)
	}
	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = realtime.DefaultHost
	}
	if c.Port == 0 {
		c.Port = realtime.DefaultPort
	}
	if c.Format == "" {
		c.Format = string(protocol.FormatJSON)
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// ApplyEnv overrides credentials and host from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv(EnvKey); v != "" {
		c.Key = v
	}
	if v := getenv(EnvToken); v != "" {
		c.Token = v
	}
	if v := getenv(EnvHost); v != "" {
		c.Host = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.Newf(errors.CodeConfigValue, "port must be between 0 and 65535, got %d", c.Port)
	}
	if _, err := protocol.ParseFormat(c.Format); err != nil {
		return errors.Newf(errors.CodeConfigValue, "format: %v", err)
	}
	if c.Key != "" {
		if _, _, err := auth.ParseKey(c.Key); err != nil {
			return errors.Newf(errors.CodeConfigValue, "key: %v", err)
		}
	}
	if _, err := c.durations(); err != nil {
		return err
	}
	for name, ch := range c.Channels {
		if ch.CipherKey == "" {
			continue
		}
		if _, err := encryption.ParseKey(ch.CipherKey); err != nil {
			return errors.Newf(errors.CodeConfigValue, "channels.%s.cipherKey: %v", name, err)
		}
	}
	return nil
}

type durations struct {
	connect, disconnectedRetry, suspendedRetry, suspend, check time.Duration
}

func (c *Config) durations() (durations, error) {
	var d durations
	fields := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"timeouts.connect", c.Timeouts.Connect, &d.connect},
		{"timeouts.disconnectedRetry", c.Timeouts.DisconnectedRetry, &d.disconnectedRetry},
		{"timeouts.suspendedRetry", c.Timeouts.SuspendedRetry, &d.suspendedRetry},
		{"timeouts.suspend", c.Timeouts.Suspend, &d.suspend},
		{"connectivity.timeout", c.Connectivity.Timeout, &d.check},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		v, err := time.ParseDuration(f.value)
		if err != nil || v <= 0 {
			return d, errors.Newf(errors.CodeConfigValue, "%s: invalid duration %q", f.name, f.value)
		}
		*f.dst = v
	}
	return d, nil
}

// Auth returns the credential provider the config describes, or nil when
// it has no credentials.
func (c *Config) Auth(client *http.Client) (auth.Provider, error) {
	switch {
	case c.AuthURL != "":
		return auth.NewCallbackProvider(auth.URLTokenFunc(c.AuthURL, client)), nil
	case c.Token != "":
		return auth.NewTokenProvider(c.Token, c.ClientID), nil
	case c.Key != "":
		p, err := auth.NewKeyProvider(c.Key, c.ClientID)
		if err != nil {
			return nil, errors.Newf(errors.CodeConfigValue, "key: %v", err)
		}
		return p, nil
	}
	return nil, nil
}

// Options converts the configuration to realtime options. The transport
// factory is left for the caller.
func (c *Config) Options() (*realtime.Options, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	d, _ := c.durations()
	format, _ := protocol.ParseFormat(c.Format)

	provider, err := c.Auth(nil)
	if err != nil {
		return nil, err
	}

	opts := realtime.DefaultOptions().
		WithHost(c.Host, c.Port).
		WithClientID(c.ClientID)
	opts.Format = format
	opts.Insecure = c.Insecure
	if provider != nil {
		opts.Auth = provider
	}
	switch {
	case c.NoFallback:
		opts.FallbackHosts = nil
	case len(c.FallbackHosts) > 0:
		opts.FallbackHosts = append([]string(nil), c.FallbackHosts...)
	}
	if c.Echo != nil {
		opts.EchoMessages = *c.Echo
	}
	if c.Connectivity.URL != "" {
		opts.ConnectivityCheckURL = c.Connectivity.URL
	}
	if c.Connectivity.Body != "" {
		opts.ConnectivityCheckBody = c.Connectivity.Body
	}
	setDuration(&opts.ConnectTimeout, d.connect)
	setDuration(&opts.DisconnectedRetryTimeout, d.disconnectedRetry)
	setDuration(&opts.SuspendedRetryTimeout, d.suspendedRetry)
	setDuration(&opts.SuspendTimeout, d.suspend)
	setDuration(&opts.ConnectivityCheckTimeout, d.check)
	return opts, nil
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

// ChannelOptions returns the options configured for the channel name.
func (c *Config) ChannelOptions(name string) (realtime.ChannelOptions, error) {
	ch, ok := c.Channels[name]
	if !ok || ch.CipherKey == "" {
		return realtime.ChannelOptions{}, nil
	}
	key, err := encryption.ParseKey(ch.CipherKey)
	if err != nil {
		return realtime.ChannelOptions{}, errors.Newf(errors.CodeConfigValue, "channels.%s.cipherKey: %v", name, err)
	}
	cipher, err := encryption.NewCipher(key)
	if err != nil {
		return realtime.ChannelOptions{}, fmt.Errorf("channels.%s: %w", name, err)
	}
	return realtime.ChannelOptions{Cipher: cipher}, nil
}
