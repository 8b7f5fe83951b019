// Package config loads the translator's configuration: a single optional
// line naming the upstream host, or a full YAML document for operators
// who need more than that one value.
package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"log/slog"
	"os"
	"strings"

	"braces.dev/errtrace"
	"gopkg.in/yaml.v3"
)

// DefaultUpstreamHost is used when no config file is present.
const DefaultUpstreamHost = "lu.lcdruniverse.org"

// DefaultListenAddr is the address the first relay binds to at startup.
const DefaultListenAddr = "127.0.0.1:1001"

// DefaultUpstreamPort is the port every relay connects to on its
// upstream host.
const DefaultUpstreamPort = 1002

// TLSConfig configures the NEW protocol's optional TLS wrapping.
type TLSConfig struct {
	Enabled            bool   `yaml:"enabled"`
	ServerName         string `yaml:"server_name"`
	CAFile             string `yaml:"ca_file"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// Config is the fully resolved configuration, whichever file form it was
// read from.
type Config struct {
	Listen       string    `yaml:"listen"`
	UpstreamHost string    `yaml:"upstream_host"`
	UpstreamPort int       `yaml:"upstream_port"`
	TLS          TLSConfig `yaml:"tls"`
	LogLevel     string    `yaml:"log_level"`
}

// Default returns the configuration used when shim_config.txt is absent.
func Default() Config {
	return Config{
		Listen:       DefaultListenAddr,
		UpstreamHost: DefaultUpstreamHost,
		UpstreamPort: DefaultUpstreamPort,
		LogLevel:     "info",
	}
}

// Load reads path and returns the resolved configuration. A missing file
// is not an error: it yields Default(). A present file is first tried as
// YAML; if that fails to parse as a mapping, its trimmed content is
// treated as the plain one-line upstream host.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Config{}, errtrace.Wrap(err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err == nil && looksLikeMapping(data) {
		return cfg, nil
	}

	host := strings.TrimSpace(string(data))
	if host == "" {
		return Default(), nil
	}
	cfg = Default()
	cfg.UpstreamHost = host
	return cfg, nil
}

// looksLikeMapping reports whether data parses as a non-empty YAML
// mapping, so that an empty or comment-only file, which yaml.Unmarshal
// accepts without error, is not taken as a YAML config.
func looksLikeMapping(data []byte) bool {
	var probe map[string]any
	return yaml.Unmarshal(data, &probe) == nil && len(probe) > 0
}

// TLSClientConfig builds the *tls.Config described by cfg.TLS, or nil if
// TLS is disabled.
func (c Config) TLSClientConfig() (*tls.Config, error) {
	if !c.TLS.Enabled {
		return nil, nil
	}
	serverName := c.TLS.ServerName
	if serverName == "" {
		serverName = c.UpstreamHost
	}
	tlsCfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         serverName,
		InsecureSkipVerify: c.TLS.InsecureSkipVerify,
	}
	if c.TLS.CAFile != "" {
		pem, err := os.ReadFile(c.TLS.CAFile)
		if err != nil {
			return nil, errtrace.Wrap(err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errtrace.Wrap(errors.New("config: no certificates found in ca_file"))
		}
		tlsCfg.RootCAs = pool
	}
	return tlsCfg, nil
}

// ParseLogLevel converts the configured level name to a slog.Level,
// defaulting to info on an unrecognized value.
func ParseLogLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
