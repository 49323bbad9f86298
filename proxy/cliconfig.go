package proxy

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// CLIConfig is the flag/env/file-sourced configuration cmd/proxychain
// assembles into a ServerConfig.
//
// Precedence, lowest to highest: struct field defaults, then a YAML file
// at ConfigFile (if set), then PROXYCHAIN_* environment variables, then
// flags the caller explicitly passed on the command line.
//
// CLIConfig carries no `default` struct tags: envconfig applies a default
// unconditionally whenever its environment variable is absent, which would
// stomp a value already set by the YAML overlay. Defaults are instead
// applied once, in Go, before the overlay runs.
type CLIConfig struct {
	Addr       string `yaml:"addr" envconfig:"ADDR"`
	Realm      string `yaml:"realm" envconfig:"REALM"`
	Verbose    bool   `yaml:"verbose" envconfig:"VERBOSE"`
	Upstream   string `yaml:"upstream" envconfig:"UPSTREAM"`
	ConfigFile string `yaml:"-" ignored:"true"`
}

// LoadCLIConfig builds a CLIConfig starting from its hardcoded defaults,
// overlaying configFile (if non-empty), then PROXYCHAIN_* environment
// variables. Flags explicitly set on the command line should be applied by
// the caller after this returns, since cobra parses them into the caller's
// own variables, which this function does not see.
func LoadCLIConfig(configFile string) (CLIConfig, error) {
	cfg := CLIConfig{Addr: ":8000", Realm: "ProxyChain"}

	if configFile != "" {
		if err := overlayYAMLFile(&cfg, configFile); err != nil {
			return CLIConfig{}, err
		}
	}

	if err := envconfig.Process("proxychain", &cfg); err != nil {
		return CLIConfig{}, fmt.Errorf("load PROXYCHAIN_* overrides: %w", err)
	}

	return cfg, nil
}

func overlayYAMLFile(cfg *CLIConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// ToServerConfig maps the CLI-level settings onto a ServerConfig, resolving
// the textual upstream URL into the form handlers expect.
func (c CLIConfig) ToServerConfig() (ServerConfig, error) {
	port, err := addrToPort(c.Addr)
	if err != nil {
		return ServerConfig{}, err
	}

	cfg := ServerConfig{
		Port:      port,
		AuthRealm: c.Realm,
		Verbose:   c.Verbose,
	}

	if c.Upstream != "" {
		upstreamURL, err := url.Parse(c.Upstream)
		if err != nil {
			return ServerConfig{}, fmt.Errorf("invalid --upstream URL %q: %w", c.Upstream, err)
		}
		cfg.Policy = staticUpstreamPolicy(upstreamURL.String())
	}

	return cfg, nil
}

// addrToPort extracts the numeric port from a ":8000" or "host:8000"
// listen address. ServerConfig only tracks the port, since Listen always
// binds every interface.
func addrToPort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("invalid --addr %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("invalid port in --addr %q: %w", addr, err)
	}
	return port, nil
}

// staticUpstreamPolicy returns a PolicyFunc that always routes through the
// same upstream proxy URL, letting the CLI exercise the upstream-chaining
// handlers without embedding code.
func staticUpstreamPolicy(upstreamURL string) PolicyFunc {
	return func(PolicyInput) (PolicyResult, error) {
		return PolicyResult{UpstreamProxyURL: upstreamURL}, nil
	}
}
