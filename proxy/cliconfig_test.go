package proxy

import (
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestLoadCLIConfigDefaults(t *testing.T) {
	c := qt.New(t)

	cfg, err := LoadCLIConfig("")
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Addr, qt.Equals, ":8000")
	c.Assert(cfg.Realm, qt.Equals, "ProxyChain")
	c.Assert(cfg.Verbose, qt.IsFalse)
}

func TestLoadCLIConfigOverlaysYAMLFile(t *testing.T) {
	c := qt.New(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	err := os.WriteFile(path, []byte("addr: \":9090\"\nrealm: Custom\nverbose: true\n"), 0o600)
	c.Assert(err, qt.IsNil)

	cfg, err := LoadCLIConfig(path)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Addr, qt.Equals, ":9090")
	c.Assert(cfg.Realm, qt.Equals, "Custom")
	c.Assert(cfg.Verbose, qt.IsTrue)
}

func TestLoadCLIConfigEnvOverridesFile(t *testing.T) {
	c := qt.New(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	err := os.WriteFile(path, []byte("realm: FromFile\n"), 0o600)
	c.Assert(err, qt.IsNil)

	t.Setenv("PROXYCHAIN_REALM", "FromEnv")

	cfg, err := LoadCLIConfig(path)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Realm, qt.Equals, "FromEnv")
}

func TestToServerConfigParsesUpstream(t *testing.T) {
	c := qt.New(t)

	cliCfg := CLIConfig{Addr: ":1234", Realm: "R", Upstream: "socks://s:1080"}
	serverCfg, err := cliCfg.ToServerConfig()
	c.Assert(err, qt.IsNil)
	c.Assert(serverCfg.Port, qt.Equals, 1234)
	c.Assert(serverCfg.AuthRealm, qt.Equals, "R")
	c.Assert(serverCfg.Policy, qt.IsNotNil)

	result, err := serverCfg.Policy(PolicyInput{})
	c.Assert(err, qt.IsNil)
	c.Assert(result.UpstreamProxyURL, qt.Equals, "socks://s:1080")
}

func TestToServerConfigRejectsInvalidAddr(t *testing.T) {
	c := qt.New(t)

	cliCfg := CLIConfig{Addr: "not-an-addr"}
	_, err := cliCfg.ToServerConfig()
	c.Assert(err, qt.IsNotNil)
}
