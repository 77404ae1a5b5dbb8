package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"vaultstrat/crypto"
	"vaultstrat/native/amm"
	"vaultstrat/native/strategy"
)

func writeKeystore(t *testing.T, dir string) (string, common.Address) {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	path := filepath.Join(dir, "owner.keystore")
	if err := crypto.SaveToKeystore(path, key, "", crypto.LightKeystore); err != nil {
		t.Fatalf("save keystore: %v", err)
	}
	return path, key.Address()
}

func writeConfig(t *testing.T, dir, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "stratsim.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadParsesSections(t *testing.T) {
	dir := t.TempDir()
	keystorePath, _ := writeKeystore(t, dir)
	path := writeConfig(t, dir, fmt.Sprintf(`DataDir = "./data"
Environment = "test"
OwnerKeystorePath = "%s"

[logging]
Level = "debug"
File = "./logs/stratsim.log"
MaxSizeMB = 10
MaxBackups = 2

[strategy]
FeeNumerator = 997
FeeDenominator = 1000
Workers = ["0x000000000000000000000000000000000000bEEF"]

[pauses]
Liquidate = true

[metrics]
ListenAddress = "127.0.0.1:9464"
`, keystorePath))

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Environment != "test" || cfg.DataDir != "./data" {
		t.Fatalf("unexpected top level %+v", cfg)
	}
	if fee := cfg.FeeTier(); fee != (amm.Fee{Numerator: 997, Denominator: 1000}) {
		t.Fatalf("unexpected fee %+v", fee)
	}
	workers := cfg.WorkerAddresses()
	if len(workers) != 1 || workers[0] != common.HexToAddress("0xbeef") {
		t.Fatalf("unexpected workers %v", workers)
	}
	if level, err := cfg.LogLevel(); err != nil || level != slog.LevelDebug {
		t.Fatalf("unexpected log level %v %v", level, err)
	}
	if !cfg.Pauses.IsPaused(strategy.ModulePrefix+strategy.NameLiquidate) ||
		cfg.Pauses.IsPaused(strategy.ModulePrefix+strategy.NamePartialCloseLiquidate) {
		t.Fatalf("unexpected pause mapping %+v", cfg.Pauses)
	}
	if cfg.Metrics.ListenAddress != "127.0.0.1:9464" {
		t.Fatalf("unexpected metrics address %q", cfg.Metrics.ListenAddress)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	keystorePath, _ := writeKeystore(t, dir)
	path := writeConfig(t, dir, fmt.Sprintf("OwnerKeystorePath = %q\n", keystorePath))

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.FeeTier() != amm.DefaultFee {
		t.Fatalf("expected default fee tier, got %+v", cfg.FeeTier())
	}
	if cfg.Logging.Level != "info" || cfg.Environment != "local" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadCreatesDefaultWithKeystore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conf", "stratsim.toml")

	cfg, err := Load(path, WithKeystorePassphraseSource(func() (string, error) { return "pass", nil }))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.OwnerKeystorePath != filepath.Join(dir, "conf", "owner.keystore") {
		t.Fatalf("unexpected keystore path %q", cfg.OwnerKeystorePath)
	}
	addr, err := crypto.KeystoreAddress(cfg.OwnerKeystorePath)
	if err != nil {
		t.Fatalf("keystore not created: %v", err)
	}
	key, err := cfg.OwnerKey()
	if err != nil {
		t.Fatalf("owner key: %v", err)
	}
	if key.Address() != addr {
		t.Fatalf("decrypted key does not match keystore address")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read persisted config: %v", err)
	}
	if !strings.Contains(string(data), "OwnerKeystorePath") {
		t.Fatalf("persisted config missing keystore path:\n%s", data)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.OwnerKeystorePath != cfg.OwnerKeystorePath {
		t.Fatalf("reload changed keystore path")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	keystorePath, _ := writeKeystore(t, dir)
	path := writeConfig(t, dir, fmt.Sprintf("OwnerKeystorePath = %q\nValidatorKey = \"abc\"\n", keystorePath))
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "ValidatorKey") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestValidateConfig(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}
	if err := ValidateConfig(base()); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	cases := map[string]func(*Config){
		"fee above one":   func(c *Config) { c.Strategy.FeeNumerator = 10_001 },
		"zero numerator":  func(c *Config) { c.Strategy.FeeNumerator, c.Strategy.FeeDenominator = 0, 10 },
		"bad worker":      func(c *Config) { c.Strategy.Workers = []string{"0xnotanaddress"} },
		"bad level":       func(c *Config) { c.Logging.Level = "loud" },
		"negative backup": func(c *Config) { c.Logging.MaxBackups = -1 },
	}
	for name, mutate := range cases {
		cfg := base()
		mutate(cfg)
		if err := ValidateConfig(cfg); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLogLevelRejectsUnknownName(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Logging.Level = "loud"
	if _, err := cfg.LogLevel(); err == nil {
		t.Fatalf("expected an error for an unknown level")
	}
	cfg.Logging.Level = " WARN "
	if level, err := cfg.LogLevel(); err != nil || level != slog.LevelWarn {
		t.Fatalf("unexpected level %v err %v", level, err)
	}
}
