package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"vaultstrat/crypto"

	"github.com/BurntSushi/toml"
)

type Config struct {
	DataDir           string   `toml:"DataDir"`
	Environment       string   `toml:"Environment"`
	OwnerKeystorePath string   `toml:"OwnerKeystorePath"`
	Logging           Logging  `toml:"logging"`
	Strategy          Strategy `toml:"strategy"`
	Pauses            Pauses   `toml:"pauses"`
	Metrics           Metrics  `toml:"metrics"`

	passphrase PassphraseSource
}

// PassphraseSource supplies the owner keystore passphrase on demand.
type PassphraseSource func() (string, error)

type Option func(*Config)

// WithKeystorePassphraseSource sets how the owner keystore passphrase is
// obtained. Without it the keystore is unencrypted (empty passphrase).
func WithKeystorePassphraseSource(src PassphraseSource) Option {
	return func(c *Config) { c.passphrase = src }
}

// Load loads the configuration from the given path.
func Load(path string, opts ...Option) (*Config, error) {
	cfg := &Config{}
	for _, opt := range opts {
		opt(cfg)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path, cfg)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0].String())
	}

	applyDefaults(cfg)
	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./stratsim-data"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "local"
	}
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Strategy.FeeNumerator == 0 && cfg.Strategy.FeeDenominator == 0 {
		cfg.Strategy.FeeNumerator = DefaultFeeNumerator
		cfg.Strategy.FeeDenominator = DefaultFeeDenominator
	}
	if cfg.Strategy.Workers == nil {
		cfg.Strategy.Workers = []string{}
	}
}

// OwnerPassphrase resolves the owner keystore passphrase.
func (c *Config) OwnerPassphrase() (string, error) {
	if c.passphrase == nil {
		return "", nil
	}
	return c.passphrase()
}

// OwnerKey decrypts the owner keystore.
func (c *Config) OwnerKey() (*crypto.PrivateKey, error) {
	pass, err := c.OwnerPassphrase()
	if err != nil {
		return nil, err
	}
	return crypto.LoadFromKeystore(c.OwnerKeystorePath, pass)
}

func (c *Config) writeOwnerKeystore(path string) error {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	pass, err := c.OwnerPassphrase()
	if err != nil {
		return err
	}
	return crypto.SaveToKeystore(path, key, pass, crypto.StandardKeystore)
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.OwnerKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		if err := cfg.writeOwnerKeystore(keystorePath); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.OwnerKeystorePath != keystorePath {
		cfg.OwnerKeystorePath = keystorePath
		return persist(configPath, cfg)
	}

	return nil
}

// createDefault creates and saves a default configuration file together with
// a fresh owner keystore.
func createDefault(path string, cfg *Config) (*Config, error) {
	applyDefaults(cfg)

	keystorePath := defaultKeystorePath(path)
	if err := cfg.writeOwnerKeystore(keystorePath); err != nil {
		return nil, err
	}
	cfg.OwnerKeystorePath = keystorePath

	if err := persist(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "owner.keystore")
}
