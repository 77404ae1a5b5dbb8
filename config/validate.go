package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"vaultstrat/native/amm"
)

func ValidateConfig(c *Config) error {
	if err := c.FeeTier().Validate(); err != nil {
		return fmt.Errorf("strategy: %w", err)
	}
	for i, worker := range c.Strategy.Workers {
		if !common.IsHexAddress(strings.TrimSpace(worker)) {
			return fmt.Errorf("strategy: workers[%d] %q is not a hex address", i, worker)
		}
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 || c.Logging.MaxAgeDays < 0 {
		return fmt.Errorf("logging: rotation limits must not be negative")
	}
	return nil
}

// FeeTier returns the configured pool fee.
func (c *Config) FeeTier() amm.Fee {
	return amm.Fee{Numerator: c.Strategy.FeeNumerator, Denominator: c.Strategy.FeeDenominator}
}

// WorkerAddresses parses the configured workers. Invalid entries are skipped;
// ValidateConfig reports them.
func (c *Config) WorkerAddresses() []common.Address {
	out := make([]common.Address, 0, len(c.Strategy.Workers))
	for _, worker := range c.Strategy.Workers {
		worker = strings.TrimSpace(worker)
		if common.IsHexAddress(worker) {
			out = append(out, common.HexToAddress(worker))
		}
	}
	return out
}

func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.Logging.Level))); err != nil {
		return level, fmt.Errorf("logging: %w", err)
	}
	return level, nil
}
