package config

import "vaultstrat/native/strategy"

// Logging controls the structured logger and optional file rotation.
type Logging struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
	Compress   bool   `toml:"Compress"`
}

const (
	DefaultFeeNumerator   = uint64(9975)
	DefaultFeeDenominator = uint64(10_000)
)

// Strategy selects the fee tier of the pools strategies target and the
// workers approved at startup.
type Strategy struct {
	FeeNumerator   uint64   `toml:"FeeNumerator"`
	FeeDenominator uint64   `toml:"FeeDenominator"`
	Workers        []string `toml:"Workers"`
}

type Pauses struct {
	PartialCloseLiquidate       bool `toml:"PartialCloseLiquidate"`
	Liquidate                   bool `toml:"Liquidate"`
	AddBaseTokenOnly            bool `toml:"AddBaseTokenOnly"`
	PartialCloseMinimizeTrading bool `toml:"PartialCloseMinimizeTrading"`
}

// IsPaused implements the pause view consulted by strategy engines.
func (p Pauses) IsPaused(module string) bool {
	switch module {
	case strategy.ModulePrefix + strategy.NamePartialCloseLiquidate:
		return p.PartialCloseLiquidate
	case strategy.ModulePrefix + strategy.NameLiquidate:
		return p.Liquidate
	case strategy.ModulePrefix + strategy.NameAddBaseTokenOnly:
		return p.AddBaseTokenOnly
	case strategy.ModulePrefix + strategy.NamePartialCloseMinimizeTrading:
		return p.PartialCloseMinimizeTrading
	default:
		return false
	}
}

// Metrics configures the Prometheus listener. An empty address disables it.
type Metrics struct {
	ListenAddress string `toml:"ListenAddress"`
}
