package core

import (
	"math/big"
)

// ForkOrder lists the hard forks this validator can schedule, in activation
// order. Paris (the Merge) is the baseline: every block this validator
// accepts is post-merge, so block-number forks never appear here and the
// remaining forks activate by timestamp only.
var ForkOrder = []string{
	"Paris",
	"Shanghai",
	"Cancun",
	"Prague",
	"Amsterdam",
}

// ActiveFork returns the name of the most recent active fork at the given
// timestamp. Returns "Paris" when no timestamp fork has activated yet.
func (c *ChainConfig) ActiveFork(time uint64) string {
	if c.IsAmsterdam(time) {
		return "Amsterdam"
	}
	if c.IsPrague(time) {
		return "Prague"
	}
	if c.IsCancun(time) {
		return "Cancun"
	}
	if c.IsShanghai(time) {
		return "Shanghai"
	}
	return "Paris"
}

// MainnetConfigFunc returns a copy of the mainnet chain configuration, so a
// caller staging experimental fork times cannot mutate the global.
func MainnetConfigFunc() *ChainConfig {
	cfg := *MainnetConfig
	cfg.ChainID = new(big.Int).Set(MainnetConfig.ChainID)
	return &cfg
}

// TestnetConfig returns a Sepolia-like chain configuration with Shanghai
// and Cancun active at genesis and later forks staged at increasing times.
func TestnetConfig() *ChainConfig {
	return &ChainConfig{
		ChainID:       big.NewInt(11155111),
		ShanghaiTime:  newUint64(0),
		CancunTime:    newUint64(0),
		PragueTime:    newUint64(1000),
		AmsterdamTime: newUint64(2000),
	}
}

// DevConfig returns a development/local chain configuration with every
// scheduled fork active at genesis (timestamp 0).
func DevConfig() *ChainConfig {
	return &ChainConfig{
		ChainID:       big.NewInt(1337),
		ShanghaiTime:  newUint64(0),
		CancunTime:    newUint64(0),
		PragueTime:    newUint64(0),
		AmsterdamTime: newUint64(0),
	}
}
