package core

import (
	"fmt"
	"math/big"
)

// ChainConfig holds chain-level configuration for fork scheduling.
// Post-merge, all forks are activated by timestamp. A validator is handed
// this directly from a host-supplied chain spec (see cmd/zeth), not from a
// chain it has synced itself, so the schedule itself is untrusted input.
type ChainConfig struct {
	ChainID       *big.Int
	ShanghaiTime  *uint64
	CancunTime    *uint64
	PragueTime    *uint64
	AmsterdamTime *uint64
}

// Validate rejects a fork schedule that could never occur on a real chain:
// forks must activate in the fixed order Shanghai -> Cancun -> Prague ->
// Amsterdam, each no earlier than the one before it. A fork left unset (nil)
// is ignored; only the forks that are set are checked against each other. A
// malformed or malicious chain spec that reorders them would otherwise make
// ValidateHeader apply the wrong rule set silently instead of failing loud.
func (c *ChainConfig) Validate() error {
	if c.ChainID == nil || c.ChainID.Sign() <= 0 {
		return fmt.Errorf("chain config: chain id must be positive")
	}
	order := []struct {
		name string
		time *uint64
	}{
		{"shanghai", c.ShanghaiTime},
		{"cancun", c.CancunTime},
		{"prague", c.PragueTime},
		{"amsterdam", c.AmsterdamTime},
	}
	var prevName string
	var prev *uint64
	for _, f := range order {
		if f.time == nil {
			continue
		}
		if prev != nil && *f.time < *prev {
			return fmt.Errorf("chain config: %s fork time %d precedes %s fork time %d", f.name, *f.time, prevName, *prev)
		}
		prevName, prev = f.name, f.time
	}
	return nil
}

func isTimestampForked(forkTime *uint64, blockTime uint64) bool {
	if forkTime == nil {
		return false
	}
	return *forkTime <= blockTime
}

// IsShanghai returns whether the given block time is at or past the Shanghai fork.
func (c *ChainConfig) IsShanghai(time uint64) bool {
	return isTimestampForked(c.ShanghaiTime, time)
}

// IsCancun returns whether the given block time is at or past the Cancun fork.
func (c *ChainConfig) IsCancun(time uint64) bool {
	return isTimestampForked(c.CancunTime, time)
}

// IsPrague returns whether the given block time is at or past the Prague fork.
func (c *ChainConfig) IsPrague(time uint64) bool {
	return isTimestampForked(c.PragueTime, time)
}

// IsAmsterdam returns whether the given block time is at or past the Amsterdam fork.
func (c *ChainConfig) IsAmsterdam(time uint64) bool {
	return isTimestampForked(c.AmsterdamTime, time)
}

func newUint64(v uint64) *uint64 { return &v }

// MainnetConfig is the chain config for Ethereum mainnet.
var MainnetConfig = &ChainConfig{
	ChainID:       big.NewInt(1),
	ShanghaiTime:  newUint64(1681338455),
	CancunTime:    newUint64(1710338135),
	PragueTime:    nil, // not yet scheduled
	AmsterdamTime: nil, // not yet scheduled
}

// TestConfig is a chain config with all forks active at genesis (time 0).
var TestConfig = &ChainConfig{
	ChainID:       big.NewInt(1337),
	ShanghaiTime:  newUint64(0),
	CancunTime:    newUint64(0),
	PragueTime:    newUint64(0),
	AmsterdamTime: newUint64(0),
}
