// chain_config_forks.go provides a structured fork-schedule representation
// over ChainConfig: enumerating scheduled/active/pending forks and comparing
// two chain configs for compatibility. Everything here is derived from the
// config's timestamp table; no fork logic branches on code.
package core

import (
	"fmt"
)

// ForkID identifies a fork by name and activation timestamp. A nil
// Timestamp means the fork exists in the schedule but has no activation
// set yet.
type ForkID struct {
	Name      string
	Timestamp *uint64
}

// String returns a human-readable representation of the fork.
func (f ForkID) String() string {
	if f.Timestamp != nil {
		return fmt.Sprintf("%s@time:%d", f.Name, *f.Timestamp)
	}
	return fmt.Sprintf("%s@pending", f.Name)
}

// IsActive returns true if the fork is active at the given timestamp.
func (f ForkID) IsActive(time uint64) bool {
	return f.Timestamp != nil && *f.Timestamp <= time
}

// ForkSchedule returns the ordered list of timestamp forks defined in the
// chain configuration. Forks with nil activation are included as pending.
func (c *ChainConfig) ForkSchedule() []ForkID {
	return []ForkID{
		{Name: "Shanghai", Timestamp: c.ShanghaiTime},
		{Name: "Cancun", Timestamp: c.CancunTime},
		{Name: "Prague", Timestamp: c.PragueTime},
		{Name: "Amsterdam", Timestamp: c.AmsterdamTime},
	}
}

// ActiveForks returns only the forks active at the given timestamp.
func (c *ChainConfig) ActiveForks(time uint64) []ForkID {
	var active []ForkID
	for _, f := range c.ForkSchedule() {
		if f.IsActive(time) {
			active = append(active, f)
		}
	}
	return active
}

// PendingForks returns forks that have an activation timestamp set but are
// not yet active at the given time.
func (c *ChainConfig) PendingForks(time uint64) []ForkID {
	var pending []ForkID
	for _, f := range c.ForkSchedule() {
		if f.Timestamp != nil && !f.IsActive(time) {
			pending = append(pending, f)
		}
	}
	return pending
}

// UnscheduledForks returns forks with no activation timestamp.
func (c *ChainConfig) UnscheduledForks() []ForkID {
	var unscheduled []ForkID
	for _, f := range c.ForkSchedule() {
		if f.Timestamp == nil {
			unscheduled = append(unscheduled, f)
		}
	}
	return unscheduled
}

// ForkConfigDiff represents a difference between two chain configs for a
// specific fork.
type ForkConfigDiff struct {
	ForkName string
	Local    string // local activation (e.g., "time:1000" or "nil")
	Remote   string // remote activation
}

// ConfigDiff compares two chain configurations and returns the forks whose
// activation timestamps differ.
func ConfigDiff(local, remote *ChainConfig) []ForkConfigDiff {
	if local == nil || remote == nil {
		return nil
	}

	var diffs []ForkConfigDiff
	localForks := local.ForkSchedule()
	remoteForks := remote.ForkSchedule()

	for i := range localForks {
		lStr := forkPointString(localForks[i])
		rStr := forkPointString(remoteForks[i])
		if lStr != rStr {
			diffs = append(diffs, ForkConfigDiff{
				ForkName: localForks[i].Name,
				Local:    lStr,
				Remote:   rStr,
			})
		}
	}
	return diffs
}

// forkPointString returns a string representation of a fork's activation point.
func forkPointString(f ForkID) string {
	if f.Timestamp != nil {
		return fmt.Sprintf("time:%d", *f.Timestamp)
	}
	return "nil"
}

// ConfigCompatError represents an incompatibility between two chain configs
// at a specific fork.
type ConfigCompatError struct {
	ForkName  string
	LocalVal  string
	RemoteVal string
	HeadTime  uint64
}

func (e *ConfigCompatError) Error() string {
	return fmt.Sprintf("incompatible fork %q: local=%s remote=%s (head time=%d)",
		e.ForkName, e.LocalVal, e.RemoteVal, e.HeadTime)
}

// CheckConfigCompatible verifies that two chain configs agree on every fork
// already active at the given head timestamp: a disagreement on a fork still
// in the future is staging, not divergence. Returns the first incompatible
// fork found, or nil.
func CheckConfigCompatible(local, remote *ChainConfig, headTime uint64) *ConfigCompatError {
	if local == nil || remote == nil {
		return nil
	}

	for _, d := range ConfigDiff(local, remote) {
		for _, f := range local.ForkSchedule() {
			if f.Name != d.ForkName {
				continue
			}
			if f.IsActive(headTime) {
				return &ConfigCompatError{
					ForkName:  d.ForkName,
					LocalVal:  d.Local,
					RemoteVal: d.Remote,
					HeadTime:  headTime,
				}
			}
			break
		}
	}
	return nil
}

// NextForkAfter returns the next fork that will activate after the given
// timestamp, or an empty ForkID if none is scheduled.
func (c *ChainConfig) NextForkAfter(time uint64) ForkID {
	pending := c.PendingForks(time)
	if len(pending) == 0 {
		return ForkID{}
	}
	return pending[0]
}
