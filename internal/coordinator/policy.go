package coordinator

import (
	"fmt"
	"strings"

	xerrors "DealPilot/internal/errors"
)

// PollMode selects how the poll loop terminates.
type PollMode string

const (
	// PollBounded stops after MaxCycles; leftovers are reported unresolved.
	PollBounded PollMode = "bounded"
	// PollUntilComplete loops until everyone is researched, capped by HardCeiling.
	PollUntilComplete PollMode = "until_complete"
)

// DefaultMaxCycles is the bounded policy's default cycle count.
const DefaultMaxCycles = 3

// PollPolicy is the Phase 2 termination policy.
type PollPolicy struct {
	Mode        PollMode `json:"mode" yaml:"mode"`
	MaxCycles   int      `json:"max_cycles" yaml:"max_cycles"`
	HardCeiling int      `json:"hard_ceiling" yaml:"hard_ceiling"`
}

// ParsePollMode accepts the configured policy name.
func ParsePollMode(s string) (PollMode, error) {
	switch PollMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", PollBounded:
		return PollBounded, nil
	case PollUntilComplete, "unbounded":
		return PollUntilComplete, nil
	default:
		return "", xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("unknown poll policy %q", s))
	}
}

// Validate checks the policy can terminate.
func (p PollPolicy) Validate() error {
	switch p.Mode {
	case "", PollBounded:
		if p.MaxCycles < 0 {
			return xerrors.New(xerrors.CodeInvalidArgument, "max_cycles must not be negative")
		}
	case PollUntilComplete:
		if p.HardCeiling <= 0 {
			return xerrors.New(xerrors.CodeInvalidArgument, "until_complete polling requires a positive hard_ceiling")
		}
	default:
		return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("unknown poll policy %q", p.Mode))
	}
	return nil
}

// Limit is the maximum number of poll cycles the policy allows.
func (p PollPolicy) Limit() int {
	if p.Mode == PollUntilComplete {
		return p.HardCeiling
	}
	if p.MaxCycles <= 0 {
		return DefaultMaxCycles
	}
	return p.MaxCycles
}
