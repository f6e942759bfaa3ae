package bridge

import (
	"fmt"
	"math/big"
	"strings"
)

// Status is the lifecycle state of a tracked deposit as reported by the
// bridge backend. The happy path is DETECTED -> CONFIRMED -> SENT ->
// COMPLETED; ORPHANED and FAILED are off-path terminals reachable from
// any non-terminal state.
type Status string

const (
	StatusDetected  Status = "DETECTED"
	StatusConfirmed Status = "CONFIRMED"
	StatusSent      Status = "SENT"
	StatusCompleted Status = "COMPLETED"
	StatusOrphaned  Status = "ORPHANED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether no further transition is expected.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusOrphaned, StatusFailed:
		return true
	}
	return false
}

// StatusLabel returns the human-readable label shown next to a deposit.
func StatusLabel(s Status) string {
	switch s {
	case StatusDetected:
		return "Detected"
	case StatusConfirmed:
		return "Confirmed"
	case StatusSent:
		return "Payout sent"
	case StatusCompleted:
		return "Completed"
	case StatusOrphaned:
		return "Orphaned by reorg"
	case StatusFailed:
		return "Failed"
	}
	return "Unknown"
}

// StatusStep maps a status onto the 1..4 progress stepper. The backend
// computes the authoritative step; this is the fallback for records
// fetched without one. Terminal failures report the step they halted at.
func StatusStep(s Status) int {
	switch s {
	case StatusDetected:
		return 1
	case StatusConfirmed, StatusOrphaned:
		return 2
	case StatusSent, StatusFailed:
		return 3
	case StatusCompleted:
		return 4
	}
	return 1
}

// weiExp is the scale of on-wire amounts: integer strings in 1e-18 units.
const weiExp = 18

var weiScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(weiExp), nil)

// FormatWei renders an integer minor-unit amount as a fixed-point
// decimal string with exactly `decimals` fraction digits (truncating,
// never rounding up). Amounts never touch float64.
func FormatWei(amountWei string, decimals int) (string, error) {
	if decimals < 0 || decimals > weiExp {
		return "", fmt.Errorf("decimals out of range: %d", decimals)
	}
	n, ok := new(big.Int).SetString(strings.TrimSpace(amountWei), 10)
	if !ok || n.Sign() < 0 {
		return "", fmt.Errorf("bad wei amount %q", amountWei)
	}
	whole, rem := new(big.Int).QuoRem(n, weiScale, new(big.Int))
	if decimals == 0 {
		return whole.String(), nil
	}
	// Scale the remainder down to the requested precision.
	drop := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(weiExp-decimals)), nil)
	frac := new(big.Int).Quo(rem, drop)
	return fmt.Sprintf("%s.%0*d", whole.String(), decimals, frac), nil
}

// ParseToWei converts a decimal amount string back into an integer wei
// string. FormatWei(ParseToWei(s), d) == s for any s produced by
// FormatWei with d fraction digits.
func ParseToWei(s string) (string, error) {
	s = strings.TrimSpace(s)
	wholePart, fracPart := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		wholePart, fracPart = s[:i], s[i+1:]
	}
	if wholePart == "" && fracPart == "" {
		return "", fmt.Errorf("bad amount %q", s)
	}
	if wholePart == "" {
		wholePart = "0"
	}
	if len(fracPart) > weiExp {
		return "", fmt.Errorf("too many fraction digits in %q", s)
	}
	whole, ok := new(big.Int).SetString(wholePart, 10)
	if !ok || whole.Sign() < 0 {
		return "", fmt.Errorf("bad amount %q", s)
	}
	frac := big.NewInt(0)
	if fracPart != "" {
		frac, ok = new(big.Int).SetString(fracPart, 10)
		if !ok || frac.Sign() < 0 {
			return "", fmt.Errorf("bad amount %q", s)
		}
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(weiExp-len(fracPart))), nil)
		frac.Mul(frac, scale)
	}
	out := new(big.Int).Mul(whole, weiScale)
	out.Add(out, frac)
	return out.String(), nil
}

// ExplorerTxURL joins an explorer base URL and a transaction hash.
func ExplorerTxURL(base, hash string) string {
	if base == "" || hash == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/tx/" + hash
}
