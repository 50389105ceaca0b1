// Package threshold classifies fee rates against min/max bounds.
package threshold

import (
	"fmt"
	"strconv"
)

// Band is the classification of a fee against Thresholds.
type Band int

const (
	Unset Band = iota
	Below
	Inside
	Above
)

func (b Band) String() string {
	switch b {
	case Below:
		return "below"
	case Inside:
		return "inside"
	case Above:
		return "above"
	default:
		return "unset"
	}
}

// Defaults used when no thresholds are configured.
const (
	DefaultMin int64 = 2
	DefaultMax int64 = 10
)

// Thresholds are inclusive fee bounds in sat/vByte. Min < Max is expected but not enforced.
type Thresholds struct {
	Min int64
	Max int64
}

func Default() Thresholds { return Thresholds{Min: DefaultMin, Max: DefaultMax} }

// Classify returns Below when fee < Min, Above when fee > Max, otherwise Inside.
// Fees equal to a bound are Inside.
func Classify(fee float64, t Thresholds) Band {
	switch {
	case fee < float64(t.Min):
		return Below
	case fee > float64(t.Max):
		return Above
	default:
		return Inside
	}
}

// TransitionMessage is the notification text sent when the band changes to b.
// It uses Telegram HTML markup.
func TransitionMessage(b Band, fee float64, t Thresholds) string {
	current := fmt.Sprintf("\n\nCurrent fee rate: %s sat/vByte.", FormatFee(fee))
	switch b {
	case Below:
		return fmt.Sprintf("🚨 Fee rate has dropped <b>below</b> your minimum threshold of %d sat/vByte.", t.Min) + current
	case Above:
		return fmt.Sprintf("🚨 Fee rate has risen <b>above</b> your maximum threshold of %d sat/vByte.", t.Max) + current
	case Inside:
		return "✅ Fee rate has moved <b>back inside</b> your thresholds." + current
	default:
		return ""
	}
}

// FormatFee renders a fee without trailing zeros ("12", "3.5").
func FormatFee(fee float64) string {
	return strconv.FormatFloat(fee, 'f', -1, 64)
}
