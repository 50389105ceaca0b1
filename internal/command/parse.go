package command

import (
	"strconv"
	"strings"
)

// Kind tags a parsed Command.
type Kind int

const (
	KindUnknown Kind = iota
	KindMin
	KindMax
	KindStatus
	KindHelp
	// KindInvalid is a /min or /max whose argument is not a positive integer.
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindMin:
		return "min"
	case KindMax:
		return "max"
	case KindStatus:
		return "status"
	case KindHelp:
		return "help"
	case KindInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Command is the result of parsing one inbound message.
type Command struct {
	Kind Kind
	// Value is the new threshold for KindMin and KindMax.
	Value int64
	// For names the rejected command (KindMin or KindMax) when Kind is KindInvalid.
	For Kind
	// Text is the trimmed input.
	Text string
}

// Parse turns message text into a Command. It never fails: anything it does not
// recognize becomes KindUnknown.
func Parse(text string) Command {
	text = strings.TrimSpace(text)
	cmd := Command{Kind: KindUnknown, Text: text}
	if !strings.HasPrefix(text, "/") {
		return cmd
	}

	fields := strings.Fields(text)
	name := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	// "/min@feebot" is how Telegram addresses a specific bot in groups.
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	args := fields[1:]

	switch name {
	case "min", "max":
		k := KindMin
		if name == "max" {
			k = KindMax
		}
		v, ok := positiveArg(args)
		if !ok {
			return Command{Kind: KindInvalid, For: k, Text: text}
		}
		return Command{Kind: k, Value: v, Text: text}
	case "status":
		cmd.Kind = KindStatus
	case "help", "start":
		cmd.Kind = KindHelp
	}
	return cmd
}

func positiveArg(args []string) (int64, bool) {
	if len(args) == 0 {
		return 0, false
	}
	v, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
