package command

import (
	"fmt"

	"feebot/internal/monitor"
	"feebot/internal/threshold"
	kit "feebot/internal/transport"
)

const (
	replyUnknown    = "❓ Unknown command. Use /help to see available commands."
	replyFetchError = "❌ Unable to fetch current fee rate."
)

const helpText = "ℹ️ <b>Bitcoin Fee Rate Bot Commands</b>:\n\n" +
	"- <b>/min &lt;number&gt;</b>: Set your minimum fee rate threshold in sat/vByte.\n" +
	"- <b>/max &lt;number&gt;</b>: Set your maximum fee rate threshold in sat/vByte.\n" +
	"- <b>/status</b>: Check your current thresholds and the current fee rate.\n\n" +
	"The bot will notify you when the fee rate crosses your thresholds."

// MenuCommands is the command list published to the Telegram menu.
func MenuCommands() []kit.BotCommand {
	return []kit.BotCommand{
		{Command: "min", Description: "Set the minimum fee threshold (sat/vByte)"},
		{Command: "max", Description: "Set the maximum fee threshold (sat/vByte)"},
		{Command: "status", Description: "Show thresholds and the current fee rate"},
		{Command: "help", Description: "Show available commands"},
	}
}

func thresholdName(k Kind) string {
	if k == KindMax {
		return "maximum"
	}
	return "minimum"
}

func invalidReply(k Kind) string {
	return fmt.Sprintf("⚠️ Please provide a valid positive number for the %s threshold.", thresholdName(k))
}

func setReply(k Kind, v int64) string {
	name := "Minimum"
	if k == KindMax {
		name = "Maximum"
	}
	return fmt.Sprintf("✅ %s threshold set to %d sat/vByte.", name, v)
}

func statusReply(st monitor.Status) string {
	return fmt.Sprintf("📊 Your settings:\n- Minimum threshold: %d sat/vByte\n- Maximum threshold: %d sat/vByte\n\nCurrent fee rate: %s sat/vByte (<b>%s</b>).",
		st.Thresholds.Min, st.Thresholds.Max, threshold.FormatFee(st.Fee.FastestFee), st.Band)
}
