// Package notifier delivers alert messages to the bot owner.
//
// Notifications are queued and sent by a small worker pool through a
// transport.Sender (the Telegram adapter in production), throttled by a token
// bucket. A failed send is logged and reported on the event bus as
// "notifier.failed"; it is not retried.
package notifier
