// Package notifier delivers one text to a list of chats.
//
// Each recipient is attempted independently: a failure for one chat never
// stops delivery to the others. Sends share a token-bucket rate limit and are
// retried with jittered exponential backoff. Permanent failures (unknown chat,
// bot removed from the channel) are not retried, and a server-requested
// back-off is honored when it fits within RetryMaxDelay.
//
// The service delegates delivery to a transport.Sender (the Telegram adapter
// in production).
package notifier
