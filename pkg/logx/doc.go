// Package logx configures linkkibot's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - console output readable (short timestamp + short caller)
//   - file output JSON-structured
//   - an optional Telegram sink for operator alerts (min-level + rate limiting)
//
// The Telegram sink is asynchronous; Close drains what is queued so a one-shot
// run does not lose the warnings it logged just before exiting.
package logx
