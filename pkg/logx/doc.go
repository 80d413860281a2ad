// Package logx configures vrcinvited's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - An optional mirror hook (min-level + rate limiting) so the invite
//     progress surface can echo log lines without importing zerolog
package logx
