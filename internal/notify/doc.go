// Package notify pushes invitation run summaries to a Telegram chat.
//
// It is an async pipeline: bounded queue, single sender worker, token-bucket
// rate limit, retry with backoff, and a dedup window so repeated identical
// summaries (e.g. scheduled runs that keep finding nobody) are suppressed.
// Dedup state optionally persists through the storage layer so it survives
// restarts.
package notify
