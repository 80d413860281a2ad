// Package storage is the optional persistence layer: an append-only invite
// journal (who was invited, when, with what outcome) plus a small dedup KV
// used to suppress repeated notifications.
//
// Two drivers: "file" (dependency-free jsonl + snapshot) and "sqlite"
// (behind the `sqlite` build tag). Empty/none disables storage entirely.
package storage
