// Package state keeps per-user conversation state and temporary data.
// Sessions live in memory; after a restart every user is idle again.
package state
