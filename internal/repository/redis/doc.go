// Package redis provides a Redis-backed quota counter store. Counters live
// in hashes keyed by workspace hash tag so a campaign counter and its
// workspace counter always share a cluster slot and can be updated by one
// Lua script.
package redis
