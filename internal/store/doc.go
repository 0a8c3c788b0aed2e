// Package store keeps an in-memory table of trap sources: who has sent
// notifications, under which names, how many matched a rule, and when.
// Entries expire after a TTL with no traffic.
package store
