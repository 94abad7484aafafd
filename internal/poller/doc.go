// Package poller implements the periodic refresh driver.
//
// The poller:
//   - Calls Refresh on every live stream manager each interval
//   - Bounds concurrent refreshes
//   - Treats refresh errors as local; a failed target is retried next cycle
//
// Refresh re-sends the pull query (get_latest) on open channels and reopens
// closed list feeds that have no reconnect pending.
package poller
