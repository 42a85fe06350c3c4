// Package decisionlog records authorization decisions.
//
// A Logger filters entries by level and hands them to one sink chosen by the
// bootstrap log type:
//
//   - OFF discards entries.
//   - STDOUT writes one JSON line per entry.
//   - MEMORY keeps entries in SQLite, expiring them by TTL and count, so the
//     host can read them back by id or request id.
//   - LOCK posts batches to the lock service audit endpoint.
//
// Sink failures are counted in metrics and logged. They never change the
// outcome of the authorization that produced the entry.
package decisionlog
