// Package zone manages the on-disk files belonging to one zone slice and
// the mapping from keys to byte offsets within them.
//
// Each Directory owns one generation of a data file and an index file pair
// (numbered like 000001.dat / 000001.ind). Records are appended to the data
// file; a compact index entry is appended to the index file afterwards so
// that reopening only needs to replay the index. If the index file lags the
// data file after a crash, the data file tail is rescanned and the index is
// repaired.
//
// Guarantees:
//
//   - Every Append and Compact durably flushes before returning, so a
//     successful write survives an immediate crash.
//   - Offsets handed out by Append are valid until the next Compact; after
//     compaction the generation number changes and stale Locations are
//     rejected by Read.
//   - Compact is mutually exclusive with mutation on the same Directory via
//     the directory lock, and does not block other zones.
//
// A Directory holds payload bytes opaquely: the at-rest transform pipeline
// is applied by the worker bot before Append and after Read.
package zone
