// Package outcome defines the append-only evaluation outcome records and
// their history store.
//
// One OutcomeRecord is written per evaluated request by the evaluation path
// (asynchronously, never blocking the caller) and read by two consumers: the
// metrics aggregator, which folds records into windowed counters, and the
// impact simulator, which replays candidate rules against the stored
// attribute sets. Records are never mutated.
//
// The SQLite backend uses the CGO-free modernc.org/sqlite driver; history is
// pruned on a retention schedule by the metrics aggregator.
package outcome
