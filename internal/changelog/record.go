// Package changelog implements the ordered, per-key mutation log emitted by
// the path/status store and consumed at-least-once downstream.
package changelog

import (
	"context"
	"errors"
	"time"
)

// Op identifies the kind of store mutation a Record captures.
type Op string

// Mutation kinds carried on the log.
const (
	OpInsert Op = "INSERT"
	OpModify Op = "MODIFY"
	OpRemove Op = "REMOVE"
)

// Record is one store mutation. Sequence increases monotonically within a
// partition key; records for different partitions carry independent
// sequences. Records are never mutated after being appended.
type Record struct {
	// Sequence is the per-partition delivery token assigned on append.
	Sequence uint64
	// Op is the mutation kind.
	Op Op
	// PartitionKey and SortKey are the composite key attributes of the
	// mutated row (e.g. "URL#example.com" / "PATH#/about").
	PartitionKey string
	SortKey      string
	// Old and New hold the row's attribute images before and after the
	// mutation; Old is empty for inserts, New for removes.
	Old map[string]string
	New map[string]string
	// At is the mutation timestamp recorded by the store.
	At time.Time
}

// Validate performs coarse shape checks before a record is accepted.
func (r Record) Validate() error {
	if r.PartitionKey == "" {
		return errors.New("partition key is required")
	}
	if r.SortKey == "" {
		return errors.New("sort key is required")
	}
	switch r.Op {
	case OpInsert, OpModify, OpRemove:
	default:
		return errors.New("unknown op")
	}
	return nil
}

// Appender accepts store mutations for the log. The store holds one of these
// so it stays decoupled from delivery mechanics.
type Appender interface {
	Append(rec Record)
}

// Consumer receives ordered batches at least once. It returns the subset of
// the batch that failed so only those records are redelivered; a nil return
// acknowledges the whole batch.
type Consumer interface {
	Consume(ctx context.Context, batch []Record) []Record
}
