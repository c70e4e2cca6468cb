// Package mutation groups DOM change records into batches.
//
// A Batch is what one observer callback hands to the reconciler: the
// records of a single delivery, compressed, stamped with a UUIDv7 and a
// per-reconciler sequence number for log correlation.
package mutation

import (
	"time"

	"github.com/hazyhaar/playerwatch/dom"
	"github.com/hazyhaar/playerwatch/idgen"
)

// Batch is one observer delivery.
type Batch struct {
	ID        string
	Seq       uint64
	Records   []dom.Mutation
	Timestamp int64 // epoch milliseconds
}

// NewBatch compresses records and stamps the result.
func NewBatch(seq uint64, records []dom.Mutation) *Batch {
	return &Batch{
		ID:        idgen.New(),
		Seq:       seq,
		Records:   Compress(records),
		Timestamp: time.Now().UnixMilli(),
	}
}

// First returns the first record, or nil for an empty batch.
func (b *Batch) First() *dom.Mutation {
	if b == nil || len(b.Records) == 0 {
		return nil
	}
	return &b.Records[0]
}

// Targets returns the distinct record targets in order of first appearance.
func (b *Batch) Targets() []dom.Element {
	var out []dom.Element
	for _, r := range b.Records {
		if r.Target == nil {
			continue
		}
		dup := false
		for _, t := range out {
			if t.Same(r.Target) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, r.Target)
		}
	}
	return out
}
