// Package batch describes per-item outcomes of multi-document writes.
package batch

import "github.com/kailas-cloud/docdex/internal/domain/document"

// ItemStatus is the processing outcome of a single batch item.
type ItemStatus string

// Batch item status values.
const (
	StatusOK    ItemStatus = "ok"
	StatusError ItemStatus = "error"
	// StatusSkipped marks items after the first failure of an ordered batch.
	StatusSkipped ItemStatus = "skipped"
)

// Result is the outcome of processing one item in a batch operation.
type Result struct {
	index  int
	id     document.Value
	status ItemStatus
	err    error
}

// NewOK creates a successful batch result.
func NewOK(index int, id document.Value) Result {
	return Result{index: index, id: id, status: StatusOK}
}

// NewError creates a failed batch result.
func NewError(index int, id document.Value, err error) Result {
	return Result{index: index, id: id, status: StatusError, err: err}
}

// NewSkipped creates a result for an item that was never attempted.
func NewSkipped(index int) Result {
	return Result{index: index, status: StatusSkipped}
}

// Index returns the position of the item in the batch.
func (r Result) Index() int { return r.index }

// ID returns the document identifier, null when unknown.
func (r Result) ID() document.Value { return r.id }

// Status returns the processing outcome.
func (r Result) Status() ItemStatus { return r.status }

// Err returns the error, if any.
func (r Result) Err() error { return r.err }

// FirstError returns the first failed item's error, or nil.
func FirstError(results []Result) error {
	for _, r := range results {
		if r.status == StatusError {
			return r.err
		}
	}
	return nil
}

// InsertedIDs returns the identifiers of successful items in order.
func InsertedIDs(results []Result) []document.Value {
	out := make([]document.Value, 0, len(results))
	for _, r := range results {
		if r.status == StatusOK {
			out = append(out, r.id)
		}
	}
	return out
}
