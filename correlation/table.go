// Package correlation implements the client-side correlation table: the
// map from a pending call's id (or a pending batch's id-set) to the future
// that settles when its response, error, or timeout arrives.
//
// This generalizes the teacher's transport.ClientTransport — a sync.Map
// keyed by a binary-protocol sequence number with a recvLoop draining
// responses into per-call channels — to the two key shapes spec §4.4
// requires: a single JSON-RPC id, and the exact id-set of an outgoing
// batch's non-notification requests (the protocol defines no batch
// correlation id, so the id-set itself is the key).
package correlation

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"jaysonic/future"
	"jaysonic/message"
	"jaysonic/rpcerr"
)

// ErrBatchHadErrors marks a settled batch future whose response array
// contained at least one error entry. The batch's raw bytes are still the
// future's value — per spec §4.4 the whole response array is "the batch
// value" whether resolving or rejecting.
var ErrBatchHadErrors = errors.New("jaysonic: batch response contained an error entry")

// ErrOverlappingBatch is returned by RegisterBatch when the requested
// id-set intersects a batch already pending on this table. Spec §9 leaves
// overlapping-batch behavior undefined; this table requires disjoint
// id-sets across concurrently pending batches.
var ErrOverlappingBatch = errors.New("jaysonic: overlapping batch id-set already pending")

type callEntry struct {
	future *future.Future[[]byte]
	timer  *time.Timer
}

type batchEntry struct {
	ids    []int64
	future *future.Future[[]byte]
	timer  *time.Timer
}

// Table is the per-client correlation table. Safe for concurrent use.
type Table struct {
	mu      sync.Mutex
	calls   map[int64]*callEntry
	batches map[string]*batchEntry
	claimed map[int64]bool
}

// New creates an empty correlation table.
func New() *Table {
	return &Table{
		calls:   make(map[int64]*callEntry),
		batches: make(map[string]*batchEntry),
		claimed: make(map[int64]bool),
	}
}

// Register inserts a PendingCall for id and arms a timeout timer. Firing
// the timer (if the entry is still present) settles the future with the
// synthesized Request Timeout error and removes the entry; a later real
// response for the same id then finds nothing to settle and is dropped.
func (t *Table) Register(id int64, timeout time.Duration) *future.Future[[]byte] {
	fut := future.New[[]byte]()
	entry := &callEntry{future: fut}

	t.mu.Lock()
	t.calls[id] = entry
	t.mu.Unlock()

	entry.timer = time.AfterFunc(timeout, func() {
		t.Reject(id, rpcerr.New(rpcerr.RequestTimeout))
	})

	return fut
}

// Resolve settles a pending call with a successful result. Idempotent: if
// the call already settled (by an earlier resolve/reject or a timeout that
// won the race), this is a silent no-op.
func (t *Table) Resolve(id int64, result []byte) bool {
	return t.settle(id, result, nil)
}

// Reject settles a pending call with a failure.
func (t *Table) Reject(id int64, err error) bool {
	return t.settle(id, nil, err)
}

func (t *Table) settle(id int64, result []byte, err error) bool {
	t.mu.Lock()
	entry, ok := t.calls[id]
	if ok {
		delete(t.calls, id)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	return entry.future.Settle(result, err)
}

// RegisterBatch inserts a PendingBatch keyed by the canonical (sorted) form
// of ids, so the representation can't be aliased by input order. Fails with
// ErrOverlappingBatch if any id in ids is already claimed by another
// pending batch on this table.
func (t *Table) RegisterBatch(ids []int64, timeout time.Duration) (*future.Future[[]byte], error) {
	key := canonicalKey(ids)

	t.mu.Lock()
	for _, id := range ids {
		if t.claimed[id] {
			t.mu.Unlock()
			return nil, ErrOverlappingBatch
		}
	}
	fut := future.New[[]byte]()
	entry := &batchEntry{ids: append([]int64(nil), ids...), future: fut}
	t.batches[key] = entry
	for _, id := range ids {
		t.claimed[id] = true
	}
	t.mu.Unlock()

	entry.timer = time.AfterFunc(timeout, func() {
		t.rejectBatch(key, rpcerr.New(rpcerr.RequestTimeout))
	})

	return fut, nil
}

// RejectBatch settles only the pending batch keyed by ids with err, leaving
// every other pending call and batch on the table untouched. Used when
// writing a batch's frame fails outright, so that failure doesn't settle
// unrelated in-flight calls sharing the same connection.
func (t *Table) RejectBatch(ids []int64, err error) bool {
	return t.rejectBatch(canonicalKey(ids), err)
}

func (t *Table) rejectBatch(key string, err error) bool {
	t.mu.Lock()
	entry, ok := t.batches[key]
	if ok {
		delete(t.batches, key)
		for _, id := range entry.ids {
			delete(t.claimed, id)
		}
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	return entry.future.Settle(nil, err)
}

// MatchBatch looks up the pending batch whose id-set equals responseIDs and
// settles it with raw (the full encoded response batch). If hadError is
// true the batch is rejected (with ErrBatchHadErrors) rather than resolved,
// per spec §4.4 — but raw is attached either way, since the whole array is
// "the batch value" regardless of outcome. Returns false if no pending
// batch matches this exact id-set.
func (t *Table) MatchBatch(responseIDs []int64, raw []byte, hadError bool) bool {
	key := canonicalKey(responseIDs)

	t.mu.Lock()
	entry, ok := t.batches[key]
	if ok {
		delete(t.batches, key)
		for _, id := range entry.ids {
			delete(t.claimed, id)
		}
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}

	if hadError {
		return entry.future.Settle(raw, ErrBatchHadErrors)
	}
	return entry.future.Settle(raw, nil)
}

// CloseAll settles every still-pending call and batch with err. Called when
// the underlying connection breaks, so in-flight callers don't block
// forever waiting for a response that will never arrive.
func (t *Table) CloseAll(err error) {
	t.mu.Lock()
	calls := t.calls
	batches := t.batches
	t.calls = make(map[int64]*callEntry)
	t.batches = make(map[string]*batchEntry)
	t.claimed = make(map[int64]bool)
	t.mu.Unlock()

	for _, entry := range calls {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		entry.future.Settle(nil, err)
	}
	for _, entry := range batches {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		entry.future.Settle(nil, err)
	}
}

// ResponseIDs extracts the ids and error-presence of a decoded batch
// response, for use with MatchBatch.
func ResponseIDs(batch []message.Message) (ids []int64, hadError bool) {
	for _, elem := range batch {
		switch elem.Kind {
		case message.KindResponse:
			ids = append(ids, elem.Response.ID)
		case message.KindErrorResponse:
			hadError = true
			if elem.ErrorResponse.ID != nil {
				ids = append(ids, *elem.ErrorResponse.ID)
			}
		}
	}
	return ids, hadError
}

func canonicalKey(ids []int64) string {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
