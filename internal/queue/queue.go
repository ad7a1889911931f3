// Package queue implements the three persistent, crash-safe FIFO queues
// (save, delete, retry) as embedded Badger key-value logs. Items are
// JSON-encoded and keyed by a monotonically increasing, zero-padded
// sequence number so Badger's natural key-ordered iteration yields
// strict insertion order.
package queue

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v3"
)

const seqKey = "__zonecourier_seq__"

// pollInterval is how often a blocked Dequeue re-checks for a new item.
var pollInterval = 100 * time.Millisecond

// Queue is a generic, durable FIFO over a dedicated Badger database
// directory. One Queue instance owns its directory exclusively; do not
// open the same directory from two Queue values concurrently.
type Queue[T any] struct {
	db *badger.DB
}

// AckFunc permanently removes the dequeued item. Callers must only call
// it after the side effect that consumed the item (a store update, or a
// re-enqueue onto another queue) has itself been durably committed —
// acking before that would lose the item on a crash in between.
type AckFunc func() error

// Open opens (creating if absent) a Badger-backed queue rooted at dir.
func Open(dir string) (*Queue[any], error) {
	return OpenTyped[any](dir)
}

// OpenTyped opens a queue for a specific item type T.
func OpenTyped[T any](dir string) (*Queue[T], error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open queue at %s: %w", dir, err)
	}
	return &Queue[T]{db: db}, nil
}

// Close releases the underlying Badger database.
func (q *Queue[T]) Close() error {
	return q.db.Close()
}

// Enqueue durably appends item to the tail of the queue.
func (q *Queue[T]) Enqueue(item T) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal queue item: %w", err)
	}
	return q.db.Update(func(txn *badger.Txn) error {
		seq, err := nextSeq(txn)
		if err != nil {
			return err
		}
		return txn.Set(seqToKey(seq), payload)
	})
}

// Dequeue blocks until an item is available or ctx is cancelled. On
// success it returns the decoded item and an AckFunc that removes it.
// The item remains in the queue (and will be redelivered on restart)
// until AckFunc is called.
func (q *Queue[T]) Dequeue(ctx context.Context) (T, AckFunc, error) {
	var zero T
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		key, value, ok, err := q.peekOldest()
		if err != nil {
			return zero, nil, err
		}
		if ok {
			var item T
			if err := json.Unmarshal(value, &item); err != nil {
				return zero, nil, fmt.Errorf("unmarshal queue item %s: %w", key, err)
			}
			ack := func() error {
				return q.db.Update(func(txn *badger.Txn) error {
					return txn.Delete([]byte(key))
				})
			}
			return item, ack, nil
		}

		select {
		case <-ctx.Done():
			return zero, nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// TryDequeue is the non-blocking counterpart to Dequeue: it returns
// immediately with ok=false if the queue is currently empty, instead of
// waiting for an item to arrive. Used by the retry drainer, which must
// drain every currently-eligible item once per tick rather than block.
func (q *Queue[T]) TryDequeue() (item T, ack AckFunc, ok bool, err error) {
	key, value, found, err := q.peekOldest()
	if err != nil || !found {
		return item, nil, false, err
	}
	if err := json.Unmarshal(value, &item); err != nil {
		return item, nil, false, fmt.Errorf("unmarshal queue item %s: %w", key, err)
	}
	ack = func() error {
		return q.db.Update(func(txn *badger.Txn) error {
			return txn.Delete([]byte(key))
		})
	}
	return item, ack, true, nil
}

// Len returns the current number of items, including any awaiting ack.
func (q *Queue[T]) Len() (int, error) {
	n := 0
	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek([]byte(itemKeyPrefix)); it.ValidForPrefix([]byte(itemKeyPrefix)); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

const itemKeyPrefix = "item:"

func (q *Queue[T]) peekOldest() (key string, value []byte, ok bool, err error) {
	err = q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()
		it.Seek([]byte(itemKeyPrefix))
		if !it.ValidForPrefix([]byte(itemKeyPrefix)) {
			return nil
		}
		item := it.Item()
		key = string(item.KeyCopy(nil))
		return item.Value(func(v []byte) error {
			value = append([]byte(nil), v...)
			ok = true
			return nil
		})
	})
	return key, value, ok, err
}

func nextSeq(txn *badger.Txn) (uint64, error) {
	var next uint64
	item, err := txn.Get([]byte(seqKey))
	switch {
	case err == badger.ErrKeyNotFound:
		next = 1
	case err != nil:
		return 0, err
	default:
		if copyErr := item.Value(func(v []byte) error {
			next = binary.BigEndian.Uint64(v) + 1
			return nil
		}); copyErr != nil {
			return 0, copyErr
		}
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, next)
	if err := txn.Set([]byte(seqKey), buf); err != nil {
		return 0, err
	}
	return next, nil
}

func seqToKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", itemKeyPrefix, seq))
}
