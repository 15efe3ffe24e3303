// Package liststore provides durable named lists of opaque items, the
// primitive the work queue is built on.
//
// Lists are FIFO: PushTail appends, PopHead removes from the front. Every
// operation that moves an item between lists is atomic, so an item is never
// observed in both lists or in neither.
package liststore

import (
	"context"
	"time"

	serrors "github.com/Aman-CERP/indexsync/internal/errors"
)

// Store is a set of named lists.
//
// Blocking pops wait up to timeout for an item and return (nil, nil) when
// none arrives. A non-positive timeout makes them non-blocking. After Close
// every method fails with a NotConnected error.
type Store interface {
	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error

	// PushTail appends item to list.
	PushTail(ctx context.Context, list string, item []byte) error

	// PopHead removes and returns the first item of list.
	PopHead(ctx context.Context, list string, timeout time.Duration) ([]byte, error)

	// PopHeadPushTail atomically pops the head of src and appends it to dst.
	PopHeadPushTail(ctx context.Context, src, dst string, timeout time.Duration) ([]byte, error)

	// RemoveFirst removes the first element of list equal to item.
	RemoveFirst(ctx context.Context, list string, item []byte) (bool, error)

	// MoveFirst atomically removes the first element of src equal to item and
	// appends replacement to dst. A nil replacement appends item unchanged.
	MoveFirst(ctx context.Context, src, dst string, item, replacement []byte) (bool, error)

	// Length returns the number of items in list.
	Length(ctx context.Context, list string) (int, error)

	// DeleteList empties list and returns how many items it held.
	DeleteList(ctx context.Context, list string) (int, error)

	// ListAll returns every item of list, head first.
	ListAll(ctx context.Context, list string) ([][]byte, error)

	// Close releases the store. It is idempotent.
	Close() error
}

const component = "list store"

func errClosed() error {
	return serrors.NotConnected(component, nil)
}

func storeErr(op string, err error) error {
	return serrors.New(serrors.ErrCodeStoreFailed, "list store "+op+" failed", err).
		WithDetail("op", op)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
