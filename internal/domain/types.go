package domain

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// ExternalItem is one flat input record: an externally owned object that
// ends up attached as a leaf of the materialized tree.
type ExternalItem struct {
	ExternalID string
	Name       string
	Attrs      map[string]string
}

// NodeRef identifies a persisted graph node.
type NodeRef struct {
	ID   uuid.UUID
	Name string
	Type string
}

// Scope is the root namespace a materialized subtree lives under. Two
// scopes may hold same-named children without collision because every
// traversal starts from the scope's own root node.
type Scope struct {
	Name string
	Root NodeRef
}

// PendingWrite is the handle for one issued create/attach operation. The
// issuing layer calls Complete exactly once when the store call returns;
// durability confirmation is tracked separately by id.
type PendingWrite struct {
	ID string

	once sync.Once
	done chan struct{}
	err  error
}

func NewPendingWrite(id string) *PendingWrite {
	return &PendingWrite{ID: id, done: make(chan struct{})}
}

// Complete records the outcome of the issuing call and unblocks Wait.
func (w *PendingWrite) Complete(err error) {
	w.once.Do(func() {
		w.err = err
		close(w.done)
	})
}

// Wait blocks until the issuing call has returned or ctx is cancelled.
func (w *PendingWrite) Wait(ctx context.Context) error {
	select {
	case <-w.done:
		return w.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
