package materialize

import (
	"context"
	"fmt"
	"iter"

	"github.com/gridware/assetgraph/internal/domain"
	"github.com/gridware/assetgraph/internal/platform/logger"
)

// Materializer walks a dataset tree against the live graph, creating only
// the nodes that do not already exist. It produces a lazy, finite,
// depth-first pre-order sequence of pending writes: the producer advances
// only while the consumer's range body runs, so the number of issued but
// unflushed writes is bounded by the consumer's batch size.
type Materializer struct {
	store  Store
	layout Layout
	log    *logger.Logger
}

func NewMaterializer(store Store, layout Layout, log *logger.Logger) *Materializer {
	return &Materializer{
		store:  store,
		layout: layout,
		log:    log.With("component", "Materializer"),
	}
}

// Materialize yields one pending write per node created or leaf attached.
// A parent's creation write is always yielded before any of its
// descendants'. Existing children are matched by name, never by position,
// and re-used without emitting a write.
func (m *Materializer) Materialize(ctx context.Context, scope domain.Scope, node Node) iter.Seq2[*domain.PendingWrite, error] {
	return func(yield func(*domain.PendingWrite, error) bool) {
		m.walk(ctx, scope, scope.Root, node, 0, yield)
	}
}

func (m *Materializer) walk(
	ctx context.Context,
	scope domain.Scope,
	parent domain.NodeRef,
	node Node,
	depth int,
	yield func(*domain.PendingWrite, error) bool,
) bool {
	switch n := node.(type) {
	case *Leaf:
		for _, it := range n.Items {
			w, err := m.store.AttachExternalReference(ctx, scope, parent, it.ExternalID, it.Name)
			if err != nil {
				yield(nil, fmt.Errorf("attach item %q under %q: %w", it.ExternalID, parent.Name, err))
				return false
			}
			if !yield(w, nil) {
				return false
			}
		}
		return true

	case *Group:
		nodeType, err := m.layout.Type(depth)
		if err != nil {
			yield(nil, err)
			return false
		}
		relation, err := m.layout.Relation(depth)
		if err != nil {
			yield(nil, err)
			return false
		}

		// One resolver round-trip per parent regardless of child count.
		existing, err := m.store.ResolveChildren(ctx, parent, relation)
		if err != nil {
			yield(nil, fmt.Errorf("resolve children of %q by %q: %w", parent.Name, relation, err))
			return false
		}
		byName := make(map[string]domain.NodeRef, len(existing))
		for _, c := range existing {
			byName[c.Name] = c
		}

		for _, entry := range n.Entries {
			child, found := byName[entry.Name]
			if !found {
				child, err = m.store.CreateNode(ctx, entry.Name, nodeType)
				if err != nil {
					yield(nil, fmt.Errorf("create node %q (%s): %w", entry.Name, nodeType, err))
					return false
				}
				w, err := m.store.Attach(ctx, scope, parent, child, relation)
				if err != nil {
					yield(nil, fmt.Errorf("attach %q under %q by %q: %w", entry.Name, parent.Name, relation, err))
					return false
				}
				// Parent creation write precedes every descendant write.
				if !yield(w, nil) {
					return false
				}
			} else {
				m.log.Debug("reusing existing node", "name", entry.Name, "parent", parent.Name, "relation", relation)
			}
			if !m.walk(ctx, scope, child, entry.Child, depth+1, yield) {
				return false
			}
		}
		return true

	default:
		yield(nil, fmt.Errorf("unknown dataset node %T", node))
		return false
	}
}
