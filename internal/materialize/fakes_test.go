package materialize

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/gridware/assetgraph/internal/domain"
	apperrors "github.com/gridware/assetgraph/internal/pkg/errors"
)

// fakeStore is an in-memory graph. Every attach issues a pending write that
// completes immediately; durability is simulated by fakeRegistry.
type fakeStore struct {
	mu  sync.Mutex
	seq int

	scopes   map[string]domain.Scope
	children map[uuid.UUID]map[string][]domain.NodeRef
	items    map[uuid.UUID][]string
	deleted  map[uuid.UUID]bool

	// emissions records write labels in issue order for ordering asserts.
	emissions []string

	reg *fakeRegistry

	ensureCalls  int
	resolveCalls int
	createCalls  int
	attachCalls  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		scopes:   map[string]domain.Scope{},
		children: map[uuid.UUID]map[string][]domain.NodeRef{},
		items:    map[uuid.UUID][]string{},
		deleted:  map[uuid.UUID]bool{},
	}
}

func (s *fakeStore) issue(label string) *domain.PendingWrite {
	s.seq++
	id := fmt.Sprintf("w%d", s.seq)
	if s.reg != nil {
		s.reg.add(id)
	}
	s.emissions = append(s.emissions, label)
	w := domain.NewPendingWrite(id)
	w.Complete(nil)
	return w
}

func (s *fakeStore) EnsureScope(ctx context.Context, name string) (domain.Scope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureCalls++
	if sc, ok := s.scopes[name]; ok {
		return sc, nil
	}
	sc := domain.Scope{
		Name: name,
		Root: domain.NodeRef{ID: uuid.New(), Name: name, Type: "ScopeRoot"},
	}
	s.scopes[name] = sc
	return sc, nil
}

func (s *fakeStore) CreateNode(ctx context.Context, name, nodeType string) (domain.NodeRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	return domain.NodeRef{ID: uuid.New(), Name: name, Type: nodeType}, nil
}

func (s *fakeStore) Attach(ctx context.Context, scope domain.Scope, parent, child domain.NodeRef, relation string) (*domain.PendingWrite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attachCalls++
	if s.children[parent.ID] == nil {
		s.children[parent.ID] = map[string][]domain.NodeRef{}
	}
	s.children[parent.ID][relation] = append(s.children[parent.ID][relation], child)
	return s.issue("node:" + child.Name), nil
}

func (s *fakeStore) ResolveChildren(ctx context.Context, parent domain.NodeRef, relation string) ([]domain.NodeRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolveCalls++
	if s.deleted[parent.ID] {
		return nil, fmt.Errorf("parent %q: %w", parent.Name, apperrors.ErrNotFound)
	}
	out := make([]domain.NodeRef, len(s.children[parent.ID][relation]))
	copy(out, s.children[parent.ID][relation])
	return out, nil
}

func (s *fakeStore) AttachExternalReference(ctx context.Context, scope domain.Scope, parent domain.NodeRef, externalID, name string) (*domain.PendingWrite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attachCalls++
	// MERGE semantics: re-attaching the same item is a no-op relation-wise
	// but still issues a write, like the real store.
	present := false
	for _, id := range s.items[parent.ID] {
		if id == externalID {
			present = true
			break
		}
	}
	if !present {
		s.items[parent.ID] = append(s.items[parent.ID], externalID)
	}
	return s.issue("item:" + externalID), nil
}

// seedChild links an existing node under parent outside a run.
func (s *fakeStore) seedChild(parent domain.NodeRef, relation, name, nodeType string) domain.NodeRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	child := domain.NodeRef{ID: uuid.New(), Name: name, Type: nodeType}
	if s.children[parent.ID] == nil {
		s.children[parent.ID] = map[string][]domain.NodeRef{}
	}
	s.children[parent.ID][relation] = append(s.children[parent.ID][relation], child)
	return child
}

func (s *fakeStore) nodeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rels := range s.children {
		for _, kids := range rels {
			n += len(kids)
		}
	}
	for _, its := range s.items {
		n += len(its)
	}
	return n
}

func (s *fakeStore) mutationCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveCalls + s.createCalls + s.attachCalls
}

// fakeRegistry tracks unconfirmed write ids. When confirmOnPoll is set,
// every id reported by Unconfirmed is confirmed right after, so the next
// poll sees it cleared.
type fakeRegistry struct {
	mu             sync.Mutex
	pending        map[string]bool
	never          map[string]bool
	confirmOnPoll  bool
	polls          int
	outstanding    int
	maxOutstanding int
}

func newFakeRegistry(confirmOnPoll bool) *fakeRegistry {
	return &fakeRegistry{
		pending:       map[string]bool{},
		never:         map[string]bool{},
		confirmOnPoll: confirmOnPoll,
	}
}

func (r *fakeRegistry) add(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[id] = true
	r.outstanding++
	if r.outstanding > r.maxOutstanding {
		r.maxOutstanding = r.outstanding
	}
}

func (r *fakeRegistry) confirm(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending[id] {
		delete(r.pending, id)
		r.outstanding--
	}
}

func (r *fakeRegistry) Unconfirmed(ctx context.Context, ids []string) ([]string, error) {
	r.mu.Lock()
	r.polls++
	still := make([]string, 0, len(ids))
	for _, id := range ids {
		if r.pending[id] {
			still = append(still, id)
		}
	}
	r.mu.Unlock()

	if r.confirmOnPoll {
		for _, id := range still {
			if !r.never[id] {
				r.confirm(id)
			}
		}
	}
	return still, nil
}

// fakeCatalog is an ItemFilter backed by a fixed item set.
type fakeCatalog struct {
	items map[string]domain.ExternalItem
	err   error
	calls int
}

func (c *fakeCatalog) FilterQualifying(ctx context.Context, refIDs []string, requiredKeys []string) ([]domain.ExternalItem, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	out := make([]domain.ExternalItem, 0, len(refIDs))
	for _, id := range refIDs {
		it, ok := c.items[id]
		if !ok {
			continue
		}
		qualified := true
		for _, key := range requiredKeys {
			if it.Attrs[key] == "" {
				qualified = false
				break
			}
		}
		if qualified {
			out = append(out, it)
		}
	}
	return out, nil
}

// captureSink records every progress value it receives.
type captureSink struct {
	mu   sync.Mutex
	vals []int
}

func (s *captureSink) Set(pct int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vals = append(s.vals, pct)
}

func (s *captureSink) values() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.vals))
	copy(out, s.vals)
	return out
}

func item(id, name string, attrs map[string]string) domain.ExternalItem {
	return domain.ExternalItem{ExternalID: id, Name: name, Attrs: attrs}
}

func mustLayout(levels ...Level) Layout {
	l, err := NewLayout(levels)
	if err != nil {
		panic(err)
	}
	return l
}
