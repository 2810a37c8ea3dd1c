package materialize

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/gridware/assetgraph/internal/domain"
	"github.com/gridware/assetgraph/internal/platform/logger"
)

// Progress checkpoints for a run: input accepted, hierarchy built, then the
// remaining span is apportioned across flush cycles.
const (
	pctAccepted  = 10
	pctHierarchy = 20
	pctDone      = 100
)

type Deps struct {
	Store    Store
	Registry Registry
	// Catalog is the external filter collaborator; required only by
	// MaterializeRefs.
	Catalog ItemFilter
	Log     *logger.Logger
	// Progress is optional; nil disables reporting.
	Progress Sink
	// Batch falls back to env-derived defaults when zero.
	Batch BatcherConfig
}

type Usecases struct {
	deps Deps
}

func New(deps Deps) Usecases { return Usecases{deps: deps} }

type MaterializeItemsInput struct {
	Scope  string
	Layout Layout
	Items  []domain.ExternalItem
}

// MaterializeItems drives a run over pre-filtered items, reporting progress
// along the way. Empty input completes immediately: the sink still reaches
// 100 so watchers always observe a finished run.
func (u Usecases) MaterializeItems(ctx context.Context, in MaterializeItemsInput) error {
	log := u.deps.Log.With("usecase", "MaterializeItems", "scope", in.Scope)
	rep := newReporter(u.deps.Progress)

	rep.Set(pctAccepted)
	if len(in.Items) == 0 {
		log.Info("no items to materialize")
		rep.Set(pctDone)
		return nil
	}

	scope, err := u.deps.Store.EnsureScope(ctx, in.Scope)
	if err != nil {
		return fmt.Errorf("ensure scope %q: %w", in.Scope, err)
	}

	dataset, err := BuildHierarchy(in.Items, in.Layout.Keys())
	if err != nil {
		return fmt.Errorf("build hierarchy: %w", err)
	}
	rep.Set(pctHierarchy)

	if err := u.drive(ctx, scope, in.Layout, dataset, len(in.Items), rep, log); err != nil {
		return err
	}
	rep.Set(pctDone)
	log.Info("materialization complete", "items", len(in.Items))
	return nil
}

type MaterializeRefsInput struct {
	Scope        string
	ReferenceIDs []string
	RequiredKeys []string
	Layout       Layout
	// AuxScope names the auxiliary namespace initialized once per run.
	AuxScope string
}

// MaterializeRefs filters raw reference ids through the catalog and, in
// parallel, ensures the auxiliary namespace exists. Zero qualifying items
// short-circuits: no hierarchy is built and the graph is not touched again.
func (u Usecases) MaterializeRefs(ctx context.Context, in MaterializeRefsInput) error {
	if u.deps.Catalog == nil {
		return fmt.Errorf("materialize refs: no item catalog configured")
	}
	log := u.deps.Log.With("usecase", "MaterializeRefs", "scope", in.Scope)
	rep := newReporter(u.deps.Progress)

	var items []domain.ExternalItem
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		filtered, err := u.deps.Catalog.FilterQualifying(gctx, in.ReferenceIDs, in.RequiredKeys)
		if err != nil {
			return fmt.Errorf("filter qualifying items: %w", err)
		}
		items = filtered
		return nil
	})
	if in.AuxScope != "" {
		g.Go(func() error {
			if _, err := u.deps.Store.EnsureScope(gctx, in.AuxScope); err != nil {
				return fmt.Errorf("ensure aux scope %q: %w", in.AuxScope, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	rep.Set(pctAccepted)

	if len(items) == 0 {
		log.Info("no qualifying items", "refs", len(in.ReferenceIDs))
		rep.Set(pctDone)
		return nil
	}

	scope, err := u.deps.Store.EnsureScope(ctx, in.Scope)
	if err != nil {
		return fmt.Errorf("ensure scope %q: %w", in.Scope, err)
	}

	dataset, err := BuildHierarchy(items, in.Layout.Keys())
	if err != nil {
		return fmt.Errorf("build hierarchy: %w", err)
	}
	rep.Set(pctHierarchy)

	if err := u.drive(ctx, scope, in.Layout, dataset, len(items), rep, log); err != nil {
		return err
	}
	rep.Set(pctDone)
	log.Info("materialization complete", "items", len(items))
	return nil
}

// drive runs the materializer against the batcher, advancing progress by
// the flushed share of the total item count.
func (u Usecases) drive(ctx context.Context, scope domain.Scope, layout Layout, dataset Node, totalItems int, rep *reporter, log *logger.Logger) error {
	mat := NewMaterializer(u.deps.Store, layout, log)
	batcher := NewBatcher(u.deps.Batch, u.deps.Registry, log)

	flushed := 0
	batcher.OnFlush = func(n int) {
		flushed += n
		span := pctDone - pctHierarchy
		// 100 is reserved for completion; flush progress tops out at 99.
		rep.Set(min(pctHierarchy+span*flushed/max(totalItems, flushed), pctDone-1))
	}

	return batcher.Drain(ctx, mat.Materialize(ctx, scope, dataset))
}
