package materialize

import (
	"context"

	"github.com/gridware/assetgraph/internal/domain"
)

// Store is the narrow contract against the persisted graph. Implementations
// must keep ResolveChildren safe for concurrent calls on distinct parents;
// a deleted parent surfaces as an error wrapping errors.ErrNotFound.
type Store interface {
	// EnsureScope idempotently creates the named root namespace and
	// returns its root node.
	EnsureScope(ctx context.Context, name string) (domain.Scope, error)

	CreateNode(ctx context.Context, name, nodeType string) (domain.NodeRef, error)

	// Attach links child under parent by relation within scope. The
	// returned handle completes when the issuing call has returned;
	// durability is confirmed out of band via the Registry.
	Attach(ctx context.Context, scope domain.Scope, parent, child domain.NodeRef, relation string) (*domain.PendingWrite, error)

	// ResolveChildren returns the current children of parent reachable by
	// relation, in no particular order.
	ResolveChildren(ctx context.Context, parent domain.NodeRef, relation string) ([]domain.NodeRef, error)

	AttachExternalReference(ctx context.Context, scope domain.Scope, parent domain.NodeRef, externalID, name string) (*domain.PendingWrite, error)
}

// Registry is the external record of writes not yet confirmed durable.
// Unconfirmed returns the subset of ids still pending. A nil Registry means
// the store confirms synchronously and flushes skip the poll phase.
type Registry interface {
	Unconfirmed(ctx context.Context, ids []string) ([]string, error)
}

// ItemFilter narrows raw reference ids down to qualifying items carrying
// the required attribute keys.
type ItemFilter interface {
	FilterQualifying(ctx context.Context, refIDs []string, requiredKeys []string) ([]domain.ExternalItem, error)
}
