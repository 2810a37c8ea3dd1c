package materialize

import (
	"fmt"

	"github.com/gridware/assetgraph/internal/domain"
	apperrors "github.com/gridware/assetgraph/internal/pkg/errors"
)

// Node is the two-variant dataset tree: interior groups keyed by name, or
// a leaf list of external items. Built once, read-only afterwards.
type Node interface {
	datasetNode()
}

// GroupEntry preserves first-seen insertion order of a group's children.
type GroupEntry struct {
	Name  string
	Child Node
}

type Group struct {
	Entries []GroupEntry
}

type Leaf struct {
	Items []domain.ExternalItem
}

func (*Group) datasetNode() {}
func (*Leaf) datasetNode()  {}

// BuildHierarchy buckets items by the successive attribute keys, keeping
// group order by first appearance and item order as given. Every item must
// carry a non-empty value for every key.
func BuildHierarchy(items []domain.ExternalItem, keys []string) (Node, error) {
	if len(keys) == 0 {
		return &Leaf{Items: items}, nil
	}

	key, rest := keys[0], keys[1:]
	buckets := &Group{}
	order := map[string][]domain.ExternalItem{}
	for _, it := range items {
		val, ok := it.Attrs[key]
		if !ok || val == "" {
			return nil, fmt.Errorf("item %q missing grouping key %q: %w", it.ExternalID, key, apperrors.ErrInvalidArgument)
		}
		if _, seen := order[val]; !seen {
			buckets.Entries = append(buckets.Entries, GroupEntry{Name: val})
		}
		order[val] = append(order[val], it)
	}

	for i := range buckets.Entries {
		child, err := BuildHierarchy(order[buckets.Entries[i].Name], rest)
		if err != nil {
			return nil, err
		}
		buckets.Entries[i].Child = child
	}
	return buckets, nil
}
