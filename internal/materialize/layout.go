package materialize

import (
	"fmt"
	"strings"

	apperrors "github.com/gridware/assetgraph/internal/pkg/errors"
)

// Level configures one depth of the materialized tree: the item attribute
// the grouper buckets on, the node type created at that depth, and the
// relation the node hangs off its parent by.
type Level struct {
	Key      string `yaml:"key"`
	NodeType string `yaml:"node_type"`
	Relation string `yaml:"relation"`
}

// Layout is the ordered per-depth configuration. Index = depth; the leaf
// level has no entry. Immutable once built.
type Layout struct {
	levels []Level
}

func NewLayout(levels []Level) (Layout, error) {
	for i, lv := range levels {
		if strings.TrimSpace(lv.Key) == "" {
			return Layout{}, fmt.Errorf("layout level %d: empty key: %w", i, apperrors.ErrInvalidArgument)
		}
		if strings.TrimSpace(lv.NodeType) == "" {
			return Layout{}, fmt.Errorf("layout level %d: empty node type: %w", i, apperrors.ErrInvalidArgument)
		}
		if strings.TrimSpace(lv.Relation) == "" {
			return Layout{}, fmt.Errorf("layout level %d: empty relation: %w", i, apperrors.ErrInvalidArgument)
		}
	}
	out := make([]Level, len(levels))
	copy(out, levels)
	return Layout{levels: out}, nil
}

func (l Layout) Depth() int { return len(l.levels) }

func (l Layout) Type(depth int) (string, error) {
	if depth < 0 || depth >= len(l.levels) {
		return "", fmt.Errorf("layout has no level at depth %d: %w", depth, apperrors.ErrInvalidArgument)
	}
	return l.levels[depth].NodeType, nil
}

func (l Layout) Relation(depth int) (string, error) {
	if depth < 0 || depth >= len(l.levels) {
		return "", fmt.Errorf("layout has no level at depth %d: %w", depth, apperrors.ErrInvalidArgument)
	}
	return l.levels[depth].Relation, nil
}

// Keys returns the ordered grouping key list for BuildHierarchy.
func (l Layout) Keys() []string {
	keys := make([]string, len(l.levels))
	for i, lv := range l.levels {
		keys[i] = lv.Key
	}
	return keys
}
