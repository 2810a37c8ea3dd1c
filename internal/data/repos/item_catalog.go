package repos

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/gridware/assetgraph/internal/domain"
	"github.com/gridware/assetgraph/internal/platform/logger"
)

// CatalogItem is one externally owned object the host has registered.
// Attrs holds the grouping attributes (e.g. building, floor) as a flat
// string map; Qualified marks items cleared for materialization.
type CatalogItem struct {
	ExternalID string            `gorm:"primaryKey;column:external_id"`
	Name       string            `gorm:"column:name"`
	Attrs      datatypes.JSONMap `gorm:"column:attrs"`
	Qualified  bool              `gorm:"column:qualified"`
}

func (CatalogItem) TableName() string { return "catalog_items" }

type ItemCatalog interface {
	FilterQualifying(ctx context.Context, refIDs []string, requiredKeys []string) ([]domain.ExternalItem, error)
}

type itemCatalog struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewItemCatalog(db *gorm.DB, log *logger.Logger) ItemCatalog {
	return &itemCatalog{db: db, log: log.With("repo", "ItemCatalog")}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&CatalogItem{})
}

// FilterQualifying returns, in refIDs order, the qualified items carrying a
// non-empty value for every required key. Items that are unknown,
// unqualified, or missing a key are silently dropped; only the database
// failing is an error.
func (c *itemCatalog) FilterQualifying(ctx context.Context, refIDs []string, requiredKeys []string) ([]domain.ExternalItem, error) {
	if len(refIDs) == 0 {
		return nil, nil
	}

	var rows []CatalogItem
	err := c.db.WithContext(ctx).
		Where("external_id IN ?", refIDs).
		Where("qualified = ?", true).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query catalog items: %w", err)
	}

	byID := make(map[string]CatalogItem, len(rows))
	for _, row := range rows {
		byID[row.ExternalID] = row
	}

	out := make([]domain.ExternalItem, 0, len(rows))
	for _, id := range refIDs {
		row, ok := byID[id]
		if !ok {
			continue
		}
		attrs, ok := stringAttrs(row.Attrs, requiredKeys)
		if !ok {
			c.log.Debug("item missing required keys", "external_id", id)
			continue
		}
		out = append(out, domain.ExternalItem{
			ExternalID: row.ExternalID,
			Name:       row.Name,
			Attrs:      attrs,
		})
	}
	return out, nil
}

func stringAttrs(raw datatypes.JSONMap, requiredKeys []string) (map[string]string, bool) {
	attrs := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			attrs[k] = s
		}
	}
	for _, key := range requiredKeys {
		if strings.TrimSpace(attrs[key]) == "" {
			return nil, false
		}
	}
	return attrs, true
}
