package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gridware/assetgraph/internal/clients/redis"
	"github.com/gridware/assetgraph/internal/data/db"
	"github.com/gridware/assetgraph/internal/data/graph"
	"github.com/gridware/assetgraph/internal/data/repos"
	"github.com/gridware/assetgraph/internal/domain"
	"github.com/gridware/assetgraph/internal/materialize"
	"github.com/gridware/assetgraph/internal/platform/envutil"
	"github.com/gridware/assetgraph/internal/platform/logger"
	"github.com/gridware/assetgraph/internal/platform/neo4jdb"
)

// manifest describes one materialization run. Either items (pre-filtered)
// or reference_ids (filtered through the catalog) must be set.
type manifest struct {
	Scope    string              `yaml:"scope"`
	AuxScope string              `yaml:"aux_scope"`
	Layout   []materialize.Level `yaml:"layout"`

	Items []struct {
		ExternalID string            `yaml:"external_id"`
		Name       string            `yaml:"name"`
		Attrs      map[string]string `yaml:"attrs"`
	} `yaml:"items"`

	ReferenceIDs []string `yaml:"reference_ids"`
	RequiredKeys []string `yaml:"required_keys"`
}

type logSink struct {
	log *logger.Logger
}

func (s logSink) Set(pct int) {
	s.log.Info("progress", "pct", pct)
}

func main() {
	manifestPath := flag.String("manifest", "materialize.yaml", "path to the run manifest")
	flag.Parse()

	log, err := logger.New(envutil.String("LOG_MODE", "dev"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(context.Background(), log, *manifestPath); err != nil {
		log.Fatal("materialization failed", "error", err)
	}
}

func run(ctx context.Context, log *logger.Logger, manifestPath string) error {
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}
	layout, err := materialize.NewLayout(m.Layout)
	if err != nil {
		return fmt.Errorf("manifest layout: %w", err)
	}

	neo, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		return err
	}
	if neo == nil {
		return fmt.Errorf("NEO4J_URI is required")
	}
	defer neo.Close(ctx)

	store, err := graph.NewStore(neo, log)
	if err != nil {
		return err
	}

	var registry materialize.Registry
	if envutil.String("REDIS_ADDR", "") != "" {
		reg, err := redis.NewPendingRegistry(log)
		if err != nil {
			return err
		}
		defer reg.Close()
		registry = reg
	}

	deps := materialize.Deps{
		Store:    store,
		Registry: registry,
		Log:      log,
		Progress: logSink{log: log.With("component", "Progress")},
		Batch:    materialize.BatcherConfigFromEnv(),
	}

	if len(m.Items) > 0 {
		items := make([]domain.ExternalItem, 0, len(m.Items))
		for _, it := range m.Items {
			items = append(items, domain.ExternalItem{
				ExternalID: it.ExternalID,
				Name:       it.Name,
				Attrs:      it.Attrs,
			})
		}
		return materialize.New(deps).MaterializeItems(ctx, materialize.MaterializeItemsInput{
			Scope:  m.Scope,
			Layout: layout,
			Items:  items,
		})
	}

	pg, err := db.NewPostgresService(log)
	if err != nil {
		return err
	}
	if err := repos.Migrate(pg.DB()); err != nil {
		return fmt.Errorf("migrate catalog: %w", err)
	}
	deps.Catalog = repos.NewItemCatalog(pg.DB(), log)

	return materialize.New(deps).MaterializeRefs(ctx, materialize.MaterializeRefsInput{
		Scope:        m.Scope,
		AuxScope:     m.AuxScope,
		Layout:       layout,
		ReferenceIDs: m.ReferenceIDs,
		RequiredKeys: m.RequiredKeys,
	})
}
