package materialize

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/gridware/assetgraph/internal/domain"
	apperrors "github.com/gridware/assetgraph/internal/pkg/errors"
	"github.com/gridware/assetgraph/internal/platform/envutil"
	"github.com/gridware/assetgraph/internal/platform/logger"
)

const (
	defaultBatchThreshold    = 300
	defaultPollInterval      = 750 * time.Millisecond
	defaultDurabilityTimeout = 5 * time.Minute
)

type BatcherConfig struct {
	// Threshold caps the number of unconfirmed writes held at once.
	Threshold int
	// PollInterval paces registry polls during a flush.
	PollInterval time.Duration
	// DurabilityTimeout bounds one flush's confirmation wait.
	DurabilityTimeout time.Duration
}

func BatcherConfigFromEnv() BatcherConfig {
	return BatcherConfig{
		Threshold:         envutil.Int("MATERIALIZE_BATCH_THRESHOLD", defaultBatchThreshold),
		PollInterval:      envutil.DurationMS("MATERIALIZE_POLL_INTERVAL_MS", defaultPollInterval),
		DurabilityTimeout: envutil.DurationMS("MATERIALIZE_DURABILITY_TIMEOUT_MS", defaultDurabilityTimeout),
	}
}

func (c BatcherConfig) withDefaults() BatcherConfig {
	if c.Threshold <= 0 {
		c.Threshold = defaultBatchThreshold
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.DurabilityTimeout <= 0 {
		c.DurabilityTimeout = defaultDurabilityTimeout
	}
	return c
}

// Batcher drains a materializer sequence in bounded chunks. Each full chunk
// (and the final partial one) is flushed: first every write's issuing call
// is awaited, then the durability registry is polled until the chunk has
// cleared it.
type Batcher struct {
	cfg      BatcherConfig
	registry Registry
	log      *logger.Logger

	// OnFlush, when set, receives the size of every flushed batch.
	OnFlush func(flushed int)
}

func NewBatcher(cfg BatcherConfig, registry Registry, log *logger.Logger) *Batcher {
	return &Batcher{
		cfg:      cfg.withDefaults(),
		registry: registry,
		log:      log.With("component", "Batcher"),
	}
}

// Drain consumes the sequence to exhaustion. The producer only advances
// while Drain's loop body runs, so at most Threshold writes are ever held
// unconfirmed.
func (b *Batcher) Drain(ctx context.Context, writes iter.Seq2[*domain.PendingWrite, error]) error {
	batch := make([]*domain.PendingWrite, 0, b.cfg.Threshold)
	for w, err := range writes {
		if err != nil {
			return err
		}
		batch = append(batch, w)
		if len(batch) >= b.cfg.Threshold {
			if err := b.flush(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		return b.flush(ctx, batch)
	}
	return nil
}

func (b *Batcher) flush(ctx context.Context, batch []*domain.PendingWrite) error {
	for _, w := range batch {
		if err := w.Wait(ctx); err != nil {
			return fmt.Errorf("await write %s: %w", w.ID, err)
		}
	}

	if b.registry != nil {
		if err := b.awaitDurable(ctx, batch); err != nil {
			return err
		}
	}

	b.log.Debug("flushed batch", "size", len(batch))
	if b.OnFlush != nil {
		b.OnFlush(len(batch))
	}
	return nil
}

// awaitDurable polls the registry, filtering the batch down to writes still
// unconfirmed, until it empties or the timeout expires.
func (b *Batcher) awaitDurable(ctx context.Context, batch []*domain.PendingWrite) error {
	pending := make([]string, 0, len(batch))
	for _, w := range batch {
		pending = append(pending, w.ID)
	}

	deadline := time.Now().Add(b.cfg.DurabilityTimeout)
	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	for {
		still, err := b.registry.Unconfirmed(ctx, pending)
		if err != nil {
			return fmt.Errorf("poll durability registry: %w", err)
		}
		if len(still) == 0 {
			return nil
		}
		pending = still

		if time.Now().After(deadline) {
			return fmt.Errorf("%d write(s) unconfirmed after %s (%s): %w",
				len(pending), b.cfg.DurabilityTimeout, strings.Join(pending, ","), apperrors.ErrDurabilityTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
