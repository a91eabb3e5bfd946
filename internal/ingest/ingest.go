// Package ingest turns cost batch messages into canonical fact rows.
package ingest

import (
	"context"
	"fmt"

	"costwatch/internal/amqp"
	"costwatch/internal/core"
	"costwatch/internal/log"
)

// Store is the write surface the processor needs.
type Store interface {
	EnsureScope(ctx context.Context, cloud core.Cloud, key, name string) (int64, error)
	EnsureService(ctx context.Context, cloud core.Cloud, key, name string) (int64, error)
	UpsertCostRecord(ctx context.Context, rec core.CostRecord, scopeID, serviceID int64) error
	FinishIngestJob(ctx context.Context, jobID string, received, written int, jobErr error) error
}

// DimCache memoizes dimension ids for the duration of one batch. Every
// batch gets a fresh cache; ids are never assumed stable across batches.
type DimCache struct {
	scopes   map[string]int64
	services map[string]int64
}

func NewDimCache() *DimCache {
	return &DimCache{
		scopes:   make(map[string]int64),
		services: make(map[string]int64),
	}
}

func (c *DimCache) scope(ctx context.Context, store Store, cloud core.Cloud, key, name string) (int64, error) {
	cacheKey := string(cloud) + "/" + key
	if id, ok := c.scopes[cacheKey]; ok {
		return id, nil
	}
	id, err := store.EnsureScope(ctx, cloud, key, name)
	if err != nil {
		return 0, err
	}
	c.scopes[cacheKey] = id
	return id, nil
}

func (c *DimCache) service(ctx context.Context, store Store, cloud core.Cloud, key, name string) (int64, error) {
	cacheKey := string(cloud) + "/" + key
	if id, ok := c.services[cacheKey]; ok {
		return id, nil
	}
	id, err := store.EnsureService(ctx, cloud, key, name)
	if err != nil {
		return 0, err
	}
	c.services[cacheKey] = id
	return id, nil
}

// Processor applies cost batches to the store. maxBatch bounds the
// records accepted per message; collectors are expected to chunk their
// output to the same limit.
type Processor struct {
	store    Store
	maxBatch int
	logger   *log.Logger
}

func NewProcessor(store Store, maxBatch int, logger *log.Logger) *Processor {
	return &Processor{
		store:    store,
		maxBatch: maxBatch,
		logger:   logger.WithComponent(log.ComponentIngest),
	}
}

// HandleRequest acknowledges a backfill request. Collectors run out of
// process, so the worker's part is tracking: log the hand-off and close
// the job row when the request itself is unusable.
func (p *Processor) HandleRequest(ctx context.Context, msg *amqp.IngestRequestMessage) error {
	provider := core.Cloud(msg.Provider)
	if !provider.Valid() || provider == core.CloudAll {
		p.closeJob(ctx, msg.JobID, 0, 0, fmt.Errorf("request for unknown provider %q", msg.Provider))
		return nil
	}
	if msg.Start.After(msg.End.Time) {
		p.closeJob(ctx, msg.JobID, 0, 0, fmt.Errorf("request range %s..%s is inverted", msg.Start, msg.End))
		return nil
	}

	p.logger.InfoContext(ctx, "backfill requested",
		log.FieldJobID, msg.JobID,
		log.FieldProvider, msg.Provider,
		"range_start", msg.Start.String(),
		"range_end", msg.End.String(),
		"reason", msg.Reason)
	return nil
}

// HandleBatch upserts every record of one batch, sharing cache only
// within the batch. Invalid records are skipped and counted, not fatal;
// store failures abort so the message can be redelivered. On the final
// batch the job row is closed with the counters seen in this batch.
func (p *Processor) HandleBatch(ctx context.Context, msg *amqp.CostBatchMessage, cache *DimCache) error {
	cloud := core.Cloud(msg.Provider)
	if !cloud.Valid() || cloud == core.CloudAll {
		// Redelivery cannot fix a bad provider, so close the job and
		// drop the message.
		p.closeJob(ctx, msg.JobID, len(msg.Records), 0, fmt.Errorf("batch for unknown provider %q", msg.Provider))
		return nil
	}
	if p.maxBatch > 0 && len(msg.Records) > p.maxBatch {
		// Redelivery cannot shrink the batch either.
		p.closeJob(ctx, msg.JobID, len(msg.Records), 0,
			fmt.Errorf("batch of %d records exceeds limit %d", len(msg.Records), p.maxBatch))
		return nil
	}

	written := 0
	skipped := 0
	for _, payload := range msg.Records {
		rec := toRecord(payload, cloud, msg.Source)
		if err := rec.Validate(); err != nil {
			skipped++
			p.logger.WarnContext(ctx, "skipping invalid cost record",
				log.FieldJobID, msg.JobID, log.FieldError, err.Error())
			continue
		}

		scopeID, err := cache.scope(ctx, p.store, cloud, rec.ScopeKey, rec.ScopeName)
		if err != nil {
			return fmt.Errorf("resolve scope %s: %w", rec.ScopeKey, err)
		}
		serviceID, err := cache.service(ctx, p.store, cloud, rec.ServiceKey, rec.ServiceName)
		if err != nil {
			return fmt.Errorf("resolve service %s: %w", rec.ServiceKey, err)
		}
		if err := p.store.UpsertCostRecord(ctx, rec, scopeID, serviceID); err != nil {
			return fmt.Errorf("upsert record for %s: %w", rec.Date, err)
		}
		written++
	}

	p.logger.InfoContext(ctx, "batch applied",
		log.FieldJobID, msg.JobID,
		log.FieldProvider, msg.Provider,
		log.FieldReceived, len(msg.Records),
		log.FieldWritten, written,
		"skipped", skipped)

	if msg.Final {
		p.closeJob(ctx, msg.JobID, len(msg.Records), written, nil)
	}
	return nil
}

func (p *Processor) closeJob(ctx context.Context, jobID string, received, written int, jobErr error) {
	if jobID == "" {
		return
	}
	if err := p.store.FinishIngestJob(ctx, jobID, received, written, jobErr); err != nil {
		p.logger.WarnContext(ctx, "failed to close ingest job",
			log.FieldJobID, jobID, log.FieldError, err.Error())
	}
}

func toRecord(payload amqp.CostRecordPayload, cloud core.Cloud, source string) core.CostRecord {
	if source == "" {
		source = "unknown"
	}
	return core.CostRecord{
		Date:            payload.Date,
		Cloud:           cloud,
		ScopeKey:        payload.ScopeKey,
		ScopeName:       payload.ScopeName,
		ServiceKey:      payload.ServiceKey,
		ServiceName:     payload.ServiceName,
		RegionKey:       payload.RegionKey,
		CurrencyCode:    payload.Currency,
		Amount:          payload.Amount,
		AmountSecondary: payload.AmountSecondary,
		SourceRef:       source,
	}
}
