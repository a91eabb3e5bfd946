package ingest

import (
	"context"

	"costwatch/internal/amqp"
	"costwatch/internal/core"
	"costwatch/internal/log"
)

// CoverageStore answers whether facts fully cover a range and records
// backfill jobs.
type CoverageStore interface {
	HasCoverage(ctx context.Context, cloud core.Cloud, start, end core.Date, sourceRef string) (bool, error)
	CreateIngestJob(ctx context.Context, provider core.Cloud, start, end core.Date) (string, error)
}

// Publisher is satisfied by the AMQP client.
type Publisher interface {
	PublishIngestRequest(ctx context.Context, msg *amqp.IngestRequestMessage) error
}

// Requester publishes backfill requests when a query touches days with
// no stored facts. Entirely best effort: queries proceed regardless.
type Requester struct {
	store     CoverageStore
	publisher Publisher
	enabled   bool
	logger    *log.Logger
}

func NewRequester(store CoverageStore, publisher Publisher, enabled bool, logger *log.Logger) *Requester {
	return &Requester{
		store:     store,
		publisher: publisher,
		enabled:   enabled,
		logger:    logger.WithComponent(log.ComponentIngest),
	}
}

// RequestIfMissing checks coverage per provider and enqueues one job
// per gap. Returns the ids of the jobs it opened.
func (r *Requester) RequestIfMissing(ctx context.Context, cloud core.Cloud, start, end core.Date) []string {
	if !r.enabled || r.publisher == nil {
		return nil
	}

	var jobIDs []string
	for _, provider := range cloud.Providers() {
		covered, err := r.store.HasCoverage(ctx, provider, start, end, "")
		if err != nil {
			r.logger.WarnContext(ctx, "coverage check failed",
				log.FieldProvider, string(provider), log.FieldError, err.Error())
			continue
		}
		if covered {
			continue
		}

		jobID, err := r.store.CreateIngestJob(ctx, provider, start, end)
		if err != nil {
			r.logger.WarnContext(ctx, "failed to open ingest job",
				log.FieldProvider, string(provider), log.FieldError, err.Error())
			continue
		}
		msg := amqp.NewIngestRequestMessage(jobID, provider, start, end, "coverage gap")
		if err := r.publisher.PublishIngestRequest(ctx, msg); err != nil {
			r.logger.WarnContext(ctx, "failed to publish ingest request",
				log.FieldJobID, jobID, log.FieldError, err.Error())
			continue
		}
		jobIDs = append(jobIDs, jobID)
	}
	return jobIDs
}
