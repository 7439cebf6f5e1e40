package worker

import (
	"context"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"github.com/cwygoda/catchbot/internal/domain"
)

// Worker consumes links from the broker and downloads them one at a time.
type Worker struct {
	source   domain.JobSource
	pipeline domain.MediaPipeline
	ledger   domain.JobLedger
}

// New creates a new worker. ledger may be nil.
func New(source domain.JobSource, pipeline domain.MediaPipeline, ledger domain.JobLedger) *Worker {
	return &Worker{
		source:   source,
		pipeline: pipeline,
		ledger:   ledger,
	}
}

// Run subscribes to the job source and handles payloads until ctx is
// cancelled or the source closes.
func (w *Worker) Run(ctx context.Context) error {
	jobs, err := w.source.Jobs(ctx)
	if err != nil {
		return err
	}
	log.Info().Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("worker shutting down")
			return nil
		case payload, ok := <-jobs:
			if !ok {
				log.Info().Msg("job source closed")
				return nil
			}
			w.handle(ctx, payload)
		}
	}
}

func (w *Worker) handle(ctx context.Context, payload []byte) {
	if len(payload) == 0 || !utf8.Valid(payload) {
		log.Warn().Int("bytes", len(payload)).Msg("dropping unreadable payload")
		return
	}
	link := domain.Link(payload)
	log.Info().Str("link", link.String()).Msg("downloading started")

	jobID := w.createJob(ctx, link)
	tracker := domain.NewProgressTracker()

	file, err := w.pipeline.Download(ctx, link, func(ev domain.ProgressEvent) {
		switch tracker.Observe(ev) {
		case domain.TransitionStarted:
			log.Info().Str("job_id", jobID).Str("file", ev.Filename).Msg("started downloading")
			w.setStatus(ctx, jobID, domain.StatusDownloading, "")
		case domain.TransitionConverting:
			log.Info().
				Str("job_id", jobID).
				Str("file", ev.Filename).
				Str("size", humanize.Bytes(uint64(max(ev.Bytes, 0)))).
				Msg("done downloading, now converting")
			w.setStatus(ctx, jobID, domain.StatusConverting, "")
		}
	})
	if err != nil {
		log.Error().Err(err).Str("link", link.String()).Str("job_id", jobID).Msg("download failed")
		w.setStatus(ctx, jobID, domain.StatusFailed, err.Error())
		return
	}

	log.Info().Str("link", link.String()).Str("job_id", jobID).Str("file", file).Msg("job completed")
	if w.ledger == nil || jobID == "" {
		return
	}
	if err := w.ledger.Complete(ctx, jobID, file); err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("ledger update failed")
	}
}

// createJob records the link and returns its job ID, or "" when no ledger
// is available.
func (w *Worker) createJob(ctx context.Context, link domain.Link) string {
	if w.ledger == nil {
		return ""
	}
	job, err := w.ledger.Create(ctx, link)
	if err != nil {
		log.Error().Err(err).Str("link", link.String()).Msg("ledger create failed")
		return ""
	}
	return job.ID
}

func (w *Worker) setStatus(ctx context.Context, id string, status domain.JobStatus, reason string) {
	if w.ledger == nil || id == "" {
		return
	}
	// A cancelled ctx must not hide the final status of the job.
	if err := w.ledger.SetStatus(context.WithoutCancel(ctx), id, status, reason); err != nil {
		log.Error().Err(err).Str("job_id", id).Str("status", string(status)).Msg("ledger update failed")
	}
}
