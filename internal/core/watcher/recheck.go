package watcher

import (
	"context"
	"log/slog"
	"time"

	"validatetest/internal/core/ports"
	"validatetest/internal/shared/observability"
	"validatetest/internal/shared/util"
)

// Outcome labels of a recheck.
const (
	OutcomeClean     = "clean"
	OutcomeErrors    = "errors"
	OutcomeUnchanged = "unchanged"
	OutcomeFailed    = "failed"
)

// Result is the recheck of one changed file.
type Result struct {
	Batch    string
	Path     string
	Outcome  string
	Document *ports.Document
	Err      error
}

// Rechecker reparses the files of each batch through a document service,
// no faster than its limiter allows.
type Rechecker struct {
	svc     ports.Rechecker
	limiter *util.Limiter
	report  func(Result)
	logger  *slog.Logger
}

// NewRechecker builds a Rechecker doing at most perSecond rechecks with the
// given burst. A non-positive rate disables the limit.
func NewRechecker(svc ports.Rechecker, perSecond float64, burst int, report func(Result)) *Rechecker {
	return &Rechecker{
		svc:     svc,
		limiter: util.NewLimiter(perSecond, burst),
		report:  report,
		logger:  slog.Default(),
	}
}

// Handle rechecks every path of b in order. It stops early when ctx ends.
func (r *Rechecker) Handle(ctx context.Context, b Batch) {
	start := time.Now()
	r.logger.Debug("rechecking batch", "batch", b.ID, "files", len(b.Paths))
	for _, path := range b.Paths {
		if err := r.limiter.Wait(ctx, 1); err != nil {
			r.logger.Debug("recheck batch cancelled", "batch", b.ID, "error", err)
			return
		}
		r.recheck(ctx, b.ID, path)
	}
	r.logger.Debug("batch rechecked", "batch", b.ID, "elapsed", time.Since(start))
}

func (r *Rechecker) recheck(ctx context.Context, batch, path string) {
	var prevVersion int
	if doc, ok := r.svc.Document(path); ok {
		prevVersion = doc.Version
	}
	res := Result{Batch: batch, Path: path}
	doc, err := r.svc.Recheck(ctx, path)
	switch {
	case err != nil:
		res.Outcome, res.Err = OutcomeFailed, err
	case doc.Version == prevVersion:
		res.Outcome, res.Document = OutcomeUnchanged, doc
	case len(doc.Diagnostics) > 0:
		res.Outcome, res.Document = OutcomeErrors, doc
	default:
		res.Outcome, res.Document = OutcomeClean, doc
	}
	observability.WatcherRechecksTotal.WithLabelValues(res.Outcome).Inc()
	if r.report != nil {
		r.report(res)
	}
}
