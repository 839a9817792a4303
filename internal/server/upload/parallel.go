package upload

import (
	"context"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/dropvault/dropvault/internal/logging"
	"github.com/dropvault/dropvault/internal/server/content"
)

// Item is one independent whole-file upload in a batch. Open is called
// from a worker goroutine; an Open failure fails only this item.
type Item struct {
	Name     string
	ParentID *string
	Open     func() (io.ReadCloser, error)
}

// Result reports the outcome for one Item. Exactly one Result is
// produced per input; Err is set on failure, FileID on success.
type Result struct {
	FileID string
	Name   string
	Err    error
}

// Parallel drives independent whole-file uploads through the content
// store with bounded concurrency. Construct once and share by reference.
type Parallel struct {
	content *content.Service
	workers int
	logger  logging.Logger
}

// NewParallel builds a coordinator with a fixed worker limit.
func NewParallel(cs *content.Service, workers int, logger logging.Logger) *Parallel {
	if workers <= 0 {
		workers = 1
	}
	return &Parallel{
		content: cs,
		workers: workers,
		logger:  logger.With("module", "parallel_upload"),
	}
}

// UploadAll uploads every item, queueing excess work instead of spawning
// unbounded goroutines. Failures are collected per item and never abort
// the batch; results are indexed to match the input order.
func (p *Parallel) UploadAll(ctx context.Context, ownerID string, items []Item) []Result {
	results := make([]Result, len(items))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i, item := range items {
		g.Go(func() error {
			results[i] = p.uploadOne(ctx, ownerID, item)
			return nil
		})
	}
	// Workers never return errors; Wait is only a join point.
	_ = g.Wait()

	return results
}

func (p *Parallel) uploadOne(ctx context.Context, ownerID string, item Item) Result {
	res := Result{Name: item.Name}

	src, err := item.Open()
	if err != nil {
		res.Err = err
		return res
	}
	defer src.Close()

	rec, _, err := p.content.Put(ctx, ownerID, item.Name, item.ParentID, src)
	if err != nil {
		p.logger.Warn(ctx, "parallel upload item failed", "name", item.Name, "error", err)
		res.Err = err
		return res
	}
	res.FileID = rec.ID
	return res
}
