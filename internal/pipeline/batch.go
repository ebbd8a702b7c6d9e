package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"pricenorm/internal"
	"pricenorm/internal/logging"
)

type BatchResult struct {
	ID         string
	Workbooks  []WorkbookResult
	Duplicates int
	Duration   time.Duration
}

// Outcomes flattens every workbook's outcomes in input order.
func (b BatchResult) Outcomes() []internal.RecordOutcome {
	var out []internal.RecordOutcome
	for _, wb := range b.Workbooks {
		out = append(out, wb.Outcomes...)
	}
	return out
}

func (b BatchResult) Accepted() []internal.ServiceRecord {
	var out []internal.ServiceRecord
	for _, wb := range b.Workbooks {
		out = append(out, wb.Accepted()...)
	}
	return out
}

func (b BatchResult) Count(status internal.WorkbookStatus) int {
	n := 0
	for _, wb := range b.Workbooks {
		if wb.Status == status {
			n++
		}
	}
	return n
}

// RunBatch processes workbooks on a bounded pool. Each worker fills only its
// own result slot; records are merged in input order once all workers are
// done, and a key already taken by an earlier workbook marks the later record
// as a duplicate.
func (e *Engine) RunBatch(ctx context.Context, inputs []Input) BatchResult {
	start := time.Now()
	batch := BatchResult{ID: uuid.NewString(), Workbooks: make([]WorkbookResult, len(inputs))}
	ctx = logging.WithBatch(ctx, batch.ID)
	log := logging.FromContext(ctx)
	log.Info("batch started", "workbooks", len(inputs), "workers", e.opts.Workers)

	g := new(errgroup.Group)
	g.SetLimit(e.opts.Workers)
	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			batch.Workbooks[i] = cancelledResult(in, err)
			continue
		}
		g.Go(func() error {
			batch.Workbooks[i] = e.Process(ctx, in)
			return nil
		})
	}
	_ = g.Wait()

	seen := map[string]bool{}
	for i := range batch.Workbooks {
		wb := &batch.Workbooks[i]
		if wb.Status != internal.StatusProcessed {
			continue
		}
		n := markDuplicates(seen, wb.Outcomes)
		if n > 0 {
			wb.Summary.Duplicates += n
			tally(wb)
			batch.Duplicates += n
		}
	}
	batch.Duration = time.Since(start)

	log.Info("batch finished",
		"processed", batch.Count(internal.StatusProcessed),
		"failed", batch.Count(internal.StatusFailed),
		"cancelled", batch.Count(internal.StatusCancelled),
		"accepted", len(batch.Accepted()),
		"cross_file_duplicates", batch.Duplicates,
		"duration_ms", batch.Duration.Milliseconds(),
	)
	return batch
}
