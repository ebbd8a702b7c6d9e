package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pricenorm/internal"
	"pricenorm/internal/logging"
	"pricenorm/internal/registry"
	"pricenorm/internal/util"
	"pricenorm/internal/workbook"
)

type Options struct {
	HeaderScanRows int
	SampleRows     int
	MinConfidence  float64
	FileTimeout    time.Duration
	Workers        int
}

func DefaultOptions() Options {
	return Options{
		HeaderScanRows: 20,
		SampleRows:     30,
		MinConfidence:  0.2,
		FileTimeout:    2 * time.Minute,
		Workers:        4,
	}
}

type Input struct {
	Path            string
	Data            []byte
	ReferencePeriod time.Time
}

type WorkbookResult struct {
	Path     string
	Match    internal.MatchResult
	Outcomes []internal.RecordOutcome
	Summary  internal.WorkbookSummary
	Status   internal.WorkbookStatus
	Err      error
	Duration time.Duration
}

func (r WorkbookResult) Accepted() []internal.ServiceRecord {
	out := make([]internal.ServiceRecord, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if o.Outcome.Valid {
			out = append(out, o.Record)
		}
	}
	return out
}

// Engine runs the per-workbook pipeline: match, extract, reconcile, derive
// and validate. It holds no per-run state and is safe for concurrent use.
type Engine struct {
	reg       *registry.Registry
	matcher   *Matcher
	extractor *Extractor
	validator *Validator
	opts      Options
}

func NewEngine(reg *registry.Registry, opts Options) *Engine {
	def := DefaultOptions()
	if opts.HeaderScanRows <= 0 {
		opts.HeaderScanRows = def.HeaderScanRows
	}
	if opts.SampleRows <= 0 {
		opts.SampleRows = def.SampleRows
	}
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	return &Engine{
		reg:       reg,
		matcher:   NewMatcher(reg, opts.MinConfidence, opts.HeaderScanRows),
		extractor: NewExtractor(opts.HeaderScanRows),
		validator: NewValidator(),
		opts:      opts,
	}
}

func (e *Engine) Registry() *registry.Registry {
	return e.reg
}

// Process runs one workbook under the per-file time budget. Failures stay
// inside the returned result.
func (e *Engine) Process(ctx context.Context, in Input) WorkbookResult {
	start := time.Now()
	log := logging.WithFields(ctx, "file", in.Path)

	if err := ctx.Err(); err != nil {
		return cancelledResult(in, err)
	}

	var (
		fctx   context.Context
		cancel context.CancelFunc
	)
	if e.opts.FileTimeout > 0 {
		fctx, cancel = context.WithTimeoutCause(ctx, e.opts.FileTimeout, ErrFileTimeout)
	} else {
		fctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	done := make(chan WorkbookResult, 1)
	go func() { done <- e.process(fctx, in) }()

	var res WorkbookResult
	select {
	case res = <-done:
	case <-fctx.Done():
		res = WorkbookResult{Path: in.Path, Err: fctx.Err()}
	}
	if res.Err != nil && fctx.Err() != nil {
		if ctx.Err() != nil {
			res.Status, res.Err = internal.StatusCancelled, ctx.Err()
		} else {
			res.Status, res.Err = internal.StatusFailed, ErrFileTimeout
		}
	}
	res.Duration = time.Since(start)

	switch res.Status {
	case internal.StatusProcessed:
		log.Info("workbook processed",
			"authority", res.Match.Authority,
			"confidence", fmt.Sprintf("%.2f", res.Match.Confidence),
			"fallback", res.Match.Fallback,
			"accepted", res.Summary.Accepted,
			"rejected", res.Summary.Rejected,
			"join_dropped", res.Summary.JoinDropped,
			"duration_ms", res.Duration.Milliseconds(),
		)
	case internal.StatusCancelled:
		log.Warn("workbook cancelled", "error", res.Err)
	default:
		log.Error("workbook failed", "error", res.Err)
	}
	return res
}

func (e *Engine) process(ctx context.Context, in Input) WorkbookResult {
	res := WorkbookResult{Path: in.Path, Status: internal.StatusFailed}
	log := logging.WithFields(ctx, "file", in.Path)

	data := in.Data
	if data == nil {
		if in.Path == "" {
			res.Err = ErrNoInput
			return res
		}
		raw, err := os.ReadFile(in.Path)
		if err != nil {
			res.Err = fmt.Errorf("read workbook: %w", err)
			return res
		}
		data = raw
	}

	wb, err := workbook.Read(in.Path, data)
	if err != nil {
		res.Err = err
		return res
	}

	res.Match = e.matcher.Match(Signature(wb, e.opts.SampleRows))
	profile, ok := e.reg.Lookup(res.Match.Authority)
	if !ok {
		res.Err = fmt.Errorf("matched authority %s is not registered", res.Match.Authority)
		return res
	}
	log.Debug("layout matched", "authority", profile.ID, "confidence", res.Match.Confidence, "fallback", res.Match.Fallback, "sheet", res.Match.Sheet)

	sheets, err := e.extractor.Extract(ctx, wb, profile)
	if err != nil {
		res.Err = err
		return res
	}
	for _, s := range sheets {
		res.Summary.RowsExtracted += len(s.Rows)
		res.Summary.CellParseFailures += s.ParseFailures
		log.Debug("sheet extracted", "sheet", s.Sheet, "header_row", s.Header.Row+1, "rows", len(s.Rows))
	}
	res.Summary.Sheets = len(sheets)

	merged, stats := Reconcile(sheets, profile)
	res.Summary.Merged = stats.Merged
	res.Summary.JoinDropped = stats.JoinDropped
	res.Summary.Duplicates = stats.Duplicates

	period := in.ReferencePeriod
	if period.IsZero() {
		period = time.Now()
	}
	reference := util.MonthStart(period)
	origin := filepath.Base(in.Path)
	res.Outcomes = make([]internal.RecordOutcome, 0, len(merged))
	for _, row := range merged {
		rec, skipped := buildRecord(row, profile, origin, reference)
		if skipped {
			res.Summary.DerivationSkipped++
		}
		res.Outcomes = append(res.Outcomes, internal.RecordOutcome{
			Record:  rec,
			Outcome: e.validator.Validate(rec, profile, reference),
		})
	}

	res.Summary.Duplicates += markDuplicates(map[string]bool{}, res.Outcomes)
	tally(&res)
	res.Status = internal.StatusProcessed
	return res
}

func buildRecord(row internal.MergedRow, p *registry.Profile, origin string, reference time.Time) (internal.ServiceRecord, bool) {
	rec := internal.ServiceRecord{
		Authority:   p.ID,
		OriginFile:  origin,
		Code:        util.NormalizeCode(row.Code),
		Description: util.NormalizeSpaces(row.Description),
		Unit:        strings.TrimSpace(row.Unit),
		TaxLoaded:   p.TaxLoaded && !row.Unloaded,
		Quantity:    row.Quantity,
		Aux:         row.Aux,
		Sheet:       row.Sheet,
		Row:         row.RowIndex,
	}

	if row.BaseDate == "" {
		rec.BaseDate = reference
	} else if t, ok := util.ParseDate(row.BaseDate); ok {
		rec.BaseDate = t
	}

	if row.UnitPrice != nil {
		v := roundMoney(*row.UnitPrice)
		rec.UnitValue = &v
	}

	if d, ok := Derive(row, p); ok {
		v := roundMoney(d.Value)
		rate := d.Rate
		rec.OverheadValue = &v
		rec.OverheadRate = &rate
		return rec, false
	}
	return rec, p.OverheadEnabled
}

// markDuplicates flags every valid record whose key was already claimed,
// keeping the first occurrence. It returns how many were flagged.
func markDuplicates(seen map[string]bool, outcomes []internal.RecordOutcome) int {
	n := 0
	for i := range outcomes {
		o := &outcomes[i]
		if !o.Outcome.Valid {
			continue
		}
		key := o.Record.Key()
		if seen[key] {
			o.Outcome.Add(duplicateViolation(o.Record))
			n++
			continue
		}
		seen[key] = true
	}
	return n
}

func tally(res *WorkbookResult) {
	res.Summary.Accepted, res.Summary.Rejected = 0, 0
	for _, o := range res.Outcomes {
		if o.Outcome.Valid {
			res.Summary.Accepted++
		} else {
			res.Summary.Rejected++
		}
	}
}

func cancelledResult(in Input, err error) WorkbookResult {
	if err == nil {
		err = context.Canceled
	}
	return WorkbookResult{Path: in.Path, Status: internal.StatusCancelled, Err: err}
}

// IsTimeout reports whether a workbook failed on its time budget rather than
// on batch cancellation.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrFileTimeout)
}
