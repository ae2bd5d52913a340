package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/agenthands/crosswalk/internal/config"
	"github.com/agenthands/crosswalk/internal/core/matching"
	"github.com/agenthands/crosswalk/internal/core/model"
	"github.com/agenthands/crosswalk/internal/logger"
	"github.com/agenthands/crosswalk/internal/metrics"
)

type Store interface {
	GetProduct(ctx context.Context, id string) (model.Product, error)
	ListEligibleProducts(ctx context.Context) ([]model.Product, error)
	ActiveControls(ctx context.Context, productID string) ([]model.Control, error)
	UpsertEdgePair(ctx context.Context, sourceControlID, targetControlID string, confidence float64) error
	ClearPairEdges(ctx context.Context, productA, productB string) (int64, error)
	AllEdges(ctx context.Context) ([]model.MappingEdge, error)
}

// Invalidator is told whenever stored edges change.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

type Options struct {
	Threshold          float64
	BatchSize          int
	PairConcurrency    int
	ControlConcurrency int
	// RemapTimeout bounds a shared remap run, which outlives the callers
	// that joined it.
	RemapTimeout       time.Duration
}

func OptionsFrom(cfg config.MappingConfig) Options {
	return Options{
		Threshold:          cfg.Threshold,
		BatchSize:          cfg.BatchSize,
		PairConcurrency:    cfg.PairConcurrency,
		ControlConcurrency: cfg.ControlConcurrency,
		RemapTimeout:       cfg.RemapTimeout,
	}
}

// Engine drives cross-product control mapping. It is the only component that
// creates or deletes mapping edges.
type Engine struct {
	Store    Store
	Matcher  matching.Matcher
	Coverage Invalidator
	opts     Options
	log      *logger.Logger
	metrics  *metrics.Metrics
	remaps   singleflight.Group
}

func NewEngine(s Store, m matching.Matcher, cov Invalidator, opts Options, baseLog *logger.Logger, mt *metrics.Metrics) *Engine {
	if math.IsNaN(opts.Threshold) || opts.Threshold < 0 || opts.Threshold > 1 {
		opts.Threshold = config.DefaultThreshold
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	if opts.PairConcurrency < 1 {
		opts.PairConcurrency = 1
	}
	if opts.ControlConcurrency < 1 {
		opts.ControlConcurrency = 1
	}
	if opts.RemapTimeout <= 0 {
		opts.RemapTimeout = config.DefaultRemapTimeout
	}
	return &Engine{
		Store:    s,
		Matcher:  m,
		Coverage: cov,
		opts:     opts,
		log:      baseLog.With("component", "engine"),
		metrics:  mt,
	}
}

func (e *Engine) Threshold() float64 { return e.opts.Threshold }

type pairCounter struct {
	mu  sync.Mutex
	res model.PairResult
}

func (c *pairCounter) add(fn func(r *model.PairResult)) {
	c.mu.Lock()
	fn(&c.res)
	c.mu.Unlock()
}

// MapPair matches every active source control against the target product's
// controls and stores accepted matches as edge pairs. Per-control matcher
// failures are counted and skipped; a storage failure aborts the pair.
func (e *Engine) MapPair(ctx context.Context, sourceID, targetID string) (model.PairResult, error) {
	result := model.PairResult{SourceProductID: sourceID, TargetProductID: targetID}
	if sourceID == targetID {
		return result, fmt.Errorf("%w: %s", model.ErrSameProduct, sourceID)
	}
	if _, err := e.Store.GetProduct(ctx, sourceID); err != nil {
		return result, err
	}
	if _, err := e.Store.GetProduct(ctx, targetID); err != nil {
		return result, err
	}

	sources, err := e.Store.ActiveControls(ctx, sourceID)
	if err != nil {
		return result, err
	}
	allTargets, err := e.Store.ActiveControls(ctx, targetID)
	if err != nil {
		return result, err
	}
	if len(sources) == 0 || len(allTargets) == 0 {
		return result, nil
	}

	targets := make([]model.Control, 0, len(allTargets))
	candidates := make([]string, 0, len(allTargets))
	for _, t := range allTargets {
		if t.HasText() {
			targets = append(targets, t)
			candidates = append(candidates, t.Text)
		}
	}

	counter := &pairCounter{res: result}
	pending := make([]model.Control, 0, len(sources))
	for _, s := range sources {
		if !s.HasText() {
			counter.res.Skipped++
			e.metrics.ControlSkipped("blank")
			continue
		}
		pending = append(pending, s)
	}
	if len(candidates) == 0 {
		counter.res.Skipped += len(pending)
		counter.res.Rejected += len(pending)
		return counter.res, nil
	}

	log := e.log.With("source_product_id", sourceID, "target_product_id", targetID)
	var batcher matching.BatchMatcher
	size := 1
	if b, ok := e.Matcher.(matching.BatchMatcher); ok && e.opts.BatchSize > 1 {
		batcher, size = b, e.opts.BatchSize
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.ControlConcurrency)
	for start := 0; start < len(pending); start += size {
		chunk := pending[start:min(start+size, len(pending))]
		g.Go(func() error {
			results, err := e.match(gctx, batcher, chunk, candidates)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.Warn("matcher unavailable, skipping controls", "controls", len(chunk), "error", err)
				counter.add(func(r *model.PairResult) {
					r.Skipped += len(chunk)
					r.Unavailable += len(chunk)
				})
				for range chunk {
					e.metrics.ControlSkipped("unavailable")
				}
				return nil
			}
			for i, res := range results {
				src := chunk[i]
				if !res.Matched || res.Confidence < e.opts.Threshold {
					counter.add(func(r *model.PairResult) {
						r.Skipped++
						r.Rejected++
					})
					e.metrics.ControlSkipped("rejected")
					continue
				}
				tgt := targets[res.Index]
				if err := e.Store.UpsertEdgePair(gctx, src.ID, tgt.ID, res.Confidence); err != nil {
					return fmt.Errorf("store edge %s->%s: %w", src.ID, tgt.ID, err)
				}
				counter.add(func(r *model.PairResult) { r.Accepted++ })
				e.metrics.EdgePairWritten()
				log.Debug("edge accepted", "source_control_id", src.ID, "target_control_id", tgt.ID, "confidence", res.Confidence)
			}
			return nil
		})
	}
	err = g.Wait()

	counter.mu.Lock()
	result = counter.res
	counter.mu.Unlock()

	if result.Accepted > 0 && e.Coverage != nil {
		e.Coverage.Invalidate(context.WithoutCancel(ctx))
	}
	return result, err
}

func (e *Engine) match(ctx context.Context, batcher matching.BatchMatcher, chunk []model.Control, candidates []string) ([]matching.Result, error) {
	if batcher == nil {
		out := make([]matching.Result, 0, len(chunk))
		for _, c := range chunk {
			res, err := e.Matcher.Match(ctx, c.Text, candidates)
			if err != nil {
				return nil, err
			}
			out = append(out, res)
		}
		return out, nil
	}
	sources := make([]string, len(chunk))
	for i, c := range chunk {
		sources[i] = c.Text
	}
	results, err := batcher.MatchBatch(ctx, sources, candidates)
	if err != nil {
		return nil, err
	}
	if len(results) != len(chunk) {
		return nil, fmt.Errorf("%w: batch answered %d of %d sources", matching.ErrUnavailable, len(results), len(chunk))
	}
	return results, nil
}

// MapAll maps every ordered pair of distinct eligible products among ids.
// Unknown or ineligible ids are reported as ignored. A failing pair is
// recorded and does not stop the others; cancellation stops scheduling new
// pairs and finished pairs keep their edges.
func (e *Engine) MapAll(ctx context.Context, productIDs []string) (model.BatchResult, error) {
	var batch model.BatchResult

	eligible, err := e.Store.ListEligibleProducts(ctx)
	if err != nil {
		return batch, err
	}
	isEligible := make(map[string]bool, len(eligible))
	for _, p := range eligible {
		isEligible[p.ID] = true
	}

	seen := make(map[string]bool, len(productIDs))
	var ids []string
	for _, id := range productIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if !isEligible[id] {
			batch.Ignored = append(batch.Ignored, id)
			continue
		}
		ids = append(ids, id)
	}
	if len(batch.Ignored) > 0 {
		e.log.Warn("ignoring unknown or ineligible products", "product_ids", batch.Ignored)
	}

	type pair struct{ src, tgt string }
	var pairs []pair
	for _, a := range ids {
		for _, b := range ids {
			if a != b {
				pairs = append(pairs, pair{a, b})
			}
		}
	}

	outcomes := make([]*model.PairOutcome, len(pairs))
	e.log.Info("mapping products", "products", len(ids), "pairs", len(pairs))
	e.runPairs(ctx, len(pairs), func(i int) {
		p := pairs[i]
		outcomes[i] = e.runPair(ctx, p.src, p.tgt)
	})

	for _, o := range outcomes {
		if o == nil {
			continue
		}
		if o.Error != "" {
			batch.Failed++
		}
		batch.Pairs = append(batch.Pairs, *o)
	}
	e.log.Info("mapping finished", "pairs_run", len(batch.Pairs), "pairs_failed", batch.Failed)
	return batch, ctx.Err()
}

// Remap recomputes every edge between productID and the other eligible
// products. For each counterpart the existing edges in both directions are
// cleared before the pair is mapped again. Concurrent calls for the same
// product share one run. The shared run is detached from the caller that
// started it and bounded by RemapTimeout; a caller whose context ends stops
// waiting without cancelling the run for the others.
func (e *Engine) Remap(ctx context.Context, productID string) (model.RemapResult, error) {
	ch := e.remaps.DoChan(productID, func() (interface{}, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.RemapTimeout)
		defer cancel()
		return e.remap(runCtx, productID)
	})

	select {
	case r := <-ch:
		if r.Shared {
			e.log.Debug("remap coalesced", "product_id", productID)
		}
		res, _ := r.Val.(model.RemapResult)
		return res, r.Err
	case <-ctx.Done():
		return model.RemapResult{ProductID: productID}, ctx.Err()
	}
}

func (e *Engine) remap(ctx context.Context, productID string) (model.RemapResult, error) {
	result := model.RemapResult{ProductID: productID}

	p, err := e.Store.GetProduct(ctx, productID)
	if err != nil {
		return result, err
	}
	if !p.Eligible() {
		return result, fmt.Errorf("%w: %s is not eligible", model.ErrProductNotFound, productID)
	}

	eligible, err := e.Store.ListEligibleProducts(ctx)
	if err != nil {
		return result, err
	}
	var others []string
	for _, o := range eligible {
		if o.ID != productID {
			others = append(others, o.ID)
		}
	}
	if len(others) == 0 {
		return result, nil
	}

	outcomes := make([]*model.PairOutcome, len(others))
	cleared := make([]int64, len(others))
	e.runPairs(ctx, len(others), func(i int) {
		other := others[i]
		n, err := e.Store.ClearPairEdges(ctx, productID, other)
		if err != nil {
			e.log.Error("clearing edges failed", "product_id", productID, "counterpart_id", other, "error", err)
			outcomes[i] = &model.PairOutcome{
				PairResult: model.PairResult{SourceProductID: productID, TargetProductID: other},
				Error:      err.Error(),
			}
			return
		}
		cleared[i] = n
		e.metrics.EdgesCleared(n)
		if n > 0 && e.Coverage != nil {
			e.Coverage.Invalidate(context.WithoutCancel(ctx))
		}
		outcomes[i] = e.runPair(ctx, productID, other)
	})

	for i, o := range outcomes {
		result.Cleared += cleared[i]
		if o != nil {
			result.Counterparts = append(result.Counterparts, *o)
		}
	}
	e.log.Info("remap finished", "product_id", productID, "counterparts", len(result.Counterparts), "cleared", result.Cleared)
	return result, ctx.Err()
}

// AllEdges returns the full edge snapshot for synchronization consumers.
func (e *Engine) AllEdges(ctx context.Context) ([]model.MappingEdge, error) {
	return e.Store.AllEdges(ctx)
}

// runPairs calls fn for indices [0,n) with PairConcurrency workers and stops
// scheduling once ctx is done.
func (e *Engine) runPairs(ctx context.Context, n int, fn func(i int)) {
	var g errgroup.Group
	g.SetLimit(e.opts.PairConcurrency)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			fn(i)
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Engine) runPair(ctx context.Context, src, tgt string) *model.PairOutcome {
	start := time.Now()
	res, err := e.MapPair(ctx, src, tgt)
	e.metrics.PairFinished(time.Since(start), err)

	out := &model.PairOutcome{PairResult: res}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			e.log.Warn("pair interrupted", "source_product_id", src, "target_product_id", tgt, "error", err)
		} else {
			e.log.Error("pair failed", "source_product_id", src, "target_product_id", tgt, "error", err)
		}
		out.Error = err.Error()
		return out
	}
	e.log.Info("pair mapped",
		"source_product_id", src,
		"target_product_id", tgt,
		"accepted", res.Accepted,
		"skipped", res.Skipped,
		"unavailable", res.Unavailable,
		"duration", time.Since(start),
	)
	return out
}
