package services

import (
	"context"
	"errors"
	"time"
)

const (
	defaultDebounceWindow  = 250 * time.Millisecond
	defaultRefreshTimeout  = 30 * time.Second
	defaultPipelineBacklog = 256
)

// analyticsTriggers lists the mutations that invalidate derived aggregates.
// Expense edits deliberately trigger on create and delete only; amount
// corrections surface on the next qualifying refresh.
var analyticsTriggers = map[string]map[string]bool{
	mutationEntityCategory: {mutationOpCreate: true, mutationOpUpdate: true, mutationOpDelete: true},
	mutationEntityProduct:  {mutationOpCreate: true, mutationOpUpdate: true, mutationOpDelete: true},
	mutationEntityOrder:    {mutationOpCreate: true, mutationOpUpdate: true, mutationOpDelete: true, mutationOpStatus: true},
	mutationEntityExpense:  {mutationOpCreate: true, mutationOpDelete: true},
	mutationEntityStock:    {mutationOpUpdate: true},
}

// AnalyticsPipelineDeps bundles collaborators for the invalidation pipeline.
type AnalyticsPipelineDeps struct {
	Analytics      AnalyticsService
	Events         <-chan MutationEvent
	Debounce       time.Duration
	RefreshTimeout time.Duration
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

// AnalyticsPipeline listens for committed mutations and refreshes the derived
// aggregates. Bursts are coalesced: events arriving within the debounce window
// share a single refresh pass, and the triggering mutation never waits on it.
type AnalyticsPipeline struct {
	analytics      AnalyticsService
	events         <-chan MutationEvent
	debounce       time.Duration
	refreshTimeout time.Duration
	logger         func(context.Context, string, map[string]any)
}

// NewAnalyticsPipeline wires the pipeline to an event stream.
func NewAnalyticsPipeline(deps AnalyticsPipelineDeps) (*AnalyticsPipeline, error) {
	if deps.Analytics == nil {
		return nil, errors.New("analytics pipeline: analytics service is required")
	}
	if deps.Events == nil {
		return nil, errors.New("analytics pipeline: event channel is required")
	}

	debounce := deps.Debounce
	if debounce <= 0 {
		debounce = defaultDebounceWindow
	}
	refreshTimeout := deps.RefreshTimeout
	if refreshTimeout <= 0 {
		refreshTimeout = defaultRefreshTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &AnalyticsPipeline{
		analytics:      deps.Analytics,
		events:         deps.Events,
		debounce:       debounce,
		refreshTimeout: refreshTimeout,
		logger:         logger,
	}, nil
}

// Run consumes events until the context is cancelled or the channel closes.
// Callers start it on its own goroutine.
func (p *AnalyticsPipeline) Run(ctx context.Context) {
	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending int
	)

	flush := func() {
		count := pending
		pending = 0
		timer = nil
		timerC = nil
		p.refresh(ctx, count)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-p.events:
			if !ok {
				if timer != nil {
					timer.Stop()
					flush()
				}
				return
			}
			if !qualifiesForRefresh(event) {
				continue
			}
			pending++
			if timer == nil {
				timer = time.NewTimer(p.debounce)
				timerC = timer.C
			}
		case <-timerC:
			flush()
		}
	}
}

func (p *AnalyticsPipeline) refresh(ctx context.Context, coalesced int) {
	refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.refreshTimeout)
	defer cancel()

	start := time.Now()
	if _, err := p.analytics.Refresh(refreshCtx); err != nil {
		p.logger(refreshCtx, "analytics.refresh.failed", map[string]any{
			"coalesced": coalesced,
			"error":     err.Error(),
		})
		return
	}
	p.logger(refreshCtx, "analytics.refresh.completed", map[string]any{
		"coalesced": coalesced,
		"elapsed":   time.Since(start).String(),
	})
}

func qualifiesForRefresh(event MutationEvent) bool {
	ops, ok := analyticsTriggers[event.Entity]
	return ok && ops[event.Op]
}
