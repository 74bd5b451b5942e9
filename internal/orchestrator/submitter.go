// Package orchestrator runs contact-form submissions end to end. Each
// request passes a per-domain gate and a global gate, leases an isolated
// browser context, and walks the ranked form candidates until one yields a
// success signal.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/detect"
	"github.com/xkilldash9x/formpilot/internal/dom"
	"github.com/xkilldash9x/formpilot/internal/fieldmap"
	"github.com/xkilldash9x/formpilot/internal/fill"
	"github.com/xkilldash9x/formpilot/internal/overlay"
	"github.com/xkilldash9x/formpilot/internal/pool"
	"github.com/xkilldash9x/formpilot/internal/verdict"
)

const (
	eventBuffer    = 256
	cleanupTimeout = 30 * time.Second
)

// ContextPool leases execution contexts.
type ContextPool interface {
	Acquire(ctx context.Context) (pool.Context, error)
	Release(ctx context.Context, c pool.Context)
}

// Stats are the queue counters exposed on the health surface.
type Stats struct {
	GlobalActive  int            `json:"active"`
	GlobalPending int            `json:"pending"`
	DomainPending map[string]int `json:"domain_pending"`
	Domains       int            `json:"domains"`
}

// Submitter is safe for concurrent use.
type Submitter struct {
	cfg    config.SubmitConfig
	logger *zap.Logger
	pool   ContextPool

	detector   *detect.Detector
	filler     *fill.Filler
	neutralize *overlay.Neutralizer
	classifier *verdict.Classifier

	discovery Discoverer
	minScore  int

	global  *Gate
	domains *DomainGate
	events  chan schemas.ProgressEvent

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Option customizes a Submitter.
type Option func(*Submitter)

// WithDiscovery enables RunDiscovered.
func WithDiscovery(d Discoverer, minScore int) Option {
	return func(s *Submitter) {
		s.discovery = d
		s.minScore = minScore
	}
}

// New builds a submitter and starts its domain gate sweep.
func New(cfg config.SubmitConfig, p ContextPool, logger *zap.Logger, opts ...Option) *Submitter {
	s := &Submitter{
		cfg:        cfg,
		logger:     logger.Named("submitter"),
		pool:       p,
		detector:   detect.New(logger),
		filler:     fill.New(logger),
		neutralize: overlay.New(logger),
		classifier: verdict.New(logger),
		global:     NewGate(cfg.GlobalConcurrency),
		domains:    NewDomainGate(cfg.PerDomainConcurrency, cfg.DomainLockTTL, cfg.DomainLockMax),
		events:     make(chan schemas.ProgressEvent, eventBuffer),
		stop:       make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if cfg.DomainSweepInterval > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.domains.run(cfg.DomainSweepInterval, s.stop)
		}()
	}
	return s
}

// Events is a lossy progress stream. It is never closed.
func (s *Submitter) Events() <-chan schemas.ProgressEvent { return s.events }

func (s *Submitter) emit(ev schemas.ProgressEvent) {
	ev.At = time.Now()
	select {
	case s.events <- ev:
	default:
	}
}

// Stats reports gate occupancy.
func (s *Submitter) Stats() Stats {
	return Stats{
		GlobalActive:  s.global.Active(),
		GlobalPending: s.global.Pending(),
		DomainPending: s.domains.PendingAll(),
		Domains:       s.domains.Len(),
	}
}

// DomainPending is the number of requests queued for host.
func (s *Submitter) DomainPending(host string) int { return s.domains.Pending(host) }

// Close stops the background sweep. In-flight submissions are unaffected.
func (s *Submitter) Close() {
	s.closeOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}

// SubmitBatch submits every request through the same gates and returns the
// results in input order.
func (s *Submitter) SubmitBatch(ctx context.Context, reqs []schemas.Request) []schemas.Result {
	results := make([]schemas.Result, len(reqs))
	var g errgroup.Group
	for i, req := range reqs {
		g.Go(func() error {
			results[i] = s.Submit(ctx, req)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Submit runs one request to a terminal result. It never returns without a
// result and never panics.
func (s *Submitter) Submit(ctx context.Context, req schemas.Request) (res schemas.Result) {
	started := time.Now()
	res = schemas.Result{ID: req.ID, URL: req.URL}
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	logger := s.logger.With(zap.String("attempt_id", res.ID), zap.String("url", req.URL))
	defer func() {
		res.ElapsedMS = time.Since(started).Milliseconds()
		res.FinishedAt = time.Now()
		logger.Info("Submission finished.",
			zap.String("status", string(res.Status)),
			zap.String("reason", res.Reason),
			zap.Int64("ms", res.ElapsedMS))
	}()

	host, err := HostOf(req.URL)
	if err != nil {
		s.failWith(ctx, &res, err)
		return res
	}
	res.Host = host

	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	releaseDomain, err := s.domains.Acquire(ctx, host)
	if err != nil {
		s.failWith(ctx, &res, fmt.Errorf("waiting for domain slot: %w", err))
		return res
	}
	defer releaseDomain()

	releaseGlobal, err := s.global.Acquire(ctx)
	if err != nil {
		s.failWith(ctx, &res, fmt.Errorf("waiting for global slot: %w", err))
		return res
	}
	defer releaseGlobal()

	s.attempt(ctx, logger, req, &res)
	return res
}

// failWith turns err into an error result. A deadline is reported as a
// request timeout only when the request context itself has expired.
func (s *Submitter) failWith(ctx context.Context, res *schemas.Result, err error) {
	res.Status = schemas.StatusError
	res.Error = err.Error()
	if errors.Is(err, context.DeadlineExceeded) && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.Reason = schemas.ReasonRequestTimeout
	}
}

func (s *Submitter) attempt(ctx context.Context, logger *zap.Logger, req schemas.Request, res *schemas.Result) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Submission attempt panicked.", zap.Any("panic", r), zap.Stack("stack"))
			res.Status = schemas.StatusError
			res.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	ec, err := s.pool.Acquire(ctx)
	if err != nil {
		logger.Warn("Could not lease an execution context.", zap.Error(err))
		s.failWith(ctx, res, err)
		return
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		s.pool.Release(cleanupCtx, ec)
	}()

	page, err := ec.NewPage(ctx)
	if err != nil {
		s.failWith(ctx, res, fmt.Errorf("failed to open page: %w", err))
		return
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		if res.Status == schemas.StatusFail || res.Status == schemas.StatusError {
			s.capture(cleanupCtx, logger, page, res)
		}
		if err := page.Close(cleanupCtx); err != nil {
			logger.Debug("Page close failed.", zap.Error(err))
		}
	}()

	s.run(ctx, logger, page, req, res)
}

// run is the state machine proper: navigate, detect, then try candidates.
func (s *Submitter) run(ctx context.Context, logger *zap.Logger, page dom.Page, req schemas.Request, res *schemas.Result) {
	navCtx, cancelNav := withOptionalTimeout(ctx, s.cfg.NavTimeout)
	err := page.Navigate(navCtx, req.URL)
	cancelNav()
	if err != nil {
		logger.Warn("Navigation failed.", zap.Error(err))
		s.failWith(ctx, res, err)
		if res.Reason == "" && errors.Is(err, context.DeadlineExceeded) {
			res.Reason = schemas.ReasonNavTimeout
		}
		return
	}
	if u, err := page.URL(ctx); err == nil && u != "" {
		res.URL = u
	}
	s.emit(schemas.ProgressEvent{AttemptID: res.ID, Kind: schemas.EventNavigated, URL: res.URL})

	findCtx, cancelFind := withOptionalTimeout(ctx, s.cfg.FindTimeout)
	cands := s.detector.FindCandidates(findCtx, page)
	cancelFind()
	s.emit(schemas.ProgressEvent{AttemptID: res.ID, Kind: schemas.EventCandidatesFound, Detail: fmt.Sprintf("%d", len(cands))})
	if len(cands) == 0 {
		if ctx.Err() != nil {
			s.failWith(ctx, res, ctx.Err())
			return
		}
		res.Status = schemas.StatusFail
		res.Verdict = schemas.VerdictFail
		res.Reason = schemas.ReasonNoFormFound
		return
	}

	limit := s.cfg.MaxCandidates
	if limit <= 0 || limit > len(cands) {
		limit = len(cands)
	}
	for i, cand := range cands[:limit] {
		if err := ctx.Err(); err != nil {
			s.failWith(ctx, res, err)
			return
		}
		trace, v := s.tryCandidate(ctx, logger, page, req.Payload, res.ID, i, cand)
		res.Candidates = append(res.Candidates, trace)
		if trace.Skipped {
			continue
		}
		if v != schemas.VerdictFail {
			res.Status = schemas.StatusFromVerdict(v)
			res.Verdict = v
			return
		}
	}
	if err := ctx.Err(); err != nil {
		s.failWith(ctx, res, err)
		return
	}
	res.Status = schemas.StatusFail
	res.Verdict = schemas.VerdictFail
	res.Reason = schemas.ReasonNoSuccessSignal
}

func (s *Submitter) tryCandidate(ctx context.Context, logger *zap.Logger, page dom.Page, payload schemas.Payload, attemptID string, idx int, cand detect.Candidate) (schemas.CandidateTrace, schemas.Verdict) {
	trace := schemas.CandidateTrace{Ref: cand.Ref(), Score: cand.Score}
	defer func() {
		s.emit(schemas.ProgressEvent{AttemptID: attemptID, Kind: schemas.EventCandidateTried, Candidate: idx, Verdict: trace.Verdict})
	}()

	form, err := page.Form(ctx, cand.Ref())
	if err != nil {
		logger.Debug("Form snapshot failed.", zap.String("root", cand.Ref()), zap.Error(err))
		trace.Skipped = true
		return trace, schemas.VerdictFail
	}
	m := fieldmap.Map(form)
	trace.Slots = m.SlotNames()
	if !m.HasCore() {
		logger.Debug("Candidate lacks core slots.", zap.String("root", cand.Ref()), zap.Strings("slots", trace.Slots))
		trace.Skipped = true
		return trace, schemas.VerdictFail
	}

	onFill := func(slot string) {
		s.emit(schemas.ProgressEvent{AttemptID: attemptID, Kind: schemas.EventSlotFilled, Candidate: idx, Slot: slot})
	}
	var report fill.Report
	if s.cfg.AltFiller {
		report = s.filler.FillAnything(ctx, page, form, payload, onFill)
	} else {
		report = s.filler.Fill(ctx, page, m, payload, onFill)
	}
	logger.Debug("Candidate filled.", zap.String("root", cand.Ref()), zap.Int("filled", report.Count()), zap.Int("failed", len(report.Failed)))

	submit := m.Get(fieldmap.SlotSubmit).Ref
	s.submit(ctx, logger, page, submit, true)

	opts := verdict.Options{Timeout: s.cfg.VerdictTimeout, Settle: s.cfg.Settle}
	v := s.classify(ctx, logger, page, opts)
	if v == schemas.VerdictFail && ctx.Err() == nil {
		trace.Retried = true
		s.submit(ctx, logger, page, submit, false)
		v = s.classify(ctx, logger, page, opts)
	}
	trace.Verdict = v
	s.emit(schemas.ProgressEvent{AttemptID: attemptID, Kind: schemas.EventVerdictReached, Candidate: idx, Verdict: v})
	return trace, v
}

// submit clears overlays and clicks the submit control. The first try also
// presses Enter in case the click was swallowed.
func (s *Submitter) submit(ctx context.Context, logger *zap.Logger, page dom.Page, ref string, first bool) {
	s.neutralize.Neutralize(ctx, page)
	if err := page.Click(ctx, ref); err != nil {
		logger.Debug("Submit click failed.", zap.String("ref", ref), zap.Error(err))
	}
	if !first {
		return
	}
	if err := page.PressKey(ctx, dom.KeyEnter); err != nil {
		logger.Debug("Enter key failed.", zap.Error(err))
	}
}

func (s *Submitter) classify(ctx context.Context, logger *zap.Logger, page dom.Page, opts verdict.Options) schemas.Verdict {
	v, _, err := s.classifier.WaitForSuccess(ctx, page, opts)
	if err != nil {
		logger.Debug("Classification failed.", zap.Error(err))
		return schemas.VerdictFail
	}
	return v
}

// capture attaches a screenshot to a failed result and optionally writes it
// to the screenshot directory.
func (s *Submitter) capture(ctx context.Context, logger *zap.Logger, page dom.Page, res *schemas.Result) {
	if !s.cfg.ScreenshotOnFail {
		return
	}
	quality := s.cfg.ScreenshotQuality
	if quality <= 0 {
		quality = 80
	}
	shot, err := page.Screenshot(ctx, quality)
	if err != nil {
		logger.Debug("Screenshot failed.", zap.Error(err))
		return
	}
	if len(shot) == 0 {
		return
	}
	res.Screenshot = shot
	if s.cfg.ScreenshotDir == "" {
		return
	}
	if err := os.MkdirAll(s.cfg.ScreenshotDir, 0o755); err != nil {
		logger.Warn("Cannot create screenshot directory.", zap.Error(err))
		return
	}
	path := filepath.Join(s.cfg.ScreenshotDir, res.ID+".jpg")
	if err := os.WriteFile(path, shot, 0o644); err != nil {
		logger.Warn("Cannot write screenshot.", zap.String("path", path), zap.Error(err))
		return
	}
	logger.Debug("Screenshot saved.", zap.String("path", path))
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
