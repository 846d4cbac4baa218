package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"market_terminal/internal/models"
	"market_terminal/internal/store"
	"market_terminal/pkg/eventstream"
)

const (
	cacheCheckPath = "/api/cache/check"
	loadStreamPath = "/api/load/stream"
	pipelinePath   = "/api/pipeline/stream"
)

// ErrEndedEarly means the stream closed before its completion event.
var ErrEndedEarly = errors.New("stream ended before completion")

type Config struct {
	BaseURL string
	// Timeout bounds the cache check only; streams run until done or cancelled.
	Timeout time.Duration
	Years   int
}

// Loader feeds the stores from the backend HTTP endpoints: a one-shot cache
// check, the bulk symbol load stream and the agent pipeline stream. At most
// one load and one pipeline run are in flight; starting another cancels the
// previous one.
type Loader struct {
	cfg      Config
	client   *http.Client
	market   *store.Market
	signals  *store.Signals
	load     *store.Load
	pipeline *store.Pipeline
	log      *zap.Logger

	root    context.Context
	stop    context.CancelFunc
	mu      sync.Mutex
	loadRun *run
	pipeRun *run
	wg      sync.WaitGroup
}

type run struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func NewLoader(
	cfg Config,
	client *http.Client,
	market *store.Market,
	signals *store.Signals,
	load *store.Load,
	pipeline *store.Pipeline,
	log *zap.Logger,
) *Loader {
	if client == nil {
		client = &http.Client{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	root, stop := context.WithCancel(context.Background())
	return &Loader{
		cfg:      cfg,
		client:   client,
		market:   market,
		signals:  signals,
		load:     load,
		pipeline: pipeline,
		log:      log,
		root:     root,
		stop:     stop,
	}
}

// CacheCheck asks the backend for the ticks it already holds for preset.
func (l *Loader) CacheCheck(ctx context.Context, preset string) (cc models.CacheCheck, err error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "loader.CacheCheck")
	span.SetTag("preset", preset)
	defer finishSpan(span, &err)

	if l.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.endpoint(cacheCheckPath, preset, 0), nil)
	if err != nil {
		return cc, errors.Wrap(err, "build cache check request")
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return cc, errors.Wrap(err, "cache check")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return cc, errors.Errorf("cache check: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return cc, errors.Wrap(err, "read cache check")
	}
	if err = sonic.Unmarshal(body, &cc); err != nil {
		return cc, errors.Wrap(err, "decode cache check")
	}
	return cc, nil
}

// Seed fills the tick store for preset from the cache when it has data and
// falls back to the streaming bulk load otherwise.
func (l *Loader) Seed(ctx context.Context, preset string) error {
	cc, err := l.CacheCheck(ctx, preset)
	switch {
	case err != nil && ctx.Err() != nil:
		l.load.Cancel()
		l.log.Info("seed cancelled", zap.String("preset", preset))
		return nil
	case err != nil:
		l.log.Warn("cache check failed, streaming instead", zap.String("preset", preset), zap.Error(err))
	case len(cc.Ticks) == 0:
		l.log.Info("cache empty, streaming instead", zap.String("preset", preset))
	default:
		l.market.BulkUpdateTicks(cc.Ticks)
		l.load.Seeded(preset, cc)
		l.log.Info("seeded from cache",
			zap.String("preset", preset),
			zap.Int("ticks", len(cc.Ticks)),
			zap.String("last_updated", cc.LastUpdated),
		)
		return nil
	}
	return l.BulkLoad(ctx, preset, l.cfg.Years)
}

// BulkLoad consumes the symbol load stream for preset. Progress lands in the
// load store and every streamed tick in the market store. Cancellation is
// not an error: the load store ends up cancelled and BulkLoad returns nil.
func (l *Loader) BulkLoad(ctx context.Context, preset string, years int) (err error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "loader.BulkLoad")
	span.SetTag("preset", preset)
	span.SetTag("years", years)
	defer finishSpan(span, &err)

	l.load.Begin(preset, years)

	r, err := l.open(ctx, l.endpoint(loadStreamPath, preset, years))
	if err != nil {
		if ctx.Err() != nil {
			l.load.Cancel()
			l.log.Info("bulk load cancelled", zap.String("preset", preset))
			return nil
		}
		l.load.Fail(err.Error())
		return err
	}
	defer r.Close()

	completed := false
	ticks := 0
	for r.Next() {
		ev := r.Event()
		switch ev.Name {
		case "start":
			var start models.LoadStartEvent
			if l.decode(ev, &start) {
				l.load.Started(start)
			}
		case "progress":
			var p models.LoadProgressEvent
			if l.decode(ev, &p) {
				l.load.Progress(p)
			}
		case "tick":
			var t models.Tick
			if l.decode(ev, &t) && t.Symbol != "" {
				l.market.UpdateTick(t)
				ticks++
			}
		case "complete":
			var done models.LoadCompleteEvent
			if l.decode(ev, &done) {
				l.load.Complete(done)
				completed = true
			}
		default:
			l.log.Debug("unknown load event", zap.String("event", ev.Name))
		}
	}

	switch {
	case r.Cancelled():
		l.load.Cancel()
		l.log.Info("bulk load cancelled", zap.String("preset", preset), zap.Int("ticks", ticks))
		return nil
	case r.Err() != nil:
		l.load.Fail(r.Err().Error())
		return r.Err()
	case !completed:
		l.load.Fail(ErrEndedEarly.Error())
		return ErrEndedEarly
	}
	l.log.Info("bulk load complete", zap.String("preset", preset), zap.Int("ticks", ticks))
	return nil
}

// RunPipeline consumes one agent pipeline run. Its results are added to the
// signal store when the run completes.
func (l *Loader) RunPipeline(ctx context.Context, preset string) (err error) {
	runID := uuid.NewString()
	span, ctx := opentracing.StartSpanFromContext(ctx, "loader.RunPipeline")
	span.SetTag("preset", preset)
	span.SetTag("run_id", runID)
	defer finishSpan(span, &err)

	l.pipeline.Begin(runID)
	log := l.log.With(zap.String("run_id", runID), zap.String("preset", preset))

	r, err := l.open(ctx, l.endpoint(pipelinePath, preset, 0))
	if err != nil {
		if ctx.Err() != nil {
			l.pipeline.Cancel()
			log.Info("pipeline cancelled")
			return nil
		}
		l.pipeline.Fail(err.Error())
		return err
	}
	defer r.Close()

	completed := false
	for r.Next() {
		ev := r.Event()
		switch ev.Name {
		case "pipeline_start":
			var start models.PipelineStartEvent
			if l.decode(ev, &start) {
				l.pipeline.Started(start)
			}
		case "agent_start", "agent_progress", "agent_done":
			var step models.AgentStepEvent
			if !l.decode(ev, &step) {
				continue
			}
			switch ev.Name {
			case "agent_start":
				l.pipeline.AgentStarted(step)
			case "agent_progress":
				l.pipeline.AgentProgress(step)
			default:
				l.pipeline.AgentDone(step)
			}
		case "pipeline_complete":
			var done models.PipelineCompleteEvent
			if l.decode(ev, &done) {
				l.signals.AddSignals(validSignals(done.Results))
				l.pipeline.Complete(done)
				completed = true
			}
		default:
			log.Debug("unknown pipeline event", zap.String("event", ev.Name))
		}
	}

	switch {
	case r.Cancelled():
		l.pipeline.Cancel()
		log.Info("pipeline cancelled")
		return nil
	case r.Err() != nil:
		l.pipeline.Fail(r.Err().Error())
		return r.Err()
	case !completed:
		l.pipeline.Fail(ErrEndedEarly.Error())
		return ErrEndedEarly
	}
	log.Info("pipeline complete", zap.Int("signals", len(l.signals.State().Signals)))
	return nil
}

// StartSeed runs Seed in the background, replacing any load in flight.
func (l *Loader) StartSeed(preset string) {
	l.spawn(&l.loadRun, func(ctx context.Context) error { return l.Seed(ctx, preset) }, "seed", preset)
}

// StartLoad runs BulkLoad in the background, replacing any load in flight.
func (l *Loader) StartLoad(preset string, years int) {
	l.spawn(&l.loadRun, func(ctx context.Context) error { return l.BulkLoad(ctx, preset, years) }, "load", preset)
}

// StartPipeline runs RunPipeline in the background, replacing any run in flight.
func (l *Loader) StartPipeline(preset string) {
	l.spawn(&l.pipeRun, func(ctx context.Context) error { return l.RunPipeline(ctx, preset) }, "pipeline", preset)
}

// CancelLoad aborts the load in flight, if any. Safe to call repeatedly.
func (l *Loader) CancelLoad() { l.cancel(&l.loadRun) }

// CancelPipeline aborts the pipeline run in flight, if any.
func (l *Loader) CancelPipeline() { l.cancel(&l.pipeRun) }

// Stop cancels everything in flight and waits for it to unwind.
func (l *Loader) Stop() {
	l.mu.Lock()
	l.stop()
	l.mu.Unlock()
	l.wg.Wait()
}

func (l *Loader) spawn(slot **run, fn func(ctx context.Context) error, kind, preset string) {
	l.mu.Lock()
	if l.root.Err() != nil {
		l.mu.Unlock()
		return
	}
	prev := *slot
	ctx, cancel := context.WithCancel(l.root)
	cur := &run{cancel: cancel, done: make(chan struct{})}
	*slot = cur
	l.wg.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.wg.Done()
		defer close(cur.done)
		defer cancel()

		// the previous run must finish unwinding before this one writes
		if prev != nil {
			prev.cancel()
			<-prev.done
		}
		if err := fn(ctx); err != nil {
			l.log.Error("background run failed",
				zap.String("kind", kind),
				zap.String("preset", preset),
				zap.Error(err),
			)
		}

		l.mu.Lock()
		if *slot == cur {
			*slot = nil
		}
		l.mu.Unlock()
	}()
}

func (l *Loader) cancel(slot **run) {
	l.mu.Lock()
	cur := *slot
	l.mu.Unlock()
	if cur != nil {
		cur.cancel()
	}
}

func (l *Loader) open(ctx context.Context, target string) (*eventstream.Reader, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build stream request")
	}
	return eventstream.Open(ctx, l.client, req)
}

func (l *Loader) decode(ev eventstream.Event, v any) bool {
	if err := ev.Decode(v); err != nil {
		l.log.Debug("skip undecodable event", zap.String("event", ev.Name), zap.Error(err))
		return false
	}
	return true
}

func (l *Loader) endpoint(path, preset string, years int) string {
	q := url.Values{}
	q.Set("preset", preset)
	if years > 0 {
		q.Set("years", strconv.Itoa(years))
	}
	return fmt.Sprintf("%s%s?%s", l.cfg.BaseURL, path, q.Encode())
}

func validSignals(in []models.AgentSignal) []models.AgentSignal {
	out := make([]models.AgentSignal, 0, len(in))
	for _, s := range in {
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		if s.Action.Valid() {
			out = append(out, s)
		}
	}
	return out
}

func finishSpan(span opentracing.Span, err *error) {
	if *err != nil {
		ext.Error.Set(span, true)
		span.LogKV("error", (*err).Error())
	}
	span.Finish()
}
