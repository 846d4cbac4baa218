package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"market_terminal/internal/models"
	"market_terminal/internal/store"
	"market_terminal/pkg/eventstream"
)

type backend struct {
	cache      func(w http.ResponseWriter, r *http.Request)
	load       func(w http.ResponseWriter, r *http.Request)
	pipeline   func(w http.ResponseWriter, r *http.Request)
	loadHits   atomic.Int32
	cacheHits  atomic.Int32
	lastPreset atomic.Value
}

func (b *backend) serve(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(cacheCheckPath, func(w http.ResponseWriter, r *http.Request) {
		b.cacheHits.Add(1)
		b.cache(w, r)
	})
	mux.HandleFunc(loadStreamPath, func(w http.ResponseWriter, r *http.Request) {
		b.loadHits.Add(1)
		b.lastPreset.Store(r.URL.Query().Get("preset") + "/" + r.URL.Query().Get("years"))
		b.load(w, r)
	})
	mux.HandleFunc(pipelinePath, func(w http.ResponseWriter, r *http.Request) {
		b.pipeline(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type stores struct {
	market   *store.Market
	signals  *store.Signals
	load     *store.Load
	pipeline *store.Pipeline
}

func newLoader(t *testing.T, srv *httptest.Server) (*Loader, stores) {
	t.Helper()
	log := zap.NewNop()
	s := stores{
		market:   store.NewMarket(log),
		signals:  store.NewSignals(log),
		load:     store.NewLoad(log),
		pipeline: store.NewPipeline(log),
	}
	l := NewLoader(Config{BaseURL: srv.URL, Timeout: 2 * time.Second, Years: 3},
		srv.Client(), s.market, s.signals, s.load, s.pipeline, log)
	t.Cleanup(l.Stop)
	return l, s
}

func sse(w http.ResponseWriter, name, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func jsonBody(body string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func fullLoad(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	sse(w, "start", `{"total":2,"years":3}`)
	sse(w, "progress", `{"loaded":1,"percent":50,"symbol":"FPT","status":"ok"}`)
	sse(w, "tick", `{"symbol":"FPT","price":120.5,"timestamp":1}`)
	sse(w, "tick", `{broken`)
	sse(w, "progress", `{"loaded":2,"percent":100,"symbol":"VNM","status":"ok"}`)
	sse(w, "tick", `{"symbol":"VNM","price":70,"timestamp":2}`)
	sse(w, "complete", `{"loaded":2,"total":2,"message":"done","last_updated":"2024-01-02"}`)
}

func TestSeed_UsesCacheWhenItHasTicks(t *testing.T) {
	b := &backend{
		cache: jsonBody(`{"ticks":[{"symbol":"FPT","price":1},{"symbol":"VNM","price":2}],"symbol_count":30,"last_updated":"2024-01-02"}`),
		load:  fullLoad,
	}
	l, s := newLoader(t, b.serve(t))

	if err := l.Seed(context.Background(), "VN30"); err != nil {
		t.Fatal(err)
	}
	if b.loadHits.Load() != 0 {
		t.Error("bulk stream used although cache had data")
	}
	if len(s.market.State().Ticks) != 2 || s.market.State().LatestTick.Symbol != "VNM" {
		t.Errorf("market = %+v", s.market.State())
	}
	st := s.load.State()
	if st.Status != models.LoadComplete || st.Total != 30 || st.Loaded != 2 || st.Preset != "VN30" {
		t.Errorf("load = %+v", st)
	}
}

func TestSeed_FallsBackToStream(t *testing.T) {
	cases := map[string]func(w http.ResponseWriter, r *http.Request){
		"empty cache": jsonBody(`{"ticks":[],"symbol_count":0,"last_updated":""}`),
		"cache error": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		},
		"garbage": jsonBody(`<html>`),
	}
	for name, cache := range cases {
		t.Run(name, func(t *testing.T) {
			b := &backend{cache: cache, load: fullLoad}
			l, s := newLoader(t, b.serve(t))

			if err := l.Seed(context.Background(), "VN30"); err != nil {
				t.Fatal(err)
			}
			if b.loadHits.Load() != 1 || b.lastPreset.Load() != "VN30/3" {
				t.Fatalf("stream hits = %d query = %v", b.loadHits.Load(), b.lastPreset.Load())
			}
			if tk, ok := s.market.Tick("FPT"); !ok || tk.Price != 120.5 {
				t.Errorf("FPT = %+v %v", tk, ok)
			}
			st := s.load.State()
			if st.Status != models.LoadComplete || st.Loaded != 2 || st.Total != 2 || st.Message != "done" || st.LastUpdated != "2024-01-02" {
				t.Errorf("load = %+v", st)
			}
		})
	}
}

func TestBulkLoad_HTTPFailureSetsErrorState(t *testing.T) {
	b := &backend{load: func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such preset", http.StatusNotFound)
	}}
	l, s := newLoader(t, b.serve(t))

	err := l.BulkLoad(context.Background(), "HNX", 1)
	var se *eventstream.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Fatalf("err = %v", err)
	}
	if st := s.load.State(); st.Status != models.LoadError || st.Message == "" {
		t.Errorf("load = %+v", st)
	}
}

func TestBulkLoad_EndedEarly(t *testing.T) {
	b := &backend{load: func(w http.ResponseWriter, r *http.Request) {
		sse(w, "start", `{"total":5,"years":1}`)
	}}
	l, s := newLoader(t, b.serve(t))

	if err := l.BulkLoad(context.Background(), "VN30", 1); !errors.Is(err, ErrEndedEarly) {
		t.Fatalf("err = %v", err)
	}
	if st := s.load.State(); st.Status != models.LoadError || st.Total != 5 {
		t.Errorf("load = %+v", st)
	}
}

func TestBulkLoad_CancelIsCleanOutcome(t *testing.T) {
	started := make(chan struct{})
	b := &backend{load: func(w http.ResponseWriter, r *http.Request) {
		sse(w, "start", `{"total":400,"years":3}`)
		close(started)
		<-r.Context().Done()
	}}
	l, s := newLoader(t, b.serve(t))

	statuses := make(chan models.LoadStatus, 16)
	s.load.Subscribe(func(p models.LoadProgress) { statuses <- p.Status })

	l.StartLoad("VN30", 3)
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("stream never opened")
	}
	waitTotal(t, s.load, 400)

	l.CancelLoad()
	l.CancelLoad()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case st := <-statuses:
			if st == models.LoadError {
				t.Fatal("cancellation reported as error")
			}
			if st == models.LoadCancelled {
				if s.load.State().Message != "" {
					t.Errorf("message = %q", s.load.State().Message)
				}
				return
			}
		case <-deadline:
			t.Fatalf("load never cancelled, state %+v", s.load.State())
		}
	}
}

func waitTotal(t *testing.T, l *store.Load, total int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for l.State().Total != total {
		if time.Now().After(deadline) {
			t.Fatalf("total never reached %d: %+v", total, l.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRunPipeline_FeedsSignals(t *testing.T) {
	b := &backend{pipeline: func(w http.ResponseWriter, r *http.Request) {
		sse(w, "pipeline_start", `{"total_steps":2,"device":"cuda"}`)
		sse(w, "agent_start", `{"agent":"technical","step":1,"percent":0}`)
		sse(w, "agent_progress", `{"agent":"technical","step":1,"percent":25,"sub_percent":50}`)
		sse(w, "agent_done", `{"agent":"technical","step":1,"percent":50,"duration_ms":1200,"result_count":30}`)
		sse(w, "agent_start", `{"agent":"risk","step":2,"percent":50}`)
		sse(w, "agent_done", `{"agent":"risk","step":2,"percent":100,"duration_ms":300,"result_count":3}`)
		sse(w, "pipeline_complete", `{"results":[`+
			`{"id":"a","symbol":"FPT","action":"BUY","score":0.9,"reason":"breakout","timestamp":1},`+
			`{"id":"b","symbol":"VNM","action":"MAYBE","score":0.1,"reason":"?","timestamp":2},`+
			`{"symbol":"HPG","action":"SELL","score":0.8,"reason":"trend","timestamp":3}],`+
			`"counts":{"BUY":1,"SELL":1},"avg_score":0.85}`)
	}}
	l, s := newLoader(t, b.serve(t))

	if err := l.RunPipeline(context.Background(), "VN30"); err != nil {
		t.Fatal(err)
	}

	st := s.pipeline.State()
	if st.Status != models.LoadComplete || st.TotalSteps != 2 || st.Device != "cuda" || st.RunID == "" {
		t.Errorf("pipeline = %+v", st)
	}
	if len(st.Agents) != 2 || st.Agents[0].ResultCount != 30 || st.Agents[1].Status != models.LoadComplete {
		t.Errorf("agents = %+v", st.Agents)
	}
	if st.Counts["BUY"] != 1 || st.AvgScore != 0.85 {
		t.Errorf("summary = %+v / %v", st.Counts, st.AvgScore)
	}

	sigs := s.signals.State().Signals
	if len(sigs) != 2 {
		t.Fatalf("signals = %+v", sigs)
	}
	latest, _ := s.signals.Latest()
	if latest.Symbol != "HPG" || latest.ID == "" {
		t.Errorf("latest = %+v", latest)
	}
}

func TestStop_CancelsInFlightRuns(t *testing.T) {
	b := &backend{pipeline: func(w http.ResponseWriter, r *http.Request) {
		sse(w, "pipeline_start", `{"total_steps":5,"device":"cpu"}`)
		<-r.Context().Done()
	}}
	l, s := newLoader(t, b.serve(t))

	l.StartPipeline("VN30")
	deadline := time.Now().Add(5 * time.Second)
	for s.pipeline.State().TotalSteps != 5 {
		if time.Now().After(deadline) {
			t.Fatal("pipeline never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	l.Stop()
	if st := s.pipeline.State(); st.Status != models.LoadCancelled {
		t.Errorf("pipeline = %+v", st)
	}

	// nothing starts after Stop
	l.StartPipeline("VN30")
	if st := s.pipeline.State(); st.Status != models.LoadCancelled {
		t.Errorf("restarted after stop: %+v", st)
	}
}

func TestSeed_CancelDuringCacheCheck(t *testing.T) {
	arrived := make(chan struct{})
	b := &backend{
		cache: func(w http.ResponseWriter, r *http.Request) {
			close(arrived)
			<-r.Context().Done()
		},
		load: fullLoad,
	}
	srv := b.serve(t)

	core, logs := observer.New(zapcore.InfoLevel)
	load := store.NewLoad(nil)
	l := NewLoader(Config{BaseURL: srv.URL, Timeout: 2 * time.Second, Years: 3},
		srv.Client(), store.NewMarket(nil), store.NewSignals(nil), load, store.NewPipeline(nil), zap.New(core))
	t.Cleanup(l.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Seed(ctx, "VN30") }()

	select {
	case <-arrived:
	case <-time.After(2 * time.Second):
		t.Fatal("cache check never reached the backend")
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("seed err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("seed did not return after cancel")
	}

	if b.loadHits.Load() != 0 {
		t.Error("bulk stream opened after cancel")
	}
	if st := load.State(); st.Status != models.LoadCancelled || st.Message != "" {
		t.Errorf("load state = %+v", st)
	}
	if n := logs.FilterLevelExact(zapcore.WarnLevel).Len() + logs.FilterLevelExact(zapcore.ErrorLevel).Len(); n != 0 {
		t.Errorf("cancellation logged %d warnings/errors: %v", n, logs.All())
	}
}
