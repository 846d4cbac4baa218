package store_test

import (
	"testing"

	"go.uber.org/zap"

	"market_terminal/internal/models"
	"market_terminal/internal/store"
)

func TestLoad_Transitions(t *testing.T) {
	l := store.NewLoad(zap.NewNop())
	var seen []models.LoadStatus
	l.Subscribe(func(p models.LoadProgress) { seen = append(seen, p.Status) })

	l.Begin("VN30", 3)
	l.Started(models.LoadStartEvent{Total: 30, Years: 3})
	l.Progress(models.LoadProgressEvent{Loaded: 15, Percent: 50, Symbol: "FPT"})
	if s := l.State(); s.Loaded != 15 || s.Percent != 50 || s.Total != 30 {
		t.Errorf("mid state = %+v", s)
	}
	l.Complete(models.LoadCompleteEvent{Loaded: 30, Total: 30, Message: "ok", LastUpdated: "2024-01-02"})

	s := l.State()
	if s.Status != models.LoadComplete || s.Percent != 100 || s.LastUpdated != "2024-01-02" {
		t.Errorf("final = %+v", s)
	}
	if seen[0] != models.LoadLoading || seen[len(seen)-1] != models.LoadComplete {
		t.Errorf("statuses = %v", seen)
	}
}

func TestLoad_FailCarriesMessage(t *testing.T) {
	l := store.NewLoad(zap.NewNop())
	l.Begin("VN30", 1)
	l.Fail("http 502")
	if s := l.State(); s.Status != models.LoadError || s.Message != "http 502" {
		t.Errorf("state = %+v", s)
	}
}

func TestPipeline_AgentSteps(t *testing.T) {
	p := store.NewPipeline(zap.NewNop())
	p.Begin("run-1")
	p.Started(models.PipelineStartEvent{TotalSteps: 2, Device: "cpu"})
	p.AgentStarted(models.AgentStepEvent{Agent: "technical", Step: 1, Percent: 0})
	p.AgentProgress(models.AgentStepEvent{Step: 1, Percent: 25, SubPercent: 50})
	p.AgentDone(models.AgentStepEvent{Step: 1, Percent: 50, DurationMs: 1200, ResultCount: 30})
	p.AgentStarted(models.AgentStepEvent{Agent: "sentiment", Step: 2, Percent: 50})
	snapshot := p.State()
	p.Complete(models.PipelineCompleteEvent{Counts: map[string]int{"BUY": 3}, AvgScore: 0.7})

	if len(snapshot.Agents) != 2 || snapshot.Status != models.LoadLoading {
		t.Fatalf("snapshot = %+v", snapshot)
	}
	s := p.State()
	a := s.Agents[0]
	if a.Agent != "technical" || a.Status != models.LoadComplete || a.ResultCount != 30 || a.SubPercent != 100 {
		t.Errorf("agent 1 = %+v", a)
	}
	if s.Status != models.LoadComplete || s.Counts["BUY"] != 3 || s.Device != "cpu" {
		t.Errorf("final = %+v", s)
	}
}
