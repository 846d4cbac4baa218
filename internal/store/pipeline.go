package store

import (
	"maps"
	"slices"

	"go.uber.org/zap"

	"market_terminal/internal/models"
)

// Pipeline tracks the multi-agent pipeline run.
type Pipeline struct {
	c *cell[models.PipelineProgress]
}

func NewPipeline(log *zap.Logger) *Pipeline {
	return &Pipeline{c: newCell("pipeline", &models.PipelineProgress{Status: models.LoadIdle}, log)}
}

// State returns a copy safe to hand out.
func (p *Pipeline) State() models.PipelineProgress {
	cur := *p.c.load()
	cur.Agents = slices.Clone(cur.Agents)
	cur.Counts = maps.Clone(cur.Counts)
	return cur
}

func (p *Pipeline) Begin(runID string) {
	p.c.update(func(*models.PipelineProgress) *models.PipelineProgress {
		return &models.PipelineProgress{RunID: runID, Status: models.LoadLoading}
	})
}

func (p *Pipeline) Started(ev models.PipelineStartEvent) {
	p.patch(func(s *models.PipelineProgress) {
		s.TotalSteps = ev.TotalSteps
		s.Device = ev.Device
	})
}

func (p *Pipeline) AgentStarted(ev models.AgentStepEvent) {
	p.patch(func(s *models.PipelineProgress) {
		s.Step = ev.Step
		s.Percent = ev.Percent
		a := agentAt(s, ev)
		a.Status = models.LoadLoading
	})
}

func (p *Pipeline) AgentProgress(ev models.AgentStepEvent) {
	p.patch(func(s *models.PipelineProgress) {
		s.Percent = ev.Percent
		a := agentAt(s, ev)
		a.SubPercent = ev.SubPercent
	})
}

func (p *Pipeline) AgentDone(ev models.AgentStepEvent) {
	p.patch(func(s *models.PipelineProgress) {
		s.Percent = ev.Percent
		a := agentAt(s, ev)
		a.Status = models.LoadComplete
		a.SubPercent = 100
		a.DurationMs = ev.DurationMs
		a.ResultCount = ev.ResultCount
	})
}

func (p *Pipeline) Complete(ev models.PipelineCompleteEvent) {
	p.patch(func(s *models.PipelineProgress) {
		s.Status = models.LoadComplete
		s.Percent = 100
		s.Counts = maps.Clone(ev.Counts)
		s.AvgScore = ev.AvgScore
	})
}

func (p *Pipeline) Fail(msg string) {
	p.patch(func(s *models.PipelineProgress) {
		s.Status = models.LoadError
		s.Message = msg
	})
}

func (p *Pipeline) Cancel() {
	p.patch(func(s *models.PipelineProgress) {
		s.Status = models.LoadCancelled
	})
}

// agentAt returns the entry of the step, appending it when new.
// s.Agents is already a private copy inside patch.
func agentAt(s *models.PipelineProgress, ev models.AgentStepEvent) *models.AgentStatus {
	for i := range s.Agents {
		if s.Agents[i].Step == ev.Step {
			if ev.Agent != "" {
				s.Agents[i].Agent = ev.Agent
			}
			return &s.Agents[i]
		}
	}
	s.Agents = append(s.Agents, models.AgentStatus{Agent: ev.Agent, Step: ev.Step})
	return &s.Agents[len(s.Agents)-1]
}

func (p *Pipeline) patch(fn func(s *models.PipelineProgress)) {
	p.c.update(func(cur *models.PipelineProgress) *models.PipelineProgress {
		next := *cur
		next.Agents = slices.Clone(cur.Agents)
		fn(&next)
		return &next
	})
}

func (p *Pipeline) Subscribe(fn func(models.PipelineProgress)) func() {
	return p.c.subscribe(func(s *models.PipelineProgress) { fn(*s) })
}
