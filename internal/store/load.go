package store

import (
	"go.uber.org/zap"

	"market_terminal/internal/models"
)

// Load tracks the bulk symbol load of one preset at a time.
type Load struct {
	c *cell[models.LoadProgress]
}

func NewLoad(log *zap.Logger) *Load {
	return &Load{c: newCell("load", &models.LoadProgress{Status: models.LoadIdle}, log)}
}

func (l *Load) State() models.LoadProgress { return *l.c.load() }

func (l *Load) Begin(preset string, years int) {
	l.c.update(func(*models.LoadProgress) *models.LoadProgress {
		return &models.LoadProgress{Preset: preset, Years: years, Status: models.LoadLoading}
	})
}

func (l *Load) Started(ev models.LoadStartEvent) {
	l.patch(func(p *models.LoadProgress) {
		p.Total = ev.Total
		if ev.Years > 0 {
			p.Years = ev.Years
		}
	})
}

func (l *Load) Progress(ev models.LoadProgressEvent) {
	l.patch(func(p *models.LoadProgress) {
		p.Loaded = ev.Loaded
		p.Percent = ev.Percent
		p.Symbol = ev.Symbol
	})
}

func (l *Load) Complete(ev models.LoadCompleteEvent) {
	l.patch(func(p *models.LoadProgress) {
		p.Status = models.LoadComplete
		p.Loaded = ev.Loaded
		if ev.Total > 0 {
			p.Total = ev.Total
		}
		p.Percent = 100
		p.Message = ev.Message
		p.LastUpdated = ev.LastUpdated
	})
}

// Seeded marks the load complete from the cache-check answer.
func (l *Load) Seeded(preset string, cc models.CacheCheck) {
	l.c.update(func(*models.LoadProgress) *models.LoadProgress {
		return &models.LoadProgress{
			Preset:      preset,
			Status:      models.LoadComplete,
			Total:       cc.SymbolCount,
			Loaded:      len(cc.Ticks),
			Percent:     100,
			Message:     "loaded from cache",
			LastUpdated: cc.LastUpdated,
		}
	})
}

func (l *Load) Fail(msg string) {
	l.patch(func(p *models.LoadProgress) {
		p.Status = models.LoadError
		p.Message = msg
	})
}

func (l *Load) Cancel() {
	l.patch(func(p *models.LoadProgress) {
		p.Status = models.LoadCancelled
		p.Message = ""
	})
}

func (l *Load) patch(fn func(p *models.LoadProgress)) {
	l.c.update(func(cur *models.LoadProgress) *models.LoadProgress {
		next := *cur
		fn(&next)
		return &next
	})
}

func (l *Load) Subscribe(fn func(models.LoadProgress)) func() {
	return l.c.subscribe(func(p *models.LoadProgress) { fn(*p) })
}
