package store

import (
	"context"
	"time"

	"go.uber.org/zap"

	"market_terminal/internal/models"
)

// PreferencesRepository persists the durable part of the UI state.
type PreferencesRepository interface {
	Load(ctx context.Context) (models.Preferences, bool, error)
	Save(ctx context.Context, p models.Preferences) error
}

type UIState struct {
	models.Preferences

	// session only
	Timeframe  string `json:"timeframe"`
	ActiveView string `json:"active_view"`
}

// UI holds view preferences. Only Preferences are written to the repository.
type UI struct {
	c    *cell[UIState]
	repo PreferencesRepository
	log  *zap.Logger
	now  func() time.Time
}

func NewUI(repo PreferencesRepository, defaults models.Preferences, log *zap.Logger) *UI {
	if log == nil {
		log = zap.NewNop()
	}
	return &UI{
		c:    newCell("ui", &UIState{Preferences: defaults, Timeframe: "1D"}, log),
		repo: repo,
		log:  log,
		now:  time.Now,
	}
}

func (u *UI) State() *UIState { return u.c.load() }

// Restore loads stored preferences over the defaults. Missing data keeps defaults.
func (u *UI) Restore(ctx context.Context) error {
	if u.repo == nil {
		return nil
	}
	p, ok, err := u.repo.Load(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	u.c.update(func(cur *UIState) *UIState {
		next := *cur
		next.Preferences = p
		return &next
	})
	return nil
}

func (u *UI) SetActiveSymbol(ctx context.Context, symbol string) {
	u.setPrefs(ctx, func(p *models.Preferences) { p.ActiveSymbol = symbol })
}

func (u *UI) SetPreset(ctx context.Context, preset string) {
	u.setPrefs(ctx, func(p *models.Preferences) { p.Preset = preset })
}

func (u *UI) SetYearRange(ctx context.Context, r models.YearRange) {
	u.setPrefs(ctx, func(p *models.Preferences) { p.YearRange = r })
}

func (u *UI) SetSidebarCollapsed(ctx context.Context, v bool) {
	u.setPrefs(ctx, func(p *models.Preferences) { p.SidebarCollapsed = v })
}

func (u *UI) ToggleSidebar(ctx context.Context) {
	u.setPrefs(ctx, func(p *models.Preferences) { p.SidebarCollapsed = !p.SidebarCollapsed })
}

// ApplyPreferences replaces every durable field at once.
func (u *UI) ApplyPreferences(ctx context.Context, in models.Preferences) {
	u.setPrefs(ctx, func(p *models.Preferences) {
		p.ActiveSymbol = in.ActiveSymbol
		p.Preset = in.Preset
		p.YearRange = in.YearRange
		p.SidebarCollapsed = in.SidebarCollapsed
	})
}

func (u *UI) SetTimeframe(tf string) {
	u.c.update(func(cur *UIState) *UIState {
		if cur.Timeframe == tf {
			return nil
		}
		next := *cur
		next.Timeframe = tf
		return &next
	})
}

func (u *UI) SetActiveView(view string) {
	u.c.update(func(cur *UIState) *UIState {
		if cur.ActiveView == view {
			return nil
		}
		next := *cur
		next.ActiveView = view
		return &next
	})
}

func (u *UI) setPrefs(ctx context.Context, fn func(p *models.Preferences)) {
	var saved models.Preferences
	changed := u.c.update(func(cur *UIState) *UIState {
		next := *cur
		fn(&next.Preferences)
		if samePrefs(next.Preferences, cur.Preferences) {
			return nil
		}
		next.UpdatedAt = u.now()
		saved = next.Preferences
		return &next
	})
	if !changed || u.repo == nil {
		return
	}
	// a failed save keeps the in-memory value
	if err := u.repo.Save(ctx, saved); err != nil {
		u.log.Error("save preferences", zap.Error(err))
	}
}

func samePrefs(a, b models.Preferences) bool {
	return a.ActiveSymbol == b.ActiveSymbol &&
		a.Preset == b.Preset &&
		a.YearRange == b.YearRange &&
		a.SidebarCollapsed == b.SidebarCollapsed
}

func (u *UI) Subscribe(fn func(*UIState)) func() {
	return u.c.subscribe(fn)
}
