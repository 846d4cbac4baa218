package store_test

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"market_terminal/internal/models"
	"market_terminal/internal/store"
)

type memPrefs struct {
	stored  *models.Preferences
	saves   int
	saveErr error
}

func (m *memPrefs) Load(context.Context) (models.Preferences, bool, error) {
	if m.stored == nil {
		return models.Preferences{}, false, nil
	}
	return *m.stored, true, nil
}

func (m *memPrefs) Save(_ context.Context, p models.Preferences) error {
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.stored = &p
	return nil
}

func TestUI_RestoreOverridesDefaults(t *testing.T) {
	repo := &memPrefs{stored: &models.Preferences{ActiveSymbol: "HPG", Preset: "VN100", SidebarCollapsed: true}}
	ui := store.NewUI(repo, models.Preferences{ActiveSymbol: "FPT", Preset: "VN30"}, zap.NewNop())

	if err := ui.Restore(context.Background()); err != nil {
		t.Fatal(err)
	}
	s := ui.State()
	if s.ActiveSymbol != "HPG" || s.Preset != "VN100" || !s.SidebarCollapsed {
		t.Errorf("state = %+v", s.Preferences)
	}
}

func TestUI_RestoreWithoutStoredKeepsDefaults(t *testing.T) {
	ui := store.NewUI(&memPrefs{}, models.Preferences{ActiveSymbol: "FPT"}, zap.NewNop())
	if err := ui.Restore(context.Background()); err != nil {
		t.Fatal(err)
	}
	if ui.State().ActiveSymbol != "FPT" {
		t.Errorf("active = %s", ui.State().ActiveSymbol)
	}
}

func TestUI_PersistsOnlyDurableChanges(t *testing.T) {
	ctx := context.Background()
	repo := &memPrefs{}
	ui := store.NewUI(repo, models.Preferences{ActiveSymbol: "FPT"}, zap.NewNop())

	ui.SetActiveSymbol(ctx, "FPT") // unchanged
	ui.SetTimeframe("1W")          // session only
	ui.SetActiveView("board")
	if repo.saves != 0 {
		t.Fatalf("saves = %d, want 0", repo.saves)
	}

	ui.SetActiveSymbol(ctx, "VNM")
	ui.SetYearRange(ctx, models.YearRange{From: 2020, To: 2024})
	ui.ToggleSidebar(ctx)
	if repo.saves != 3 {
		t.Errorf("saves = %d, want 3", repo.saves)
	}
	if repo.stored.ActiveSymbol != "VNM" || !repo.stored.SidebarCollapsed || repo.stored.YearRange.From != 2020 {
		t.Errorf("stored = %+v", repo.stored)
	}
	if ui.State().Timeframe != "1W" {
		t.Errorf("timeframe = %s", ui.State().Timeframe)
	}
}

func TestUI_SaveErrorKeepsMemoryValue(t *testing.T) {
	repo := &memPrefs{saveErr: errors.New("disk full")}
	ui := store.NewUI(repo, models.Preferences{}, zap.NewNop())
	ui.SetPreset(context.Background(), "VN100")
	if ui.State().Preset != "VN100" {
		t.Errorf("preset = %s", ui.State().Preset)
	}
}
