package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"market_terminal/internal/models"
	"market_terminal/internal/store"
)

var sample = models.Preferences{
	ActiveSymbol:     "FPT",
	Preset:           "VN30",
	YearRange:        models.YearRange{From: 2021, To: 2024},
	SidebarCollapsed: true,
	UpdatedAt:        time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
}

type repo interface {
	Load(ctx context.Context) (models.Preferences, bool, error)
	Save(ctx context.Context, p models.Preferences) error
}

func roundTrip(t *testing.T, r repo) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := r.Load(ctx); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}
	if err := r.Save(ctx, sample); err != nil {
		t.Fatal(err)
	}
	got, ok, err := r.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got.ActiveSymbol != sample.ActiveSymbol || got.Preset != sample.Preset ||
		got.YearRange != sample.YearRange || got.SidebarCollapsed != sample.SidebarCollapsed ||
		!got.UpdatedAt.Equal(sample.UpdatedAt) {
		t.Errorf("got %+v, want %+v", got, sample)
	}
}

func TestFile_RoundTripAndProfiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prefs.json")
	roundTrip(t, NewFile(path, "alice"))

	// a fresh instance reads what the first one wrote
	got, ok, err := NewFile(path, "alice").Load(context.Background())
	if err != nil || !ok || got.ActiveSymbol != "FPT" {
		t.Fatalf("reload: %+v %v %v", got, ok, err)
	}

	bob := NewFile(path, "bob")
	if _, ok, _ := bob.Load(context.Background()); ok {
		t.Error("profiles leak into each other")
	}
	if err := bob.Save(context.Background(), models.Preferences{Preset: "BANKS"}); err != nil {
		t.Fatal(err)
	}
	if got, _, _ := NewFile(path, "alice").Load(context.Background()); got.Preset != "VN30" {
		t.Errorf("alice overwritten: %+v", got)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}
}

func TestFile_CorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := NewFile(path, "default").Load(context.Background()); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestRedis_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	roundTrip(t, NewRedis(client, "default"))

	if !mr.Exists("terminal:preferences:default") {
		t.Error("key not written")
	}
	mr.Set("terminal:preferences:broken", "{")
	if _, _, err := NewRedis(client, "broken").Load(context.Background()); err == nil {
		t.Error("expected decode error")
	}
}

func TestUIStore_PersistsThroughRepository(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	ctx := context.Background()

	ui := store.NewUI(NewFile(path, "default"), models.Preferences{Preset: "VN30"}, zap.NewNop())
	ui.SetActiveSymbol(ctx, "HPG")
	ui.SetYearRange(ctx, models.YearRange{From: 2020, To: 2024})
	ui.ToggleSidebar(ctx)
	ui.SetTimeframe("1W")

	restored := store.NewUI(NewFile(path, "default"), models.Preferences{}, zap.NewNop())
	if err := restored.Restore(ctx); err != nil {
		t.Fatal(err)
	}
	st := restored.State()
	if st.ActiveSymbol != "HPG" || st.Preset != "VN30" || st.YearRange.From != 2020 || !st.SidebarCollapsed {
		t.Errorf("restored = %+v", st.Preferences)
	}
	if st.Timeframe != "1D" {
		t.Errorf("session field persisted: %q", st.Timeframe)
	}
}
