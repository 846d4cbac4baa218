package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"market_terminal/internal/models"
	"market_terminal/pkg/db"
)

const (
	createPreferencesTable = `
CREATE TABLE IF NOT EXISTS ui_preferences (
	profile    TEXT PRIMARY KEY,
	settings   JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

	selectPreferences = `SELECT settings FROM ui_preferences WHERE profile = $1`

	upsertPreferences = `
INSERT INTO ui_preferences (profile, settings, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (profile) DO UPDATE
SET settings = EXCLUDED.settings, updated_at = EXCLUDED.updated_at`
)

// Postgres stores one jsonb row per profile.
type Postgres struct {
	db      db.TxManager
	profile string
}

func NewPostgres(tx db.TxManager, profile string) *Postgres {
	return &Postgres{db: tx, profile: profile}
}

// Migrate creates the table when it does not exist yet.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Conn().Exec(ctx, createPreferencesTable); err != nil {
		return errors.Wrap(err, "create ui_preferences")
	}
	return nil
}

func (p *Postgres) Load(ctx context.Context) (prefs models.Preferences, ok bool, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.Preferences.Load: %w", err)
		}
	}()

	var raw []byte
	err = p.db.Conn().QueryRow(ctx, selectPreferences, p.profile).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Preferences{}, false, nil
	}
	if err != nil {
		return models.Preferences{}, false, err
	}
	if err = sonic.Unmarshal(raw, &prefs); err != nil {
		return models.Preferences{}, false, err
	}
	return prefs, true, nil
}

func (p *Postgres) Save(ctx context.Context, prefs models.Preferences) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.Preferences.Save: %w", err)
		}
	}()

	var data []byte
	data, err = sonic.Marshal(prefs)
	if err != nil {
		return err
	}
	return p.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, upsertPreferences, p.profile, data, time.Now().UTC())
		return err
	})
}
