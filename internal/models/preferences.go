package models

import "time"

// YearRange is the history window shown by the charts.
type YearRange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Preferences is the durable subset of UI state.
type Preferences struct {
	ActiveSymbol     string    `json:"active_symbol"`
	Preset           string    `json:"preset"`
	YearRange        YearRange `json:"year_range"`
	SidebarCollapsed bool      `json:"sidebar_collapsed"`
	UpdatedAt        time.Time `json:"updated_at"`
}
