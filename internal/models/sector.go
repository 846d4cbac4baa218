package models

// SymbolGroup is one board section: the primary index basket or a sector.
type SymbolGroup struct {
	Name    string   `json:"name" mapstructure:"name" yaml:"name"`
	Symbols []string `json:"symbols" mapstructure:"symbols" yaml:"symbols"`
}
