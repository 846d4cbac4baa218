package helper

import (
	"slices"

	"market_terminal/internal/models"
)

// Partition builds the board universe: the primary basket first, then each
// category with symbols already shown earlier removed. Empty categories are
// dropped.
func Partition(primary models.SymbolGroup, categories []models.SymbolGroup) []models.SymbolGroup {
	seen := make(map[string]struct{}, len(primary.Symbols))
	out := make([]models.SymbolGroup, 0, len(categories)+1)

	out = append(out, models.SymbolGroup{Name: primary.Name, Symbols: dedup(primary.Symbols, seen)})
	for _, c := range categories {
		syms := dedup(c.Symbols, seen)
		if len(syms) == 0 {
			continue
		}
		out = append(out, models.SymbolGroup{Name: c.Name, Symbols: syms})
	}
	return out
}

func dedup(in []string, seen map[string]struct{}) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// BuildGroups restricts universe to the symbols present in active, keeping
// the universe order; groups left empty are dropped. When active holds no
// data at all the full universe is returned.
func BuildGroups[V any](universe []models.SymbolGroup, active map[string]V) []models.SymbolGroup {
	if len(active) == 0 {
		full := make([]models.SymbolGroup, len(universe))
		for i, g := range universe {
			full[i] = models.SymbolGroup{Name: g.Name, Symbols: slices.Clone(g.Symbols)}
		}
		return full
	}

	out := make([]models.SymbolGroup, 0, len(universe))
	for _, g := range universe {
		syms := make([]string, 0, len(g.Symbols))
		for _, s := range g.Symbols {
			if _, ok := active[s]; ok {
				syms = append(syms, s)
			}
		}
		if len(syms) > 0 {
			out = append(out, models.SymbolGroup{Name: g.Name, Symbols: syms})
		}
	}
	return out
}

// Universe is Partition over configured sectors, whose first entry is the
// primary basket.
func Universe(sectors []models.SymbolGroup) []models.SymbolGroup {
	if len(sectors) == 0 {
		return nil
	}
	return Partition(sectors[0], sectors[1:])
}
