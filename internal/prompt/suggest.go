package prompt

import (
	"sort"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/querypilot/querypilot/internal/schema"
	"github.com/querypilot/querypilot/internal/sqlcheck"
)

const maxSuggestions = 3

// Suggest ranks known identifiers by edit distance to the one the failure
// names. Only unknown tables and columns produce suggestions.
func Suggest(model *schema.Model, failure *sqlcheck.Failure) []string {
	if model == nil || failure == nil {
		return nil
	}
	var (
		target     string
		candidates []string
	)
	switch failure.Reason {
	case sqlcheck.ReasonUnknownTable:
		target = failure.Table
		candidates = model.TableNames()
	case sqlcheck.ReasonUnknownColumn:
		target = failure.Column
		if table, ok := model.Table(failure.Table); ok {
			candidates = table.ColumnNames()
		} else {
			for _, table := range model.Tables() {
				for _, column := range table.ColumnNames() {
					candidates = append(candidates, table.Name+"."+column)
				}
			}
		}
	default:
		return nil
	}
	return rank(target, candidates)
}

func rank(target string, candidates []string) []string {
	type scored struct {
		name     string
		distance int
	}
	needle := []rune(strings.ToLower(target))
	limit := len(needle)
	if limit < 3 {
		limit = 3
	}

	var ranked []scored
	for _, candidate := range candidates {
		name := candidate
		if idx := strings.LastIndexByte(candidate, '.'); idx >= 0 {
			name = candidate[idx+1:]
		}
		distance := levenshtein.DistanceForStrings(needle, []rune(strings.ToLower(name)), levenshtein.DefaultOptions)
		if distance > limit {
			continue
		}
		ranked = append(ranked, scored{name: candidate, distance: distance})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].distance != ranked[j].distance {
			return ranked[i].distance < ranked[j].distance
		}
		return ranked[i].name < ranked[j].name
	})

	if len(ranked) > maxSuggestions {
		ranked = ranked[:maxSuggestions]
	}
	out := make([]string, 0, len(ranked))
	for _, item := range ranked {
		out = append(out, item.name)
	}
	return out
}
