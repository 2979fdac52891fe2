package pipeline

import (
	"fmt"
	"strings"

	"github.com/querypilot/querypilot/internal/execute"
)

var (
	countWords   = []string{"how many", "count", "total", "number of", "统计", "总数", "数量"}
	averageWords = []string{"average", "avg", "mean", "平均"}
	maximumWords = []string{"most", "highest", "maximum", "largest", "最多", "最高"}
	minimumWords = []string{"least", "lowest", "minimum", "smallest", "最少", "最低"}
)

// Summarize writes a one-line description of result. Questions asking for
// counts, averages or extremes quote the matching value when the result
// has an obvious column for it.
func Summarize(question string, result execute.Result) string {
	if result.RowCount == 0 {
		return "No matching rows found."
	}

	lower := strings.ToLower(question)
	switch {
	case containsAny(lower, countWords):
		if line, ok := pairSummary(result); ok {
			return line
		}
	case containsAny(lower, averageWords):
		if value, ok := firstColumnLike(result, "avg"); ok {
			return fmt.Sprintf("Average: %v", value)
		}
	case containsAny(lower, maximumWords):
		if value, ok := firstColumnLike(result, "max"); ok {
			return fmt.Sprintf("Maximum: %v", value)
		}
	case containsAny(lower, minimumWords):
		if value, ok := firstColumnLike(result, "min"); ok {
			return fmt.Sprintf("Minimum: %v", value)
		}
	}

	suffix := ""
	if result.Truncated {
		suffix = " (truncated)"
	}
	if result.RowCount == 1 {
		return "Found 1 matching row." + suffix
	}
	return fmt.Sprintf("Found %d matching rows.%s", result.RowCount, suffix)
}

// pairSummary renders two-column results as "label: value" pairs.
func pairSummary(result execute.Result) (string, bool) {
	if len(result.Columns) != 2 {
		return "", false
	}
	parts := make([]string, 0, len(result.Rows))
	for _, row := range result.Rows {
		parts = append(parts, fmt.Sprintf("%v: %v", row[result.Columns[0]], row[result.Columns[1]]))
	}
	return "Counts: " + strings.Join(parts, ", "), true
}

func firstColumnLike(result execute.Result, fragment string) (any, bool) {
	for _, column := range result.Columns {
		if strings.Contains(strings.ToLower(column), fragment) {
			return result.Rows[0][column], true
		}
	}
	return nil, false
}

func containsAny(value string, words []string) bool {
	for _, word := range words {
		if strings.Contains(value, word) {
			return true
		}
	}
	return false
}
