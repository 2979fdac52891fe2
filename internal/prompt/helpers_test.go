package prompt

import "github.com/querypilot/querypilot/internal/extract"

func candidateFor(sql string) extract.Candidate {
	return extract.Candidate{Raw: sql, SQL: sql, Confidence: extract.ConfidenceFull}
}
