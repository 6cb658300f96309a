package models

// ApprovalThreshold is the minimum score every dimension must reach for a
// verdict to count as approved.
const ApprovalThreshold = 7.0

// ScoreDimensions is the fixed set of quality dimensions a reviewer scores,
// each on a 0-10 scale.
var ScoreDimensions = []string{
	"style_match",
	"subject_fidelity",
	"composition",
	"overall_quality",
}

// ReviewResult is the verdict for one generated candidate.
type ReviewResult struct {
	Approved     bool               `json:"approved"`
	Scores       map[string]float64 `json:"scores"`
	OverallScore float64            `json:"overallScore"`
	Issues       []string           `json:"issues,omitempty"`
	Suggestions  []string           `json:"suggestions,omitempty"`
}

// Finalize derives Approved and OverallScore from Scores. Approved holds iff
// every dimension meets the threshold; OverallScore is the mean.
func (r *ReviewResult) Finalize() {
	if len(r.Scores) == 0 {
		r.Approved = false
		r.OverallScore = 0
		return
	}
	approved := true
	sum := 0.0
	for _, v := range r.Scores {
		if v < ApprovalThreshold {
			approved = false
		}
		sum += v
	}
	r.Approved = approved
	r.OverallScore = float64(int(sum/float64(len(r.Scores))*10+0.5)) / 10
}

// ApprovedPlaceholder is the synthetic verdict used when review is disabled.
// Downstream it is indistinguishable from a genuine approval except that every
// score is the fixed maximum.
func ApprovedPlaceholder() ReviewResult {
	scores := make(map[string]float64, len(ScoreDimensions))
	for _, dim := range ScoreDimensions {
		scores[dim] = 10
	}
	return ReviewResult{
		Approved:     true,
		Scores:       scores,
		OverallScore: 10,
	}
}
