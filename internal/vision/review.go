package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"stylizer/api/internal/models"
)

const reviewUnparseableIssue = "review response unparseable"

var reviewPrompt = fmt.Sprintf(`The first image is a stylized rendering of the
second (the original photo). Score the rendering on each dimension from 0 to
10 and respond with a single JSON object:
{
  "scores": {%s},
  "issues": ["problems found, if any"],
  "suggestions": ["concrete improvements, if any"]
}`, `"`+strings.Join(models.ScoreDimensions, `": 0, "`)+`": 0`)

// Review scores a candidate against the reference photo. A gateway or
// transport failure returns a ReviewError; content the model mangles beyond
// parsing degrades to a rejected verdict instead, so the retry loop always
// has a decision to work with.
func (c *Client) Review(ctx context.Context, candidate, reference []byte) (models.ReviewResult, error) {
	content, err := c.chat(ctx, chatRequest{
		Model: c.cfg.ReviewModel,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []contentPart{
					textPart(reviewPrompt),
					imagePart(candidate, "image/png"),
					imagePart(reference, "image/png"),
				},
			},
		},
		ResponseFormat: &respFormat{Type: "json_object"},
	})
	if err != nil {
		return models.ReviewResult{}, &ReviewError{Err: err}
	}

	var parsed struct {
		Scores      map[string]float64 `json:"scores"`
		Issues      []string           `json:"issues"`
		Suggestions []string           `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(extractJSON(content)), &parsed); err != nil || len(parsed.Scores) == 0 {
		c.log.Warn().Str("content", truncate(content, 120)).Msg("review response unparseable, rejecting candidate")
		return unparseableVerdict(), nil
	}

	// Missing dimensions count as zero so a partial score set can never
	// slip past the approval threshold.
	scores := make(map[string]float64, len(models.ScoreDimensions))
	for _, dim := range models.ScoreDimensions {
		scores[dim] = parsed.Scores[dim]
	}

	result := models.ReviewResult{
		Scores:      scores,
		Issues:      parsed.Issues,
		Suggestions: parsed.Suggestions,
	}
	result.Finalize()
	return result, nil
}

func unparseableVerdict() models.ReviewResult {
	scores := make(map[string]float64, len(models.ScoreDimensions))
	for _, dim := range models.ScoreDimensions {
		scores[dim] = 0
	}
	return models.ReviewResult{
		Approved:     false,
		Scores:       scores,
		OverallScore: 0,
		Issues:       []string{reviewUnparseableIssue},
	}
}
