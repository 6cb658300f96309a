package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"stylizer/api/internal/models"
)

const analyzePrompt = `Describe this photograph for a stylized-art pipeline.
Respond with a single JSON object:
{
  "subject": "main subject, short phrase",
  "setting": "background or scene, short phrase",
  "mood": "overall mood, short phrase",
  "colors": "dominant colors, short phrase",
  "infeasible": false,
  "reason": "only when infeasible is true: why the photo cannot be stylized"
}
Set "infeasible" to true when there is no usable subject (blank, corrupted, or
unrecognizable image).`

// Analyze describes the uploaded photo. The gateway is asked for structured
// JSON; when it answers with anything else, the raw text is kept as a
// free-form analysis and downstream prompt building falls back to defaults.
func (c *Client) Analyze(ctx context.Context, image []byte, mime string) (*models.Analysis, error) {
	content, err := c.chat(ctx, chatRequest{
		Model: c.cfg.AnalyzeModel,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []contentPart{
					textPart(analyzePrompt),
					imagePart(image, mime),
				},
			},
		},
		ResponseFormat: &respFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, &AnalysisError{Err: err}
	}

	var parsed struct {
		Subject    string `json:"subject"`
		Setting    string `json:"setting"`
		Mood       string `json:"mood"`
		Colors     string `json:"colors"`
		Infeasible bool   `json:"infeasible"`
		Reason     string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(extractJSON(content)), &parsed); err != nil {
		c.log.Warn().Err(err).Msg("analysis response not structured, keeping raw text")
		return models.RawAnalysis(content), nil
	}

	return &models.Analysis{
		Structured: true,
		Subject:    parsed.Subject,
		Setting:    parsed.Setting,
		Mood:       parsed.Mood,
		Colors:     parsed.Colors,
		Infeasible: parsed.Infeasible,
		Reason:     parsed.Reason,
	}, nil
}

// extractJSON pulls the outermost JSON object out of a model reply that may
// wrap it in prose or a code fence.
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return content
	}
	return content[start : end+1]
}

func dataURL(data []byte, mime string) string {
	if mime == "" {
		mime = "image/png"
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data))
}
