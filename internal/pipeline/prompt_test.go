package pipeline

import (
	"strings"
	"testing"

	"stylizer/api/internal/models"
)

func TestBuildInstructionDeterministic(t *testing.T) {
	analysis := goodAnalysis()
	first := BuildInstruction(analysis)
	second := BuildInstruction(analysis)
	if first != second {
		t.Fatal("instruction must be a pure function of the analysis")
	}
	for _, fragment := range []string{"a golden retriever", "a sunny park", "playful", "green and gold"} {
		if !strings.Contains(first, fragment) {
			t.Fatalf("instruction missing analysis field %q: %s", fragment, first)
		}
	}
}

func TestBuildInstructionDefaultsOnMissingFields(t *testing.T) {
	tests := []struct {
		name     string
		analysis *models.Analysis
		want     []string
	}{
		{
			name:     "raw text analysis",
			analysis: models.RawAnalysis("a dog, probably"),
			want: []string{
				models.DefaultSubject,
				models.DefaultSetting,
				models.DefaultMood,
				models.DefaultColors,
			},
		},
		{
			name: "partially structured",
			analysis: &models.Analysis{
				Structured: true,
				Subject:    "a lighthouse",
			},
			want: []string{"a lighthouse", models.DefaultSetting, models.DefaultMood},
		},
		{
			name: "whitespace fields fall back",
			analysis: &models.Analysis{
				Structured: true,
				Subject:    "   ",
				Mood:       "stormy",
			},
			want: []string{models.DefaultSubject, "stormy"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildInstruction(tt.analysis)
			for _, fragment := range tt.want {
				if !strings.Contains(got, fragment) {
					t.Fatalf("instruction missing %q: %s", fragment, got)
				}
			}
		})
	}
}
