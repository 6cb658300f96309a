package pipeline

import (
	"fmt"

	"stylizer/api/internal/models"
)

// BuildInstruction turns an analysis into the generation prompt. It is a pure
// function of the analysis fields: the same analysis always yields the same
// instruction, and a missing field substitutes its documented default instead
// of failing. Retry attempts reuse the instruction unchanged.
func BuildInstruction(analysis *models.Analysis) string {
	return fmt.Sprintf(
		"Redraw this photograph as a hand-painted storybook illustration. "+
			"Subject: %s. Setting: %s. Mood: %s. Palette: %s. "+
			"Preserve the subject's pose and likeness, soften edges with "+
			"watercolor texture, and keep the composition of the original photo.",
		analysis.SubjectOrDefault(),
		analysis.SettingOrDefault(),
		analysis.MoodOrDefault(),
		analysis.ColorsOrDefault(),
	)
}
