package pipeline

import (
	"context"

	"stylizer/api/internal/models"
)

// GenerateReviewer is the slice of the capability client the retry loop uses.
type GenerateReviewer interface {
	Generate(ctx context.Context, instruction string, reference []byte, referenceMIME string) ([]byte, error)
	Review(ctx context.Context, candidate, reference []byte) (models.ReviewResult, error)
}

// ProgressFunc observes loop transitions. review is non-nil only for
// regenerating, where it carries the rejection that caused the retry.
type ProgressFunc func(status models.TaskStatus, attempt int, review *models.ReviewResult)

type LoopInput struct {
	Instruction   string
	Reference     []byte
	ReferenceMIME string
	MaxRetries    int
	ReviewEnabled bool
	OnProgress    ProgressFunc
}

// LoopResult is the loop's best-effort outcome. Rejected holds every verdict
// that triggered a retry, in attempt order; Review is the verdict for the
// returned image.
type LoopResult struct {
	Image    []byte
	Review   models.ReviewResult
	Attempts int
	Rejected []models.ReviewResult
}

// RunGenerationLoop makes up to MaxRetries generation attempts and returns
// the first approved candidate, or the last candidate when every attempt is
// rejected. Exhaustion is not an error: it is visible only through the
// returned verdict's Approved flag. Generate and Review failures propagate
// untouched; the loop retries rejections, not errors.
func RunGenerationLoop(ctx context.Context, client GenerateReviewer, in LoopInput) (LoopResult, error) {
	progress := in.OnProgress
	if progress == nil {
		progress = func(models.TaskStatus, int, *models.ReviewResult) {}
	}

	var result LoopResult
	for attempt := 1; attempt <= in.MaxRetries; attempt++ {
		progress(models.TaskStatusGenerating, attempt, nil)

		candidate, err := client.Generate(ctx, in.Instruction, in.Reference, in.ReferenceMIME)
		if err != nil {
			return LoopResult{}, err
		}

		result.Image = candidate
		result.Attempts = attempt

		if !in.ReviewEnabled {
			result.Review = models.ApprovedPlaceholder()
			return result, nil
		}

		progress(models.TaskStatusReviewing, attempt, nil)

		verdict, err := client.Review(ctx, candidate, in.Reference)
		if err != nil {
			return LoopResult{}, err
		}

		result.Review = verdict
		if verdict.Approved {
			return result, nil
		}

		if attempt < in.MaxRetries {
			result.Rejected = append(result.Rejected, verdict)
			progress(models.TaskStatusRegenerating, attempt, &verdict)
		}
	}

	return result, nil
}
