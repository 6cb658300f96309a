package vision

import "fmt"

// AnalysisError signals the analyze capability itself failed. A photo the
// model judges unusable is not an error; that outcome travels inside the
// Analysis value.
type AnalysisError struct {
	Err error
}

func (e *AnalysisError) Error() string { return fmt.Sprintf("analyze: %v", e.Err) }
func (e *AnalysisError) Unwrap() error { return e.Err }

// GenerationError signals the image-generation capability failed. The retry
// loop does not absorb these; they propagate and fail the task.
type GenerationError struct {
	Attempt int
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate (attempt %d): %v", e.Attempt, e.Err)
}
func (e *GenerationError) Unwrap() error { return e.Err }

// ReviewError signals the review call failed outright (transport or gateway
// error). Unparseable review content is not a ReviewError; it degrades to a
// rejected verdict so the loop can still decide.
type ReviewError struct {
	Err error
}

func (e *ReviewError) Error() string { return fmt.Sprintf("review: %v", e.Err) }
func (e *ReviewError) Unwrap() error { return e.Err }
