package models

import "strings"

// Default substitutions used when the analyzer leaves a field empty. The
// instruction builder must always produce a usable prompt, so gaps degrade to
// these rather than failing the task.
const (
	DefaultSubject = "the main subject of the photo"
	DefaultSetting = "a simple neutral background"
	DefaultMood    = "warm and cheerful"
	DefaultColors  = "soft natural colors"
)

// Analysis carries the vision model's description of the uploaded photo.
// The model is asked for structured JSON but is not guaranteed to comply, so
// the type is a tagged variant: either the structured fields are populated, or
// Raw holds the unparsed text and every accessor falls back to a default.
type Analysis struct {
	Structured bool   `json:"structured"`
	Subject    string `json:"subject,omitempty"`
	Setting    string `json:"setting,omitempty"`
	Mood       string `json:"mood,omitempty"`
	Colors     string `json:"colors,omitempty"`
	Infeasible bool   `json:"infeasible,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Raw        string `json:"raw,omitempty"`
}

func RawAnalysis(text string) *Analysis {
	return &Analysis{Raw: text}
}

func (a *Analysis) SubjectOrDefault() string {
	if a.Structured && strings.TrimSpace(a.Subject) != "" {
		return a.Subject
	}
	return DefaultSubject
}

func (a *Analysis) SettingOrDefault() string {
	if a.Structured && strings.TrimSpace(a.Setting) != "" {
		return a.Setting
	}
	return DefaultSetting
}

func (a *Analysis) MoodOrDefault() string {
	if a.Structured && strings.TrimSpace(a.Mood) != "" {
		return a.Mood
	}
	return DefaultMood
}

func (a *Analysis) ColorsOrDefault() string {
	if a.Structured && strings.TrimSpace(a.Colors) != "" {
		return a.Colors
	}
	return DefaultColors
}

// Summary is the human-readable form stored on the task and returned with
// the result.
func (a *Analysis) Summary() string {
	if !a.Structured {
		return a.Raw
	}
	parts := []string{a.SubjectOrDefault()}
	if strings.TrimSpace(a.Setting) != "" {
		parts = append(parts, "in "+a.Setting)
	}
	if strings.TrimSpace(a.Mood) != "" {
		parts = append(parts, "mood: "+a.Mood)
	}
	return strings.Join(parts, ", ")
}
