package upload

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Band - char count display band
type Band string

const (
	BandNormal  Band = "normal"
	BandWarning Band = "warning"
	BandOver    Band = "over"
)

// CharCount is the prompt length indicator.
type CharCount struct {
	Length int    `json:"length"`
	Limit  int    `json:"limit"`
	Band   Band   `json:"band"`
	Text   string `json:"text"`
}

// NewCharCount bands a prompt length: normal up to warnAt, warning up to limit, over beyond.
func NewCharCount(length, limit, warnAt int) CharCount {
	band := BandNormal
	switch {
	case length > limit:
		band = BandOver
	case length > warnAt:
		band = BandWarning
	}
	return CharCount{
		Length: length,
		Limit:  limit,
		Band:   band,
		Text:   fmt.Sprintf("%d/%d", length, limit),
	}
}

func promptLength(prompt string) int {
	return utf8.RuneCountInString(prompt)
}

// State is an immutable snapshot of a controller.
type State struct {
	Images         []UploadedImage
	ReferenceVideo *ReferenceVideo
	Prompt         string
	Settings       GenerationSettings
	Generating     bool
	JobID          string
	LastResult     *GenerationResult
	Limits         Limits
}

type ImagePreview struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Preview string `json:"preview"`
}

type VideoPreview struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// View is what the UI layer draws.
type View struct {
	Images         []ImagePreview     `json:"images"`
	ImageCount     string             `json:"imageCount"`
	Video          *VideoPreview      `json:"video,omitempty"`
	HasReference   bool               `json:"hasReference"`
	ReferenceLabel string             `json:"referenceLabel"`
	Prompt         string             `json:"prompt"`
	CharCount      CharCount          `json:"charCount"`
	Settings       GenerationSettings `json:"settings"`
	Generating     bool               `json:"generating"`
	CanSubmit      bool               `json:"canSubmit"`
	JobID          string             `json:"jobId,omitempty"`
	Result         *GenerationResult  `json:"result,omitempty"`
}

// Render draws a State. It has no side effects.
func Render(s State) View {
	v := View{
		Images:         make([]ImagePreview, 0, len(s.Images)),
		ImageCount:     fmt.Sprintf("%d/%d", len(s.Images), s.Limits.MaxImages),
		ReferenceLabel: "None",
		Prompt:         s.Prompt,
		CharCount:      NewCharCount(promptLength(s.Prompt), s.Limits.PromptLimit, s.Limits.PromptWarnAt),
		Settings:       s.Settings,
		Generating:     s.Generating,
		CanSubmit:      !s.Generating,
		JobID:          s.JobID,
		Result:         s.LastResult,
	}

	for _, img := range s.Images {
		preview := img.Preview
		if preview == "" {
			preview = img.DataURL
		}
		v.Images = append(v.Images, ImagePreview{ID: img.ID, Name: img.Name, Preview: preview})
	}

	if s.ReferenceVideo != nil {
		v.Video = &VideoPreview{
			ID:   s.ReferenceVideo.ID,
			Name: s.ReferenceVideo.Name,
			URL:  s.ReferenceVideo.PreviewURL,
		}
		v.HasReference = true
		v.ReferenceLabel = "Attached: " + s.ReferenceVideo.Name
	}

	return v
}

// validate returns the first failed submission check.
func validate(s State) error {
	if len(s.Images) == 0 {
		return &ValidationError{Kind: ErrEmptyImages, Message: "Please upload at least one image"}
	}
	if strings.TrimSpace(s.Prompt) == "" {
		return &ValidationError{Kind: ErrEmptyPrompt, Message: "Please enter a scene description"}
	}
	if promptLength(s.Prompt) > s.Limits.PromptLimit {
		return &ValidationError{
			Kind:    ErrPromptTooLong,
			Message: fmt.Sprintf("Prompt must be %d characters or less", s.Limits.PromptLimit),
		}
	}
	return nil
}
