package upload

import (
	"context"
	"fmt"

	"flowai-video-server/modules/common/model"
)

// Level - notification severity
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notifier is the user feedback channel. Fire-and-forget.
type Notifier interface {
	Notify(message string, level Level)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(message string, level Level)

func (f NotifierFunc) Notify(message string, level Level) { f(message, level) }

// Generator is the external video generation collaborator. Submit hands the
// request off and returns the job id; progress and completion come back later
// through Controller.FinishGeneration.
type Generator interface {
	Submit(ctx context.Context, req *GenerationRequest) (string, error)
}

// Thumbnailer renders an image payload into a preview data URL.
type Thumbnailer func(data []byte) (string, error)

// Random is the source used by SuggestPrompt.
type Random interface {
	IntN(n int) int
}

// UploadedImage - one accepted image. Order in the controller is insertion order.
type UploadedImage struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	MediaType string `json:"mediaType"`
	Size      int64  `json:"size"`
	DataURL   string `json:"-"`
	Preview   string `json:"preview"`

	source FileHandle
}

// Source returns the file the image was read from.
func (i UploadedImage) Source() FileHandle { return i.source }

// ReferenceVideo - the optional style/motion reference. At most one per session.
type ReferenceVideo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	MediaType  string `json:"mediaType"`
	Size       int64  `json:"size"`
	PreviewURL string `json:"previewUrl"`

	source FileHandle
}

// Source returns the file the video was read from.
func (v ReferenceVideo) Source() FileHandle { return v.source }

// GenerationSettings are opaque selector values passed through to the generator.
type GenerationSettings struct {
	Duration    string `json:"duration"`
	AspectRatio string `json:"aspectRatio"`
	Quality     string `json:"quality"`
	FPS         string `json:"fps"`
}

// DefaultSettings - the form's initial selections
func DefaultSettings() GenerationSettings {
	return GenerationSettings{
		Duration:    "5",
		AspectRatio: "16:9",
		Quality:     "1080p",
		FPS:         "30",
	}
}

// merge keeps current values for fields left empty in update.
func (s GenerationSettings) merge(update GenerationSettings) GenerationSettings {
	if update.Duration != "" {
		s.Duration = update.Duration
	}
	if update.AspectRatio != "" {
		s.AspectRatio = update.AspectRatio
	}
	if update.Quality != "" {
		s.Quality = update.Quality
	}
	if update.FPS != "" {
		s.FPS = update.FPS
	}
	return s
}

// GenerationRequest is what gets handed to the Generator.
type GenerationRequest struct {
	SessionID      string             `json:"sessionId"`
	Images         []UploadedImage    `json:"images"`
	ReferenceVideo *ReferenceVideo    `json:"referenceVideo,omitempty"`
	Prompt         string             `json:"prompt"`
	Settings       GenerationSettings `json:"settings"`
}

// GenerationResult is reported back once the collaborator finishes.
type GenerationResult struct {
	JobID    string `json:"jobId"`
	Status   string `json:"status"`
	VideoURL string `json:"videoUrl,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Succeeded reports whether the job produced a video.
func (r GenerationResult) Succeeded() bool {
	return r.Status == model.StatusCompleted && r.VideoURL != ""
}

// Cancelled reports whether the user cancelled the job.
func (r GenerationResult) Cancelled() bool {
	return r.Status == model.StatusUserCancelled
}

// Limits - upload and prompt limits
type Limits struct {
	MaxImages     int
	MaxImageBytes int64
	MaxVideoBytes int64
	PromptLimit   int
	PromptWarnAt  int
}

// DefaultLimits - 10 images, 5MB per image, 50MB video, 500 char prompt
func DefaultLimits() Limits {
	return Limits{
		MaxImages:     10,
		MaxImageBytes: 5 * 1024 * 1024,
		MaxVideoBytes: 50 * 1024 * 1024,
		PromptLimit:   500,
		PromptWarnAt:  400,
	}
}

func formatMB(n int64) string {
	return fmt.Sprintf("%dMB", n/(1024*1024))
}
