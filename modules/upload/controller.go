package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"slices"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"flowai-video-server/modules/common/utils"
)

const defaultDecodeConcurrency = 4

// Options configures a Controller. Zero values get sensible defaults.
type Options struct {
	SessionID         string
	Limits            Limits
	Notifier          Notifier
	Generator         Generator
	Previews          PreviewStore
	Thumbnail         Thumbnailer
	NewID             func() string
	Random            Random
	OnChange          func(View)
	DecodeConcurrency int
}

// Controller owns the upload session state: images, reference video, prompt
// and settings. Every mutation is reported through OnChange; every refusal
// through the Notifier.
type Controller struct {
	sessionID   string
	limits      Limits
	notifier    Notifier
	generator   Generator
	previews    PreviewStore
	thumbnail   Thumbnailer
	newID       func() string
	random      Random
	onChange    func(View)
	decodeLimit int

	mu         sync.Mutex
	images     []UploadedImage
	reserved   int
	epoch      int
	video      *ReferenceVideo
	prompt     string
	settings   GenerationSettings
	generating bool
	jobID      string
	lastResult *GenerationResult
}

func NewController(opts Options) *Controller {
	c := &Controller{
		sessionID:   opts.SessionID,
		limits:      opts.Limits,
		notifier:    opts.Notifier,
		generator:   opts.Generator,
		previews:    opts.Previews,
		thumbnail:   opts.Thumbnail,
		newID:       opts.NewID,
		random:      opts.Random,
		onChange:    opts.OnChange,
		decodeLimit: opts.DecodeConcurrency,
		settings:    DefaultSettings(),
	}
	if c.limits.MaxImages <= 0 {
		c.limits = DefaultLimits()
	}
	if c.notifier == nil {
		c.notifier = NotifierFunc(func(message string, level Level) {
			log.Printf("[Upload] %s: %s", level, message)
		})
	}
	if c.previews == nil {
		c.previews = discardPreviews{}
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	if c.random == nil {
		c.random = globalRandom{}
	}
	if c.decodeLimit <= 0 {
		c.decodeLimit = defaultDecodeConcurrency
	}
	return c
}

// SessionID returns the id of the owning session.
func (c *Controller) SessionID() string { return c.sessionID }

// batch tracks one AddImages call. Decodes finish in any order; appends are
// released strictly by input index.
type batch struct {
	epoch   int
	files   []FileHandle
	results []*UploadedImage
	errs    []error
	done    []bool
	next    int
	result  AddResult
}

// Rejection names a file that was not added and why.
type Rejection struct {
	Name    string `json:"name"`
	Reason  error  `json:"-"`
	Message string `json:"message"`
}

// AddResult summarises one AddImages call.
type AddResult struct {
	Added    []UploadedImage `json:"added"`
	Rejected []Rejection     `json:"rejected,omitempty"`
}

// AddImages truncates files to the remaining capacity, rejects oversized
// files one by one and decodes the rest concurrently. Accepted images are
// appended in input order.
func (c *Controller) AddImages(ctx context.Context, files []FileHandle) AddResult {
	if len(files) == 0 {
		return AddResult{}
	}

	c.mu.Lock()
	held := len(c.images) + c.reserved
	var dropped []FileHandle
	if len(files)+held > c.limits.MaxImages {
		keep := max(0, c.limits.MaxImages-held)
		dropped = files[keep:]
		files = files[:keep]
	}

	accepted := make([]FileHandle, 0, len(files))
	var oversized []FileHandle
	for _, f := range files {
		if f.Size() > c.limits.MaxImageBytes {
			oversized = append(oversized, f)
			continue
		}
		accepted = append(accepted, f)
	}
	c.reserved += len(accepted)
	b := &batch{
		epoch:   c.epoch,
		files:   accepted,
		results: make([]*UploadedImage, len(accepted)),
		errs:    make([]error, len(accepted)),
		done:    make([]bool, len(accepted)),
	}
	c.mu.Unlock()

	if len(dropped) > 0 {
		c.notify(fmt.Sprintf("Maximum %d images allowed. Only first %d will be used.",
			c.limits.MaxImages, c.limits.MaxImages), LevelWarning)
		for _, f := range dropped {
			b.reject(f, ErrCapacityExceeded, "capacity exceeded")
		}
	}
	for _, f := range oversized {
		msg := c.imageTooLargeMessage(f.Name())
		c.notify(msg, LevelError)
		b.reject(f, ErrFileTooLarge, msg)
	}
	if len(accepted) == 0 {
		return b.result
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.decodeLimit)
	for i, f := range accepted {
		i, f := i, f
		g.Go(func() error {
			img, err := c.decodeImage(gctx, f)
			if err != nil {
				c.reportDecodeError(f, err)
			}
			c.complete(b, i, img, err)
			return nil
		})
	}
	_ = g.Wait()

	log.Printf("🖼️  [Upload] Session %s: %d/%d images added (total %d)",
		c.sessionID, len(b.result.Added), len(accepted), c.imageCount())
	return b.result
}

func (b *batch) reject(f FileHandle, reason error, message string) {
	b.result.Rejected = append(b.result.Rejected, Rejection{Name: f.Name(), Reason: reason, Message: message})
}

func (c *Controller) decodeImage(ctx context.Context, f FileHandle) (*UploadedImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", f.Name(), err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, c.limits.MaxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.Name(), err)
	}
	if int64(len(data)) > c.limits.MaxImageBytes {
		return nil, fmt.Errorf("%w: %s", ErrFileTooLarge, f.Name())
	}

	mediaType := f.MediaType()
	if mediaType == "" {
		mediaType = http.DetectContentType(data)
	}

	img := &UploadedImage{
		Name:      f.Name(),
		MediaType: mediaType,
		Size:      int64(len(data)),
		DataURL:   utils.ToDataURL(mediaType, data),
		source:    f,
	}
	if c.thumbnail != nil {
		preview, err := c.thumbnail(data)
		if err != nil {
			log.Printf("⚠️  [Upload] Thumbnail for %s failed, using original: %v", f.Name(), err)
		} else {
			img.Preview = preview
		}
	}
	return img, nil
}

func (c *Controller) reportDecodeError(f FileHandle, err error) {
	switch {
	case errors.Is(err, ErrFileTooLarge):
		c.notify(c.imageTooLargeMessage(f.Name()), LevelError)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		log.Printf("⚠️  [Upload] Session %s: decode of %s abandoned: %v", c.sessionID, f.Name(), err)
	default:
		log.Printf("❌ [Upload] Session %s: %v", c.sessionID, err)
		c.notify(fmt.Sprintf("Failed to read image %s", f.Name()), LevelError)
	}
}

// complete records a finished decode and appends every image that is now
// in order. A Reset in between drops the whole batch.
func (c *Controller) complete(b *batch, i int, img *UploadedImage, err error) {
	c.mu.Lock()
	if b.epoch != c.epoch {
		c.mu.Unlock()
		return
	}

	b.results[i] = img
	b.errs[i] = err
	b.done[i] = true

	appended := 0
	for b.next < len(b.done) && b.done[b.next] {
		c.reserved--
		if r := b.results[b.next]; r != nil {
			r.ID = c.newID()
			c.images = append(c.images, *r)
			b.result.Added = append(b.result.Added, *r)
			appended++
		} else if err := b.errs[b.next]; err != nil {
			b.reject(b.files[b.next], err, err.Error())
		}
		b.results[b.next] = nil
		b.next++
	}
	c.mu.Unlock()

	for n := 0; n < appended; n++ {
		c.changed()
	}
}

func (c *Controller) imageTooLargeMessage(name string) string {
	return fmt.Sprintf("Image %s is too large (max %s)", name, formatMB(c.limits.MaxImageBytes))
}

// RemoveImage drops the image with id. Unknown ids are a no-op.
func (c *Controller) RemoveImage(id string) bool {
	c.mu.Lock()
	before := len(c.images)
	c.images = slices.DeleteFunc(c.images, func(img UploadedImage) bool {
		return img.ID == id
	})
	removed := len(c.images) != before
	c.mu.Unlock()

	if removed {
		c.changed()
	}
	return removed
}

// SetReferenceVideo replaces the reference video. Oversized files leave the
// state untouched.
func (c *Controller) SetReferenceVideo(file FileHandle) error {
	tooLarge := fmt.Sprintf("Video file is too large (max %s)", formatMB(c.limits.MaxVideoBytes))
	if file.Size() > c.limits.MaxVideoBytes {
		c.notify(tooLarge, LevelError)
		return fmt.Errorf("%w: %s", ErrFileTooLarge, file.Name())
	}

	rc, err := file.Open()
	if err != nil {
		c.notify(fmt.Sprintf("Failed to read video %s", file.Name()), LevelError)
		return fmt.Errorf("failed to open %s: %w", file.Name(), err)
	}
	preview, err := c.previews.Open(file.Name(), file.MediaType(), io.LimitReader(rc, c.limits.MaxVideoBytes+1))
	rc.Close()
	if err != nil {
		c.notify(fmt.Sprintf("Failed to read video %s", file.Name()), LevelError)
		return fmt.Errorf("failed to open preview: %w", err)
	}
	if preview.Size > c.limits.MaxVideoBytes {
		c.release(preview.URL)
		c.notify(tooLarge, LevelError)
		return fmt.Errorf("%w: %s", ErrFileTooLarge, file.Name())
	}

	video := &ReferenceVideo{
		ID:         c.newID(),
		Name:       file.Name(),
		MediaType:  file.MediaType(),
		Size:       preview.Size,
		PreviewURL: preview.URL,
		source:     file,
	}

	c.mu.Lock()
	old := c.video
	c.video = video
	c.mu.Unlock()

	if old != nil {
		c.release(old.PreviewURL)
	}
	log.Printf("🎬 [Upload] Session %s: reference video %s attached (%d bytes)", c.sessionID, video.Name, video.Size)
	c.changed()
	return nil
}

// ClearReferenceVideo releases and clears the reference video.
func (c *Controller) ClearReferenceVideo() {
	c.mu.Lock()
	old := c.video
	c.video = nil
	c.mu.Unlock()

	if old != nil {
		c.release(old.PreviewURL)
	}
	c.changed()
}

func (c *Controller) release(url string) {
	if url == "" {
		return
	}
	if err := c.previews.Release(url); err != nil {
		log.Printf("⚠️  [Upload] Session %s: failed to release preview: %v", c.sessionID, err)
	}
}

// SetPrompt stores text as is. Over-limit text is kept; only the indicator changes.
func (c *Controller) SetPrompt(text string) CharCount {
	c.mu.Lock()
	c.prompt = text
	count := c.charCountLocked()
	c.mu.Unlock()

	c.changed()
	return count
}

// CharCount returns the current prompt indicator.
func (c *Controller) CharCount() CharCount {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.charCountLocked()
}

func (c *Controller) charCountLocked() CharCount {
	return NewCharCount(promptLength(c.prompt), c.limits.PromptLimit, c.limits.PromptWarnAt)
}

// SuggestPrompt overwrites the prompt with a random example.
func (c *Controller) SuggestPrompt() string {
	suggestion := promptSuggestions[c.random.IntN(len(promptSuggestions))]
	c.SetPrompt(suggestion)
	c.notify("Prompt suggestion generated!", LevelSuccess)
	return suggestion
}

// SetSettings updates the non-empty fields of update.
func (c *Controller) SetSettings(update GenerationSettings) GenerationSettings {
	c.mu.Lock()
	c.settings = c.settings.merge(update)
	settings := c.settings
	c.mu.Unlock()

	c.changed()
	return settings
}

// ValidateForSubmission reports the first failed check, if any.
func (c *Controller) ValidateForSubmission() error {
	c.mu.Lock()
	err := validate(c.stateLocked())
	c.mu.Unlock()

	if err != nil {
		c.notify(err.Error(), LevelError)
	}
	return err
}

// SubmitGeneration validates, enters progress mode and hands the inputs to
// the Generator. It returns the job id.
func (c *Controller) SubmitGeneration(ctx context.Context) (string, error) {
	c.mu.Lock()
	state := c.stateLocked()
	if err := validate(state); err != nil {
		c.mu.Unlock()
		c.notify(err.Error(), LevelError)
		return "", err
	}
	if c.generating {
		c.mu.Unlock()
		c.notify("Video generation is already in progress", LevelWarning)
		return "", ErrGenerationInProgress
	}
	c.generating = true
	c.jobID = ""
	c.lastResult = nil
	c.mu.Unlock()
	c.changed()

	if c.generator == nil {
		c.abortGeneration()
		return "", errors.New("no generator configured")
	}

	jobID, err := c.generator.Submit(ctx, &GenerationRequest{
		SessionID:      c.sessionID,
		Images:         state.Images,
		ReferenceVideo: state.ReferenceVideo,
		Prompt:         state.Prompt,
		Settings:       state.Settings,
	})
	if err != nil {
		log.Printf("❌ [Upload] Session %s: generation submit failed: %v", c.sessionID, err)
		c.abortGeneration()
		return "", fmt.Errorf("failed to submit generation: %w", err)
	}

	c.mu.Lock()
	if c.generating {
		c.jobID = jobID
	}
	c.mu.Unlock()

	log.Printf("🚀 [Upload] Session %s: generation job %s submitted (%d images)", c.sessionID, jobID, len(state.Images))
	c.notify("Video generation started", LevelInfo)
	c.changed()
	return jobID, nil
}

func (c *Controller) abortGeneration() {
	c.mu.Lock()
	c.generating = false
	c.mu.Unlock()

	c.notify("Failed to start video generation", LevelError)
	c.changed()
}

// Regenerate resubmits the current inputs after a finished run.
func (c *Controller) Regenerate(ctx context.Context) (string, error) {
	c.mu.Lock()
	finished := c.lastResult != nil
	c.mu.Unlock()

	if !finished {
		c.notify("Nothing to regenerate yet", LevelInfo)
		return "", ErrNoPreviousGeneration
	}
	return c.SubmitGeneration(ctx)
}

// FinishGeneration leaves progress mode for the job in result. Results for
// other jobs are ignored.
func (c *Controller) FinishGeneration(result GenerationResult) bool {
	c.mu.Lock()
	if !c.generating || (c.jobID != "" && c.jobID != result.JobID) {
		c.mu.Unlock()
		log.Printf("⚠️  [Upload] Session %s: ignoring result for job %s", c.sessionID, result.JobID)
		return false
	}
	c.generating = false
	c.jobID = result.JobID
	c.lastResult = &result
	c.mu.Unlock()

	switch {
	case result.Succeeded():
		c.notify("Video generated successfully!", LevelSuccess)
	case result.Cancelled():
		c.notify("Video generation cancelled", LevelWarning)
	default:
		reason := result.Error
		if reason == "" {
			reason = "unknown error"
		}
		c.notify("Video generation failed: "+reason, LevelError)
	}
	c.changed()
	return true
}

// Reset tears the session down: previews are released and all state cleared.
func (c *Controller) Reset() {
	c.mu.Lock()
	old := c.video
	c.video = nil
	c.images = nil
	c.reserved = 0
	c.epoch++
	c.prompt = ""
	c.settings = DefaultSettings()
	c.generating = false
	c.jobID = ""
	c.lastResult = nil
	c.mu.Unlock()

	if old != nil {
		c.release(old.PreviewURL)
	}
	c.changed()
}

// State returns a snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	s := State{
		Images:     slices.Clone(c.images),
		Prompt:     c.prompt,
		Settings:   c.settings,
		Generating: c.generating,
		JobID:      c.jobID,
		Limits:     c.limits,
	}
	if c.video != nil {
		v := *c.video
		s.ReferenceVideo = &v
	}
	if c.lastResult != nil {
		r := *c.lastResult
		s.LastResult = &r
	}
	return s
}

// View renders the current state.
func (c *Controller) View() View {
	return Render(c.State())
}

// Images returns the images in display order.
func (c *Controller) Images() []UploadedImage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.images)
}

func (c *Controller) imageCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.images)
}

func (c *Controller) notify(message string, level Level) {
	c.notifier.Notify(message, level)
}

func (c *Controller) changed() {
	if c.onChange != nil {
		c.onChange(c.View())
	}
}

type discardPreviews struct{}

func (discardPreviews) Open(_, _ string, r io.Reader) (Preview, error) {
	n, err := io.Copy(io.Discard, r)
	return Preview{Size: n}, err
}

func (discardPreviews) Release(string) error { return nil }
