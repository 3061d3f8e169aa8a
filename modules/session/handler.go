package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"flowai-video-server/modules/upload"
)

const multipartMemory = 32 << 20

// Response - 세션 API 응답
type Response struct {
	Success   bool                   `json:"success"`
	Error     string                 `json:"error,omitempty"`
	JobID     string                 `json:"jobId,omitempty"`
	Prompt    string                 `json:"prompt,omitempty"`
	CharCount *upload.CharCount      `json:"charCount,omitempty"`
	Added     []upload.UploadedImage `json:"added,omitempty"`
	Rejected  []upload.Rejection     `json:"rejected,omitempty"`
	View      *upload.View           `json:"view,omitempty"`
}

type promptRequest struct {
	Prompt string `json:"prompt"`
}

// Handler - 세션 HTTP Handler
type Handler struct {
	manager       *Manager
	limits        upload.Limits
	submitTimeout time.Duration
}

func NewHandler(manager *Manager, limits upload.Limits) *Handler {
	if limits.MaxImages <= 0 {
		limits = upload.DefaultLimits()
	}
	return &Handler{manager: manager, limits: limits, submitTimeout: 30 * time.Second}
}

// RegisterRoutes - 라우트 등록
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/ws", h.manager.HandleWebSocket)
	r.HandleFunc("/metrics", h.HandleMetrics).Methods("GET")
	r.HandleFunc("/admin/cleanup", h.HandleCleanup).Methods("POST")

	const base = "/api/sessions/{id}"
	r.HandleFunc(base, h.HandleGetSession).Methods("GET")
	r.HandleFunc(base, h.HandleDeleteSession).Methods("DELETE")
	r.HandleFunc(base+"/images", h.HandleAddImages).Methods("POST")
	r.HandleFunc(base+"/images/{imageId}", h.HandleRemoveImage).Methods("DELETE")
	r.HandleFunc(base+"/video", h.HandleSetVideo).Methods("PUT")
	r.HandleFunc(base+"/video", h.HandleClearVideo).Methods("DELETE")
	r.HandleFunc(base+"/prompt", h.HandleSetPrompt).Methods("PUT")
	r.HandleFunc(base+"/prompt/suggest", h.HandleSuggestPrompt).Methods("POST")
	r.HandleFunc(base+"/settings", h.HandleSetSettings).Methods("PUT")
	r.HandleFunc(base+"/validate", h.HandleValidate).Methods("POST")
	r.HandleFunc(base+"/generate", h.HandleGenerate).Methods("POST")
	r.HandleFunc(base+"/regenerate", h.HandleRegenerate).Methods("POST")

	log.Println("✅ [Session] Routes registered: /ws, /metrics, /api/sessions/{id}/...")
}

func (h *Handler) session(r *http.Request) *Session {
	return h.manager.GetOrCreate(mux.Vars(r)["id"])
}

func writeJSON(w http.ResponseWriter, code int, resp any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(resp)
}

func writeView(w http.ResponseWriter, s *Session) {
	v := s.ctrl.View()
	writeJSON(w, http.StatusOK, Response{Success: true, View: &v})
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, Response{Success: false, Error: msg})
}

// errorStatus maps controller errors onto HTTP status codes.
func errorStatus(err error) int {
	var verr *upload.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, upload.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, upload.ErrGenerationInProgress), errors.Is(err, upload.ErrNoPreviousGeneration):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

// HandleGetSession - GET /api/sessions/{id}
func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	writeView(w, h.session(r))
}

// HandleDeleteSession - DELETE /api/sessions/{id}
func (h *Handler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !h.manager.Remove(mux.Vars(r)["id"]) {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true})
}

// HandleAddImages - POST /api/sessions/{id}/images (multipart "images")
func (h *Handler) HandleAddImages(w http.ResponseWriter, r *http.Request) {
	s := h.session(r)

	r.Body = http.MaxBytesReader(w, r.Body, 2*int64(h.limits.MaxImages)*h.limits.MaxImageBytes)
	files, err := h.readImageParts(r)
	if err != nil {
		h.multipartError(w, s, err, "images")
		return
	}
	result := s.ctrl.AddImages(r.Context(), files)

	v := s.ctrl.View()
	writeJSON(w, http.StatusOK, Response{Success: true, Added: result.Added, Rejected: result.Rejected, View: &v})
}

// readImageParts streams the "images" parts. Only the first MaxImages parts
// are buffered, each up to MaxImageBytes+1 so oversized files still report
// their size. Later parts are kept as empty placeholders for the controller's
// truncation. When the body cap is hit after some parts were read, the parts
// read so far are used.
func (h *Handler) readImageParts(r *http.Request) ([]upload.FileHandle, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}

	var files []upload.FileHandle
	stop := func(err error) ([]upload.FileHandle, error) {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) && len(files) > 0 {
			log.Printf("⚠️  [Session] Upload body limit reached after %d images, using those", len(files))
			return files, nil
		}
		return nil, err
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return files, nil
		}
		if err != nil {
			return stop(err)
		}

		mediaType := part.Header.Get("Content-Type")
		if part.FormName() != "images" || part.FileName() == "" || !strings.HasPrefix(mediaType, "image/") {
			continue
		}

		// 용량 초과분은 내용 없이 이름만 전달
		if len(files) >= h.limits.MaxImages {
			files = append(files, upload.NewMemoryFile(part.FileName(), mediaType, nil))
			continue
		}

		data, err := io.ReadAll(io.LimitReader(part, h.limits.MaxImageBytes+1))
		if err != nil {
			return stop(err)
		}
		files = append(files, upload.NewMemoryFile(part.FileName(), mediaType, data))
	}
}

// HandleRemoveImage - DELETE /api/sessions/{id}/images/{imageId}
func (h *Handler) HandleRemoveImage(w http.ResponseWriter, r *http.Request) {
	s := h.session(r)
	s.ctrl.RemoveImage(mux.Vars(r)["imageId"])
	writeView(w, s)
}

// HandleSetVideo - PUT /api/sessions/{id}/video (multipart "video")
func (h *Handler) HandleSetVideo(w http.ResponseWriter, r *http.Request) {
	s := h.session(r)

	r.Body = http.MaxBytesReader(w, r.Body, 2*h.limits.MaxVideoBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		h.multipartError(w, s, err, "video")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["video"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "video file is required")
		return
	}
	files := upload.FilterMediaType(upload.FromMultipart(headers[:1]), "video/")
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "video file must be a video")
		return
	}

	if err := s.ctrl.SetReferenceVideo(files[0]); err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeView(w, s)
}

func (h *Handler) multipartError(w http.ResponseWriter, s *Session, err error, field string) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		msg := "Upload is too large"
		if field == "video" {
			msg = "Video file is too large (max " + formatMB(h.limits.MaxVideoBytes) + ")"
		}
		s.Notify(msg, upload.LevelError)
		writeError(w, http.StatusRequestEntityTooLarge, msg)
		return
	}
	log.Printf("❌ [Session] Invalid multipart request: %v", err)
	writeError(w, http.StatusBadRequest, "Invalid multipart form")
}

// HandleClearVideo - DELETE /api/sessions/{id}/video
func (h *Handler) HandleClearVideo(w http.ResponseWriter, r *http.Request) {
	s := h.session(r)
	s.ctrl.ClearReferenceVideo()
	writeView(w, s)
}

// HandleSetPrompt - PUT /api/sessions/{id}/prompt
func (h *Handler) HandleSetPrompt(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	count := h.session(r).ctrl.SetPrompt(req.Prompt)
	writeJSON(w, http.StatusOK, Response{Success: true, CharCount: &count})
}

// HandleSuggestPrompt - POST /api/sessions/{id}/prompt/suggest
func (h *Handler) HandleSuggestPrompt(w http.ResponseWriter, r *http.Request) {
	s := h.session(r)
	prompt := s.ctrl.SuggestPrompt()
	count := s.ctrl.CharCount()
	writeJSON(w, http.StatusOK, Response{Success: true, Prompt: prompt, CharCount: &count})
}

// HandleSetSettings - PUT /api/sessions/{id}/settings
func (h *Handler) HandleSetSettings(w http.ResponseWriter, r *http.Request) {
	var req upload.GenerationSettings
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s := h.session(r)
	s.ctrl.SetSettings(req)
	writeView(w, s)
}

// HandleValidate - POST /api/sessions/{id}/validate
func (h *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	if err := h.session(r).ctrl.ValidateForSubmission(); err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true})
}

// HandleGenerate - POST /api/sessions/{id}/generate
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, (*upload.Controller).SubmitGeneration)
}

// HandleRegenerate - POST /api/sessions/{id}/regenerate
func (h *Handler) HandleRegenerate(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, (*upload.Controller).Regenerate)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, fn func(*upload.Controller, context.Context) (string, error)) {
	s := h.session(r)

	ctx, cancel := context.WithTimeout(r.Context(), h.submitTimeout)
	defer cancel()

	jobID, err := fn(s.ctrl, ctx)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	v := s.ctrl.View()
	writeJSON(w, http.StatusAccepted, Response{Success: true, JobID: jobID, View: &v})
}

// HandleMetrics - GET /metrics
func (h *Handler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, sessions := h.manager.Snapshot()

	totalClients := 0
	for _, s := range sessions {
		totalClients += s.ClientCount
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"server": map[string]any{
			"uptime":           h.manager.clock.Since(metrics.StartTime).String(),
			"startTime":        metrics.StartTime,
			"totalSessions":    metrics.TotalSessions,
			"activeSessions":   metrics.ActiveSessions,
			"totalConnections": metrics.TotalConnections,
			"currentClients":   totalClients,
		},
		"sessions": sessions,
	})
}

// HandleCleanup - POST /admin/cleanup
func (h *Handler) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	empty := h.manager.CleanupEmpty()
	expired := h.manager.CleanupExpired()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "Cleanup completed",
		"empty":   empty,
		"expired": expired,
	})
}

func formatMB(n int64) string {
	return strconv.FormatInt(n/(1024*1024), 10) + "MB"
}
