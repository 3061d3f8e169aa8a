package generation

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"flowai-video-server/modules/common/database"
	"flowai-video-server/modules/common/model"
)

// StatusChecker - 비디오 API 상태 확인
type StatusChecker interface {
	CheckStatus(ctx context.Context) *APIStatus
}

// Handler - generation HTTP Handler
type Handler struct {
	store     JobStore
	status    StatusChecker
	canceller *Canceller
}

func NewHandler(store JobStore, status StatusChecker, canceller *Canceller) *Handler {
	return &Handler{store: store, status: status, canceller: canceller}
}

// RegisterRoutes - 라우트 등록
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/status", h.HandleStatus).Methods("GET")
	r.HandleFunc("/api/generations/{jobId}", h.HandleJobStatus).Methods("GET")
	r.HandleFunc("/api/generations/{jobId}/cancel", h.HandleCancel).Methods("POST")
	log.Println("✅ [Generation] Routes registered: /api/status, /api/generations/{jobId}, /api/generations/{jobId}/cancel")
}

// HandleStatus - GET /api/status
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	status := h.status.CheckStatus(ctx)

	w.Header().Set("Content-Type", "application/json")
	if !status.Online {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}

// HandleJobStatus - GET /api/generations/{jobId}
func (h *Handler) HandleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]
	w.Header().Set("Content-Type", "application/json")

	job, err := h.store.FetchJob(r.Context(), jobID)
	if err != nil {
		writeJobError(w, jobID, err, "Failed to fetch job")
		return
	}
	json.NewEncoder(w).Encode(jobResponse(job))
}

// HandleCancel - POST /api/generations/{jobId}/cancel
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]
	w.Header().Set("Content-Type", "application/json")

	job, err := h.canceller.Cancel(r.Context(), jobID)
	if errors.Is(err, ErrJobFinished) {
		// 이미 완료/취소된 job 은 취소 불가
		resp := jobResponse(job)
		resp.Success = false
		resp.Error = "Job already " + job.JobStatus
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(resp)
		return
	}
	if err != nil {
		writeJobError(w, jobID, err, "Failed to cancel job")
		return
	}
	json.NewEncoder(w).Encode(jobResponse(job))
}

func jobResponse(job *model.GenerationJob) JobStatusResponse {
	resp := JobStatusResponse{Success: true, JobID: job.JobID, Status: job.JobStatus}
	if job.VideoURL != nil {
		resp.VideoURL = *job.VideoURL
	}
	if job.ErrorMessage != nil {
		resp.Error = *job.ErrorMessage
	}
	return resp
}

func writeJobError(w http.ResponseWriter, jobID string, err error, msg string) {
	code := http.StatusInternalServerError
	if errors.Is(err, database.ErrJobNotFound) {
		code = http.StatusNotFound
		msg = "Job not found"
	} else {
		log.Printf("❌ [Generation] %s %s: %v", msg, jobID, err)
	}
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(JobStatusResponse{Success: false, Error: msg})
}
