package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/opsmind/agent"
	"github.com/poiesic/opsmind/ai"
	"github.com/poiesic/opsmind/core"
	"github.com/poiesic/opsmind/storage"
	"github.com/poiesic/opsmind/stream"
)

// multipart bodies carry headers and boundaries beyond the file itself
const multipartOverhead = 1 << 20

type chatRequest struct {
	Message  string                  `json:"message"`
	Question string                  `json:"question"`
	History  []core.ConversationTurn `json:"history"`
	UserID   string                  `json:"userId"`
}

type errorResponse struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

type uploadResponse struct {
	Status       string `json:"status"`
	JobID        string `json:"jobId"`
	FileName     string `json:"fileName"`
	OriginalName string `json:"originalName"`
	Size         int64  `json:"size"`
}

type healthResponse struct {
	Status string    `json:"status"`
	Chunks int       `json:"chunks"`
	Time   time.Time `json:"time"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	question := req.Message
	if strings.TrimSpace(question) == "" {
		question = req.Question
	}
	if strings.TrimSpace(question) == "" {
		writeError(w, http.StatusBadRequest, "Message is required")
		return
	}

	ctx := r.Context()
	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}

	answer, err := s.answerer.Answer(ctx, agent.Request{
		Question: question,
		History:  req.History,
		UserID:   req.UserID,
	})
	if err != nil {
		s.writeAnswerError(w, err)
		return
	}

	stream.PrepareHeaders(w.Header())
	w.WriteHeader(http.StatusOK)
	session, err := stream.NewSession(stream.NewSSEWriter(w),
		stream.WithSegmentSize(s.segmentSize), stream.WithLogger(s.logger))
	if err != nil {
		s.logger.Error("starting stream", "err", err)
		return
	}
	if err := session.Deliver(ctx, answer); err != nil {
		if ctx.Err() != nil {
			s.logger.Debug("client went away mid-stream", "err", err)
			return
		}
		_ = session.Fail(ctx, err)
	}
}

func (s *Server) writeAnswerError(w http.ResponseWriter, err error) {
	if retryAfter, ok := ai.IsQuota(err); ok {
		secs := s.retryAfterSeconds(retryAfter)
		s.logger.Warn("quota exhausted", "retryAfter", secs, "err", err)
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Error:      "Rate limit / quota exceeded",
			RetryAfter: secs,
		})
		return
	}
	switch {
	case errors.Is(err, agent.ErrEmptyQuestion):
		writeError(w, http.StatusBadRequest, "Message is required")
	case errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn("chat request timed out", "err", err)
		writeError(w, http.StatusGatewayTimeout, "Request timed out")
	case errors.Is(err, storage.ErrEmbeddingSpaceMismatch):
		s.logger.Error("embedding model does not match stored chunks", "err", err)
		writeError(w, http.StatusConflict, "Embedding model does not match the indexed documents")
	default:
		s.logger.Error("answering failed", "err", err)
		writeError(w, http.StatusInternalServerError, "AI Error")
	}
}

func (s *Server) retryAfterSeconds(hint time.Duration) int {
	if hint <= 0 {
		hint = s.retryAfter
	}
	return int(math.Ceil(hint.Seconds()))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !s.loaders.Supports(header.Filename) {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("Unsupported file type %q; accepted: %s", ext, strings.Join(s.loaders.Extensions(), ", ")))
		return
	}
	if header.Size > s.maxUploadSize {
		writeError(w, http.StatusRequestEntityTooLarge, "File too large")
		return
	}

	name := fmt.Sprintf("%d-%s%s", s.now().UnixMilli(), uuid.NewString(), ext)
	path := filepath.Join(s.uploadDir, name)
	size, err := saveUpload(path, file, s.maxUploadSize)
	if err != nil {
		os.Remove(path)
		if errors.Is(err, errUploadTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		s.logger.Error("saving upload", "file", header.Filename, "err", err)
		writeError(w, http.StatusInternalServerError, "Could not store file")
		return
	}

	jobID, err := s.jobs.Enqueue(r.Context(), core.JobPayload{FilePath: path, OriginalName: filepath.Base(header.Filename)})
	if err != nil {
		os.Remove(path)
		s.logger.Error("enqueueing upload", "file", header.Filename, "err", err)
		writeError(w, http.StatusInternalServerError, "Could not queue file")
		return
	}

	s.logger.Info("upload queued", "job", jobID, "file", name, "originalName", header.Filename, "size", size)
	writeJSON(w, http.StatusCreated, uploadResponse{
		Status:       "queued",
		JobID:        jobID,
		FileName:     name,
		OriginalName: header.Filename,
		Size:         size,
	})
}

var errUploadTooLarge = errors.New("upload too large")

func saveUpload(path string, src io.Reader, limit int64) (int64, error) {
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(dst, io.LimitReader(src, limit+1))
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, err
	}
	if n > limit {
		return n, errUploadTooLarge
	}
	return n, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	count, err := s.chunks.Count(r.Context())
	if err != nil {
		s.logger.Error("counting chunks", "err", err)
		writeError(w, http.StatusServiceUnavailable, "Storage unavailable")
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Chunks: count, Time: s.now().UTC()})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Job not found")
			return
		}
		s.logger.Error("fetching job", "err", err)
		writeError(w, http.StatusInternalServerError, "Storage error")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	state := core.JobState(r.URL.Query().Get("state"))
	switch state {
	case "", core.JobStateWaiting, core.JobStateActive, core.JobStateFailed:
	case core.JobStateCompleted:
		// completed jobs are removed from the store
		writeJSON(w, http.StatusOK, []*core.Job{})
		return
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown job state %q", state))
		return
	}
	jobs, err := s.jobs.List(r.Context(), state)
	if err != nil {
		s.logger.Error("listing jobs", "err", err)
		writeError(w, http.StatusInternalServerError, "Storage error")
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
