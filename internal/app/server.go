package app

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"RecipeSwipe/internal/domain"
	"RecipeSwipe/internal/logging"
	"RecipeSwipe/internal/usecase"
)

const maxUploadBytes = 64 << 20

// Server exposes the upload queue, the job feed and the swipe feed over HTTP.
type Server struct {
	uploads *usecase.UploadQueue
	feed    *usecase.Feed
	logger  *slog.Logger
	mux     *http.ServeMux
}

// NewServer builds the handler. ws serves the websocket job feed; feed may
// be nil to disable the swipe routes.
func NewServer(uploads *usecase.UploadQueue, ws http.Handler, feed *usecase.Feed, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Server{uploads: uploads, feed: feed, logger: logger, mux: http.NewServeMux()}

	s.mux.HandleFunc("POST /uploads", s.handleQueueUpload)
	s.mux.HandleFunc("GET /uploads", s.handleListJobs)
	s.mux.HandleFunc("GET /uploads/{id}", s.handleGetJob)
	s.mux.HandleFunc("DELETE /uploads/{id}", s.handleCancelJob)
	if ws != nil {
		s.mux.Handle("GET /ws", ws)
	}
	if feed != nil {
		s.mux.HandleFunc("GET /feed", s.handleFeed)
		s.mux.HandleFunc("POST /feed/advance", s.handleAdvance)
		s.mux.HandleFunc("POST /feed/filter", s.handleFilter)
		s.mux.HandleFunc("POST /feed/pending/confirm", s.handleConfirm)
		s.mux.HandleFunc("POST /feed/pending/delete", s.handleDelete)
		s.mux.HandleFunc("POST /feed/pending/reset", s.handleReset)
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type uploadRequest struct {
	Files     []domain.UploadFile `json:"files"`
	ChunkInfo *domain.ChunkInfo   `json:"chunkInfo,omitempty"`
}

func (s *Server) handleQueueUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var (
		req uploadRequest
		err error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		req.Files, err = readMultipartFiles(r)
	} else {
		err = json.NewDecoder(r.Body).Decode(&req)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid upload: %v", err))
		return
	}
	if len(req.Files) == 0 {
		writeError(w, http.StatusBadRequest, "no files to upload")
		return
	}
	for i := range req.Files {
		if req.Files[i].Type == "" {
			req.Files[i].Type = domain.FileTypeImage
		}
	}

	id := s.uploads.QueueUpload(req.Files, req.ChunkInfo)
	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": id})
}

func readMultipartFiles(r *http.Request) ([]domain.UploadFile, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, err
	}
	var files []domain.UploadFile
	for _, header := range r.MultipartForm.File["files"] {
		f, err := header.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, err
		}
		files = append(files, domain.UploadFile{
			Data: base64.StdEncoding.EncodeToString(data),
			Type: domain.DetectFileType(header.Filename, data),
			URI:  header.Filename,
		})
	}
	return files, nil
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": s.uploads.GetAllJobs()})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.uploads.GetJob(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.uploads.CancelJob(id) {
		writeError(w, http.StatusConflict, "job is not pending")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type feedImage struct {
	Key      string `json:"key"`
	Filename string `json:"filename"`
	File     string `json:"file"`
}

type feedPending struct {
	Key        string   `json:"key"`
	Title      string   `json:"title"`
	Candidates []string `json:"candidates"`
}

type feedResponse struct {
	Current *feedImage   `json:"current"`
	Next    *feedImage   `json:"next"`
	Length  int          `json:"length"`
	Loading bool         `json:"loading"`
	State   string       `json:"state"`
	Pending *feedPending `json:"pending,omitempty"`
	Status  string       `json:"status,omitempty"`
}

func (s *Server) feedState() feedResponse {
	q := s.feed.Queue()
	resp := feedResponse{
		Current: toFeedImage(q.Current()),
		Next:    toFeedImage(q.Next()),
		Length:  q.Len(),
		Loading: q.Loading(),
		State:   s.feed.Pending().State().String(),
		Status:  s.feed.Pending().Status(),
	}
	if p, ok := s.feed.Pending().Pending(); ok {
		resp.Pending = &feedPending{Key: p.Key, Title: p.Recipe.Title, Candidates: p.Candidates}
	}
	return resp
}

func toFeedImage(img *domain.Image) *feedImage {
	if img == nil {
		return nil
	}
	return &feedImage{Key: img.Key, Filename: img.Filename, File: img.File}
}

func (s *Server) handleFeed(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.feedState())
}

func (s *Server) handleAdvance(w http.ResponseWriter, _ *http.Request) {
	s.feed.Queue().Advance()
	writeJSON(w, http.StatusOK, s.feedState())
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	var body struct {
		MealTypes []string `json:"mealTypes"`
		Query     string   `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid filter")
		return
	}
	if err := s.feed.SetFilter(r.Context(), usecase.Filter{MealTypes: body.MealTypes, Query: body.Query}); err != nil {
		writeError(w, http.StatusInternalServerError, usecase.FriendlyMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, s.feedState())
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ImageURL string `json:"imageUrl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ImageURL == "" {
		writeError(w, http.StatusBadRequest, usecase.MsgInvalid)
		return
	}
	s.pendingAction(w, s.feed.ConfirmImage(r.Context(), body.ImageURL))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.pendingAction(w, s.feed.DeleteRecipe(r.Context()))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.feed.ResetPending(r.Context())
	writeJSON(w, http.StatusOK, s.feedState())
}

func (s *Server) pendingAction(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, s.feedState())
	case errors.Is(err, domain.ErrNoPendingRecipe):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Warn("pending recipe action failed", "error", err)
		writeError(w, http.StatusBadGateway, usecase.FriendlyMessage(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
