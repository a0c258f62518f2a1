package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"pdf-rag/internal/config"
	"pdf-rag/internal/helper"
	"pdf-rag/internal/history"
	"pdf-rag/internal/indexer"
	"pdf-rag/internal/models"
	"pdf-rag/internal/parser"
)

const sessionCookie = "pdf_rag_session"

type Processor interface {
	Process(ctx context.Context, path string) (indexer.UploadReport, error)
}

type Answerer interface {
	Query(ctx context.Context, query string) models.Answer
}

type Server struct {
	processor     Processor
	answerer      Answerer
	sessions      *history.Registry
	uploadsDir    string
	maxUploadSize int64
}

func New(processor Processor, answerer Answerer, uploadsDir string, cfg config.ServerConfig) *Server {
	return &Server{
		processor:     processor,
		answerer:      answerer,
		sessions:      history.NewRegistry(),
		uploadsDir:    uploadsDir,
		maxUploadSize: cfg.MaxUploadSize,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/", s.handleIndex)
	r.Post("/upload", s.handleUpload)
	r.Post("/ask", s.handleAsk)
	r.Route("/api", func(r chi.Router) {
		r.Get("/history", s.handleHistory)
		r.Post("/ask", s.handleAPIAsk)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("HTTP request")
	})
}

// session resolves the caller's history, issuing a new cookie when needed.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*history.Store, error) {
	var id string
	if c, err := r.Cookie(sessionCookie); err == nil {
		id = c.Value
	}
	newID, store, err := s.sessions.Session(id)
	if err != nil {
		return nil, err
	}
	if newID != id {
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    newID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return store, nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	store, err := s.session(w, r)
	if err != nil {
		http.Error(w, "Failed to start session", http.StatusInternalServerError)
		return
	}

	data := pageData{Status: r.URL.Query().Get("status")}
	for _, e := range store.Entries() {
		answerHTML, err := history.RenderHTML(e.Answer)
		if err != nil {
			log.Warn().Err(err).Msg("Showing answer as plain text")
			answerHTML = template.HTMLEscapeString(e.Answer)
		}
		data.Entries = append(data.Entries, pageEntry{
			Question:   e.Question,
			AnswerHTML: template.HTML(answerHTML),
			Source:     e.Source,
			Failed:     e.Failed,
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, data); err != nil {
		log.Error().Err(err).Msg("Error rendering page")
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.maxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "A PDF file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		http.Error(w, "Only PDF files are supported", http.StatusBadRequest)
		return
	}

	path, err := helper.SaveFile(s.uploadsDir, header.Filename, file)
	if err != nil {
		log.Error().Err(err).Msg("Error saving upload")
		http.Error(w, "Failed to save file", http.StatusInternalServerError)
		return
	}
	log.Info().Str("file", path).Msg("Uploaded file")

	report, err := s.processor.Process(r.Context(), path)
	status := uploadStatus(report, err)
	if err != nil && !errors.Is(err, indexer.ErrDuplicate) {
		log.Error().Err(err).Str("file", path).Msg("Error processing file")
	}
	redirect(w, r, status)
}

func uploadStatus(report indexer.UploadReport, err error) string {
	switch {
	case errors.Is(err, indexer.ErrDuplicate):
		return fmt.Sprintf("File %s already exists in the index. Skipping upload.", report.FileName)
	case errors.Is(err, parser.ErrInvalidPDF):
		return fmt.Sprintf("Could not read %s: the file is not a valid PDF.", report.FileName)
	case err != nil:
		return fmt.Sprintf("Processing %s failed: %v", report.FileName, err)
	case len(report.Failed) > 0:
		return fmt.Sprintf("Indexed %d of %d parts of %s. Ready for user query.", report.Succeeded(), report.Total, report.FileName)
	default:
		return "Ready for user query || Please ask question."
	}
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.FormValue("query"))
	if query == "" {
		redirect(w, r, "Please enter a question.")
		return
	}
	if _, err := s.ask(w, r, query); err != nil {
		http.Error(w, "Failed to start session", http.StatusInternalServerError)
		return
	}
	redirect(w, r, "")
}

type askRequest struct {
	Query string `json:"query"`
}

type askResponse struct {
	Answer       string             `json:"answer"`
	Source       string             `json:"source"`
	Sources      []models.SourceRef `json:"sources"`
	Contributors []models.SourceRef `json:"contributors"`
	Failed       bool               `json:"failed"`
}

func (s *Server) handleAPIAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	answer, err := s.ask(w, r, strings.TrimSpace(req.Query))
	if err != nil {
		http.Error(w, "Failed to start session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, askResponse{
		Answer:       answer.Content,
		Source:       answer.SourceInfo(),
		Sources:      answer.Sources,
		Contributors: answer.Contributors,
		Failed:       answer.Failed(),
	})
}

// ask answers query and records it in the caller's history.
func (s *Server) ask(w http.ResponseWriter, r *http.Request, query string) (models.Answer, error) {
	store, err := s.session(w, r)
	if err != nil {
		return models.Answer{}, err
	}
	answer := s.answerer.Query(r.Context(), query)
	store.Append(history.EntryFromAnswer(answer))
	return answer, nil
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	store, err := s.session(w, r)
	if err != nil {
		http.Error(w, "Failed to start session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, store.Entries())
}

func redirect(w http.ResponseWriter, r *http.Request, status string) {
	target := "/"
	if status != "" {
		target += "?status=" + url.QueryEscape(status)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Error writing response")
	}
}
