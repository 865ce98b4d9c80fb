package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/mailscraped/internal/etl"
	"github.com/raaihank/mailscraped/internal/storage"
)

var (
	// ErrNoFileSupplied is returned when an upload carries no file
	ErrNoFileSupplied = errors.New("no file supplied")
	// ErrUploadTooLarge is returned when an upload exceeds the size limit
	ErrUploadTooLarge = errors.New("file too large")
	// ErrInvalidUpload is returned for malformed multipart bodies
	ErrInvalidUpload = errors.New("invalid upload")
)

// maxFormMemory caps the part of an upload kept in memory; the rest spills
// to temporary files
const maxFormMemory = 32 << 20

// uploadResponse is returned by a successful upload
type uploadResponse struct {
	RunID       string       `json:"run_id"`
	File        string       `json:"file"`
	DownloadURL string       `json:"download_url"`
	Count       int          `json:"count"`
	Results     []etl.Entry  `json:"results"`
	Stats       etl.RunStats `json:"stats"`
}

// errorResponse is the body of every failed request
type errorResponse struct {
	Error string `json:"error"`
	RunID string `json:"run_id,omitempty"`
}

// handleUpload runs the pipeline over an uploaded file
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	log := s.requestLogger(r)

	file, header, err := s.uploadedFile(w, r)
	if err != nil {
		log.Warn("Rejected upload", zap.Error(err))
		switch {
		case errors.Is(err, ErrUploadTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, err.Error(), "")
		default:
			writeError(w, http.StatusBadRequest, err.Error(), "")
		}
		return
	}
	defer file.Close()

	format := etl.DetectFileFormat(header.Filename)
	if !s.formats[format] {
		log.Warn("Rejected upload", zap.String("filename", header.Filename), zap.Error(etl.ErrUnsupportedFormat))
		writeError(w, http.StatusBadRequest, "unsupported file type", "")
		return
	}

	// The run finishes even if the client goes away.
	ctx := context.WithoutCancel(r.Context())

	result, err := s.pipeline.Run(ctx, etl.RunInput{
		Filename: header.Filename,
		Format:   format,
		Body:     file,
	})
	if err != nil {
		runID := ""
		if result != nil {
			runID = result.RunID
		}
		status, message := runErrorStatus(err)
		log.Error("Upload processing failed",
			zap.String("run_id", runID),
			zap.String("filename", header.Filename),
			zap.Error(err),
		)
		writeError(w, status, message, runID)
		return
	}

	results := result.Entries
	if results == nil {
		results = []etl.Entry{}
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		RunID:       result.RunID,
		File:        result.File,
		DownloadURL: "/download?file=" + url.QueryEscape(result.File),
		Count:       len(results),
		Results:     results,
		Stats:       result.Stats,
	})
}

// uploadedFile extracts the "file" part of a size-limited multipart body
func (s *Server) uploadedFile(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	limit := s.config.Server.MaxUploadBytes
	if r.ContentLength > limit {
		return nil, nil, ErrUploadTooLarge
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(min(limit, maxFormMemory)); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return nil, nil, ErrUploadTooLarge
		case errors.Is(err, http.ErrNotMultipart), errors.Is(err, http.ErrMissingBoundary):
			return nil, nil, ErrNoFileSupplied
		default:
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidUpload, err)
		}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, nil, ErrNoFileSupplied
	}
	if header.Filename == "" {
		file.Close()
		return nil, nil, ErrNoFileSupplied
	}
	return file, header, nil
}

// runErrorStatus maps a failed run to a status and a message that reveals
// no internal detail
func runErrorStatus(err error) (int, string) {
	var pe *etl.ParseError
	if errors.As(err, &pe) || errors.Is(err, etl.ErrUnsupportedFormat) {
		return http.StatusUnprocessableEntity, "failed to process file"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "processing timed out"
	}
	return http.StatusInternalServerError, "internal error while processing file"
}

// handleDownload streams a previously produced artifact
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("file")
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing file parameter", "")
		return
	}

	f, info, err := s.store.Open(name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidName) {
			writeError(w, http.StatusNotFound, "file not found", "")
			return
		}
		s.requestLogger(r).Error("Failed to open artifact", zap.String("file", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error", "")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", info.Name()))
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":             "mailscraped",
		"version":          Version,
		"uptime":           time.Since(s.startedAt).Round(time.Second).String(),
		"allowed_formats":  s.config.Input.AllowedFormats,
		"max_upload_bytes": s.config.Server.MaxUploadBytes,
		"fetch_enabled":    s.config.Fetch.Enabled,
		"cache_enabled":    s.config.Validation.Cache.Enabled,
	}
	if s.validator != nil {
		info["blacklisted_domains"] = s.validator.Blacklist().Len()
		info["validation"] = s.validator.Stats()
	}
	if s.wsHub != nil {
		info["websocket"] = s.wsHub.GetStats()
	}

	writeJSON(w, http.StatusOK, info)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, runID string) {
	writeJSON(w, status, errorResponse{Error: message, RunID: runID})
}
