package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/storeit/storeit/internal/logging"
)

var rangeRegex = regexp.MustCompile(`bytes=(\d*)-(\d*)`)

// ─── File handlers ──────────────────────────────────────────────────────────

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var types []string
	if raw := q.Get("types"); raw != "" {
		types = strings.Split(raw, ",")
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.sendError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	files, err := s.actions.GetFiles(r.Context(), s.sessionSecret(r),
		types, q.Get("search"), q.Get("sort"), limit)
	if err != nil {
		s.sendActionError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"files": files, "total": len(files)})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	// The form is bounded slightly above the single-file cap so the
	// size check in the actions layer produces the descriptive error.
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxFileSize+1<<20)

	file, header, err := r.FormFile("file")
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	uploaded, err := s.actions.UploadFile(r.Context(), s.sessionSecret(r),
		header.Filename, file, header.Size, r.FormValue("path"))
	if err != nil {
		s.sendActionError(w, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, uploaded)
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		Extension string `json:"extension"`
		Path      string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		s.sendError(w, http.StatusBadRequest, "name is required")
		return
	}

	file, err := s.actions.RenameFile(r.Context(), s.sessionSecret(r),
		r.PathValue("id"), req.Name, req.Extension, req.Path)
	if err != nil {
		s.sendActionError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, file)
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Emails []string `json:"emails"`
		Path   string   `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	file, err := s.actions.UpdateFileUsers(r.Context(), s.sessionSecret(r),
		r.PathValue("id"), req.Emails, req.Path)
	if err != nil {
		s.sendActionError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, file)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	err := s.actions.DeleteFile(r.Context(), s.sessionSecret(r),
		r.PathValue("id"), r.URL.Query().Get("path"))
	if err != nil {
		s.sendActionError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	fileID := r.PathValue("id")

	meta, reader, totalSize, err := s.actions.GetFileContent(r.Context(), s.sessionSecret(r), fileID, 0, 0)
	if err != nil {
		s.sendActionError(w, err)
		return
	}

	offset, length, hasRange := parseRangeHeader(r.Header.Get("Range"), totalSize)
	if hasRange {
		// Re-read the ranged slice; the full read sized the range.
		reader.Close()
		_, reader, _, err = s.actions.GetFileContent(r.Context(), s.sessionSecret(r), fileID, offset, length)
		if err != nil {
			s.sendActionError(w, err)
			return
		}
	}
	defer reader.Close()

	ct := mime.TypeByExtension("." + meta.Extension)
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", meta.Name))

	if hasRange {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, offset+length-1, totalSize))
		w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.Header().Set("Content-Length", strconv.FormatInt(totalSize, 10))
		w.WriteHeader(http.StatusOK)
	}

	if _, err := io.Copy(w, reader); err != nil {
		logging.Warn("content transfer error", zap.String("file_id", fileID), zap.Error(err))
	}
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := s.actions.GetTotalSpaceUsed(r.Context(), s.sessionSecret(r))
	if err != nil {
		s.sendActionError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, usage)
}

func parseRangeHeader(rangeHeader string, totalSize int64) (offset, length int64, hasRange bool) {
	if rangeHeader == "" {
		return 0, totalSize, false
	}

	matches := rangeRegex.FindStringSubmatch(rangeHeader)
	if matches == nil {
		return 0, totalSize, false
	}

	startStr, endStr := matches[1], matches[2]

	if startStr == "" && endStr != "" {
		suffix, _ := strconv.ParseInt(endStr, 10, 64)
		offset = totalSize - suffix
		if offset < 0 {
			offset = 0
		}
		length = totalSize - offset
		return offset, length, true
	}

	if startStr != "" {
		offset, _ = strconv.ParseInt(startStr, 10, 64)
	}

	if endStr != "" {
		end, _ := strconv.ParseInt(endStr, 10, 64)
		length = end - offset + 1
	} else {
		length = totalSize - offset
	}

	if offset >= totalSize {
		offset = totalSize - 1
	}
	if length < 0 || offset+length > totalSize {
		length = totalSize - offset
	}

	return offset, length, true
}
