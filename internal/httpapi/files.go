package httpapi

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"rsc.io/pdf"
)

const maxFilesPerUpload = 5

var (
	errUnsupportedFileType = errors.New("unsupported file type")
	errBadDataURL          = errors.New("data must be a base64 data URL")

	supportedUploadTypes = map[string]struct{}{
		"image/png":       {},
		"image/jpeg":      {},
		"image/gif":       {},
		"image/webp":      {},
		"application/pdf": {},
		"text/plain":      {},
	}

	filenameSanitizer = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

type uploadRequest struct {
	Files []uploadFileInput `json:"files"`
}

type uploadFileInput struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Data string `json:"data"`
}

type uploadedFile struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	Size       int64  `json:"size"`
	URL        string `json:"url"`
	UploadedAt string `json:"uploadedAt"`
}

type decodedUpload struct {
	name      string
	mediaType string
	data      []byte
}

// Upload accepts attachments as base64 data URLs. The chat path treats them
// as opaque; the only inspection here is rejecting undeclared types and
// structurally broken PDFs at the boundary.
func (h Handler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}
	if h.files == nil {
		writeError(w, http.StatusServiceUnavailable, "uploads_unconfigured", "upload storage is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, encodedRequestLimit(h.cfg.MaxUploadBytes))
	var req uploadRequest
	if err := decodeJSON(r, &req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "file_too_large", "upload request is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if len(req.Files) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "files are required")
		return
	}
	if len(req.Files) > maxFilesPerUpload {
		writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("at most %d files per upload", maxFilesPerUpload))
		return
	}

	decoded := make([]decodedUpload, 0, len(req.Files))
	for _, input := range req.Files {
		file, err := decodeUploadInput(input)
		if errors.Is(err, errUnsupportedFileType) {
			writeError(w, http.StatusBadRequest, "unsupported_file_type", "supported types: png, jpeg, gif, webp, pdf, plain text")
			return
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		if int64(len(file.data)) > h.cfg.MaxUploadBytes {
			writeError(w, http.StatusRequestEntityTooLarge, "file_too_large", fmt.Sprintf("%s exceeds the %d MB per-file limit", file.name, h.cfg.MaxUploadBytes/(1024*1024)))
			return
		}
		decoded = append(decoded, file)
	}

	uploaded := make([]uploadedFile, 0, len(decoded))
	for _, file := range decoded {
		fileID := uuid.NewString()
		objectPath := h.buildObjectPath(userID, fileID, file.name)

		if err := h.files.PutObject(r.Context(), objectPath, file.mediaType, file.data); err != nil {
			log.Printf("store upload failed: user_id=%s file_id=%s err=%v", userID, fileID, err)
			writeError(w, http.StatusBadGateway, "storage_error", "failed to store attachment")
			return
		}

		createdAt := time.Now().UTC().Format(time.RFC3339)
		if _, err := h.db.ExecContext(r.Context(), `
INSERT INTO files (id, user_id, filename, media_type, size_bytes, storage_backend, storage_path, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?);
`, fileID, userID, file.name, file.mediaType, len(file.data), h.files.Backend(), objectPath, createdAt); err != nil {
			log.Printf("persist upload metadata failed: user_id=%s file_id=%s err=%v", userID, fileID, err)
			_ = h.files.DeleteObject(r.Context(), objectPath)
			writeError(w, http.StatusInternalServerError, "db_error", "failed to save file metadata")
			return
		}

		uploaded = append(uploaded, uploadedFile{
			ID:         fileID,
			Name:       file.name,
			Type:       file.mediaType,
			Size:       int64(len(file.data)),
			URL:        h.files.ObjectURL(objectPath),
			UploadedAt: createdAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"files":   uploaded,
	})
}

func decodeUploadInput(input uploadFileInput) (decodedUpload, error) {
	name := sanitizeFilename(input.Name)
	if name == "" {
		return decodedUpload{}, errors.New("file name is required")
	}

	mediaType, payload, err := parseDataURL(input.Data)
	if err != nil {
		return decodedUpload{}, err
	}

	declaredType := strings.ToLower(strings.TrimSpace(input.Type))
	if declaredType == "" {
		declaredType = mediaType
	}
	if declaredType != mediaType {
		return decodedUpload{}, fmt.Errorf("declared type %q does not match data URL type %q", declaredType, mediaType)
	}
	if _, supported := supportedUploadTypes[mediaType]; !supported {
		return decodedUpload{}, errUnsupportedFileType
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return decodedUpload{}, errBadDataURL
	}
	if len(data) == 0 {
		return decodedUpload{}, errors.New("empty files are not allowed")
	}

	if mediaType == "application/pdf" {
		if _, err := pdf.NewReader(bytes.NewReader(data), int64(len(data))); err != nil {
			return decodedUpload{}, fmt.Errorf("%s is not a valid PDF", name)
		}
	}

	return decodedUpload{name: name, mediaType: mediaType, data: data}, nil
}

func parseDataURL(raw string) (mediaType, payload string, err error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(raw), "data:")
	if !ok {
		return "", "", errBadDataURL
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", "", errBadDataURL
	}
	meta, ok = strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", "", errBadDataURL
	}
	mediaType = strings.ToLower(strings.TrimSpace(meta))
	if mediaType == "" {
		return "", "", errBadDataURL
	}
	return mediaType, payload, nil
}

func sanitizeFilename(raw string) string {
	base := path.Base(strings.TrimSpace(raw))
	if base == "." || base == "/" {
		return ""
	}
	return filenameSanitizer.ReplaceAllString(base, "_")
}

func (h Handler) buildObjectPath(userID, fileID, filename string) string {
	prefix := strings.Trim(strings.TrimSpace(h.cfg.GCSUploadPrefix), "/")
	if prefix == "" {
		prefix = "chat-uploads"
	}
	return path.Join(prefix, "users", userID, fileID, filename)
}

// encodedRequestLimit allows for base64 overhead plus JSON framing around
// maxFilesPerUpload files at the per-file byte cap.
func encodedRequestLimit(maxUploadBytes int64) int64 {
	perFile := maxUploadBytes*4/3 + 4096
	return perFile*maxFilesPerUpload + 64*1024
}
