package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func dataURL(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func postUpload(t *testing.T, h Handler, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	encoded, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal upload body: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader(string(encoded)))
	req.Header.Set("Content-Type", "application/json")
	req = requestWithIdentity(req, userID)

	resp := httptest.NewRecorder()
	h.Upload(resp, req)
	return resp
}

func TestUploadStoresFileAndMetadata(t *testing.T) {
	h := newTestHandler(t, stubCompleter{reply: "ok"}, stubSearcher{}, nil)

	resp := postUpload(t, h, demoUserID, uploadRequest{Files: []uploadFileInput{{
		Name: "photo.png",
		Type: "image/png",
		Data: dataURL("image/png", []byte("fake png bytes")),
	}}})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, resp.Code, resp.Body.String())
	}

	var payload struct {
		Success bool           `json:"success"`
		Files   []uploadedFile `json:"files"`
	}
	decodeJSONBody(t, resp, &payload)
	if !payload.Success || len(payload.Files) != 1 {
		t.Fatalf("unexpected upload response: %+v", payload)
	}

	file := payload.Files[0]
	if file.ID == "" || file.Name != "photo.png" || file.Type != "image/png" {
		t.Fatalf("unexpected file record: %+v", file)
	}
	if file.Size != int64(len("fake png bytes")) {
		t.Fatalf("unexpected size: %d", file.Size)
	}
	if !strings.HasPrefix(file.URL, "/uploads/") {
		t.Fatalf("expected local upload url, got %q", file.URL)
	}

	var count int
	if err := h.db.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM files WHERE user_id = ?;`, demoUserID).Scan(&count); err != nil {
		t.Fatalf("count files: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 metadata row, got %d", count)
	}
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	h := newTestHandler(t, stubCompleter{reply: "ok"}, stubSearcher{}, nil)

	resp := postUpload(t, h, demoUserID, uploadRequest{Files: []uploadFileInput{{
		Name: "app.exe",
		Type: "application/x-msdownload",
		Data: dataURL("application/x-msdownload", []byte("MZ")),
	}}})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.Code)
	}
}

func TestUploadRejectsDeclaredTypeMismatch(t *testing.T) {
	h := newTestHandler(t, stubCompleter{reply: "ok"}, stubSearcher{}, nil)

	resp := postUpload(t, h, demoUserID, uploadRequest{Files: []uploadFileInput{{
		Name: "notes.txt",
		Type: "text/plain",
		Data: dataURL("image/png", []byte("pixels")),
	}}})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.Code)
	}
}

func TestUploadRejectsMalformedDataURL(t *testing.T) {
	h := newTestHandler(t, stubCompleter{reply: "ok"}, stubSearcher{}, nil)

	resp := postUpload(t, h, demoUserID, uploadRequest{Files: []uploadFileInput{{
		Name: "notes.txt",
		Type: "text/plain",
		Data: "just some text, not a data url",
	}}})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.Code)
	}
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	h := newTestHandler(t, stubCompleter{reply: "ok"}, stubSearcher{}, nil)
	h.cfg.MaxUploadBytes = 16

	resp := postUpload(t, h, demoUserID, uploadRequest{Files: []uploadFileInput{{
		Name: "big.txt",
		Type: "text/plain",
		Data: dataURL("text/plain", []byte(strings.Repeat("a", 64))),
	}}})
	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status %d, got %d", http.StatusRequestEntityTooLarge, resp.Code)
	}
}

func TestUploadRejectsTooManyFiles(t *testing.T) {
	h := newTestHandler(t, stubCompleter{reply: "ok"}, stubSearcher{}, nil)

	files := make([]uploadFileInput, maxFilesPerUpload+1)
	for i := range files {
		files[i] = uploadFileInput{
			Name: "notes.txt",
			Type: "text/plain",
			Data: dataURL("text/plain", []byte("hi")),
		}
	}

	resp := postUpload(t, h, demoUserID, uploadRequest{Files: files})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.Code)
	}
}

func TestUploadRejectsBrokenPDF(t *testing.T) {
	h := newTestHandler(t, stubCompleter{reply: "ok"}, stubSearcher{}, nil)

	resp := postUpload(t, h, demoUserID, uploadRequest{Files: []uploadFileInput{{
		Name: "report.pdf",
		Type: "application/pdf",
		Data: dataURL("application/pdf", []byte("definitely not a pdf")),
	}}})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.Code)
	}
}

func TestUploadUnavailableWithoutStorage(t *testing.T) {
	h := newTestHandler(t, stubCompleter{reply: "ok"}, stubSearcher{}, nil)
	h.files = nil

	resp := postUpload(t, h, demoUserID, uploadRequest{Files: []uploadFileInput{{
		Name: "notes.txt",
		Type: "text/plain",
		Data: dataURL("text/plain", []byte("hi")),
	}}})
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, resp.Code)
	}
}
