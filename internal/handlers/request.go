package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"time"

	domain "github.com/lovegallery/api/internal/domain"
	"github.com/lovegallery/api/internal/platform/auth"
	"github.com/lovegallery/api/internal/platform/httpx"
	"github.com/lovegallery/api/internal/services"
)

const (
	maxJSONRequestBody = 64 * 1024
	// multipartMemory is how much of a multipart body is buffered in memory
	// before file parts spill to temporary files.
	multipartMemory = 8 << 20
	multipartSlack  = 1 << 20
)

var errBodyTooLarge = errors.New("request body too large")

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// decodeJSONBody writes the error envelope itself and reports whether the handler may continue.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(w, r, dst, maxJSONRequestBody); err != nil {
		httpx.WriteError(r.Context(), w, *err)
		return false
	}
	return true
}

// parseMultipart bounds the whole body to limit before parsing it.
func parseMultipart(w http.ResponseWriter, r *http.Request, limit int64) error {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.HasPrefix(ct, "multipart/form-data") {
		return fmt.Errorf("%w: content type must be multipart/form-data", services.ErrDraftUnsupportedMedia)
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errBodyTooLarge
		}
		return fmt.Errorf("%w: malformed multipart body: %v", services.ErrDraftInvalidInput, err)
	}
	return nil
}

// openUploads opens every file part of field. The returned closer must be
// called once the service is done with the bodies.
func openUploads(form *multipart.Form, field string, captions []string) ([]services.Upload, func(), error) {
	var (
		uploads []services.Upload
		files   []multipart.File
	)
	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}
	if form == nil {
		return nil, closeAll, nil
	}
	for i, header := range form.File[field] {
		file, err := header.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("%w: open %s: %v", services.ErrDraftInvalidInput, header.Filename, err)
		}
		files = append(files, file)
		upload := services.Upload{
			FileName:    header.Filename,
			ContentType: partContentType(header),
			Size:        header.Size,
			Body:        file,
		}
		if i < len(captions) {
			upload.Caption = captions[i]
		}
		uploads = append(uploads, upload)
	}
	return uploads, closeAll, nil
}

func partContentType(header *multipart.FileHeader) string {
	ct := strings.TrimSpace(header.Header.Get("Content-Type"))
	if ct == "" {
		return "application/octet-stream"
	}
	return ct
}

func parsePlanParam(raw string) (*domain.Plan, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	plan, err := domain.ParsePlan(raw)
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// clientKey identifies the caller for throttling: the signed-in uid, else the client IP.
func clientKey(r *http.Request) string {
	if uid := auth.OwnerUID(r.Context()); uid != "" {
		return "uid:" + uid
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return "ip:" + addr
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
