package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/lovegallery/api/internal/domain"
	"github.com/lovegallery/api/internal/platform/auth"
	"github.com/lovegallery/api/internal/services"
)

func galleryRouter(h *GalleryHandlers) chi.Router {
	router := chi.NewRouter()
	router.Route("/galleries", h.Routes)
	router.Route("/me", h.MeRoutes)
	return router
}

func sampleGalleryView() services.GalleryView {
	return services.GalleryView{
		Gallery: domain.Gallery{
			ID:          "g1",
			Slug:        "asha-ravi-x7k2p",
			YourName:    "Asha",
			PartnerName: "Ravi",
			LoveMessage: "Forever yours",
			Photos: []domain.GalleryPhoto{
				{ID: "p1", URL: "https://cdn.test/galleries/photos/a.jpg", Caption: "beach", Uploaded: true},
				{ID: "p2", URL: "blob:local-2"},
			},
			Theme:     "ocean-romance",
			Music:     "romantic",
			Stories:   []domain.Story{{Title: "First date", Content: "**coffee**"}},
			Plan:      domain.PlanTrueLove,
			CreatedAt: time.Date(2025, 2, 14, 9, 0, 0, 0, time.UTC),
		},
		SharePath:     "/g/asha-ravi-x7k2p",
		ShareURL:      "https://lovegallery.test/g/asha-ravi-x7k2p",
		WhatsAppShare: "https://wa.me/?text=hi",
		StoriesHTML:   []string{"<p><strong>coffee</strong></p>\n"},
		Theme:         domain.Theme{ID: "ocean-romance", Name: "Ocean Romance", Tier: domain.PlanTrueLove},
		MusicName:     "Romantic Piano",
	}
}

func TestGalleryHandlersSubmitOneShot(t *testing.T) {
	var captured services.SubmitCommand
	var photoBody string
	submissions := &stubSubmissionService{submitFn: func(_ context.Context, cmd services.SubmitCommand) (services.SubmitResult, error) {
		captured = cmd
		if asset, ok := cmd.Assets["blob:1"]; ok {
			rc, err := asset.Open()
			if err != nil {
				return services.SubmitResult{}, err
			}
			data, _ := io.ReadAll(rc)
			_ = rc.Close()
			photoBody = string(data)
		}
		return services.SubmitResult{ID: "g1", Slug: "asha-ravi-x7k2p", SharePath: "/g/asha-ravi-x7k2p", UploadedPhotos: 1, FallbackPhotos: 1}, nil
	}}
	router := galleryRouter(NewGalleryHandlers(nil, submissions, nil))

	metadata := `{"variant":"classic","plan":"true-love","yourName":"Asha","partnerName":"Ravi","loveMessage":"Forever",` +
		`"photos":[{"localRef":"blob:1","caption":"beach"},{"localRef":"blob:2"}],` +
		`"music":{"preset":"romantic","localRef":"blob:song"},"paymentRef":"pi_42"}`
	body, contentType := multipartBody(t, map[string][]string{"gallery": {metadata}},
		multipartFile{field: "blob:1", name: "a.jpg", contentType: "image/jpeg", body: "jpeg-bytes"},
		multipartFile{field: "blob:song", name: "song.mp3", contentType: "audio/mpeg", body: "ID3"},
	)
	req := httptest.NewRequest(http.MethodPost, "/galleries", body)
	req.Header.Set("Content-Type", contentType)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	draft := captured.Draft
	if draft.Plan != domain.PlanTrueLove || draft.YourName != "Asha" || draft.Theme != domain.DefaultTheme {
		t.Fatalf("unexpected draft %+v", draft)
	}
	if len(draft.Photos) != 2 || draft.Photos[0].LocalRef != "blob:1" || draft.Photos[0].Caption != "beach" || draft.Photos[0].ID == "" {
		t.Fatalf("unexpected photos %+v", draft.Photos)
	}
	if draft.Photos[0].ContentType != "image/jpeg" || draft.Photos[1].FileName != "" {
		t.Fatalf("unexpected photo metadata %+v", draft.Photos)
	}
	if draft.Music.CustomRef != "blob:song" || draft.Music.Preset != "romantic" || draft.Music.ContentType != "audio/mpeg" {
		t.Fatalf("unexpected music %+v", draft.Music)
	}
	if len(captured.Assets) != 2 || photoBody != "jpeg-bytes" {
		t.Fatalf("unexpected assets %d body %q", len(captured.Assets), photoBody)
	}
	if captured.OwnerUID != "user-1" || captured.PaymentRef != "pi_42" {
		t.Fatalf("unexpected owner or payment %q %q", captured.OwnerUID, captured.PaymentRef)
	}

	var resp submitResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SharePath != "/g/asha-ravi-x7k2p" || resp.FallbackPhotos != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestGalleryHandlersSubmitTruncatesPhotosToPlan(t *testing.T) {
	var captured services.SubmitCommand
	submissions := &stubSubmissionService{submitFn: func(_ context.Context, cmd services.SubmitCommand) (services.SubmitResult, error) {
		captured = cmd
		return services.SubmitResult{ID: "g1", SharePath: "/g/g1", UploadedPhotos: len(cmd.Draft.Photos)}, nil
	}}
	router := galleryRouter(NewGalleryHandlers(nil, submissions, nil))

	refs := make([]string, 0, 12)
	files := make([]multipartFile, 0, 12)
	for i := 1; i <= 12; i++ {
		ref := fmt.Sprintf("blob:%d", i)
		refs = append(refs, fmt.Sprintf(`{"localRef":%q}`, ref))
		files = append(files, multipartFile{field: ref, name: fmt.Sprintf("p%d.jpg", i), contentType: "image/jpeg", body: "jpeg"})
	}
	refs = append([]string{`{"localRef":"blob:notes"}`}, refs...)
	files = append(files, multipartFile{field: "blob:notes", name: "notes.txt", contentType: "text/plain", body: "hi"})
	metadata := `{"variant":"classic","plan":"free","yourName":"Asha","partnerName":"Ravi","loveMessage":"Forever",` +
		`"photos":[` + strings.Join(refs, ",") + `]}`
	body, contentType := multipartBody(t, map[string][]string{"gallery": {metadata}}, files...)
	req := httptest.NewRequest(http.MethodPost, "/galleries", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	photos := captured.Draft.Photos
	if len(photos) != 10 || photos[0].LocalRef != "blob:1" || photos[9].LocalRef != "blob:10" {
		t.Fatalf("expected the first 10 photos, got %d", len(photos))
	}
	if len(captured.Assets) != 10 {
		t.Fatalf("expected assets of dropped photos to be discarded, got %d", len(captured.Assets))
	}
	for _, ref := range []string{"blob:notes", "blob:11", "blob:12"} {
		if _, ok := captured.Assets[ref]; ok {
			t.Fatalf("dropped asset %s was submitted", ref)
		}
	}
	var resp submitResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.DroppedPhotos != 3 {
		t.Fatalf("expected the text part and 2 overflow photos dropped, got %d", resp.DroppedPhotos)
	}
}

func TestGalleryHandlersSubmitValidation(t *testing.T) {
	tests := []struct {
		name   string
		values map[string][]string
		files  []multipartFile
		status int
	}{
		{
			name:   "missing metadata",
			values: map[string][]string{"other": {"x"}},
			status: http.StatusBadRequest,
		},
		{
			name:   "unknown field",
			values: map[string][]string{"gallery": {`{"yourName":"A","colour":"red"}`}},
			status: http.StatusBadRequest,
		},
		{
			name:   "duplicate localRef",
			values: map[string][]string{"gallery": {`{"photos":[{"localRef":"a"},{"localRef":"a"}]}`}},
			status: http.StatusBadRequest,
		},
		{
			name:   "music part is not audio",
			values: map[string][]string{"gallery": {`{"music":{"localRef":"song"}}`}},
			files:  []multipartFile{{field: "song", name: "song.txt", contentType: "text/plain", body: "x"}},
			status: http.StatusUnsupportedMediaType,
		},
		{
			name:   "missing music part",
			values: map[string][]string{"gallery": {`{"music":{"localRef":"song"}}`}},
			status: http.StatusBadRequest,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			router := galleryRouter(NewGalleryHandlers(nil, &stubSubmissionService{}, nil))
			body, contentType := multipartBody(t, tc.values, tc.files...)
			req := httptest.NewRequest(http.MethodPost, "/galleries", body)
			req.Header.Set("Content-Type", contentType)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestGalleryHandlersSubmitUpgradeRequired(t *testing.T) {
	submissions := &stubSubmissionService{submitFn: func(context.Context, services.SubmitCommand) (services.SubmitResult, error) {
		return services.SubmitResult{}, fmt.Errorf("%w: %w", services.ErrSubmissionUpgradeRequired, &domain.UpgradeRequiredError{
			Feature:  domain.FeaturePhotos,
			Current:  domain.PlanFirstLove,
			Required: domain.PlanTrueLove,
		})
	}}
	router := galleryRouter(NewGalleryHandlers(nil, submissions, nil))

	body, contentType := multipartBody(t, map[string][]string{"gallery": {`{"yourName":"Asha"}`}})
	req := httptest.NewRequest(http.MethodPost, "/galleries", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", rr.Code)
	}
	var resp map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp["requiredPlan"] != "true-love" || resp["feature"] != "photos" {
		t.Fatalf("unexpected body %+v", resp)
	}
}

func TestGalleryHandlersGet(t *testing.T) {
	var requested string
	resolver := &stubGalleryResolver{resolveFn: func(_ context.Context, ref string) (services.GalleryView, error) {
		requested = ref
		return sampleGalleryView(), nil
	}}
	router := galleryRouter(NewGalleryHandlers(nil, nil, resolver))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/galleries/asha-ravi-x7k2p", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if requested != "asha-ravi-x7k2p" {
		t.Fatalf("unexpected ref %q", requested)
	}
	var body galleryPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.State != "ready" || body.Theme.RequiredPlan != "true-love" || body.Music.ID != "romantic" {
		t.Fatalf("unexpected payload %+v", body)
	}
	if len(body.Photos) != 2 || !body.Photos[0].Uploaded || body.Photos[1].Uploaded || body.Photos[1].URL != "blob:local-2" {
		t.Fatalf("unexpected photos %+v", body.Photos)
	}
	if len(body.Stories) != 1 || !strings.Contains(body.Stories[0].HTML, "<strong>coffee</strong>") {
		t.Fatalf("unexpected stories %+v", body.Stories)
	}
	if body.WhatsAppShare == "" || body.CreatedAt != "2025-02-14T09:00:00Z" {
		t.Fatalf("unexpected share fields %+v", body)
	}
}

func TestGalleryHandlersGetNotFound(t *testing.T) {
	resolver := &stubGalleryResolver{resolveFn: func(_ context.Context, ref string) (services.GalleryView, error) {
		return services.GalleryView{}, fmt.Errorf("%w: %s", services.ErrGalleryNotFound, ref)
	}}
	router := galleryRouter(NewGalleryHandlers(nil, nil, resolver))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/galleries/nobody", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	var body map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &body)
	if body["error"] != "gallery_not_found" || body["state"] != "not_found" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestGalleryHandlersListOwned(t *testing.T) {
	var captured services.ListOwnedCommand
	resolver := &stubGalleryResolver{listFn: func(_ context.Context, cmd services.ListOwnedCommand) (domain.CursorPage[services.GalleryView], error) {
		captured = cmd
		return domain.CursorPage[services.GalleryView]{
			Items:         []services.GalleryView{sampleGalleryView()},
			NextPageToken: "next",
		}, nil
	}}
	router := galleryRouter(NewGalleryHandlers(nil, nil, resolver))

	t.Run("requires identity", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/me/galleries", nil))
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rr.Code)
		}
	})

	t.Run("lists owned galleries", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me/galleries?pageSize=5&pageToken=abc", nil)
		req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		if captured.OwnerUID != "user-1" || captured.PageSize != 5 || captured.PageToken != "abc" {
			t.Fatalf("unexpected command %+v", captured)
		}
		var body galleryListResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(body.Items) != 1 || body.NextPageToken != "next" {
			t.Fatalf("unexpected body %+v", body)
		}
	})
}
