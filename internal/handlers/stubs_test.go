package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"testing"

	domain "github.com/lovegallery/api/internal/domain"
	"github.com/lovegallery/api/internal/services"
)

var errNotStubbed = errors.New("not stubbed")

type stubDraftService struct {
	createFn   func(context.Context, services.CreateDraftCommand) (services.DraftView, error)
	getFn      func(context.Context, string) (services.DraftView, error)
	updateFn   func(context.Context, services.UpdateDraftCommand) (services.DraftUpdateResult, error)
	advanceFn  func(context.Context, string) (services.AdvanceResult, error)
	retreatFn  func(context.Context, string) (services.DraftView, error)
	addFn      func(context.Context, services.AddPhotosCommand) (services.AddPhotosResult, error)
	removeFn   func(context.Context, string, string) (services.DraftView, error)
	musicFn    func(context.Context, services.SetCustomMusicCommand) (services.DraftView, error)
	discardFn  func(context.Context, string) error
	discardIDs []string
}

func (s *stubDraftService) Create(ctx context.Context, cmd services.CreateDraftCommand) (services.DraftView, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.DraftView{}, errNotStubbed
}

func (s *stubDraftService) Get(ctx context.Context, id string) (services.DraftView, error) {
	if s.getFn != nil {
		return s.getFn(ctx, id)
	}
	return services.DraftView{}, errNotStubbed
}

func (s *stubDraftService) Update(ctx context.Context, cmd services.UpdateDraftCommand) (services.DraftUpdateResult, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.DraftUpdateResult{}, errNotStubbed
}

func (s *stubDraftService) Advance(ctx context.Context, id string) (services.AdvanceResult, error) {
	if s.advanceFn != nil {
		return s.advanceFn(ctx, id)
	}
	return services.AdvanceResult{}, errNotStubbed
}

func (s *stubDraftService) Retreat(ctx context.Context, id string) (services.DraftView, error) {
	if s.retreatFn != nil {
		return s.retreatFn(ctx, id)
	}
	return services.DraftView{}, errNotStubbed
}

func (s *stubDraftService) AddPhotos(ctx context.Context, cmd services.AddPhotosCommand) (services.AddPhotosResult, error) {
	if s.addFn != nil {
		return s.addFn(ctx, cmd)
	}
	return services.AddPhotosResult{}, errNotStubbed
}

func (s *stubDraftService) RemovePhoto(ctx context.Context, draftID, photoID string) (services.DraftView, error) {
	if s.removeFn != nil {
		return s.removeFn(ctx, draftID, photoID)
	}
	return services.DraftView{}, errNotStubbed
}

func (s *stubDraftService) SetCustomMusic(ctx context.Context, cmd services.SetCustomMusicCommand) (services.DraftView, error) {
	if s.musicFn != nil {
		return s.musicFn(ctx, cmd)
	}
	return services.DraftView{}, errNotStubbed
}

func (s *stubDraftService) Load(context.Context, string) (domain.DraftGallery, error) {
	return domain.DraftGallery{}, errNotStubbed
}

func (s *stubDraftService) Discard(ctx context.Context, id string) error {
	s.discardIDs = append(s.discardIDs, id)
	if s.discardFn != nil {
		return s.discardFn(ctx, id)
	}
	return nil
}

type stubSubmissionService struct {
	submitFn      func(context.Context, services.SubmitCommand) (services.SubmitResult, error)
	submitDraftFn func(context.Context, services.SubmitDraftCommand) (services.SubmitResult, error)
}

func (s *stubSubmissionService) Submit(ctx context.Context, cmd services.SubmitCommand) (services.SubmitResult, error) {
	if s.submitFn != nil {
		return s.submitFn(ctx, cmd)
	}
	return services.SubmitResult{}, errNotStubbed
}

func (s *stubSubmissionService) SubmitDraft(ctx context.Context, cmd services.SubmitDraftCommand) (services.SubmitResult, error) {
	if s.submitDraftFn != nil {
		return s.submitDraftFn(ctx, cmd)
	}
	return services.SubmitResult{}, errNotStubbed
}

type stubGalleryResolver struct {
	resolveFn func(context.Context, string) (services.GalleryView, error)
	listFn    func(context.Context, services.ListOwnedCommand) (domain.CursorPage[services.GalleryView], error)
}

func (s *stubGalleryResolver) Resolve(ctx context.Context, ref string) (services.GalleryView, error) {
	if s.resolveFn != nil {
		return s.resolveFn(ctx, ref)
	}
	return services.GalleryView{}, errNotStubbed
}

func (s *stubGalleryResolver) ListOwned(ctx context.Context, cmd services.ListOwnedCommand) (domain.CursorPage[services.GalleryView], error) {
	if s.listFn != nil {
		return s.listFn(ctx, cmd)
	}
	return domain.CursorPage[services.GalleryView]{}, errNotStubbed
}

var (
	_ services.DraftService      = (*stubDraftService)(nil)
	_ services.SubmissionService = (*stubSubmissionService)(nil)
	_ services.GalleryResolver   = (*stubGalleryResolver)(nil)
)

type multipartFile struct {
	field       string
	name        string
	contentType string
	body        string
}

// multipartBody builds a form with plain values followed by file parts.
func multipartBody(t *testing.T, values map[string][]string, files ...multipartFile) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for field, list := range values {
		for _, v := range list {
			if err := mw.WriteField(field, v); err != nil {
				t.Fatalf("write field: %v", err)
			}
		}
	}
	for _, f := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, f.name))
		header.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(header)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := io.WriteString(part, f.body); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}
