package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/lovegallery/api/internal/domain"
	"github.com/lovegallery/api/internal/repositories"
	"github.com/lovegallery/api/internal/repositories/memory"
)

type failingValentineRepository struct {
	err error
}

func (f failingValentineRepository) Insert(context.Context, domain.Valentine) error { return f.err }

func (f failingValentineRepository) FindByID(context.Context, string) (domain.Valentine, error) {
	return domain.Valentine{}, f.err
}

func newTestValentineService(t *testing.T, repo repositories.ValentineRepository) ValentineService {
	t.Helper()
	svc, err := NewValentineService(ValentineServiceDeps{
		Valentines:    repo,
		PublicBaseURL: "https://lovegallery.test",
		Clock:         func() time.Time { return time.Date(2025, 2, 13, 20, 0, 0, 0, time.UTC) },
		IDGenerator:   func() string { return "val1" },
	})
	if err != nil {
		t.Fatalf("NewValentineService: %v", err)
	}
	return svc
}

func TestValentineServiceCreateBuildsInvite(t *testing.T) {
	repo := memory.NewValentineRepository()
	svc := newTestValentineService(t, repo)

	invite, err := svc.Create(context.Background(), CreateValentineCommand{
		SenderName:   " Asha ",
		PartnerName:  "Ravi",
		SenderPhone:  "+91 98765-43210",
		PartnerPhone: "(91) 99999 00000",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if invite.Path != "/valentine/val1" || invite.URL != "https://lovegallery.test/valentine/val1" {
		t.Fatalf("unexpected invite link %+v", invite)
	}
	want := "https://wa.me/919999900000?text=I%20have%20a%20special%20surprise%20for%20you!%20%F0%9F%92%96%0A%0AOpen%20this%20link%3A%20https%3A%2F%2Flovegallery.test%2Fvalentine%2Fval1"
	if invite.SendLink != want {
		t.Fatalf("unexpected send link\n got %s\nwant %s", invite.SendLink, want)
	}
	stored, err := repo.FindByID(context.Background(), "val1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if stored.SenderName != "Asha" || stored.SenderPhone != "919876543210" || stored.Plan != domain.PlanFirstLove {
		t.Fatalf("unexpected stored valentine %+v", stored)
	}
}

func TestValentineServiceCreateValidates(t *testing.T) {
	svc := newTestValentineService(t, memory.NewValentineRepository())
	bad := domain.Plan(9)
	cases := []CreateValentineCommand{
		{PartnerName: "Ravi"},
		{SenderName: "Asha"},
		{SenderName: "Asha", PartnerName: "Ravi", SenderPhone: "1234567890123456"},
		{SenderName: "Asha", PartnerName: "Ravi", Plan: &bad},
	}
	for i, cmd := range cases {
		if _, err := svc.Create(context.Background(), cmd); !errors.Is(err, ErrValentineInvalidInput) {
			t.Fatalf("case %d: expected invalid input, got %v", i, err)
		}
	}
}

func TestValentineServiceViewStoredInvite(t *testing.T) {
	repo := memory.NewValentineRepository()
	if err := repo.Insert(context.Background(), domain.Valentine{ID: "val1", SenderName: "Asha", PartnerName: "Ravi", SenderPhone: "919876543210"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := newTestValentineService(t, repo)

	view, err := svc.View(context.Background(), "val1", "5550000")
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if !view.Found || view.PartnerName != "Ravi" || view.SenderPhone != "919876543210" {
		t.Fatalf("unexpected view %+v", view)
	}
	if view.YesLink != "https://wa.me/919876543210?text=Yes!%20I%20will%20be%20your%20valentine!%20%F0%9F%92%96" {
		t.Fatalf("unexpected yes link %s", view.YesLink)
	}
}

func TestValentineServiceViewFallsBackToLegacyLink(t *testing.T) {
	svc := newTestValentineService(t, memory.NewValentineRepository())

	view, err := svc.View(context.Background(), "Priya%20Sharma", "+91 90000 11111")
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if view.Found || view.PartnerName != "Priya Sharma" || view.SenderPhone != "919000011111" {
		t.Fatalf("unexpected fallback view %+v", view)
	}
}

func TestValentineServiceViewUnavailable(t *testing.T) {
	svc := newTestValentineService(t, failingValentineRepository{err: repositories.Unavailable("valentines.find_by_id", errors.New("timeout"))})
	if _, err := svc.View(context.Background(), "val1", ""); !errors.Is(err, ErrValentineUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if _, err := svc.Create(context.Background(), CreateValentineCommand{SenderName: "A", PartnerName: "B"}); !errors.Is(err, ErrValentineUnavailable) {
		t.Fatalf("expected unavailable on insert, got %v", err)
	}
}
