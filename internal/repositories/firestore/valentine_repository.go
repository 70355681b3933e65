package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/lovegallery/api/internal/domain"
	pfirestore "github.com/lovegallery/api/internal/platform/firestore"
	"github.com/lovegallery/api/internal/repositories"
)

const valentinesCollection = "valentines"

// ValentineRepository persists valentine invitations in Firestore.
type ValentineRepository struct {
	base *pfirestore.BaseRepository[valentineDocument]
}

// NewValentineRepository constructs a Firestore-backed valentine repository.
func NewValentineRepository(provider *pfirestore.Provider) (*ValentineRepository, error) {
	if provider == nil {
		return nil, errors.New("valentine repository requires firestore provider")
	}
	return &ValentineRepository{
		base: pfirestore.NewBaseRepository[valentineDocument](provider, valentinesCollection, nil, nil),
	}, nil
}

func (r *ValentineRepository) Insert(ctx context.Context, valentine domain.Valentine) error {
	id := strings.TrimSpace(valentine.ID)
	if id == "" {
		return errors.New("valentine repository: valentine id is required")
	}
	_, err := r.base.Create(ctx, id, valentineDocument{
		SenderName:   valentine.SenderName,
		PartnerName:  valentine.PartnerName,
		SenderPhone:  valentine.SenderPhone,
		PartnerPhone: valentine.PartnerPhone,
		Plan:         valentine.Plan.String(),
		CreatedAt:    valentine.CreatedAt.UTC(),
	})
	return err
}

func (r *ValentineRepository) FindByID(ctx context.Context, valentineID string) (domain.Valentine, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(valentineID))
	if err != nil {
		return domain.Valentine{}, err
	}
	plan, _ := domain.ParsePlan(doc.Data.Plan)
	return domain.Valentine{
		ID:           doc.ID,
		SenderName:   doc.Data.SenderName,
		PartnerName:  doc.Data.PartnerName,
		SenderPhone:  doc.Data.SenderPhone,
		PartnerPhone: doc.Data.PartnerPhone,
		Plan:         plan,
		CreatedAt:    doc.Data.CreatedAt.UTC(),
	}, nil
}

type valentineDocument struct {
	SenderName   string    `firestore:"senderName"`
	PartnerName  string    `firestore:"partnerName"`
	SenderPhone  string    `firestore:"senderPhone"`
	PartnerPhone string    `firestore:"partnerPhone"`
	Plan         string    `firestore:"plan"`
	CreatedAt    time.Time `firestore:"createdAt"`
}

var _ repositories.ValentineRepository = (*ValentineRepository)(nil)
