package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	domain "github.com/lovegallery/api/internal/domain"
	"github.com/lovegallery/api/internal/repositories"
)

// ValentineRepository persists valentine invitations in the valentines table.
type ValentineRepository struct {
	db *sql.DB
}

// NewValentineRepository constructs a Postgres-backed valentine repository.
func NewValentineRepository(db *sql.DB) (*ValentineRepository, error) {
	if db == nil {
		return nil, errors.New("valentine repository requires postgres db")
	}
	return &ValentineRepository{db: db}, nil
}

func (r *ValentineRepository) Insert(ctx context.Context, valentine domain.Valentine) error {
	if strings.TrimSpace(valentine.ID) == "" {
		return errors.New("valentine repository: valentine id is required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO valentines (id, sender_name, partner_name, sender_phone, partner_phone, plan, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		valentine.ID,
		valentine.SenderName,
		valentine.PartnerName,
		valentine.SenderPhone,
		valentine.PartnerPhone,
		valentine.Plan.String(),
		valentine.CreatedAt.UTC(),
	)
	return wrapError("valentines.insert", "valentine", err)
}

func (r *ValentineRepository) FindByID(ctx context.Context, valentineID string) (domain.Valentine, error) {
	var (
		v         domain.Valentine
		plan      string
		createdAt time.Time
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, sender_name, partner_name, sender_phone, partner_phone, plan, created_at
		FROM valentines WHERE id = $1`, strings.TrimSpace(valentineID),
	).Scan(&v.ID, &v.SenderName, &v.PartnerName, &v.SenderPhone, &v.PartnerPhone, &plan, &createdAt)
	if err != nil {
		return domain.Valentine{}, wrapError("valentines.find_by_id", "valentine", err)
	}
	v.Plan, _ = domain.ParsePlan(plan)
	v.CreatedAt = createdAt.UTC()
	return v, nil
}

var _ repositories.ValentineRepository = (*ValentineRepository)(nil)
