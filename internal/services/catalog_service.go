package services

import (
	"context"

	domain "github.com/lovegallery/api/internal/domain"
)

// CatalogServiceDeps bundles constructor inputs for the catalog service.
type CatalogServiceDeps struct {
	Catalog *domain.Catalog
}

type catalogService struct {
	catalog *domain.Catalog
}

var _ CatalogService = (*catalogService)(nil)

// NewCatalogService serves the embedded catalogue unless another is supplied.
func NewCatalogService(deps CatalogServiceDeps) CatalogService {
	catalog := deps.Catalog
	if catalog == nil {
		catalog = domain.DefaultCatalog()
	}
	return &catalogService{catalog: catalog}
}

func (s *catalogService) Plans(context.Context) []domain.PlanOffer {
	return s.catalog.Offers()
}

// Themes lists every theme with its lock state for plan. Locked themes stay
// visible so the wizard can show them with an upgrade badge.
func (s *catalogService) Themes(_ context.Context, plan domain.Plan) []ThemeListing {
	themes := s.catalog.Themes()
	out := make([]ThemeListing, 0, len(themes))
	for _, theme := range themes {
		out = append(out, ThemeListing{
			Theme:        theme,
			Locked:       !plan.AtLeast(theme.Tier),
			RequiredPlan: theme.Tier,
		})
	}
	return out
}

func (s *catalogService) Music(context.Context) []domain.MusicPreset {
	return s.catalog.MusicPresets()
}
