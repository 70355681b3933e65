package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownPlan is returned when a plan code cannot be parsed.
	ErrUnknownPlan = errors.New("entitlement: unknown plan")
	// ErrUnknownTheme is returned when a theme id is not in the catalogue.
	ErrUnknownTheme = errors.New("entitlement: unknown theme")
	// ErrUpgradeRequired matches every *UpgradeRequiredError via errors.Is.
	ErrUpgradeRequired = errors.New("entitlement: upgrade required")
)

// Feature names a plan-gated capability.
type Feature string

const (
	FeatureTheme       Feature = "theme"
	FeaturePhotos      Feature = "photos"
	FeatureCustomMusic Feature = "custom_music"
)

// UpgradeRequiredError reports that the active plan does not cover a selection.
type UpgradeRequiredError struct {
	Feature  Feature
	Current  Plan
	Required Plan
	Theme    string
}

func (e *UpgradeRequiredError) Error() string {
	switch e.Feature {
	case FeatureTheme:
		return fmt.Sprintf("entitlement: theme %q requires %s (current plan %s)", e.Theme, e.Required.Label(), e.Current.Label())
	case FeaturePhotos:
		return fmt.Sprintf("entitlement: photo count requires %s (current plan %s)", e.Required.Label(), e.Current.Label())
	default:
		return fmt.Sprintf("entitlement: %s requires %s (current plan %s)", e.Feature, e.Required.Label(), e.Current.Label())
	}
}

// Is lets callers match with errors.Is(err, ErrUpgradeRequired).
func (e *UpgradeRequiredError) Is(target error) bool {
	return target == ErrUpgradeRequired
}

// MaxPhotosFor returns the photo allowance of plan.
func MaxPhotosFor(plan Plan) int {
	return planTable[plan.normalise()].maxPhotos
}

// RemainingPhotoSlots returns how many more photos fit under plan.
func RemainingPhotoSlots(plan Plan, current int) int {
	remaining := MaxPhotosFor(plan) - current
	if remaining < 0 {
		return 0
	}
	return remaining
}

// AllowsCustomMusic reports whether plan may upload its own track.
func AllowsCustomMusic(plan Plan) bool {
	return planTable[plan.normalise()].customMusic
}

// ThemePackageOf returns the tier that unlocks theme. Unknown themes report the
// highest tier so they are never treated as unlocked.
func ThemePackageOf(theme string) Plan {
	if t, ok := DefaultCatalog().Theme(theme); ok {
		return t.Tier
	}
	return PlanForeverLove
}

// RequiredPlanFor returns the lowest plan that unlocks theme.
func RequiredPlanFor(theme string) Plan {
	return ThemePackageOf(theme)
}

// ThemeRequiresUpgrade is true iff the theme's package is above plan.
func ThemeRequiresUpgrade(theme string, plan Plan) bool {
	return !plan.AtLeast(ThemePackageOf(theme))
}

// LowestPlanForPhotos returns the smallest plan whose allowance covers count.
func LowestPlanForPhotos(count int) Plan {
	for _, plan := range Plans() {
		if MaxPhotosFor(plan) >= count {
			return plan
		}
	}
	return PlanForeverLove
}

// CheckDraft returns the first entitlement the draft violates, or nil.
func CheckDraft(draft DraftGallery) error {
	if ThemeRequiresUpgrade(draft.Theme, draft.Plan) {
		return &UpgradeRequiredError{
			Feature:  FeatureTheme,
			Current:  draft.Plan,
			Required: RequiredPlanFor(draft.Theme),
			Theme:    draft.Theme,
		}
	}
	if len(draft.Photos) > MaxPhotosFor(draft.Plan) {
		return &UpgradeRequiredError{
			Feature:  FeaturePhotos,
			Current:  draft.Plan,
			Required: LowestPlanForPhotos(len(draft.Photos)),
		}
	}
	if draft.Music.Custom() && !AllowsCustomMusic(draft.Plan) {
		return &UpgradeRequiredError{
			Feature:  FeatureCustomMusic,
			Current:  draft.Plan,
			Required: PlanTrueLove,
		}
	}
	return nil
}
