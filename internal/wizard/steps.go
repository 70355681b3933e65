package wizard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lovegallery/api/internal/domain"
)

// StepKind identifies what a wizard step collects.
type StepKind string

const (
	StepPlan    StepKind = "plan"
	StepDetails StepKind = "details"
	StepPhotos  StepKind = "photos"
	StepStory   StepKind = "story"
	StepDesign  StepKind = "design"
)

// Variant selects one of the configured step tables.
type Variant string

const (
	// VariantClassic collects details, photos, then theme and music.
	VariantClassic Variant = "classic"
	// VariantStory adds a timeline step before the design step.
	VariantStory Variant = "story"
	// VariantComplete starts with plan selection and includes the timeline step.
	VariantComplete Variant = "complete"
)

// DefaultVariant is used when a draft does not name one.
const DefaultVariant = VariantClassic

var (
	// ErrStepInvalid matches every *ValidationError.
	ErrStepInvalid = errors.New("wizard: step invalid")
	// ErrUnknownVariant is returned for unregistered variants.
	ErrUnknownVariant = errors.New("wizard: unknown variant")
)

// ValidationError lists the fields blocking a step.
type ValidationError struct {
	Step   StepKind
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("wizard: step %s invalid: %s", e.Step, strings.Join(e.Fields, ", "))
}

// Is lets callers match with errors.Is(err, ErrStepInvalid).
func (e *ValidationError) Is(target error) bool {
	return target == ErrStepInvalid
}

// StepDefinition is one row of a step table. Validate gates advancement and
// Entitlement, when set, is checked as the step is left.
type StepDefinition struct {
	Kind        StepKind
	Title       string
	Validate    func(domain.DraftGallery) error
	Entitlement func(domain.DraftGallery) error
}

var stepLibrary = map[StepKind]StepDefinition{
	StepPlan: {
		Kind:        StepPlan,
		Title:       "Choose Your Package",
		Validate:    validatePlan,
		Entitlement: photoAllowance,
	},
	StepDetails: {
		Kind:     StepDetails,
		Title:    "Your Love Story",
		Validate: validateDetails,
	},
	StepPhotos: {
		Kind:        StepPhotos,
		Title:       "Add Your Photos",
		Validate:    validatePhotos,
		Entitlement: photoAllowance,
	},
	StepStory: {
		Kind:  StepStory,
		Title: "Your Moments",
	},
	StepDesign: {
		Kind:        StepDesign,
		Title:       "Theme & Music",
		Validate:    validateDesign,
		Entitlement: domain.CheckDraft,
	},
}

var variants = map[Variant][]StepKind{
	VariantClassic:  {StepDetails, StepPhotos, StepDesign},
	VariantStory:    {StepDetails, StepPhotos, StepStory, StepDesign},
	VariantComplete: {StepPlan, StepDetails, StepPhotos, StepStory, StepDesign},
}

// ParseVariant resolves a variant name, defaulting blank input.
func ParseVariant(raw string) (Variant, error) {
	v := Variant(strings.ToLower(strings.TrimSpace(raw)))
	if v == "" {
		return DefaultVariant, nil
	}
	if _, ok := variants[v]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownVariant, raw)
	}
	return v, nil
}

// Steps returns the step table of a variant.
func Steps(variant Variant) ([]StepDefinition, error) {
	kinds, ok := variants[variant]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, variant)
	}
	out := make([]StepDefinition, len(kinds))
	for i, kind := range kinds {
		out[i] = stepLibrary[kind]
	}
	return out, nil
}

// CanAdvance reports whether def's validator accepts draft.
func CanAdvance(def StepDefinition, draft domain.DraftGallery) bool {
	if def.Validate == nil {
		return true
	}
	return def.Validate(draft) == nil
}

func validatePlan(draft domain.DraftGallery) error {
	if !draft.Plan.Valid() {
		return &ValidationError{Step: StepPlan, Fields: []string{"plan"}}
	}
	return nil
}

func validateDetails(draft domain.DraftGallery) error {
	var missing []string
	if strings.TrimSpace(draft.YourName) == "" {
		missing = append(missing, "yourName")
	}
	if strings.TrimSpace(draft.PartnerName) == "" {
		missing = append(missing, "partnerName")
	}
	if strings.TrimSpace(draft.LoveMessage) == "" {
		missing = append(missing, "loveMessage")
	}
	if len(missing) > 0 {
		return &ValidationError{Step: StepDetails, Fields: missing}
	}
	return nil
}

func validatePhotos(draft domain.DraftGallery) error {
	if len(draft.Photos) == 0 {
		return &ValidationError{Step: StepPhotos, Fields: []string{"photos"}}
	}
	return nil
}

func validateDesign(draft domain.DraftGallery) error {
	var bad []string
	if _, ok := domain.DefaultCatalog().Theme(draft.Theme); !ok {
		bad = append(bad, "theme")
	}
	if !draft.Music.Custom() {
		if _, ok := domain.DefaultCatalog().MusicPreset(draft.Music.Preset); !ok {
			bad = append(bad, "music")
		}
	}
	if len(bad) > 0 {
		return &ValidationError{Step: StepDesign, Fields: bad}
	}
	return nil
}

func photoAllowance(draft domain.DraftGallery) error {
	if len(draft.Photos) > domain.MaxPhotosFor(draft.Plan) {
		return &domain.UpgradeRequiredError{
			Feature:  domain.FeaturePhotos,
			Current:  draft.Plan,
			Required: domain.LowestPlanForPhotos(len(draft.Photos)),
		}
	}
	return nil
}
