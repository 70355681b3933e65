package wizard

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/lovegallery/api/internal/domain"
)

const (
	maxNameLength    = 80
	maxMessageLength = 1000
	maxCaptionLength = 200
	maxStoryTitle    = 120
	maxStoryContent  = 2000
	maxStoryIcon     = 16
	maxPhoneLength   = 20
	// MaxStories caps the timeline length.
	MaxStories = 10
)

var (
	ErrInvalidStep                = errors.New("wizard: invalid step")
	ErrPhotoNotFound              = errors.New("wizard: photo not found")
	ErrUnknownMusic               = errors.New("wizard: unknown music preset")
	ErrTooManyStories             = errors.New("wizard: too many stories")
	ErrPlanDowngradeExceedsPhotos = errors.New("wizard: plan allowance below current photo count")
)

// DowngradePolicy decides what happens to photos above a lower plan's allowance.
type DowngradePolicy string

const (
	// DowngradeBlock rejects the plan change.
	DowngradeBlock DowngradePolicy = "block"
	// DowngradeTrim drops the most recently added photos.
	DowngradeTrim DowngradePolicy = "trim"
	// DowngradeAllow keeps every photo; submission then fails the allowance check.
	DowngradeAllow DowngradePolicy = "allow"
)

// ParseDowngradePolicy resolves a policy name, defaulting to DowngradeBlock.
func ParseDowngradePolicy(raw string) (DowngradePolicy, error) {
	switch p := DowngradePolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return DowngradeBlock, nil
	case DowngradeBlock, DowngradeTrim, DowngradeAllow:
		return p, nil
	default:
		return "", fmt.Errorf("wizard: unknown downgrade policy %q", raw)
	}
}

// Transition is the outcome of Advance.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionStepChanged
	TransitionSubmit
)

// Details are the free text fields of the details step.
type Details struct {
	YourName        string
	PartnerName     string
	LoveMessage     string
	SpecialDate     string
	YourWhatsapp    string
	PartnerWhatsapp string
}

// Option customises a Controller.
type Option func(*Controller)

// WithDowngradePolicy overrides the plan downgrade behaviour.
func WithDowngradePolicy(policy DowngradePolicy) Option {
	return func(c *Controller) {
		if policy != "" {
			c.policy = policy
		}
	}
}

// WithIDGenerator overrides photo id generation.
func WithIDGenerator(fn func() string) Option {
	return func(c *Controller) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// Controller drives one draft through its variant's step table.
// It is not safe for concurrent use; callers load, mutate and persist a draft per request.
type Controller struct {
	steps  []StepDefinition
	draft  domain.DraftGallery
	policy DowngradePolicy
	newID  func() string
}

// New wraps draft in a controller. Zero values are filled with defaults.
func New(draft domain.DraftGallery, opts ...Option) (*Controller, error) {
	variant, err := ParseVariant(draft.Variant)
	if err != nil {
		return nil, err
	}
	steps, err := Steps(variant)
	if err != nil {
		return nil, err
	}

	draft = draft.Clone()
	draft.Variant = string(variant)
	if !draft.Plan.Valid() {
		draft.Plan = domain.DefaultPlan
	}
	if strings.TrimSpace(draft.Theme) == "" {
		draft.Theme = domain.DefaultTheme
	}
	if !draft.Music.Custom() && strings.TrimSpace(draft.Music.Preset) == "" {
		draft.Music.Preset = domain.DefaultCatalog().DefaultMusic()
	}
	if draft.Step < 1 {
		draft.Step = 1
	}
	if draft.Step > len(steps) {
		draft.Step = len(steps)
	}

	c := &Controller{
		steps:  steps,
		draft:  draft,
		policy: DowngradeBlock,
		newID:  func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Stamp records a write at now and pushes the expiry to now+ttl. CreatedAt is
// only set once.
func (c *Controller) Stamp(now time.Time, ttl time.Duration) domain.DraftGallery {
	if c.draft.CreatedAt.IsZero() {
		c.draft.CreatedAt = now
	}
	c.draft.UpdatedAt = now
	c.draft.ExpiresAt = now.Add(ttl)
	return c.Draft()
}

// Draft returns a copy of the current state.
func (c *Controller) Draft() domain.DraftGallery {
	return c.draft.Clone()
}

// Steps returns the step table in use.
func (c *Controller) Steps() []StepDefinition {
	return append([]StepDefinition(nil), c.steps...)
}

// Step returns the 1-based current step index.
func (c *Controller) Step() int {
	return c.draft.Step
}

// Current returns the definition of the current step.
func (c *Controller) Current() StepDefinition {
	return c.steps[c.draft.Step-1]
}

// IsLast reports whether the current step is the final one.
func (c *Controller) IsLast() bool {
	return c.draft.Step == len(c.steps)
}

// CanAdvance reports whether step (1-based) currently validates.
func (c *Controller) CanAdvance(step int) bool {
	if step < 1 || step > len(c.steps) {
		return false
	}
	return CanAdvance(c.steps[step-1], c.draft)
}

// ValidateStep returns the validation error of step, if any.
func (c *Controller) ValidateStep(step int) error {
	if step < 1 || step > len(c.steps) {
		return ErrInvalidStep
	}
	def := c.steps[step-1]
	if def.Validate == nil {
		return nil
	}
	return def.Validate(c.draft)
}

// Advance moves to the next step. On the last step it returns TransitionSubmit
// after the whole draft passed validation and entitlement checks.
func (c *Controller) Advance() (Transition, error) {
	def := c.Current()
	if def.Validate != nil {
		if err := def.Validate(c.draft); err != nil {
			return TransitionNone, err
		}
	}
	if def.Entitlement != nil {
		if err := def.Entitlement(c.draft); err != nil {
			return TransitionNone, err
		}
	}
	if c.IsLast() {
		if err := c.ReadyToSubmit(); err != nil {
			return TransitionNone, err
		}
		return TransitionSubmit, nil
	}
	c.draft.Step++
	return TransitionStepChanged, nil
}

// Retreat moves one step back. It is a no-op on the first step.
func (c *Controller) Retreat() bool {
	if c.draft.Step <= 1 {
		return false
	}
	c.draft.Step--
	return true
}

// GoTo jumps to step when every step before it validates.
func (c *Controller) GoTo(step int) error {
	if step < 1 || step > len(c.steps) {
		return ErrInvalidStep
	}
	for i := 1; i < step; i++ {
		if err := c.ValidateStep(i); err != nil {
			return err
		}
	}
	c.draft.Step = step
	return nil
}

// ReadyToSubmit validates every step and the plan entitlements.
func (c *Controller) ReadyToSubmit() error {
	return ValidateForSubmit(c.steps, c.draft)
}

// ValidateForSubmit runs every validator of steps against draft followed by
// the entitlement checks.
func ValidateForSubmit(steps []StepDefinition, draft domain.DraftGallery) error {
	for _, def := range steps {
		if def.Validate == nil {
			continue
		}
		if err := def.Validate(draft); err != nil {
			return err
		}
	}
	return domain.CheckDraft(draft)
}

// SetDetails replaces the details step fields.
func (c *Controller) SetDetails(d Details) error {
	var bad []string
	checkLen := func(field, value string, limit int) string {
		value = strings.TrimSpace(value)
		if utf8.RuneCountInString(value) > limit {
			bad = append(bad, field)
		}
		return value
	}
	d.YourName = checkLen("yourName", d.YourName, maxNameLength)
	d.PartnerName = checkLen("partnerName", d.PartnerName, maxNameLength)
	d.LoveMessage = checkLen("loveMessage", d.LoveMessage, maxMessageLength)
	d.SpecialDate = checkLen("specialDate", d.SpecialDate, 32)
	d.YourWhatsapp = checkLen("yourWhatsapp", d.YourWhatsapp, maxPhoneLength)
	d.PartnerWhatsapp = checkLen("partnerWhatsapp", d.PartnerWhatsapp, maxPhoneLength)
	if len(bad) > 0 {
		return &ValidationError{Step: StepDetails, Fields: bad}
	}

	c.draft.YourName = d.YourName
	c.draft.PartnerName = d.PartnerName
	c.draft.LoveMessage = d.LoveMessage
	c.draft.SpecialDate = d.SpecialDate
	c.draft.YourWhatsapp = d.YourWhatsapp
	c.draft.PartnerWhatsapp = d.PartnerWhatsapp
	return nil
}

// Details returns the current details fields.
func (c *Controller) Details() Details {
	return Details{
		YourName:        c.draft.YourName,
		PartnerName:     c.draft.PartnerName,
		LoveMessage:     c.draft.LoveMessage,
		SpecialDate:     c.draft.SpecialDate,
		YourWhatsapp:    c.draft.YourWhatsapp,
		PartnerWhatsapp: c.draft.PartnerWhatsapp,
	}
}

// AddPhotos appends photos up to the plan's remaining slots. The rest of the
// batch is dropped without error; accepted photos are returned.
func (c *Controller) AddPhotos(photos []domain.Photo) (accepted []domain.Photo, dropped int) {
	remaining := domain.RemainingPhotoSlots(c.draft.Plan, len(c.draft.Photos))
	if len(photos) > remaining {
		dropped = len(photos) - remaining
		photos = photos[:remaining]
	}
	for _, photo := range photos {
		if strings.TrimSpace(photo.ID) == "" {
			photo.ID = c.newID()
		}
		photo.Caption = truncateRunes(strings.TrimSpace(photo.Caption), maxCaptionLength)
		c.draft.Photos = append(c.draft.Photos, photo)
		accepted = append(accepted, photo)
	}
	return accepted, dropped
}

// RemovePhoto deletes a photo by id and returns it.
func (c *Controller) RemovePhoto(id string) (domain.Photo, error) {
	for i, photo := range c.draft.Photos {
		if photo.ID == id {
			c.draft.Photos = append(c.draft.Photos[:i:i], c.draft.Photos[i+1:]...)
			return photo, nil
		}
	}
	return domain.Photo{}, ErrPhotoNotFound
}

// SetCaption updates a photo caption.
func (c *Controller) SetCaption(id, caption string) error {
	for i := range c.draft.Photos {
		if c.draft.Photos[i].ID == id {
			c.draft.Photos[i].Caption = truncateRunes(strings.TrimSpace(caption), maxCaptionLength)
			return nil
		}
	}
	return ErrPhotoNotFound
}

// SetPlan switches plan under the configured DowngradePolicy. Photos removed
// by DowngradeTrim are returned so their staged objects can be discarded.
func (c *Controller) SetPlan(plan domain.Plan) ([]domain.Photo, error) {
	if !plan.Valid() {
		return nil, domain.ErrUnknownPlan
	}
	limit := domain.MaxPhotosFor(plan)
	var trimmed []domain.Photo
	if over := len(c.draft.Photos) - limit; over > 0 {
		switch c.policy {
		case DowngradeTrim:
			trimmed = append(trimmed, c.draft.Photos[limit:]...)
			c.draft.Photos = c.draft.Photos[:limit:limit]
		case DowngradeAllow:
		default:
			return nil, fmt.Errorf("%w: %d photos, %s allows %d", ErrPlanDowngradeExceedsPhotos, len(c.draft.Photos), plan.Label(), limit)
		}
	}
	c.draft.Plan = plan
	return trimmed, nil
}

// SetTheme selects a catalogue theme. Locked themes are accepted and reported
// so the caller can badge them; they block submission until the plan covers them.
func (c *Controller) SetTheme(theme string) (locked bool, err error) {
	theme = strings.TrimSpace(theme)
	if _, ok := domain.DefaultCatalog().Theme(theme); !ok {
		return false, fmt.Errorf("%w: %q", domain.ErrUnknownTheme, theme)
	}
	c.draft.Theme = theme
	return domain.ThemeRequiresUpgrade(theme, c.draft.Plan), nil
}

// SetMusicPreset selects a bundled track and clears any custom upload.
func (c *Controller) SetMusicPreset(id string) (previous domain.MusicChoice, err error) {
	id = strings.TrimSpace(id)
	if _, ok := domain.DefaultCatalog().MusicPreset(id); !ok {
		return domain.MusicChoice{}, fmt.Errorf("%w: %q", ErrUnknownMusic, id)
	}
	previous = c.draft.Music
	c.draft.Music = domain.MusicChoice{Preset: id}
	return previous, nil
}

// SetCustomMusic stages an uploaded track. Plans without the feature get an
// *domain.UpgradeRequiredError immediately.
func (c *Controller) SetCustomMusic(choice domain.MusicChoice) (previous domain.MusicChoice, err error) {
	if !domain.AllowsCustomMusic(c.draft.Plan) {
		return domain.MusicChoice{}, &domain.UpgradeRequiredError{
			Feature:  domain.FeatureCustomMusic,
			Current:  c.draft.Plan,
			Required: domain.PlanTrueLove,
		}
	}
	if !choice.Custom() {
		return domain.MusicChoice{}, fmt.Errorf("%w: custom reference required", ErrUnknownMusic)
	}
	previous = c.draft.Music
	if choice.Preset == "" {
		choice.Preset = domain.DefaultCatalog().DefaultMusic()
	}
	c.draft.Music = choice
	return previous, nil
}

// SetStories replaces the timeline. Rows without a title and content are
// dropped.
func (c *Controller) SetStories(stories []domain.Story) error {
	if len(stories) > MaxStories {
		return fmt.Errorf("%w: %d > %d", ErrTooManyStories, len(stories), MaxStories)
	}
	out := make([]domain.Story, 0, len(stories))
	var bad []string
	for i, story := range stories {
		story.Title = strings.TrimSpace(story.Title)
		story.Content = strings.TrimSpace(story.Content)
		story.Icon = strings.TrimSpace(story.Icon)
		if story.Title == "" && story.Content == "" {
			continue
		}
		if utf8.RuneCountInString(story.Title) > maxStoryTitle {
			bad = append(bad, fmt.Sprintf("stories[%d].title", i))
		}
		if utf8.RuneCountInString(story.Content) > maxStoryContent {
			bad = append(bad, fmt.Sprintf("stories[%d].content", i))
		}
		if utf8.RuneCountInString(story.Icon) > maxStoryIcon {
			bad = append(bad, fmt.Sprintf("stories[%d].icon", i))
		}
		out = append(out, story)
	}
	if len(bad) > 0 {
		return &ValidationError{Step: StepStory, Fields: bad}
	}
	c.draft.Stories = out
	return nil
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
