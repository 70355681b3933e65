package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	domain "github.com/lovegallery/api/internal/domain"
	"github.com/lovegallery/api/internal/platform/textutil"
	"github.com/lovegallery/api/internal/repositories"
)

const (
	valentineInviteText = "I have a special surprise for you! 💖\n\nOpen this link: "
	valentineYesText    = "Yes! I will be your valentine! 💖"
	maxValentineName    = 80
	maxPhoneDigits      = 15
)

var (
	ErrValentineInvalidInput = errors.New("valentine: invalid input")
	ErrValentineUnavailable  = errors.New("valentine: unavailable")
)

type ValentineServiceDeps struct {
	Valentines    repositories.ValentineRepository
	PublicBaseURL string
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        EventLogger
}

type valentineService struct {
	valentines repositories.ValentineRepository
	baseURL    string
	now        func() time.Time
	newID      func() string
	logger     EventLogger
}

var _ ValentineService = (*valentineService)(nil)

func NewValentineService(deps ValentineServiceDeps) (ValentineService, error) {
	if deps.Valentines == nil {
		return nil, errors.New("valentine service: valentine repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &valentineService{
		valentines: deps.Valentines,
		baseURL:    strings.TrimRight(strings.TrimSpace(deps.PublicBaseURL), "/"),
		now: func() time.Time {
			return clock().UTC()
		},
		newID:  newID,
		logger: logger,
	}, nil
}

func (s *valentineService) Create(ctx context.Context, cmd CreateValentineCommand) (ValentineInvite, error) {
	valentine := domain.Valentine{
		ID:           s.newID(),
		SenderName:   strings.TrimSpace(cmd.SenderName),
		PartnerName:  strings.TrimSpace(cmd.PartnerName),
		SenderPhone:  textutil.DigitsOnly(cmd.SenderPhone),
		PartnerPhone: textutil.DigitsOnly(cmd.PartnerPhone),
		Plan:         domain.DefaultPlan,
		CreatedAt:    s.now(),
	}
	if cmd.Plan != nil {
		valentine.Plan = *cmd.Plan
	}

	var bad []string
	if valentine.SenderName == "" || utf8.RuneCountInString(valentine.SenderName) > maxValentineName {
		bad = append(bad, "senderName")
	}
	if valentine.PartnerName == "" || utf8.RuneCountInString(valentine.PartnerName) > maxValentineName {
		bad = append(bad, "partnerName")
	}
	if len(valentine.SenderPhone) > maxPhoneDigits {
		bad = append(bad, "senderPhone")
	}
	if len(valentine.PartnerPhone) > maxPhoneDigits {
		bad = append(bad, "partnerPhone")
	}
	if !valentine.Plan.Valid() {
		bad = append(bad, "plan")
	}
	if len(bad) > 0 {
		return ValentineInvite{}, fmt.Errorf("%w: %s", ErrValentineInvalidInput, strings.Join(bad, ", "))
	}

	if err := s.valentines.Insert(ctx, valentine); err != nil {
		return ValentineInvite{}, fmt.Errorf("%w: %v", ErrValentineUnavailable, err)
	}

	path := "/valentine/" + valentine.ID
	link := s.baseURL + path
	s.logger(ctx, "valentine.created", map[string]any{"valentineId": valentine.ID, "plan": valentine.Plan.String()})
	return ValentineInvite{
		Valentine: valentine,
		Path:      path,
		URL:       link,
		SendLink:  "https://wa.me/" + valentine.PartnerPhone + "?text=" + encodeURIComponent(valentineInviteText+link),
	}, nil
}

// View never reports not found: links shared before invitations were stored
// carry the partner name as the id and the sender phone as a query parameter.
func (s *valentineService) View(ctx context.Context, id, fallbackPhone string) (ValentineView, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return ValentineView{}, fmt.Errorf("%w: id is required", ErrValentineInvalidInput)
	}

	valentine, err := s.valentines.FindByID(ctx, id)
	switch {
	case err == nil:
		return ValentineView{
			ID:          valentine.ID,
			PartnerName: valentine.PartnerName,
			SenderName:  valentine.SenderName,
			SenderPhone: valentine.SenderPhone,
			YesLink:     yesLink(valentine.SenderPhone),
			Found:       true,
		}, nil
	case isRepoNotFound(err):
		name, decodeErr := url.PathUnescape(id)
		if decodeErr != nil {
			name = id
		}
		phone := textutil.DigitsOnly(fallbackPhone)
		return ValentineView{
			ID:          id,
			PartnerName: textutil.Truncate(strings.TrimSpace(name), maxValentineName),
			SenderPhone: phone,
			YesLink:     yesLink(phone),
		}, nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ValentineView{}, err
	default:
		return ValentineView{}, fmt.Errorf("%w: %v", ErrValentineUnavailable, err)
	}
}

func yesLink(phone string) string {
	return "https://wa.me/" + phone + "?text=" + encodeURIComponent(valentineYesText)
}
