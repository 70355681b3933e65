package domain

import (
	"fmt"
	"strings"
)

// Plan is the package tier that gates photo count, theme access and custom music.
// Plans are totally ordered; a higher value unlocks everything a lower value does.
type Plan int

const (
	// PlanFirstLove is the entry tier ("free" on the wire).
	PlanFirstLove Plan = iota
	// PlanTrueLove unlocks more photos, the wider theme set and custom music.
	PlanTrueLove
	// PlanForeverLove unlocks every theme and the largest photo allowance.
	PlanForeverLove
)

// DefaultPlan is assigned to drafts created without an explicit plan.
const DefaultPlan = PlanFirstLove

type planEntitlement struct {
	code        string
	label       string
	maxPhotos   int
	customMusic bool
	pricePaise  int64
}

var planTable = [...]planEntitlement{
	PlanFirstLove:   {code: "free", label: "First Love", maxPhotos: 10, customMusic: false, pricePaise: 0},
	PlanTrueLove:    {code: "true-love", label: "True Love", maxPhotos: 15, customMusic: true, pricePaise: 24900},
	PlanForeverLove: {code: "forever-love", label: "Forever Love", maxPhotos: 20, customMusic: true, pricePaise: 39900},
}

// Plans returns every plan in ascending tier order.
func Plans() []Plan {
	return []Plan{PlanFirstLove, PlanTrueLove, PlanForeverLove}
}

// ParsePlan resolves a wire code or legacy alias into a Plan.
func ParsePlan(raw string) (Plan, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, "_", "-")
	key = strings.ReplaceAll(key, " ", "-")
	switch key {
	case "free", "first-love", "firstlove":
		return PlanFirstLove, nil
	case "true-love", "truelove", "premium":
		return PlanTrueLove, nil
	case "forever-love", "foreverlove", "ultimate":
		return PlanForeverLove, nil
	}
	return PlanFirstLove, fmt.Errorf("%w: %q", ErrUnknownPlan, raw)
}

// Valid reports whether p is one of the defined tiers.
func (p Plan) Valid() bool {
	return p >= PlanFirstLove && int(p) < len(planTable)
}

// AtLeast is the single tier comparison every entitlement check goes through.
func (p Plan) AtLeast(required Plan) bool {
	return p.normalise() >= required.normalise()
}

// String returns the wire code of the plan.
func (p Plan) String() string {
	return planTable[p.normalise()].code
}

// Label returns the customer facing plan name.
func (p Plan) Label() string {
	return planTable[p.normalise()].label
}

// PricePaise returns the one-off price of the plan in paise.
func (p Plan) PricePaise() int64 {
	return planTable[p.normalise()].pricePaise
}

// Paid reports whether the plan requires a payment.
func (p Plan) Paid() bool {
	return p.PricePaise() > 0
}

// MarshalText implements encoding.TextMarshaler.
func (p Plan) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Plan) UnmarshalText(text []byte) error {
	parsed, err := ParsePlan(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// unknown tiers collapse to the lowest one so nothing is unlocked by accident.
func (p Plan) normalise() Plan {
	if !p.Valid() {
		return PlanFirstLove
	}
	return p
}
