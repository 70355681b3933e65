package domain

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// DefaultTheme is selected for new drafts.
const DefaultTheme = "rose-red"

// Theme describes a visual theme and the package tier that unlocks it.
type Theme struct {
	ID     string
	Name   string
	Colors string
	Tier   Plan
}

// MusicPreset is a bundled background track.
type MusicPreset struct {
	ID      string
	Name    string
	Emoji   string
	Default bool
}

// PlanOffer is the storefront view of a plan.
type PlanOffer struct {
	Plan           Plan
	Label          string
	PricePaise     int64
	ListPricePaise int64
	MaxPhotos      int
	CustomMusic    bool
	Popular        bool
	Features       []string
}

// Catalog holds the immutable theme, music and plan listings.
type Catalog struct {
	themes     []Theme
	themeIndex map[string]Theme
	music      []MusicPreset
	musicIndex map[string]MusicPreset
	offers     []PlanOffer
	defaultMsc string
}

type catalogFile struct {
	Plans []struct {
		Plan           Plan     `yaml:"plan"`
		ListPricePaise int64    `yaml:"listPricePaise"`
		Popular        bool     `yaml:"popular"`
		Features       []string `yaml:"features"`
	} `yaml:"plans"`
	Themes []struct {
		ID     string `yaml:"id"`
		Name   string `yaml:"name"`
		Tier   Plan   `yaml:"tier"`
		Colors string `yaml:"colors"`
	} `yaml:"themes"`
	Music []struct {
		ID      string `yaml:"id"`
		Name    string `yaml:"name"`
		Emoji   string `yaml:"emoji"`
		Default bool   `yaml:"default"`
	} `yaml:"music"`
}

var (
	defaultCatalogOnce sync.Once
	defaultCatalog     *Catalog
)

// DefaultCatalog returns the catalogue embedded in the binary. It is decoded
// on first use; package init must not depend on Plan.UnmarshalText.
func DefaultCatalog() *Catalog {
	defaultCatalogOnce.Do(func() {
		defaultCatalog = mustParseCatalog(catalogYAML)
	})
	return defaultCatalog
}

// ParseCatalog decodes a YAML catalogue document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}

	c := &Catalog{
		themeIndex: make(map[string]Theme, len(file.Themes)),
		musicIndex: make(map[string]MusicPreset, len(file.Music)),
	}
	for _, raw := range file.Themes {
		id := strings.TrimSpace(raw.ID)
		if id == "" {
			return nil, fmt.Errorf("catalog: theme id required")
		}
		if _, dup := c.themeIndex[id]; dup {
			return nil, fmt.Errorf("catalog: duplicate theme %q", id)
		}
		theme := Theme{ID: id, Name: raw.Name, Colors: raw.Colors, Tier: raw.Tier}
		c.themes = append(c.themes, theme)
		c.themeIndex[id] = theme
	}
	if _, ok := c.themeIndex[DefaultTheme]; !ok {
		return nil, fmt.Errorf("catalog: default theme %q missing", DefaultTheme)
	}
	if c.themeIndex[DefaultTheme].Tier != PlanFirstLove {
		return nil, fmt.Errorf("catalog: default theme %q must be unlocked on %s", DefaultTheme, PlanFirstLove)
	}

	for _, raw := range file.Music {
		id := strings.TrimSpace(raw.ID)
		if id == "" {
			return nil, fmt.Errorf("catalog: music id required")
		}
		preset := MusicPreset{ID: id, Name: raw.Name, Emoji: raw.Emoji, Default: raw.Default}
		c.music = append(c.music, preset)
		c.musicIndex[id] = preset
		if raw.Default {
			if c.defaultMsc != "" {
				return nil, fmt.Errorf("catalog: more than one default music preset")
			}
			c.defaultMsc = id
		}
	}
	if c.defaultMsc == "" {
		return nil, fmt.Errorf("catalog: default music preset required")
	}

	extras := make(map[Plan]int, len(file.Plans))
	for i, raw := range file.Plans {
		extras[raw.Plan] = i
	}
	for _, plan := range Plans() {
		offer := PlanOffer{
			Plan:        plan,
			Label:       plan.Label(),
			PricePaise:  plan.PricePaise(),
			MaxPhotos:   MaxPhotosFor(plan),
			CustomMusic: AllowsCustomMusic(plan),
		}
		if idx, ok := extras[plan]; ok {
			raw := file.Plans[idx]
			offer.ListPricePaise = raw.ListPricePaise
			offer.Popular = raw.Popular
			offer.Features = append([]string(nil), raw.Features...)
		}
		c.offers = append(c.offers, offer)
	}

	sort.SliceStable(c.themes, func(i, j int) bool {
		return c.themes[i].Tier < c.themes[j].Tier
	})
	return c, nil
}

func mustParseCatalog(data []byte) *Catalog {
	c, err := ParseCatalog(data)
	if err != nil {
		panic(err)
	}
	return c
}

// Themes returns all themes ordered by tier.
func (c *Catalog) Themes() []Theme {
	return append([]Theme(nil), c.themes...)
}

// Theme looks up a theme by id.
func (c *Catalog) Theme(id string) (Theme, bool) {
	theme, ok := c.themeIndex[strings.TrimSpace(id)]
	return theme, ok
}

// UnlockedThemes lists the themes selectable without an upgrade on plan.
func (c *Catalog) UnlockedThemes(plan Plan) []Theme {
	out := make([]Theme, 0, len(c.themes))
	for _, theme := range c.themes {
		if plan.AtLeast(theme.Tier) {
			out = append(out, theme)
		}
	}
	return out
}

// MusicPresets returns the bundled tracks.
func (c *Catalog) MusicPresets() []MusicPreset {
	return append([]MusicPreset(nil), c.music...)
}

// MusicPreset looks up a preset by id.
func (c *Catalog) MusicPreset(id string) (MusicPreset, bool) {
	preset, ok := c.musicIndex[strings.TrimSpace(id)]
	return preset, ok
}

// DefaultMusic returns the fallback preset id.
func (c *Catalog) DefaultMusic() string {
	return c.defaultMsc
}

// Offers returns the plan storefront in tier order.
func (c *Catalog) Offers() []PlanOffer {
	out := make([]PlanOffer, len(c.offers))
	for i, offer := range c.offers {
		offer.Features = append([]string(nil), offer.Features...)
		out[i] = offer
	}
	return out
}
