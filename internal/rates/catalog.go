package rates

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/credinet/credinet/internal/shared"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

type fileTerm struct {
	Term       int    `yaml:"term"`
	Client     string `yaml:"client"`
	Associate  string `yaml:"associate"`
	Commission string `yaml:"commission"`
}

type fileProfile struct {
	Code             string     `yaml:"code"`
	Name             string     `yaml:"name"`
	Active           bool       `yaml:"active"`
	CustomRate       bool       `yaml:"custom_rate"`
	MinAmount        string     `yaml:"min_amount"`
	MaxAmount        string     `yaml:"max_amount"`
	AmountStep       string     `yaml:"amount_step"`
	MaxTerm          int        `yaml:"max_term"`
	CustomCommission string     `yaml:"custom_commission"`
	Terms            []fileTerm `yaml:"terms"`
}

type catalogFile struct {
	Profiles []fileProfile `yaml:"profiles"`
}

// Catalog is a read-only lookup of rate profiles.
type Catalog struct {
	profiles map[string]RateProfile
	order    []string
}

// DefaultCatalog parses the embedded catalog.
func DefaultCatalog(defaultStep decimal.Decimal) (*Catalog, error) {
	return Parse(defaultCatalogYAML, defaultStep)
}

// LoadCatalog reads a catalog file, falling back to the embedded one when path is empty.
func LoadCatalog(path string, defaultStep decimal.Decimal) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(defaultStep)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rates: read catalog: %w", err)
	}
	return Parse(raw, defaultStep)
}

// Parse builds a Catalog from YAML. Profiles lacking amount_step use defaultStep.
func Parse(raw []byte, defaultStep decimal.Decimal) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("rates: parse catalog: %w", err)
	}
	c := &Catalog{profiles: make(map[string]RateProfile, len(file.Profiles))}
	for _, fp := range file.Profiles {
		p, err := fp.toProfile(defaultStep)
		if err != nil {
			return nil, fmt.Errorf("rates: profile %q: %w", fp.Code, err)
		}
		if _, dup := c.profiles[p.Code]; dup {
			return nil, fmt.Errorf("rates: duplicate profile %q", p.Code)
		}
		c.profiles[p.Code] = p
		c.order = append(c.order, p.Code)
	}
	return c, nil
}

func (fp fileProfile) toProfile(defaultStep decimal.Decimal) (RateProfile, error) {
	if fp.Code == "" {
		return RateProfile{}, fmt.Errorf("code required")
	}
	minAmount, err := decimal.NewFromString(fp.MinAmount)
	if err != nil {
		return RateProfile{}, fmt.Errorf("min_amount: %w", err)
	}
	maxAmount, err := decimal.NewFromString(fp.MaxAmount)
	if err != nil {
		return RateProfile{}, fmt.Errorf("max_amount: %w", err)
	}
	if maxAmount.LessThan(minAmount) {
		return RateProfile{}, fmt.Errorf("max_amount below min_amount")
	}
	step := defaultStep
	if fp.AmountStep != "" {
		if step, err = decimal.NewFromString(fp.AmountStep); err != nil {
			return RateProfile{}, fmt.Errorf("amount_step: %w", err)
		}
	}
	p := RateProfile{
		Code:             fp.Code,
		Name:             fp.Name,
		IsActive:         fp.Active,
		AllowsCustomRate: fp.CustomRate,
		MinAmount:        minAmount,
		MaxAmount:        maxAmount,
		AmountStep:       step,
		MaxTerm:          fp.MaxTerm,
		Terms:            []ProfileTerm{},
	}
	if fp.CustomRate {
		if fp.MaxTerm <= 0 {
			return RateProfile{}, fmt.Errorf("custom profile needs max_term")
		}
		if p.customCommission, err = decimal.NewFromString(fp.CustomCommission); err != nil {
			return RateProfile{}, fmt.Errorf("custom_commission: %w", err)
		}
		return p, nil
	}
	for _, ft := range fp.Terms {
		if ft.Term <= 0 {
			return RateProfile{}, fmt.Errorf("term must be positive")
		}
		t := ProfileTerm{TermBiweeks: ft.Term}
		if t.ClientRateAnnual, err = decimal.NewFromString(ft.Client); err != nil {
			return RateProfile{}, fmt.Errorf("term %d client: %w", ft.Term, err)
		}
		if t.AssociateRateAnnual, err = decimal.NewFromString(ft.Associate); err != nil {
			return RateProfile{}, fmt.Errorf("term %d associate: %w", ft.Term, err)
		}
		if t.CommissionRateAnnual, err = decimal.NewFromString(ft.Commission); err != nil {
			return RateProfile{}, fmt.Errorf("term %d commission: %w", ft.Term, err)
		}
		p.Terms = append(p.Terms, t)
	}
	sort.Slice(p.Terms, func(i, j int) bool { return p.Terms[i].TermBiweeks < p.Terms[j].TermBiweeks })
	return p, nil
}

// Profile returns a profile by code regardless of its active flag.
func (c *Catalog) Profile(code string) (RateProfile, error) {
	p, ok := c.profiles[code]
	if !ok {
		return RateProfile{}, shared.NotFoundKey("rate_profile", code)
	}
	return p, nil
}

// Profiles lists profiles in catalog order.
func (c *Catalog) Profiles() []RateProfile {
	out := make([]RateProfile, 0, len(c.order))
	for _, code := range c.order {
		out = append(out, c.profiles[code])
	}
	return out
}

// Lookup resolves the rates of an active profile for a term.
func (c *Catalog) Lookup(code string, termBiweeks int) (ProfileTerm, error) {
	p, ok := c.profiles[code]
	if !ok || !p.IsActive {
		return ProfileTerm{}, shared.NotFoundKey("rate_profile", code)
	}
	t, ok := p.Term(termBiweeks)
	if !ok {
		return ProfileTerm{}, shared.NotFoundKey("rate_profile_term", fmt.Sprintf("%s/%d", code, termBiweeks))
	}
	return t, nil
}
