package billing

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultTrialDays applies when a plan does not set trial_days.
const DefaultTrialDays = 3

// Plan is a purchasable subscription.
type Plan struct {
	ID            string        `yaml:"-"`
	Name          string        `yaml:"name"`
	PriceID       string        `yaml:"price_id"`
	TrialDays     int64         `yaml:"trial_days"`
	ActivationFee ActivationFee `yaml:"activation_fee"`
}

// ActivationFee is charged once on the first invoice of a trial.
type ActivationFee struct {
	Amount      int64  `yaml:"amount"`
	Currency    string `yaml:"currency"`
	Description string `yaml:"description"`
}

// Catalog lists plans by id.
type Catalog struct {
	DefaultPlan string          `yaml:"default_plan"`
	Plans       map[string]Plan `yaml:"plans"`
}

// LoadCatalog reads a YAML catalog from path.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Join(ErrInvalidCatalog, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, errors.Join(ErrInvalidCatalog, err)
	}

	if len(c.Plans) == 0 {
		return nil, fmt.Errorf("%w: no plans defined", ErrInvalidCatalog)
	}
	for id, p := range c.Plans {
		p.ID = id
		if strings.TrimSpace(p.PriceID) == "" {
			return nil, fmt.Errorf("%w: plan %q has no price_id", ErrInvalidCatalog, id)
		}
		if p.TrialDays <= 0 {
			p.TrialDays = DefaultTrialDays
		}
		if p.ActivationFee.Amount < 0 {
			return nil, fmt.Errorf("%w: plan %q has a negative activation fee", ErrInvalidCatalog, id)
		}
		if p.ActivationFee.Amount > 0 && p.ActivationFee.Currency == "" {
			return nil, fmt.Errorf("%w: plan %q activation fee has no currency", ErrInvalidCatalog, id)
		}
		p.ActivationFee.Currency = strings.ToLower(p.ActivationFee.Currency)
		c.Plans[id] = p
	}

	if c.DefaultPlan == "" && len(c.Plans) == 1 {
		for id := range c.Plans {
			c.DefaultPlan = id
		}
	}
	if _, ok := c.Plans[c.DefaultPlan]; !ok {
		return nil, fmt.Errorf("%w: default_plan %q is not defined", ErrInvalidCatalog, c.DefaultPlan)
	}
	return &c, nil
}

// Plan returns the plan with id, or the default plan when id is empty.
func (c *Catalog) Plan(id string) (Plan, error) {
	if id == "" {
		id = c.DefaultPlan
	}
	p, ok := c.Plans[id]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return p, nil
}
