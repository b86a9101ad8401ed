// Package catalog holds the read-only list of purchasable experiences.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Category groups experiences for presentation.
type Category string

const (
	CategoryEvent    Category = "event"
	CategoryClass    Category = "class"
	CategoryWorkshop Category = "workshop"
)

// Experience is a purchasable item. Prices are in USDC.
type Experience struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Category    Category `yaml:"category,omitempty" json:"category,omitempty"`
	PriceUSDC   float64  `yaml:"price_usdc" json:"priceUSDC"`
	Date        string   `yaml:"date,omitempty" json:"date,omitempty"`
	Location    string   `yaml:"location,omitempty" json:"location,omitempty"`
}

// Validation errors returned by New.
var (
	ErrEmptyID         = errors.New("experience id is empty")
	ErrDuplicateID     = errors.New("duplicate experience id")
	ErrEmptyName       = errors.New("experience name is empty")
	ErrInvalidPrice    = errors.New("experience price must be positive")
	ErrUnknownCategory = errors.New("unknown experience category")
)

// Catalog is an immutable id -> Experience lookup, safe for concurrent use.
type Catalog struct {
	byID  map[string]Experience
	order []string
}

// New validates experiences and builds a Catalog. Input order is kept for List.
func New(experiences []Experience) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]Experience, len(experiences))}
	for i, exp := range experiences {
		if err := exp.validate(); err != nil {
			return nil, fmt.Errorf("experience %d (%q): %w", i, exp.ID, err)
		}
		if _, dup := c.byID[exp.ID]; dup {
			return nil, fmt.Errorf("experience %d: %w: %s", i, ErrDuplicateID, exp.ID)
		}
		c.byID[exp.ID] = exp
		c.order = append(c.order, exp.ID)
	}
	return c, nil
}

func (e Experience) validate() error {
	switch {
	case e.ID == "":
		return ErrEmptyID
	case e.Name == "":
		return ErrEmptyName
	case !(e.PriceUSDC > 0):
		return ErrInvalidPrice
	}
	switch e.Category {
	case "", CategoryEvent, CategoryClass, CategoryWorkshop:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCategory, e.Category)
	}
}

// Get looks up an experience by id.
func (c *Catalog) Get(id string) (Experience, bool) {
	exp, ok := c.byID[id]
	return exp, ok
}

// List returns every experience in catalog order. The slice is a copy.
func (c *Catalog) List() []Experience {
	out := make([]Experience, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// IDs returns the sorted experience ids.
func (c *Catalog) IDs() []string {
	ids := append([]string(nil), c.order...)
	sort.Strings(ids)
	return ids
}

// Len returns the number of experiences.
func (c *Catalog) Len() int {
	return len(c.order)
}

type catalogFile struct {
	Experiences []Experience `yaml:"experiences"`
}

// Parse reads a YAML document with a top-level experiences list.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return New(f.Experiences)
}

// LoadFile reads a YAML catalog from disk.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Default is the built-in demo catalog.
func Default() *Catalog {
	c, err := New([]Experience{
		{
			ID:          "exp-001",
			Name:        "Web3 Developer Summit",
			Description: "Join industry leaders for a full-day summit exploring the latest in blockchain development, smart contracts, and decentralized applications. Network with peers and learn from hands-on workshops.",
			Category:    CategoryEvent,
			PriceUSDC:   75,
			Date:        "2026-02-15",
			Location:    "San Francisco, CA",
		},
		{
			ID:          "exp-002",
			Name:        "DeFi Masterclass",
			Description: "A comprehensive 4-hour class covering decentralized finance protocols, yield strategies, and risk management. Perfect for developers and financial professionals entering the DeFi space.",
			Category:    CategoryClass,
			PriceUSDC:   45,
			Date:        "2026-02-20",
			Location:    "Online (Live)",
		},
		{
			ID:          "exp-003",
			Name:        "Build Your First Agent Workshop",
			Description: "Hands-on workshop where you'll build an autonomous agent capable of HTTP 402 payments. Learn agentic commerce patterns and deploy your own payment-enabled bot.",
			Category:    CategoryWorkshop,
			PriceUSDC:   120,
			Date:        "2026-03-01",
			Location:    "Austin, TX",
		},
	})
	if err != nil {
		panic(err)
	}
	return c
}
