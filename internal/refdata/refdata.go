// Package refdata serves read-only reference data for UIs: the registered
// political parties and the polling units in scope. Loaded once at startup,
// never mutated.
package refdata

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// PoliticalParty is one registered party.
type PoliticalParty struct {
	Name    string `json:"name"`
	Acronym string `json:"acronym"`
}

// PollingUnit is one polling unit with its ward and local government area.
type PollingUnit struct {
	Name string `json:"polling_unit"`
	Ward string `json:"ward"`
	LGA  string `json:"lga"`
}

// Catalog holds the loaded reference data.
type Catalog struct {
	parties []PoliticalParty
	units   []PollingUnit
}

// NewCatalog builds a catalog over already-loaded slices.
func NewCatalog(parties []PoliticalParty, units []PollingUnit) *Catalog {
	return &Catalog{parties: parties, units: units}
}

// Parties returns the registered parties. The slice must not be modified.
func (c *Catalog) Parties() []PoliticalParty {
	return c.parties
}

// PollingUnits returns the polling units. The slice must not be modified.
func (c *Catalog) PollingUnits() []PollingUnit {
	return c.units
}

// HasPollingUnit reports whether name is a known polling unit.
func (c *Catalog) HasPollingUnit(name string) bool {
	for _, u := range c.units {
		if u.Name == name {
			return true
		}
	}
	return false
}

// LoadCatalog reads both reference files from disk.
func LoadCatalog(_ context.Context, partiesPath, unitsPath string) (*Catalog, error) {
	var parties []PoliticalParty
	if err := loadJSON(partiesPath, &parties); err != nil {
		return nil, fmt.Errorf("load political parties: %w", err)
	}
	var units []PollingUnit
	if err := loadJSON(unitsPath, &units); err != nil {
		return nil, fmt.Errorf("load polling units: %w", err)
	}
	return NewCatalog(parties, units), nil
}

func loadJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
