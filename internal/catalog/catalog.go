// Package catalog holds the hosted model definitions the studio exposes:
// per-model metadata plus the input parameter schema the UI renders its
// forms from and the server validates submissions against.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
)

//go:embed models.json
var modelsJSON []byte

// Parameter describes one model input.
type Parameter struct {
	Name     string        `json:"name"`
	Label    string        `json:"label"`
	Type     string        `json:"type"` // string, integer, number, boolean, enum
	Default  interface{}   `json:"default,omitempty"`
	Options  []interface{} `json:"options,omitempty"`
	Min      *float64      `json:"min,omitempty"`
	Max      *float64      `json:"max,omitempty"`
	Required bool          `json:"required,omitempty"`
}

// Model is one hosted model the studio can generate with.
type Model struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Kind        string      `json:"kind"` // image or video
	Endpoint    string      `json:"endpoint"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
}

// Catalog is the loaded model set.
type Catalog struct {
	models []Model
	byID   map[string]Model
}

// Load parses the embedded catalog.
func Load() (*Catalog, error) {
	var models []Model
	if err := json.Unmarshal(modelsJSON, &models); err != nil {
		return nil, fmt.Errorf("failed to parse model catalog: %w", err)
	}
	byID := make(map[string]Model, len(models))
	for _, m := range models {
		byID[m.ID] = m
	}
	return &Catalog{models: models, byID: byID}, nil
}

// All returns every model in catalog order.
func (c *Catalog) All() []Model {
	return c.models
}

// Get returns the model with the given id.
func (c *Catalog) Get(id string) (Model, bool) {
	m, ok := c.byID[id]
	return m, ok
}
