// Package models holds the static per-provider catalogs of LLM identifiers
// offered to users.
package models

import (
	_ "embed"
	"fmt"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/xiaot623/gogo/chatbot/internal/domain"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// DefaultModel is the default of the Groq catalog, which is active unless Use
// selects another provider.
const DefaultModel = "openai/gpt-oss-120b"

// Catalog is an ordered, read-only set of models.
type Catalog struct {
	models       []domain.ModelInfo
	byID         map[string]int
	byLabel      map[string]string
	defaultModel string
}

// Parse builds a catalog from YAML. Ids must be non-empty and unique, display
// names must be pairwise distinct and defaultModel must be listed.
func Parse(data []byte, defaultModel string) (*Catalog, error) {
	var entries []domain.ModelInfo
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse model catalog: %w", err)
	}
	return newCatalog(entries, defaultModel)
}

func newCatalog(entries []domain.ModelInfo, defaultModel string) (*Catalog, error) {
	c := &Catalog{
		models:       entries,
		byID:         make(map[string]int, len(entries)),
		byLabel:      make(map[string]string, len(entries)),
		defaultModel: defaultModel,
	}
	for i, m := range entries {
		if strings.TrimSpace(m.ID) == "" {
			return nil, fmt.Errorf("model catalog entry %d has no id", i)
		}
		if _, dup := c.byID[m.ID]; dup {
			return nil, fmt.Errorf("model %q is listed twice", m.ID)
		}
		c.byID[m.ID] = i

		label := displayName(m)
		if other, dup := c.byLabel[label]; dup {
			return nil, fmt.Errorf("models %q and %q share display name %q", other, m.ID, label)
		}
		c.byLabel[label] = m.ID
	}
	if _, ok := c.byID[defaultModel]; !ok {
		return nil, fmt.Errorf("default model %q is not in the catalog", defaultModel)
	}
	return c, nil
}

// List returns the models in declaration order.
func (c *Catalog) List() []domain.ModelInfo {
	out := make([]domain.ModelInfo, len(c.models))
	copy(out, c.models)
	return out
}

// Has reports whether id is in the catalog.
func (c *Catalog) Has(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// Get returns the model info for id, or a placeholder with zero limits when
// id is not in the catalog.
func (c *Catalog) Get(id string) domain.ModelInfo {
	if i, ok := c.byID[id]; ok {
		return c.models[i]
	}
	return domain.ModelInfo{
		ID:          id,
		Developer:   "Unknown",
		Description: "Unknown model",
	}
}

// DisplayName formats id as "developer: id - description". Unknown ids are
// returned unchanged.
func (c *Catalog) DisplayName(id string) string {
	if i, ok := c.byID[id]; ok {
		return displayName(c.models[i])
	}
	return id
}

// FromDisplayName maps a selector label back to its model id.
func (c *Catalog) FromDisplayName(label string) (string, bool) {
	id, ok := c.byLabel[label]
	return id, ok
}

// Default returns the catalog's default model id.
func (c *Catalog) Default() string {
	return c.defaultModel
}

// Resolve returns id, or the default model when id is blank.
func (c *Catalog) Resolve(id string) string {
	if strings.TrimSpace(id) == "" {
		return c.defaultModel
	}
	return id
}

func displayName(m domain.ModelInfo) string {
	return fmt.Sprintf("%s: %s - %s", m.Developer, m.ID, m.Description)
}

// Catalog names in catalog.yaml.
const (
	CatalogGroq   = "groq"
	CatalogGemini = "gemini"
)

type catalogSection struct {
	Default string             `yaml:"default"`
	Models  []domain.ModelInfo `yaml:"models"`
}

// ParseSet builds every catalog in a multi-provider YAML document.
func ParseSet(data []byte) (map[string]*Catalog, error) {
	var sections map[string]catalogSection
	if err := yaml.Unmarshal(data, &sections); err != nil {
		return nil, fmt.Errorf("failed to parse model catalogs: %w", err)
	}

	set := make(map[string]*Catalog, len(sections))
	for name, section := range sections {
		c, err := newCatalog(section.Models, section.Default)
		if err != nil {
			return nil, fmt.Errorf("catalog %s: %w", name, err)
		}
		set[name] = c
	}
	return set, nil
}

// CatalogFor maps an LLM provider name to the catalog it serves. The
// OpenAI-compatible providers (http, openai) and the mock use the Groq catalog.
func CatalogFor(provider string) string {
	if strings.EqualFold(strings.TrimSpace(provider), CatalogGemini) {
		return CatalogGemini
	}
	return CatalogGroq
}

var (
	catalogs map[string]*Catalog
	active   atomic.Pointer[Catalog]
)

func init() {
	set, err := ParseSet(defaultCatalogYAML)
	if err != nil {
		panic(err)
	}
	if _, ok := set[CatalogGroq]; !ok {
		panic("model catalog: groq section is missing")
	}
	if set[CatalogGroq].Default() != DefaultModel {
		panic("model catalog: groq default must be " + DefaultModel)
	}
	catalogs = set
	active.Store(set[CatalogGroq])
}

// Use makes the catalog serving provider the active one. It is called once at
// startup, before any session is loaded.
func Use(provider string) error {
	name := CatalogFor(provider)
	c, ok := catalogs[name]
	if !ok {
		return fmt.Errorf("no model catalog for provider %q", provider)
	}
	active.Store(c)
	return nil
}

// Active returns the catalog selected by Use.
func Active() *Catalog { return active.Load() }

// Default returns the active catalog's default model id.
func Default() string { return Active().Default() }

// List returns the active catalog in declaration order.
func List() []domain.ModelInfo { return Active().List() }

// Has reports whether id is in the active catalog.
func Has(id string) bool { return Active().Has(id) }

// Get looks up id in the active catalog.
func Get(id string) domain.ModelInfo { return Active().Get(id) }

// DisplayName formats id using the active catalog.
func DisplayName(id string) string { return Active().DisplayName(id) }

// FromDisplayName reverses DisplayName for the active catalog.
func FromDisplayName(label string) (string, bool) { return Active().FromDisplayName(label) }

// Resolve is the single place where a missing model id becomes the default.
func Resolve(id string) string { return Active().Resolve(id) }

// ResolvePtr resolves an optional model id.
func ResolvePtr(id *string) string {
	if id == nil {
		return Default()
	}
	return Resolve(*id)
}
