package classifier

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
)

//go:embed taxonomy.json
var defaultTaxonomy []byte

// Taxonomy is the versioned two-level topic registry loaded at startup.
// Level1 is a closed enumeration of coarse topics; Level2 maps each L1
// topic to its closed enumeration of fine topics.
type Taxonomy struct {
	Version string              `json:"version"`
	Level1  []string            `json:"level1"`
	Level2  map[string][]string `json:"level2"`
}

// LoadTaxonomy reads a taxonomy registry document from path, or the
// embedded default when path is empty.
func LoadTaxonomy(path string) (*Taxonomy, error) {
	data := defaultTaxonomy
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read taxonomy registry: %w", err)
		}
	}

	var t Taxonomy
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse taxonomy registry: %w", err)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Taxonomy) validate() error {
	if len(t.Level1) == 0 {
		return fmt.Errorf("taxonomy has no level-1 topics")
	}
	for l1 := range t.Level2 {
		if !t.HasLevel1(l1) {
			return fmt.Errorf("level-2 map references unknown level-1 topic %q", l1)
		}
	}
	return nil
}

// HasLevel1 reports whether topic is in the L1 enumeration.
func (t *Taxonomy) HasLevel1(topic string) bool {
	for _, l1 := range t.Level1 {
		if l1 == topic {
			return true
		}
	}
	return false
}

// Level2For returns the fine-topic enumeration scoped to an L1 topic.
func (t *Taxonomy) Level2For(l1 string) []string {
	return t.Level2[l1]
}

// FilterLevel2 keeps only topics present in the L1-scoped enumeration.
func (t *Taxonomy) FilterLevel2(l1 string, topics []string) []string {
	allowed := make(map[string]bool)
	for _, topic := range t.Level2[l1] {
		allowed[topic] = true
	}
	filtered := make([]string, 0, len(topics))
	for _, topic := range topics {
		if allowed[topic] {
			filtered = append(filtered, topic)
		}
	}
	return filtered
}
