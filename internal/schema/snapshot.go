package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/graphsql/internal/ir"
)

// Property is one [count, indexed, type] schema entry.
type Property struct {
	Count   int64
	Indexed bool
	Type    string
}

// UnmarshalJSON decodes the positional [count, indexed, type] form.
func (p *Property) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("property: %w", err)
	}
	if len(raw) != 3 {
		return fmt.Errorf("property: expected [count, indexed, type], got %d elements", len(raw))
	}
	var count float64
	if err := json.Unmarshal(raw[0], &count); err != nil {
		return fmt.Errorf("property count: %w", err)
	}
	if err := json.Unmarshal(raw[1], &p.Indexed); err != nil {
		return fmt.Errorf("property indexed: %w", err)
	}
	if err := json.Unmarshal(raw[2], &p.Type); err != nil {
		return fmt.Errorf("property type: %w", err)
	}
	p.Count = int64(count)
	return nil
}

// MarshalJSON encodes the positional form.
func (p Property) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{p.Count, p.Indexed, p.Type})
}

// Class is the schema of one entity or connection class.
type Class struct {
	Matched    int64               `json:"matched"`
	Properties map[string]Property `json:"properties,omitempty"`

	// Src and Dst name the endpoint classes of a connection class.
	Src string `json:"src,omitempty"`
	Dst string `json:"dst,omitempty"`
}

// ClassSet is the {"classes": {...}} wrapper used by GetSchema.
type ClassSet struct {
	Classes map[string]Class `json:"classes"`
}

// DescriptorSet describes one descriptor set and the properties of its
// descriptors.
type DescriptorSet struct {
	Name       string `json:"name"`
	Count      int64  `json:"count"`
	Dimensions int    `json:"dimensions"`

	// Metrics and Engines are reported by FindDescriptorSet.
	Metrics []string `json:"metrics,omitempty"`
	Engines []string `json:"engines,omitempty"`

	// Properties are the set's own (user) properties, such as the
	// embeddings_* keys.
	Properties map[string]any `json:"properties,omitempty"`

	// Descriptor is the schema of descriptors in this set.
	Descriptor Class `json:"descriptor"`
}

// SupportsFindSimilar reports whether the set names an embedding model.
func (d DescriptorSet) SupportsFindSimilar() bool {
	for _, key := range []string{"embeddings_provider", "embeddings_model", "embeddings_pretrained"} {
		v, ok := d.Properties[key]
		if !ok || v == nil || v == "" || v == false {
			return false
		}
	}
	return true
}

// Snapshot is the raw schema of a database at one point in time.
type Snapshot struct {
	Entities       ClassSet        `json:"entities"`
	Connections    ClassSet        `json:"connections"`
	DescriptorSets []DescriptorSet `json:"descriptor_sets,omitempty"`
}

// ParseSnapshot decodes a snapshot from JSON. Either the GetSchema body alone
// or a full snapshot with descriptor_sets is accepted.
func ParseSnapshot(data []byte) (*Snapshot, error) {
	s := &Snapshot{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, &ConfigError{Code: ErrCodeInvalidSnapshot, Message: err.Error()}
	}
	s.sortDescriptorSets()
	return s, nil
}

func (s *Snapshot) sortDescriptorSets() {
	slices.SortFunc(s.DescriptorSets, func(a, b DescriptorSet) int {
		return strings.Compare(a.Name, b.Name)
	})
}

// ID returns the content-addressed identity of the snapshot.
func (s *Snapshot) ID() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("snapshot id: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return "", fmt.Errorf("snapshot id: %w", err)
	}
	return ir.SnapshotID(generic)
}

// decodeInto re-encodes a generic JSON value into a typed struct.
func decodeInto(v any, out any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
