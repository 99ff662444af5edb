// Package models provides the serializable definitions and the transport unit
// shared by every part of the harvester.
//
// Definitions are plain values: an EntityDefinition describes one broker, a
// TaskDefinition composes a processor, a source and its destinations, and a
// TriggerInstanceDefinition schedules a task. All of them round-trip through
// YAML and JSON unchanged.
package models

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"
	"sort"

	"github.com/google/uuid"
)

// EntityDefinition identifies what kind of broker (or processor) to build and
// how to configure it.
type EntityDefinition struct {
	// Type selects the connector, e.g. "CKAN" or "FOLDER"
	Type string `yaml:"type" json:"type"`
	// Label is a human readable name; it is not part of the definition's identity
	Label string `yaml:"label,omitempty" json:"label,omitempty"`
	// Properties configures the connector
	Properties map[string]string `yaml:"properties" json:"properties"`
}

// NewEntityDefinition creates a definition with a copy of the given properties.
func NewEntityDefinition(entityType string, properties map[string]string) EntityDefinition {
	def := EntityDefinition{Type: entityType, Properties: make(map[string]string, len(properties))}
	for k, v := range properties {
		def.Properties[k] = v
	}
	return def
}

// Get returns the named property or an empty string.
func (d EntityDefinition) Get(key string) string {
	if d.Properties == nil {
		return ""
	}
	return d.Properties[key]
}

// GetOr returns the named property or def when it is absent or blank.
func (d EntityDefinition) GetOr(key, def string) string {
	if v := d.Get(key); v != "" {
		return v
	}
	return def
}

// Clone returns a deep copy of the definition.
func (d EntityDefinition) Clone() EntityDefinition {
	c := NewEntityDefinition(d.Type, d.Properties)
	c.Label = d.Label
	return c
}

// Equal reports whether both definitions have the same type and properties.
// A nil and an empty property map are equal.
func (d EntityDefinition) Equal(other EntityDefinition) bool {
	if d.Type != other.Type || len(d.Properties) != len(other.Properties) {
		return false
	}
	for k, v := range d.Properties {
		ov, ok := other.Properties[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// Hash returns a stable digest of the definition's type and properties.
func (d EntityDefinition) Hash() string {
	h := sha256.New()
	d.writeTo(h)
	return hex.EncodeToString(h.Sum(nil))
}

func (d EntityDefinition) writeTo(h io.Writer) {
	keys := make([]string, 0, len(d.Properties))
	for k := range d.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// lengths are written before values so that concatenations cannot collide
	writeField := func(s string) {
		var n [8]byte
		binary.LittleEndian.PutUint64(n[:], uint64(len(s)))
		_, _ = h.Write(n[:])
		_, _ = h.Write([]byte(s))
	}
	writeField(d.Type)
	for _, k := range keys {
		writeField(k)
		writeField(d.Properties[k])
	}
}

// TaskDefinition composes a processor, a source and destinations.
type TaskDefinition struct {
	// Name is a display name for the task
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	// Processor selects the processor; an empty type means the default processor
	Processor EntityDefinition `yaml:"processor" json:"processor"`
	// Source is the input broker definition
	Source EntityDefinition `yaml:"source" json:"source"`
	// Destinations are the output broker definitions, in delivery order
	Destinations []EntityDefinition `yaml:"destinations" json:"destinations"`
	// IgnoreRobotsTxt disables crawl policy enforcement for this task
	IgnoreRobotsTxt bool `yaml:"ignore_robots_txt,omitempty" json:"ignore_robots_txt,omitempty"`
	// Incremental asks sources for records modified since the last successful run
	Incremental bool `yaml:"incremental,omitempty" json:"incremental,omitempty"`
}

// Equal reports whether both tasks are built from the same processor, source
// and destination definitions.
func (t TaskDefinition) Equal(other TaskDefinition) bool {
	if !t.Processor.Equal(other.Processor) || !t.Source.Equal(other.Source) {
		return false
	}
	if len(t.Destinations) != len(other.Destinations) {
		return false
	}
	for i := range t.Destinations {
		if !t.Destinations[i].Equal(other.Destinations[i]) {
			return false
		}
	}
	return true
}

// Hash returns a stable digest consistent with Equal.
func (t TaskDefinition) Hash() string {
	h := sha256.New()
	t.Processor.writeTo(h)
	t.Source.writeTo(h)
	for _, d := range t.Destinations {
		d.writeTo(h)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// String returns the task name or a short description of its definition.
func (t TaskDefinition) String() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Source.Type + " -> " + destinationTypes(t.Destinations)
}

func destinationTypes(defs []EntityDefinition) string {
	s := ""
	for i, d := range defs {
		if i > 0 {
			s += ","
		}
		s += d.Type
	}
	return s
}

// StoredTask is a task definition persisted under a unique identifier.
type StoredTask struct {
	ID         uuid.UUID      `yaml:"id" json:"id"`
	Definition TaskDefinition `yaml:"definition" json:"definition"`
}

// TriggerInstanceDefinition schedules a task.
type TriggerInstanceDefinition struct {
	// ID uniquely identifies the trigger instance
	ID uuid.UUID `yaml:"id" json:"id"`
	// Type selects the trigger, e.g. "NOW", "PERIOD" or "CRON"
	Type string `yaml:"type" json:"type"`
	// TaskID references the stored task to run
	TaskID uuid.UUID `yaml:"task_id" json:"task_id"`
	// Properties holds the schedule spec
	Properties map[string]string `yaml:"properties,omitempty" json:"properties,omitempty"`
	// Active marks definitions to re-activate on startup
	Active bool `yaml:"active" json:"active"`
}

// Get returns the named property or an empty string.
func (t TriggerInstanceDefinition) Get(key string) string {
	if t.Properties == nil {
		return ""
	}
	return t.Properties[key]
}
