package models

import (
	"fmt"
	"time"
)

// DataReference is the canonical unit flowing from an input broker to every
// output broker.
type DataReference struct {
	// BrokerURI locates the broker that produced the reference
	BrokerURI string `json:"broker_uri"`
	// SourceLabel is the producing broker's label
	SourceLabel string `json:"source_label,omitempty"`
	// ID is stable within BrokerURI
	ID string `json:"id"`
	// LastModified is the source-side modification time when known
	LastModified *time.Time `json:"last_modified,omitempty"`
	// ContentURI locates the described resource
	ContentURI string `json:"content_uri,omitempty"`
	// Content is the rendered metadata document
	Content []byte `json:"content"`
	// ContentType is the MIME type of Content
	ContentType string `json:"content_type"`
}

// Key identifies the reference across brokers.
func (r *DataReference) Key() string {
	return r.BrokerURI + "#" + r.ID
}

func (r *DataReference) String() string {
	return fmt.Sprintf("DATA REFERENCE :: %s, %s (%d bytes)", r.BrokerURI, r.ID, len(r.Content))
}

// PublishingStatus tells what an output broker did with a reference.
type PublishingStatus string

const (
	// PublishingStatusCreated means a new document was stored
	PublishingStatusCreated PublishingStatus = "created"
	// PublishingStatusUpdated means an existing document was replaced
	PublishingStatusUpdated PublishingStatus = "updated"
	// PublishingStatusSkipped means the broker chose not to store the document
	PublishingStatusSkipped PublishingStatus = "skipped"
)

// ProcessHistory records the outcome of one finished process.
type ProcessHistory struct {
	ID        string    `json:"id"`
	TaskHash  string    `json:"task_hash"`
	TaskName  string    `json:"task_name"`
	State     string    `json:"state"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Harvested int64     `json:"harvested"`
	Published int64     `json:"published"`
	Failed    int64     `json:"failed"`
}
