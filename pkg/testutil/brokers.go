package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ajitpratap0/harvester/pkg/connector/core"
	"github.com/ajitpratap0/harvester/pkg/errors"
	"github.com/ajitpratap0/harvester/pkg/models"
)

// MemorySource is an input broker serving a fixed list of references.
type MemorySource struct {
	Def        models.EntityDefinition
	URI        string
	Refs       []*models.DataReference
	InitErr    error
	TermErr    error
	FailNextAt map[int]error

	// OnHasNext runs before every HasNext with the index of the next reference
	OnHasNext func(i int)

	initialized atomic.Int32
	terminated  atomic.Int32
}

// NewMemorySource creates a source serving refs with IDs ids.
func NewMemorySource(uri string, ids ...string) *MemorySource {
	refs := make([]*models.DataReference, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, &models.DataReference{
			BrokerURI:   uri,
			ID:          id,
			Content:     []byte("<metadata>" + id + "</metadata>"),
			ContentType: "application/xml",
		})
	}
	return &MemorySource{
		Def:  models.NewEntityDefinition("MEMORY", map[string]string{"uri": uri}),
		URI:  uri,
		Refs: refs,
	}
}

func (s *MemorySource) Initialize(context.Context, core.InitContext) error {
	s.initialized.Add(1)
	return s.InitErr
}

func (s *MemorySource) Terminate() error {
	s.terminated.Add(1)
	return s.TermErr
}

// Terminations returns how many times Terminate was called.
func (s *MemorySource) Terminations() int { return int(s.terminated.Load()) }

func (s *MemorySource) EntityDefinition() models.EntityDefinition { return s.Def }

func (s *MemorySource) BrokerURI() string { return s.URI }

func (s *MemorySource) Iterator(context.Context, core.IteratorContext) (core.Iterator, error) {
	return &memoryIterator{src: s}, nil
}

type memoryIterator struct {
	src *MemorySource
	pos int
}

func (it *memoryIterator) HasNext(context.Context) (bool, error) {
	if it.src.OnHasNext != nil {
		it.src.OnHasNext(it.pos)
	}
	return it.pos < len(it.src.Refs), nil
}

func (it *memoryIterator) Next(context.Context) (*models.DataReference, error) {
	i := it.pos
	it.pos++
	if err, ok := it.src.FailNextAt[i]; ok {
		return nil, err
	}
	return it.src.Refs[i], nil
}

// RecordingDestination is an output broker that remembers every published ID.
type RecordingDestination struct {
	Def     models.EntityDefinition
	InitErr error
	TermErr error
	// FailOn maps reference IDs to the error Publish returns for them
	FailOn map[string]error

	mu         sync.Mutex
	published  []string
	terminated atomic.Int32
}

// NewRecordingDestination creates a destination with the given name.
func NewRecordingDestination(name string) *RecordingDestination {
	return &RecordingDestination{
		Def: models.NewEntityDefinition("RECORDING", map[string]string{"name": name}),
	}
}

func (d *RecordingDestination) Initialize(context.Context, core.InitContext) error {
	return d.InitErr
}

func (d *RecordingDestination) Terminate() error {
	d.terminated.Add(1)
	return d.TermErr
}

// Terminations returns how many times Terminate was called.
func (d *RecordingDestination) Terminations() int { return int(d.terminated.Load()) }

func (d *RecordingDestination) EntityDefinition() models.EntityDefinition { return d.Def }

func (d *RecordingDestination) BrokerURI() string {
	return fmt.Sprintf("recording://%s", d.Def.Get("name"))
}

func (d *RecordingDestination) Publish(_ context.Context, ref *models.DataReference) (models.PublishingStatus, error) {
	if err, ok := d.FailOn[ref.ID]; ok {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.published = append(d.published, ref.ID)
	return models.PublishingStatusCreated, nil
}

// Published returns the IDs published so far, in order.
func (d *RecordingDestination) Published() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.published...)
}

// ErrTest is a generic failure for tests.
var ErrTest = errors.New(errors.ErrorTypeConnection, "test failure")
