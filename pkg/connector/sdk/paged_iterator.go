package sdk

import (
	"context"

	"github.com/ajitpratap0/harvester/pkg/errors"
	"github.com/ajitpratap0/harvester/pkg/models"
)

// PageFetcher returns the next page of parents. An empty page ends the listing.
type PageFetcher[P any] func(ctx context.Context) ([]P, error)

// ChildrenFunc returns the children of a parent, possibly none.
type ChildrenFunc[P, C any] func(parent P) []C

// ReferenceFunc turns a (parent, child) pair into a data reference.
type ReferenceFunc[P, C any] func(parent P, child C) (*models.DataReference, error)

// PagedIterator flattens a paged listing of parents, each owning zero or more
// children, into one reference per (parent, child) pair. Parents without
// children produce nothing. Once a fetch returns no parents the iterator stays
// exhausted.
type PagedIterator[P, C any] struct {
	fetch    PageFetcher[P]
	children ChildrenFunc[P, C]
	toRef    ReferenceFunc[P, C]

	page    []P
	pagePos int
	parent  P
	kids    []C
	kidPos  int
	done    bool
}

// NewPagedIterator creates an iterator. No page is fetched until the first HasNext.
func NewPagedIterator[P, C any](fetch PageFetcher[P], children ChildrenFunc[P, C], toRef ReferenceFunc[P, C]) *PagedIterator[P, C] {
	return &PagedIterator[P, C]{fetch: fetch, children: children, toRef: toRef}
}

// HasNext reports whether another pair is available, fetching pages as needed.
func (it *PagedIterator[P, C]) HasNext(ctx context.Context) (bool, error) {
	for {
		if it.kidPos < len(it.kids) {
			return true, nil
		}
		if it.pagePos < len(it.page) {
			it.parent = it.page[it.pagePos]
			it.pagePos++
			it.kids = it.children(it.parent)
			it.kidPos = 0
			continue
		}
		if it.done {
			return false, nil
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}

		page, err := it.fetch(ctx)
		if err != nil {
			return false, err
		}
		it.page = page
		it.pagePos = 0
		if len(page) == 0 {
			it.done = true
			return false, nil
		}
	}
}

// Next returns the pending pair as a reference. It must follow a true HasNext.
func (it *PagedIterator[P, C]) Next(_ context.Context) (*models.DataReference, error) {
	if it.kidPos >= len(it.kids) {
		return nil, errors.New(errors.ErrorTypeInternal, "Next called without a pending element")
	}
	child := it.kids[it.kidPos]
	it.kidPos++
	return it.toRef(it.parent, child)
}
