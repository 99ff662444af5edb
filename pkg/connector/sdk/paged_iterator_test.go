package sdk

import (
	"context"
	"fmt"
	"testing"

	"github.com/ajitpratap0/harvester/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dataset struct {
	name      string
	resources []string
}

func pagesOf(pages ...[]dataset) (PageFetcher[dataset], *int) {
	calls := 0
	return func(context.Context) ([]dataset, error) {
		calls++
		if calls > len(pages) {
			return nil, nil
		}
		return pages[calls-1], nil
	}, &calls
}

func newDatasetIterator(fetch PageFetcher[dataset]) *PagedIterator[dataset, string] {
	return NewPagedIterator(fetch,
		func(d dataset) []string { return d.resources },
		func(d dataset, r string) (*models.DataReference, error) {
			return &models.DataReference{ID: d.name + "/" + r}, nil
		})
}

func drain(t *testing.T, it *PagedIterator[dataset, string]) []string {
	t.Helper()
	ctx := context.Background()
	var ids []string
	for {
		ok, err := it.HasNext(ctx)
		require.NoError(t, err)
		if !ok {
			return ids
		}
		ref, err := it.Next(ctx)
		require.NoError(t, err)
		ids = append(ids, ref.ID)
	}
}

func TestPagedIteratorFlattening(t *testing.T) {
	tests := []struct {
		name  string
		pages [][]dataset
		want  []string
	}{
		{
			name: "empty listing",
		},
		{
			name: "parents without children",
			pages: [][]dataset{
				{{name: "a"}, {name: "b"}},
			},
		},
		{
			name: "several pages",
			pages: [][]dataset{
				{{name: "a", resources: []string{"1", "2"}}, {name: "b"}},
				{{name: "c", resources: []string{"1"}}},
				{{name: "d", resources: []string{"1", "2", "3"}}},
			},
			want: []string{"a/1", "a/2", "c/1", "d/1", "d/2", "d/3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetch, _ := pagesOf(tt.pages...)
			got := drain(t, newDatasetIterator(fetch))
			assert.Equal(t, tt.want, got)

			total := 0
			for _, p := range tt.pages {
				for _, d := range p {
					total += len(d.resources)
				}
			}
			assert.Len(t, got, total)
		})
	}
}

func TestPagedIteratorStaysExhausted(t *testing.T) {
	fetch, calls := pagesOf([]dataset{{name: "a", resources: []string{"1"}}})
	it := newDatasetIterator(fetch)
	assert.Equal(t, []string{"a/1"}, drain(t, it))

	ok, err := it.HasNext(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, *calls)
}

func TestPagedIteratorHasNextIsIdempotent(t *testing.T) {
	fetch, calls := pagesOf([]dataset{{name: "a", resources: []string{"1"}}})
	it := newDatasetIterator(fetch)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		ok, err := it.HasNext(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 1, *calls)
}

func TestPagedIteratorFetchError(t *testing.T) {
	it := newDatasetIterator(func(context.Context) ([]dataset, error) {
		return nil, fmt.Errorf("boom")
	})
	_, err := it.HasNext(context.Background())
	assert.EqualError(t, err, "boom")
}

func TestPagedIteratorNextWithoutPending(t *testing.T) {
	fetch, _ := pagesOf()
	_, err := newDatasetIterator(fetch).Next(context.Background())
	assert.Error(t, err)
}
