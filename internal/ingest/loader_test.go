package ingest

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pricewatch/internal/purchasing/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sliceSource struct {
	records []domain.InvoiceLine
	calls   int
	failAt  int
}

func (s *sliceSource) FetchPage(_ context.Context, _ domain.Filter, pageSize int, after string) (domain.Page, error) {
	s.calls++
	if s.failAt > 0 && s.calls == s.failAt {
		return domain.Page{}, errors.New("connection reset")
	}
	start := 0
	if after != "" {
		start, _ = strconv.Atoi(after)
	}
	end := start + pageSize
	if end > len(s.records) {
		end = len(s.records)
	}
	page := domain.Page{Records: s.records[start:end]}
	if end-start == pageSize {
		page.Next = strconv.Itoa(end)
	}
	return page, nil
}

func mapped(n int) []domain.InvoiceLine {
	loc := "loc-1"
	out := make([]domain.InvoiceLine, n)
	for i := range out {
		out[i] = domain.InvoiceLine{ID: snowflake.ID(i + 1), LocationID: &loc}
	}
	return out
}

func TestLoadStopsOnShortPage(t *testing.T) {
	source := &sliceSource{records: mapped(2500)}
	loader := NewLoader(source, DefaultPageSize, zap.NewNop())

	lines, err := loader.Load(context.Background(), domain.Filter{OrgID: 1})
	require.NoError(t, err)
	assert.Len(t, lines, 2500)
	assert.Equal(t, 3, source.calls)
	assert.Equal(t, snowflake.ID(2500), lines[2499].ID)
}

func TestLoadStopsOnEmptyPage(t *testing.T) {
	source := &sliceSource{records: mapped(2000)}
	loader := NewLoader(source, 1000, nil)

	lines, err := loader.Load(context.Background(), domain.Filter{OrgID: 1})
	require.NoError(t, err)
	assert.Len(t, lines, 2000)
	assert.Equal(t, 3, source.calls)
}

func TestLoadPropagatesFetchError(t *testing.T) {
	source := &sliceSource{records: mapped(2500), failAt: 2}
	loader := NewLoader(source, 1000, nil)

	lines, err := loader.Load(context.Background(), domain.Filter{OrgID: 7})
	assert.Nil(t, lines)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, 2, fetchErr.Page)
	assert.Equal(t, snowflake.ID(7), fetchErr.Filter.OrgID)
	assert.Equal(t, 2, source.calls)
}

func TestLoadHonoursCancellation(t *testing.T) {
	source := &sliceSource{records: mapped(10)}
	loader := NewLoader(source, 5, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := loader.Load(ctx, domain.Filter{OrgID: 1})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, source.calls)
}

func TestLoadDropsUnmappedLocationsWithoutLocationFilter(t *testing.T) {
	records := mapped(3)
	records[1].LocationID = nil
	source := &sliceSource{records: records}
	loader := NewLoader(source, 10, nil)

	lines, err := loader.Load(context.Background(), domain.Filter{OrgID: 1})
	require.NoError(t, err)
	assert.Len(t, lines, 2)

	source.calls = 0
	lines, err = loader.Load(context.Background(), domain.Filter{OrgID: 1, LocationIDs: []string{"loc-1"}})
	require.NoError(t, err)
	assert.Len(t, lines, 3)
}
