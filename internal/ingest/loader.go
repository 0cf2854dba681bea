package ingest

import (
	"context"
	"fmt"

	"github.com/smallbiznis/pricewatch/internal/purchasing/domain"
	"go.uber.org/zap"
)

const DefaultPageSize = 1000

// FetchError reports a failed page request. No partial dataset accompanies it.
type FetchError struct {
	Filter domain.Filter
	Page   int
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch invoice lines page %d (org %s): %v", e.Page, e.Filter.OrgID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Loader drives paginated retrieval until the source is exhausted.
type Loader struct {
	source   domain.RecordSource
	pageSize int
	log      *zap.Logger
}

func NewLoader(source domain.RecordSource, pageSize int, log *zap.Logger) *Loader {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{
		source:   source,
		pageSize: pageSize,
		log:      log.Named("ingest.loader"),
	}
}

// Load returns every invoice line matching filter in source order.
func (l *Loader) Load(ctx context.Context, filter domain.Filter) ([]domain.InvoiceLine, error) {
	var (
		lines   []domain.InvoiceLine
		after   string
		dropped int
	)
	mappedOnly := len(filter.Normalize().LocationIDs) == 0

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, &FetchError{Filter: filter, Page: page, Err: err}
		}

		result, err := l.source.FetchPage(ctx, filter, l.pageSize, after)
		if err != nil {
			return nil, &FetchError{Filter: filter, Page: page, Err: err}
		}

		for _, rec := range result.Records {
			if mappedOnly && rec.LocationID == nil {
				dropped++
				continue
			}
			lines = append(lines, rec)
		}

		if len(result.Records) < l.pageSize || result.Next == "" {
			l.log.Debug("ingest complete",
				zap.Int("pages", page),
				zap.Int("lines", len(lines)),
				zap.Int("unmapped_location_dropped", dropped),
			)
			return lines, nil
		}
		after = result.Next
	}
}
