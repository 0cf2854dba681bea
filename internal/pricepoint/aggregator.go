package pricepoint

import (
	"sort"
	"strings"

	"github.com/smallbiznis/pricewatch/internal/purchasing/domain"
	"go.uber.org/zap"
)

var DefaultCreditMarkers = []string{"credit", "kreditnota"}

// Aggregation is the output of one aggregation pass.
// Variation excludes credit notes; Exposure keeps them with inverted prices.
type Aggregation struct {
	Variation []ProductSeries
	Exposure  []ProductSeries
	Skipped   int
}

type Aggregator struct {
	creditMarkers []string
	log           *zap.Logger
}

func NewAggregator(creditMarkers []string, log *zap.Logger) *Aggregator {
	markers := make([]string, 0, len(creditMarkers))
	for _, marker := range creditMarkers {
		if marker = strings.ToLower(strings.TrimSpace(marker)); marker != "" {
			markers = append(markers, marker)
		}
	}
	if len(markers) == 0 {
		markers = DefaultCreditMarkers
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{creditMarkers: markers, log: log.Named("pricepoint.aggregator")}
}

// IsCredit reports whether the document type names a credit note.
func (a *Aggregator) IsCredit(documentType string) bool {
	value := strings.ToLower(documentType)
	for _, marker := range a.creditMarkers {
		if strings.Contains(value, marker) {
			return true
		}
	}
	return false
}

func (a *Aggregator) Aggregate(lines []domain.InvoiceLine) Aggregation {
	variation := newBuilder()
	exposure := newBuilder()
	skipped := 0

	for _, line := range lines {
		key := SeriesKey{
			Product:  line.ProductIdentity(),
			Supplier: strings.TrimSpace(line.SupplierID),
			UnitType: strings.TrimSpace(line.UnitType),
		}
		if key.Product == "" || key.Supplier == "" {
			skipped++
			a.log.Warn("skipping invoice line without identity",
				zap.String("line_id", line.ID.String()),
				zap.Bool("missing_product", key.Product == ""),
				zap.Bool("missing_supplier", key.Supplier == ""),
				zap.Error(domain.ErrMalformedRecord),
			)
			continue
		}

		point := PricePoint{
			Price:    line.EffectivePrice(),
			Quantity: line.Quantity,
			Date:     Day(line.TransactionDate),
			LineID:   line.ID,
		}
		if line.LocationID != nil {
			point.LocationID = *line.LocationID
		}

		if a.IsCredit(line.DocumentType) {
			point.Credit = true
			point.Price = point.Price.Abs().Neg()
			point.Quantity = point.Quantity.Abs()
			exposure.add(key, line.SupplierName, point)
			continue
		}

		variation.add(key, line.SupplierName, point)
		exposure.add(key, line.SupplierName, point)
	}

	return Aggregation{
		Variation: variation.build(),
		Exposure:  exposure.build(),
		Skipped:   skipped,
	}
}

type builder struct {
	series map[SeriesKey]*ProductSeries
}

func newBuilder() *builder {
	return &builder{series: make(map[SeriesKey]*ProductSeries)}
}

func (b *builder) add(key SeriesKey, supplierName string, point PricePoint) {
	s, ok := b.series[key]
	if !ok {
		s = &ProductSeries{Key: key}
		b.series[key] = s
	}
	if s.SupplierName == "" {
		s.SupplierName = strings.TrimSpace(supplierName)
	}
	s.Points = append(s.Points, point)
}

func (b *builder) build() []ProductSeries {
	out := make([]ProductSeries, 0, len(b.series))
	for _, s := range b.series {
		s.Groups = groupByDate(s.Points)
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.Less(out[j].Key)
	})
	return out
}

func groupByDate(points []PricePoint) []DateGroup {
	index := make(map[int64]int)
	groups := make([]DateGroup, 0)
	for _, p := range points {
		k := p.Date.Unix()
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, DateGroup{Date: p.Date})
		}
		groups[i].Points = append(groups[i].Points, p)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Date.Before(groups[j].Date)
	})
	return groups
}
