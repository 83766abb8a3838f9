package earnings

import (
	"context"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/earnings-engine/generic"
)

// =============================================================================
// SUMMARY
// =============================================================================

// Totals aggregates the records of one period.
type Totals struct {
	TotalEarnings      decimal.Decimal
	ProductCommissions decimal.Decimal
	ServiceRevenue     decimal.Decimal
	OrderRevenue       decimal.Decimal
	BundlesSold        int
}

func totalsOf(recs []Record) Totals {
	t := Totals{
		TotalEarnings:      decimal.Zero,
		ProductCommissions: decimal.Zero,
		ServiceRevenue:     decimal.Zero,
		OrderRevenue:       decimal.Zero,
	}
	for _, r := range recs {
		t.TotalEarnings = t.TotalEarnings.Add(r.TotalEarnings)
		t.ProductCommissions = t.ProductCommissions.Add(r.ProductCommission)
		t.ServiceRevenue = t.ServiceRevenue.Add(r.ServiceRevenue)
		t.OrderRevenue = t.OrderRevenue.Add(r.OrderTotal)
		t.BundlesSold++
	}
	return t
}

// Change is the percentage change of each total versus the previous period.
type Change struct {
	TotalEarnings      decimal.Decimal
	ProductCommissions decimal.Decimal
	ServiceRevenue     decimal.Decimal
	BundlesSold        decimal.Decimal
}

type Summary struct {
	TrainerID string
	Period    generic.Period
	Totals

	// Previous and Change are nil for all-time periods.
	PreviousPeriod *generic.Period
	Previous       *Totals
	Change         *Change
}

// Summary aggregates the trainer's earnings over p and compares them with
// the preceding period of equal length. Store failures degrade to zeros.
func (l *Ledger) Summary(ctx context.Context, trainerID string, p generic.Period) Summary {
	s := Summary{TrainerID: trainerID, Period: p, Totals: totalsOf(l.list(ctx, trainerID, p))}

	prev, ok := p.Previous()
	if !ok {
		return s
	}
	pt := totalsOf(l.list(ctx, trainerID, prev))
	s.PreviousPeriod = &prev
	s.Previous = &pt
	s.Change = &Change{
		TotalEarnings:      generic.PercentChange(s.TotalEarnings, pt.TotalEarnings),
		ProductCommissions: generic.PercentChange(s.ProductCommissions, pt.ProductCommissions),
		ServiceRevenue:     generic.PercentChange(s.ServiceRevenue, pt.ServiceRevenue),
		BundlesSold: generic.PercentChange(
			decimal.NewFromInt(int64(s.BundlesSold)),
			decimal.NewFromInt(int64(pt.BundlesSold)),
		),
	}
	return s
}

func (l *Ledger) list(ctx context.Context, trainerID string, p generic.Period) []Record {
	recs, err := l.Store.ListEarnings(ctx, trainerID, p.Start, p.End)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).
			Str("trainer_id", trainerID).
			Str("period", p.String()).
			Msg("earnings query degraded to empty result")
		return nil
	}
	return recs
}

// =============================================================================
// BREAKDOWN
// =============================================================================

type ServiceShare struct {
	Name     string
	Quantity int
	Revenue  decimal.Decimal
	Percent  decimal.Decimal // of total service revenue
}

type ProductShare struct {
	ProductID  string
	Name       string
	Quantity   int
	Sales      decimal.Decimal
	Commission decimal.Decimal
	Percent    decimal.Decimal // of total product commission
}

type DayTotals struct {
	Date              string
	ProductCommission decimal.Decimal
	ServiceRevenue    decimal.Decimal
	Total             decimal.Decimal
}

type Breakdown struct {
	TrainerID string
	Period    generic.Period
	ByService []ServiceShare
	ByProduct []ProductShare
	ByDay     []DayTotals
}

// Breakdown groups the period's earnings by service, by product and by day.
// Calendar periods list every day, including empty ones; all-time periods
// list only days with earnings.
func (l *Ledger) Breakdown(ctx context.Context, trainerID string, p generic.Period) Breakdown {
	recs := l.list(ctx, trainerID, p)
	out := Breakdown{TrainerID: trainerID, Period: p}

	services := map[string]*ServiceShare{}
	products := map[string]*ProductShare{}
	days := map[string]*DayTotals{}
	serviceTotal, productTotal := decimal.Zero, decimal.Zero

	day := func(key string) *DayTotals {
		d, ok := days[key]
		if !ok {
			d = &DayTotals{Date: key, ProductCommission: decimal.Zero, ServiceRevenue: decimal.Zero, Total: decimal.Zero}
			days[key] = d
		}
		return d
	}
	for _, d := range p.Days() {
		day(generic.DateString(d))
	}

	for _, r := range recs {
		d := day(generic.DateString(r.CreatedAt))
		d.ProductCommission = d.ProductCommission.Add(r.ProductCommission)
		d.ServiceRevenue = d.ServiceRevenue.Add(r.ServiceRevenue)
		d.Total = d.Total.Add(r.TotalEarnings)

		for _, line := range r.Lines {
			switch line.Type {
			case LineService:
				s, ok := services[line.Name]
				if !ok {
					s = &ServiceShare{Name: line.Name, Revenue: decimal.Zero}
					services[line.Name] = s
				}
				s.Quantity += line.Quantity
				s.Revenue = s.Revenue.Add(line.Earnings)
				serviceTotal = serviceTotal.Add(line.Earnings)
			case LineProduct:
				ps, ok := products[line.ProductID]
				if !ok {
					ps = &ProductShare{ProductID: line.ProductID, Name: line.Name, Sales: decimal.Zero, Commission: decimal.Zero}
					products[line.ProductID] = ps
				}
				ps.Quantity += line.Quantity
				ps.Sales = ps.Sales.Add(line.Amount)
				ps.Commission = ps.Commission.Add(line.Earnings)
				productTotal = productTotal.Add(line.Earnings)
			}
		}
	}

	for _, s := range services {
		s.Percent = generic.PercentOf(s.Revenue, serviceTotal)
		out.ByService = append(out.ByService, *s)
	}
	sort.Slice(out.ByService, func(i, j int) bool {
		if !out.ByService[i].Revenue.Equal(out.ByService[j].Revenue) {
			return out.ByService[i].Revenue.GreaterThan(out.ByService[j].Revenue)
		}
		return out.ByService[i].Name < out.ByService[j].Name
	})

	for _, ps := range products {
		ps.Percent = generic.PercentOf(ps.Commission, productTotal)
		out.ByProduct = append(out.ByProduct, *ps)
	}
	sort.Slice(out.ByProduct, func(i, j int) bool {
		if !out.ByProduct[i].Commission.Equal(out.ByProduct[j].Commission) {
			return out.ByProduct[i].Commission.GreaterThan(out.ByProduct[j].Commission)
		}
		return out.ByProduct[i].ProductID < out.ByProduct[j].ProductID
	})

	for _, d := range days {
		out.ByDay = append(out.ByDay, *d)
	}
	sort.Slice(out.ByDay, func(i, j int) bool { return out.ByDay[i].Date < out.ByDay[j].Date })
	return out
}

// =============================================================================
// HISTORY
// =============================================================================

// History pages the trainer's records newest first.
func (l *Ledger) History(ctx context.Context, trainerID string, limit, offset int) ([]Record, int) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	recs, total, err := l.Store.PageEarnings(ctx, trainerID, limit, offset)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("trainer_id", trainerID).Msg("earnings history degraded")
		return []Record{}, 0
	}
	return recs, total
}
