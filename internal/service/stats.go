package service

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fuelsync/fuelsync/internal/currency"
	"github.com/fuelsync/fuelsync/internal/keys"
	"github.com/fuelsync/fuelsync/internal/model"
	"github.com/fuelsync/fuelsync/internal/repository"
)

const (
	dashboardVehicles = 3
	dashboardRecent   = 5
	monthKeyLayout    = "2006-01"
	monthLabelLayout  = "Jan 2006"
)

// RefillStats aggregates a vehicle's refills.
type RefillStats struct {
	Count           int     `json:"count"`
	TotalCost       float64 `json:"totalCost"`
	TotalVolume     float64 `json:"totalVolume"`
	AvgPricePerUnit float64 `json:"avgPricePerUnit"`
	AvgCost         float64 `json:"avgCost"`
}

// ExpenseStats aggregates a vehicle's expenses.
type ExpenseStats struct {
	Count     int     `json:"count"`
	TotalCost float64 `json:"totalCost"`
	AvgCost   float64 `json:"avgCost"`
}

// Statistics summarizes a vehicle. Money values are in Currency, the base currency.
type Statistics struct {
	VehicleID string       `json:"vehicleId"`
	Currency  string       `json:"currency"`
	Refills   RefillStats  `json:"refills"`
	Expenses  ExpenseStats `json:"expenses"`
	Totals    struct {
		AllCosts float64 `json:"allCosts"`
	} `json:"totals"`
}

// Series is a labelled chart series.
type Series struct {
	Labels []string  `json:"labels"`
	Data   []float64 `json:"data"`
}

// CostSeries holds monthly fuel and expense costs.
type CostSeries struct {
	Labels   []string  `json:"labels"`
	Fuel     []float64 `json:"fuel"`
	Expenses []float64 `json:"expenses"`
}

// Charts holds monthly series for a vehicle, oldest month first.
type Charts struct {
	Currency        string     `json:"currency"`
	FuelConsumption Series     `json:"fuelConsumption"`
	Costs           CostSeries `json:"costs"`
}

// Dashboard is the owner's landing summary.
type Dashboard struct {
	VehicleCount   int             `json:"vehicleCount"`
	RecentRefills  []model.Refill  `json:"recentRefills"`
	RecentExpenses []model.Expense `json:"recentExpenses"`
}

// Statistics aggregates every refill and expense of a vehicle in the base currency.
func (s *Service) Statistics(ctx context.Context, ownerID, vehicleID string) (*Statistics, error) {
	refills, expenses, err := s.records(ctx, ownerID, vehicleID)
	if err != nil {
		return nil, err
	}

	st := &Statistics{VehicleID: vehicleID, Currency: s.rates.Base()}
	st.Refills.Count = len(refills)
	for _, f := range refills {
		st.Refills.TotalCost += f.BaseAmount
		st.Refills.TotalVolume += f.Volume
	}
	st.Expenses.Count = len(expenses)
	for _, e := range expenses {
		st.Expenses.TotalCost += e.BaseAmount
	}

	if st.Refills.TotalVolume > 0 {
		st.Refills.AvgPricePerUnit = currency.RoundAmount(st.Refills.TotalCost / st.Refills.TotalVolume)
	}
	if st.Refills.Count > 0 {
		st.Refills.AvgCost = currency.RoundAmount(st.Refills.TotalCost / float64(st.Refills.Count))
	}
	if st.Expenses.Count > 0 {
		st.Expenses.AvgCost = currency.RoundAmount(st.Expenses.TotalCost / float64(st.Expenses.Count))
	}
	st.Totals.AllCosts = currency.RoundAmount(st.Refills.TotalCost + st.Expenses.TotalCost)
	st.Refills.TotalCost = currency.RoundAmount(st.Refills.TotalCost)
	st.Expenses.TotalCost = currency.RoundAmount(st.Expenses.TotalCost)
	return st, nil
}

// Charts buckets a vehicle's refills and expenses by UTC calendar month.
func (s *Service) Charts(ctx context.Context, ownerID, vehicleID string) (*Charts, error) {
	refills, expenses, err := s.records(ctx, ownerID, vehicleID)
	if err != nil {
		return nil, err
	}

	type bucket struct{ volume, fuel, expenses float64 }
	months := map[string]*bucket{}
	at := func(ts time.Time) *bucket {
		k := ts.UTC().Format(monthKeyLayout)
		b, ok := months[k]
		if !ok {
			b = &bucket{}
			months[k] = b
		}
		return b
	}
	for _, f := range refills {
		b := at(f.Timestamp)
		b.volume += f.Volume
		b.fuel += f.BaseAmount
	}
	for _, e := range expenses {
		at(e.Timestamp).expenses += e.BaseAmount
	}

	order := make([]string, 0, len(months))
	for k := range months {
		order = append(order, k)
	}
	sort.Strings(order)

	c := &Charts{Currency: s.rates.Base()}
	c.FuelConsumption = Series{Labels: []string{}, Data: []float64{}}
	c.Costs = CostSeries{Labels: []string{}, Fuel: []float64{}, Expenses: []float64{}}
	for _, k := range order {
		month, _ := time.Parse(monthKeyLayout, k)
		label := month.Format(monthLabelLayout)
		b := months[k]
		c.FuelConsumption.Labels = append(c.FuelConsumption.Labels, label)
		c.FuelConsumption.Data = append(c.FuelConsumption.Data, b.volume)
		c.Costs.Labels = append(c.Costs.Labels, label)
		c.Costs.Fuel = append(c.Costs.Fuel, currency.RoundAmount(b.fuel))
		c.Costs.Expenses = append(c.Costs.Expenses, currency.RoundAmount(b.expenses))
	}
	return c, nil
}

// records loads every refill and expense of a vehicle concurrently.
func (s *Service) records(ctx context.Context, ownerID, vehicleID string) ([]model.Refill, []model.Expense, error) {
	if _, err := s.vehicleOf(ctx, ownerID, vehicleID); err != nil {
		return nil, nil, err
	}

	var (
		refills  []model.Refill
		expenses []model.Expense
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		refills, err = s.repo.AllRefills(gctx, vehicleID)
		return err
	})
	g.Go(func() error {
		var err error
		expenses, err = s.repo.AllExpenses(gctx, vehicleID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, storeError(err, ErrVehicleNotFound)
	}
	return refills, expenses, nil
}

// Dashboard returns the vehicle count and the most recent refills and
// expenses across the owner's first vehicles.
func (s *Service) Dashboard(ctx context.Context, ownerID string) (*Dashboard, error) {
	vehicles, err := s.repo.AllVehicles(ctx, ownerID)
	if err != nil {
		return nil, storeError(err, ErrUpstreamUnavailable)
	}

	sample := vehicles
	if len(sample) > dashboardVehicles {
		sample = sample[:dashboardVehicles]
	}
	refills := make([][]model.Refill, len(sample))
	expenses := make([][]model.Expense, len(sample))

	g, gctx := errgroup.WithContext(ctx)
	for i, v := range sample {
		g.Go(func() error {
			page, err := s.repo.ListRefills(gctx, repository.RecordQuery{VehicleID: v.ID, Limit: dashboardRecent})
			if err != nil {
				return err
			}
			refills[i] = page.Items
			return nil
		})
		g.Go(func() error {
			page, err := s.repo.ListExpenses(gctx, repository.RecordQuery{VehicleID: v.ID, Limit: dashboardRecent})
			if err != nil {
				return err
			}
			expenses[i] = page.Items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, storeError(err, ErrUpstreamUnavailable)
	}

	d := &Dashboard{
		VehicleCount:   len(vehicles),
		RecentRefills:  []model.Refill{},
		RecentExpenses: []model.Expense{},
	}
	for i := range sample {
		d.RecentRefills = append(d.RecentRefills, refills[i]...)
		d.RecentExpenses = append(d.RecentExpenses, expenses[i]...)
	}
	sort.SliceStable(d.RecentRefills, func(a, b int) bool {
		return d.RecentRefills[a].Timestamp.After(d.RecentRefills[b].Timestamp)
	})
	sort.SliceStable(d.RecentExpenses, func(a, b int) bool {
		return d.RecentExpenses[a].Timestamp.After(d.RecentExpenses[b].Timestamp)
	})
	if len(d.RecentRefills) > dashboardRecent {
		d.RecentRefills = d.RecentRefills[:dashboardRecent]
	}
	if len(d.RecentExpenses) > dashboardRecent {
		d.RecentExpenses = d.RecentExpenses[:dashboardRecent]
	}
	return d, nil
}

// Quote resolves the rate of code against the base currency on date (YYYY-MM-DD).
func (s *Service) Quote(ctx context.Context, code, date string) (currency.Quote, error) {
	day, err := time.Parse(keys.DateLayout, date)
	if err != nil {
		return currency.Quote{}, invalid("date", "must be YYYY-MM-DD")
	}
	c, err := currencyCode("currency", code)
	if err != nil {
		return currency.Quote{}, err
	}
	return s.rates.Rate(ctx, c, day), nil
}
