package service

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/fuelsync/fuelsync/internal/currency"
	"github.com/fuelsync/fuelsync/internal/model"
	"github.com/fuelsync/fuelsync/internal/repository"
)

const (
	maxStationLength     = 128
	maxCommentLength     = 1000
	maxDescriptionLength = 1000
)

// RefillInput defines input for creating or updating a refill.
// On update, nil fields keep their stored value.
type RefillInput struct {
	Timestamp    *time.Time
	Odometer     *float64
	Volume       *float64
	PricePerUnit *float64
	TotalCost    *float64
	Currency     *string
	FuelType     *model.FuelType
	Station      *string
	Comment      *string
}

// ExpenseInput defines input for creating or updating an expense.
type ExpenseInput struct {
	Timestamp     *time.Time
	Category      *model.ExpenseCategory
	Amount        *float64
	Currency      *string
	Odometer      *float64
	Description   *string
	TaxDeductible *bool
}

// ListQuery selects one page of a vehicle's records.
type ListQuery struct {
	Token string
	Limit int
}

// CreateRefill records a fuel purchase on one of the owner's vehicles.
// Its cost is normalized to the base currency as of the refill timestamp.
func (s *Service) CreateRefill(ctx context.Context, ownerID, vehicleID string, in RefillInput) (*model.Refill, error) {
	v, err := s.vehicleOf(ctx, ownerID, vehicleID)
	if err != nil {
		return nil, err
	}
	if in.Volume == nil {
		return nil, invalid("volume", "required")
	}
	if in.PricePerUnit == nil {
		return nil, invalid("pricePerUnit", "required")
	}

	now := s.clock()
	f := &model.Refill{
		VehicleID: v.ID,
		OwnerID:   ownerID,
		Timestamp: now,
		FuelType:  v.FuelType,
		Money:     model.Money{Currency: s.rates.Base()},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := applyRefillInput(f, in, true); err != nil {
		return nil, err
	}
	id, err := repository.NewRecordID(f.Timestamp)
	if err != nil {
		return nil, invalid("timestamp", "out of range")
	}
	f.ID = id
	f.Money = s.rates.Normalize(ctx, f.TotalCost, f.Currency, f.Timestamp).Money()

	if err := s.repo.CreateRefill(ctx, f); err != nil {
		return nil, storeError(err, ErrUpstreamUnavailable)
	}
	s.metrics.IncEntityCreated("refill")
	return f, nil
}

// GetRefill returns a refill of one of the owner's vehicles.
func (s *Service) GetRefill(ctx context.Context, ownerID, vehicleID, refillID string) (*model.Refill, error) {
	if _, err := s.vehicleOf(ctx, ownerID, vehicleID); err != nil {
		return nil, err
	}
	if err := validateID("refillId", refillID); err != nil {
		return nil, err
	}
	f, err := s.repo.GetRefill(ctx, vehicleID, refillID)
	if err != nil {
		return nil, storeError(err, ErrRefillNotFound)
	}
	return f, nil
}

// ListRefills returns one page of refills, newest first.
func (s *Service) ListRefills(ctx context.Context, ownerID, vehicleID string, q ListQuery) (repository.Page[model.Refill], error) {
	if _, err := s.vehicleOf(ctx, ownerID, vehicleID); err != nil {
		return repository.Page[model.Refill]{}, err
	}
	page, err := s.repo.ListRefills(ctx, repository.RecordQuery{VehicleID: vehicleID, Token: q.Token, Limit: q.Limit})
	if err != nil {
		return repository.Page[model.Refill]{}, storeError(err, ErrVehicleNotFound)
	}
	return page, nil
}

// UpdateRefill changes a refill and renormalizes its cost at the refill's own date.
// The timestamp is part of the key and cannot change.
func (s *Service) UpdateRefill(ctx context.Context, ownerID, vehicleID, refillID string, in RefillInput) (*model.Refill, error) {
	f, err := s.GetRefill(ctx, ownerID, vehicleID, refillID)
	if err != nil {
		return nil, err
	}
	if in.Timestamp != nil && !in.Timestamp.UTC().Truncate(time.Millisecond).Equal(f.Timestamp) {
		return nil, invalid("timestamp", "cannot be changed")
	}
	if err := applyRefillInput(f, in, false); err != nil {
		return nil, err
	}
	f.Money = s.rates.Normalize(ctx, f.TotalCost, f.Currency, f.Timestamp).Money()
	f.UpdatedAt = s.clock()

	if err := s.repo.ReplaceRefill(ctx, f); err != nil {
		return nil, storeError(err, ErrRefillNotFound)
	}
	s.metrics.IncEntityUpdated("refill")
	return f, nil
}

// DeleteRefill removes a refill.
func (s *Service) DeleteRefill(ctx context.Context, ownerID, vehicleID, refillID string) error {
	if _, err := s.vehicleOf(ctx, ownerID, vehicleID); err != nil {
		return err
	}
	if err := validateID("refillId", refillID); err != nil {
		return err
	}
	if err := s.repo.DeleteRefill(ctx, vehicleID, refillID); err != nil {
		return storeError(err, ErrRefillNotFound)
	}
	s.metrics.IncEntityDeleted("refill")
	return nil
}

// applyRefillInput copies in onto f. On create the timestamp is taken as given.
func applyRefillInput(f *model.Refill, in RefillInput, create bool) error {
	if create && in.Timestamp != nil {
		ts, err := recordTime(*in.Timestamp)
		if err != nil {
			return err
		}
		f.Timestamp = ts
	}
	if in.Odometer != nil {
		if !nonNegative(*in.Odometer) {
			return invalid("odometer", "must be a non-negative number")
		}
		f.Odometer = *in.Odometer
	}
	if in.Volume != nil {
		if !nonNegative(*in.Volume) || *in.Volume == 0 {
			return invalid("volume", "must be greater than zero")
		}
		f.Volume = *in.Volume
	}
	if in.PricePerUnit != nil {
		if !nonNegative(*in.PricePerUnit) {
			return invalid("pricePerUnit", "must be a non-negative number")
		}
		f.PricePerUnit = *in.PricePerUnit
	}
	switch {
	case in.TotalCost != nil && *in.TotalCost != 0:
		if !nonNegative(*in.TotalCost) {
			return invalid("totalCost", "must be a non-negative number")
		}
		f.TotalCost = *in.TotalCost
	case in.TotalCost != nil || in.Volume != nil || in.PricePerUnit != nil:
		f.TotalCost = currency.RoundAmount(f.Volume * f.PricePerUnit)
	}
	if in.Currency != nil {
		c, err := currencyCode("currency", *in.Currency)
		if err != nil {
			return err
		}
		f.Currency = c
	}
	if in.FuelType != nil {
		if !in.FuelType.IsValid() {
			return invalid("fuelType", "unknown fuel type")
		}
		f.FuelType = *in.FuelType
	}
	if in.Station != nil {
		if len(*in.Station) > maxStationLength {
			return invalid("station", "too long")
		}
		f.Station = strings.TrimSpace(*in.Station)
	}
	if in.Comment != nil {
		if len(*in.Comment) > maxCommentLength {
			return invalid("comment", "too long")
		}
		f.Comment = *in.Comment
	}
	return nil
}

// CreateExpense records a non-fuel cost on one of the owner's vehicles.
func (s *Service) CreateExpense(ctx context.Context, ownerID, vehicleID string, in ExpenseInput) (*model.Expense, error) {
	v, err := s.vehicleOf(ctx, ownerID, vehicleID)
	if err != nil {
		return nil, err
	}
	if in.Amount == nil {
		return nil, invalid("amount", "required")
	}

	now := s.clock()
	e := &model.Expense{
		VehicleID: v.ID,
		OwnerID:   ownerID,
		Timestamp: now,
		Category:  model.CategoryOther,
		Money:     model.Money{Currency: s.rates.Base()},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := applyExpenseInput(e, in, true); err != nil {
		return nil, err
	}
	id, err := repository.NewRecordID(e.Timestamp)
	if err != nil {
		return nil, invalid("timestamp", "out of range")
	}
	e.ID = id
	e.Money = s.rates.Normalize(ctx, e.Amount, e.Currency, e.Timestamp).Money()

	if err := s.repo.CreateExpense(ctx, e); err != nil {
		return nil, storeError(err, ErrUpstreamUnavailable)
	}
	s.metrics.IncEntityCreated("expense")
	return e, nil
}

// GetExpense returns an expense of one of the owner's vehicles.
func (s *Service) GetExpense(ctx context.Context, ownerID, vehicleID, expenseID string) (*model.Expense, error) {
	if _, err := s.vehicleOf(ctx, ownerID, vehicleID); err != nil {
		return nil, err
	}
	if err := validateID("expenseId", expenseID); err != nil {
		return nil, err
	}
	e, err := s.repo.GetExpense(ctx, vehicleID, expenseID)
	if err != nil {
		return nil, storeError(err, ErrExpenseNotFound)
	}
	return e, nil
}

// ListExpenses returns one page of expenses, newest first.
func (s *Service) ListExpenses(ctx context.Context, ownerID, vehicleID string, q ListQuery) (repository.Page[model.Expense], error) {
	if _, err := s.vehicleOf(ctx, ownerID, vehicleID); err != nil {
		return repository.Page[model.Expense]{}, err
	}
	page, err := s.repo.ListExpenses(ctx, repository.RecordQuery{VehicleID: vehicleID, Token: q.Token, Limit: q.Limit})
	if err != nil {
		return repository.Page[model.Expense]{}, storeError(err, ErrVehicleNotFound)
	}
	return page, nil
}

// UpdateExpense changes an expense and renormalizes it at the expense's own date.
func (s *Service) UpdateExpense(ctx context.Context, ownerID, vehicleID, expenseID string, in ExpenseInput) (*model.Expense, error) {
	e, err := s.GetExpense(ctx, ownerID, vehicleID, expenseID)
	if err != nil {
		return nil, err
	}
	if in.Timestamp != nil && !in.Timestamp.UTC().Truncate(time.Millisecond).Equal(e.Timestamp) {
		return nil, invalid("timestamp", "cannot be changed")
	}
	if err := applyExpenseInput(e, in, false); err != nil {
		return nil, err
	}
	e.Money = s.rates.Normalize(ctx, e.Amount, e.Currency, e.Timestamp).Money()
	e.UpdatedAt = s.clock()

	if err := s.repo.ReplaceExpense(ctx, e); err != nil {
		return nil, storeError(err, ErrExpenseNotFound)
	}
	s.metrics.IncEntityUpdated("expense")
	return e, nil
}

// DeleteExpense removes an expense.
func (s *Service) DeleteExpense(ctx context.Context, ownerID, vehicleID, expenseID string) error {
	if _, err := s.vehicleOf(ctx, ownerID, vehicleID); err != nil {
		return err
	}
	if err := validateID("expenseId", expenseID); err != nil {
		return err
	}
	if err := s.repo.DeleteExpense(ctx, vehicleID, expenseID); err != nil {
		return storeError(err, ErrExpenseNotFound)
	}
	s.metrics.IncEntityDeleted("expense")
	return nil
}

func applyExpenseInput(e *model.Expense, in ExpenseInput, create bool) error {
	if create && in.Timestamp != nil {
		ts, err := recordTime(*in.Timestamp)
		if err != nil {
			return err
		}
		e.Timestamp = ts
	}
	if in.Category != nil {
		if !in.Category.IsValid() {
			return invalid("category", "unknown category")
		}
		e.Category = *in.Category
	}
	if in.Amount != nil {
		if !nonNegative(*in.Amount) {
			return invalid("amount", "must be a non-negative number")
		}
		e.Amount = *in.Amount
	}
	if in.Currency != nil {
		c, err := currencyCode("currency", *in.Currency)
		if err != nil {
			return err
		}
		e.Currency = c
	}
	if in.Odometer != nil {
		if !nonNegative(*in.Odometer) {
			return invalid("odometer", "must be a non-negative number")
		}
		odo := *in.Odometer
		e.Odometer = &odo
	}
	if in.Description != nil {
		if len(*in.Description) > maxDescriptionLength {
			return invalid("description", "too long")
		}
		e.Description = *in.Description
	}
	if in.TaxDeductible != nil {
		e.TaxDeductible = *in.TaxDeductible
	}
	return nil
}

func nonNegative(v float64) bool {
	return v >= 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

// recordTime normalizes a caller-supplied timestamp to UTC milliseconds and
// rejects instants that cannot be keyed.
func recordTime(ts time.Time) (time.Time, error) {
	if ts.IsZero() {
		return time.Time{}, invalid("timestamp", "required")
	}
	ts = ts.UTC().Truncate(time.Millisecond)
	if !repository.ValidRecordTime(ts) {
		return time.Time{}, invalid("timestamp", "out of range")
	}
	return ts, nil
}
