package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/fuelsync/fuelsync/internal/keys"
	"github.com/fuelsync/fuelsync/internal/kv"
	"github.com/fuelsync/fuelsync/internal/model"
)

// Record timestamps must fall in [MinRecordTime, MaxRecordTime]. Below the
// Unix epoch no ULID exists; past year 9999 the sort-key layout stops ordering.
var (
	MinRecordTime = time.Unix(0, 0).UTC()
	MaxRecordTime = time.Date(9999, 12, 31, 23, 59, 59, 999_000_000, time.UTC)
)

// ErrRecordTimeRange reports a record timestamp outside the storable range.
var ErrRecordTimeRange = errors.New("record timestamp out of range")

// ValidRecordTime reports whether ts can be keyed.
func ValidRecordTime(ts time.Time) bool {
	return !ts.Before(MinRecordTime) && !ts.After(MaxRecordTime)
}

// NewRecordID mints a child id ordered by the record timestamp.
// The sort key of a record can be rebuilt from this id alone.
func NewRecordID(ts time.Time) (string, error) {
	if !ValidRecordTime(ts) {
		return "", fmt.Errorf("%w: %s", ErrRecordTimeRange, ts.Format(time.RFC3339Nano))
	}
	id, err := ulid.New(ulid.Timestamp(ts), ulid.DefaultEntropy())
	if err != nil {
		return "", fmt.Errorf("mint record id: %w", err)
	}
	return id.String(), nil
}

// RecordQuery selects records of one vehicle.
type RecordQuery struct {
	VehicleID string
	Token     string
	Limit     int
}

// CreateRefill stores a new refill.
func (r *Repository) CreateRefill(ctx context.Context, f *model.Refill) error {
	return put(ctx, r.store, keys.Child(f.VehicleID, keys.Refill, f.Timestamp, f.ID), f, kv.MustNotExist)
}

// GetRefill returns a refill of a vehicle or ErrNotFound.
func (r *Repository) GetRefill(ctx context.Context, vehicleID, refillID string) (*model.Refill, error) {
	_, item, err := r.locate(ctx, vehicleID, keys.Refill, refillID, "refillId")
	if err != nil {
		return nil, err
	}
	var f model.Refill
	if err := unmarshalItem(item, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// ReplaceRefill overwrites an existing refill. The timestamp must be unchanged.
func (r *Repository) ReplaceRefill(ctx context.Context, f *model.Refill) error {
	key, _, err := r.locate(ctx, f.VehicleID, keys.Refill, f.ID, "refillId")
	if err != nil {
		return err
	}
	return put(ctx, r.store, key, f, kv.MustExist)
}

// DeleteRefill removes a refill. Returns ErrNotFound if it is already gone.
func (r *Repository) DeleteRefill(ctx context.Context, vehicleID, refillID string) error {
	return r.deleteRecord(ctx, vehicleID, keys.Refill, refillID, "refillId")
}

// ListRefills returns one page of a vehicle's refills, newest first.
func (r *Repository) ListRefills(ctx context.Context, q RecordQuery) (Page[model.Refill], error) {
	return list[model.Refill](ctx, r.store, recordQuery(q.VehicleID, keys.Refill, q.Limit), q.Token)
}

// AllRefills returns every refill of a vehicle, newest first.
func (r *Repository) AllRefills(ctx context.Context, vehicleID string) ([]model.Refill, error) {
	return all[model.Refill](ctx, r.store, recordQuery(vehicleID, keys.Refill, 0))
}

// CreateExpense stores a new expense.
func (r *Repository) CreateExpense(ctx context.Context, e *model.Expense) error {
	return put(ctx, r.store, keys.Child(e.VehicleID, keys.Expense, e.Timestamp, e.ID), e, kv.MustNotExist)
}

// GetExpense returns an expense of a vehicle or ErrNotFound.
func (r *Repository) GetExpense(ctx context.Context, vehicleID, expenseID string) (*model.Expense, error) {
	_, item, err := r.locate(ctx, vehicleID, keys.Expense, expenseID, "expenseId")
	if err != nil {
		return nil, err
	}
	var e model.Expense
	if err := unmarshalItem(item, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// ReplaceExpense overwrites an existing expense. The timestamp must be unchanged.
func (r *Repository) ReplaceExpense(ctx context.Context, e *model.Expense) error {
	key, _, err := r.locate(ctx, e.VehicleID, keys.Expense, e.ID, "expenseId")
	if err != nil {
		return err
	}
	return put(ctx, r.store, key, e, kv.MustExist)
}

// DeleteExpense removes an expense. Returns ErrNotFound if it is already gone.
func (r *Repository) DeleteExpense(ctx context.Context, vehicleID, expenseID string) error {
	return r.deleteRecord(ctx, vehicleID, keys.Expense, expenseID, "expenseId")
}

// ListExpenses returns one page of a vehicle's expenses, newest first.
func (r *Repository) ListExpenses(ctx context.Context, q RecordQuery) (Page[model.Expense], error) {
	return list[model.Expense](ctx, r.store, recordQuery(q.VehicleID, keys.Expense, q.Limit), q.Token)
}

// AllExpenses returns every expense of a vehicle, newest first.
func (r *Repository) AllExpenses(ctx context.Context, vehicleID string) ([]model.Expense, error) {
	return all[model.Expense](ctx, r.store, recordQuery(vehicleID, keys.Expense, 0))
}

func recordQuery(vehicleID string, kind keys.Kind, limit int) kv.Query {
	return kv.Query{
		Partition: keys.VehiclePartition(vehicleID),
		Prefix:    kind.Prefix(),
		Reverse:   true,
		Limit:     limit,
	}
}

func (r *Repository) deleteRecord(ctx context.Context, vehicleID string, kind keys.Kind, id, idAttr string) error {
	key, _, err := r.locate(ctx, vehicleID, kind, id, idAttr)
	if err != nil {
		return err
	}
	err = r.store.Delete(ctx, key, kv.MustExist)
	if errors.Is(err, kv.ErrConditionFailed) {
		return ErrNotFound
	}
	return err
}

// locate finds a record by id. Ids minted by NewRecordID resolve with a point
// read; other ids (imported data) fall back to scanning the vehicle's records of that kind.
func (r *Repository) locate(ctx context.Context, vehicleID string, kind keys.Kind, id, idAttr string) (kv.Key, kv.Item, error) {
	if parsed, err := ulid.ParseStrict(id); err == nil {
		key := keys.Child(vehicleID, kind, ulid.Time(parsed.Time()), id)
		item, err := r.store.Get(ctx, key)
		if errors.Is(err, kv.ErrNotFound) {
			return kv.Key{}, nil, ErrNotFound
		}
		if err != nil {
			return kv.Key{}, nil, err
		}
		return key, item, nil
	}

	var (
		found kv.Item
		stop  = errors.New("found")
	)
	err := scan(ctx, r.store, recordQuery(vehicleID, kind, 0), func(item kv.Item) error {
		if item[idAttr] == id {
			found = item
			return stop
		}
		return nil
	})
	if err != nil && !errors.Is(err, stop) {
		return kv.Key{}, nil, err
	}
	if found == nil {
		return kv.Key{}, nil, ErrNotFound
	}
	key, err := found.Key()
	return key, found, err
}
