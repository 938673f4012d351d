// Package cascade deletes a vehicle together with every refill and expense stored under it.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fuelsync/fuelsync/internal/keys"
	"github.com/fuelsync/fuelsync/internal/kv"
	"github.com/fuelsync/fuelsync/internal/metrics"
)

// DefaultBatchSize is the number of keys per BatchDelete call.
const DefaultBatchSize = kv.MaxBatchSize

// ErrVehicleNotFound is returned when the vehicle item does not exist.
var ErrVehicleNotFound = errors.New("vehicle not found")

// IncompleteError reports a cascade that stopped after the vehicle was deleted
// but before all of its children were. Chunks deleted before the failure stay deleted.
type IncompleteError struct {
	VehicleID string
	Deleted   int
	Remaining int
	Err       error
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("cascade delete of vehicle %s incomplete: %d deleted, %d remaining: %v",
		e.VehicleID, e.Deleted, e.Remaining, e.Err)
}

func (e *IncompleteError) Unwrap() error {
	return e.Err
}

// Result summarizes a completed cascade.
type Result struct {
	Children int
	Batches  int
	// Transactional is set when parent and children went in one transaction.
	Transactional bool
}

// Options configures a Planner.
type Options struct {
	// BatchSize is clamped to [1, kv.MaxBatchSize].
	BatchSize int
	Logger    *slog.Logger
	Metrics   metrics.Recorder
}

// Planner runs cascade deletes against a store.
type Planner struct {
	store   kv.Store
	batch   int
	logger  *slog.Logger
	metrics metrics.Recorder
}

// New creates a Planner.
func New(store kv.Store, opts Options) *Planner {
	if opts.BatchSize <= 0 || opts.BatchSize > kv.MaxBatchSize {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Planner{
		store:   store,
		batch:   opts.BatchSize,
		logger:  opts.Logger.With("component", "cascade"),
		metrics: metrics.OrNoop(opts.Metrics),
	}
}

// DeleteVehicle deletes the vehicle and then its children.
//
// If the vehicle does not exist it returns ErrVehicleNotFound without touching children.
// A failure after the vehicle is gone is reported as *IncompleteError; PurgeChildren
// finishes the job.
func (p *Planner) DeleteVehicle(ctx context.Context, ownerID, vehicleID string) (Result, error) {
	parent := keys.Vehicle(ownerID, vehicleID)

	if tx, ok := p.store.(kv.TxDeleter); ok {
		res, handled, err := p.deleteTx(ctx, tx, parent, vehicleID)
		if handled {
			return res, err
		}
	}

	err := p.store.Delete(ctx, parent, kv.MustExist)
	if errors.Is(err, kv.ErrConditionFailed) {
		p.metrics.IncCascadeRun("not_found")
		return Result{}, ErrVehicleNotFound
	}
	if err != nil {
		p.metrics.IncCascadeRun("failure")
		return Result{}, fmt.Errorf("failed to delete vehicle: %w", err)
	}

	return p.PurgeChildren(ctx, vehicleID)
}

// deleteTx runs the transactional path. handled is false when the children do
// not fit one transaction and the batched path must be used instead.
func (p *Planner) deleteTx(ctx context.Context, tx kv.TxDeleter, parent kv.Key, vehicleID string) (Result, bool, error) {
	children, err := p.childKeys(ctx, vehicleID)
	if err != nil {
		p.metrics.IncCascadeRun("failure")
		return Result{}, true, err
	}
	if 1+len(children) > tx.TxLimit() {
		return Result{}, false, nil
	}

	err = tx.DeleteTx(ctx, parent, children)
	if errors.Is(err, kv.ErrConditionFailed) {
		p.metrics.IncCascadeRun("not_found")
		return Result{}, true, ErrVehicleNotFound
	}
	if err != nil {
		p.metrics.IncCascadeRun("failure")
		return Result{}, true, fmt.Errorf("failed to delete vehicle: %w", err)
	}

	p.metrics.IncCascadeRun("success")
	p.metrics.ObserveCascadeChildren(len(children))
	p.logger.Info("vehicle_deleted",
		"vehicle_id", vehicleID,
		"children", len(children),
		"transactional", true,
	)
	return Result{Children: len(children), Batches: 1, Transactional: true}, true, nil
}

// PurgeChildren deletes every item in the vehicle's partition. It is safe to
// run repeatedly; a partition that is already empty is a no-op.
func (p *Planner) PurgeChildren(ctx context.Context, vehicleID string) (Result, error) {
	children, err := p.childKeys(ctx, vehicleID)
	if err != nil {
		p.metrics.IncCascadeRun("incomplete")
		return Result{}, &IncompleteError{VehicleID: vehicleID, Err: err}
	}

	var res Result
	for _, chunk := range kv.Chunk(children, p.batch) {
		if err := p.store.BatchDelete(ctx, chunk); err != nil {
			p.metrics.IncCascadeRun("incomplete")
			p.logger.Warn("cascade_incomplete",
				"vehicle_id", vehicleID,
				"deleted", res.Children,
				"remaining", len(children)-res.Children,
				"error", err,
			)
			return res, &IncompleteError{
				VehicleID: vehicleID,
				Deleted:   res.Children,
				Remaining: len(children) - res.Children,
				Err:       err,
			}
		}
		p.metrics.IncCascadeBatch()
		res.Batches++
		res.Children += len(chunk)
	}

	p.metrics.IncCascadeRun("success")
	p.metrics.ObserveCascadeChildren(res.Children)
	p.logger.Info("vehicle_children_deleted",
		"vehicle_id", vehicleID,
		"children", res.Children,
		"batches", res.Batches,
	)
	return res, nil
}

// childKeys pages through the whole vehicle partition.
func (p *Planner) childKeys(ctx context.Context, vehicleID string) ([]kv.Key, error) {
	q := kv.Query{Partition: keys.VehiclePartition(vehicleID)}
	var out []kv.Key
	for {
		page, err := p.store.Query(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("failed to list children: %w", err)
		}
		for _, item := range page.Items {
			key, err := item.Key()
			if err != nil {
				return nil, err
			}
			out = append(out, key)
		}
		if page.Next == nil {
			return out, nil
		}
		q.After = page.Next
	}
}
