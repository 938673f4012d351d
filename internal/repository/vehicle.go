package repository

import (
	"context"

	"github.com/fuelsync/fuelsync/internal/keys"
	"github.com/fuelsync/fuelsync/internal/kv"
	"github.com/fuelsync/fuelsync/internal/model"
)

// CreateVehicle stores a new vehicle.
func (r *Repository) CreateVehicle(ctx context.Context, v *model.Vehicle) error {
	return put(ctx, r.store, keys.Vehicle(v.OwnerID, v.ID), v, kv.MustNotExist)
}

// GetVehicle returns an owner's vehicle or ErrNotFound.
// Vehicles of other owners are never found.
func (r *Repository) GetVehicle(ctx context.Context, ownerID, vehicleID string) (*model.Vehicle, error) {
	return get[model.Vehicle](ctx, r.store, keys.Vehicle(ownerID, vehicleID))
}

// UpdateVehicle sets attributes on an existing vehicle.
func (r *Repository) UpdateVehicle(ctx context.Context, ownerID, vehicleID string, set map[string]any) (*model.Vehicle, error) {
	return update[model.Vehicle](ctx, r.store, keys.Vehicle(ownerID, vehicleID), set)
}

// ListVehicles returns one page of an owner's vehicles.
func (r *Repository) ListVehicles(ctx context.Context, ownerID, token string, limit int) (Page[model.Vehicle], error) {
	return list[model.Vehicle](ctx, r.store, kv.Query{
		Partition: keys.OwnerPartition(ownerID),
		Prefix:    keys.VehiclePrefix,
		Limit:     limit,
	}, token)
}

// AllVehicles returns every vehicle of an owner.
func (r *Repository) AllVehicles(ctx context.Context, ownerID string) ([]model.Vehicle, error) {
	return all[model.Vehicle](ctx, r.store, kv.Query{
		Partition: keys.OwnerPartition(ownerID),
		Prefix:    keys.VehiclePrefix,
	})
}
