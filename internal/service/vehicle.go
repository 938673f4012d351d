package service

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/fuelsync/fuelsync/internal/cascade"
	"github.com/fuelsync/fuelsync/internal/model"
	"github.com/fuelsync/fuelsync/internal/repository"
	"github.com/fuelsync/fuelsync/internal/sweep"
)

const (
	maxVehicleTextLength = 64
	maxVINLength         = 17
	minVehicleYear       = 1886
)

// VehicleInput defines input for creating or updating a vehicle.
// On update, nil fields are left as they are.
type VehicleInput struct {
	Make         *string
	Model        *string
	Year         *int
	VIN          *string
	LicensePlate *string
	FuelType     *model.FuelType
	TankCapacity *float64
}

// CreateVehicle registers a vehicle for the owner.
func (s *Service) CreateVehicle(ctx context.Context, ownerID string, in VehicleInput) (*model.Vehicle, error) {
	if in.Make == nil || strings.TrimSpace(*in.Make) == "" {
		return nil, invalid("make", "required")
	}
	if in.Model == nil || strings.TrimSpace(*in.Model) == "" {
		return nil, invalid("model", "required")
	}
	set, err := s.vehicleFields(in)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	v := &model.Vehicle{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyVehicleFields(v, set)

	if err := s.repo.CreateVehicle(ctx, v); err != nil {
		return nil, storeError(err, ErrUpstreamUnavailable)
	}
	s.metrics.IncEntityCreated("vehicle")
	s.logger.InfoContext(ctx, "vehicle_created", "owner_id", ownerID, "vehicle_id", v.ID)
	return v, nil
}

// GetVehicle returns one of the owner's vehicles.
func (s *Service) GetVehicle(ctx context.Context, ownerID, vehicleID string) (*model.Vehicle, error) {
	if err := validateID("vehicleId", vehicleID); err != nil {
		return nil, err
	}
	v, err := s.repo.GetVehicle(ctx, ownerID, vehicleID)
	if err != nil {
		return nil, storeError(err, ErrVehicleNotFound)
	}
	return v, nil
}

// ListVehicles returns one page of the owner's vehicles.
func (s *Service) ListVehicles(ctx context.Context, ownerID, token string, limit int) (repository.Page[model.Vehicle], error) {
	page, err := s.repo.ListVehicles(ctx, ownerID, token, limit)
	if err != nil {
		return repository.Page[model.Vehicle]{}, storeError(err, ErrVehicleNotFound)
	}
	return page, nil
}

// UpdateVehicle applies a partial update.
func (s *Service) UpdateVehicle(ctx context.Context, ownerID, vehicleID string, in VehicleInput) (*model.Vehicle, error) {
	if err := validateID("vehicleId", vehicleID); err != nil {
		return nil, err
	}
	if in.Make != nil && strings.TrimSpace(*in.Make) == "" {
		return nil, invalid("make", "must not be empty")
	}
	if in.Model != nil && strings.TrimSpace(*in.Model) == "" {
		return nil, invalid("model", "must not be empty")
	}
	set, err := s.vehicleFields(in)
	if err != nil {
		return nil, err
	}
	if len(set) == 0 {
		return nil, invalid("body", "no updatable fields")
	}
	set["updatedAt"] = stamp(s.clock())

	v, err := s.repo.UpdateVehicle(ctx, ownerID, vehicleID, set)
	if err != nil {
		return nil, storeError(err, ErrVehicleNotFound)
	}
	s.metrics.IncEntityUpdated("vehicle")
	return v, nil
}

// DeleteVehicle deletes a vehicle with all of its refills and expenses.
//
// If children remain after the vehicle is gone, a sweep job is scheduled and
// ErrUpstreamUnavailable returned; repeating the delete then reports ErrVehicleNotFound.
func (s *Service) DeleteVehicle(ctx context.Context, ownerID, vehicleID string) error {
	if err := validateID("vehicleId", vehicleID); err != nil {
		return err
	}

	res, err := s.cascade.DeleteVehicle(ctx, ownerID, vehicleID)
	if errors.Is(err, cascade.ErrVehicleNotFound) {
		return ErrVehicleNotFound
	}

	var incomplete *cascade.IncompleteError
	if errors.As(err, &incomplete) {
		job := sweep.NewJob(ownerID, vehicleID, s.now())
		if perr := s.sweeps.PublishSweep(ctx, job); perr != nil {
			s.logger.ErrorContext(ctx, "sweep_job_publish_failed",
				"vehicle_id", vehicleID,
				"remaining", incomplete.Remaining,
				"error", perr,
			)
		}
		return storeError(err, ErrUpstreamUnavailable)
	}
	if err != nil {
		return storeError(err, ErrUpstreamUnavailable)
	}

	s.metrics.IncEntityDeleted("vehicle")
	s.logger.InfoContext(ctx, "vehicle_deleted",
		"owner_id", ownerID,
		"vehicle_id", vehicleID,
		"children", res.Children,
	)
	return nil
}

// vehicleFields validates in and returns the attributes it sets.
func (s *Service) vehicleFields(in VehicleInput) (map[string]any, error) {
	set := map[string]any{}
	text := func(field string, v *string, limit int) error {
		if v == nil {
			return nil
		}
		t := strings.TrimSpace(*v)
		if len(t) > limit {
			return invalid(field, "too long")
		}
		set[field] = t
		return nil
	}
	if err := text("make", in.Make, maxVehicleTextLength); err != nil {
		return nil, err
	}
	if err := text("model", in.Model, maxVehicleTextLength); err != nil {
		return nil, err
	}
	if err := text("licensePlate", in.LicensePlate, maxVehicleTextLength); err != nil {
		return nil, err
	}
	if in.VIN != nil {
		vin := strings.ToUpper(strings.TrimSpace(*in.VIN))
		if len(vin) > maxVINLength {
			return nil, invalid("vin", "at most 17 characters")
		}
		set["vin"] = vin
	}
	if in.Year != nil {
		if *in.Year < minVehicleYear || *in.Year > s.now().UTC().Year()+1 {
			return nil, invalid("year", "out of range")
		}
		set["year"] = *in.Year
	}
	if in.FuelType != nil {
		if !in.FuelType.IsValid() {
			return nil, invalid("fuelType", "unknown fuel type")
		}
		set["fuelType"] = string(*in.FuelType)
	}
	if in.TankCapacity != nil {
		if *in.TankCapacity < 0 || math.IsNaN(*in.TankCapacity) || math.IsInf(*in.TankCapacity, 0) {
			return nil, invalid("tankCapacity", "must be a non-negative number")
		}
		set["tankCapacity"] = *in.TankCapacity
	}
	return set, nil
}

func applyVehicleFields(v *model.Vehicle, set map[string]any) {
	for field, value := range set {
		switch field {
		case "make":
			v.Make = value.(string)
		case "model":
			v.Model = value.(string)
		case "licensePlate":
			v.LicensePlate = value.(string)
		case "vin":
			v.VIN = value.(string)
		case "year":
			v.Year = value.(int)
		case "fuelType":
			v.FuelType = model.FuelType(value.(string))
		case "tankCapacity":
			v.TankCapacity = value.(float64)
		}
	}
}

// vehicleOf loads the owner's vehicle for child operations.
func (s *Service) vehicleOf(ctx context.Context, ownerID, vehicleID string) (*model.Vehicle, error) {
	return s.GetVehicle(ctx, ownerID, vehicleID)
}

