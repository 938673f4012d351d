package model

import "time"

// FuelType is the fuel a vehicle or refill uses.
type FuelType string

const (
	FuelGasoline FuelType = "gasoline"
	FuelDiesel   FuelType = "diesel"
	FuelLPG      FuelType = "lpg"
	FuelElectric FuelType = "electric"
	FuelHybrid   FuelType = "hybrid"
)

// IsValid checks if the fuel type is known. Empty is accepted.
func (f FuelType) IsValid() bool {
	switch f {
	case "", FuelGasoline, FuelDiesel, FuelLPG, FuelElectric, FuelHybrid:
		return true
	}
	return false
}

// Vehicle belongs to exactly one owner.
type Vehicle struct {
	ID           string    `json:"vehicleId"`
	OwnerID      string    `json:"userId"`
	Make         string    `json:"make"`
	Model        string    `json:"model"`
	Year         int       `json:"year,omitempty"`
	VIN          string    `json:"vin,omitempty"`
	LicensePlate string    `json:"licensePlate,omitempty"`
	FuelType     FuelType  `json:"fuelType,omitempty"`
	TankCapacity float64   `json:"tankCapacity,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
