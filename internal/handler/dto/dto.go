// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/fuelsync/fuelsync/internal/model"
	"github.com/fuelsync/fuelsync/internal/service"
)

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ListResponse is one page of a collection.
type ListResponse[T any] struct {
	Items     []T    `json:"items"`
	NextToken string `json:"nextToken,omitempty"`
}

// NewListResponse never renders a nil items array.
func NewListResponse[T any](items []T, next string) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, NextToken: next}
}

// UpdateProfileRequest is the body of PUT /profile.
type UpdateProfileRequest struct {
	Name     *string `json:"name"`
	Currency *string `json:"currency"`
}

// ToUpdate converts the request to a service update.
func (r UpdateProfileRequest) ToUpdate() service.ProfileUpdate {
	return service.ProfileUpdate{Name: r.Name, Currency: r.Currency}
}

// UpdateSettingsRequest is the body of PUT /settings.
type UpdateSettingsRequest struct {
	Units             *model.Units `json:"units"`
	DateFormat        *string      `json:"dateFormat"`
	Notifications     *bool        `json:"notifications"`
	PreferredCurrency *string      `json:"preferredCurrency"`
}

// ToUpdate converts the request to a service update.
func (r UpdateSettingsRequest) ToUpdate() service.SettingsUpdate {
	return service.SettingsUpdate{
		Units:             r.Units,
		DateFormat:        r.DateFormat,
		Notifications:     r.Notifications,
		PreferredCurrency: r.PreferredCurrency,
	}
}

// VehicleRequest is the body of POST /vehicles and PATCH /vehicles/{id}.
type VehicleRequest struct {
	Make         *string         `json:"make"`
	Model        *string         `json:"model"`
	Year         *int            `json:"year"`
	VIN          *string         `json:"vin"`
	LicensePlate *string         `json:"licensePlate"`
	FuelType     *model.FuelType `json:"fuelType"`
	TankCapacity *float64        `json:"tankCapacity"`
}

// ToInput converts the request to service input.
func (r VehicleRequest) ToInput() service.VehicleInput {
	return service.VehicleInput{
		Make:         r.Make,
		Model:        r.Model,
		Year:         r.Year,
		VIN:          r.VIN,
		LicensePlate: r.LicensePlate,
		FuelType:     r.FuelType,
		TankCapacity: r.TankCapacity,
	}
}

// RefillRequest is the body of refill create and update calls.
type RefillRequest struct {
	Timestamp    *time.Time      `json:"timestamp"`
	Odometer     *float64        `json:"odometer"`
	Volume       *float64        `json:"volume"`
	PricePerUnit *float64        `json:"pricePerUnit"`
	TotalCost    *float64        `json:"totalCost"`
	Currency     *string         `json:"currency"`
	FuelType     *model.FuelType `json:"fuelType"`
	Station      *string         `json:"station"`
	Comment      *string         `json:"comment"`
}

// ToInput converts the request to service input.
func (r RefillRequest) ToInput() service.RefillInput {
	return service.RefillInput{
		Timestamp:    r.Timestamp,
		Odometer:     r.Odometer,
		Volume:       r.Volume,
		PricePerUnit: r.PricePerUnit,
		TotalCost:    r.TotalCost,
		Currency:     r.Currency,
		FuelType:     r.FuelType,
		Station:      r.Station,
		Comment:      r.Comment,
	}
}

// ExpenseRequest is the body of expense create and update calls.
type ExpenseRequest struct {
	Timestamp     *time.Time             `json:"timestamp"`
	Category      *model.ExpenseCategory `json:"category"`
	Amount        *float64               `json:"amount"`
	Currency      *string                `json:"currency"`
	Odometer      *float64               `json:"odometer"`
	Description   *string                `json:"description"`
	TaxDeductible *bool                  `json:"taxDeductible"`
}

// ToInput converts the request to service input.
func (r ExpenseRequest) ToInput() service.ExpenseInput {
	return service.ExpenseInput{
		Timestamp:     r.Timestamp,
		Category:      r.Category,
		Amount:        r.Amount,
		Currency:      r.Currency,
		Odometer:      r.Odometer,
		Description:   r.Description,
		TaxDeductible: r.TaxDeductible,
	}
}
