package model

import "time"

// ExpenseCategory classifies a non-fuel expense.
type ExpenseCategory string

const (
	CategoryMaintenance  ExpenseCategory = "Maintenance"
	CategoryRepair       ExpenseCategory = "Repair"
	CategoryInsurance    ExpenseCategory = "Insurance"
	CategoryRegistration ExpenseCategory = "Registration"
	CategoryParking      ExpenseCategory = "Parking"
	CategoryTolls        ExpenseCategory = "Tolls"
	CategoryWash         ExpenseCategory = "Wash"
	CategoryOther        ExpenseCategory = "Other"
)

// ExpenseCategories lists every category in display order.
var ExpenseCategories = []ExpenseCategory{
	CategoryMaintenance,
	CategoryRepair,
	CategoryInsurance,
	CategoryRegistration,
	CategoryParking,
	CategoryTolls,
	CategoryWash,
	CategoryOther,
}

// IsValid checks if the category is known.
func (c ExpenseCategory) IsValid() bool {
	for _, known := range ExpenseCategories {
		if c == known {
			return true
		}
	}
	return false
}

// Money is an amount normalized to the base currency at write time.
type Money struct {
	Currency     string  `json:"currency"`
	ExchangeRate float64 `json:"exchangeRate"`
	BaseAmount   float64 `json:"baseAmount"`
	// RateDate is the snapshot date the rate came from, empty for base or fallback rates.
	RateDate string `json:"rateDate,omitempty"`
}

// Refill is one fuel purchase.
type Refill struct {
	ID           string    `json:"refillId"`
	VehicleID    string    `json:"vehicleId"`
	OwnerID      string    `json:"userId"`
	Timestamp    time.Time `json:"timestamp"`
	Odometer     float64   `json:"odometer"`
	Volume       float64   `json:"volume"`
	PricePerUnit float64   `json:"pricePerUnit"`
	TotalCost    float64   `json:"totalCost"`
	Money
	FuelType  FuelType  `json:"fuelType,omitempty"`
	Station   string    `json:"station,omitempty"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Expense is any non-fuel cost of running a vehicle.
type Expense struct {
	ID            string          `json:"expenseId"`
	VehicleID     string          `json:"vehicleId"`
	OwnerID       string          `json:"userId"`
	Timestamp     time.Time       `json:"timestamp"`
	Category      ExpenseCategory `json:"category"`
	Amount        float64         `json:"amount"`
	Money
	Odometer      *float64  `json:"odometer,omitempty"`
	Description   string    `json:"description,omitempty"`
	TaxDeductible bool      `json:"taxDeductible"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
