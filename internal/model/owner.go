// Package model defines domain entities for the application.
package model

import "time"

// Units is the measurement system an owner prefers.
type Units string

const (
	UnitsImperial Units = "imperial"
	UnitsMetric   Units = "metric"
)

// IsValid checks if the unit system is known.
func (u Units) IsValid() bool {
	return u == UnitsImperial || u == UnitsMetric
}

// Defaults applied when an owner's items are created lazily.
const (
	DefaultCurrency   = "USD"
	DefaultDateFormat = "MM/DD/YYYY"
)

// Profile is the identity-facing half of an owner.
type Profile struct {
	OwnerID   string    `json:"userId"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Settings holds an owner's display preferences.
type Settings struct {
	OwnerID           string    `json:"userId"`
	Units             Units     `json:"units"`
	DateFormat        string    `json:"dateFormat"`
	Notifications     bool      `json:"notifications"`
	PreferredCurrency string    `json:"preferredCurrency"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// NewProfile returns the profile created on an owner's first visit.
func NewProfile(ownerID, email string, now time.Time) *Profile {
	return &Profile{
		OwnerID:   ownerID,
		Email:     email,
		Currency:  DefaultCurrency,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewSettings returns the settings created on an owner's first visit.
func NewSettings(ownerID string, now time.Time) *Settings {
	return &Settings{
		OwnerID:           ownerID,
		Units:             UnitsImperial,
		DateFormat:        DefaultDateFormat,
		Notifications:     true,
		PreferredCurrency: DefaultCurrency,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}
