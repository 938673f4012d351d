// Package keys is the single place where logical entities are mapped to store keys.
//
// Layout of the table:
//
//	PK                  SK
//	OWNER#<owner>       PROFILE | SETTINGS
//	OWNER#<owner>       VEHICLE#<vehicle>
//	VEHICLE#<vehicle>   REFILL#<timestamp>#<id> | EXPENSE#<timestamp>#<id>
//	RATE#<yyyy-mm-dd>   RATES
//
// Timestamps use a fixed-width UTC layout so sort keys order chronologically
// and a reverse scan yields newest first.
package keys

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fuelsync/fuelsync/internal/kv"
)

const (
	sep = "#"

	ownerPrefix   = "OWNER#"
	vehiclePrefix = "VEHICLE#"
	ratePrefix    = "RATE#"

	profileSK  = "PROFILE"
	settingsSK = "SETTINGS"
	ratesSK    = "RATES"
)

// TimestampLayout is the sort-key timestamp format.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// DateLayout is the calendar-date format of rate snapshots.
const DateLayout = "2006-01-02"

// VehiclePrefix selects an owner's vehicles within the owner partition.
const VehiclePrefix = vehiclePrefix

var (
	// ErrInvalidID is returned for identifiers that cannot be embedded in a key.
	ErrInvalidID = errors.New("invalid identifier")

	// ErrInvalidKey is returned when a key does not decode as the expected kind.
	ErrInvalidKey = errors.New("invalid key")
)

// OwnerPart selects one of the two owner items.
type OwnerPart string

const (
	Profile  OwnerPart = profileSK
	Settings OwnerPart = settingsSK
)

// Kind identifies a child record type stored under a vehicle partition.
type Kind string

const (
	Refill  Kind = "REFILL"
	Expense Kind = "EXPENSE"
)

// Prefix returns the sort-key prefix selecting every child of this kind.
func (k Kind) Prefix() string {
	return string(k) + sep
}

// Valid reports whether k is a known child kind.
func (k Kind) Valid() bool {
	return k == Refill || k == Expense
}

// Owner returns the key of an owner's profile or settings item.
func Owner(ownerID string, part OwnerPart) kv.Key {
	return kv.Key{PK: OwnerPartition(ownerID), SK: string(part)}
}

// OwnerPartition returns the partition holding an owner's items.
func OwnerPartition(ownerID string) string {
	return ownerPrefix + ownerID
}

// Vehicle returns the key of a vehicle item.
func Vehicle(ownerID, vehicleID string) kv.Key {
	return kv.Key{PK: OwnerPartition(ownerID), SK: vehiclePrefix + vehicleID}
}

// VehiclePartition returns the partition shared by a vehicle's refills and expenses.
func VehiclePartition(vehicleID string) string {
	return vehiclePrefix + vehicleID
}

// Child returns the key of a refill or expense.
func Child(vehicleID string, kind Kind, ts time.Time, childID string) kv.Key {
	return kv.Key{
		PK: VehiclePartition(vehicleID),
		SK: string(kind) + sep + FormatTimestamp(ts) + sep + childID,
	}
}

// Rate returns the key of the exchange-rate snapshot for a calendar date.
func Rate(date string) kv.Key {
	return kv.Key{PK: ratePrefix + date, SK: ratesSK}
}

// FormatTimestamp renders ts in the sort-key layout.
func FormatTimestamp(ts time.Time) string {
	return ts.UTC().Format(TimestampLayout)
}

// FormatDate renders the UTC calendar date of ts.
func FormatDate(ts time.Time) string {
	return ts.UTC().Format(DateLayout)
}

// ChildSortKey is a decoded child sort key.
type ChildSortKey struct {
	Kind      Kind
	Timestamp time.Time
	ID        string
}

// ParseChild decodes a child sort key. The id may itself contain the separator.
func ParseChild(sk string) (ChildSortKey, error) {
	parts := strings.SplitN(sk, sep, 3)
	if len(parts) != 3 || parts[2] == "" {
		return ChildSortKey{}, fmt.Errorf("%w: %q", ErrInvalidKey, sk)
	}

	kind := Kind(parts[0])
	if !kind.Valid() {
		return ChildSortKey{}, fmt.Errorf("%w: unknown kind in %q", ErrInvalidKey, sk)
	}

	ts, err := time.Parse(TimestampLayout, parts[1])
	if err != nil {
		return ChildSortKey{}, fmt.Errorf("%w: bad timestamp in %q", ErrInvalidKey, sk)
	}

	return ChildSortKey{Kind: kind, Timestamp: ts, ID: parts[2]}, nil
}

// ParseVehicle returns the vehicle id of a vehicle sort key.
func ParseVehicle(sk string) (string, error) {
	id, ok := strings.CutPrefix(sk, vehiclePrefix)
	if !ok || id == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, sk)
	}
	return id, nil
}

// ParseRate returns the date of a rate snapshot partition key.
func ParseRate(pk string) (string, error) {
	date, ok := strings.CutPrefix(pk, ratePrefix)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, pk)
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return "", fmt.Errorf("%w: bad date in %q", ErrInvalidKey, pk)
	}
	return date, nil
}

// ValidateID checks a caller-supplied identifier before it is embedded in a key.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidID)
	}
	if len(id) > 128 {
		return fmt.Errorf("%w: too long", ErrInvalidID)
	}
	for _, r := range id {
		if r == '#' || r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: %q", ErrInvalidID, id)
		}
	}
	return nil
}
