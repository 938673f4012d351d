package keys

import (
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuelsync/fuelsync/internal/kv"
)

func TestBuilders(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 5, 7, 123_000_000, time.FixedZone("EET", 2*3600))

	tests := []struct {
		name string
		got  kv.Key
		want kv.Key
	}{
		{"profile", Owner("u1", Profile), kv.Key{PK: "OWNER#u1", SK: "PROFILE"}},
		{"settings", Owner("u1", Settings), kv.Key{PK: "OWNER#u1", SK: "SETTINGS"}},
		{"vehicle", Vehicle("u1", "v1"), kv.Key{PK: "OWNER#u1", SK: "VEHICLE#v1"}},
		{"refill", Child("v1", Refill, ts, "r1"), kv.Key{PK: "VEHICLE#v1", SK: "REFILL#2024-03-09T12:05:07.123Z#r1"}},
		{"expense", Child("v1", Expense, ts, "e1"), kv.Key{PK: "VEHICLE#v1", SK: "EXPENSE#2024-03-09T12:05:07.123Z#e1"}},
		{"rate", Rate("2024-03-09"), kv.Key{PK: "RATE#2024-03-09", SK: "RATES"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestKeys_Injective(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	all := []kv.Key{
		Owner("u1", Profile),
		Owner("u1", Settings),
		Owner("u2", Profile),
		Vehicle("u1", "v1"),
		Vehicle("u1", "v2"),
		Vehicle("u2", "v1"),
		Child("v1", Refill, ts, "c1"),
		Child("v1", Expense, ts, "c1"),
		Child("v1", Refill, ts, "c2"),
		Child("v1", Refill, ts.Add(time.Millisecond), "c1"),
		Child("v2", Refill, ts, "c1"),
		Rate("2024-01-01"),
		Rate("2024-01-02"),
	}

	seen := make(map[kv.Key]int)
	for i, k := range all {
		if prev, ok := seen[k]; ok {
			t.Fatalf("key %v produced by entries %d and %d", k, prev, i)
		}
		seen[k] = i
	}
}

func TestChild_SortsChronologically(t *testing.T) {
	base := time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC)
	var sks []string
	for i, offset := range []time.Duration{0, 5 * time.Millisecond, time.Second, 48 * time.Hour, 400 * 24 * time.Hour} {
		sks = append(sks, Child("v1", Refill, base.Add(offset), string(rune('z'-i))).SK)
	}

	sorted := append([]string(nil), sks...)
	sort.Strings(sorted)
	assert.Equal(t, sks, sorted)
}

func TestParseChild(t *testing.T) {
	ts := time.Date(2024, 6, 1, 8, 30, 0, 250_000_000, time.UTC)

	got, err := ParseChild(Child("v1", Expense, ts, "01HZX3").SK)
	require.NoError(t, err)
	assert.Equal(t, Expense, got.Kind)
	assert.True(t, ts.Equal(got.Timestamp))
	assert.Equal(t, "01HZX3", got.ID)

	// Ids containing the separator still decode unambiguously.
	got, err = ParseChild(Child("v1", Refill, ts, "legacy#1").SK)
	require.NoError(t, err)
	assert.Equal(t, "legacy#1", got.ID)

	for _, bad := range []string{"", "REFILL", "REFILL#2024-06-01T08:30:00.250Z", "FUEL#2024-06-01T08:30:00.250Z#x", "REFILL#yesterday#x", "REFILL#2024-06-01T08:30:00.250Z#"} {
		_, err := ParseChild(bad)
		assert.ErrorIs(t, err, ErrInvalidKey, bad)
	}
}

func TestParseVehicleAndRate(t *testing.T) {
	id, err := ParseVehicle(Vehicle("u1", "v-42").SK)
	require.NoError(t, err)
	assert.Equal(t, "v-42", id)

	_, err = ParseVehicle("PROFILE")
	assert.ErrorIs(t, err, ErrInvalidKey)

	date, err := ParseRate(Rate("2024-02-29").PK)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", date)

	_, err = ParseRate("RATE#soon")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestPrefixesDoNotOverlap(t *testing.T) {
	now := time.Now()
	assert.False(t, strings.HasPrefix(Child("v1", Expense, now, "x").SK, Refill.Prefix()))
	assert.False(t, strings.HasPrefix(Child("v1", Refill, now, "x").SK, Expense.Prefix()))
	assert.False(t, strings.HasPrefix(Owner("u1", Profile).SK, VehiclePrefix))
	assert.False(t, strings.HasPrefix(Owner("u1", Settings).SK, VehiclePrefix))
}

func TestValidateID(t *testing.T) {
	for _, ok := range []string{"v1", "3f1c0a5e-9b7c-4e3a-8d5f-1a2b3c4d5e6f", "01HZX3Q9V4K3"} {
		assert.NoError(t, ValidateID(ok), ok)
	}
	for _, bad := range []string{"", "a#b", "line\nbreak", string(make([]byte, 129))} {
		assert.ErrorIs(t, ValidateID(bad), ErrInvalidID, bad)
	}
}
