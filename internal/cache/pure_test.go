package cache

import (
	"testing"
	"time"
)

func TestHashIdentity(t *testing.T) {
	t.Parallel()

	ids := []string{"192.168.1.1", "::1", "3f1c0a5e-9b7c-4e3a-8d5f-1a2b3c4d5e6f", ""}
	seen := map[string]string{}
	for _, id := range ids {
		h := hashIdentity(id)
		if len(h) != 16 {
			t.Errorf("hashIdentity(%q) length = %d, want 16", id, len(h))
		}
		if h != hashIdentity(id) {
			t.Errorf("hashIdentity(%q) not deterministic", id)
		}
		if prev, ok := seen[h]; ok {
			t.Errorf("%q and %q collide", prev, id)
		}
		seen[h] = id
	}
}

func TestRefillTime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		missing   float64
		perSecond float64
		want      time.Duration
	}{
		{"full bucket", 0, 10, 0},
		{"one token at 10/s", 1, 10, 100 * time.Millisecond},
		{"five tokens at 1/s", 5, 1, 5 * time.Second},
		{"owner rate 60/min", 2, 1, 2 * time.Second},
		{"zero rate", 3, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := refillTime(tt.missing, tt.perSecond); got != tt.want {
				t.Errorf("refillTime(%v, %v) = %v, want %v", tt.missing, tt.perSecond, got, tt.want)
			}
		})
	}
}

func TestKeyNamespacing(t *testing.T) {
	t.Parallel()

	c := &Cache{namespace: DefaultNamespace}
	if got := c.key(rateKeyPrefix, "2024-03-10"); got != "fuelsync:rates:2024-03-10" {
		t.Errorf("rate key = %q", got)
	}
	if got := c.key(rateKeyPrefix, "2024-03-10", negCacheKeySuffix); got != "fuelsync:rates:2024-03-10:neg" {
		t.Errorf("negative key = %q", got)
	}

	c.namespace = "staging:"
	if got := c.key(ipBucket.prefix, "abc"); got != "staging:ratelimit:ip:abc" {
		t.Errorf("ip key = %q", got)
	}
}

func TestUnlimited(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	c := &Cache{now: func() time.Time { return fixed }}
	res := c.unlimited(7)
	if !res.Allowed || res.Remaining != 7 || !res.ResetAt.Equal(fixed.Add(time.Minute)) {
		t.Errorf("unexpected result %+v", res)
	}
}
