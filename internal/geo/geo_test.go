package geo

import (
	"errors"
	"math"
	"testing"
	"time"
)

var (
	london = Location{Country: "United Kingdom", City: "London", Latitude: 51.5074, Longitude: -0.1278}
	paris  = Location{Country: "France", City: "Paris", Latitude: 48.8566, Longitude: 2.3522}
	tokyo  = Location{Country: "Japan", City: "Tokyo", Latitude: 35.6762, Longitude: 139.6503}
)

func TestHaversineKnownDistances(t *testing.T) {
	// London–Paris is roughly 344km.
	d := Haversine(london, paris)
	if math.Abs(d-344) > 10 {
		t.Errorf("Haversine(london, paris) = %.1f km, want ~344", d)
	}

	// Same point is zero.
	if d := Haversine(london, london); d != 0 {
		t.Errorf("Haversine(same point) = %f, want 0", d)
	}
}

func TestCheckImpossibleTravel(t *testing.T) {
	now := time.Now()
	prev := &Snapshot{Location: london, ObservedAt: now.Add(-10 * time.Minute)}

	// ~9,500km in 10 minutes.
	signal := Check(prev, tokyo, now)
	if !signal.Suspicious {
		t.Error("10 minutes between London and Tokyo should be suspicious")
	}
	if !signal.LocationChanged {
		t.Error("London→Tokyo should register as a location change")
	}
}

func TestCheckLongJumpUnderAnHour(t *testing.T) {
	now := time.Now()
	prev := &Snapshot{Location: london, ObservedAt: now.Add(-50 * time.Minute)}

	// >500km in under an hour trips the jump rule even below 800km/h.
	berlin := Location{Country: "Germany", City: "Berlin", Latitude: 52.52, Longitude: 13.405}
	signal := Check(prev, berlin, now)
	if !signal.Suspicious {
		t.Errorf("%.0fkm in 50 minutes should be suspicious", signal.DistanceKm)
	}
}

func TestCheckSameCity(t *testing.T) {
	now := time.Now()
	nearbyLondon := Location{Country: "United Kingdom", City: "London", Latitude: 51.52, Longitude: -0.11}
	prev := &Snapshot{Location: london, ObservedAt: now.Add(-10 * time.Minute)}

	signal := Check(prev, nearbyLondon, now)
	if signal.Suspicious {
		t.Error("same-city checks should not be suspicious")
	}
	if signal.LocationChanged {
		t.Errorf("%.1fkm should not count as a location change", signal.DistanceKm)
	}
}

func TestCheckNoPriorLocation(t *testing.T) {
	signal := Check(nil, tokyo, time.Now())
	if signal.Suspicious {
		t.Error("first-ever check can never be suspicious")
	}
	if signal.LocationChanged {
		t.Error("first-ever check is not a location change")
	}
}

func TestCheckLocalSentinelExcluded(t *testing.T) {
	now := time.Now()
	prev := &Snapshot{Location: Local(), ObservedAt: now.Add(-5 * time.Minute)}

	signal := Check(prev, tokyo, now)
	if signal.Suspicious {
		t.Error("a Local prior location must be excluded from distance math")
	}
	if signal.DistanceKm != 0 {
		t.Errorf("DistanceKm = %f, want 0 for Local prior", signal.DistanceKm)
	}
}

func TestStaticResolver(t *testing.T) {
	r := NewStaticResolver(map[string]Location{"203.0.113.9": london})

	loc, err := r.Resolve("203.0.113.9")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if loc.City != "London" {
		t.Errorf("City = %q, want London", loc.City)
	}

	// Private and loopback map to the Local sentinel.
	for _, ip := range []string{"127.0.0.1", "10.0.0.5", "192.168.1.1"} {
		loc, err := r.Resolve(ip)
		if err != nil {
			t.Fatalf("Resolve(%s) error: %v", ip, err)
		}
		if !loc.IsLocal() {
			t.Errorf("Resolve(%s) = %+v, want Local sentinel", ip, loc)
		}
	}

	if _, err := r.Resolve("198.51.100.77"); !errors.Is(err, ErrUnresolvable) {
		t.Errorf("unknown IP error = %v, want ErrUnresolvable", err)
	}
	if _, err := r.Resolve("not-an-ip"); !errors.Is(err, ErrUnresolvable) {
		t.Errorf("malformed IP error = %v, want ErrUnresolvable", err)
	}
}
