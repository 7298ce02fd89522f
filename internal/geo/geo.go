// Package geo resolves source IPs to locations and detects physically
// impossible travel between consecutive checks for the same actor.
package geo

import (
	"errors"
	"math"
	"net"
	"time"
)

var ErrUnresolvable = errors.New("geo: IP could not be resolved")

// Location is an IP-derived position.
type Location struct {
	Country   string  `json:"country"`
	City      string  `json:"city"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Local is the sentinel location for private and loopback addresses.
// It carries no coordinates and is excluded from distance math.
func Local() Location {
	return Location{Country: "Local", City: "Local"}
}

// IsLocal reports whether l is the private-address sentinel.
func (l Location) IsLocal() bool {
	return l.Country == "Local"
}

// HasCoordinates reports whether l carries usable coordinates.
func (l Location) HasCoordinates() bool {
	return !l.IsLocal() && (l.Latitude != 0 || l.Longitude != 0)
}

// Snapshot is a location observation at a point in time, kept per actor.
type Snapshot struct {
	Location   Location  `json:"location"`
	ObservedAt time.Time `json:"observedAt"`
}

// Signal is the advisory geo-velocity output attached to a verdict.
type Signal struct {
	Location        Location `json:"location"`
	DistanceKm      float64  `json:"distanceKm"`
	ElapsedHours    float64  `json:"elapsedHours"`
	SpeedKmh        float64  `json:"speedKmh"`
	LocationChanged bool     `json:"locationChanged"`
	Suspicious      bool     `json:"suspicious"`
}

// Detection thresholds.
const (
	changedDistanceKm   = 50   // beyond this the actor's location has "changed"
	suspiciousSpeedKmh  = 800  // faster than a commercial flight
	suspiciousJumpKm    = 500  // a long jump ...
	suspiciousJumpHours = 1.0  // ... in under an hour
	earthRadiusKm       = 6371 // mean Earth radius
)

// Haversine returns the great-circle distance between two locations in km.
func Haversine(a, b Location) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// Check compares the current location against the most recent prior snapshot.
// With no prior snapshot (or no usable coordinates on either side) the signal
// is never suspicious.
func Check(prev *Snapshot, cur Location, now time.Time) Signal {
	signal := Signal{Location: cur}

	if prev == nil || !prev.Location.HasCoordinates() || !cur.HasCoordinates() {
		return signal
	}

	signal.DistanceKm = Haversine(prev.Location, cur)
	signal.ElapsedHours = now.Sub(prev.ObservedAt).Hours()
	signal.LocationChanged = signal.DistanceKm > changedDistanceKm

	if signal.ElapsedHours > 0 {
		signal.SpeedKmh = signal.DistanceKm / signal.ElapsedHours
	}

	signal.Suspicious = signal.SpeedKmh > suspiciousSpeedKmh ||
		(signal.DistanceKm > suspiciousJumpKm && signal.ElapsedHours < suspiciousJumpHours)

	return signal
}

// isPrivate reports whether an IP should map to the Local sentinel.
func isPrivate(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}
