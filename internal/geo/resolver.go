package geo

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// Resolver maps a source IP to a location.
type Resolver interface {
	Resolve(ip string) (Location, error)
	Close() error
}

// MaxMindResolver resolves IPs against a local GeoLite2-City database.
type MaxMindResolver struct {
	db *geoip2.Reader
}

// NewMaxMindResolver opens a GeoLite2-City .mmdb file.
func NewMaxMindResolver(path string) (*MaxMindResolver, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geo: failed to open city database: %w", err)
	}
	return &MaxMindResolver{db: db}, nil
}

// Resolve looks up an IP. Private and loopback addresses map to the Local
// sentinel rather than an error so callers never treat office traffic as fraud.
func (r *MaxMindResolver) Resolve(ip string) (Location, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return Location{}, fmt.Errorf("geo: %q is not an IP address: %w", ip, ErrUnresolvable)
	}
	if isPrivate(parsed) {
		return Local(), nil
	}

	city, err := r.db.City(parsed)
	if err != nil {
		return Location{}, fmt.Errorf("geo: city lookup failed: %w", err)
	}

	loc := Location{
		Country:   city.Country.Names["en"],
		City:      city.City.Names["en"],
		Latitude:  city.Location.Latitude,
		Longitude: city.Location.Longitude,
	}
	if loc.Country == "" && loc.Latitude == 0 && loc.Longitude == 0 {
		return Location{}, ErrUnresolvable
	}
	return loc, nil
}

// Close releases the underlying database reader.
func (r *MaxMindResolver) Close() error {
	return r.db.Close()
}

// StaticResolver serves a fixed IP→Location table. Used in development mode
// and tests where no MaxMind database is available.
type StaticResolver struct {
	locations map[string]Location
}

// NewStaticResolver creates a resolver over a fixed table.
func NewStaticResolver(locations map[string]Location) *StaticResolver {
	return &StaticResolver{locations: locations}
}

func (r *StaticResolver) Resolve(ip string) (Location, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return Location{}, fmt.Errorf("geo: %q is not an IP address: %w", ip, ErrUnresolvable)
	}
	if isPrivate(parsed) {
		return Local(), nil
	}
	if loc, ok := r.locations[ip]; ok {
		return loc, nil
	}
	return Location{}, ErrUnresolvable
}

func (r *StaticResolver) Close() error { return nil }
