package services

import (
	"fmt"
	"net"
	"sync"

	"traffic-monitor/backend/models"
	"traffic-monitor/backend/system"

	"github.com/oschwald/geoip2-golang"
)

// UnknownCountry is returned when an address cannot be located.
const UnknownCountry = "XX"

// GeoIPService resolves addresses to ISO country codes using a MaxMind
// GeoLite2/GeoIP2 country or city database.
type GeoIPService struct {
	mu     sync.RWMutex
	reader *geoip2.Reader
	cache  map[string]string
}

// NewGeoIPService opens the database at path. An empty path yields a service
// that answers UnknownCountry for everything.
func NewGeoIPService(path string) (*GeoIPService, error) {
	g := &GeoIPService{cache: make(map[string]string)}
	if path == "" {
		return g, nil
	}

	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoIP database: %w", err)
	}
	g.reader = reader
	system.Info("GeoIP database loaded: %s (%s)", path, reader.Metadata().DatabaseType)
	return g, nil
}

// IsEnabled reports whether a database is loaded.
func (g *GeoIPService) IsEnabled() bool {
	return g != nil && g.reader != nil
}

// GetCountryCode returns the country code for an IP
func (g *GeoIPService) GetCountryCode(ipStr string) string {
	if !g.IsEnabled() {
		return UnknownCountry
	}

	g.mu.RLock()
	code, ok := g.cache[ipStr]
	g.mu.RUnlock()
	if ok {
		return code
	}

	code = UnknownCountry
	if ip := net.ParseIP(ipStr); ip != nil && !ip.IsPrivate() && !ip.IsLoopback() {
		if rec, err := g.reader.Country(ip); err == nil && rec.Country.IsoCode != "" {
			code = rec.Country.IsoCode
		}
	}

	g.mu.Lock()
	g.cache[ipStr] = code
	g.mu.Unlock()
	return code
}

// Annotate fills in the country code of each source row.
func (g *GeoIPService) Annotate(rows []models.SourceVolume) {
	if !g.IsEnabled() {
		return
	}
	for i := range rows {
		rows[i].CountryCode = g.GetCountryCode(rows[i].SourceIP)
	}
}

// Close releases the database.
func (g *GeoIPService) Close() error {
	if g.IsEnabled() {
		return g.reader.Close()
	}
	return nil
}
