package geo

import (
	"fmt"
	"net"

	"github.com/oschwald/maxminddb-golang"
)

type cityRecord struct {
	Country struct {
		IsoCode string            `maxminddb:"iso_code"`
		Names   map[string]string `maxminddb:"names"`
	} `maxminddb:"country"`
	Subdivisions []struct {
		IsoCode string            `maxminddb:"iso_code"`
		Names   map[string]string `maxminddb:"names"`
	} `maxminddb:"subdivisions"`
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
	Location struct {
		TimeZone string `maxminddb:"time_zone"`
	} `maxminddb:"location"`
}

// MaxMindProvider implements Provider using a GeoLite2/GeoIP2 City database.
type MaxMindProvider struct {
	reader *maxminddb.Reader
}

// NewMaxMindProvider opens the database at dbPath.
func NewMaxMindProvider(dbPath string) (*MaxMindProvider, error) {
	reader, err := maxminddb.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoIP database: %w", err)
	}
	return &MaxMindProvider{reader: reader}, nil
}

// Lookup returns geo information for an IP address.
func (m *MaxMindProvider) Lookup(ip string) (*Info, error) {
	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return nil, fmt.Errorf("invalid IP address: %s", ip)
	}

	var record cityRecord
	if err := m.reader.Lookup(parsedIP, &record); err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", ip, err)
	}

	info := &Info{
		Country:     record.Country.Names["en"],
		CountryCode: record.Country.IsoCode,
		City:        record.City.Names["en"],
		Timezone:    record.Location.TimeZone,
	}
	if len(record.Subdivisions) > 0 {
		info.Region = record.Subdivisions[0].IsoCode
	}
	return info, nil
}

// Close closes the GeoIP database.
func (m *MaxMindProvider) Close() error {
	if m.reader != nil {
		return m.reader.Close()
	}
	return nil
}
