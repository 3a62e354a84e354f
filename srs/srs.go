// Package srs knows the spatial reference systems tiles are served in and transforms extents between them.
package srs

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// WebMercatorMax is the maximal x and y extent of the spherical web mercator projection (EPSG:3857).
const WebMercatorMax = 20037508.342789244

// Projection converts points between a projected system and geographic longitude/latitude.
type Projection interface {
	ToGeographic(p [2]float64) [2]float64
	FromGeographic(p [2]float64) [2]float64
}

// SRS is a spatial reference system: a canonical code and, when known, its projection.
type SRS struct {
	Code string
	// nil when no projection definition is known for Code
	proj       Projection
	geographic bool
	mercator   bool
}

// Equal compares by canonical code.
func (s *SRS) Equal(other *SRS) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.Code == other.Code
}

// IsGeographic reports whether coordinates are longitude/latitude in degrees.
func (s *SRS) IsGeographic() bool {
	return s.geographic
}

// IsWebMercator reports whether this is the spherical web mercator projection, whose
// vertical extent saturates near the poles.
func (s *SRS) IsWebMercator() bool {
	return s.mercator
}

// HasProjection reports whether points can be transformed from and to this system.
func (s *SRS) HasProjection() bool {
	return s.proj != nil
}

func (s *SRS) String() string {
	return s.Code
}

type geographic struct{}

func (geographic) ToGeographic(p [2]float64) [2]float64   { return p }
func (geographic) FromGeographic(p [2]float64) [2]float64 { return p }

type webMercator struct{}

func (webMercator) ToGeographic(p [2]float64) [2]float64 {
	return project.Mercator.ToWGS84(orb.Point(p))
}

func (webMercator) FromGeographic(p [2]float64) [2]float64 {
	return project.WGS84.ToMercator(orb.Point(p))
}

var (
	WGS84       = &SRS{Code: "EPSG:4326", proj: geographic{}, geographic: true}
	CRS84       = &SRS{Code: "OGC:CRS84", proj: geographic{}, geographic: true}
	WebMercator = &SRS{Code: "EPSG:3857", proj: webMercator{}, mercator: true}

	known = map[string]*SRS{
		WGS84.Code:       WGS84,
		CRS84.Code:       CRS84,
		WebMercator.Code: WebMercator,
	}
	// legacy codes of the web mercator projection
	aliases = map[string]string{
		"EPSG:900913": WebMercator.Code,
		"EPSG:102100": WebMercator.Code,
		"EPSG:102113": WebMercator.Code,
		"EPSG:3785":   WebMercator.Code,
		"CRS:84":      CRS84.Code,
	}
)

// Canonical normalizes a code: upper case, "EPSG:" prefix for bare numbers, aliases resolved.
func Canonical(code string) string {
	c := strings.ToUpper(strings.TrimSpace(code))
	if c == "" {
		return c
	}
	if !strings.Contains(c, ":") {
		c = "EPSG:" + c
	}
	if alias, ok := aliases[c]; ok {
		return alias
	}
	return c
}

// Lookup returns the SRS for code. Codes without a known projection still resolve,
// transformations from or to them fail with a TransformError.
func Lookup(code string) (*SRS, error) {
	c := Canonical(code)
	if c == "" {
		return nil, fmt.Errorf("empty srs code")
	}
	if s, ok := known[c]; ok {
		return s, nil
	}
	return &SRS{Code: c}, nil
}

// MustLookup is Lookup for codes known to be valid, e.g. in package level variables.
func MustLookup(code string) *SRS {
	s, err := Lookup(code)
	if err != nil {
		panic(err)
	}
	return s
}
