package render

import (
	"fmt"
	"math"

	"github.com/go-spatial/geom"

	"github.com/pdok/tegel/srs"
)

const (
	// metersPerDegree at the equator of the WGS84 ellipsoid, to compare geographic resolutions
	metersPerDegree = 2 * math.Pi * 6378137 / 360
	// metersPerPixel of the OGC standardized rendering pixel, to convert scale denominators
	metersPerPixel = 0.00028
)

// ResRange limits the resolutions, in meters per pixel, a source renders.
// MinRes is the coarsest resolution, a query coarser than that is out of range.
// MaxRes is the finest resolution, a query at or finer than that is out of range.
// A zero value leaves that side open.
type ResRange struct {
	MinRes float64
	MaxRes float64
}

func NewResRange(minRes, maxRes float64) (*ResRange, error) {
	if minRes < 0 || maxRes < 0 {
		return nil, fmt.Errorf("resolutions must not be negative, got min %v max %v", minRes, maxRes)
	}
	if minRes > 0 && maxRes > 0 && maxRes >= minRes {
		return nil, fmt.Errorf("min resolution %v must be coarser (larger) than max resolution %v", minRes, maxRes)
	}
	return &ResRange{MinRes: minRes, MaxRes: maxRes}, nil
}

// ResRangeFromScales converts scale denominators to a ResRange.
// minScale is the largest scale denominator that is rendered.
func ResRangeFromScales(minScale, maxScale float64) (*ResRange, error) {
	return NewResRange(minScale*metersPerPixel, maxScale*metersPerPixel)
}

// Contains reports whether a render of extent at width by height pixels lies in the range.
func (r *ResRange) Contains(extent geom.Extent, width, height uint, s *srs.SRS) bool {
	if width == 0 || height == 0 {
		return false
	}
	res := math.Min((extent[2]-extent[0])/float64(width), (extent[3]-extent[1])/float64(height))
	if s != nil && s.IsGeographic() {
		res *= metersPerDegree
	}
	if r.MinRes > 0 && res > r.MinRes {
		return false
	}
	if r.MaxRes > 0 && res <= r.MaxRes {
		return false
	}
	return true
}

// Coverage is the area a source has data for.
type Coverage struct {
	Extent      geom.Extent
	SRS         *srs.SRS
	transformer *srs.Transformer
}

func NewCoverage(extent geom.Extent, s *srs.SRS) *Coverage {
	return &Coverage{Extent: extent, SRS: s, transformer: srs.NewTransformer()}
}

// Intersects reports whether extent, in reference system s, overlaps the coverage.
// Touching edges do not count as overlap.
func (c *Coverage) Intersects(extent geom.Extent, s *srs.SRS) (bool, error) {
	inCoverageSRS, err := c.transformer.TransformExtent(extent, s, c.SRS)
	if err != nil {
		return false, err
	}
	return inCoverageSRS[0] < c.Extent[2] && inCoverageSRS[2] > c.Extent[0] &&
		inCoverageSRS[1] < c.Extent[3] && inCoverageSRS[3] > c.Extent[1], nil
}
