package srs

import (
	"fmt"
	"math"

	"github.com/go-spatial/geom"

	"github.com/pdok/tegel/mathhelp"
)

// DefaultPoleTolerance is the absolute distance, in web mercator meters, within which an edge of an
// extent counts as lying on the projection's maximal extent.
const DefaultPoleTolerance = 0.1

// TransformError is returned when an extent cannot be transformed between two systems.
type TransformError struct {
	From, To string
	Reason   string
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("cannot transform from %s to %s: %s", e.From, e.To, e.Reason)
}

// Transformer transforms extents between spatial reference systems.
// The zero value has no pole tolerance, use NewTransformer for the default.
type Transformer struct {
	PoleTolerance float64
}

func NewTransformer() *Transformer {
	return &Transformer{PoleTolerance: DefaultPoleTolerance}
}

// TransformPoint transforms a single point.
func (t *Transformer) TransformPoint(p [2]float64, from, to *SRS) ([2]float64, error) {
	if from.Equal(to) {
		return p, nil
	}
	if err := checkProjections(from, to); err != nil {
		return p, err
	}
	out := to.proj.FromGeographic(from.proj.ToGeographic(p))
	if !mathhelp.IsFinite(out[0]) || !mathhelp.IsFinite(out[1]) {
		return out, &TransformError{From: from.Code, To: to.Code, Reason: fmt.Sprintf("point %v has no finite result", p)}
	}
	return out, nil
}

// TransformExtent transforms all four corners of extent and returns the box enclosing them.
// Non-affine projections do not map the diagonal corners onto the corners of the result.
//
// From web mercator to a geographic system, an edge on the projection's maximal vertical
// extent is clamped to exactly -90 or 90 degrees instead of the latitude the projection
// saturates at (about 85.0511). Both edges are checked independently.
func (t *Transformer) TransformExtent(extent geom.Extent, from, to *SRS) (geom.Extent, error) {
	if from.Equal(to) {
		return extent, nil
	}
	if err := checkProjections(from, to); err != nil {
		return geom.Extent{}, err
	}

	corners := [4][2]float64{
		{extent[0], extent[1]},
		{extent[2], extent[1]},
		{extent[2], extent[3]},
		{extent[0], extent[3]},
	}
	out := geom.Extent{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	for _, corner := range corners {
		p, err := t.TransformPoint(corner, from, to)
		if err != nil {
			return geom.Extent{}, err
		}
		out[0], out[1] = math.Min(out[0], p[0]), math.Min(out[1], p[1])
		out[2], out[3] = math.Max(out[2], p[0]), math.Max(out[3], p[1])
	}

	if from.IsWebMercator() && to.IsGeographic() {
		if mathhelp.AlmostEqual(extent[1], -WebMercatorMax, t.PoleTolerance) {
			out[1] = -90.0
		}
		if mathhelp.AlmostEqual(extent[3], WebMercatorMax, t.PoleTolerance) {
			out[3] = 90.0
		}
	}
	return out, nil
}

func checkProjections(from, to *SRS) error {
	if from == nil || to == nil {
		return &TransformError{From: fmt.Sprint(from), To: fmt.Sprint(to), Reason: "missing spatial reference"}
	}
	if !from.HasProjection() {
		return &TransformError{From: from.Code, To: to.Code, Reason: "no projection definition for " + from.Code}
	}
	if !to.HasProjection() {
		return &TransformError{From: from.Code, To: to.Code, Reason: "no projection definition for " + to.Code}
	}
	return nil
}
