// Package regionate subdivides tiles of a tile matrix set into their children on the next zoom level,
// so that every tile of the pyramid is linked from exactly one parent document.
package regionate

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"
	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/slippy"

	"github.com/pdok/tegel/morton"
	"github.com/pdok/tegel/srs"
	"github.com/pdok/tegel/tms20"
)

// lowerLeftTolerance is the part of a child's cell size that the lower left corner of a child
// may lie outside its parent and still belong to it. Covers rounding between zoom levels.
const lowerLeftTolerance = 1e-3

// SkipChildren can be returned by a WalkFunc to not descend below the current tile.
var SkipChildren = errors.New("skip children")

// Grid is the tile geometry a Subdivider needs. Implemented by *tms20.TileMatrixSet.
type Grid interface {
	TileExtent(tile slippy.Tile) (geom.Extent, bool)
	AffectedTiles(extent geom.Extent, zoom uint) (tms20.TileRange, bool)
	CellSize(zoom uint) (float64, bool)
}

// SubTile is a tile with its extent, in the reference system of whoever produced it.
type SubTile struct {
	Tile   slippy.Tile `json:"tile"`
	Extent geom.Extent `json:"bbox"`
}

// Subdivider computes child tiles on a grid and expresses them in an output reference system.
type Subdivider struct {
	grid        Grid
	native      *srs.SRS
	output      *srs.SRS
	transformer *srs.Transformer
	logger      *log.Logger
}

type Option func(*Subdivider)

func WithTransformer(t *srs.Transformer) Option {
	return func(s *Subdivider) {
		s.transformer = t
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Subdivider) {
		s.logger = l
	}
}

// New returns a Subdivider for grid, whose coordinates are in native, producing extents in output.
func New(grid Grid, native, output *srs.SRS, opts ...Option) *Subdivider {
	s := &Subdivider{
		grid:        grid,
		native:      native,
		output:      output,
		transformer: srs.NewTransformer(),
		logger:      log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Region returns the tile itself with its extent in the output reference system.
// ok is false when the tile is not part of the grid.
func (s *Subdivider) Region(tile slippy.Tile) (region SubTile, ok bool, err error) {
	extent, ok := s.grid.TileExtent(tile)
	if !ok {
		return region, false, nil
	}
	outExtent, err := s.transformer.TransformExtent(extent, s.native, s.output)
	if err != nil {
		return region, true, err
	}
	return SubTile{Tile: tile, Extent: outExtent}, true, nil
}

// Subdivide returns the tiles on the next zoom level that belong to tile, with their extents in the
// output reference system, and the block of tiles they were selected from.
// A child belongs to the parent that contains its lower left corner, so that a child overlapping
// several parents is listed once. Children that cannot be transformed are left out.
// A tile outside the grid, or on the deepest level, has no children.
func (s *Subdivider) Subdivide(tile slippy.Tile) (tms20.TileRange, []SubTile) {
	childGrid, children, ok := s.Children(tile)
	if !ok {
		return childGrid, nil
	}
	subTiles := make([]SubTile, 0, len(children))
	for _, child := range children {
		extent, err := s.transformer.TransformExtent(child.Extent, s.native, s.output)
		if err != nil {
			s.logger.Warn("dropping sub tile", "tile", child.Tile, "err", err)
			continue
		}
		subTiles = append(subTiles, SubTile{Tile: child.Tile, Extent: extent})
	}
	return childGrid, subTiles
}

// Children is Subdivide without the transformation: extents are in the native reference system.
func (s *Subdivider) Children(tile slippy.Tile) (tms20.TileRange, []SubTile, bool) {
	parent, ok := s.grid.TileExtent(tile)
	if !ok {
		return tms20.TileRange{}, nil, false
	}
	childZoom := tile.Z + 1
	childGrid, ok := s.grid.AffectedTiles(parent, childZoom)
	if !ok {
		return tms20.TileRange{}, nil, false
	}
	cellSize, _ := s.grid.CellSize(childZoom)
	eps := cellSize * lowerLeftTolerance

	var children []SubTile
	for _, candidate := range childGrid.Tiles() {
		extent, ok := s.grid.TileExtent(candidate)
		if !ok {
			continue
		}
		if !containsLowerLeft(parent, extent, eps) {
			continue
		}
		children = append(children, SubTile{Tile: candidate, Extent: extent})
	}
	morton.SortTiles(children, func(st SubTile) slippy.Tile { return st.Tile })
	return childGrid, children, true
}

// containsLowerLeft reports whether the lower left corner of child lies in parent,
// including the parent's own lower and left edges, excluding its upper and right edges.
func containsLowerLeft(parent, child geom.Extent, eps float64) bool {
	return child[0] >= parent[0]-eps && child[0] < parent[2]-eps &&
		child[1] >= parent[1]-eps && child[1] < parent[3]-eps
}

// WalkFunc is called for every tile visited by Walk.
type WalkFunc func(ctx context.Context, tile slippy.Tile) error

// Walk visits root and, depth first, every tile below it down to maxZoom. Each tile of the pyramid is
// visited at most once, also when walking several adjacent roots.
// When fn returns SkipChildren the tiles below the current tile are skipped, any other error stops the walk.
func (s *Subdivider) Walk(ctx context.Context, root slippy.Tile, maxZoom uint, fn WalkFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(ctx, root); err != nil {
		if errors.Is(err, SkipChildren) {
			return nil
		}
		return err
	}
	if root.Z >= maxZoom {
		return nil
	}
	_, children, ok := s.Children(root)
	if !ok {
		return nil
	}
	for _, child := range children {
		if err := s.Walk(ctx, child.Tile, maxZoom, fn); err != nil {
			return err
		}
	}
	return nil
}
