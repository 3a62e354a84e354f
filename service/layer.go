package service

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/go-spatial/geom/slippy"

	"github.com/pdok/tegel/regionate"
	"github.com/pdok/tegel/render"
	"github.com/pdok/tegel/srs"
	"github.com/pdok/tegel/tms20"
)

// TileSource renders map images. Implemented by *render.Source.
type TileSource interface {
	Render(ctx context.Context, q render.Query) (*render.Result, error)
}

// Layer is a tile pyramid on a grid, rendered by a TileSource.
type Layer struct {
	Name   string
	Format string
	Grid   *tms20.TileMatrixSet
	Native *srs.SRS
	// Output is the reference system of region documents, WGS84 by default
	Output *srs.SRS

	source      TileSource
	transformer *srs.Transformer
	logger      *log.Logger
	subdivider  *regionate.Subdivider
}

type LayerOption func(*Layer)

func WithOutput(s *srs.SRS) LayerOption {
	return func(l *Layer) {
		l.Output = s
	}
}

func WithFormat(format string) LayerOption {
	return func(l *Layer) {
		l.Format = format
	}
}

// WithPoleTolerance sets how close, in meters, a web mercator edge must be to the projection's
// limit to be reported as a pole.
func WithPoleTolerance(tolerance float64) LayerOption {
	return func(l *Layer) {
		l.transformer = &srs.Transformer{PoleTolerance: tolerance}
	}
}

func WithLayerLogger(logger *log.Logger) LayerOption {
	return func(l *Layer) {
		l.logger = logger
	}
}

// NewLayer returns a layer named name. The native reference system is taken from the grid.
func NewLayer(name string, grid *tms20.TileMatrixSet, source TileSource, opts ...LayerOption) (*Layer, error) {
	if name == "" {
		return nil, fmt.Errorf("layer needs a name")
	}
	if grid == nil {
		return nil, fmt.Errorf("layer %s needs a grid", name)
	}
	native, err := srs.Lookup(grid.SRSCode())
	if err != nil {
		return nil, fmt.Errorf("layer %s: %w", name, err)
	}
	l := &Layer{
		Name:        name,
		Format:      "png",
		Grid:        grid,
		Native:      native,
		Output:      srs.WGS84,
		source:      source,
		transformer: srs.NewTransformer(),
		logger:      log.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.subdivider = regionate.New(grid, l.Native, l.Output,
		regionate.WithTransformer(l.transformer),
		regionate.WithLogger(l.logger.With("layer", name)))
	return l, nil
}

func (l *Layer) Subdivider() *regionate.Subdivider {
	return l.subdivider
}

// Query is the render query of one tile. ok is false when the tile is not part of the grid.
func (l *Layer) Query(tile slippy.Tile) (render.Query, bool) {
	extent, ok := l.Grid.TileExtent(tile)
	if !ok {
		return render.Query{}, false
	}
	width, height, _ := l.Grid.TileSize(tile.Z)
	return render.Query{
		Extent: extent,
		Width:  width,
		Height: height,
		SRS:    l.Native,
		Format: l.Format,
	}, true
}

// Render renders one tile. ok is false when the tile is not part of the grid.
func (l *Layer) Render(ctx context.Context, tile slippy.Tile) (result *render.Result, ok bool, err error) {
	q, ok := l.Query(tile)
	if !ok {
		return nil, false, nil
	}
	if l.source == nil {
		return nil, true, &render.RenderError{Message: "layer " + l.Name + " has no source"}
	}
	result, err = l.source.Render(ctx, q)
	return result, true, err
}
