// Package service answers tile requests: region documents that link a tile to its children,
// and the rendered tile itself.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-spatial/geom/slippy"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/pdok/tegel/mapslicehelp"
	"github.com/pdok/tegel/regionate"
	"github.com/pdok/tegel/render"
	"github.com/pdok/tegel/tms20"
)

// layerSuffixes are tried, in order, when a layer is not found by its exact name.
var layerSuffixes = []string{"", "_EPSG4326", "_EPSG900913"}

const outsideGridMessage = "The requested tile is outside the bounding box of the tile map."

// TileRequest asks for one tile of a layer.
type TileRequest struct {
	Layer string
	Tile  slippy.Tile
	// Authorizer overrides the service's authorizer for this request
	Authorizer Authorizer
}

// Document describes one tile with the tiles on the next level that belong to it.
type Document struct {
	Layer        string              `json:"layer"`
	Format       string              `json:"format"`
	Tile         regionate.SubTile   `json:"tile"`
	SubTiles     []regionate.SubTile `json:"subTiles"`
	ChildGrid    tms20.TileRange     `json:"childGrid"`
	TileWidth    uint                `json:"tileWidth"`
	TileHeight   uint                `json:"tileHeight"`
	InitialLevel bool                `json:"initialLevel"`
}

type Service struct {
	layers     *orderedmap.OrderedMap[string, *Layer]
	authorizer Authorizer
	logger     *log.Logger
}

type Option func(*Service)

// WithAuthorizer sets the authorizer for requests that do not carry their own.
func WithAuthorizer(a Authorizer) Option {
	return func(s *Service) {
		s.authorizer = a
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

func New(opts ...Option) *Service {
	s := &Service{
		layers: orderedmap.New[string, *Layer](),
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) AddLayer(l *Layer) error {
	if _, exists := s.layers.Get(l.Name); exists {
		return fmt.Errorf("duplicate layer %s", l.Name)
	}
	s.layers.Set(l.Name, l)
	return nil
}

// LayerNames returns the names of all layers in the order they were added.
func (s *Service) LayerNames() []string {
	return mapslicehelp.OrderedMapKeys(s.layers)
}

func (s *Service) Layers() []*Layer {
	return mapslicehelp.OrderedMapValues(s.layers)
}

// Layer finds a layer by name, falling back to the name with a reference system suffix.
func (s *Service) Layer(name string) (*Layer, error) {
	for _, suffix := range layerSuffixes {
		if l, ok := s.layers.Get(name + suffix); ok {
			return l, nil
		}
	}
	return nil, &RequestError{Message: "unknown layer: " + name, Layer: name, Status: http.StatusNotFound}
}

// Regions returns the document of the requested tile.
func (s *Service) Regions(_ context.Context, req TileRequest) (*Document, error) {
	l, err := s.authorizedLayer(req)
	if err != nil {
		return nil, err
	}
	region, ok, err := l.subdivider.Region(req.Tile)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newRequestError(outsideGridMessage, req, true)
	}
	childGrid, subTiles := l.subdivider.Subdivide(req.Tile)
	width, height, _ := l.Grid.TileSize(req.Tile.Z)
	return &Document{
		Layer:        req.Layer,
		Format:       l.Format,
		Tile:         region,
		SubTiles:     subTiles,
		ChildGrid:    childGrid,
		TileWidth:    width,
		TileHeight:   height,
		InitialLevel: req.Tile.Z == 0,
	}, nil
}

// Tile renders the requested tile. The blank signals of render (see render.IsBlank)
// are returned as is.
func (s *Service) Tile(ctx context.Context, req TileRequest) (*render.Result, error) {
	l, err := s.authorizedLayer(req)
	if err != nil {
		return nil, err
	}
	result, ok, err := l.Render(ctx, req.Tile)
	if !ok {
		return nil, newRequestError(outsideGridMessage, req, true)
	}
	if err != nil {
		if render.IsBlank(err) {
			s.logger.Debug("blank tile", "layer", l.Name, "tile", req.Tile, "reason", err)
		} else if errors.Is(err, context.Canceled) {
			s.logger.Debug("tile request cancelled", "layer", l.Name, "tile", req.Tile)
		} else {
			s.logger.Warn("rendering tile failed", "layer", l.Name, "tile", req.Tile, "err", err)
		}
		return nil, err
	}
	return result, nil
}

func (s *Service) authorizedLayer(req TileRequest) (*Layer, error) {
	l, err := s.Layer(req.Layer)
	if err != nil {
		return nil, err
	}
	authorizer := req.Authorizer
	if authorizer == nil {
		authorizer = s.authorizer
	}
	if err := authorize(authorizer, l.Name); err != nil {
		return nil, err
	}
	return l, nil
}
