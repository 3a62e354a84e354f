package processing

import (
	"context"

	"github.com/go-spatial/geom/slippy"

	"github.com/pdok/tegel/regionate"
	"github.com/pdok/tegel/render"
	"github.com/pdok/tegel/service"
)

// Tile is a rendered tile on its way to a Target.
type Tile struct {
	Tile   slippy.Tile
	Result *render.Result
}

// Renderer renders single tiles. Implemented by *service.Service.
type Renderer interface {
	Tile(ctx context.Context, req service.TileRequest) (*render.Result, error)
}

// Walker visits a tile pyramid. Implemented by *regionate.Subdivider.
type Walker interface {
	Walk(ctx context.Context, root slippy.Tile, maxZoom uint, fn regionate.WalkFunc) error
}

// Target stores rendered tiles. WriteTiles returns when tiles is closed.
type Target interface {
	WriteTiles(ctx context.Context, tiles <-chan Tile) error
}
