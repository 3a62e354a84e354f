// Package processing takes care of the logistics around rendering a tile pyramid and writing it
// to a Target. Not the rendering itself.
package processing

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/go-spatial/geom/slippy"
	"golang.org/x/sync/errgroup"

	"github.com/pdok/tegel/render"
	"github.com/pdok/tegel/service"
	"github.com/pdok/tegel/tms20"
)

// Stats counts what happened to the tiles of an export.
type Stats struct {
	Visited  uint64
	Rendered uint64
	Blank    uint64
	Failed   uint64
}

// Options of an export.
type Options struct {
	Layer   string
	Roots   []slippy.Tile
	MaxZoom uint
	// Workers is the number of concurrent render requests, one per CPU by default
	Workers int
	// StopOnError stops the export at the first failed render instead of skipping the tile
	StopOnError bool
	Logger      *log.Logger
}

// Roots returns all tiles on the first level of tms.
func Roots(tms *tms20.TileMatrixSet) []slippy.Tile {
	zooms := tms.Zooms()
	if len(zooms) == 0 {
		return nil
	}
	size, ok := tms.Size(zooms[0])
	if !ok {
		return nil
	}
	return tms20.TileRange{Zoom: zooms[0], MaxCol: size.X - 1, MaxRow: size.Y - 1}.Tiles()
}

// Export walks the pyramid below the roots, renders every tile and writes the results to target.
// Blank tiles are counted and skipped.
func Export(ctx context.Context, renderer Renderer, walker Walker, target Target, opts Options) (Stats, error) {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	var stats Stats
	coords := make(chan slippy.Tile)
	tiles := make(chan Tile)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(coords)
		return walkPyramid(ctx, walker, opts, coords, &stats.Visited)
	})
	g.Go(func() error {
		defer close(tiles)
		return renderTiles(ctx, renderer, opts, coords, tiles, &stats)
	})
	g.Go(func() error {
		err := target.WriteTiles(ctx, tiles)
		// keep draining so the render stage does not block on a failed target
		for range tiles {
		}
		return err
	})
	err := g.Wait()

	opts.Logger.Info("export finished",
		"layer", opts.Layer,
		"visited", stats.Visited,
		"rendered", stats.Rendered,
		"blank", stats.Blank,
		"failed", stats.Failed)
	return stats, err
}

// walkPyramid sends every tile below the roots to coords
func walkPyramid(ctx context.Context, walker Walker, opts Options, coords chan<- slippy.Tile, visited *uint64) error {
	for _, root := range opts.Roots {
		err := walker.Walk(ctx, root, opts.MaxZoom, func(ctx context.Context, tile slippy.Tile) error {
			select {
			case coords <- tile:
				atomic.AddUint64(visited, 1)
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// renderTiles renders the incoming coords with a fixed number of workers
func renderTiles(ctx context.Context, renderer Renderer, opts Options, coords <-chan slippy.Tile, tiles chan<- Tile, stats *Stats) error {
	g, ctx := errgroup.WithContext(ctx)
	var failOnce sync.Once
	for i := 0; i < opts.Workers; i++ {
		g.Go(func() error {
			for coord := range coords {
				result, err := renderer.Tile(ctx, service.TileRequest{Layer: opts.Layer, Tile: coord})
				switch {
				case err == nil:
					atomic.AddUint64(&stats.Rendered, 1)
				case render.IsBlank(err):
					atomic.AddUint64(&stats.Blank, 1)
					continue
				case ctx.Err() != nil:
					return ctx.Err()
				default:
					atomic.AddUint64(&stats.Failed, 1)
					if opts.StopOnError || !isRenderFailure(err) {
						return err
					}
					failOnce.Do(func() {
						opts.Logger.Warn("skipping tiles that fail to render", "layer", opts.Layer)
					})
					opts.Logger.Debug("render failed", "tile", coord, "err", err)
					continue
				}
				select {
				case tiles <- Tile{Tile: coord, Result: result}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// isRenderFailure tells a failing tile apart from a failing request, like an unknown layer.
func isRenderFailure(err error) bool {
	var renderErr *render.RenderError
	return errors.As(err, &renderErr)
}
