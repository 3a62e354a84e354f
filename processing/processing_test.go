package processing

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/go-spatial/geom/slippy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdok/tegel/regionate"
	"github.com/pdok/tegel/render"
	"github.com/pdok/tegel/service"
	"github.com/pdok/tegel/srs"
	"github.com/pdok/tegel/tms20"
)

type fakeRenderer func(tile slippy.Tile) (*render.Result, error)

func (f fakeRenderer) Tile(_ context.Context, req service.TileRequest) (*render.Result, error) {
	return f(req.Tile)
}

type memoryTarget struct {
	mu    sync.Mutex
	tiles []slippy.Tile
	err   error
}

func (m *memoryTarget) WriteTiles(_ context.Context, tiles <-chan Tile) error {
	for tile := range tiles {
		if m.err != nil {
			return m.err
		}
		m.mu.Lock()
		m.tiles = append(m.tiles, tile.Tile)
		m.mu.Unlock()
	}
	return nil
}

func webMercator(t *testing.T) (*tms20.TileMatrixSet, *regionate.Subdivider) {
	t.Helper()
	tms, err := tms20.LoadEmbeddedTileMatrixSet("WebMercatorQuad")
	require.NoError(t, err)
	return &tms, regionate.New(&tms, srs.WebMercator, srs.WGS84, regionate.WithLogger(log.New(io.Discard)))
}

func options(maxZoom uint) Options {
	return Options{
		Layer:   "osm",
		Roots:   []slippy.Tile{{Z: 0, X: 0, Y: 0}},
		MaxZoom: maxZoom,
		Workers: 3,
		Logger:  log.New(io.Discard),
	}
}

func TestExport(t *testing.T) {
	_, walker := webMercator(t)
	renderer := fakeRenderer(func(tile slippy.Tile) (*render.Result, error) {
		if tile.Z == 2 && tile.X == 0 {
			return nil, render.ErrNoCoverage
		}
		return &render.Result{Data: []byte("png")}, nil
	})
	target := &memoryTarget{}

	stats, err := Export(context.Background(), renderer, walker, target, options(2))
	require.NoError(t, err)
	assert.Equal(t, Stats{Visited: 21, Rendered: 17, Blank: 4, Failed: 0}, stats)
	assert.Len(t, target.tiles, 17)
	assert.Contains(t, target.tiles, slippy.Tile{Z: 2, X: 3, Y: 3})
	assert.NotContains(t, target.tiles, slippy.Tile{Z: 2, X: 0, Y: 1})
}

func TestExport_renderFailures(t *testing.T) {
	_, walker := webMercator(t)
	renderer := fakeRenderer(func(tile slippy.Tile) (*render.Result, error) {
		if tile.Z == 1 && tile.X == 1 && tile.Y == 1 {
			return nil, &render.RenderError{Message: "font not found"}
		}
		return &render.Result{Data: []byte("png")}, nil
	})

	stats, err := Export(context.Background(), renderer, walker, &memoryTarget{}, options(1))
	require.NoError(t, err)
	assert.Equal(t, Stats{Visited: 5, Rendered: 4, Failed: 1}, stats)

	opts := options(1)
	opts.StopOnError = true
	_, err = Export(context.Background(), renderer, walker, &memoryTarget{}, opts)
	var renderErr *render.RenderError
	assert.ErrorAs(t, err, &renderErr)
}

func TestExport_requestError(t *testing.T) {
	_, walker := webMercator(t)
	renderer := fakeRenderer(func(slippy.Tile) (*render.Result, error) {
		return nil, &service.RequestError{Message: "unknown layer: osm"}
	})

	_, err := Export(context.Background(), renderer, walker, &memoryTarget{}, options(5))
	var reqErr *service.RequestError
	assert.ErrorAs(t, err, &reqErr)
}

func TestExport_targetError(t *testing.T) {
	_, walker := webMercator(t)
	renderer := fakeRenderer(func(slippy.Tile) (*render.Result, error) {
		return &render.Result{Data: []byte("png")}, nil
	})
	diskFull := errors.New("disk full")

	_, err := Export(context.Background(), renderer, walker, &memoryTarget{err: diskFull}, options(6))
	assert.ErrorIs(t, err, diskFull)
}

func TestExport_cancelled(t *testing.T) {
	_, walker := webMercator(t)
	ctx, cancel := context.WithCancel(context.Background())
	renderer := fakeRenderer(func(tile slippy.Tile) (*render.Result, error) {
		if tile.Z == 2 {
			cancel()
		}
		return &render.Result{Data: []byte("png")}, nil
	})

	_, err := Export(ctx, renderer, walker, &memoryTarget{}, options(8))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRoots(t *testing.T) {
	tms, _ := webMercator(t)
	assert.Equal(t, []slippy.Tile{{Z: 0, X: 0, Y: 0}}, Roots(tms))

	geographic, err := tms20.LoadEmbeddedTileMatrixSet("WorldCRS84Quad")
	require.NoError(t, err)
	assert.Equal(t, []slippy.Tile{{Z: 0, X: 0, Y: 0}, {Z: 0, X: 1, Y: 0}}, Roots(&geographic))

	assert.Empty(t, Roots(&tms20.TileMatrixSet{}))
}
