package config

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-spatial/geom/slippy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdok/tegel/render"
	"github.com/pdok/tegel/service"
)

func TestLoad(t *testing.T) {
	c, err := Load("testdata/tegel.yaml")
	require.NoError(t, err)

	assert.Equal(t, 2, c.Workers)
	assert.Equal(t, 30*time.Second, c.Timeout)
	assert.Equal(t, "mutex", c.Lock.Type)
	require.Len(t, c.Layers, 2)

	osm := c.Layers[0]
	assert.Equal(t, "EPSG:4326", osm.Output)
	assert.Equal(t, "png", osm.Format)
	require.NotNil(t, osm.PoleTolerance)
	assert.Equal(t, 0.1, *osm.PoleTolerance)
	assert.Equal(t, "debug", osm.Source.Backend)
	require.NotNil(t, osm.Source.Opacity)
	assert.Equal(t, 1.0, *osm.Source.Opacity)
	assert.Nil(t, osm.Source.Coverage)

	brt := c.Layers[1]
	assert.Equal(t, "jpeg", brt.Format)
	assert.Equal(t, 0.8, *brt.Source.Opacity)
	require.NotNil(t, brt.Source.Coverage)
	assert.Equal(t, "EPSG:4326", brt.Source.Coverage.SRS)

	assert.Equal(t, []string{"brt_EPSG4326", "osm_EPSG900913"}, c.LayerNames())

	_, err = Load("testdata/missing.yaml")
	assert.Error(t, err)
}

func TestParse_poleTolerance(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want float64
	}{
		{name: "default", yaml: `
layers:
  - name: osm
    tileMatrixSet: WebMercatorQuad
    source: {mapfile: osm.xml}`, want: 0.1},
		{name: "explicit zero", yaml: `
layers:
  - name: osm
    tileMatrixSet: WebMercatorQuad
    poleTolerance: 0
    source: {mapfile: osm.xml}`, want: 0},
		{name: "explicit", yaml: `
layers:
  - name: osm
    tileMatrixSet: WebMercatorQuad
    poleTolerance: 2.5
    source: {mapfile: osm.xml}`, want: 2.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse([]byte(tt.yaml))
			require.NoError(t, err)
			require.NotNil(t, c.Layers[0].PoleTolerance)
			assert.Equal(t, tt.want, *c.Layers[0].PoleTolerance)
		})
	}
}

func TestParse_invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "no layers", yaml: `workers: 1`},
		{name: "no grid", yaml: `
layers:
  - name: osm
    source: {mapfile: osm.xml}`},
		{name: "unknown backend", yaml: `
layers:
  - name: osm
    tileMatrixSet: WebMercatorQuad
    source: {backend: wms, mapfile: osm.xml}`},
		{name: "command without program", yaml: `
layers:
  - name: osm
    tileMatrixSet: WebMercatorQuad
    source: {backend: command, mapfile: osm.xml}`},
		{name: "file lock without path", yaml: `
lock: {type: file}
layers:
  - name: osm
    tileMatrixSet: WebMercatorQuad
    source: {mapfile: osm.xml}`},
		{name: "opacity", yaml: `
layers:
  - name: osm
    tileMatrixSet: WebMercatorQuad
    source: {mapfile: osm.xml, opacity: 1.5}`},
		{name: "negative pole tolerance", yaml: `
layers:
  - name: osm
    tileMatrixSet: WebMercatorQuad
    poleTolerance: -1
    source: {mapfile: osm.xml}`},
		{name: "not yaml", yaml: `layers: [`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestBuild(t *testing.T) {
	c, err := Load("testdata/tegel.yaml")
	require.NoError(t, err)
	svc, closer, err := c.Build(log.New(io.Discard))
	require.NoError(t, err)
	defer closer()

	assert.Equal(t, []string{"osm_EPSG900913", "brt_EPSG4326"}, svc.LayerNames())

	result, err := svc.Tile(context.Background(), service.TileRequest{Layer: "osm", Tile: slippy.Tile{Z: 3, X: 0, Y: 0}})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Data)
	assert.True(t, result.Transparent)
	assert.Equal(t, 1.0, result.Opacity)

	// coarser than the scale range
	_, err = svc.Tile(context.Background(), service.TileRequest{Layer: "osm", Tile: slippy.Tile{Z: 0, X: 0, Y: 0}})
	assert.ErrorIs(t, err, render.ErrOutOfRange)

	result, err = svc.Tile(context.Background(), service.TileRequest{Layer: "brt", Tile: slippy.Tile{Z: 0, X: 1, Y: 0}})
	require.NoError(t, err)
	assert.Equal(t, "jpeg", result.Format)
	assert.Equal(t, 0.8, result.Opacity)

	_, err = svc.Tile(context.Background(), service.TileRequest{Layer: "brt", Tile: slippy.Tile{Z: 0, X: 0, Y: 0}})
	assert.ErrorIs(t, err, render.ErrNoCoverage)
}

func TestBuild_errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "unknown grid", yaml: `
layers:
  - name: osm
    tileMatrixSet: GoogleCRS84Quad
    source: {mapfile: osm.xml}`},
		{name: "unavailable program", yaml: `
layers:
  - name: osm
    tileMatrixSet: WebMercatorQuad
    source: {backend: command, program: tegel-renderer-that-does-not-exist, mapfile: osm.xml}`},
		{name: "scales and resolutions", yaml: `
layers:
  - name: osm
    tileMatrixSet: WebMercatorQuad
    source: {mapfile: osm.xml, resRange: {minRes: 1000, maxScale: 1000}}`},
		{name: "duplicate layer", yaml: `
layers:
  - name: osm
    tileMatrixSet: WebMercatorQuad
    source: {mapfile: osm.xml}
  - name: osm
    tileMatrixSet: WorldCRS84Quad
    source: {mapfile: osm.xml}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse([]byte(tt.yaml))
			require.NoError(t, err)
			_, _, err = c.Build(log.New(io.Discard))
			assert.Error(t, err)
		})
	}
}
