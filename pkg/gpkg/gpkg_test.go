package gpkg

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/go-spatial/geom/encoding/gpkg"
	"github.com/go-spatial/geom/slippy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdok/tegel/processing"
	"github.com/pdok/tegel/render"
	"github.com/pdok/tegel/tms20"
)

func loadTileMatrixSet(t *testing.T, id string) *tms20.TileMatrixSet {
	t.Helper()
	tms, err := tms20.LoadEmbeddedTileMatrixSet(id)
	require.NoError(t, err)
	return &tms
}

func sendTiles(tiles ...slippy.Tile) <-chan processing.Tile {
	c := make(chan processing.Tile, len(tiles))
	for _, tile := range tiles {
		c <- processing.Tile{Tile: tile, Result: &render.Result{Data: []byte{byte(tile.Z), byte(tile.X), byte(tile.Y)}}}
	}
	close(c)
	return c
}

func TestTileTarget(t *testing.T) {
	file := filepath.Join(t.TempDir(), "tiles.gpkg")
	target, err := Open(file, "osm", loadTileMatrixSet(t, "WebMercatorQuad"),
		WithPageSize(2), WithLogger(log.New(io.Discard)))
	require.NoError(t, err)

	err = target.WriteTiles(context.Background(), sendTiles(
		slippy.Tile{Z: 0, X: 0, Y: 0},
		slippy.Tile{Z: 1, X: 0, Y: 0},
		slippy.Tile{Z: 1, X: 1, Y: 0},
		slippy.Tile{Z: 1, X: 0, Y: 1},
		slippy.Tile{Z: 1, X: 1, Y: 1},
		slippy.Tile{Z: 1, X: 1, Y: 1},
		slippy.Tile{Z: 1, X: 0, Y: 2},
	))
	require.NoError(t, err)
	require.NoError(t, target.Close())

	h, err := gpkg.Open(file)
	require.NoError(t, err)
	defer h.Close()

	var count int
	require.NoError(t, h.QueryRow(`SELECT count(*) FROM "osm"`).Scan(&count))
	assert.Equal(t, 5, count)

	var data []byte
	require.NoError(t, h.QueryRow(`SELECT tile_data FROM "osm" WHERE zoom_level = 1 AND tile_column = 1 AND tile_row = 0`).Scan(&data))
	assert.Equal(t, []byte{1, 1, 0}, data)

	require.NoError(t, h.QueryRow(`SELECT count(*) FROM gpkg_tile_matrix WHERE table_name = 'osm'`).Scan(&count))
	assert.Equal(t, 25, count)

	var srsID int
	var minX, maxY float64
	require.NoError(t, h.QueryRow(`SELECT srs_id, min_x, max_y FROM gpkg_tile_matrix_set WHERE table_name = 'osm'`).Scan(&srsID, &minX, &maxY))
	assert.Equal(t, 3857, srsID)
	assert.InDelta(t, -20037508.342789244, minX, 1e-6)
	assert.InDelta(t, 20037508.342789244, maxY, 1e-6)

	var dataType string
	require.NoError(t, h.QueryRow(`SELECT data_type FROM gpkg_contents WHERE table_name = 'osm'`).Scan(&dataType))
	assert.Equal(t, "tiles", dataType)
}

func TestTileTarget_bottomLeftRows(t *testing.T) {
	tms, err := tms20.LoadJSONTileMatrixSet("../../tms20/testdata/BottomLeftDoubleHeight.json")
	require.NoError(t, err)
	target := &TileTarget{tms: &tms}

	row, ok := target.tileRow(processing.Tile{Tile: slippy.Tile{Z: 0, X: 0, Y: 0}, Result: &render.Result{}})
	require.True(t, ok)
	assert.Equal(t, uint(1), row)

	row, ok = target.tileRow(processing.Tile{Tile: slippy.Tile{Z: 1, X: 0, Y: 3}, Result: &render.Result{}})
	require.True(t, ok)
	assert.Equal(t, uint(0), row)

	_, ok = target.tileRow(processing.Tile{Tile: slippy.Tile{Z: 0, X: 0, Y: 2}, Result: &render.Result{}})
	assert.False(t, ok)
}

func TestTileTarget_geographic(t *testing.T) {
	file := filepath.Join(t.TempDir(), "tiles.gpkg")
	target, err := Open(file, "brt", loadTileMatrixSet(t, "WorldCRS84Quad"), WithLogger(log.New(io.Discard)))
	require.NoError(t, err)
	require.NoError(t, target.Close())

	h, err := gpkg.Open(file)
	require.NoError(t, err)
	defer h.Close()
	var srsID int
	var minX, minY, maxX, maxY float64
	require.NoError(t, h.QueryRow(`SELECT srs_id, min_x, min_y, max_x, max_y FROM gpkg_tile_matrix_set WHERE table_name = 'brt'`).
		Scan(&srsID, &minX, &minY, &maxX, &maxY))
	assert.Equal(t, 4326, srsID)
	assert.Equal(t, []float64{-180, -90, 180, 90}, []float64{minX, minY, maxX, maxY})
}
