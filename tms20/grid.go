package tms20

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/slippy"
)

// affectedShrinkFactor is the part of a cell by which an extent is shrunk before looking up the
// tiles it affects, so that tiles which merely touch its edges are left out.
const affectedShrinkFactor = 0.1

// TileRange is an inclusive, rectangular block of tiles within one tile matrix.
type TileRange struct {
	Zoom   uint `json:"zoom"`
	MinCol uint `json:"minCol"`
	MinRow uint `json:"minRow"`
	MaxCol uint `json:"maxCol"`
	MaxRow uint `json:"maxRow"`
}

// Width is the number of tile columns in the range.
func (r TileRange) Width() uint {
	return r.MaxCol - r.MinCol + 1
}

// Height is the number of tile rows in the range.
func (r TileRange) Height() uint {
	return r.MaxRow - r.MinRow + 1
}

// Tiles lists the tiles of the range, row by row.
func (r TileRange) Tiles() []slippy.Tile {
	tiles := make([]slippy.Tile, 0, r.Width()*r.Height())
	for row := r.MinRow; row <= r.MaxRow; row++ {
		for col := r.MinCol; col <= r.MaxCol; col++ {
			tiles = append(tiles, slippy.Tile{Z: r.Zoom, X: col, Y: row})
		}
	}
	return tiles
}

func (r TileRange) String() string {
	return fmt.Sprintf("%d/[%d-%d]/[%d-%d]", r.Zoom, r.MinCol, r.MaxCol, r.MinRow, r.MaxRow)
}

// Zooms returns the zoom levels of the tile matrix set in ascending order.
func (tms *TileMatrixSet) Zooms() []uint {
	zooms := make([]uint, 0, len(tms.TileMatrices))
	for z := range tms.TileMatrices {
		zooms = append(zooms, uint(z))
	}
	sort.Slice(zooms, func(i, j int) bool { return zooms[i] < zooms[j] })
	return zooms
}

// MaxZoom returns the deepest zoom level.
func (tms *TileMatrixSet) MaxZoom() uint {
	zooms := tms.Zooms()
	if len(zooms) == 0 {
		return 0
	}
	return zooms[len(zooms)-1]
}

// SRSCode returns the CRS as "AUTHORITY:CODE", e.g. EPSG:3857 or OGC:CRS84.
func (tms *TileMatrixSet) SRSCode() string {
	return tms.CRS.AuthorityName() + ":" + tms.CRS.AuthorityCode()
}

func (tms *TileMatrixSet) SRID() uint {
	code, err := strconv.ParseUint(tms.CRS.AuthorityCode(), 10, 64)
	if err != nil {
		panic(fmt.Errorf(`could not parse uri authority code "%w"`, err))
	}
	return uint(code)
}

// TileSize returns the tile size in pixels at zoom.
func (tms *TileMatrixSet) TileSize(zoom uint) (width, height uint, ok bool) {
	tm, ok := tms.TileMatrices[int(zoom)]
	if !ok {
		return 0, 0, false
	}
	return tm.TileWidth, tm.TileHeight, true
}

// CellSize returns the resolution (CRS units per pixel) at zoom.
func (tms *TileMatrixSet) CellSize(zoom uint) (float64, bool) {
	tm, ok := tms.TileMatrices[int(zoom)]
	if !ok {
		return 0, false
	}
	return tm.CellSize, true
}

// ClosestZoom returns the zoom level whose cell size is closest to res, on a logarithmic scale.
func (tms *TileMatrixSet) ClosestZoom(res float64) (uint, bool) {
	if res <= 0 || math.IsNaN(res) || math.IsInf(res, 0) {
		return 0, false
	}
	best, found := uint(0), false
	bestDist := math.Inf(1)
	for _, zoom := range tms.Zooms() {
		dist := math.Abs(math.Log(tms.TileMatrices[int(zoom)].CellSize / res))
		if dist < bestDist {
			best, bestDist, found = zoom, dist, true
		}
	}
	return best, found
}

func (tms *TileMatrixSet) Size(zoom uint) (*slippy.Tile, bool) {
	tm, ok := tms.TileMatrices[int(zoom)]
	if !ok {
		return nil, false
	}
	return slippy.NewTile(zoom, tm.MatrixWidth, tm.MatrixHeight), true
}

// TileExtent returns the extent of tile in the native CRS.
// ok is false when the tile is not part of the tile matrix set.
func (tms *TileMatrixSet) TileExtent(tile slippy.Tile) (extent geom.Extent, ok bool) {
	tm, ok := tms.TileMatrices[int(tile.Z)]
	if !ok || tm.VariableMatrixWidths != nil {
		return extent, false
	}
	if tile.X >= tm.MatrixWidth || tile.Y >= tm.MatrixHeight {
		return extent, false
	}

	tileSizeX, tileSizeY := tm.tileSize()
	origin := tm.PointOfOrigin.XY()
	extent[0] = origin[0] + float64(tile.X)*tileSizeX
	extent[2] = extent[0] + tileSizeX
	switch tm.CornerOfOrigin {
	case BottomLeft:
		extent[1] = origin[1] + float64(tile.Y)*tileSizeY
		extent[3] = extent[1] + tileSizeY
	default:
		extent[3] = origin[1] - float64(tile.Y)*tileSizeY
		extent[1] = extent[3] - tileSizeY
	}
	return extent, true
}

// AffectedTiles returns the block of tiles at zoom that overlap extent, clipped to the tile matrix.
// Tiles that only share an edge with extent are not affected.
func (tms *TileMatrixSet) AffectedTiles(extent geom.Extent, zoom uint) (TileRange, bool) {
	tm, ok := tms.TileMatrices[int(zoom)]
	if !ok || tm.VariableMatrixWidths != nil {
		return TileRange{}, false
	}

	delta := tm.CellSize * affectedShrinkFactor
	minX, minY := extent[0]+delta, extent[1]+delta
	maxX, maxY := extent[2]-delta, extent[3]-delta
	if minX > maxX || minY > maxY {
		return TileRange{}, false
	}

	tileSizeX, tileSizeY := tm.tileSize()
	origin := tm.PointOfOrigin.XY()
	col0 := math.Floor((minX - origin[0]) / tileSizeX)
	col1 := math.Floor((maxX - origin[0]) / tileSizeX)
	var row0, row1 float64
	switch tm.CornerOfOrigin {
	case BottomLeft:
		row0 = math.Floor((minY - origin[1]) / tileSizeY)
		row1 = math.Floor((maxY - origin[1]) / tileSizeY)
	default:
		row0 = math.Floor((origin[1] - maxY) / tileSizeY)
		row1 = math.Floor((origin[1] - minY) / tileSizeY)
	}

	maxCol, maxRow := float64(tm.MatrixWidth-1), float64(tm.MatrixHeight-1)
	if col1 < 0 || row1 < 0 || col0 > maxCol || row0 > maxRow {
		return TileRange{}, false
	}
	return TileRange{
		Zoom:   zoom,
		MinCol: uint(math.Max(col0, 0)),
		MinRow: uint(math.Max(row0, 0)),
		MaxCol: uint(math.Min(col1, maxCol)),
		MaxRow: uint(math.Min(row1, maxRow)),
	}, true
}

func (tms *TileMatrixSet) FromNative(zoom uint, pt geom.Point) (*slippy.Tile, bool) {
	tm, ok := tms.TileMatrices[int(zoom)]
	if !ok || tm.VariableMatrixWidths != nil {
		return nil, false
	}

	tileSizeX, tileSizeY := tm.tileSize()
	origin := tm.PointOfOrigin.XY()
	x := math.Floor((pt.X() - origin[0]) / tileSizeX)
	var y float64
	switch tm.CornerOfOrigin {
	case BottomLeft:
		y = math.Floor((pt.Y() - origin[1]) / tileSizeY)
	default:
		y = math.Floor((origin[1] - pt.Y()) / tileSizeY)
	}
	if x < 0 || y < 0 || x >= float64(tm.MatrixWidth) || y >= float64(tm.MatrixHeight) {
		return nil, false
	}
	return slippy.NewTile(zoom, uint(x), uint(y)), true
}

// ToNative returns the top left corner of tile.
// It accepts x and y values one higher than the maximum, to be able to get the far corners.
func (tms *TileMatrixSet) ToNative(tile *slippy.Tile) (geom.Point, bool) {
	tm, ok := tms.TileMatrices[int(tile.Z)]
	if !ok || tile.X > tm.MatrixWidth || tile.Y > tm.MatrixHeight {
		return geom.Point{}, false
	}

	tileSizeX, tileSizeY := tm.tileSize()
	origin := tm.PointOfOrigin.XY()
	topLeft := geom.Point{origin[0] + float64(tile.X)*tileSizeX}
	switch tm.CornerOfOrigin {
	case BottomLeft:
		topLeft[1] = origin[1] + float64(tile.Y+1)*tileSizeY
	default:
		topLeft[1] = origin[1] - float64(tile.Y)*tileSizeY
	}
	return topLeft, true
}
