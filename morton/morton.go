// Package morton orders tiles along the Z-order curve, which keeps the children of a quad tree node together.
package morton

import (
	"math"
	"slices"

	"github.com/go-spatial/geom/slippy"
)

type Z = uint

var (
	masks = [...]uint{
		0b0101010101010101010101010101010101010101010101010101010101010101,
		0b0011001100110011001100110011001100110011001100110011001100110011,
		0b0000111100001111000011110000111100001111000011110000111100001111,
		0b0000000011111111000000001111111100000000111111110000000011111111,
		0b0000000000000000111111111111111100000000000000001111111111111111,
		0b0000000000000000000000000000000011111111111111111111111111111111,
	}
	shifts = [...]uint{0, 1, 2, 4, 8, 16}
)

// spread moves bit i of v to bit 2i
func spread(v uint) uint {
	for i := len(masks) - 2; i >= 0; i-- {
		v = (v | v<<shifts[i+1]) & masks[i]
	}
	return v
}

// compact is the inverse of spread, it drops the odd bits
func compact(v uint) uint {
	for i := range masks {
		v = (v | v>>shifts[i]) & masks[i]
	}
	return v
}

// OfTile is the position of a tile on the Z-order curve of its zoom level.
// ok is false when the column or row does not fit in 32 bits.
func OfTile(tile slippy.Tile) (z Z, ok bool) {
	if tile.X > math.MaxUint32 || tile.Y > math.MaxUint32 {
		return 0, false
	}
	return spread(tile.X) | spread(tile.Y)<<1, true
}

// ToTile returns the tile at position z on the curve of the given zoom level.
func ToTile(z Z, zoom uint) slippy.Tile {
	return slippy.Tile{Z: zoom, X: compact(z), Y: compact(z >> 1)}
}

// SortTiles sorts tiles of one zoom level in Z-order of their column and row.
// Zoom levels above 32 do not occur in tile matrix sets, so every column and row fits.
func SortTiles[T any](tiles []T, tile func(T) slippy.Tile) {
	slices.SortStableFunc(tiles, func(a, b T) int {
		za, _ := OfTile(tile(a))
		zb, _ := OfTile(tile(b))
		switch {
		case za < zb:
			return -1
		case za > zb:
			return 1
		}
		return 0
	})
}
