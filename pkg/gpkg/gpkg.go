// Package gpkg writes rendered tiles into a GeoPackage tile pyramid table.
package gpkg

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/gpkg"
	"github.com/go-spatial/geom/slippy"

	"github.com/pdok/tegel/processing"
	"github.com/pdok/tegel/tms20"
)

const defaultPageSize = 1000

// wgs84SRSID is registered in every GeoPackage
const wgs84SRSID = 4326

// TileTarget is a processing.Target writing into the tiles table of a GeoPackage.
type TileTarget struct {
	handle   *gpkg.Handle
	table    string
	tms      *tms20.TileMatrixSet
	pageSize int
	logger   *log.Logger
}

type Option func(*TileTarget)

func WithPageSize(n int) Option {
	return func(t *TileTarget) {
		if n > 0 {
			t.pageSize = n
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(t *TileTarget) {
		t.logger = l
	}
}

// Open opens or creates the GeoPackage at file and prepares a tiles table for tms.
func Open(file, table string, tms *tms20.TileMatrixSet, opts ...Option) (*TileTarget, error) {
	handle, err := gpkg.Open(file)
	if err != nil {
		return nil, fmt.Errorf("error opening GeoPackage: %w", err)
	}
	t := &TileTarget{
		handle:   handle,
		table:    table,
		tms:      tms,
		pageSize: defaultPageSize,
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if err := t.createTables(); err != nil {
		handle.Close()
		return nil, err
	}
	return t, nil
}

func (t *TileTarget) Close() error {
	return t.handle.Close()
}

func (t *TileTarget) createTables() error {
	srsID, err := t.registerSRS()
	if err != nil {
		return err
	}
	bounds, err := pyramidBounds(t.tms)
	if err != nil {
		return err
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS gpkg_tile_matrix_set (
			table_name TEXT NOT NULL PRIMARY KEY, srs_id INTEGER NOT NULL,
			min_x DOUBLE NOT NULL, min_y DOUBLE NOT NULL, max_x DOUBLE NOT NULL, max_y DOUBLE NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS gpkg_tile_matrix (
			table_name TEXT NOT NULL, zoom_level INTEGER NOT NULL,
			matrix_width INTEGER NOT NULL, matrix_height INTEGER NOT NULL,
			tile_width INTEGER NOT NULL, tile_height INTEGER NOT NULL,
			pixel_x_size DOUBLE NOT NULL, pixel_y_size DOUBLE NOT NULL,
			CONSTRAINT pk_ttm PRIMARY KEY (table_name, zoom_level))`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%s" (
			id INTEGER PRIMARY KEY AUTOINCREMENT, zoom_level INTEGER NOT NULL,
			tile_column INTEGER NOT NULL, tile_row INTEGER NOT NULL, tile_data BLOB NOT NULL,
			UNIQUE (zoom_level, tile_column, tile_row))`, t.table),
	}
	for _, stmt := range statements {
		if _, err := t.handle.Exec(stmt); err != nil {
			return fmt.Errorf("error building tile tables in GeoPackage: %w", err)
		}
	}

	_, err = t.handle.Exec(`INSERT OR REPLACE INTO gpkg_contents
		(table_name, data_type, identifier, description, last_change, min_x, min_y, max_x, max_y, srs_id)
		VALUES (?, 'tiles', ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.table, t.table, t.table, time.Now().UTC().Format(time.RFC3339),
		bounds[0], bounds[1], bounds[2], bounds[3], srsID)
	if err != nil {
		return fmt.Errorf("error adding tiles table to gpkg_contents: %w", err)
	}
	_, err = t.handle.Exec(`INSERT OR REPLACE INTO gpkg_tile_matrix_set
		(table_name, srs_id, min_x, min_y, max_x, max_y) VALUES (?, ?, ?, ?, ?, ?)`,
		t.table, srsID, bounds[0], bounds[1], bounds[2], bounds[3])
	if err != nil {
		return err
	}
	for _, zoom := range t.tms.Zooms() {
		tm := t.tms.TileMatrices[int(zoom)]
		_, err = t.handle.Exec(`INSERT OR REPLACE INTO gpkg_tile_matrix
			(table_name, zoom_level, matrix_width, matrix_height, tile_width, tile_height, pixel_x_size, pixel_y_size)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			t.table, zoom, tm.MatrixWidth, tm.MatrixHeight, tm.TileWidth, tm.TileHeight, tm.CellSize, tm.CellSize)
		if err != nil {
			return err
		}
	}
	return nil
}

// registerSRS adds the reference system of the tile matrix set, unless it is WGS84 which every
// GeoPackage has.
func (t *TileTarget) registerSRS() (int, error) {
	code := t.tms.SRSCode()
	authority, number, _ := strings.Cut(code, ":")
	id, err := strconv.Atoi(number)
	if err != nil || !strings.EqualFold(authority, "EPSG") || id == wgs84SRSID {
		// CRS84 is stored as 4326
		return wgs84SRSID, nil
	}
	err = t.handle.UpdateSRS(gpkg.SpatialReferenceSystem{
		Name:                   code,
		ID:                     id,
		Organization:           "EPSG",
		OrganizationCoordsysID: id,
		Definition:             "undefined",
		Description:            t.tms.Title,
	})
	if err != nil {
		return 0, fmt.Errorf("could not register %s: %w", code, err)
	}
	return id, nil
}

// pyramidBounds is the extent of the first level of tms
func pyramidBounds(tms *tms20.TileMatrixSet) (geom.Extent, error) {
	zooms := tms.Zooms()
	if len(zooms) == 0 {
		return geom.Extent{}, fmt.Errorf("tile matrix set %s has no tile matrices", tms.ID)
	}
	size, _ := tms.Size(zooms[0])
	first, ok := tms.TileExtent(slippy.Tile{Z: zooms[0], X: 0, Y: 0})
	last, ok2 := tms.TileExtent(slippy.Tile{Z: zooms[0], X: size.X - 1, Y: size.Y - 1})
	if !ok || !ok2 {
		return geom.Extent{}, fmt.Errorf("tile matrix set %s has no extent", tms.ID)
	}
	return geom.Extent{
		min(first[0], last[0]), min(first[1], last[1]),
		max(first[2], last[2]), max(first[3], last[3]),
	}, nil
}

// WriteTiles stores the incoming tiles, a page per transaction.
func (t *TileTarget) WriteTiles(ctx context.Context, tiles <-chan processing.Tile) error {
	var page []processing.Tile
	var written int
	for tile := range tiles {
		page = append(page, tile)
		if len(page)%t.pageSize == 0 {
			if err := t.writeTiles(ctx, page); err != nil {
				return err
			}
			written += len(page)
			page = nil
		}
	}
	if len(page) > 0 {
		if err := t.writeTiles(ctx, page); err != nil {
			return err
		}
		written += len(page)
	}
	t.logger.Info("tiles written", "table", t.table, "count", written)
	return nil
}

func (t *TileTarget) writeTiles(ctx context.Context, tiles []processing.Tile) error {
	tx, err := t.handle.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not start a transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT OR REPLACE INTO "%s" (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)`, t.table))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("could not prepare a statement: %w", err)
	}
	defer stmt.Close()

	for _, tile := range tiles {
		row, ok := t.tileRow(tile)
		if !ok {
			t.logger.Warn("tile outside tile matrix set", "tile", tile.Tile)
			continue
		}
		if _, err := stmt.ExecContext(ctx, tile.Tile.Z, tile.Tile.X, row, tile.Result.Data); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("could not write tile %d/%d/%d: %w", tile.Tile.Z, tile.Tile.X, tile.Tile.Y, err)
		}
	}
	return tx.Commit()
}

// tileRow is the GeoPackage row of a tile, counted from the top.
func (t *TileTarget) tileRow(tile processing.Tile) (uint, bool) {
	tm, ok := t.tms.TileMatrices[int(tile.Tile.Z)]
	if !ok || tile.Tile.Y >= tm.MatrixHeight || tile.Result == nil {
		return 0, false
	}
	if tm.CornerOfOrigin == tms20.BottomLeft {
		return tm.MatrixHeight - 1 - tile.Tile.Y, true
	}
	return tile.Tile.Y, true
}
