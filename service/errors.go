package service

import (
	"fmt"
	"net/http"

	"github.com/go-spatial/geom/slippy"
)

// RequestError is a request that cannot be answered, like an unknown layer or a tile outside the grid.
type RequestError struct {
	Message string
	Layer   string
	Tile    *slippy.Tile
	// Status is the HTTP status a server would answer with
	Status int
}

func (e *RequestError) Error() string {
	if e.Tile != nil {
		return fmt.Sprintf("%s (layer %s, tile %d/%d/%d)", e.Message, e.Layer, e.Tile.Z, e.Tile.X, e.Tile.Y)
	}
	return e.Message
}

func newRequestError(msg string, req TileRequest, withTile bool) *RequestError {
	err := &RequestError{Message: msg, Layer: req.Layer, Status: http.StatusBadRequest}
	if withTile {
		tile := req.Tile
		err.Tile = &tile
		err.Status = http.StatusNotFound
	}
	return err
}

// ForbiddenError is returned when the authorizer denies access to a layer.
type ForbiddenError struct {
	Layer string
}

func (e *ForbiddenError) Error() string {
	return "forbidden: " + e.Layer
}

func (e *ForbiddenError) Status() int {
	return http.StatusForbidden
}
