package srs

import (
	"errors"
	"testing"

	"github.com/go-spatial/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		code          string
		want          string
		hasProjection bool
	}{
		{code: "EPSG:3857", want: "EPSG:3857", hasProjection: true},
		{code: "epsg:900913", want: "EPSG:3857", hasProjection: true},
		{code: "4326", want: "EPSG:4326", hasProjection: true},
		{code: "OGC:CRS84", want: "OGC:CRS84", hasProjection: true},
		{code: "EPSG:28992", want: "EPSG:28992", hasProjection: false},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got, err := Lookup(tt.code)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Code)
			assert.Equal(t, tt.hasProjection, got.HasProjection())
		})
	}

	_, err := Lookup(" ")
	assert.Error(t, err)
	assert.True(t, MustLookup("EPSG:900913").Equal(WebMercator))
}

func TestTransformExtent_poleClamp(t *testing.T) {
	tr := NewTransformer()

	got, err := tr.TransformExtent(geom.Extent{-WebMercatorMax, -WebMercatorMax, WebMercatorMax, WebMercatorMax}, WebMercator, WGS84)
	require.NoError(t, err)
	assert.InDelta(t, -180.0, got[0], 1e-9)
	assert.Equal(t, -90.0, got[1])
	assert.InDelta(t, 180.0, got[2], 1e-9)
	assert.Equal(t, 90.0, got[3])

	// edges are clamped independently
	got, err = tr.TransformExtent(geom.Extent{0, 0, WebMercatorMax, WebMercatorMax - 0.05}, WebMercator, WGS84)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got[1])
	assert.Equal(t, 90.0, got[3])

	// outside the tolerance the projected latitude stays
	got, err = tr.TransformExtent(geom.Extent{0, -WebMercatorMax + 1, WebMercatorMax, 0}, WebMercator, WGS84)
	require.NoError(t, err)
	assert.InDelta(t, -85.0511, got[1], 1e-4)
	assert.NotEqual(t, -90.0, got[1])

	// no clamping without tolerance
	got, err = (&Transformer{}).TransformExtent(geom.Extent{0, 0, WebMercatorMax, WebMercatorMax - 0.05}, WebMercator, WGS84)
	require.NoError(t, err)
	assert.InDelta(t, 85.0511, got[3], 1e-4)
}

func TestTransformExtent_allCorners(t *testing.T) {
	tr := NewTransformer()
	ext := geom.Extent{-10, 40, 10, 60}

	merc, err := tr.TransformExtent(ext, WGS84, WebMercator)
	require.NoError(t, err)
	back, err := tr.TransformExtent(merc, WebMercator, WGS84)
	require.NoError(t, err)
	for i := range ext {
		assert.InDelta(t, ext[i], back[i], 1e-9)
	}
	assert.Less(t, merc[0], merc[2])
	assert.Less(t, merc[1], merc[3])
}

func TestTransformExtent_sameSRS(t *testing.T) {
	ext := geom.Extent{1, 2, 3, 4}
	got, err := NewTransformer().TransformExtent(ext, MustLookup("EPSG:28992"), MustLookup("28992"))
	require.NoError(t, err)
	assert.Equal(t, ext, got)
}

func TestTransformExtent_noProjection(t *testing.T) {
	_, err := NewTransformer().TransformExtent(geom.Extent{0, 0, 1, 1}, MustLookup("EPSG:28992"), WGS84)
	var transformErr *TransformError
	require.True(t, errors.As(err, &transformErr))
	assert.Equal(t, "EPSG:28992", transformErr.From)
	assert.Equal(t, "EPSG:4326", transformErr.To)

	_, err = NewTransformer().TransformExtent(geom.Extent{0, 0, 1, 1}, WebMercator, MustLookup("EPSG:28992"))
	require.ErrorAs(t, err, &transformErr)
}
