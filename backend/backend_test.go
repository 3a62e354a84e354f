package backend

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/go-spatial/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdok/tegel/render"
	"github.com/pdok/tegel/srs"
)

func testQuery(format string) render.Query {
	return render.Query{
		Extent: geom.Extent{-180, -90, 0, 90},
		Width:  256,
		Height: 128,
		SRS:    srs.WGS84,
		Format: format,
	}
}

func TestDebug_Render(t *testing.T) {
	tests := []struct {
		format string
		decode func(b []byte) (image.Image, error)
	}{
		{format: "png", decode: func(b []byte) (image.Image, error) { return png.Decode(bytes.NewReader(b)) }},
		{format: "", decode: func(b []byte) (image.Image, error) { return png.Decode(bytes.NewReader(b)) }},
		{format: "jpeg", decode: func(b []byte) (image.Image, error) { return jpeg.Decode(bytes.NewReader(b)) }},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			data, err := Debug{}.Render(context.Background(), "osm.xml", testQuery(tt.format))
			require.NoError(t, err)
			img, err := tt.decode(data)
			require.NoError(t, err)
			assert.Equal(t, image.Rect(0, 0, 256, 128), img.Bounds())
		})
	}

	_, err := Debug{}.Render(context.Background(), "osm.xml", testQuery("tiff"))
	assert.ErrorContains(t, err, "unsupported image format")

	q := testQuery("png")
	q.Width = 0
	_, err = Debug{}.Render(context.Background(), "osm.xml", q)
	assert.Error(t, err)
}

func TestCommand_Render(t *testing.T) {
	c := Command{Program: "sh", Args: []string{"-c", `printf '%s|%s|%s|%sx%s|%s' "$@"`, "tegel"}}
	require.NoError(t, c.Available())

	data, err := c.Render(context.Background(), "osm.xml", testQuery("png"))
	require.NoError(t, err)
	assert.Equal(t, "osm.xml|-180,-90,0,90|EPSG:4326|256x128|png", string(data))
}

func TestCommand_RenderError(t *testing.T) {
	c := Command{Program: "sh", Args: []string{"-c", `echo "loading fonts" >&2; echo "font not found" >&2; exit 1`, "tegel"}}

	_, err := c.Render(context.Background(), "osm.xml", testQuery("png"))
	var renderErr *render.RenderError
	require.ErrorAs(t, err, &renderErr)
	assert.Equal(t, "font not found", renderErr.Message)

	_, err = Command{Program: "sh", Args: []string{"-c", "exit 0", "tegel"}}.Render(context.Background(), "osm.xml", testQuery("png"))
	assert.ErrorContains(t, err, "wrote no image")
}

func TestCommand_Available(t *testing.T) {
	assert.Error(t, Command{}.Available())
	assert.Error(t, Command{Program: "tegel-renderer-that-does-not-exist"}.Available())
}
