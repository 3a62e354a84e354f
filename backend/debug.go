// Package backend contains render.Backend implementations.
package backend

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"strings"

	"github.com/fogleman/gg"

	"github.com/pdok/tegel/render"
)

// Debug draws the query itself: a frame with the extent, reference system and mapfile.
// Useful to inspect a pyramid without a real map. It is safe for concurrent use.
type Debug struct{}

func (Debug) Name() string {
	return "debug"
}

func (Debug) Available() error {
	return nil
}

func (Debug) Render(ctx context.Context, mapfile string, q render.Query) ([]byte, error) {
	if q.Width == 0 || q.Height == 0 {
		return nil, fmt.Errorf("cannot draw an image of %dx%d pixels", q.Width, q.Height)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w, h := float64(q.Width), float64(q.Height)
	dc := gg.NewContext(int(q.Width), int(q.Height))
	dc.SetRGBA(1, 1, 1, 0.3)
	dc.Clear()

	dc.SetRGB(0.8, 0.1, 0.1)
	dc.SetLineWidth(2)
	dc.DrawRectangle(1, 1, w-2, h-2)
	dc.Stroke()

	dc.SetRGB(0, 0, 0)
	lines := []string{
		mapfile,
		q.SRS.String(),
		fmt.Sprintf("%.6f %.6f", q.Extent[0], q.Extent[1]),
		fmt.Sprintf("%.6f %.6f", q.Extent[2], q.Extent[3]),
	}
	for i, line := range lines {
		dc.DrawStringAnchored(line, w/2, h/2+float64(i-len(lines)/2)*16, 0.5, 0.5)
	}

	var buf bytes.Buffer
	var err error
	switch strings.ToLower(q.Format) {
	case "", "png":
		err = dc.EncodePNG(&buf)
	case "jpeg", "jpg":
		err = jpeg.Encode(&buf, dc.Image(), &jpeg.Options{Quality: 90})
	default:
		return nil, fmt.Errorf("unsupported image format %q", q.Format)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
