package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pdok/tegel/render"
)

// Command renders by running an external program, for example a nik2img like wrapper around mapnik.
// The program gets the arguments
//
//	<args...> <mapfile> <minx,miny,maxx,maxy> <srs> <width> <height> <format>
//
// and writes the image to stdout. When it fails, the last line it wrote to stderr is the error message.
type Command struct {
	Program string
	Args    []string
}

func (c Command) Name() string {
	return "command:" + c.Program
}

func (c Command) Available() error {
	if c.Program == "" {
		return errors.New("no program configured")
	}
	_, err := exec.LookPath(c.Program)
	return err
}

func (c Command) Render(ctx context.Context, mapfile string, q render.Query) ([]byte, error) {
	args := append(append([]string(nil), c.Args...),
		mapfile,
		formatExtent(q),
		q.SRS.String(),
		strconv.FormatUint(uint64(q.Width), 10),
		strconv.FormatUint(uint64(q.Height), 10),
		q.Format,
	)
	cmd := exec.CommandContext(ctx, c.Program, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := lastLine(stderr.String()); msg != "" {
			return nil, &render.RenderError{Message: msg, Cause: err}
		}
		return nil, fmt.Errorf("%s failed: %w", c.Program, err)
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%s wrote no image", c.Program)
	}
	return stdout.Bytes(), nil
}

func formatExtent(q render.Query) string {
	parts := make([]string, 0, 4)
	for _, v := range q.Extent {
		parts = append(parts, strconv.FormatFloat(v, 'f', -1, 64))
	}
	return strings.Join(parts, ",")
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
