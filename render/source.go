package render

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/pdok/tegel/srs"
	"github.com/pdok/tegel/tms20"
)

// WebMercatorLevelPlaceholder in a mapfile path is replaced by the web mercator zoom level
// closest to the resolution of the query.
const WebMercatorLevelPlaceholder = "{webmercator_level}"

// levelPlaceholders are the accepted spellings of WebMercatorLevelPlaceholder, longest first.
// The printf style forms keep older mapfile paths working.
var levelPlaceholders = []string{
	"%(webmercator_level)d",
	"%(webmercator_level)s",
	"%(webmercator_level)",
	WebMercatorLevelPlaceholder,
}

// MapfileTemplate is a mapfile path that may contain WebMercatorLevelPlaceholder.
type MapfileTemplate string

func (t MapfileTemplate) NeedsLevel() bool {
	for _, p := range levelPlaceholders {
		if strings.Contains(string(t), p) {
			return true
		}
	}
	return false
}

func (t MapfileTemplate) Resolve(level uint) string {
	l := strconv.FormatUint(uint64(level), 10)
	pairs := make([]string, 0, 2*len(levelPlaceholders))
	for _, p := range levelPlaceholders {
		pairs = append(pairs, p, l)
	}
	return strings.NewReplacer(pairs...).Replace(string(t))
}

// Source renders queries with a Backend through a Gate.
type Source struct {
	backend     Backend
	gate        *Gate
	mapfile     MapfileTemplate
	resRange    *ResRange
	coverage    *Coverage
	opacity     float64
	transparent bool
	levels      *tms20.TileMatrixSet
	transformer *srs.Transformer
	logger      *log.Logger
	now         func() time.Time
}

type SourceOption func(*Source)

func WithResRange(r *ResRange) SourceOption {
	return func(s *Source) {
		s.resRange = r
	}
}

func WithCoverage(c *Coverage) SourceOption {
	return func(s *Source) {
		s.coverage = c
	}
}

// WithOpacity sets the opacity reported on results, 1 by default.
func WithOpacity(opacity float64) SourceOption {
	return func(s *Source) {
		s.opacity = opacity
	}
}

func WithTransparent(transparent bool) SourceOption {
	return func(s *Source) {
		s.transparent = transparent
	}
}

// WithLevelGrid sets the grid used to resolve WebMercatorLevelPlaceholder, WebMercatorQuad by default.
func WithLevelGrid(tms *tms20.TileMatrixSet) SourceOption {
	return func(s *Source) {
		s.levels = tms
	}
}

func WithSourceLogger(l *log.Logger) SourceOption {
	return func(s *Source) {
		s.logger = l
	}
}

func withClock(now func() time.Time) SourceOption {
	return func(s *Source) {
		s.now = now
	}
}

// NewSource returns a Source for mapfile. It fails when the backend is not available.
func NewSource(backend Backend, gate *Gate, mapfile string, opts ...SourceOption) (*Source, error) {
	if err := backend.Available(); err != nil {
		return nil, fmt.Errorf("render backend %s is not available: %w", backend.Name(), err)
	}
	s := &Source{
		backend:     backend,
		gate:        gate,
		mapfile:     MapfileTemplate(mapfile),
		opacity:     1,
		transformer: srs.NewTransformer(),
		logger:      log.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.mapfile.NeedsLevel() && s.levels == nil {
		levels, err := tms20.LoadEmbeddedTileMatrixSet("WebMercatorQuad")
		if err != nil {
			return nil, err
		}
		s.levels = &levels
	}
	return s, nil
}

// Render renders q. It returns ErrOutOfRange or ErrNoCoverage, without invoking the backend,
// when the query cannot produce anything. All failures are *RenderError.
func (s *Source) Render(ctx context.Context, q Query) (*Result, error) {
	if s.resRange != nil && !s.resRange.Contains(q.Extent, q.Width, q.Height, q.SRS) {
		s.logger.Debug("query outside resolution range", "query", q)
		return nil, ErrOutOfRange
	}
	if s.coverage != nil {
		ok, err := s.coverage.Intersects(q.Extent, q.SRS)
		if err != nil {
			return nil, asRenderError(err)
		}
		if !ok {
			s.logger.Debug("query outside coverage", "query", q)
			return nil, ErrNoCoverage
		}
	}
	mapfile, err := s.resolveMapfile(q)
	if err != nil {
		return nil, asRenderError(err)
	}

	label := fmt.Sprintf("%s:%s", mapfile, q)
	data, err := s.gate.Execute(ctx, label, func(ctx context.Context) ([]byte, error) {
		return s.backend.Render(ctx, mapfile, q)
	})
	if err != nil {
		return nil, err
	}
	return &Result{
		Data:        data,
		Size:        len(data),
		Format:      q.Format,
		Opacity:     s.opacity,
		Transparent: s.transparent,
		Timestamp:   s.now(),
	}, nil
}

func (s *Source) resolveMapfile(q Query) (string, error) {
	if !s.mapfile.NeedsLevel() {
		return string(s.mapfile), nil
	}
	if q.Width == 0 {
		return "", fmt.Errorf("cannot determine level of a query without width")
	}
	extent, err := s.transformer.TransformExtent(q.Extent, q.SRS, srs.WebMercator)
	if err != nil {
		return "", err
	}
	level, ok := s.levels.ClosestZoom((extent[2] - extent[0]) / float64(q.Width))
	if !ok {
		return "", fmt.Errorf("no level for query %s", q)
	}
	return s.mapfile.Resolve(level), nil
}
