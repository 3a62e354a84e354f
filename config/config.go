// Package config reads the YAML configuration of layers and renderers and builds a service from it.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/go-spatial/geom"
	"gopkg.in/yaml.v3"

	"github.com/pdok/tegel/backend"
	"github.com/pdok/tegel/mapslicehelp"
	"github.com/pdok/tegel/render"
	"github.com/pdok/tegel/service"
	"github.com/pdok/tegel/srs"
	"github.com/pdok/tegel/tms20"
)

type Config struct {
	// Workers is the number of concurrent renders, 0 means one per CPU
	Workers int `yaml:"workers" validate:"gte=0"`
	// Timeout limits how long a request waits for its render, 0 means no limit
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
	Lock    Lock          `yaml:"lock"`
	// Authorization applies to every request; without it everything is allowed
	Authorization *service.Authorization `yaml:"authorization"`
	Layers        []Layer                `yaml:"layers" validate:"required,min=1,dive"`
}

type Lock struct {
	Type string `yaml:"type" default:"mutex" validate:"oneof=none mutex file"`
	Path string `yaml:"path" validate:"required_if=Type file"`
}

type Layer struct {
	Name string `yaml:"name" validate:"required"`
	// TileMatrixSet is the id of an embedded tile matrix set
	TileMatrixSet string `yaml:"tileMatrixSet" validate:"required_without=TileMatrixSetFile"`
	// TileMatrixSetFile is the path of an OGC TMS 2.0 JSON document
	TileMatrixSetFile string `yaml:"tileMatrixSetFile"`
	Output            string `yaml:"output" default:"EPSG:4326"`
	Format            string `yaml:"format" default:"png" validate:"oneof=png jpeg"`
	// PoleTolerance of 0 only clamps edges exactly on the web mercator bounds
	PoleTolerance *float64 `yaml:"poleTolerance" default:"0.1" validate:"gte=0"`
	Source        Source   `yaml:"source"`
}

type Source struct {
	Backend string   `yaml:"backend" default:"debug" validate:"oneof=debug command"`
	Program string   `yaml:"program" validate:"required_if=Backend command"`
	Args    []string `yaml:"args"`
	// Mapfile may contain render.WebMercatorLevelPlaceholder
	Mapfile     string    `yaml:"mapfile" validate:"required"`
	Opacity     *float64  `yaml:"opacity" default:"1" validate:"gte=0,lte=1"`
	Transparent bool      `yaml:"transparent"`
	ResRange    *ResRange `yaml:"resRange"`
	Coverage    *Coverage `yaml:"coverage"`
}

// ResRange is given either in resolutions or in scale denominators.
type ResRange struct {
	MinRes   float64 `yaml:"minRes" validate:"gte=0"`
	MaxRes   float64 `yaml:"maxRes" validate:"gte=0"`
	MinScale float64 `yaml:"minScale" validate:"gte=0"`
	MaxScale float64 `yaml:"maxScale" validate:"gte=0"`
}

type Coverage struct {
	BBox [4]float64 `yaml:"bbox"`
	SRS  string     `yaml:"srs" default:"EPSG:4326"`
}

// Load reads, defaults and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("could not parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, err
	}
	if err := validator.New().Struct(&c); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &c, nil
}

// Build creates the service with all layers. The returned closer stops the renderers.
func (c *Config) Build(logger *log.Logger) (*service.Service, func(), error) {
	gate := render.NewGate(c.Workers,
		render.WithLock(c.Lock.locker()),
		render.WithTimeout(c.Timeout),
		render.WithHooks(render.LogHooks{Logger: logger.WithPrefix("render")}),
		render.WithGateLogger(logger))

	opts := []service.Option{service.WithLogger(logger)}
	if c.Authorization != nil {
		opts = append(opts, service.WithAuthorizer(service.StaticAuthorizer(*c.Authorization)))
	}
	svc := service.New(opts...)
	for _, lc := range c.Layers {
		l, err := lc.build(gate, logger)
		if err != nil {
			gate.Close()
			return nil, nil, err
		}
		if err := svc.AddLayer(l); err != nil {
			gate.Close()
			return nil, nil, err
		}
	}
	return svc, gate.Close, nil
}

func (l Lock) locker() render.Locker {
	switch l.Type {
	case "none":
		return render.NoLock{}
	case "file":
		return render.NewFileLock(l.Path)
	default:
		return render.NewMutexLock()
	}
}

func (lc Layer) build(gate *render.Gate, logger *log.Logger) (*service.Layer, error) {
	grid, err := lc.grid()
	if err != nil {
		return nil, fmt.Errorf("layer %s: %w", lc.Name, err)
	}
	output, err := srs.Lookup(lc.Output)
	if err != nil {
		return nil, fmt.Errorf("layer %s: %w", lc.Name, err)
	}
	source, err := lc.Source.build(gate, logger.With("layer", lc.Name))
	if err != nil {
		return nil, fmt.Errorf("layer %s: %w", lc.Name, err)
	}
	opts := []service.LayerOption{
		service.WithFormat(lc.Format),
		service.WithOutput(output),
		service.WithLayerLogger(logger),
	}
	if lc.PoleTolerance != nil {
		opts = append(opts, service.WithPoleTolerance(*lc.PoleTolerance))
	}
	return service.NewLayer(lc.Name, grid, source, opts...)
}

func (lc Layer) grid() (*tms20.TileMatrixSet, error) {
	if lc.TileMatrixSetFile != "" {
		tms, err := tms20.LoadJSONTileMatrixSet(lc.TileMatrixSetFile)
		return &tms, err
	}
	known := tms20.EmbeddedTileMatrixSetIDs()
	if _, ok := mapslicehelp.AsKeys(known)[lc.TileMatrixSet]; !ok {
		return nil, fmt.Errorf("unknown tile matrix set %s, known are %s", lc.TileMatrixSet, strings.Join(known, ", "))
	}
	tms, err := tms20.LoadEmbeddedTileMatrixSet(lc.TileMatrixSet)
	return &tms, err
}

func (sc Source) build(gate *render.Gate, logger *log.Logger) (*render.Source, error) {
	var b render.Backend
	switch sc.Backend {
	case "command":
		b = backend.Command{Program: sc.Program, Args: sc.Args}
	default:
		b = backend.Debug{}
	}

	opts := []render.SourceOption{
		render.WithTransparent(sc.Transparent),
		render.WithSourceLogger(logger),
	}
	if sc.Opacity != nil {
		opts = append(opts, render.WithOpacity(*sc.Opacity))
	}
	if sc.ResRange != nil {
		r, err := sc.ResRange.build()
		if err != nil {
			return nil, err
		}
		opts = append(opts, render.WithResRange(r))
	}
	if sc.Coverage != nil {
		coverageSRS, err := srs.Lookup(sc.Coverage.SRS)
		if err != nil {
			return nil, err
		}
		opts = append(opts, render.WithCoverage(render.NewCoverage(geom.Extent(sc.Coverage.BBox), coverageSRS)))
	}
	return render.NewSource(b, gate, sc.Mapfile, opts...)
}

func (r ResRange) build() (*render.ResRange, error) {
	if r.MinScale > 0 || r.MaxScale > 0 {
		if r.MinRes > 0 || r.MaxRes > 0 {
			return nil, fmt.Errorf("resRange takes either resolutions or scales, not both")
		}
		return render.ResRangeFromScales(r.MinScale, r.MaxScale)
	}
	return render.NewResRange(r.MinRes, r.MaxRes)
}

// LayerNames lists the configured layers sorted by name.
func (c *Config) LayerNames() []string {
	names := make([]string, 0, len(c.Layers))
	for _, l := range c.Layers {
		names = append(names, l.Name)
	}
	sort.Strings(names)
	return names
}
