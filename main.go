package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/charmbracelet/log"
	"github.com/go-spatial/geom/slippy"
	"github.com/iancoleman/strcase"
	"github.com/urfave/cli/v2"

	"github.com/pdok/tegel/config"
	"github.com/pdok/tegel/pkg/gpkg"
	"github.com/pdok/tegel/processing"
	"github.com/pdok/tegel/render"
	"github.com/pdok/tegel/service"
)

const CONFIG string = `config`
const VERBOSE string = `verbose`
const LAYER string = `layer`
const TILE string = `tile`
const OUTPUT string = `output`
const TARGET string = `targetGpkg`
const OVERWRITE string = `overwrite`
const MAXZOOM string = `maxzoom`
const ROOT string = `root`
const PAGESIZE string = `pagesize`
const WORKERS string = `workers`
const STOPONERROR string = `stopOnError`

//nolint:funlen
func main() {
	app := cli.NewApp()
	app.Name = "tegel"
	app.Usage = "Regionates and renders tile pyramids"
	app.Version = versioninfo.Short()

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:     CONFIG,
			Aliases:  []string{"c"},
			Usage:    "YAML config with the layers and their renderers",
			Required: true,
			EnvVars:  []string{strcase.ToScreamingSnake(CONFIG)},
		},
		&cli.BoolFlag{
			Name:    VERBOSE,
			Aliases: []string{"v"},
			Usage:   "Log at debug level",
			EnvVars: []string{strcase.ToScreamingSnake(VERBOSE)},
		},
	}
	layerFlag := &cli.StringFlag{
		Name:     LAYER,
		Aliases:  []string{"l"},
		Usage:    "Layer name, optionally without its _EPSG4326 or _EPSG900913 suffix",
		Required: true,
		EnvVars:  []string{strcase.ToScreamingSnake(LAYER)},
	}
	tileFlag := &cli.StringFlag{
		Name:     TILE,
		Usage:    "Tile as z/x/y. E.g.: 3/4/2",
		Required: true,
		EnvVars:  []string{strcase.ToScreamingSnake(TILE)},
	}

	app.Commands = []*cli.Command{
		{
			Name:  "layers",
			Usage: "List the configured layers",
			Action: func(c *cli.Context) error {
				svc, closer, err := buildService(c)
				if err != nil {
					return err
				}
				defer closer()
				for _, l := range svc.Layers() {
					fmt.Printf("%s\t%s\t%s\t%s\n", l.Name, l.Grid.ID, l.Native, l.Format)
				}
				return nil
			},
		},
		{
			Name:  "regions",
			Usage: "Print the region document of a tile as JSON",
			Flags: []cli.Flag{layerFlag, tileFlag},
			Action: func(c *cli.Context) error {
				svc, closer, err := buildService(c)
				if err != nil {
					return err
				}
				defer closer()
				tile, err := parseTile(c.String(TILE))
				if err != nil {
					return err
				}
				doc, err := svc.Regions(c.Context, service.TileRequest{Layer: c.String(LAYER), Tile: tile})
				if err != nil {
					return err
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(doc)
			},
		},
		{
			Name:  "render",
			Usage: "Render a single tile",
			Flags: []cli.Flag{layerFlag, tileFlag,
				&cli.StringFlag{
					Name:     OUTPUT,
					Aliases:  []string{"o"},
					Usage:    "File to write the image to",
					Required: true,
					EnvVars:  []string{strcase.ToScreamingSnake(OUTPUT)},
				},
			},
			Action: func(c *cli.Context) error {
				svc, closer, err := buildService(c)
				if err != nil {
					return err
				}
				defer closer()
				tile, err := parseTile(c.String(TILE))
				if err != nil {
					return err
				}
				result, err := svc.Tile(c.Context, service.TileRequest{Layer: c.String(LAYER), Tile: tile})
				if render.IsBlank(err) {
					log.Info("tile is blank, nothing written", "reason", err)
					return nil
				}
				if err != nil {
					return err
				}
				return os.WriteFile(c.String(OUTPUT), result.Data, 0o644)
			},
		},
		{
			Name:  "export",
			Usage: "Render the pyramid of a layer into a GeoPackage",
			Flags: []cli.Flag{layerFlag,
				&cli.StringFlag{
					Name:     TARGET,
					Aliases:  []string{"t"},
					Usage:    "Target GPKG",
					Required: true,
					EnvVars:  []string{strcase.ToScreamingSnake(TARGET)},
				},
				&cli.BoolFlag{
					Name:    OVERWRITE,
					Usage:   "Overwrite the target GPKG if it exists",
					EnvVars: []string{strcase.ToScreamingSnake(OVERWRITE)},
				},
				&cli.UintFlag{
					Name:     MAXZOOM,
					Aliases:  []string{"z"},
					Usage:    "Deepest zoom level to render",
					Required: true,
					EnvVars:  []string{strcase.ToScreamingSnake(MAXZOOM)},
				},
				&cli.StringFlag{
					Name:    ROOT,
					Usage:   "Only render below this z/x/y tile, instead of the whole first level",
					EnvVars: []string{strcase.ToScreamingSnake(ROOT)},
				},
				&cli.IntFlag{
					Name:    PAGESIZE,
					Aliases: []string{"p"},
					Usage:   "Page Size, how many tiles are written per transaction to the target GPKG",
					Value:   1000,
					EnvVars: []string{strcase.ToScreamingSnake(PAGESIZE)},
				},
				&cli.IntFlag{
					Name:    WORKERS,
					Usage:   "Concurrent tile requests, one per CPU when 0",
					EnvVars: []string{strcase.ToScreamingSnake(WORKERS)},
				},
				&cli.BoolFlag{
					Name:    STOPONERROR,
					Usage:   "Stop at the first tile that fails to render",
					EnvVars: []string{strcase.ToScreamingSnake(STOPONERROR)},
				},
			},
			Action: export,
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func export(c *cli.Context) error {
	svc, closer, err := buildService(c)
	if err != nil {
		return err
	}
	defer closer()
	layer, err := svc.Layer(c.String(LAYER))
	if err != nil {
		return err
	}
	roots := processing.Roots(layer.Grid)
	if c.String(ROOT) != "" {
		root, err := parseTile(c.String(ROOT))
		if err != nil {
			return err
		}
		roots = []slippy.Tile{root}
	}

	targetPath := c.String(TARGET)
	if c.Bool(OVERWRITE) {
		if err := removeIfExists(targetPath); err != nil {
			return err
		}
	}
	target, err := gpkg.Open(targetPath, layer.Name, layer.Grid,
		gpkg.WithPageSize(c.Int(PAGESIZE)), gpkg.WithLogger(logger(c)))
	if err != nil {
		return err
	}
	defer target.Close()

	log.Info("=== start rendering ===", "layer", layer.Name, "maxzoom", c.Uint(MAXZOOM))
	_, err = processing.Export(c.Context, svc, layer.Subdivider(), target, processing.Options{
		Layer:       layer.Name,
		Roots:       roots,
		MaxZoom:     c.Uint(MAXZOOM),
		Workers:     c.Int(WORKERS),
		StopOnError: c.Bool(STOPONERROR),
		Logger:      logger(c),
	})
	if err != nil {
		return err
	}
	log.Info("=== done rendering ===")
	return nil
}

func logger(c *cli.Context) *log.Logger {
	level := log.InfoLevel
	if c.Bool(VERBOSE) {
		level = log.DebugLevel
	}
	l := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		Level:           level,
	})
	log.SetDefault(l)
	return l
}

func buildService(c *cli.Context) (*service.Service, func(), error) {
	cfg, err := config.Load(c.String(CONFIG))
	if err != nil {
		return nil, nil, err
	}
	return cfg.Build(logger(c))
}

func parseTile(s string) (slippy.Tile, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return slippy.Tile{}, fmt.Errorf("tile %q is not z/x/y", s)
	}
	var zxy [3]uint
	for i, part := range parts {
		v, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return slippy.Tile{}, fmt.Errorf("tile %q is not z/x/y: %w", s, err)
		}
		zxy[i] = uint(v)
	}
	return slippy.Tile{Z: zxy[0], X: zxy[1], Y: zxy[2]}, nil
}

func removeIfExists(p string) error {
	err := os.Remove(p)
	var pathError *os.PathError
	if err != nil && !(errors.As(err, &pathError) && errors.Is(pathError.Err, syscall.ENOENT)) {
		return fmt.Errorf("could not remove target file: %w", err)
	}
	return nil
}
