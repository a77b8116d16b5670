package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-style/internal/extent"
	"github.com/joeblew999/plat-style/internal/layer"
	"github.com/joeblew999/plat-style/internal/pipeline"
	"github.com/joeblew999/plat-style/internal/server"
	"github.com/joeblew999/plat-style/internal/style"
)

const version = "0.1.0"

// Options defines all CLI flags and env vars for the geostyle server.
// Flags: --host, --port, --data-dir, --catalog, --base-url, ...
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_CATALOG, ...
type Options struct {
	Host         string `doc:"Host to bind to" default:"0.0.0.0"`
	Port         int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir      string `doc:"Directory of data files served under /data" default:".data"`
	Catalog      string `doc:"Example catalog file (YAML or JSON); empty uses the built-in one"`
	BaseURL      string `doc:"Base URL for relative layer URLs; empty means this server"`
	LogLevel     string `doc:"Log level (debug, info, warn, error)" default:"info"`
	LogConsole   bool   `doc:"Human-readable console logs"`
	FetchTimeout string `doc:"Timeout for one data fetch" default:"30s"`
	LayerTimeout string `doc:"Timeout for processing one layer" default:"30s"`
	Concurrency  int    `doc:"Layers processed in parallel" default:"4"`
	CacheSize    int    `doc:"Entries per URL cache; 0 keeps every entry" default:"0"`
	CacheTTL     string `doc:"Lifetime of a cached entry; 0 keeps entries forever" default:"0"`
	LoadingGrace string `doc:"Delay before the loading indicator clears" default:"800ms"`
}

func (o *Options) config() (server.Config, error) {
	cfg := server.Config{
		Host:        o.Host,
		Port:        strconv.Itoa(o.Port),
		Version:     version,
		CatalogFile: o.Catalog,
		DataDir:     o.DataDir,
		BaseURL:     o.BaseURL,
		LogLevel:    o.LogLevel,
		LogConsole:  o.LogConsole,
		Concurrency: o.Concurrency,
		CacheSize:   o.CacheSize,
	}
	for _, d := range []struct {
		name string
		in   string
		out  *time.Duration
	}{
		{"fetch-timeout", o.FetchTimeout, &cfg.FetchTimeout},
		{"layer-timeout", o.LayerTimeout, &cfg.LayerTimeout},
		{"cache-ttl", o.CacheTTL, &cfg.CacheTTL},
		{"loading-grace", o.LoadingGrace, &cfg.LoadingGrace},
	} {
		if d.in == "" || d.in == "0" {
			continue
		}
		v, err := time.ParseDuration(d.in)
		if err != nil {
			return cfg, fmt.Errorf("--%s: %w", d.name, err)
		}
		*d.out = v
	}
	return cfg, nil
}

func newServer(opts *Options) *server.Server {
	cfg, err := opts.config()
	if err != nil {
		fail(err)
	}
	srv, err := server.New(cfg)
	if err != nil {
		fail(err)
	}
	return srv
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fail(err)
	}
	fmt.Println(string(out))
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})

		hooks.OnStart(func() {
			defer close(done)
			srv := newServer(opts)
			cfg, _ := opts.config()
			baseURL := cfg.DisplayURL()

			fmt.Println()
			fmt.Printf("plat-style API server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Data:    %s (%s/data/)\n", opts.DataDir, baseURL)
			fmt.Println()
			fmt.Printf("  Events:  %s/api/v1/events\n", baseURL)
			fmt.Printf("  Metrics: %s/metrics\n", baseURL)
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Println()

			if err := srv.Run(ctx); err != nil {
				fail(err)
			}
		})

		hooks.OnStop(func() {
			cancel()
			select {
			case <-done:
			case <-time.After(15 * time.Second):
			}
		})
	})

	cli.Root().Use = "geostyle"
	cli.Root().Short = "Map layer styling service: extents, style variables and layer state"
	cli.Root().Version = version

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv := newServer(opts)
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			var err error
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// extent subcommand: measure one data URL
	extentCmd := &cobra.Command{
		Use:   "extent <url>",
		Short: "Print the Web Mercator extent of a FlatGeobuf, GeoJSON, GeoTIFF or PMTiles URL",
		Args:  cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			svc := newServer(opts).Services()
			format, _ := cmd.Flags().GetString("format")
			if format == "" {
				format = pipeline.HandlerID(args[0])
			}
			calc, id, ok := svc.Processor.Registry().Calculator(format)
			if !ok {
				fail(fmt.Errorf("no extent calculator for format %q", id))
			}
			bb, err := calc.Extent(cmd.Context(), args[0])
			if errors.Is(err, extent.ErrNoExtent) {
				fmt.Fprintf(os.Stderr, "%s: no extent\n", args[0])
				os.Exit(2)
			}
			if err != nil {
				fail(err)
			}
			printJSON(map[string]any{"url": args[0], "format": id, "extent": bb.Slice()})
		}),
	}
	extentCmd.Flags().StringP("format", "f", "", "Handler identifier; detected from the URL when empty")
	cli.Root().AddCommand(extentCmd)

	// process subcommand: run a layer file through the pipeline
	processCmd := &cobra.Command{
		Use:   "process <layers-file>",
		Short: "Process a YAML or JSON list of layer definitions and print the result",
		Args:  cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			svc := newServer(opts).Services()
			layers, err := readLayers(args[0])
			if err != nil {
				fail(err)
			}
			var editor style.Document
			if path, _ := cmd.Flags().GetString("style"); path != "" {
				b, err := os.ReadFile(path)
				if err != nil {
					fail(err)
				}
				if editor, err = style.Parse(string(b)); err != nil {
					fail(fmt.Errorf("%s: %w", path, err))
				}
			}
			printJSON(svc.Processor.ProcessLayers(cmd.Context(), layers, editor))
		}),
	}
	processCmd.Flags().StringP("style", "s", "", "Editor style file applied to every layer")
	cli.Root().AddCommand(processCmd)

	cli.Run()
}

// readLayers loads a layer list, either bare or under a "layers" key.
func readLayers(path string) ([]layer.Layer, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw any
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if m, ok := raw.(map[string]any); ok {
		raw = m["layers"]
	}
	// yaml decodes into JSON-compatible values, so a JSON round trip maps
	// them onto the layer model.
	j, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	var out []layer.Layer
	if err := json.Unmarshal(j, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}
