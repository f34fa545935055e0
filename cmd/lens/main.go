package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/spatiallens/lens/internal/config"
	"github.com/spatiallens/lens/internal/server"
)

// Options defines all CLI flags and env vars for the lens server.
// Flags: --host, --port, --config, --data-dir, --web-dir, --api-url, --debug
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_CONFIG, ...
type Options struct {
	Host    string `doc:"Host to bind to" default:"0.0.0.0"`
	Port    int    `doc:"Port to listen on" short:"p" default:"8086"`
	Config  string `doc:"Path to YAML config file" default:"lens.yaml"`
	DataDir string `doc:"Directory for session state files" default:".data"`
	WebDir  string `doc:"Path to web/ directory" default:"web"`
	APIURL  string `doc:"Spatial Lens backend base URL (overrides config)" default:""`
	Debug   bool   `doc:"Enable debug logging" default:"false"`
}

func newLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func newServer(opts *Options) (*server.Server, zerolog.Logger, error) {
	log := newLogger(opts.Debug)

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, log, fmt.Errorf("load config %s: %w", opts.Config, err)
	}

	// Flags win over the config file.
	cfg.Server.Host = opts.Host
	cfg.Server.Port = opts.Port
	cfg.Server.WebDir = opts.WebDir
	cfg.Data.Dir = opts.DataDir
	if opts.APIURL != "" {
		cfg.API.BaseURL = opts.APIURL
	}

	return server.New(*cfg, log), log, nil
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		srv, log, err := newServer(opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		hooks.OnStart(func() {
			srv.Start(context.Background())

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			log.Info().
				Str("server", baseURL).
				Str("data", opts.DataDir).
				Msg("spatial-lens viewer starting")
			log.Info().
				Str("viewer", baseURL+"/viewer").
				Str("docs", baseURL+"/docs").
				Str("openapi", baseURL+"/openapi.json").
				Msg("endpoints")

			if err := http.ListenAndServe(addr, srv); err != nil {
				log.Fatal().Err(err).Msg("server error")
			}
		})
	})

	cli.Root().Use = "lens"
	cli.Root().Short = "Spatial Lens map layer session server"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv, _, err := newServer(opts)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
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

	cli.Run()
}
