/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ssargent/colstream/pkg/api"
	"github.com/ssargent/colstream/pkg/config"
	"github.com/ssargent/colstream/pkg/ingest"
	"github.com/ssargent/colstream/pkg/metrics"
	"github.com/ssargent/colstream/pkg/storage"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start the colstream REST API server.

POST CSV to /api/v1/encode to get a stream back, or add ?archive=true to
keep it. Archived streams are under /api/v1/streams and Prometheus
metrics under /metrics.

Examples:
  colstream serve --port=8080
  colstream serve --api-key=mysecretkey --archive-dir=./archive`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt := runtimeFrom(cmd)
		serverConfig := serverConfigFrom(cmd, rt.config)

		var archive api.StreamArchive
		noArchive, _ := cmd.Flags().GetBool("no-archive")
		if !noArchive {
			dir := rt.config.Archive.Dir
			if cmd.Flags().Changed("archive-dir") {
				dir, _ = cmd.Flags().GetString("archive-dir")
			}
			a, err := storage.Open(dir)
			if err != nil {
				return err
			}
			defer a.Close()
			archive = a
			rt.logger.Info("archive opened", "dir", dir)
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		server := api.NewServer(archive, serverConfig, reg, rt.logger)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return server.ListenAndServe(gctx)
		})
		if path := rt.config.Metrics.Textfile; path != "" {
			g.Go(func() error {
				return metrics.ExportTextfile(gctx, reg, path, rt.config.Metrics.Interval)
			})
		}
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("bind", "", "Address to bind (default from config)")
	serveCmd.Flags().IntP("port", "p", 0, "Port to listen on (default from config)")
	serveCmd.Flags().String("api-key", "", "API key required in X-API-Key (default from config; empty disables)")
	serveCmd.Flags().String("archive-dir", "", "Archive directory (default from config)")
	serveCmd.Flags().Bool("no-archive", false, "Serve without an archive")
}

// serverConfigFrom merges flags over the config file
func serverConfigFrom(cmd *cobra.Command, cfg *config.Config) api.ServerConfig {
	sc := api.ServerConfig{
		Bind:           cfg.Server.Bind,
		Port:           cfg.Server.Port,
		APIKey:         cfg.Server.APIKey,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		MaxConcurrent:  cfg.Server.MaxConcurrent,
		Encode: ingest.Options{
			BatchSize:  cfg.Encode.BatchSize,
			Comma:      cfg.Encode.Comma(),
			Types:      cfg.Encode.Types,
			Dictionary: cfg.Encode.Dictionary,
		},
	}
	if cmd.Flags().Changed("bind") {
		sc.Bind, _ = cmd.Flags().GetString("bind")
	}
	if cmd.Flags().Changed("port") {
		sc.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("api-key") {
		sc.APIKey, _ = cmd.Flags().GetString("api-key")
	}
	return sc
}

