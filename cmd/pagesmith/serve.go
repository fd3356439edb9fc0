package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mateo/pagesmith/internal/server"
)

var serveCommand = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long:  "Starts the API for creating and running generation jobs, applying change requests to documents, and serving published pages.",
	RunE:  serveCmd,
}

var servePort int

func init() {
	serveCommand.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCommand)
}

func serveCmd(_ *cobra.Command, _ []string) error {
	a, err := buildApp(context.Background())
	if err != nil {
		return err
	}
	defer a.Close()

	port := a.cfg.Port
	if servePort > 0 {
		port = servePort
	}

	srv := server.New(server.Config{Port: port}, a.jobs, a.runner, a.engine, a.pages, a.store, a.logger)
	return srv.Start()
}
