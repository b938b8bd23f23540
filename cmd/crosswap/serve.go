package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/RaghavSood/crosswap/server"
	"github.com/RaghavSood/crosswap/tracker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the bridge tracker",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.store != nil {
		trk := tracker.New(a.store, a.quotes, a.mgr.Executor().CurrentAttempt, a.observers...)
		go trk.Run(ctx)
	} else {
		log.Println("No database configured; interrupted bridge transfers will not be resumed")
	}

	var history server.History
	if a.store != nil {
		history = a.store
	}
	srv := server.New(a.mgr, a.book, history, a.cfg.Port)

	log.WithField("address", a.account.Address().Hex()).Println("Starting crosswap...")
	if err := srv.Start(ctx); err != nil {
		return err
	}
	log.Println("Shutting down...")
	return nil
}
