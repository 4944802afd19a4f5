package main

import (
	"fmt"
	"os"

	"github.com/joshharrison/taskloom/internal/api"
	"github.com/joshharrison/taskloom/internal/reporter"
	"github.com/joshharrison/taskloom/internal/ui"
	"github.com/spf13/cobra"
)

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow the task file and report edits made by other processes",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			if err := e.store.Watch(ctx, e.cfg.Watch.Debounce); err != nil {
				return err
			}
			defer e.store.Close()

			reporter.PrintTasks(os.Stdout, e.store.GetAll())
			fmt.Printf("\n👀 %s %s %s\n", ui.BoldCyan("Watching"), e.store.Path(), ui.Dim("(Ctrl-C to stop)"))
			<-ctx.Done()
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var flagAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the task store and batch runner over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			p, err := e.newPump()
			if err != nil {
				return err
			}

			addr := e.cfg.API.Addr
			if flagAddr != "" {
				addr = flagAddr
			}

			ctx, stop := signalContext()
			defer stop()

			if err := e.store.Watch(ctx, e.cfg.Watch.Debounce); err != nil {
				return err
			}
			defer e.store.Close()

			srv := api.New(ctx, e.store, p, os.Stderr)
			return srv.ListenAndServe(ctx, addr, func(bound string) {
				ui.PrintLogo()
				fmt.Printf("🌐 %s http://%s\n", ui.BoldCyan("Serving tasks on"), bound)
				fmt.Printf("   %s\n", ui.Dim("Press Ctrl+C to stop (a running batch stops after its current task)"))
			})
		},
	}

	cmd.Flags().StringVar(&flagAddr, "addr", "", "Listen address (default from config, 127.0.0.1:7420)")
	addExecutorFlags(cmd)
	return cmd
}
