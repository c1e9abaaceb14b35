package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shashiranjanraj/upbridge/app/providers"
	"github.com/shashiranjanraj/upbridge/app/routes"
	"github.com/shashiranjanraj/upbridge/config"
	"github.com/shashiranjanraj/upbridge/pkg/app"
	"github.com/shashiranjanraj/upbridge/pkg/callback"
	"github.com/shashiranjanraj/upbridge/pkg/router"
)

// upbridge serve: boot the container and serve until SIGINT/SIGTERM.
var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"run"},
	Short:   "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c, err := providers.Build(ctx, nil)
		if err != nil {
			return err
		}
		defer c.Close()

		return app.New().
			Routes(c.RegisterRoutes).
			OnShutdown(c.StopStreams).
			Serve(ctx, ":"+config.AppPort())
	},
}

// upbridge routes: print the route table without booting any service.
var routeListCmd = &cobra.Command{
	Use:     "routes",
	Aliases: []string{"route:list"},
	Short:   "List all registered routes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.New().
			Routes(func(r *router.Router) {
				routes.RegisterAPI(r, routes.API{AuthEnabled: config.AuthEnabled()})
			}).
			RouteList(cmd.OutOrStdout())
	},
}

// upbridge callbacks: print every callback option with its dispatch mode.
var callbacksCmd = &cobra.Command{
	Use:   "callbacks",
	Short: "List the callback options and how each is dispatched",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "OPTION\tEVENT\tMODE")
		fmt.Fprintln(w, "------\t-----\t----")
		for _, name := range callback.All {
			fmt.Fprintf(w, "%s\t%s\t%s\n", name, callback.EventName(name), callback.Classify(name))
		}
		return w.Flush()
	},
}
