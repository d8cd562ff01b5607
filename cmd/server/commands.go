package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"sdcatalog/internal/graph/cypher"
	httpapi "sdcatalog/internal/http"
	"sdcatalog/internal/platform/httpserver"
	"sdcatalog/internal/platform/metrics"
	"sdcatalog/internal/selfdescription/sweeper"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ops server and the expiry sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			handler := httpapi.NewRouter(httpapi.New(a.checkers, a.registry.Handler(), a.logger))
			srv := httpserver.New(a.cfg.Server.Addr, handler)

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				a.logger.InfoContext(ctx, "starting ops server", "addr", a.cfg.Server.Addr)
				return httpserver.Serve(ctx, srv, a.cfg.Server.ShutdownTimeout)
			})
			if a.cfg.Sweep.Enabled {
				w := sweeper.NewWorker(a.service, a.cfg.Sweep.Interval, sweeper.WithLogger(a.logger))
				g.Go(func() error {
					if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
						return err
					}
					return nil
				})
			}
			a.registry.Up.Set(1)

			err = g.Wait()
			a.logger.Info("shutdown complete")
			return err
		},
	}
}

func newSweepCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire every ACTIVE self-description past its expiration time, once",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			n, err := sweeper.NewWorker(a.service, a.cfg.Sweep.Interval, sweeper.WithLogger(a.logger)).RunOnce(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "examined %d expired self-descriptions\n", n)
			return err
		},
	}
}

func newGraphInitCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "graph-init",
		Short: "Configure the RDF graph and its uniqueness constraint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(opts)
			if err != nil {
				return err
			}
			graph, err := openGraph(cfg, log, metrics.New())
			if err != nil {
				return err
			}
			defer graph.Close(context.Background())
			return graph.Bootstrap(cmd.Context())
		},
	}
}

func newQueryCommand(opts *rootOptions) *cobra.Command {
	var params []string
	cmd := &cobra.Command{
		Use:   "query <cypher>",
		Short: "Run a read-only Cypher query against the claim graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := cypher.Query{Statement: args[0], Params: map[string]any{}}
			for _, p := range params {
				k, v, ok := strings.Cut(p, "=")
				if !ok || k == "" {
					return fmt.Errorf("param %q must be key=value", p)
				}
				q.Params[k] = v
			}

			cfg, log, err := loadConfig(opts)
			if err != nil {
				return err
			}
			graph, err := openGraph(cfg, log, metrics.New())
			if err != nil {
				return err
			}
			defer graph.Close(context.Background())

			rows, err := graph.QueryData(cmd.Context(), q)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "query parameter as key=value (repeatable)")
	return cmd
}
