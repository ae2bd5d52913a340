package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// withApp builds the app, runs fn and releases the app again.
func withApp(cmd *cobra.Command, opts *rootOptions, withMatcher bool, fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	a, err := newApp(ctx, opts, withMatcher)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

func mapAllCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "map-all [product-id...]",
		Short: "Map every ordered pair of the given products (all eligible products by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, true, func(ctx context.Context, a *app) error {
				ids := args
				if len(ids) == 0 {
					products, err := a.store.ListEligibleProducts(ctx)
					if err != nil {
						return err
					}
					for _, p := range products {
						ids = append(ids, p.ID)
					}
				}
				res, err := a.engine.MapAll(ctx, ids)
				if perr := printJSON(res); perr != nil {
					return perr
				}
				return err
			})
		},
	}
}

func remapCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remap <product-id>",
		Short: "Recompute every mapping of one product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, true, func(ctx context.Context, a *app) error {
				res, err := a.engine.Remap(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
}

func importCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <product-id> <file>",
		Short: "Import a questionnaire (YAML or JSON) as the product's controls",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			return withApp(cmd, opts, false, func(ctx context.Context, a *app) error {
				res, err := a.importer.ImportControls(ctx, args[0], payload)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
}

func coverageCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "coverage [product-id]",
		Short: "Print mapping coverage percentages",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, false, func(ctx context.Context, a *app) error {
				if len(args) == 0 {
					values, err := a.coverage.PercentageAll(ctx)
					if err != nil {
						return err
					}
					return printJSON(values)
				}
				pct, err := a.coverage.Percentage(ctx, args[0])
				if err != nil {
					return err
				}
				breakdown, err := a.coverage.Breakdown(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(map[string]interface{}{
					"product_id": args[0],
					"percentage": pct,
					"breakdown":  breakdown,
				})
			})
		},
	}
}

func graphSyncCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "graph-sync",
		Short: "Mirror products, controls and mappings into Memgraph",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, true, func(ctx context.Context, a *app) error {
				if !a.projector.Enabled() {
					return fmt.Errorf("memgraph.uri is not set or memgraph is unreachable")
				}
				res, err := a.projector.Sync(ctx)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
}

func productsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "products",
		Short: "List stored products and their eligibility",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, false, func(ctx context.Context, a *app) error {
				products, err := a.store.ListProducts(ctx)
				if err != nil {
					return err
				}
				return printJSON(products)
			})
		},
	}
}

func controlsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "controls <product-id>",
		Short: "List a product's controls, retired ones included",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, false, func(ctx context.Context, a *app) error {
				if _, err := a.store.GetProduct(ctx, args[0]); err != nil {
					return err
				}
				controls, err := a.store.ListControls(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(controls)
			})
		},
	}
}
