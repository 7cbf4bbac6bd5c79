package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"receipts/internal/cli"
	"receipts/internal/config"
	"receipts/internal/services"
)

func newShowCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "show <year> <month>",
		Short: "Show the stored total of a month",
		Args:  requireExactlyArgs(2, "year and month are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePeriodArgs(args[0], args[1])
			if err != nil {
				return err
			}
			return withServices(cmd.Context(), cfg, func(svc *cli.Services) error {
				agg, err := svc.History.GetAggregate(cmd.Context(), p)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(cmd.OutOrStdout(), toAggregateJSON(p, agg))
				}
				return writeAggregate(cmd.OutOrStdout(), p, agg)
			})
		},
	}
}

func newListCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "list <year> <month>",
		Short: "List the receipts stored for a month",
		Args:  requireExactlyArgs(2, "year and month are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePeriodArgs(args[0], args[1])
			if err != nil {
				return err
			}
			return withServices(cmd.Context(), cfg, func(svc *cli.Services) error {
				list, err := svc.History.ListReceipts(cmd.Context(), p)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(cmd.OutOrStdout(), receiptsJSON(list))
				}
				return writeReceipts(cmd.OutOrStdout(), list)
			})
		},
	}
}

func newRecalcCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "recalc <year> <month>",
		Short: "Rebuild a month's total from its stored receipts",
		Args:  requireExactlyArgs(2, "year and month are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePeriodArgs(args[0], args[1])
			if err != nil {
				return err
			}
			return withServices(cmd.Context(), cfg, func(svc *cli.Services) error {
				agg, err := svc.Reconciler.ReconcileAndPersist(cmd.Context(), p)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(cmd.OutOrStdout(), toAggregateJSON(p, agg))
				}
				return writeAggregate(cmd.OutOrStdout(), p, agg)
			})
		},
	}
}

func newYearCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "year <year>",
		Short: "Show the monthly totals of a year",
		Args:  requireExactlyArgs(1, "year is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := parseYearArg(args[0])
			if err != nil {
				return err
			}
			return withServices(cmd.Context(), cfg, func(svc *cli.Services) error {
				sum, err := svc.History.YearSummary(cmd.Context(), year)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(cmd.OutOrStdout(), toYearJSON(sum))
				}
				return writeYear(cmd.OutOrStdout(), sum)
			})
		},
	}
}

func newRmCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <year> <month> <key>",
		Short: "Delete one receipt and reconcile its month",
		Args:  requireExactlyArgs(3, "year, month and receipt key are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePeriodArgs(args[0], args[1])
			if err != nil {
				return err
			}
			return withServices(cmd.Context(), cfg, func(svc *cli.Services) error {
				res, err := svc.Batches.RemoveReceipt(cmd.Context(), p, args[2])
				if err != nil {
					return err
				}
				if !res.Deleted {
					return fmt.Errorf("could not delete %s", args[2])
				}
				if *jsonOutput {
					return writeJSON(cmd.OutOrStdout(), toAggregateJSON(p, res.Aggregate))
				}
				return writeAggregate(cmd.OutOrStdout(), p, res.Aggregate)
			})
		},
	}
}

func newAddCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var replace bool

	cmd := &cobra.Command{
		Use:   "add <year> <month> <image> [<image>...]",
		Short: "Recognize receipt images and add them to a month",
		Args:  requireAtLeastArgs(3, "year, month and at least one image are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePeriodArgs(args[0], args[1])
			if err != nil {
				return err
			}
			uploads := make([]services.Upload, 0, len(args)-2)
			for _, path := range args[2:] {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				uploads = append(uploads, services.Upload{Filename: filepath.Base(path), Data: data})
			}
			return withServices(cmd.Context(), cfg, func(svc *cli.Services) error {
				run := svc.Batches.AddReceipts
				if replace {
					run = svc.Batches.ReplacePeriod
				}
				res, err := run(cmd.Context(), p, uploads)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(cmd.OutOrStdout(), toBatchJSON(res))
				}
				return writeBatch(cmd.OutOrStdout(), res)
			})
		},
	}

	cmd.Flags().BoolVar(&replace, "replace", false, "delete the month's existing receipts first")

	return cmd
}

func newExportCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "export <year>",
		Short: "Export a year as an XLSX workbook",
		Args:  requireExactlyArgs(1, "year is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if *jsonOutput {
				return fmt.Errorf("export always writes XLSX; remove --json")
			}
			year, err := parseYearArg(args[0])
			if err != nil {
				return err
			}
			if outputPath == "" {
				outputPath = fmt.Sprintf("receipts-%d.xlsx", year)
			}
			return withServices(cmd.Context(), cfg, func(svc *cli.Services) error {
				data, err := svc.Exporter.YearXLSX(cmd.Context(), year)
				if err != nil {
					return err
				}
				if err := os.WriteFile(outputPath, data, 0o644); err != nil {
					return err
				}
				return writePlain(cmd.OutOrStdout(), "wrote %s\n", outputPath)
			})
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file (default: receipts-<year>.xlsx)")

	return cmd
}
