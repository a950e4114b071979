// Command d2d computes and catalogs impulsive two-burn orbital transfers
// between catalogued debris objects. Each mode is driven by a configuration
// document passed via --config.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kartikkumar/d2d-go/internal/catalog"
	"github.com/kartikkumar/d2d-go/internal/config"
	"github.com/kartikkumar/d2d-go/internal/fetch"
	"github.com/kartikkumar/d2d-go/internal/fit"
	"github.com/kartikkumar/d2d-go/internal/prune"
	"github.com/kartikkumar/d2d-go/internal/scan"
	"github.com/kartikkumar/d2d-go/internal/store"
)

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger.Error().Err(err).Msg("d2d failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "d2d",
		Short: "Debris-to-debris transfer cataloging toolkit",
	}
	root.AddCommand(
		newCatalogPrunerCmd(),
		newLambertScannerCmd(),
		newSGP4ScannerCmd(),
		newJ2AnalysisCmd(),
		newLambertFetchCmd(),
		newSGP4FetchCmd(),
	)
	return root
}

func configFlag(cmd *cobra.Command) *string {
	return cmd.Flags().String("config", "", "path to the mode's configuration document")
}

func openConfig(path string) (config.Document, error) {
	if path == "" {
		return nil, fmt.Errorf("d2d: --config is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("d2d: opening config %s: %w", path, err)
	}
	defer f.Close()
	return config.Load(f)
}

func openCatalog(path string) ([]catalog.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("d2d: opening catalog %s: %w", path, err)
	}
	defer f.Close()
	return catalog.Parse(f)
}

func newCatalogPrunerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog-pruner",
		Short: "Filter a TLE catalog down to a pruned subset",
	}
	configPath := configFlag(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		doc, err := openConfig(*configPath)
		if err != nil {
			return err
		}
		cfg, err := config.ParseCatalogPruner(doc)
		if err != nil {
			return err
		}

		entries, err := openCatalog(cfg.CatalogPath)
		if err != nil {
			return err
		}
		logger.Info().Int("entries", len(entries)).Msg("catalog loaded")

		pruned, err := prune.Apply(prune.Filter{
			SemiMajorAxisMinKm: cfg.SemiMajorAxisMinKm,
			SemiMajorAxisMaxKm: cfg.SemiMajorAxisMaxKm,
			EccentricityMin:    cfg.EccentricityMin,
			EccentricityMax:    cfg.EccentricityMax,
			InclinationMinDeg:  cfg.InclinationMinDeg,
			InclinationMaxDeg:  cfg.InclinationMaxDeg,
			NameRegex:          cfg.NameRegex,
			Cutoff:             cfg.Cutoff,
		}, entries)
		if err != nil {
			return err
		}
		logger.Info().Int("pruned", len(pruned)).Msg("catalog pruned")

		out, err := os.Create(cfg.PrunedCatalogPath)
		if err != nil {
			return fmt.Errorf("d2d: creating pruned catalog %s: %w", cfg.PrunedCatalogPath, err)
		}
		defer out.Close()
		return catalog.WriteThreeLine(out, pruned)
	}
	return cmd
}

func newLambertScannerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lambert-scanner",
		Short: "Scan all object pairs for Lambert transfer solutions",
	}
	configPath := configFlag(cmd)
	workers := cmd.Flags().Int("workers", 0, "number of worker goroutines (0 = single-threaded, deterministic order)")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		doc, err := openConfig(*configPath)
		if err != nil {
			return err
		}
		cfg, err := config.ParseLambertScanner(doc)
		if err != nil {
			return err
		}

		entries, err := openCatalog(cfg.CatalogPath)
		if err != nil {
			return err
		}
		logger.Info().Int("entries", len(entries)).Msg("catalog loaded")

		st, err := store.Open(cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer st.Close()

		err = scan.RunLambertScan(context.Background(), scan.LambertScanConfig{
			Catalog:            entries,
			DepartureEpochJD:   cfg.DepartureEpochJD,
			TimeOfFlightMinSec: cfg.TimeOfFlightMinSec,
			TimeOfFlightMaxSec: cfg.TimeOfFlightMaxSec,
			TimeOfFlightSteps:  cfg.TimeOfFlightSteps,
			Prograde:           cfg.IsPrograde,
			RevolutionsMax:     cfg.RevolutionsMaximum,
			Workers:            *workers,
		}, st, logger)
		if err != nil {
			return err
		}

		return writeLambertShortlist(st, cfg.ShortlistLength, cfg.ShortlistPath)
	}
	return cmd
}

func newSGP4ScannerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sgp4-scanner",
		Short: "Verify Lambert transfers via SGP4/SDP4 propagation",
	}
	configPath := configFlag(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		doc, err := openConfig(*configPath)
		if err != nil {
			return err
		}
		cfg, err := config.ParseSGP4Scanner(doc)
		if err != nil {
			return err
		}

		entries, err := openCatalog(cfg.CatalogPath)
		if err != nil {
			return err
		}

		st, err := store.Open(cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer st.Close()

		err = scan.RunSGP4Scan(context.Background(), scan.SGP4ScanConfig{
			Catalog:              entries,
			TransferDeltaVCutoff: cfg.TransferDeltaVCutoff,
			Tolerance: fit.Tolerance{
				RelativeStep: cfg.RelativeTolerance,
				AbsoluteStep: cfg.AbsoluteTolerance,
			},
		}, st, logger)
		if err != nil {
			return err
		}

		return writeScanShortlist(st, "sgp4", cfg.ShortlistLength, cfg.ShortlistPath)
	}
	return cmd
}

func newJ2AnalysisCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "j2-analysis",
		Short: "Apply a J2 secular correction to SGP4-verified transfers",
	}
	configPath := configFlag(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		doc, err := openConfig(*configPath)
		if err != nil {
			return err
		}
		cfg, err := config.ParseJ2Analysis(doc)
		if err != nil {
			return err
		}

		st, err := store.Open(cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := scan.RunJ2Analysis(context.Background(), scan.J2ScanConfig{}, st, logger); err != nil {
			return err
		}

		return writeScanShortlist(st, "j2", cfg.ShortlistLength, cfg.ShortlistPath)
	}
	return cmd
}

func newLambertFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lambert-fetch",
		Short: "Render a single Lambert transfer's ephemerides to file",
	}
	configPath := configFlag(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		doc, err := openConfig(*configPath)
		if err != nil {
			return err
		}
		cfg, err := config.ParseFetch(doc)
		if err != nil {
			return err
		}

		st, err := store.Open(cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer st.Close()

		return fetch.RunLambertFetch(cfg, st, logger)
	}
	return cmd
}

func newSGP4FetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sgp4-fetch",
		Short: "Render a single SGP4-verified transfer's ephemerides to file",
	}
	configPath := configFlag(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		doc, err := openConfig(*configPath)
		if err != nil {
			return err
		}
		cfg, err := config.ParseFetch(doc)
		if err != nil {
			return err
		}

		st, err := store.Open(cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer st.Close()

		return fetch.RunSGP4Fetch(cfg, st, logger)
	}
	return cmd
}

// writeLambertShortlist exports the top-N shortlist only when configured
// with a positive length.
func writeLambertShortlist(st *store.Store, n int, path string) error {
	if n <= 0 {
		return nil
	}
	records, err := st.LambertShortlist(n)
	if err != nil {
		return err
	}
	return writeShortlistCSV(path, records)
}

func writeScanShortlist(st *store.Store, table string, n int, path string) error {
	if n <= 0 {
		return nil
	}
	records, err := st.ScanShortlist(table, n)
	if err != nil {
		return err
	}
	return writeShortlistCSV(path, records)
}

func writeShortlistCSV(path string, records []store.ShortlistRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("d2d: creating shortlist %s: %w", path, err)
	}
	defer f.Close()

	fmt.Fprintln(f, "transfer_id,departure_object_id,arrival_object_id,transfer_delta_v,arrival_position_error,arrival_velocity_error")
	for _, r := range records {
		fmt.Fprintf(f, "%d,%d,%d,%g,%g,%g\n",
			r.TransferID, r.DepartureObjectID, r.ArrivalObjectID,
			r.TransferDeltaV, r.ArrivalPositionErr, r.ArrivalVelocityErr)
	}
	return nil
}
