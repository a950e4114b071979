// Package fetch implements lambert_fetch and sgp4_fetch: rendering a single
// stored transfer back out as Kepler-orbit ephemeris files plus a metadata
// file.
package fetch

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kartikkumar/d2d-go/internal/config"
	"github.com/kartikkumar/d2d-go/internal/elements"
	"github.com/kartikkumar/d2d-go/internal/meanelem"
	"github.com/kartikkumar/d2d-go/internal/store"
)

const ephemerisHeader = "jd,x,y,z,xdot,ydot,zdot"

// RunLambertFetch renders the six Kepler-sampled ephemerides (departure and
// arrival objects' own orbits and paths, plus the transfer orbit and path)
// for a single lambert transfer, plus a metadata file describing it.
func RunLambertFetch(cfg config.FetchConfig, st *store.Store, logger zerolog.Logger) error {
	lr, err := st.LambertRowByTransferID(cfg.TransferID)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	logger.Info().Int64("transfer_id", cfg.TransferID).Msg("lambert transfer fetched from database")

	if err := writeMetadata(cfg, lr, nil); err != nil {
		return err
	}
	return renderTransferEphemerides(cfg, lr, logger)
}

// RunSGP4Fetch does the same rendering as RunLambertFetch, additionally
// reading the sgp4 table's recorded arrival miss for the same transfer and
// folding it into the metadata file.
func RunSGP4Fetch(cfg config.FetchConfig, st *store.Store, logger zerolog.Logger) error {
	lr, err := st.LambertRowByTransferID(cfg.TransferID)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	logger.Info().Int64("transfer_id", cfg.TransferID).Msg("lambert transfer fetched from database")

	sr, err := st.ScanRowByLambertTransferID("sgp4", cfg.TransferID)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	logger.Info().Int64("transfer_id", cfg.TransferID).Msg("sgp4 transfer fetched from database")

	if err := writeMetadata(cfg, lr, &sr); err != nil {
		return err
	}
	return renderTransferEphemerides(cfg, lr, logger)
}

func writeMetadata(cfg config.FetchConfig, lr store.LambertRow, sr *store.ScanRow) error {
	path := filepath.Join(cfg.OutputDirectory, fmt.Sprintf("transfer%d_%s", cfg.TransferID, cfg.MetadataPath))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("fetch: creating metadata file: %w", err)
	}
	defer f.Close()

	prograde := "false"
	if lr.Prograde {
		prograde = "true"
	}
	fmt.Fprintf(f, "departure_id,%d,-\n", lr.DepartureObjectID)
	fmt.Fprintf(f, "arrival_id,%d,-\n", lr.ArrivalObjectID)
	fmt.Fprintf(f, "departure_epoch,%s,JD\n", strconv.FormatFloat(lr.DepartureEpochJD, 'g', -1, 64))
	fmt.Fprintf(f, "time_of_flight,%s,s\n", strconv.FormatFloat(lr.TimeOfFlightSec, 'g', -1, 64))
	fmt.Fprintf(f, "is_prograde,%s,-\n", prograde)
	fmt.Fprintf(f, "revolutions,%d,-\n", lr.Revolutions)
	fmt.Fprintf(f, "transfer_delta_v,%s,km/s\n", strconv.FormatFloat(lr.TransferDeltaV, 'g', -1, 64))

	if sr != nil {
		success := "false"
		if sr.Success {
			success = "true"
		}
		fmt.Fprintf(f, "sgp4_success,%s,-\n", success)
		fmt.Fprintf(f, "sgp4_arrival_position_error,%s,km\n", strconv.FormatFloat(sr.ArrivalPositionError, 'g', -1, 64))
		fmt.Fprintf(f, "sgp4_arrival_velocity_error,%s,km/s\n", strconv.FormatFloat(sr.ArrivalVelocityError, 'g', -1, 64))
	}
	return nil
}

// renderTransferEphemerides samples and writes the six ephemeris files: each
// of the departure object, arrival object, and transfer trajectory gets an
// "_orbit" file (sampled over its own Kepler orbital period) and a "_path"
// file (sampled over the time of flight). The arrival path samples backward
// from the arrival epoch to the departure epoch.
func renderTransferEphemerides(cfg config.FetchConfig, lr store.LambertRow, logger zerolog.Logger) error {
	mu := meanelem.MuEarth

	departureState := elements.CartesianState{
		Position: elements.Vector3{lr.DeparturePositionX, lr.DeparturePositionY, lr.DeparturePositionZ},
		Velocity: elements.Vector3{lr.DepartureVelocityX, lr.DepartureVelocityY, lr.DepartureVelocityZ},
	}
	arrivalState := elements.CartesianState{
		Position: elements.Vector3{lr.ArrivalPositionX, lr.ArrivalPositionY, lr.ArrivalPositionZ},
		Velocity: elements.Vector3{lr.ArrivalVelocityX, lr.ArrivalVelocityY, lr.ArrivalVelocityZ},
	}
	transferDepartureState := elements.CartesianState{
		Position: elements.Vector3{lr.DeparturePositionX, lr.DeparturePositionY, lr.DeparturePositionZ},
		Velocity: elements.Vector3{
			lr.DepartureVelocityX + lr.DepartureDeltaVX,
			lr.DepartureVelocityY + lr.DepartureDeltaVY,
			lr.DepartureVelocityZ + lr.DepartureDeltaVZ,
		},
	}

	timeOfFlightDays := lr.TimeOfFlightSec / (24.0 * 3600.0)

	logger.Info().Msg("sampling transfer ephemerides")

	if err := sampleAndWrite(cfg, "departure_orbit", cfg.DepartureOrbitFilename, departureState, orbitalPeriodOf(departureState, mu), lr.DepartureEpochJD, cfg.OutputSteps, mu); err != nil {
		return err
	}
	if err := sampleAndWrite(cfg, "departure_path", cfg.DeparturePathFilename, departureState, lr.TimeOfFlightSec, lr.DepartureEpochJD, cfg.OutputSteps, mu); err != nil {
		return err
	}
	if err := sampleAndWrite(cfg, "arrival_orbit", cfg.ArrivalOrbitFilename, arrivalState, orbitalPeriodOf(arrivalState, mu), lr.DepartureEpochJD, cfg.OutputSteps, mu); err != nil {
		return err
	}
	if err := sampleAndWrite(cfg, "arrival_path", cfg.ArrivalPathFilename, arrivalState, -lr.TimeOfFlightSec, lr.DepartureEpochJD+timeOfFlightDays, cfg.OutputSteps, mu); err != nil {
		return err
	}
	if err := sampleAndWrite(cfg, "transfer_orbit", cfg.TransferOrbitFilename, transferDepartureState, orbitalPeriodOf(transferDepartureState, mu), lr.DepartureEpochJD, cfg.OutputSteps, mu); err != nil {
		return err
	}
	if err := sampleAndWrite(cfg, "transfer_path", cfg.TransferPathFilename, transferDepartureState, lr.TimeOfFlightSec, lr.DepartureEpochJD, cfg.OutputSteps, mu); err != nil {
		return err
	}

	logger.Info().Msg("transfer ephemerides written")
	return nil
}

func orbitalPeriodOf(state elements.CartesianState, mu float64) float64 {
	kep, err := elements.CartesianToKeplerian(state, mu, 1e-9)
	if err != nil {
		return 0
	}
	return elements.OrbitalPeriod(kep.SemiMajorAxisKm, mu)
}

func sampleAndWrite(cfg config.FetchConfig, label, filename string, initial elements.CartesianState, duration, epochJD float64, steps int, mu float64) error {
	samples, err := elements.SampleKeplerOrbit(initial, duration, steps, mu, epochJD)
	if err != nil {
		return fmt.Errorf("fetch: sampling %s: %w", label, err)
	}
	path := filepath.Join(cfg.OutputDirectory, fmt.Sprintf("transfer%d_%s", cfg.TransferID, filename))
	return writeEphemerisCSV(path, samples)
}

func writeEphemerisCSV(path string, samples []elements.StateSample) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("fetch: creating %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write(strings.Split(ephemerisHeader, ",")); err != nil {
		return fmt.Errorf("fetch: writing header to %s: %w", path, err)
	}
	for _, s := range samples {
		record := []string{
			strconv.FormatFloat(s.EpochJD, 'g', -1, 64),
			strconv.FormatFloat(s.State.Position[0], 'g', -1, 64),
			strconv.FormatFloat(s.State.Position[1], 'g', -1, 64),
			strconv.FormatFloat(s.State.Position[2], 'g', -1, 64),
			strconv.FormatFloat(s.State.Velocity[0], 'g', -1, 64),
			strconv.FormatFloat(s.State.Velocity[1], 'g', -1, 64),
			strconv.FormatFloat(s.State.Velocity[2], 'g', -1, 64),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("fetch: writing row to %s: %w", path, err)
		}
	}
	return nil
}
