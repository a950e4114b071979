// Package store implements the result store: a single persistent relational
// store with three tables (lambert, sgp4, j2) keyed by autoincrement primary
// keys and linked by the foreign key lambert_transfer_id. Execution goes
// through jmoiron/sqlx against modernc.org/sqlite, a pure-Go driver that
// keeps the build cgo-free.
package store

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// MissingUpstreamTableError reports that the sgp4 or j2 scan was invoked
// before the lambert table was populated by the Lambert grid scan.
type MissingUpstreamTableError struct {
	Table string
}

func (e *MissingUpstreamTableError) Error() string {
	return fmt.Sprintf("store: upstream table %q is missing or has no rows; run lambert_scanner first", e.Table)
}

// Store wraps a single sqlite-backed result database.
type Store struct {
	db *sqlx.DB
}

// Open opens (creating if necessary) the sqlite database at path.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// LambertRow is one row of the lambert table: one evaluated
// (departure, arrival, epoch, time of flight, branch) tuple.
type LambertRow struct {
	TransferID         int64   `db:"transfer_id"`
	DepartureObjectID  int     `db:"departure_object_id"`
	ArrivalObjectID    int     `db:"arrival_object_id"`
	DepartureEpochJD   float64 `db:"departure_epoch"`
	TimeOfFlightSec    float64 `db:"time_of_flight"`
	Revolutions        int     `db:"revolutions"`
	IsLowPath          bool    `db:"is_low_path"`
	Prograde           bool    `db:"is_prograde"`
	DeparturePositionX float64 `db:"departure_position_x"`
	DeparturePositionY float64 `db:"departure_position_y"`
	DeparturePositionZ float64 `db:"departure_position_z"`
	DepartureVelocityX float64 `db:"departure_velocity_x"`
	DepartureVelocityY float64 `db:"departure_velocity_y"`
	DepartureVelocityZ float64 `db:"departure_velocity_z"`
	DepartureDeltaVX   float64 `db:"departure_delta_v_x"`
	DepartureDeltaVY   float64 `db:"departure_delta_v_y"`
	DepartureDeltaVZ   float64 `db:"departure_delta_v_z"`
	ArrivalPositionX   float64 `db:"arrival_position_x"`
	ArrivalPositionY   float64 `db:"arrival_position_y"`
	ArrivalPositionZ   float64 `db:"arrival_position_z"`
	ArrivalVelocityX   float64 `db:"arrival_velocity_x"`
	ArrivalVelocityY   float64 `db:"arrival_velocity_y"`
	ArrivalVelocityZ   float64 `db:"arrival_velocity_z"`
	ArrivalDeltaVX     float64 `db:"arrival_delta_v_x"`
	ArrivalDeltaVY     float64 `db:"arrival_delta_v_y"`
	ArrivalDeltaVZ     float64 `db:"arrival_delta_v_z"`
	SemiMajorAxisKm    float64 `db:"transfer_semi_major_axis"`
	Eccentricity       float64 `db:"transfer_eccentricity"`
	InclinationDeg     float64 `db:"transfer_inclination"`
	RAANDeg            float64 `db:"transfer_raan"`
	ArgPerigeeDeg      float64 `db:"transfer_arg_perigee"`
	TrueAnomalyDeg     float64 `db:"transfer_true_anomaly"`
	TransferDeltaV     float64 `db:"transfer_delta_v"`
}

// ScanRow is the shared shape of sgp4 and j2 rows: the propagated arrival
// state and its error against the Lambert arrival.
type ScanRow struct {
	TransferID           int64   `db:"transfer_id"`
	LambertTransferID    int64   `db:"lambert_transfer_id"`
	ArrivalPositionX     float64 `db:"arrival_position_x"`
	ArrivalPositionY     float64 `db:"arrival_position_y"`
	ArrivalPositionZ     float64 `db:"arrival_position_z"`
	ArrivalVelocityX     float64 `db:"arrival_velocity_x"`
	ArrivalVelocityY     float64 `db:"arrival_velocity_y"`
	ArrivalVelocityZ     float64 `db:"arrival_velocity_z"`
	ArrivalPosXError     float64 `db:"arrival_position_x_error"`
	ArrivalPosYError     float64 `db:"arrival_position_y_error"`
	ArrivalPosZError     float64 `db:"arrival_position_z_error"`
	ArrivalPositionError float64 `db:"arrival_position_error"`
	ArrivalVelXError     float64 `db:"arrival_velocity_x_error"`
	ArrivalVelYError     float64 `db:"arrival_velocity_y_error"`
	ArrivalVelZError     float64 `db:"arrival_velocity_z_error"`
	ArrivalVelocityError float64 `db:"arrival_velocity_error"`
	Success              bool    `db:"success"`
}

const lambertSchema = `
CREATE TABLE IF NOT EXISTS lambert (
	"transfer_id" INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL,
	"departure_object_id" INTEGER NOT NULL,
	"arrival_object_id" INTEGER NOT NULL,
	"departure_epoch" REAL NOT NULL,
	"time_of_flight" REAL NOT NULL,
	"revolutions" INTEGER NOT NULL,
	"is_low_path" INTEGER NOT NULL,
	"is_prograde" INTEGER NOT NULL,
	"departure_position_x" REAL NOT NULL,
	"departure_position_y" REAL NOT NULL,
	"departure_position_z" REAL NOT NULL,
	"departure_velocity_x" REAL NOT NULL,
	"departure_velocity_y" REAL NOT NULL,
	"departure_velocity_z" REAL NOT NULL,
	"departure_delta_v_x" REAL NOT NULL,
	"departure_delta_v_y" REAL NOT NULL,
	"departure_delta_v_z" REAL NOT NULL,
	"arrival_position_x" REAL NOT NULL,
	"arrival_position_y" REAL NOT NULL,
	"arrival_position_z" REAL NOT NULL,
	"arrival_velocity_x" REAL NOT NULL,
	"arrival_velocity_y" REAL NOT NULL,
	"arrival_velocity_z" REAL NOT NULL,
	"arrival_delta_v_x" REAL NOT NULL,
	"arrival_delta_v_y" REAL NOT NULL,
	"arrival_delta_v_z" REAL NOT NULL,
	"transfer_semi_major_axis" REAL NOT NULL,
	"transfer_eccentricity" REAL NOT NULL,
	"transfer_inclination" REAL NOT NULL,
	"transfer_raan" REAL NOT NULL,
	"transfer_arg_perigee" REAL NOT NULL,
	"transfer_true_anomaly" REAL NOT NULL,
	"transfer_delta_v" REAL NOT NULL
);
`

func scanRowSchema(table string) string {
	return fmt.Sprintf(`
DROP TABLE IF EXISTS %s;
CREATE TABLE %s (
	"transfer_id" INTEGER PRIMARY KEY AUTOINCREMENT,
	"lambert_transfer_id" INTEGER NOT NULL REFERENCES lambert(transfer_id),
	"arrival_position_x" REAL,
	"arrival_position_y" REAL,
	"arrival_position_z" REAL,
	"arrival_velocity_x" REAL,
	"arrival_velocity_y" REAL,
	"arrival_velocity_z" REAL,
	"arrival_position_x_error" REAL,
	"arrival_position_y_error" REAL,
	"arrival_position_z_error" REAL,
	"arrival_position_error" REAL,
	"arrival_velocity_x_error" REAL,
	"arrival_velocity_y_error" REAL,
	"arrival_velocity_z_error" REAL,
	"arrival_velocity_error" REAL,
	"success" INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS "%s_arrival_position_error" ON %s (arrival_position_error ASC);
CREATE INDEX IF NOT EXISTS "%s_arrival_velocity_error" ON %s (arrival_velocity_error ASC);
`, table, table, table, table, table, table)
}

// CreateLambertTable creates the lambert table if it does not already exist.
// Creation is idempotent but never destructive: existing rows from a prior
// run are preserved. The ranking index is deliberately not created here; the
// scan builds it with CreateLambertIndex after its bulk insert.
func (s *Store) CreateLambertTable() error {
	_, err := s.db.Exec(lambertSchema)
	if err != nil {
		return fmt.Errorf("store: creating lambert table: %w", err)
	}
	return nil
}

// CreateLambertIndex builds the ranking index on transfer_delta_v. Called
// after the scan's insertions so the bulk load does not pay per-row index
// maintenance.
func (s *Store) CreateLambertIndex() error {
	_, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS "transfer_delta_v" ON lambert (transfer_delta_v ASC)`)
	if err != nil {
		return fmt.Errorf("store: creating lambert index: %w", err)
	}
	return nil
}

// CreateScanTable drops and recreates a downstream table (sgp4 or j2), so a
// downstream stage can be re-run without stale rows. It fails with
// MissingUpstreamTableError if the lambert table does not yet exist or holds
// no rows for the downstream stage to read.
func (s *Store) CreateScanTable(table string) error {
	exists, err := s.tableExists("lambert")
	if err != nil {
		return err
	}
	if !exists {
		return &MissingUpstreamTableError{Table: "lambert"}
	}
	var upstream int
	if err := s.db.Get(&upstream, `SELECT count(*) FROM lambert`); err != nil {
		return fmt.Errorf("store: counting lambert rows: %w", err)
	}
	if upstream == 0 {
		return &MissingUpstreamTableError{Table: "lambert"}
	}
	if _, err := s.db.Exec(scanRowSchema(table)); err != nil {
		return fmt.Errorf("store: creating %s table: %w", table, err)
	}
	return nil
}

func (s *Store) tableExists(name string) (bool, error) {
	var count int
	err := s.db.Get(&count, `SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?`, name)
	if err != nil {
		return false, fmt.Errorf("store: checking table %q: %w", name, err)
	}
	return count > 0, nil
}

// InsertLambertRows writes rows inside a single transaction to bound commit
// cost. It is the single writer the bounded-channel drainer in internal/scan
// calls into.
func (s *Store) InsertLambertRows(rows []LambertRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("store: beginning transaction: %w", err)
	}
	const insert = `
INSERT INTO lambert (
	departure_object_id, arrival_object_id, departure_epoch, time_of_flight,
	revolutions, is_low_path, is_prograde,
	departure_position_x, departure_position_y, departure_position_z,
	departure_velocity_x, departure_velocity_y, departure_velocity_z,
	departure_delta_v_x, departure_delta_v_y, departure_delta_v_z,
	arrival_position_x, arrival_position_y, arrival_position_z,
	arrival_velocity_x, arrival_velocity_y, arrival_velocity_z,
	arrival_delta_v_x, arrival_delta_v_y, arrival_delta_v_z,
	transfer_semi_major_axis, transfer_eccentricity, transfer_inclination,
	transfer_raan, transfer_arg_perigee, transfer_true_anomaly, transfer_delta_v
) VALUES (
	:departure_object_id, :arrival_object_id, :departure_epoch, :time_of_flight,
	:revolutions, :is_low_path, :is_prograde,
	:departure_position_x, :departure_position_y, :departure_position_z,
	:departure_velocity_x, :departure_velocity_y, :departure_velocity_z,
	:departure_delta_v_x, :departure_delta_v_y, :departure_delta_v_z,
	:arrival_position_x, :arrival_position_y, :arrival_position_z,
	:arrival_velocity_x, :arrival_velocity_y, :arrival_velocity_z,
	:arrival_delta_v_x, :arrival_delta_v_y, :arrival_delta_v_z,
	:transfer_semi_major_axis, :transfer_eccentricity, :transfer_inclination,
	:transfer_raan, :transfer_arg_perigee, :transfer_true_anomaly, :transfer_delta_v
)`
	for _, row := range rows {
		if _, err := tx.NamedExec(insert, row); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: inserting lambert row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: committing lambert rows: %w", err)
	}
	return nil
}

// InsertScanRows writes sgp4 or j2 rows inside a single transaction.
func (s *Store) InsertScanRows(table string, rows []ScanRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("store: beginning transaction: %w", err)
	}
	insert := fmt.Sprintf(`
INSERT INTO %s (
	lambert_transfer_id, arrival_position_x, arrival_position_y, arrival_position_z,
	arrival_velocity_x, arrival_velocity_y, arrival_velocity_z,
	arrival_position_x_error, arrival_position_y_error, arrival_position_z_error, arrival_position_error,
	arrival_velocity_x_error, arrival_velocity_y_error, arrival_velocity_z_error, arrival_velocity_error,
	success
) VALUES (
	:lambert_transfer_id, :arrival_position_x, :arrival_position_y, :arrival_position_z,
	:arrival_velocity_x, :arrival_velocity_y, :arrival_velocity_z,
	:arrival_position_x_error, :arrival_position_y_error, :arrival_position_z_error, :arrival_position_error,
	:arrival_velocity_x_error, :arrival_velocity_y_error, :arrival_velocity_z_error, :arrival_velocity_error,
	:success
)`, table)
	for _, row := range rows {
		if _, err := tx.NamedExec(insert, row); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: inserting %s row: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: committing %s rows: %w", table, err)
	}
	return nil
}

// LambertRows returns all rows from the lambert table, the read-only
// upstream view the sgp4 and j2 scans operate on.
func (s *Store) LambertRows() ([]LambertRow, error) {
	var rows []LambertRow
	if err := s.db.Select(&rows, `SELECT * FROM lambert ORDER BY transfer_id ASC`); err != nil {
		return nil, fmt.Errorf("store: reading lambert rows: %w", err)
	}
	return rows, nil
}

// LambertRowByTransferID fetches a single lambert row, the read path
// lambert_fetch and sgp4_fetch use to resolve a configured transfer_id into
// its departure/arrival state.
func (s *Store) LambertRowByTransferID(id int64) (LambertRow, error) {
	var row LambertRow
	if err := s.db.Get(&row, `SELECT * FROM lambert WHERE transfer_id = ?`, id); err != nil {
		return LambertRow{}, fmt.Errorf("store: reading lambert row %d: %w", id, err)
	}
	return row, nil
}

// SuccessfulScanTransferIDs returns the lambert_transfer_id of every row in
// table (sgp4 or j2) with success = 1, letting the J2 analysis restrict its
// input to transfers that SGP4 actually recovered.
func (s *Store) SuccessfulScanTransferIDs(table string) ([]int64, error) {
	var ids []int64
	query := fmt.Sprintf(`SELECT lambert_transfer_id FROM %s WHERE success = 1`, table)
	if err := s.db.Select(&ids, query); err != nil {
		return nil, fmt.Errorf("store: reading %s successes: %w", table, err)
	}
	return ids, nil
}

// ScanRowByLambertTransferID fetches the sgp4 or j2 row linked to a lambert
// transfer, the read path sgp4_fetch uses to enrich its metadata with the
// recorded arrival miss.
func (s *Store) ScanRowByLambertTransferID(table string, id int64) (ScanRow, error) {
	var row ScanRow
	query := fmt.Sprintf(`SELECT * FROM %s WHERE lambert_transfer_id = ?`, table)
	if err := s.db.Get(&row, query, id); err != nil {
		return ScanRow{}, fmt.Errorf("store: reading %s row for transfer %d: %w", table, id, err)
	}
	return row, nil
}

// ShortlistRecord is one exported shortlist entry, joining scan-row error
// metrics with their upstream lambert context.
type ShortlistRecord struct {
	TransferID         int64   `db:"transfer_id"`
	DepartureObjectID  int     `db:"departure_object_id"`
	ArrivalObjectID    int     `db:"arrival_object_id"`
	TransferDeltaV     float64 `db:"transfer_delta_v"`
	ArrivalPositionErr float64 `db:"arrival_position_err"`
	ArrivalVelocityErr float64 `db:"arrival_velocity_err"`
}

// LambertShortlist selects the top-N lambert rows by ascending total Δv,
// expressed as a ranked query against the transfer_delta_v index rather than
// an in-memory sort.
func (s *Store) LambertShortlist(n int) ([]ShortlistRecord, error) {
	var out []ShortlistRecord
	err := s.db.Select(&out, `
SELECT transfer_id, departure_object_id, arrival_object_id, transfer_delta_v
FROM lambert ORDER BY transfer_delta_v ASC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("store: lambert shortlist: %w", err)
	}
	return out, nil
}

// ScanShortlist selects the top-N rows from table (sgp4 or j2) by ascending
// arrival-position error, joined against the upstream lambert row.
func (s *Store) ScanShortlist(table string, n int) ([]ShortlistRecord, error) {
	var out []ShortlistRecord
	query := fmt.Sprintf(`
SELECT s.lambert_transfer_id AS transfer_id,
       l.departure_object_id AS departure_object_id,
       l.arrival_object_id AS arrival_object_id,
       l.transfer_delta_v AS transfer_delta_v,
       s.arrival_position_error AS arrival_position_err,
       s.arrival_velocity_error AS arrival_velocity_err
FROM %s s JOIN lambert l ON l.transfer_id = s.lambert_transfer_id
WHERE s.success = 1
ORDER BY s.arrival_position_error ASC LIMIT ?`, table)
	if err := s.db.Select(&out, query, n); err != nil {
		return nil, fmt.Errorf("store: %s shortlist: %w", table, err)
	}
	return out, nil
}
