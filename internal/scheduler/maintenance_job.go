package scheduler

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/wardenhq/warden/internal/database"
)

// MaintenanceJob keeps the SQLite files healthy: a PRAGMA integrity_check
// on every database, a WAL checkpoint to stop the write-ahead log from
// growing unbounded, and a VACUUM on non-ledger databases. The ledger is
// append-only and never vacuumed.
type MaintenanceJob struct {
	databases map[string]*database.DB
	log       zerolog.Logger
}

// NewMaintenanceJob creates the daily database maintenance job
func NewMaintenanceJob(databases map[string]*database.DB, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		databases: databases,
		log:       log.With().Str("job", "maintenance").Logger(),
	}
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

// Run executes one maintenance pass
func (j *MaintenanceJob) Run() error {
	start := time.Now()

	for name, db := range j.databases {
		if err := j.checkIntegrity(name, db); err != nil {
			// A corrupt execution ledger means the audit trail can no
			// longer be trusted. Surface it loudly and stop.
			return err
		}

		if _, err := db.Conn().Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			j.log.Warn().Str("database", name).Err(err).Msg("WAL checkpoint failed")
		}

		if name != "ledger" {
			j.vacuum(name, db)
		}

		j.logSize(name, db)
	}

	j.log.Info().
		Dur("duration_ms", time.Since(start)).
		Msg("Database maintenance completed")
	return nil
}

func (j *MaintenanceJob) checkIntegrity(name string, db *database.DB) error {
	var result string
	if err := db.Conn().QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed for %s: %w", name, err)
	}
	if result != "ok" {
		j.log.Error().
			Str("database", name).
			Str("result", result).
			Msg("Database integrity check failed")
		return fmt.Errorf("database %s failed integrity check: %s", name, result)
	}
	return nil
}

func (j *MaintenanceJob) vacuum(name string, db *database.DB) {
	before := j.sizeMB(db)
	if _, err := db.Conn().Exec("VACUUM"); err != nil {
		j.log.Warn().Str("database", name).Err(err).Msg("VACUUM failed")
		return
	}

	j.log.Debug().
		Str("database", name).
		Float64("size_before_mb", before).
		Float64("size_after_mb", j.sizeMB(db)).
		Msg("VACUUM completed")
}

func (j *MaintenanceJob) logSize(name string, db *database.DB) {
	j.log.Info().
		Str("database", name).
		Float64("size_mb", j.sizeMB(db)).
		Msg("Database size")
}

func (j *MaintenanceJob) sizeMB(db *database.DB) float64 {
	var pageCount, pageSize int
	db.Conn().QueryRow("PRAGMA page_count").Scan(&pageCount)
	db.Conn().QueryRow("PRAGMA page_size").Scan(&pageSize)
	return float64(pageCount*pageSize) / 1024 / 1024
}
