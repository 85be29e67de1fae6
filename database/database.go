// Package database persists detection records and monitor run lifecycle to
// sqlite, giving operators an audit trail that survives monitor restarts.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB handles database operations
type DB struct {
	Db *sql.DB
}

// DetectionRecord represents one fatal classification in the database.
type DetectionRecord struct {
	ID          int64     `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Kind        string    `json:"kind"` // IOError or EOF
	PID         uint32    `json:"pid"`
	TID         uint32    `json:"tid"`
	UID         uint32    `json:"uid"`
	Username    string    `json:"username"`
	Comm        string    `json:"comm"`
	Errno       string    `json:"errno,omitempty"`
	RuleMatches string    `json:"rule_matches,omitempty"`
}

// RunRecord represents one monitor run.
type RunRecord struct {
	ID         int64      `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	StoppedAt  *time.Time `json:"stopped_at,omitempty"`
	TargetComm string     `json:"target_comm"`
}

func NewDB(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %v", err)
	}

	dbPath := filepath.Join(dataDir, "readguard.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %v", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %v", err)
	}

	return &DB{Db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS detections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		kind TEXT NOT NULL,
		pid INTEGER NOT NULL,
		tid INTEGER NOT NULL,
		uid INTEGER NOT NULL,
		username TEXT,
		comm TEXT,
		errno TEXT,
		rule_matches TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_detections_timestamp ON detections(timestamp);
	CREATE INDEX IF NOT EXISTS idx_detections_pid ON detections(pid);

	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at DATETIME NOT NULL,
		stopped_at DATETIME,
		target_comm TEXT NOT NULL
	);`

	_, err := db.Exec(schema)
	return err
}

// InsertDetection records a fatal classification.
func (db *DB) InsertDetection(rec *DetectionRecord) error {
	result, err := db.Db.Exec(`
		INSERT INTO detections (timestamp, kind, pid, tid, uid, username, comm, errno, rule_matches)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp, rec.Kind, rec.PID, rec.TID, rec.UID,
		rec.Username, rec.Comm, rec.Errno, rec.RuleMatches)
	if err != nil {
		return fmt.Errorf("failed to insert detection: %v", err)
	}
	rec.ID, _ = result.LastInsertId()
	return nil
}

// ListDetections returns the most recent detections, newest first.
func (db *DB) ListDetections(limit int) ([]*DetectionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Db.Query(`
		SELECT id, timestamp, kind, pid, tid, uid, username, comm, errno, rule_matches
		FROM detections ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %v", err)
	}
	defer rows.Close()

	var records []*DetectionRecord
	for rows.Next() {
		rec := &DetectionRecord{}
		var username, comm, errno, matches sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.Kind, &rec.PID, &rec.TID,
			&rec.UID, &username, &comm, &errno, &matches); err != nil {
			return nil, fmt.Errorf("failed to scan detection row: %v", err)
		}
		rec.Username = username.String
		rec.Comm = comm.String
		rec.Errno = errno.String
		rec.RuleMatches = matches.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountDetections returns the total number of recorded detections.
func (db *DB) CountDetections() (int64, error) {
	var n int64
	err := db.Db.QueryRow(`SELECT COUNT(*) FROM detections`).Scan(&n)
	return n, err
}

// StartRun records the beginning of a monitor run and returns its id.
func (db *DB) StartRun(targetComm string) (int64, error) {
	result, err := db.Db.Exec(`INSERT INTO runs (started_at, target_comm) VALUES (?, ?)`,
		time.Now(), targetComm)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %v", err)
	}
	return result.LastInsertId()
}

// CloseRun marks a run as stopped. Idempotent.
func (db *DB) CloseRun(id int64) error {
	_, err := db.Db.Exec(`UPDATE runs SET stopped_at = ? WHERE id = ? AND stopped_at IS NULL`,
		time.Now(), id)
	return err
}

func (db *DB) Close() error {
	return db.Db.Close()
}
