package state

import (
	"database/sql"
	"fmt"
	"time"
)

// Session statuses.
const (
	SessionActive    = "active"
	SessionCompleted = "completed"
	SessionAborted   = "aborted"
)

// Session is one orchestrator run, keyed by its namespace.
type Session struct {
	Namespace  string
	StartedAt  time.Time
	EndedAt    *time.Time
	Status     string
	TasksTotal int
	TasksDone  int
}

// SpawnedProcess records one agent process spawned during a session.
type SpawnedProcess struct {
	PID       int
	Namespace string
	Command   string
	StartedAt time.Time
	ExitedAt  *time.Time
}

// CreateSession records the start of a new orchestrator session.
func (db *DB) CreateSession(namespace string, tasksTotal int) error {
	_, err := db.Exec(`
		INSERT INTO sessions (namespace, started_at, status, tasks_total, tasks_done)
		VALUES (?, ?, ?, ?, 0)
	`, namespace, formatTime(time.Now()), SessionActive, tasksTotal)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// EndSession marks a session finished with the given status.
func (db *DB) EndSession(namespace, status string, tasksDone int) error {
	_, err := db.Exec(`
		UPDATE sessions SET ended_at = ?, status = ?, tasks_done = ?
		WHERE namespace = ?
	`, formatTime(time.Now()), status, tasksDone, namespace)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// GetSession returns the session for a namespace, or nil if none exists.
func (db *DB) GetSession(namespace string) (*Session, error) {
	row := db.QueryRow(`
		SELECT namespace, started_at, ended_at, status, tasks_total, tasks_done
		FROM sessions WHERE namespace = ?
	`, namespace)

	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

// ListSessions returns the most recent sessions, newest first.
func (db *DB) ListSessions(limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`
		SELECT namespace, started_at, ended_at, status, tasks_total, tasks_done
		FROM sessions ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// RecordSpawn records an agent process started under a session.
func (db *DB) RecordSpawn(pid int, namespace, command string) error {
	_, err := db.Exec(`
		INSERT INTO spawned (pid, namespace, command, started_at)
		VALUES (?, ?, ?, ?)
	`, pid, namespace, command, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("record spawn: %w", err)
	}
	return nil
}

// RecordExit stamps the most recent spawn record for a pid as exited.
func (db *DB) RecordExit(pid int) error {
	_, err := db.Exec(`
		UPDATE spawned SET exited_at = ?
		WHERE pid = ? AND exited_at IS NULL
	`, formatTime(time.Now()), pid)
	if err != nil {
		return fmt.Errorf("record exit: %w", err)
	}
	return nil
}

// ListSpawned returns the spawn records for a session, oldest first.
func (db *DB) ListSpawned(namespace string) ([]*SpawnedProcess, error) {
	rows, err := db.Query(`
		SELECT pid, namespace, command, started_at, exited_at
		FROM spawned WHERE namespace = ? ORDER BY started_at
	`, namespace)
	if err != nil {
		return nil, fmt.Errorf("list spawned: %w", err)
	}
	defer rows.Close()

	var procs []*SpawnedProcess
	for rows.Next() {
		var p SpawnedProcess
		var startedAt string
		var exitedAt sql.NullString
		if err := rows.Scan(&p.PID, &p.Namespace, &p.Command, &startedAt, &exitedAt); err != nil {
			return nil, fmt.Errorf("scan spawned: %w", err)
		}
		p.StartedAt, _ = parseTime(startedAt)
		if exitedAt.Valid {
			t, _ := parseTime(exitedAt.String)
			p.ExitedAt = &t
		}
		procs = append(procs, &p)
	}
	return procs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var s Session
	var startedAt string
	var endedAt sql.NullString
	if err := row.Scan(&s.Namespace, &startedAt, &endedAt, &s.Status, &s.TasksTotal, &s.TasksDone); err != nil {
		return nil, err
	}
	s.StartedAt, _ = parseTime(startedAt)
	if endedAt.Valid {
		t, _ := parseTime(endedAt.String)
		s.EndedAt = &t
	}
	return &s, nil
}
