package store

import (
	"strings"
	"time"
)

// Log severities.
const (
	SeverityDebug = "DEBUG"
	SeverityInfo  = "INFO"
	SeverityWarn  = "WARN"
	SeverityError = "ERROR"
)

// DefaultComponent is recorded when AppendLog is called without one.
const DefaultComponent = "scantrail"

// LogEntry is one line of a scan's log.
type LogEntry struct {
	Generated int64
	Component string
	Severity  string
	Message   string
	RowID     int64
}

// AppendLog records one log line for a scan instance. Logging is a
// best-effort side channel: a lock-contention failure on this path is
// swallowed, because losing a log line must never abort the scan. Every
// other storage failure propagates.
func (s *Store) AppendLog(instanceID, severity, message, component string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if component == "" {
		component = DefaultComponent
	}

	if _, err := s.db.Exec(`
		INSERT INTO scan_log (scan_instance_id, generated, component, type, message)
		VALUES (?, ?, ?, ?, ?)
	`, instanceID, time.Now().UnixMilli(), component, severity, message); err != nil {
		if isLockContention(err) {
			return nil
		}
		return &StoreError{Op: "append log", Err: err}
	}
	return nil
}

// Logs returns a scan's log lines, newest first by default. limit of 0 means
// no limit; fromRow of 0 starts at the beginning; reverse returns oldest
// first instead.
func (s *Store) Logs(instanceID string, limit int, fromRow int64, reverse bool) ([]LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	qry := `SELECT generated, component, type, message, rowid
		FROM scan_log WHERE scan_instance_id = ?`
	args := []any{instanceID}

	if fromRow > 0 {
		qry += " AND rowid > ?"
		args = append(args, fromRow)
	}
	if reverse {
		qry += " ORDER BY generated ASC"
	} else {
		qry += " ORDER BY generated DESC"
	}
	if limit > 0 {
		qry += " LIMIT ?"
		args = append(args, limit)
	}

	return s.queryLog("list logs", qry, args...)
}

// Errors returns a scan's ERROR-severity log lines, newest first.
// limit of 0 means no limit.
func (s *Store) Errors(instanceID string, limit int) ([]LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	qry := `SELECT generated, component, type, message, rowid
		FROM scan_log WHERE scan_instance_id = ? AND type = ?
		ORDER BY generated DESC`
	args := []any{instanceID, SeverityError}

	if limit > 0 {
		qry += " LIMIT ?"
		args = append(args, limit)
	}

	return s.queryLog("list errors", qry, args...)
}

func (s *Store) queryLog(op, qry string, args ...any) ([]LogEntry, error) {
	rows, err := s.db.Query(qry, args...)
	if err != nil {
		return nil, &StoreError{Op: op, Err: err}
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.Generated, &e.Component, &e.Severity, &e.Message, &e.RowID); err != nil {
			return nil, &StoreError{Op: op, Err: err}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: op, Err: err}
	}
	return out, nil
}

// isLockContention recognizes SQLite busy/locked failures by message; the
// driver does not expose a stable error code for them across paths.
func isLockContention(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "locked") || strings.Contains(msg, "busy")
}
