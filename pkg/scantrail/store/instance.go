package store

import (
	"strings"
	"time"
)

// Scan instance lifecycle statuses.
const (
	StatusCreated       = "CREATED"
	StatusRunning       = "RUNNING"
	StatusFinished      = "FINISHED"
	StatusAborted       = "ABORTED"
	StatusErrorFinished = "ERROR-FINISHED"
)

// Instance is one scan run's lifecycle record.
// Created, Started and Ended are milliseconds since the Unix epoch; zero
// means the timestamp has not been set.
type Instance struct {
	ID         string
	Name       string
	SeedTarget string
	Created    int64
	Started    int64
	Ended      int64
	Status     string
}

// CreatedTime returns the creation timestamp as a time.Time.
func (i Instance) CreatedTime() time.Time { return time.UnixMilli(i.Created) }

// Listing is one row of the scan instance listing: the instance plus the
// number of non-root events it has produced.
type Listing struct {
	Instance
	Results int
}

// StateUpdate carries a partial update of a scan instance's lifecycle
// fields. Nil fields are left untouched.
type StateUpdate struct {
	Started *int64
	Ended   *int64
	Status  *string
}

// CreateInstance records a new scan instance with status CREATED and the
// current timestamp. Returns ErrDuplicateInstance if the ID is already taken.
func (s *Store) CreateInstance(id, name, seedTarget string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	var n int
	if err := s.db.QueryRow(`
		SELECT COUNT(*) FROM scan_instance WHERE guid = ?
	`, id).Scan(&n); err != nil {
		return &StoreError{Op: "create instance", Err: err}
	}
	if n > 0 {
		return ErrDuplicateInstance
	}

	if _, err := s.db.Exec(`
		INSERT INTO scan_instance (guid, name, seed_target, created, status)
		VALUES (?, ?, ?, ?, ?)
	`, id, name, seedTarget, time.Now().UnixMilli(), StatusCreated); err != nil {
		return &StoreError{Op: "create instance", Err: err}
	}
	return nil
}

// SetInstanceState updates only the supplied lifecycle fields of a scan
// instance. Returns ErrNotFound for an unknown instance.
func (s *Store) SetInstanceState(id string, upd StateUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	var sets []string
	var args []any
	if upd.Started != nil {
		sets = append(sets, "started = ?")
		args = append(args, *upd.Started)
	}
	if upd.Ended != nil {
		sets = append(sets, "ended = ?")
		args = append(args, *upd.Ended)
	}
	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *upd.Status)
	}
	if len(sets) == 0 {
		// Nothing to change, but the instance must still exist.
		var n int
		if err := s.db.QueryRow(`
			SELECT COUNT(*) FROM scan_instance WHERE guid = ?
		`, id).Scan(&n); err != nil {
			return &StoreError{Op: "set instance state", Err: err}
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	}
	args = append(args, id)

	res, err := s.db.Exec(
		"UPDATE scan_instance SET "+strings.Join(sets, ", ")+" WHERE guid = ?",
		args...,
	)
	if err != nil {
		return &StoreError{Op: "set instance state", Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return &StoreError{Op: "set instance state", Err: err}
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetInstance returns the record for a scan instance.
// Returns ErrNotFound if the instance does not exist.
func (s *Store) GetInstance(id string) (Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Instance{}, ErrStoreClosed
	}

	inst := Instance{ID: id}
	err := s.db.QueryRow(`
		SELECT name, seed_target, created, started, ended, status
		FROM scan_instance WHERE guid = ?
	`, id).Scan(&inst.Name, &inst.SeedTarget, &inst.Created, &inst.Started, &inst.Ended, &inst.Status)
	if err != nil {
		if isNoRows(err) {
			return Instance{}, ErrNotFound
		}
		return Instance{}, &StoreError{Op: "get instance", Err: err}
	}
	return inst, nil
}

// ListInstances lists all scan instances with their non-root result counts.
// SQLite lacks an OUTER JOIN, so scans with results are unioned with scans
// that have none; empty scans appear with a zero count.
func (s *Store) ListInstances() ([]Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(`
		SELECT i.guid, i.name, i.seed_target, i.created, i.started, i.ended,
			i.status, COUNT(r.type)
		FROM scan_instance i, scan_results r
		WHERE i.guid = r.scan_instance_id AND r.type <> 'ROOT'
		GROUP BY i.guid
		UNION ALL
		SELECT i.guid, i.name, i.seed_target, i.created, i.started, i.ended,
			i.status, 0
		FROM scan_instance i
		WHERE i.guid NOT IN (
			SELECT DISTINCT scan_instance_id FROM scan_results WHERE type <> 'ROOT')
		ORDER BY started DESC
	`)
	if err != nil {
		return nil, &StoreError{Op: "list instances", Err: err}
	}
	defer rows.Close()

	var listings []Listing
	for rows.Next() {
		var l Listing
		if err := rows.Scan(&l.ID, &l.Name, &l.SeedTarget, &l.Created,
			&l.Started, &l.Ended, &l.Status, &l.Results); err != nil {
			return nil, &StoreError{Op: "scan instance listing", Err: err}
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "iterate instance listing", Err: err}
	}
	return listings, nil
}

// DeleteInstance removes a scan instance and cascades to its events, config
// entries and log lines in a single transaction.
// Returns ErrNotFound for an unknown instance.
func (s *Store) DeleteInstance(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return &StoreError{Op: "delete instance", Err: err}
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM scan_instance WHERE guid = ?`, id)
	if err != nil {
		return &StoreError{Op: "delete instance", Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return &StoreError{Op: "delete instance", Err: err}
	}
	if affected == 0 {
		return ErrNotFound
	}

	for _, qry := range []string{
		`DELETE FROM scan_config WHERE scan_instance_id = ?`,
		`DELETE FROM scan_results WHERE scan_instance_id = ?`,
		`DELETE FROM scan_log WHERE scan_instance_id = ?`,
	} {
		if _, err := tx.Exec(qry, id); err != nil {
			return &StoreError{Op: "delete instance", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "delete instance", Err: err}
	}
	return nil
}
