package store

import "strings"

// Config keys containing a colon are component-scoped ("component:option");
// all others live in the GLOBAL scope. Both forms round-trip through the
// same flat string map.

const globalScope = "GLOBAL"

func splitScope(key string) (scope, opt string) {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i], key[i+1:]
	}
	return globalScope, key
}

func joinScope(scope, opt string) string {
	if scope == globalScope {
		return opt
	}
	return scope + ":" + opt
}

// SetConfig stores global default configuration. Existing entries with the
// same scope and option are replaced; the whole map is written in one
// transaction.
func (s *Store) SetConfig(opts map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return &StoreError{Op: "set config", Err: err}
	}
	defer tx.Rollback()

	for key, val := range opts {
		scope, opt := splitScope(key)
		if _, err := tx.Exec(`
			REPLACE INTO config (scope, opt, val) VALUES (?, ?, ?)
		`, scope, opt, val); err != nil {
			return &StoreError{Op: "set config", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "set config", Err: err}
	}
	return nil
}

// GetConfig returns the global default configuration as a flat map;
// component-scoped entries come back as "component:option" keys.
func (s *Store) GetConfig() (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(`SELECT scope, opt, val FROM config`)
	if err != nil {
		return nil, &StoreError{Op: "get config", Err: err}
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var scope, opt, val string
		if err := rows.Scan(&scope, &opt, &val); err != nil {
			return nil, &StoreError{Op: "scan config entry", Err: err}
		}
		out[joinScope(scope, opt)] = val
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "iterate config entries", Err: err}
	}
	return out, nil
}

// ClearConfig removes all global default configuration, letting compiled-in
// defaults take effect again.
func (s *Store) ClearConfig() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if _, err := s.db.Exec(`DELETE FROM config`); err != nil {
		return &StoreError{Op: "clear config", Err: err}
	}
	return nil
}

// SetScanConfig persists the configuration snapshot a scan instance ran
// with, using the same scope-splitting rule as SetConfig.
func (s *Store) SetScanConfig(instanceID string, opts map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return &StoreError{Op: "set scan config", Err: err}
	}
	defer tx.Rollback()

	for key, val := range opts {
		scope, opt := splitScope(key)
		if _, err := tx.Exec(`
			REPLACE INTO scan_config (scan_instance_id, component, opt, val)
			VALUES (?, ?, ?, ?)
		`, instanceID, scope, opt, val); err != nil {
			return &StoreError{Op: "set scan config", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "set scan config", Err: err}
	}
	return nil
}

// GetScanConfig returns the configuration snapshot of a scan instance.
func (s *Store) GetScanConfig(instanceID string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(`
		SELECT component, opt, val FROM scan_config
		WHERE scan_instance_id = ? ORDER BY component, opt
	`, instanceID)
	if err != nil {
		return nil, &StoreError{Op: "get scan config", Err: err}
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var component, opt, val string
		if err := rows.Scan(&component, &opt, &val); err != nil {
			return nil, &StoreError{Op: "scan config entry", Err: err}
		}
		out[joinScope(component, opt)] = val
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "iterate scan config entries", Err: err}
	}
	return out, nil
}
