package store

import (
	"fmt"
	"strings"

	"github.com/osintlabs/scantrail/pkg/scantrail"
	"github.com/osintlabs/scantrail/pkg/scantrail/taxonomy"
)

// Row is one joined result row: an event, the payload of its causing event,
// and its taxonomy entry. Every query that returns stored events produces
// rows in this shape so callers can feed them between operations.
type Row struct {
	InstanceID          string
	Hash                string
	Type                string
	Data                string
	Module              string
	Confidence          int
	Visibility          int
	Risk                int
	Generated           int64
	SourceHash          string
	SourceData          string
	Description         string
	Category            taxonomy.Category
	FalsePositive       bool
	SourceFalsePositive bool
}

// rowColumns is the select list shared by every joined event query.
// c is the event, s its causing event, t its taxonomy entry.
const rowColumns = `c.generated, c.data, s.data, c.module, c.type,
	c.confidence, c.visibility, c.risk, c.hash, c.source_event_hash,
	t.event_descr, t.event_type, c.scan_instance_id,
	c.false_positive, s.false_positive`

func scanRow(scan func(...any) error) (Row, error) {
	var r Row
	var fp, sfp int
	var category string
	if err := scan(&r.Generated, &r.Data, &r.SourceData, &r.Module, &r.Type,
		&r.Confidence, &r.Visibility, &r.Risk, &r.Hash, &r.SourceHash,
		&r.Description, &category, &r.InstanceID, &fp, &sfp); err != nil {
		return Row{}, err
	}
	r.FalsePositive = fp != 0
	r.SourceFalsePositive = sfp != 0
	cat, err := taxonomy.ParseCategory(category)
	if err != nil {
		return Row{}, err
	}
	r.Category = cat
	return r, nil
}

// StoreEvent validates and appends one event to a scan instance.
//
// Every invariant is checked before insertion: field-level validation, a
// taxonomy-registered type, and (for non-root events) a source hash that
// resolves to an already-stored event of the same instance. Callers are
// responsible for storing causes before effects; the store never defers or
// reorders. When truncateAt is positive the payload is cut to that many
// bytes before storage.
func (s *Store) StoreEvent(instanceID string, evt *scantrail.Event, truncateAt int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if instanceID == "" {
		return &scantrail.ValidationError{Field: "instance", Message: "must not be empty"}
	}
	if evt == nil {
		return &scantrail.ValidationError{Field: "event", Message: "must not be nil"}
	}
	if err := evt.Validate(); err != nil {
		return err
	}
	if !taxonomy.IsKnown(evt.Type) {
		return &scantrail.ValidationError{
			Field:   "type",
			Message: fmt.Sprintf("unknown event type %q", evt.Type),
		}
	}

	if !evt.IsRoot() {
		var n int
		if err := s.db.QueryRow(`
			SELECT COUNT(*) FROM scan_results
			WHERE scan_instance_id = ? AND hash = ?
		`, instanceID, evt.SourceHash).Scan(&n); err != nil {
			return &StoreError{Op: "store event", Err: err}
		}
		if n == 0 {
			return &scantrail.ValidationError{
				Field:   "source_event_hash",
				Message: fmt.Sprintf("no event with hash %q in scan %s", evt.SourceHash, instanceID),
			}
		}
	}

	data := evt.Data
	if truncateAt > 0 && len(data) > truncateAt {
		data = data[:truncateAt]
	}

	if _, err := s.db.Exec(`
		INSERT INTO scan_results
			(scan_instance_id, hash, type, generated, confidence,
			visibility, risk, module, data, false_positive, source_event_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, instanceID, evt.Hash, evt.Type, evt.Generated, evt.Confidence,
		evt.Visibility, evt.Risk, evt.Module, data,
		boolToInt(evt.FalsePositive), evt.SourceHash); err != nil {
		return &StoreError{Op: "store event", Err: err}
	}
	return nil
}

// Criteria restricts a Search. At least two fields must be non-empty; a
// single criterion would permit an effectively unrestricted scan of the
// results table.
type Criteria struct {
	// ScanID limits the search to one scan instance.
	ScanID string
	// Type limits the search to one event type.
	Type string
	// Value matches event or source payloads with SQL LIKE syntax.
	Value string
	// Regex matches event or source payloads with a regular expression.
	Regex string
}

func (c Criteria) count() int {
	n := 0
	for _, v := range []string{c.ScanID, c.Type, c.Value, c.Regex} {
		if v != "" {
			n++
		}
	}
	return n
}

// Search returns the joined rows matching the criteria, ordered by event
// payload. Returns ErrInsufficientCriteria when fewer than two criteria are
// set. With filterFP, confirmed false positives are excluded.
func (s *Store) Search(criteria Criteria, filterFP bool) ([]Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	if criteria.count() < 2 {
		return nil, ErrInsufficientCriteria
	}

	qry := `SELECT ` + rowColumns + `
		FROM scan_results c, scan_results s, event_types t
		WHERE s.scan_instance_id = c.scan_instance_id
		AND t.event = c.type AND c.source_event_hash = s.hash`
	var args []any

	if filterFP {
		qry += " AND c.false_positive <> 1"
	}
	if criteria.ScanID != "" {
		qry += " AND c.scan_instance_id = ?"
		args = append(args, criteria.ScanID)
	}
	if criteria.Type != "" {
		qry += " AND c.type = ?"
		args = append(args, criteria.Type)
	}
	if criteria.Value != "" {
		qry += " AND (c.data LIKE ? OR s.data LIKE ?)"
		args = append(args, criteria.Value, criteria.Value)
	}
	if criteria.Regex != "" {
		qry += " AND (c.data REGEXP ? OR s.data REGEXP ?)"
		args = append(args, criteria.Regex, criteria.Regex)
	}
	qry += " ORDER BY c.data"

	return s.queryRows("search", qry, args...)
}

// Events returns the joined rows of a scan, optionally limited to one event
// type ("" for all) and optionally excluding false positives. Rows are
// ordered by payload.
func (s *Store) Events(instanceID, eventType string, filterFP bool) ([]Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	qry := `SELECT ` + rowColumns + `
		FROM scan_results c, scan_results s, event_types t
		WHERE c.scan_instance_id = ? AND c.source_event_hash = s.hash
		AND s.scan_instance_id = c.scan_instance_id
		AND t.event = c.type`
	args := []any{instanceID}

	if eventType != "" {
		qry += " AND c.type = ?"
		args = append(args, eventType)
	}
	if filterFP {
		qry += " AND c.false_positive <> 1"
	}
	qry += " ORDER BY c.data"

	return s.queryRows("list events", qry, args...)
}

// UniqueEvent is one distinct payload of a scan with its occurrence count.
type UniqueEvent struct {
	Data  string
	Type  string
	Count int
}

// UniqueEvents returns the distinct payloads of a scan, optionally limited
// to one event type ("" for all), ordered by ascending occurrence count.
func (s *Store) UniqueEvents(instanceID, eventType string, filterFP bool) ([]UniqueEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	qry := `SELECT DISTINCT data, type, COUNT(*) FROM scan_results
		WHERE scan_instance_id = ?`
	args := []any{instanceID}

	if eventType != "" {
		qry += " AND type = ?"
		args = append(args, eventType)
	}
	if filterFP {
		qry += " AND false_positive <> 1"
	}
	qry += " GROUP BY type, data ORDER BY COUNT(*)"

	rows, err := s.db.Query(qry, args...)
	if err != nil {
		return nil, &StoreError{Op: "list unique events", Err: err}
	}
	defer rows.Close()

	var out []UniqueEvent
	for rows.Next() {
		var u UniqueEvent
		if err := rows.Scan(&u.Data, &u.Type, &u.Count); err != nil {
			return nil, &StoreError{Op: "scan unique event", Err: err}
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "iterate unique events", Err: err}
	}
	return out, nil
}

// SummaryGroup selects the grouping of a result summary.
type SummaryGroup string

const (
	// GroupByType groups results by event type.
	GroupByType SummaryGroup = "type"
	// GroupByModule groups results by producing module.
	GroupByModule SummaryGroup = "module"
	// GroupByEntity groups results by payload, restricted to ENTITY
	// taxonomy types, and returns only the top 50 by count.
	GroupByEntity SummaryGroup = "entity"
)

// SummaryRow is one aggregate row of a result summary.
type SummaryRow struct {
	// Group is the type name, module name or entity payload.
	Group       string
	Description string
	// LastSeen is the most recent generation time in the group, ms epoch.
	LastSeen int64
	// Total counts every event in the group; Unique counts distinct payloads.
	Total  int
	Unique int
}

// ResultSummary aggregates a scan's results by type, module or entity.
func (s *Store) ResultSummary(instanceID string, by SummaryGroup) ([]SummaryRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var qry string
	switch by {
	case GroupByType:
		qry = `SELECT r.type, e.event_descr, MAX(r.generated),
			COUNT(*), COUNT(DISTINCT r.data)
			FROM scan_results r, event_types e
			WHERE e.event = r.type AND r.scan_instance_id = ?
			AND e.event_type <> 'INTERNAL'
			GROUP BY r.type ORDER BY e.event_descr`
	case GroupByModule:
		qry = `SELECT r.module, '', MAX(r.generated),
			COUNT(*), COUNT(DISTINCT r.data)
			FROM scan_results r, event_types e
			WHERE e.event = r.type AND r.scan_instance_id = ?
			GROUP BY r.module ORDER BY r.module DESC`
	case GroupByEntity:
		qry = `SELECT r.data, e.event_descr, MAX(r.generated),
			COUNT(*), COUNT(DISTINCT r.data)
			FROM scan_results r, event_types e
			WHERE e.event = r.type AND r.scan_instance_id = ?
			AND e.event_type IN ('ENTITY')
			GROUP BY r.data, e.event_descr ORDER BY COUNT(*) DESC LIMIT 50`
	default:
		return nil, ErrInvalidGrouping
	}

	rows, err := s.db.Query(qry, instanceID)
	if err != nil {
		return nil, &StoreError{Op: "result summary", Err: err}
	}
	defer rows.Close()

	var out []SummaryRow
	for rows.Next() {
		var r SummaryRow
		if err := rows.Scan(&r.Group, &r.Description, &r.LastSeen, &r.Total, &r.Unique); err != nil {
			return nil, &StoreError{Op: "scan summary row", Err: err}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "iterate summary rows", Err: err}
	}
	return out, nil
}

// HistoryRow is one (hour-of-week, type) bucket of a scan's result history.
type HistoryRow struct {
	// Bucket is the generation time formatted as "HH:MM d" (d = weekday).
	Bucket string
	Type   string
	Count  int
}

// ResultHistory buckets a scan's results by hour of week and event type.
func (s *Store) ResultHistory(instanceID string) ([]HistoryRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(`
		SELECT STRFTIME('%H:%M %w', generated/1000, 'unixepoch') AS bucket,
			type, COUNT(*)
		FROM scan_results WHERE scan_instance_id = ?
		GROUP BY bucket, type
	`, instanceID)
	if err != nil {
		return nil, &StoreError{Op: "result history", Err: err}
	}
	defer rows.Close()

	var out []HistoryRow
	for rows.Next() {
		var h HistoryRow
		if err := rows.Scan(&h.Bucket, &h.Type, &h.Count); err != nil {
			return nil, &StoreError{Op: "scan history row", Err: err}
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "iterate history rows", Err: err}
	}
	return out, nil
}

// UpdateFalsePositive bulk-sets the false positive flag on a set of event
// hashes within one scan. The update is all-or-nothing: if any hash does not
// resolve to a stored event the whole batch is rolled back and no flag
// changes.
func (s *Store) UpdateFalsePositive(instanceID string, hashes []string, flag bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return &StoreError{Op: "update false positive", Err: err}
	}
	defer tx.Rollback()

	for _, hash := range hashes {
		res, err := tx.Exec(`
			UPDATE scan_results SET false_positive = ?
			WHERE scan_instance_id = ? AND hash = ?
		`, boolToInt(flag), instanceID, hash)
		if err != nil {
			return &StoreError{Op: "update false positive", Err: err}
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return &StoreError{Op: "update false positive", Err: err}
		}
		if affected == 0 {
			return &StoreError{
				Op:  "update false positive",
				Err: fmt.Errorf("no event with hash %q: %w", hash, ErrNotFound),
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "update false positive", Err: err}
	}
	return nil
}

// SourcesDirect returns the joined rows for the events whose hashes are in
// the given set: one frontier of an ancestor traversal. Non-alphanumeric
// hashes are dropped from the set rather than failing the bulk lookup; the
// filter is a sanity check on top of parameter binding, not the injection
// defense itself.
func (s *Store) SourcesDirect(instanceID string, hashes []string) ([]Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	return s.frontierQuery("direct sources", instanceID, "c.hash", hashes)
}

// ChildrenDirect returns the joined rows for the events that cite any of the
// given hashes as their cause: one frontier of a descendant traversal.
func (s *Store) ChildrenDirect(instanceID string, hashes []string) ([]Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	return s.frontierQuery("direct children", instanceID, "s.hash", hashes)
}

func (s *Store) frontierQuery(op, instanceID, column string, hashes []string) ([]Row, error) {
	filtered := filterAlnum(hashes)
	if len(filtered) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?, ", len(filtered)-1) + "?"
	qry := `SELECT ` + rowColumns + `
		FROM scan_results c, scan_results s, event_types t
		WHERE c.scan_instance_id = ? AND c.source_event_hash = s.hash
		AND s.scan_instance_id = c.scan_instance_id
		AND t.event = c.type AND ` + column + ` IN (` + placeholders + `)`

	args := make([]any, 0, len(filtered)+1)
	args = append(args, instanceID)
	for _, h := range filtered {
		args = append(args, h)
	}
	return s.queryRows(op, qry, args...)
}

func (s *Store) queryRows(op, qry string, args ...any) ([]Row, error) {
	rows, err := s.db.Query(qry, args...)
	if err != nil {
		return nil, &StoreError{Op: op, Err: err}
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		r, err := scanRow(rows.Scan)
		if err != nil {
			return nil, &StoreError{Op: op, Err: err}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: op, Err: err}
	}
	return out, nil
}

// filterAlnum drops hashes containing anything but ASCII letters and digits.
// A malformed element never aborts a bulk traversal.
func filterAlnum(hashes []string) []string {
	out := make([]string, 0, len(hashes))
	for _, h := range hashes {
		if h == "" || !isAlnum(h) {
			continue
		}
		out = append(out, h)
	}
	return out
}

func isAlnum(s string) bool {
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			continue
		}
		return false
	}
	return true
}
