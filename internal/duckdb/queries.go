package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/threatlens/threatlens/internal/model"
)

// dangerousKeywordPattern matches write/DDL SQL keywords at word
// boundaries. Applied after comment stripping and semicolon rejection.
var dangerousKeywordPattern = regexp.MustCompile(
	`(?i)\b(INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|TRUNCATE|COPY|ATTACH|LOAD|EXPORT|IMPORT|INSTALL|CALL|EXECUTE|PRAGMA|SET)\b`,
)

// blockCommentPattern matches C-style block comments.
var blockCommentPattern = regexp.MustCompile(`/\*[\s\S]*?\*/`)

// stripSQLComments removes -- line comments and /* */ block comments.
func stripSQLComments(query string) string {
	cleaned := blockCommentPattern.ReplaceAllString(query, " ")
	var result strings.Builder
	for _, line := range strings.Split(cleaned, "\n") {
		if idx := strings.Index(line, "--"); idx >= 0 {
			line = line[:idx]
		}
		result.WriteString(line)
		result.WriteByte('\n')
	}
	return result.String()
}

// queryCtx returns a context with the store's configured query timeout.
func (s *Store) queryCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.QueryTimeout)
}

// TotalEntryCount returns the total number of stored entries.
func (s *Store) TotalEntryCount() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&count)
	return count, err
}

// countsByColumn groups entries by one allowlisted column.
func (s *Store) countsByColumn(column string) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	// Column names are hardcoded by the callers, never user input.
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT %s, COUNT(*) FROM entries GROUP BY %s`, column, column))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int64)
	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			log.Printf("duckdb scan error (countsByColumn %s): %v", column, err)
			continue
		}
		result[key] = count
	}
	return result, rows.Err()
}

// CountsByStatus returns entry counts grouped by analysis status.
func (s *Store) CountsByStatus() (map[string]int64, error) {
	return s.countsByColumn("status")
}

// CountsByThreatLevel returns entry counts grouped by threat level.
func (s *Store) CountsByThreatLevel() (map[string]int64, error) {
	return s.countsByColumn("threat_level")
}

// CountsByFormat returns entry counts grouped by detected log format.
func (s *Store) CountsByFormat() (map[string]int64, error) {
	return s.countsByColumn("log_format")
}

// TopSourceIPs returns source addresses by descending entry count.
func (s *Store) TopSourceIPs(limit int) ([]model.IPCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(NULLIF(ip_address, ''), 'unknown') AS ip, COUNT(*) AS count
		FROM entries
		GROUP BY ip
		ORDER BY count DESC, ip ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.IPCount
	for rows.Next() {
		var item model.IPCount
		if err := rows.Scan(&item.IP, &item.Count); err != nil {
			log.Printf("duckdb scan error (TopSourceIPs): %v", err)
			continue
		}
		results = append(results, item)
	}
	return results, rows.Err()
}

// TimeRange returns the earliest and latest entry timestamps. Both are
// zero when the table is empty.
func (s *Store) TimeRange() (time.Time, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	var earliest, latest sql.NullTime
	err := s.db.QueryRowContext(ctx, `SELECT MIN(timestamp), MAX(timestamp) FROM entries`).Scan(&earliest, &latest)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	var lo, hi time.Time
	if earliest.Valid {
		lo = earliest.Time
	}
	if latest.Valid {
		hi = latest.Time
	}
	return lo, hi, nil
}

// RecentEntriesFiltered returns recent entries with optional filtering by
// analysis status, threat level, and description pattern (regex). Results
// come back in chronological order.
func (s *Store) RecentEntriesFiltered(limit int, statuses []string, threatLevels []string, messagePattern string) ([]model.AnalyzedEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	var conditions []string
	var args []interface{}

	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = "?"
			args = append(args, st)
		}
		conditions = append(conditions, "status IN ("+strings.Join(placeholders, ", ")+")")
	}

	if len(threatLevels) > 0 {
		placeholders := make([]string, len(threatLevels))
		for i, lvl := range threatLevels {
			placeholders[i] = "?"
			args = append(args, lvl)
		}
		conditions = append(conditions, "threat_level IN ("+strings.Join(placeholders, ", ")+")")
	}

	if messagePattern != "" {
		conditions = append(conditions, "regexp_matches(description, ?)")
		args = append(args, messagePattern)
	}

	innerQuery := `SELECT entry_id, timestamp, log_format, ip_address, description, raw_line,
		status_code, hostname, service, CAST(attributes AS VARCHAR) AS attributes, source,
		status, confidence, threat_level, explanation, recommended_action, tier FROM entries`
	if len(conditions) > 0 {
		innerQuery += " WHERE " + strings.Join(conditions, " AND ")
	}
	innerQuery += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	query := "SELECT * FROM (" + innerQuery + ") ORDER BY timestamp ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.AnalyzedEntry
	for rows.Next() {
		var e model.AnalyzedEntry
		var format, status, level string
		var attrsJSON string
		if err := rows.Scan(
			&e.EntryID, &e.Timestamp, &format, &e.IPAddress,
			&e.EventDescription, &e.RawLogLine, &e.StatusCode,
			&e.Hostname, &e.Service, &attrsJSON, &e.Source,
			&status, &e.Analysis.Confidence, &level,
			&e.Analysis.Explanation, &e.Analysis.RecommendedAction, &e.Analysis.Tier,
		); err != nil {
			log.Printf("duckdb scan error (RecentEntriesFiltered): %v", err)
			continue
		}
		e.LogType = model.LogFormat(format)
		e.Analysis.Status = model.AnalysisStatus(status)
		e.Analysis.ThreatLevel = model.ThreatLevel(level)
		e.Attributes = make(map[string]string)
		if attrsJSON != "" && attrsJSON != "{}" {
			parseJSONMap(attrsJSON, e.Attributes)
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// DeleteBefore removes entries older than cutoff and returns the number of
// rows deleted.
func (s *Store) DeleteBefore(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return rows, nil
}

// ExecuteQuery runs a read-only SQL query and returns results as maps.
// Only SELECT/WITH queries are allowed; DDL/DML is rejected.
func (s *Store) ExecuteQuery(query string) ([]map[string]interface{}, error) {
	trimmed := strings.TrimSpace(query)

	// Reject semicolons to prevent statement chaining.
	if strings.Contains(trimmed, ";") {
		return nil, fmt.Errorf("query must not contain semicolons")
	}

	// Strip SQL comments so keywords hidden in comments are still caught.
	stripped := strings.TrimSpace(stripSQLComments(trimmed))
	upper := strings.ToUpper(stripped)

	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return nil, fmt.Errorf("only SELECT/WITH queries are allowed")
	}

	if match := dangerousKeywordPattern.FindString(stripped); match != "" {
		return nil, fmt.Errorf("query contains disallowed keyword: %s", strings.ToUpper(match))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()
	rows, err := s.db.QueryContext(ctx, trimmed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}
	maxRows := 1000

	for rows.Next() && len(results) < maxRows {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			log.Printf("duckdb scan error (ExecuteQuery): %v", err)
			continue
		}

		row := make(map[string]interface{})
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}

	return results, rows.Err()
}

// GetSchemaDescription returns a human-readable schema description for
// query tooling.
func (s *Store) GetSchemaDescription() string {
	return `Table 'entries': id (BIGINT), entry_id (VARCHAR), timestamp (TIMESTAMP), ` +
		`log_format (VARCHAR: zscaler/apache/nginx/windows/linux/generic), ` +
		`ip_address (VARCHAR), description (VARCHAR), raw_line (VARCHAR), ` +
		`status_code (INTEGER), hostname (VARCHAR), service (VARCHAR), attributes (JSON), ` +
		`source (VARCHAR: upload/tcp/stdin), status (VARCHAR: normal/suspicious/anomaly), ` +
		`confidence (DOUBLE), threat_level (VARCHAR: low/medium/high/critical), ` +
		`explanation (VARCHAR), recommended_action (VARCHAR), tier (VARCHAR).`
}

// TableRowCounts returns the row count for each known table using a
// hardcoded allowlist.
func (s *Store) TableRowCounts() (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	allowedTables := []string{"entries"}
	counts := make(map[string]int64, len(allowedTables))

	for _, table := range allowedTables {
		var count int64
		// Table names are hardcoded constants, not user input.
		err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count)
		if err != nil {
			continue
		}
		counts[table] = count
	}
	return counts, nil
}

// parseJSONMap parses a JSON object string into a map[string]string.
func parseJSONMap(jsonStr string, dest map[string]string) error {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return err
	}
	for k, v := range raw {
		dest[k] = fmt.Sprintf("%v", v)
	}
	return nil
}
