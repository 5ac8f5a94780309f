package adapter

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const (
	defaultLogLimit = 500
	maxLogLimit     = 10000
)

// logLineRe matches the file sink layout: "YYYY-MM-DD HH:MM:SS [LEVEL] msg".
var logLineRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}) \[(\w+)\] (.*)$`)

type logEntry struct {
	Time    time.Time
	Level   string
	Message string
}

type logQuery struct {
	path    string
	include []string
	levels  map[string]bool
	start   *time.Time
	end     *time.Time
	limit   int
}

// handleLogQuery scans a log file on the adapter goroutine and enqueues
// the matching tail as a "log" message.
func (a *Adapter) handleLogQuery(data map[string]any) {
	q := a.parseLogQuery(data)

	entries, err := scanLogFile(q)
	if err != nil {
		if a.logger != nil {
			a.logger.Warn("log query failed", "path", q.path, "error", err.Error())
		}
		a.enqueue("log", map[string]any{"path": q.path, "error": err.Error(), "lines": []map[string]any{}})
		return
	}

	lines := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, map[string]any{
			"time":    e.Time.Format("2006-01-02 15:04:05"),
			"level":   e.Level,
			"message": e.Message,
		})
	}
	a.enqueue("log", map[string]any{"path": q.path, "lines": lines, "count": len(lines)})
}

func (a *Adapter) parseLogQuery(data map[string]any) logQuery {
	q := logQuery{limit: defaultLogLimit}

	if path, ok := data["path"].(string); ok && path != "" {
		q.path = path
	} else {
		// default to today's live file, or the dated rotation for any
		// other day
		name := a.engine + ".log"
		if date, ok := data["date"].(string); ok && date != "" && date != a.now().Format("2006-01-02") {
			name += "." + date
		}
		q.path = filepath.Join(a.logDir, name)
	}

	switch v := data["include"].(type) {
	case []string:
		q.include = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				q.include = append(q.include, s)
			}
		}
	}

	switch v := data["level"].(type) {
	case string:
		if v != "" {
			q.levels = map[string]bool{strings.ToUpper(v): true}
		}
	case []any:
		q.levels = make(map[string]bool)
		for _, item := range v {
			if s, ok := item.(string); ok {
				q.levels[strings.ToUpper(s)] = true
			}
		}
		if len(q.levels) == 0 {
			q.levels = nil
		}
	}

	q.start = parseQueryTime(data["start"])
	q.end = parseQueryTime(data["end"])

	if limit := intField(data, "limit"); limit > 0 {
		q.limit = limit
	}
	if q.limit > maxLogLimit {
		q.limit = maxLogLimit
	}
	return q
}

func (e *logEntry) matches(q logQuery) bool {
	if q.start != nil && e.Time.Before(*q.start) {
		return false
	}
	if q.end != nil && e.Time.After(*q.end) {
		return false
	}
	if q.levels != nil && !q.levels[e.Level] {
		return false
	}
	for _, sub := range q.include {
		if !strings.Contains(e.Message, sub) {
			return false
		}
	}
	return true
}

// scanLogFile reads the file, applies the filters and keeps the last
// limit entries.
func scanLogFile(q logQuery) ([]logEntry, error) {
	f, err := os.Open(q.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var matched []logEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		m := logLineRe.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		ts, err := time.Parse("2006-01-02 15:04:05", m[1])
		if err != nil {
			continue
		}
		entry := logEntry{Time: ts, Level: m[2], Message: m[3]}
		if entry.matches(q) {
			matched = append(matched, entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(matched) > q.limit {
		matched = matched[len(matched)-q.limit:]
	}
	return matched, nil
}
