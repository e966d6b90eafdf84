package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
// The tsvectors are computed per query; boards are small enough that this
// stays acceptable without dedicated columns.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across tasks and boards using
// plainto_tsquery and ts_rank, with ts_headline for snippets. Results
// are restricted to the boards in q.BoardIDs.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" || len(q.BoardIDs) == 0 {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	scopePlaceholders := make([]string, len(q.BoardIDs))
	for i, id := range q.BoardIDs {
		scopePlaceholders[i] = fmt.Sprintf("$%d", argN)
		args = append(args, id)
		argN++
	}
	scopeList := strings.Join(scopePlaceholders, ", ")

	var subQueries []string

	// Tasks sub-query
	if q.FilterType == "" || q.FilterType == ResultTask {
		taskVector := "to_tsvector('english', t.title || ' ' || coalesce(t.description, ''))"
		taskWhere := fmt.Sprintf("%s @@ %s AND l.board_id IN (%s)", taskVector, tsQuery, scopeList)
		if q.FilterBoardID != "" {
			taskWhere += fmt.Sprintf(" AND l.board_id = $%d", argN)
			args = append(args, q.FilterBoardID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'task'::text AS type, t.id, t.title,
				ts_headline('english', coalesce(t.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				l.board_id, t.list_id,
				ts_rank(%s, %s) AS rank
			FROM tasks t
			JOIN lists l ON l.id = t.list_id
			WHERE %s`, tsQuery, taskVector, tsQuery, taskWhere))
	}

	// Boards sub-query
	if q.FilterType == "" || q.FilterType == ResultBoard {
		boardVector := "to_tsvector('english', b.title || ' ' || coalesce(b.description, ''))"
		boardWhere := fmt.Sprintf("%s @@ %s AND b.id IN (%s)", boardVector, tsQuery, scopeList)
		if q.FilterBoardID != "" {
			boardWhere += fmt.Sprintf(" AND b.id = $%d", argN)
			args = append(args, q.FilterBoardID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'board'::text AS type, b.id, b.title,
				ts_headline('english', coalesce(b.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				b.id AS board_id, ''::text AS list_id,
				ts_rank(%s, %s) AS rank
			FROM boards b
			WHERE %s`, tsQuery, boardVector, tsQuery, boardWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	// Count query
	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	// Data query
	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, board_id, list_id
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.BoardID, &r.ListID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]TaskRecord, []BoardRecord, error) {
	taskRows, err := p.db.QueryContext(ctx, `
		SELECT t.id, t.title, coalesce(t.description, ''), t.list_id, l.title, l.board_id
		FROM tasks t
		JOIN lists l ON l.id = t.list_id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load tasks: %w", err)
	}
	defer taskRows.Close()

	tasks := make([]TaskRecord, 0)
	for taskRows.Next() {
		var t TaskRecord
		if err := taskRows.Scan(&t.ID, &t.Title, &t.Description, &t.ListID, &t.ListTitle, &t.BoardID); err != nil {
			return nil, nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := taskRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate tasks: %w", err)
	}

	boardRows, err := p.db.QueryContext(ctx, `
		SELECT id, title, coalesce(description, '')
		FROM boards
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load boards: %w", err)
	}
	defer boardRows.Close()

	boards := make([]BoardRecord, 0)
	for boardRows.Next() {
		var b BoardRecord
		if err := boardRows.Scan(&b.ID, &b.Title, &b.Description); err != nil {
			return nil, nil, fmt.Errorf("scan board: %w", err)
		}
		b.BoardID = b.ID
		boards = append(boards, b)
	}
	if err := boardRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate boards: %w", err)
	}

	return tasks, boards, nil
}
