package store

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// Queue is a durable, strictly-FIFO, monotonic-ID ordered queue backed by a
// single table in the harvester's SQLite database. Both the URL frontier and
// the saver buffer are instances of Queue over different tables.
type Queue struct {
	db    *DB
	table string
}

// NewQueue returns a Queue over table, which must already exist (see
// migrations/0001_init.up.sql).
func NewQueue(db *DB, table string) *Queue {
	return &Queue{db: db, table: table}
}

// Entry is a single queued value together with its assigned ID.
type Entry struct {
	ID    int64
	Value []byte
}

// Push appends value to the tail of the queue and returns its assigned,
// strictly-increasing, never-reused ID.
func (q *Queue) Push(ctx context.Context, value []byte) (int64, error) {
	sqlStr, args, err := sq.Insert(q.table).Columns("value").Values(value).ToSql()
	if err != nil {
		return 0, fmt.Errorf("store: building insert for %s: %w", q.table, err)
	}
	res, err := q.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("store: inserting into %s: %w", q.table, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: reading last insert id for %s: %w", q.table, err)
	}
	return id, nil
}

// PopMin atomically removes and returns the entry with the lowest ID in the
// queue, or nil if the queue is empty. The pool is capped at one open
// connection (see Open), so the select-then-delete pair here is effectively
// serialized with every other queue operation and cannot race with a
// concurrent PopMin.
func (q *Queue) PopMin(ctx context.Context) (*Entry, error) {
	tx, err := q.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx on %s: %w", q.table, err)
	}
	defer tx.Rollback()

	selStr, selArgs, err := sq.Select("id", "value").
		From(q.table).
		OrderBy("id ASC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: building select for %s: %w", q.table, err)
	}

	var entry Entry
	err = tx.QueryRowContext(ctx, selStr, selArgs...).Scan(&entry.ID, &entry.Value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: selecting min from %s: %w", q.table, err)
	}

	delStr, delArgs, err := sq.Delete(q.table).Where(sq.Eq{"id": entry.ID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: building delete for %s: %w", q.table, err)
	}
	if _, err := tx.ExecContext(ctx, delStr, delArgs...); err != nil {
		return nil, fmt.Errorf("store: deleting id %d from %s: %w", entry.ID, q.table, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: committing pop from %s: %w", q.table, err)
	}
	return &entry, nil
}

// PopMinN pops up to n entries, stopping early once the queue is exhausted.
func (q *Queue) PopMinN(ctx context.Context, n int) ([]Entry, error) {
	entries := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		entry, err := q.PopMin(ctx)
		if err != nil {
			return entries, err
		}
		if entry == nil {
			break
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

// Len returns the current number of entries in the queue.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	sqlStr, args, err := sq.Select("COUNT(*)").From(q.table).ToSql()
	if err != nil {
		return 0, fmt.Errorf("store: building count for %s: %w", q.table, err)
	}
	var n int64
	if err := q.db.QueryRowContext(ctx, sqlStr, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: counting %s: %w", q.table, err)
	}
	return n, nil
}

// IsEmpty reports whether the queue currently has no entries.
func (q *Queue) IsEmpty(ctx context.Context) (bool, error) {
	n, err := q.Len(ctx)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}
