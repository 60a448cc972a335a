package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertConfig describes a bulk upsert target.
type UpsertConfig struct {
	Table        string   // target table
	Columns      []string // columns supplied in each row
	ConflictKeys []string // unique key columns
	UpdateCols   []string // columns overwritten on conflict; nil means every non-key column
}

func (c UpsertConfig) validate() error {
	if len(c.Columns) == 0 {
		return eris.New("db: upsert: no columns specified")
	}
	if len(c.ConflictKeys) == 0 {
		return eris.New("db: upsert: no conflict keys specified")
	}
	return nil
}

func (c UpsertConfig) updateColumns() []string {
	if c.UpdateCols != nil {
		return c.UpdateCols
	}
	keys := make(map[string]bool, len(c.ConflictKeys))
	for _, k := range c.ConflictKeys {
		keys[k] = true
	}
	var out []string
	for _, col := range c.Columns {
		if !keys[col] {
			out = append(out, col)
		}
	}
	return out
}

func (c UpsertConfig) tempTable() string {
	return "_tmp_upsert_" + strings.ReplaceAll(c.Table, ".", "_")
}

// BulkUpsert writes rows through a temp table: COPY into it, drop
// duplicate keys keeping the last copy, then INSERT ... ON CONFLICT into
// the target, all in one transaction. It returns the rows affected.
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := cfg.validate(); err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	temp := cfg.tempTable()
	if _, err := tx.Exec(ctx, createTempSQL(cfg)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: create temp table for %s", cfg.Table)
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{temp}, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: COPY into temp table for %s", cfg.Table)
	}
	if _, err := tx.Exec(ctx, dedupeSQL(cfg)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: dedupe temp table for %s", cfg.Table)
	}
	tag, err := tx.Exec(ctx, upsertSQL(cfg))
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: INSERT ON CONFLICT for %s", cfg.Table)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit tx")
	}
	return tag.RowsAffected(), nil
}

func createTempSQL(cfg UpsertConfig) string {
	return fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{cfg.tempTable()}.Sanitize(), sanitizeTable(cfg.Table))
}

func dedupeSQL(cfg UpsertConfig) string {
	temp := pgx.Identifier{cfg.tempTable()}.Sanitize()
	match := make([]string, len(cfg.ConflictKeys))
	for i, k := range cfg.ConflictKeys {
		q := pgx.Identifier{k}.Sanitize()
		match[i] = fmt.Sprintf("a.%s = b.%s", q, q)
	}
	return fmt.Sprintf("DELETE FROM %s a USING %s b WHERE a.ctid < b.ctid AND %s",
		temp, temp, strings.Join(match, " AND "))
}

func upsertSQL(cfg UpsertConfig) string {
	cols := quoteAndJoin(cfg.Columns)
	var sets []string
	for _, col := range cfg.updateColumns() {
		q := pgx.Identifier{col}.Sanitize()
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", q, q))
	}
	action := "DO NOTHING"
	if len(sets) > 0 {
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		sanitizeTable(cfg.Table), cols, cols,
		pgx.Identifier{cfg.tempTable()}.Sanitize(),
		quoteAndJoin(cfg.ConflictKeys), action)
}

// sanitizeTable quotes an optionally schema-qualified table name.
func sanitizeTable(table string) string {
	return pgx.Identifier(strings.SplitN(table, ".", 2)).Sanitize()
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
