package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/gps-cli/internal/model"
)

// tsLayout is fixed width so TEXT comparisons order chronologically.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

func formatTS(t time.Time) string { return t.UTC().Format(tsLayout) }

func parseTS(s string) (time.Time, error) {
	t, err := time.Parse(tsLayout, s)
	return t, eris.Wrapf(err, "sqlite: parse time %q", s)
}

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// A single connection serializes writers, including package upserts.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS team_members (
	id         TEXT PRIMARY KEY,
	first_name TEXT NOT NULL DEFAULT '',
	last_name  TEXT NOT NULL DEFAULT '',
	email      TEXT NOT NULL DEFAULT '',
	area       TEXT NOT NULL DEFAULT '',
	region     TEXT NOT NULL DEFAULT '',
	role       TEXT NOT NULL DEFAULT '',
	role_type  TEXT NOT NULL DEFAULT '',
	hire_date  TEXT,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS survey_responses (
	id             TEXT PRIMARY KEY,
	team_member_id TEXT NOT NULL,
	submitted_at   TEXT NOT NULL,
	scores         TEXT NOT NULL DEFAULT '{}',
	feedback       TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS areas (
	area_name  TEXT PRIMARY KEY,
	region     TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS metric_summaries (
	scope_level     TEXT NOT NULL,
	scope_name      TEXT NOT NULL,
	month_date      TEXT NOT NULL,
	role_type       TEXT NOT NULL,
	metrics         TEXT NOT NULL,
	headcount       INTEGER NOT NULL DEFAULT 0,
	completed       INTEGER NOT NULL DEFAULT 0,
	responses       INTEGER NOT NULL DEFAULT 0,
	completion_rate REAL NOT NULL DEFAULT 0,
	updated_at      TEXT NOT NULL,
	PRIMARY KEY (scope_level, scope_name, month_date, role_type)
);

CREATE TABLE IF NOT EXISTS feedback_responses (
	id             TEXT PRIMARY KEY,
	scope_level    TEXT NOT NULL,
	scope_name     TEXT NOT NULL,
	month_date     TEXT NOT NULL,
	role_type      TEXT NOT NULL,
	field          TEXT NOT NULL,
	team_member_id TEXT NOT NULL,
	first_name     TEXT NOT NULL DEFAULT '',
	last_name      TEXT NOT NULL DEFAULT '',
	response       TEXT NOT NULL,
	submitted_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS survey_packages (
	id           TEXT PRIMARY KEY,
	scope_level  TEXT NOT NULL,
	scope_name   TEXT NOT NULL,
	month_date   TEXT NOT NULL,
	role_type    TEXT NOT NULL,
	version      INTEGER NOT NULL DEFAULT 1,
	payload      TEXT NOT NULL,
	ai_processed INTEGER NOT NULL DEFAULT 0,
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL,
	UNIQUE (scope_level, scope_name, month_date, role_type)
);

CREATE TABLE IF NOT EXISTS survey_narratives (
	id         TEXT PRIMARY KEY,
	package_id TEXT NOT NULL UNIQUE REFERENCES survey_packages(id),
	content    TEXT NOT NULL,
	model      TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_team_members_area ON team_members(area);
CREATE INDEX IF NOT EXISTS idx_survey_responses_submitted ON survey_responses(submitted_at);
CREATE INDEX IF NOT EXISTS idx_metric_summaries_month ON metric_summaries(scope_level, month_date);
CREATE INDEX IF NOT EXISTS idx_feedback_responses_month ON feedback_responses(month_date, scope_level, scope_name);
CREATE INDEX IF NOT EXISTS idx_survey_packages_processed ON survey_packages(ai_processed, month_date);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func sqliteMonth(m model.Month) any { return m.Date() }

func (s *SQLiteStore) where() *where { return newWhere(question, sqliteMonth) }

// execEach runs stmt once per args row inside a single transaction.
func (s *SQLiteStore) execEach(ctx context.Context, op, stmt string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: %s: begin tx", op)
	}
	defer tx.Rollback() //nolint:errcheck

	prep, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: %s: prepare", op)
	}
	defer prep.Close() //nolint:errcheck

	var n int64
	for _, args := range rows {
		res, err := prep.ExecContext(ctx, args...)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: %s", op)
		}
		affected, _ := res.RowsAffected()
		n += affected
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrapf(err, "sqlite: %s: commit", op)
	}
	return n, nil
}

// --- Roster ---

const sqliteActiveMembersSQL = `SELECT t.id, t.first_name, t.last_name, t.email, t.area,
	COALESCE(NULLIF(t.region, ''), a.region, '') AS region, t.role, t.role_type, t.hire_date
FROM team_members t LEFT JOIN areas a ON a.area_name = t.area
WHERE upper(trim(t.role)) <> 'TERM'
	AND (t.hire_date IS NULL OR t.hire_date < ?)
	AND (? = '' OR t.area = ?)
ORDER BY t.area, t.last_name, t.first_name, t.id`

func (s *SQLiteStore) ActiveMembers(ctx context.Context, area string, hiredBefore time.Time) ([]model.TeamMember, error) {
	rows, err := s.db.QueryContext(ctx, sqliteActiveMembersSQL, formatTS(hiredBefore), area, area)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: active members")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.TeamMember
	for rows.Next() {
		var (
			m        model.TeamMember
			roleType string
			hire     sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.FirstName, &m.LastName, &m.Email, &m.Area,
			&m.Region, &m.Role, &roleType, &hire); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan member")
		}
		m.RoleType = model.RoleType(roleType)
		if hire.Valid {
			t, err := parseTS(hire.String)
			if err != nil {
				return nil, err
			}
			m.HireDate = &t
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate members")
}

func (s *SQLiteStore) UpsertMembers(ctx context.Context, members []model.TeamMember) (int64, error) {
	now := formatTS(time.Now())
	rows := make([][]any, len(members))
	for i, m := range members {
		var hire any
		if m.HireDate != nil {
			hire = formatTS(*m.HireDate)
		}
		rows[i] = []any{m.ID, m.FirstName, m.LastName, m.Email, m.Area, m.Region, m.Role, string(m.RoleType), hire, now}
	}
	return s.execEach(ctx, "upsert members",
		`INSERT INTO team_members (id, first_name, last_name, email, area, region, role, role_type, hire_date, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET first_name = excluded.first_name, last_name = excluded.last_name,
			email = excluded.email, area = excluded.area, region = excluded.region, role = excluded.role,
			role_type = excluded.role_type, hire_date = excluded.hire_date, updated_at = excluded.updated_at`,
		rows,
	)
}

// --- Responses ---

func (s *SQLiteStore) Submissions(ctx context.Context, from, to time.Time) ([]model.SurveyResponse, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, team_member_id, submitted_at, scores, feedback FROM survey_responses
		WHERE submitted_at >= ? AND submitted_at < ? ORDER BY submitted_at, id`,
		formatTS(from), formatTS(to),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: submissions")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.SurveyResponse
	for rows.Next() {
		var (
			r                model.SurveyResponse
			submitted        string
			scores, feedback string
		)
		if err := rows.Scan(&r.ID, &r.TeamMemberID, &submitted, &scores, &feedback); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan submission")
		}
		if r.SubmittedAt, err = parseTS(submitted); err != nil {
			return nil, err
		}
		if err := decodeScores(&r, []byte(scores), []byte(feedback)); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate submissions")
}

func (s *SQLiteStore) UpsertResponses(ctx context.Context, responses []model.SurveyResponse) (int64, error) {
	rows := make([][]any, len(responses))
	for i, r := range responses {
		scores, feedback, err := encodeScores(r)
		if err != nil {
			return 0, err
		}
		rows[i] = []any{r.ID, r.TeamMemberID, formatTS(r.SubmittedAt), string(scores), string(feedback)}
	}
	return s.execEach(ctx, "upsert responses",
		`INSERT INTO survey_responses (id, team_member_id, submitted_at, scores, feedback) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET team_member_id = excluded.team_member_id, submitted_at = excluded.submitted_at,
			scores = excluded.scores, feedback = excluded.feedback`,
		rows,
	)
}

// --- Areas ---

func (s *SQLiteStore) UpsertAreas(ctx context.Context, areas []model.AreaAssignment) error {
	now := formatTS(time.Now())
	rows := make([][]any, len(areas))
	for i, a := range areas {
		rows[i] = []any{a.Area, a.Region, now}
	}
	_, err := s.execEach(ctx, "upsert areas",
		`INSERT INTO areas (area_name, region, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (area_name) DO UPDATE SET region = excluded.region, updated_at = excluded.updated_at`,
		rows,
	)
	return err
}

func (s *SQLiteStore) ListAreas(ctx context.Context) ([]model.AreaAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT area_name, region FROM areas ORDER BY area_name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list areas")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.AreaAssignment
	for rows.Next() {
		var a model.AreaAssignment
		if err := rows.Scan(&a.Area, &a.Region); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan area")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate areas")
}

// --- Summaries ---

func (s *SQLiteStore) UpsertSummaries(ctx context.Context, summaries []model.AggregateSummary) error {
	now := formatTS(time.Now())
	rows := make([][]any, len(summaries))
	for i, sm := range summaries {
		metrics, err := encodeMetrics(sm.Metrics)
		if err != nil {
			return err
		}
		rows[i] = []any{string(sm.Scope.Level), sm.Scope.Name, sm.Month.Date(), string(sm.Role), string(metrics),
			sm.Headcount, sm.Completed, sm.Responses, sm.CompletionRate, now}
	}
	_, err := s.execEach(ctx, "upsert summaries",
		`INSERT INTO metric_summaries (scope_level, scope_name, month_date, role_type, metrics,
			headcount, completed, responses, completion_rate, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (scope_level, scope_name, month_date, role_type) DO UPDATE SET
			metrics = excluded.metrics, headcount = excluded.headcount, completed = excluded.completed,
			responses = excluded.responses, completion_rate = excluded.completion_rate, updated_at = excluded.updated_at`,
		rows,
	)
	return err
}

// ReplaceSummaries swaps the month's summary rows for summaries in one
// transaction.
func (s *SQLiteStore) ReplaceSummaries(ctx context.Context, month model.Month, summaries []model.AggregateSummary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: replace summaries: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM metric_summaries WHERE month_date = ?`, month.Date()); err != nil {
		return eris.Wrapf(err, "sqlite: clear summaries %s", month)
	}
	now := formatTS(time.Now())
	for _, sm := range summaries {
		if sm.Month != month {
			return eris.Errorf("sqlite: replace summaries %s: got %s row", month, sm.Month)
		}
		metrics, err := encodeMetrics(sm.Metrics)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO metric_summaries (scope_level, scope_name, month_date, role_type, metrics,
				headcount, completed, responses, completion_rate, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(sm.Scope.Level), sm.Scope.Name, sm.Month.Date(), string(sm.Role), string(metrics),
			sm.Headcount, sm.Completed, sm.Responses, sm.CompletionRate, now,
		); err != nil {
			return eris.Wrap(err, "sqlite: insert summary")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: replace summaries: commit")
}

func (s *SQLiteStore) ListSummaries(ctx context.Context, f SummaryFilter) ([]model.AggregateSummary, error) {
	w := s.where()
	w.eq("scope_level", string(f.Level))
	w.in("scope_name", f.Names)
	w.month("month_date", f.Month)
	w.eq("role_type", string(f.Role))

	rows, err := s.db.QueryContext(ctx,
		`SELECT scope_level, scope_name, month_date, role_type, metrics, headcount, completed, responses, completion_rate
		FROM metric_summaries`+w.String()+` ORDER BY month_date DESC, scope_level, scope_name, role_type`+limitClause(f.Limit),
		w.args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list summaries")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.AggregateSummary
	for rows.Next() {
		var (
			sm          model.AggregateSummary
			level, role string
			metricsJSON string
		)
		if err := rows.Scan(&level, &sm.Scope.Name, &sm.Month, &role, &metricsJSON,
			&sm.Headcount, &sm.Completed, &sm.Responses, &sm.CompletionRate); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan summary")
		}
		sm.Scope.Level = model.ScopeLevel(level)
		sm.Role = model.RoleFilter(role)
		if sm.Metrics, err = decodeMetrics([]byte(metricsJSON)); err != nil {
			return nil, err
		}
		out = append(out, sm)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate summaries")
}

func (s *SQLiteStore) SummaryMonths(ctx context.Context, level model.ScopeLevel, names []string) ([]model.Month, error) {
	w := s.where()
	w.eq("scope_level", string(level))
	w.in("scope_name", names)

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT month_date FROM metric_summaries`+w.String()+` ORDER BY month_date DESC`,
		w.args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: summary months")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Month
	for rows.Next() {
		var m model.Month
		if err := rows.Scan(&m); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan month")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate months")
}

// --- Feedback ---

func (s *SQLiteStore) ReplaceFeedback(ctx context.Context, month model.Month, bundles []model.FeedbackBundle) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: replace feedback: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM feedback_responses WHERE month_date = ?`, month.Date()); err != nil {
		return 0, eris.Wrapf(err, "sqlite: clear feedback %s", month)
	}

	flat := flattenFeedback(bundles)
	for _, r := range flat {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO feedback_responses (id, scope_level, scope_name, month_date, role_type, field,
				team_member_id, first_name, last_name, response, submitted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), string(r.scope.Level), r.scope.Name, r.month.Date(), string(r.role), string(r.field),
			r.entry.TeamMemberID, r.entry.FirstName, r.entry.LastName, r.entry.Response, formatTS(r.entry.SubmittedAt),
		); err != nil {
			return 0, eris.Wrap(err, "sqlite: insert feedback")
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: replace feedback: commit")
	}
	return len(flat), nil
}

func (s *SQLiteStore) ListFeedback(ctx context.Context, f FeedbackFilter) ([]model.FeedbackBundle, error) {
	w := s.where()
	w.eq("scope_level", string(f.Level))
	w.eq("scope_name", f.Name)
	w.month("month_date", f.Month)
	w.eq("role_type", string(f.Role))
	w.eq("field", string(f.Field))

	rows, err := s.db.QueryContext(ctx,
		`SELECT scope_level, scope_name, month_date, role_type, field, team_member_id, first_name, last_name, response, submitted_at
		FROM feedback_responses`+w.String()+` ORDER BY month_date DESC, scope_level, scope_name, role_type, field, submitted_at, id`,
		w.args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list feedback")
	}
	defer rows.Close() //nolint:errcheck

	var flat []feedbackRow
	for rows.Next() {
		var (
			r                  feedbackRow
			level, role, field string
			submitted          string
		)
		if err := rows.Scan(&level, &r.scope.Name, &r.month, &role, &field, &r.entry.TeamMemberID,
			&r.entry.FirstName, &r.entry.LastName, &r.entry.Response, &submitted); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan feedback")
		}
		if r.entry.SubmittedAt, err = parseTS(submitted); err != nil {
			return nil, err
		}
		r.scope.Level = model.ScopeLevel(level)
		r.role = model.RoleFilter(role)
		r.field = model.FeedbackField(field)
		flat = append(flat, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate feedback")
	}
	return groupFeedback(flat), nil
}

// --- Packages ---

const sqlitePackageSelect = `SELECT p.id, p.scope_level, p.scope_name, p.month_date, p.role_type, p.version, p.payload,
	p.ai_processed, p.created_at, p.updated_at, n.id, n.content, n.model, n.created_at
FROM survey_packages p LEFT JOIN survey_narratives n ON n.package_id = p.id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLitePackage(row rowScanner) (*model.MonthlyPackage, error) {
	var (
		p                              model.MonthlyPackage
		level, role, payload           string
		created, updated               string
		nID, nContent, nModel, nCreate sql.NullString
	)
	if err := row.Scan(&p.ID, &level, &p.Scope.Name, &p.Month, &role, &p.Version, &payload,
		&p.AIProcessed, &created, &updated, &nID, &nContent, &nModel, &nCreate); err != nil {
		return nil, err
	}
	p.Scope.Level = model.ScopeLevel(level)
	p.Role = model.RoleFilter(role)
	var err error
	if p.CreatedAt, err = parseTS(created); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTS(updated); err != nil {
		return nil, err
	}
	if err := decodePayload(&p, []byte(payload)); err != nil {
		return nil, err
	}
	if nID.Valid {
		p.Narrative = &model.Narrative{ID: nID.String, PackageID: p.ID, Content: nContent.String, Model: nModel.String}
		if nCreate.Valid {
			if p.Narrative.CreatedAt, err = parseTS(nCreate.String); err != nil {
				return nil, err
			}
		}
	}
	return &p, nil
}

func (s *SQLiteStore) UpsertPackage(ctx context.Context, pkg model.MonthlyPackage, opts UpsertOptions) (*model.MonthlyPackage, error) {
	payload, err := encodePayload(pkg)
	if err != nil {
		return nil, err
	}
	key := pkg.Key()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: upsert package: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	now := formatTS(time.Now())
	var (
		id          string
		version     int
		aiProcessed bool
	)
	err = tx.QueryRowContext(ctx,
		`SELECT id, version, ai_processed FROM survey_packages
		WHERE scope_level = ? AND scope_name = ? AND month_date = ? AND role_type = ?`,
		string(key.Scope.Level), key.Scope.Name, key.Month.Date(), string(key.Role),
	).Scan(&id, &version, &aiProcessed)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		id = uuid.New().String()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO survey_packages (id, scope_level, scope_name, month_date, role_type, version, payload, ai_processed, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, 1, ?, 0, ?, ?)`,
			id, string(key.Scope.Level), key.Scope.Name, key.Month.Date(), string(key.Role), string(payload), now, now,
		); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert package %s", key)
		}
	case err != nil:
		return nil, eris.Wrapf(err, "sqlite: find package %s", key)
	default:
		if opts.ClearAI {
			if _, err := tx.ExecContext(ctx, `DELETE FROM survey_narratives WHERE package_id = ?`, id); err != nil {
				return nil, eris.Wrapf(err, "sqlite: clear narrative %s", key)
			}
			aiProcessed = false
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE survey_packages SET payload = ?, version = ?, ai_processed = ?, updated_at = ? WHERE id = ?`,
			string(payload), version+1, aiProcessed, now, id,
		); err != nil {
			return nil, eris.Wrapf(err, "sqlite: update package %s", key)
		}
	}

	out, err := scanSQLitePackage(tx.QueryRowContext(ctx, sqlitePackageSelect+` WHERE p.id = ?`, id))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: reload package %s", key)
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: upsert package: commit")
	}
	return out, nil
}

func (s *SQLiteStore) GetPackage(ctx context.Context, id string) (*model.MonthlyPackage, error) {
	p, err := scanSQLitePackage(s.db.QueryRowContext(ctx, sqlitePackageSelect+` WHERE p.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get package %s", id)
	}
	return p, eris.Wrapf(err, "sqlite: get package %s", id)
}

func (s *SQLiteStore) ListPackages(ctx context.Context, f PackageFilter) ([]model.MonthlyPackage, error) {
	w := s.where()
	w.month("p.month_date", f.Month)
	w.eq("p.scope_level", string(f.Level))
	w.eq("p.scope_name", f.Name)
	w.eq("p.role_type", string(f.Role))
	if f.Unprocessed {
		w.raw("p.ai_processed = 0")
	}

	rows, err := s.db.QueryContext(ctx,
		sqlitePackageSelect+w.String()+` ORDER BY p.month_date DESC, p.scope_level, p.scope_name, p.role_type`+limitClause(f.Limit),
		w.args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list packages")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.MonthlyPackage
	for rows.Next() {
		p, err := scanSQLitePackage(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan package")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate packages")
}

func (s *SQLiteStore) CompleteNarrative(ctx context.Context, n model.Narrative) (*model.Narrative, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: complete narrative: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var processed bool
	err = tx.QueryRowContext(ctx, `SELECT ai_processed FROM survey_packages WHERE id = ?`, n.PackageID).Scan(&processed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: package %s", n.PackageID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find package %s", n.PackageID)
	}
	if processed {
		return nil, eris.Wrapf(ErrAlreadyProcessed, "sqlite: package %s", n.PackageID)
	}

	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO survey_narratives (id, package_id, content, model, created_at) VALUES (?, ?, ?, ?, ?)`,
		n.ID, n.PackageID, n.Content, n.Model, formatTS(n.CreatedAt),
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert narrative %s", n.PackageID)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE survey_packages SET ai_processed = 1, updated_at = ? WHERE id = ?`,
		formatTS(n.CreatedAt), n.PackageID,
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: mark processed %s", n.PackageID)
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: complete narrative: commit")
	}
	return &n, nil
}
