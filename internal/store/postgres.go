package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/gps-cli/internal/db"
	"github.com/sells-group/gps-cli/internal/model"
)

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres connects a pool and verifies it with a ping.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			pgxCfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			pgxCfg.MinConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS team_members (
	id         TEXT PRIMARY KEY,
	first_name TEXT NOT NULL DEFAULT '',
	last_name  TEXT NOT NULL DEFAULT '',
	email      TEXT NOT NULL DEFAULT '',
	area       TEXT NOT NULL DEFAULT '',
	region     TEXT NOT NULL DEFAULT '',
	role       TEXT NOT NULL DEFAULT '',
	role_type  TEXT NOT NULL DEFAULT '',
	hire_date  DATE,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS survey_responses (
	id             TEXT PRIMARY KEY,
	team_member_id TEXT NOT NULL,
	submitted_at   TIMESTAMPTZ NOT NULL,
	scores         JSONB NOT NULL DEFAULT '{}',
	feedback       JSONB NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS areas (
	area_name  TEXT PRIMARY KEY,
	region     TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS metric_summaries (
	scope_level     TEXT NOT NULL,
	scope_name      TEXT NOT NULL,
	month_date      DATE NOT NULL,
	role_type       TEXT NOT NULL,
	metrics         JSONB NOT NULL,
	headcount       INTEGER NOT NULL DEFAULT 0,
	completed       INTEGER NOT NULL DEFAULT 0,
	responses       INTEGER NOT NULL DEFAULT 0,
	completion_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (scope_level, scope_name, month_date, role_type)
);

CREATE TABLE IF NOT EXISTS feedback_responses (
	id             TEXT PRIMARY KEY,
	scope_level    TEXT NOT NULL,
	scope_name     TEXT NOT NULL,
	month_date     DATE NOT NULL,
	role_type      TEXT NOT NULL,
	field          TEXT NOT NULL,
	team_member_id TEXT NOT NULL,
	first_name     TEXT NOT NULL DEFAULT '',
	last_name      TEXT NOT NULL DEFAULT '',
	response       TEXT NOT NULL,
	submitted_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS survey_packages (
	id           TEXT PRIMARY KEY,
	scope_level  TEXT NOT NULL,
	scope_name   TEXT NOT NULL,
	month_date   DATE NOT NULL,
	role_type    TEXT NOT NULL,
	version      INTEGER NOT NULL DEFAULT 1,
	payload      JSONB NOT NULL,
	ai_processed BOOLEAN NOT NULL DEFAULT false,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (scope_level, scope_name, month_date, role_type)
);

CREATE TABLE IF NOT EXISTS survey_narratives (
	id         TEXT PRIMARY KEY,
	package_id TEXT NOT NULL UNIQUE REFERENCES survey_packages(id),
	content    TEXT NOT NULL,
	model      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_team_members_area ON team_members(area);
CREATE INDEX IF NOT EXISTS idx_survey_responses_submitted ON survey_responses(submitted_at);
CREATE INDEX IF NOT EXISTS idx_metric_summaries_month ON metric_summaries(scope_level, month_date DESC);
CREATE INDEX IF NOT EXISTS idx_feedback_responses_month ON feedback_responses(month_date, scope_level, scope_name);
CREATE INDEX IF NOT EXISTS idx_survey_packages_unprocessed ON survey_packages(month_date DESC) WHERE NOT ai_processed;
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func pgMonth(m model.Month) any { return m.Start() }

func (s *PostgresStore) where() *where { return newWhere(dollar, pgMonth) }

// --- Roster ---

const pgActiveMembersSQL = `SELECT t.id, t.first_name, t.last_name, t.email, t.area,
	COALESCE(NULLIF(t.region, ''), a.region, '') AS region, t.role, t.role_type, t.hire_date
FROM team_members t LEFT JOIN areas a ON a.area_name = t.area
WHERE upper(trim(t.role)) <> 'TERM'
	AND (t.hire_date IS NULL OR t.hire_date < $1)
	AND ($2 = '' OR t.area = $2)
ORDER BY t.area, t.last_name, t.first_name, t.id`

func (s *PostgresStore) ActiveMembers(ctx context.Context, area string, hiredBefore time.Time) ([]model.TeamMember, error) {
	rows, err := s.pool.Query(ctx, pgActiveMembersSQL, hiredBefore, area)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: active members")
	}
	defer rows.Close()

	var out []model.TeamMember
	for rows.Next() {
		var (
			m        model.TeamMember
			roleType string
		)
		if err := rows.Scan(&m.ID, &m.FirstName, &m.LastName, &m.Email, &m.Area,
			&m.Region, &m.Role, &roleType, &m.HireDate); err != nil {
			return nil, eris.Wrap(err, "postgres: scan member")
		}
		m.RoleType = model.RoleType(roleType)
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate members")
}

var memberUpsert = db.UpsertConfig{
	Table:        "team_members",
	Columns:      []string{"id", "first_name", "last_name", "email", "area", "region", "role", "role_type", "hire_date", "updated_at"},
	ConflictKeys: []string{"id"},
}

func (s *PostgresStore) UpsertMembers(ctx context.Context, members []model.TeamMember) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, len(members))
	for i, m := range members {
		rows[i] = []any{m.ID, m.FirstName, m.LastName, m.Email, m.Area, m.Region, m.Role, string(m.RoleType), m.HireDate, now}
	}
	n, err := db.BulkUpsert(ctx, s.pool, memberUpsert, rows)
	return n, eris.Wrap(err, "postgres: upsert members")
}

// --- Responses ---

func (s *PostgresStore) Submissions(ctx context.Context, from, to time.Time) ([]model.SurveyResponse, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, team_member_id, submitted_at, scores, feedback FROM survey_responses
		WHERE submitted_at >= $1 AND submitted_at < $2 ORDER BY submitted_at, id`,
		from, to,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: submissions")
	}
	defer rows.Close()

	var out []model.SurveyResponse
	for rows.Next() {
		var (
			r                model.SurveyResponse
			scores, feedback []byte
		)
		if err := rows.Scan(&r.ID, &r.TeamMemberID, &r.SubmittedAt, &scores, &feedback); err != nil {
			return nil, eris.Wrap(err, "postgres: scan submission")
		}
		if err := decodeScores(&r, scores, feedback); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate submissions")
}

var responseUpsert = db.UpsertConfig{
	Table:        "survey_responses",
	Columns:      []string{"id", "team_member_id", "submitted_at", "scores", "feedback"},
	ConflictKeys: []string{"id"},
}

func (s *PostgresStore) UpsertResponses(ctx context.Context, responses []model.SurveyResponse) (int64, error) {
	rows := make([][]any, len(responses))
	for i, r := range responses {
		scores, feedback, err := encodeScores(r)
		if err != nil {
			return 0, err
		}
		rows[i] = []any{r.ID, r.TeamMemberID, r.SubmittedAt.UTC(), scores, feedback}
	}
	n, err := db.BulkUpsert(ctx, s.pool, responseUpsert, rows)
	return n, eris.Wrap(err, "postgres: upsert responses")
}

// --- Areas ---

func (s *PostgresStore) UpsertAreas(ctx context.Context, areas []model.AreaAssignment) error {
	if len(areas) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: upsert areas: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	for _, a := range areas {
		if _, err := tx.Exec(ctx,
			`INSERT INTO areas (area_name, region, updated_at) VALUES ($1, $2, $3)
			ON CONFLICT (area_name) DO UPDATE SET region = EXCLUDED.region, updated_at = EXCLUDED.updated_at`,
			a.Area, a.Region, now,
		); err != nil {
			return eris.Wrapf(err, "postgres: upsert area %s", a.Area)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: upsert areas: commit")
}

func (s *PostgresStore) ListAreas(ctx context.Context) ([]model.AreaAssignment, error) {
	rows, err := s.pool.Query(ctx, `SELECT area_name, region FROM areas ORDER BY area_name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list areas")
	}
	defer rows.Close()

	var out []model.AreaAssignment
	for rows.Next() {
		var a model.AreaAssignment
		if err := rows.Scan(&a.Area, &a.Region); err != nil {
			return nil, eris.Wrap(err, "postgres: scan area")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate areas")
}

// --- Summaries ---

var summaryUpsert = db.UpsertConfig{
	Table: "metric_summaries",
	Columns: []string{"scope_level", "scope_name", "month_date", "role_type", "metrics",
		"headcount", "completed", "responses", "completion_rate", "updated_at"},
	ConflictKeys: []string{"scope_level", "scope_name", "month_date", "role_type"},
}

func (s *PostgresStore) UpsertSummaries(ctx context.Context, summaries []model.AggregateSummary) error {
	now := time.Now().UTC()
	rows := make([][]any, len(summaries))
	for i, sm := range summaries {
		metrics, err := encodeMetrics(sm.Metrics)
		if err != nil {
			return err
		}
		rows[i] = []any{string(sm.Scope.Level), sm.Scope.Name, sm.Month.Start(), string(sm.Role), metrics,
			sm.Headcount, sm.Completed, sm.Responses, sm.CompletionRate, now}
	}
	_, err := db.BulkUpsert(ctx, s.pool, summaryUpsert, rows)
	return eris.Wrap(err, "postgres: upsert summaries")
}

// ReplaceSummaries swaps the month's summary rows for summaries in one
// transaction, so scopes that dropped out of the roster lose their rows.
func (s *PostgresStore) ReplaceSummaries(ctx context.Context, month model.Month, summaries []model.AggregateSummary) error {
	now := time.Now().UTC()
	rows := make([][]any, len(summaries))
	for i, sm := range summaries {
		if sm.Month != month {
			return eris.Errorf("postgres: replace summaries %s: got %s row", month, sm.Month)
		}
		metrics, err := encodeMetrics(sm.Metrics)
		if err != nil {
			return err
		}
		rows[i] = []any{string(sm.Scope.Level), sm.Scope.Name, sm.Month.Start(), string(sm.Role), metrics,
			sm.Headcount, sm.Completed, sm.Responses, sm.CompletionRate, now}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: replace summaries: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM metric_summaries WHERE month_date = $1`, month.Start()); err != nil {
		return eris.Wrapf(err, "postgres: clear summaries %s", month)
	}
	if _, err := db.CopyFrom(ctx, tx, summaryUpsert.Table, summaryUpsert.Columns, rows); err != nil {
		return eris.Wrap(err, "postgres: insert summaries")
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: replace summaries: commit")
}

func (s *PostgresStore) ListSummaries(ctx context.Context, f SummaryFilter) ([]model.AggregateSummary, error) {
	w := s.where()
	w.eq("scope_level", string(f.Level))
	w.in("scope_name", f.Names)
	w.month("month_date", f.Month)
	w.eq("role_type", string(f.Role))

	rows, err := s.pool.Query(ctx,
		`SELECT scope_level, scope_name, month_date, role_type, metrics, headcount, completed, responses, completion_rate
		FROM metric_summaries`+w.String()+` ORDER BY month_date DESC, scope_level, scope_name, role_type`+limitClause(f.Limit),
		w.args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list summaries")
	}
	defer rows.Close()

	var out []model.AggregateSummary
	for rows.Next() {
		var (
			sm          model.AggregateSummary
			level, role string
			month       time.Time
			metricsJSON []byte
		)
		if err := rows.Scan(&level, &sm.Scope.Name, &month, &role, &metricsJSON,
			&sm.Headcount, &sm.Completed, &sm.Responses, &sm.CompletionRate); err != nil {
			return nil, eris.Wrap(err, "postgres: scan summary")
		}
		sm.Scope.Level = model.ScopeLevel(level)
		sm.Month = model.NewMonth(month)
		sm.Role = model.RoleFilter(role)
		if sm.Metrics, err = decodeMetrics(metricsJSON); err != nil {
			return nil, err
		}
		out = append(out, sm)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate summaries")
}

func (s *PostgresStore) SummaryMonths(ctx context.Context, level model.ScopeLevel, names []string) ([]model.Month, error) {
	w := s.where()
	w.eq("scope_level", string(level))
	w.in("scope_name", names)

	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT month_date FROM metric_summaries`+w.String()+` ORDER BY month_date DESC`,
		w.args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: summary months")
	}
	defer rows.Close()

	var out []model.Month
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, eris.Wrap(err, "postgres: scan month")
		}
		out = append(out, model.NewMonth(d))
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate months")
}

// --- Feedback ---

var feedbackColumns = []string{"id", "scope_level", "scope_name", "month_date", "role_type", "field",
	"team_member_id", "first_name", "last_name", "response", "submitted_at"}

func (s *PostgresStore) ReplaceFeedback(ctx context.Context, month model.Month, bundles []model.FeedbackBundle) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: replace feedback: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM feedback_responses WHERE month_date = $1`, month.Start()); err != nil {
		return 0, eris.Wrapf(err, "postgres: clear feedback %s", month)
	}

	flat := flattenFeedback(bundles)
	rows := make([][]any, len(flat))
	for i, r := range flat {
		rows[i] = []any{uuid.New().String(), string(r.scope.Level), r.scope.Name, r.month.Start(), string(r.role),
			string(r.field), r.entry.TeamMemberID, r.entry.FirstName, r.entry.LastName, r.entry.Response, r.entry.SubmittedAt.UTC()}
	}
	if _, err := db.CopyFrom(ctx, tx, "feedback_responses", feedbackColumns, rows); err != nil {
		return 0, eris.Wrap(err, "postgres: insert feedback")
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: replace feedback: commit")
	}
	return len(rows), nil
}

func (s *PostgresStore) ListFeedback(ctx context.Context, f FeedbackFilter) ([]model.FeedbackBundle, error) {
	w := s.where()
	w.eq("scope_level", string(f.Level))
	w.eq("scope_name", f.Name)
	w.month("month_date", f.Month)
	w.eq("role_type", string(f.Role))
	w.eq("field", string(f.Field))

	rows, err := s.pool.Query(ctx,
		`SELECT scope_level, scope_name, month_date, role_type, field, team_member_id, first_name, last_name, response, submitted_at
		FROM feedback_responses`+w.String()+` ORDER BY month_date DESC, scope_level, scope_name, role_type, field, submitted_at, id`,
		w.args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list feedback")
	}
	defer rows.Close()

	var flat []feedbackRow
	for rows.Next() {
		var (
			r                  feedbackRow
			level, role, field string
			month              time.Time
		)
		if err := rows.Scan(&level, &r.scope.Name, &month, &role, &field, &r.entry.TeamMemberID,
			&r.entry.FirstName, &r.entry.LastName, &r.entry.Response, &r.entry.SubmittedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan feedback")
		}
		r.scope.Level = model.ScopeLevel(level)
		r.month = model.NewMonth(month)
		r.role = model.RoleFilter(role)
		r.field = model.FeedbackField(field)
		flat = append(flat, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate feedback")
	}
	return groupFeedback(flat), nil
}

// --- Packages ---

const pgPackageSelect = `SELECT p.id, p.scope_level, p.scope_name, p.month_date, p.role_type, p.version, p.payload,
	p.ai_processed, p.created_at, p.updated_at, n.id, n.content, n.model, n.created_at
FROM survey_packages p LEFT JOIN survey_narratives n ON n.package_id = p.id`

func scanPackage(row pgx.Row) (*model.MonthlyPackage, error) {
	var (
		p                     model.MonthlyPackage
		level, role           string
		month                 time.Time
		payload               []byte
		nID, nContent, nModel *string
		nCreated              *time.Time
	)
	if err := row.Scan(&p.ID, &level, &p.Scope.Name, &month, &role, &p.Version, &payload,
		&p.AIProcessed, &p.CreatedAt, &p.UpdatedAt, &nID, &nContent, &nModel, &nCreated); err != nil {
		return nil, err
	}
	p.Scope.Level = model.ScopeLevel(level)
	p.Month = model.NewMonth(month)
	p.Role = model.RoleFilter(role)
	if err := decodePayload(&p, payload); err != nil {
		return nil, err
	}
	if nID != nil {
		p.Narrative = &model.Narrative{ID: *nID, PackageID: p.ID, Content: deref(nContent), Model: deref(nModel)}
		if nCreated != nil {
			p.Narrative.CreatedAt = *nCreated
		}
	}
	return &p, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (s *PostgresStore) UpsertPackage(ctx context.Context, pkg model.MonthlyPackage, opts UpsertOptions) (*model.MonthlyPackage, error) {
	payload, err := encodePayload(pkg)
	if err != nil {
		return nil, err
	}
	key := pkg.Key()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: upsert package: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := db.AdvisoryLock(ctx, tx, key.String()); err != nil {
		return nil, eris.Wrapf(err, "postgres: lock package %s", key)
	}

	now := time.Now().UTC()
	var (
		id      string
		version int
	)
	// The row lock orders this write after any in-flight CompleteNarrative.
	err = tx.QueryRow(ctx,
		`SELECT id, version FROM survey_packages
		WHERE scope_level = $1 AND scope_name = $2 AND month_date = $3 AND role_type = $4 FOR UPDATE`,
		string(key.Scope.Level), key.Scope.Name, key.Month.Start(), string(key.Role),
	).Scan(&id, &version)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		id = uuid.New().String()
		if _, err := tx.Exec(ctx,
			`INSERT INTO survey_packages (id, scope_level, scope_name, month_date, role_type, version, payload, ai_processed, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, 1, $6, false, $7, $7)`,
			id, string(key.Scope.Level), key.Scope.Name, key.Month.Start(), string(key.Role), payload, now,
		); err != nil {
			return nil, eris.Wrapf(err, "postgres: insert package %s", key)
		}
	case err != nil:
		return nil, eris.Wrapf(err, "postgres: find package %s", key)
	default:
		if opts.ClearAI {
			if _, err := tx.Exec(ctx, `DELETE FROM survey_narratives WHERE package_id = $1`, id); err != nil {
				return nil, eris.Wrapf(err, "postgres: clear narrative %s", key)
			}
		}
		if _, err := tx.Exec(ctx,
			`UPDATE survey_packages SET payload = $1, version = $2, ai_processed = (ai_processed AND NOT $3), updated_at = $4 WHERE id = $5`,
			payload, version+1, opts.ClearAI, now, id,
		); err != nil {
			return nil, eris.Wrapf(err, "postgres: update package %s", key)
		}
	}

	out, err := scanPackage(tx.QueryRow(ctx, pgPackageSelect+` WHERE p.id = $1`, id))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: reload package %s", key)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: upsert package: commit")
	}
	return out, nil
}

func (s *PostgresStore) GetPackage(ctx context.Context, id string) (*model.MonthlyPackage, error) {
	p, err := scanPackage(s.pool.QueryRow(ctx, pgPackageSelect+` WHERE p.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get package %s", id)
	}
	return p, eris.Wrapf(err, "postgres: get package %s", id)
}

func (s *PostgresStore) ListPackages(ctx context.Context, f PackageFilter) ([]model.MonthlyPackage, error) {
	w := s.where()
	w.month("p.month_date", f.Month)
	w.eq("p.scope_level", string(f.Level))
	w.eq("p.scope_name", f.Name)
	w.eq("p.role_type", string(f.Role))
	if f.Unprocessed {
		w.raw("NOT p.ai_processed")
	}

	rows, err := s.pool.Query(ctx,
		pgPackageSelect+w.String()+` ORDER BY p.month_date DESC, p.scope_level, p.scope_name, p.role_type`+limitClause(f.Limit),
		w.args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list packages")
	}
	defer rows.Close()

	var out []model.MonthlyPackage
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan package")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate packages")
}

func (s *PostgresStore) CompleteNarrative(ctx context.Context, n model.Narrative) (*model.Narrative, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: complete narrative: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var processed bool
	err = tx.QueryRow(ctx, `SELECT ai_processed FROM survey_packages WHERE id = $1 FOR UPDATE`, n.PackageID).Scan(&processed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: package %s", n.PackageID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: lock package %s", n.PackageID)
	}
	if processed {
		return nil, eris.Wrapf(ErrAlreadyProcessed, "postgres: package %s", n.PackageID)
	}

	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO survey_narratives (id, package_id, content, model, created_at) VALUES ($1, $2, $3, $4, $5)`,
		n.ID, n.PackageID, n.Content, n.Model, n.CreatedAt,
	); err != nil {
		return nil, eris.Wrapf(err, "postgres: insert narrative %s", n.PackageID)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE survey_packages SET ai_processed = true, updated_at = $1 WHERE id = $2`,
		n.CreatedAt, n.PackageID,
	); err != nil {
		return nil, eris.Wrapf(err, "postgres: mark processed %s", n.PackageID)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: complete narrative: commit")
	}
	return &n, nil
}
