package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/pulse/internal/daybucket"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Metric names. Presence and voice buckets hold milliseconds; message
// buckets hold counts. Presence rows use the empty dimension, voice and
// message rows use the channel id.
const (
	MetricPresence = "presence"
	MetricVoice    = "voice"
	MetricMessages = "messages"
)

const dateFormat = "2006-01-02"

// OpenSession mirrors one in-progress session. The durable row is created
// when the session opens and deleted in the same transaction that flushes
// its buckets, so a session can never be counted twice across a restart.
type OpenSession struct {
	Kind      string
	GuildID   string
	UserID    string
	StartedAt time.Time
	Dimension string
}

// Monitor is the per-guild monitored-subject configuration. The session
// engine updates SessionStart and the last-* snapshot fields when the
// monitored subject transitions; everything else belongs to the API layer.
type Monitor struct {
	GuildID          string
	UserID           string
	ChannelID        string
	SessionStart     *time.Time
	LastStatus       string
	LastStatusAt     *time.Time
	LastActivity     string
	LastActivityAt   *time.Time
	LastCustomStatus string
	Language         string
}

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// EnsureSchema creates the tables if they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS activity_buckets (
			metric      TEXT NOT NULL,
			guild_id    TEXT NOT NULL,
			user_id     TEXT NOT NULL,
			bucket_date DATE NOT NULL,
			dimension   TEXT NOT NULL DEFAULT '',
			value       BIGINT NOT NULL DEFAULT 0,
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (metric, guild_id, user_id, bucket_date, dimension)
		)`,
		`CREATE INDEX IF NOT EXISTS activity_buckets_guild_date
			ON activity_buckets (metric, guild_id, bucket_date)`,
		`CREATE TABLE IF NOT EXISTS open_sessions (
			kind       TEXT NOT NULL,
			guild_id   TEXT NOT NULL,
			user_id    TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			dimension  TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (kind, guild_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS guild_monitors (
			guild_id           TEXT PRIMARY KEY,
			user_id            TEXT NOT NULL,
			channel_id         TEXT NOT NULL DEFAULT '',
			session_start      TIMESTAMPTZ,
			last_status        TEXT NOT NULL DEFAULT 'offline',
			last_status_at     TIMESTAMPTZ,
			last_activity      TEXT NOT NULL DEFAULT '',
			last_activity_at   TIMESTAMPTZ,
			last_custom_status TEXT NOT NULL DEFAULT '',
			language           TEXT NOT NULL DEFAULT 'en',
			updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

const incrementSQL = `
	INSERT INTO activity_buckets (metric, guild_id, user_id, bucket_date, dimension, value)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (metric, guild_id, user_id, bucket_date, dimension)
	DO UPDATE SET value = activity_buckets.value + EXCLUDED.value, updated_at = now()
`

// IncrementBucket adds delta to one day bucket, creating it if absent.
// The read-modify-write happens inside Postgres, so concurrent increments
// to the same key are applied additively. Non-positive deltas are no-ops.
func (s *Store) IncrementBucket(ctx context.Context, metric, guildID, userID string, date time.Time, dimension string, delta int64) error {
	if delta <= 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, incrementSQL,
		metric, guildID, userID, date.UTC().Format(dateFormat), dimension, delta)
	if err != nil {
		return fmt.Errorf("increment bucket: %w", err)
	}
	return nil
}

// FlushSession applies every day segment of a closing session and deletes
// its open-session row in a single transaction. Either all of it lands or
// none of it does, which keeps a crash mid-flush recoverable.
func (s *Store) FlushSession(ctx context.Context, sess OpenSession, metric, dimension string, segs []daybucket.Segment) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin flush: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, seg := range segs {
		delta := seg.Duration.Milliseconds()
		if delta <= 0 {
			continue
		}
		if _, err := tx.Exec(ctx, incrementSQL,
			metric, sess.GuildID, sess.UserID, seg.Date.Format(dateFormat), dimension, delta); err != nil {
			return fmt.Errorf("flush segment: %w", err)
		}
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM open_sessions WHERE kind = $1 AND guild_id = $2 AND user_id = $3`,
		sess.Kind, sess.GuildID, sess.UserID); err != nil {
		return fmt.Errorf("delete open session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit flush: %w", err)
	}

	slog.Debug("flushed session", "kind", sess.Kind, "guild", sess.GuildID, "user", sess.UserID, "segments", len(segs))
	return nil
}

func dateKeys(dates []time.Time) []string {
	keys := make([]string, len(dates))
	for i, d := range dates {
		keys[i] = d.UTC().Format(dateFormat)
	}
	return keys
}

// SumUserRange sums a user's buckets over the given dates, across all
// dimensions. Missing dates contribute zero.
func (s *Store) SumUserRange(ctx context.Context, metric, guildID, userID string, dates []time.Time) (int64, error) {
	var total int64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(value), 0) FROM activity_buckets
		WHERE metric = $1 AND guild_id = $2 AND user_id = $3 AND bucket_date = ANY($4::date[])
	`, metric, guildID, userID, dateKeys(dates)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum user range: %w", err)
	}
	return total, nil
}

// SumUserAll sums a user's entire history for a metric.
func (s *Store) SumUserAll(ctx context.Context, metric, guildID, userID string) (int64, error) {
	var total int64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(value), 0) FROM activity_buckets
		WHERE metric = $1 AND guild_id = $2 AND user_id = $3
	`, metric, guildID, userID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum user all: %w", err)
	}
	return total, nil
}

// TotalsByUser sums every user's buckets over the given dates, across all
// dimensions. Users with no buckets in the range are absent from the map.
func (s *Store) TotalsByUser(ctx context.Context, metric, guildID string, dates []time.Time) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, SUM(value) FROM activity_buckets
		WHERE metric = $1 AND guild_id = $2 AND bucket_date = ANY($3::date[])
		GROUP BY user_id
	`, metric, guildID, dateKeys(dates))
	if err != nil {
		return nil, fmt.Errorf("totals by user: %w", err)
	}
	defer rows.Close()
	return scanTotals(rows)
}

// TotalsByUserInDimension is TotalsByUser restricted to one dimension.
func (s *Store) TotalsByUserInDimension(ctx context.Context, metric, guildID, dimension string, dates []time.Time) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, SUM(value) FROM activity_buckets
		WHERE metric = $1 AND guild_id = $2 AND dimension = $3 AND bucket_date = ANY($4::date[])
		GROUP BY user_id
	`, metric, guildID, dimension, dateKeys(dates))
	if err != nil {
		return nil, fmt.Errorf("totals by user in dimension: %w", err)
	}
	defer rows.Close()
	return scanTotals(rows)
}

// TotalsByDimension sums every dimension's buckets over the given dates,
// used to resolve the busiest channel when none is requested.
func (s *Store) TotalsByDimension(ctx context.Context, metric, guildID string, dates []time.Time) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT dimension, SUM(value) FROM activity_buckets
		WHERE metric = $1 AND guild_id = $2 AND bucket_date = ANY($3::date[])
		GROUP BY dimension
	`, metric, guildID, dateKeys(dates))
	if err != nil {
		return nil, fmt.Errorf("totals by dimension: %w", err)
	}
	defer rows.Close()
	return scanTotals(rows)
}

// UserSeries returns one user's per-day totals keyed by date string
// (2006-01-02), across all dimensions. Dates without buckets are absent.
func (s *Store) UserSeries(ctx context.Context, metric, guildID, userID string, dates []time.Time) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT bucket_date::text, SUM(value) FROM activity_buckets
		WHERE metric = $1 AND guild_id = $2 AND user_id = $3 AND bucket_date = ANY($4::date[])
		GROUP BY bucket_date
	`, metric, guildID, userID, dateKeys(dates))
	if err != nil {
		return nil, fmt.Errorf("user series: %w", err)
	}
	defer rows.Close()
	return scanTotals(rows)
}

func scanTotals(rows pgx.Rows) (map[string]int64, error) {
	totals := make(map[string]int64)
	for rows.Next() {
		var key string
		var value int64
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		totals[key] = value
	}
	return totals, rows.Err()
}

// ResetGuild wipes all aggregates for a guild (administrative reset).
func (s *Store) ResetGuild(ctx context.Context, guildID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM activity_buckets WHERE guild_id = $1`, guildID); err != nil {
		return fmt.Errorf("reset guild: %w", err)
	}
	return nil
}

// PutOpenSession persists the durable mirror of an in-memory session.
func (s *Store) PutOpenSession(ctx context.Context, sess OpenSession) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO open_sessions (kind, guild_id, user_id, started_at, dimension)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (kind, guild_id, user_id)
		DO UPDATE SET started_at = EXCLUDED.started_at, dimension = EXCLUDED.dimension
	`, sess.Kind, sess.GuildID, sess.UserID, sess.StartedAt.UTC(), sess.Dimension)
	if err != nil {
		return fmt.Errorf("put open session: %w", err)
	}
	return nil
}

func (s *Store) DeleteOpenSession(ctx context.Context, kind, guildID, userID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM open_sessions WHERE kind = $1 AND guild_id = $2 AND user_id = $3`,
		kind, guildID, userID)
	if err != nil {
		return fmt.Errorf("delete open session: %w", err)
	}
	return nil
}

// ListOpenSessions returns every durable open session of one kind,
// consumed by startup reconciliation.
func (s *Store) ListOpenSessions(ctx context.Context, kind string) ([]OpenSession, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT kind, guild_id, user_id, started_at, dimension
		FROM open_sessions WHERE kind = $1
		ORDER BY guild_id, user_id
	`, kind)
	if err != nil {
		return nil, fmt.Errorf("list open sessions: %w", err)
	}
	defer rows.Close()

	var sessions []OpenSession
	for rows.Next() {
		var sess OpenSession
		if err := rows.Scan(&sess.Kind, &sess.GuildID, &sess.UserID, &sess.StartedAt, &sess.Dimension); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// GetMonitor returns a guild's monitor config, or nil when none is set.
func (s *Store) GetMonitor(ctx context.Context, guildID string) (*Monitor, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT guild_id, user_id, channel_id, session_start, last_status, last_status_at,
		       last_activity, last_activity_at, last_custom_status, language
		FROM guild_monitors WHERE guild_id = $1
	`, guildID)

	var m Monitor
	err := row.Scan(&m.GuildID, &m.UserID, &m.ChannelID, &m.SessionStart, &m.LastStatus,
		&m.LastStatusAt, &m.LastActivity, &m.LastActivityAt, &m.LastCustomStatus, &m.Language)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get monitor: %w", err)
	}
	return &m, nil
}

func (s *Store) PutMonitor(ctx context.Context, m Monitor) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO guild_monitors (guild_id, user_id, channel_id, session_start, last_status,
			last_status_at, last_activity, last_activity_at, last_custom_status, language)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (guild_id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			channel_id = EXCLUDED.channel_id,
			session_start = EXCLUDED.session_start,
			last_status = EXCLUDED.last_status,
			last_status_at = EXCLUDED.last_status_at,
			last_activity = EXCLUDED.last_activity,
			last_activity_at = EXCLUDED.last_activity_at,
			last_custom_status = EXCLUDED.last_custom_status,
			language = EXCLUDED.language,
			updated_at = now()
	`, m.GuildID, m.UserID, m.ChannelID, m.SessionStart, m.LastStatus,
		m.LastStatusAt, m.LastActivity, m.LastActivityAt, m.LastCustomStatus, m.Language)
	if err != nil {
		return fmt.Errorf("put monitor: %w", err)
	}
	return nil
}

func (s *Store) DeleteMonitor(ctx context.Context, guildID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM guild_monitors WHERE guild_id = $1`, guildID)
	if err != nil {
		return fmt.Errorf("delete monitor: %w", err)
	}
	return nil
}

func (s *Store) ListMonitors(ctx context.Context) ([]Monitor, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT guild_id, user_id, channel_id, session_start, last_status, last_status_at,
		       last_activity, last_activity_at, last_custom_status, language
		FROM guild_monitors ORDER BY guild_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list monitors: %w", err)
	}
	defer rows.Close()

	var monitors []Monitor
	for rows.Next() {
		var m Monitor
		if err := rows.Scan(&m.GuildID, &m.UserID, &m.ChannelID, &m.SessionStart, &m.LastStatus,
			&m.LastStatusAt, &m.LastActivity, &m.LastActivityAt, &m.LastCustomStatus, &m.Language); err != nil {
			return nil, err
		}
		monitors = append(monitors, m)
	}
	return monitors, rows.Err()
}
