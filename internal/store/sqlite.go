package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteDB implements the DB interface using SQLite.
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB opens (or creates) the database at path. Transactions begin in
// immediate mode so a round takes the write lock before reading the balance,
// not when it first writes. WAL mode and the busy timeout ride the DSN
// because pragmas are per-connection: a db.Exec would configure only one
// connection of the pool, and any other connection racing for the write lock
// would fail with SQLITE_BUSY instead of waiting.
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	dsn := path + "?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema migrations.
func (s *SQLiteDB) Migrate() error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.Up(s.db, "migrations"); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// WithTx runs fn in a single write transaction, rolling back on error.
func (s *SQLiteDB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// NextNonce allocates the next per-(user, game) nonce via an atomic upsert.
// Two concurrent rounds can never observe the same value because the
// increment happens inside the caller's write transaction.
func (s *SQLiteDB) NextNonce(ctx context.Context, tx *sql.Tx, userID, gameType string) (uint64, error) {
	var nonce uint64
	err := tx.QueryRowContext(ctx,
		`INSERT INTO nonces (user_id, game_type, nonce) VALUES (?, ?, 1)
		 ON CONFLICT (user_id, game_type) DO UPDATE SET nonce = nonce + 1
		 RETURNING nonce`,
		userID, gameType,
	).Scan(&nonce)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate nonce: %w", err)
	}
	return nonce, nil
}

// BalanceForUpdate reads the balance under the transaction's write lock.
func (s *SQLiteDB) BalanceForUpdate(ctx context.Context, tx *sql.Tx, userID string) (decimal.Decimal, error) {
	var raw string
	err := tx.QueryRowContext(ctx, `SELECT amount FROM balances WHERE user_id = ?`, userID).Scan(&raw)
	if err == sql.ErrNoRows {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read balance: %w", err)
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("corrupt balance for user %s: %w", userID, err)
	}
	return amount, nil
}

// UpdateBalance writes the new balance inside the transaction.
func (s *SQLiteDB) UpdateBalance(ctx context.Context, tx *sql.Tx, userID string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("refusing to write negative balance %s for user %s", amount, userID)
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO balances (user_id, amount) VALUES (?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET amount = excluded.amount`,
		userID, amount.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return nil
}

// SetBalance is the administrative deposit path.
func (s *SQLiteDB) SetBalance(ctx context.Context, userID string, amount decimal.Decimal) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		return s.UpdateBalance(ctx, tx, userID, amount)
	})
}

// GetBalance reads a balance outside any round transaction.
func (s *SQLiteDB) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT amount FROM balances WHERE user_id = ?`, userID).Scan(&raw)
	if err == sql.ErrNoRows {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read balance: %w", err)
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("corrupt balance for user %s: %w", userID, err)
	}
	return amount, nil
}

// CreateSession inserts a new round record.
func (s *SQLiteDB) CreateSession(ctx context.Context, tx *sql.Tx, session *GameSession) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	if session.Version == 0 {
		session.Version = 1
	}
	outcome := session.Outcome
	if len(outcome) == 0 {
		outcome = []byte("{}")
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO game_sessions (
			id, user_id, game_type, bet_amount, bet_fee,
			server_seed, server_seed_hash, client_seed, nonce,
			outcome, payout, status, version, created_at, settled_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.UserID, session.GameType,
		session.BetAmount.String(), session.BetFee.String(),
		session.ServerSeed, session.ServerSeedHash, session.ClientSeed, session.Nonce,
		string(outcome), session.Payout.String(), session.Status, session.Version,
		session.CreatedAt, session.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

const sessionColumns = `id, user_id, game_type, bet_amount, bet_fee,
	server_seed, server_seed_hash, client_seed, nonce,
	outcome, payout, status, version, created_at, settled_at`

func scanSession(row *sql.Row) (*GameSession, error) {
	var sess GameSession
	var betAmount, betFee, payout, outcome string
	var settledAt sql.NullTime

	err := row.Scan(
		&sess.ID, &sess.UserID, &sess.GameType, &betAmount, &betFee,
		&sess.ServerSeed, &sess.ServerSeedHash, &sess.ClientSeed, &sess.Nonce,
		&outcome, &payout, &sess.Status, &sess.Version, &sess.CreatedAt, &settledAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	if sess.BetAmount, err = decimal.NewFromString(betAmount); err != nil {
		return nil, fmt.Errorf("corrupt bet amount: %w", err)
	}
	if sess.BetFee, err = decimal.NewFromString(betFee); err != nil {
		return nil, fmt.Errorf("corrupt bet fee: %w", err)
	}
	if sess.Payout, err = decimal.NewFromString(payout); err != nil {
		return nil, fmt.Errorf("corrupt payout: %w", err)
	}
	sess.Outcome = []byte(outcome)
	if settledAt.Valid {
		t := settledAt.Time
		sess.SettledAt = &t
	}

	return &sess, nil
}

// SessionForUpdate loads a session inside the transaction's write lock.
func (s *SQLiteDB) SessionForUpdate(ctx context.Context, tx *sql.Tx, id string) (*GameSession, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM game_sessions WHERE id = ?`, id)
	return scanSession(row)
}

// GetSession loads a session outside any transaction.
func (s *SQLiteDB) GetSession(ctx context.Context, id string) (*GameSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM game_sessions WHERE id = ?`, id)
	return scanSession(row)
}

// UpdateSession writes the mutable fields guarded by the version the caller
// read. Zero rows affected means another round settled the session first.
func (s *SQLiteDB) UpdateSession(ctx context.Context, tx *sql.Tx, session *GameSession) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE game_sessions
		 SET outcome = ?, payout = ?, status = ?, settled_at = ?, version = version + 1
		 WHERE id = ? AND version = ?`,
		string(session.Outcome), session.Payout.String(), session.Status,
		session.SettledAt, session.ID, session.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check session update: %w", err)
	}
	if affected == 0 {
		return ErrConflict
	}
	session.Version++
	return nil
}

// CountSessionsSince counts rounds started by the user in the trailing window.
func (s *SQLiteDB) CountSessionsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM game_sessions WHERE user_id = ? AND created_at >= ?`,
		userID, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}

// SetGameActive toggles a game. Part of the administrative path; the engine
// itself never calls it.
func (s *SQLiteDB) SetGameActive(ctx context.Context, slug string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE game_configs SET is_active = ? WHERE slug = ?`, boolToInt(active), slug)
	if err != nil {
		return fmt.Errorf("failed to toggle game: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// GetGameConfig returns the house configuration for a game slug.
func (s *SQLiteDB) GetGameConfig(ctx context.Context, slug string) (*GameConfig, error) {
	var cfg GameConfig
	var active int
	err := s.db.QueryRowContext(ctx,
		`SELECT slug, house_edge, is_active FROM game_configs WHERE slug = ?`, slug,
	).Scan(&cfg.Slug, &cfg.HouseEdge, &active)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read game config: %w", err)
	}
	cfg.IsActive = active == 1
	return &cfg, nil
}
