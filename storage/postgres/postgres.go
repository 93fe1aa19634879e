// Package postgres implements storage.Store and storage.CredentialStore on
// PostgreSQL through database/sql and the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/jmcleod/masterkeep/internal/logger"
	"github.com/jmcleod/masterkeep/storage"
	"github.com/jmcleod/masterkeep/storage/postgres/migrations"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var userColumns = []string{
	"id", "login", "email", "group_id",
	"login_hash", "hash_salt", "migration_required",
	"wrapped_master_key", "wrapped_master_key_at",
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements storage.Store backed by PostgreSQL.
type Store struct {
	db  *sql.DB
	log *logger.Logger
}

var (
	_ storage.Store           = (*Store)(nil)
	_ storage.CredentialStore = (*Store)(nil)
)

// New returns a Store over an already opened database. The schema must
// exist; see Open.
func New(db *sql.DB, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{db: db, log: log}
}

// Open connects to dsn, verifies the connection and applies migrations.
func Open(ctx context.Context, dsn string, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Nop()
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(4)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	if err := migrations.Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	log.Info().Msg("connected to postgres")
	return New(db, log), nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func postgresError(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// mapError translates driver errors into storage sentinels.
func mapError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	if postgresError(err) == pgerrcode.UniqueViolation {
		return fmt.Errorf("%s: %w", what, storage.ErrAlreadyExists)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func (s *Store) GetConfig(ctx context.Context, name string) (string, error) {
	query, args, err := psql.Select("value").From("config").Where(sq.Eq{"name": name}).ToSql()
	if err != nil {
		return "", err
	}
	var value string
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&value); err != nil {
		return "", mapError(err, "config "+name)
	}
	return value, nil
}

func (s *Store) SetConfig(ctx context.Context, name, value string) error {
	return setConfig(ctx, s.db, name, value)
}

func setConfig(ctx context.Context, q queryer, name, value string) error {
	query, args, err := psql.Insert("config").
		Columns("name", "value").
		Values(name, value).
		Suffix("ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value").
		ToSql()
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, query, args...)
	return mapError(err, "config "+name)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (storage.User, error) {
	var (
		u       storage.User
		wrapped []byte
		wrapAt  sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Login, &u.Email, &u.GroupID,
		&u.LoginHash, &u.HashSalt, &u.MigrationRequired,
		&wrapped, &wrapAt)
	if err != nil {
		return storage.User{}, err
	}
	u.WrappedMasterKey = wrapped
	if wrapAt.Valid {
		u.WrappedMasterKeyAt = wrapAt.Time
	}
	return u, nil
}

func nullTime(u storage.User) sql.NullTime {
	return sql.NullTime{Time: u.WrappedMasterKeyAt, Valid: !u.WrappedMasterKeyAt.IsZero()}
}

func (s *Store) GetUser(ctx context.Context, id string) (storage.User, error) {
	query, args, err := psql.Select(userColumns...).From("users").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return storage.User{}, err
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return storage.User{}, mapError(err, "user "+id)
	}
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, u storage.User) error {
	query, args, err := psql.Insert("users").
		Columns(userColumns...).
		Values(u.ID, u.Login, u.Email, u.GroupID,
			u.LoginHash, u.HashSalt, u.MigrationRequired,
			u.WrappedMasterKey, nullTime(u)).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		s.log.Debug().Err(err).Str("user", u.ID).Msg("create user failed")
		return mapError(err, "user "+u.ID)
	}
	return nil
}

func (s *Store) UpdateUser(ctx context.Context, u storage.User) error {
	return updateUser(ctx, s.db, u)
}

func updateUser(ctx context.Context, q queryer, u storage.User) error {
	query, args, err := psql.Update("users").
		Set("login", u.Login).
		Set("email", u.Email).
		Set("group_id", u.GroupID).
		Set("login_hash", u.LoginHash).
		Set("hash_salt", u.HashSalt).
		Set("migration_required", u.MigrationRequired).
		Set("wrapped_master_key", u.WrappedMasterKey).
		Set("wrapped_master_key_at", nullTime(u)).
		Where(sq.Eq{"id": u.ID}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return mapError(err, "user "+u.ID)
	}
	return expectUserRow(res, u.ID)
}

func setUserWrap(ctx context.Context, q queryer, userID string, wrapped []byte, at time.Time) error {
	query, args, err := psql.Update("users").
		Set("wrapped_master_key", wrapped).
		Set("wrapped_master_key_at", sql.NullTime{Time: at, Valid: !at.IsZero()}).
		Where(sq.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return mapError(err, "user "+userID)
	}
	return expectUserRow(res, userID)
}

func expectUserRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("user %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("user %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context, groupID string) ([]storage.User, error) {
	b := psql.Select(userColumns...).From("users").OrderBy("login")
	if groupID != "" {
		b = b.Where(sq.Eq{"group_id": groupID})
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "listing users")
	}
	defer rows.Close()

	var users []storage.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "listing users")
	}
	return users, nil
}

type pgTx struct {
	ctx context.Context
	tx  *sql.Tx
}

func (t *pgTx) SetConfig(name, value string) error {
	return setConfig(t.ctx, t.tx, name, value)
}

func (t *pgTx) UpdateUser(u storage.User) error {
	return updateUser(t.ctx, t.tx, u)
}

func (t *pgTx) SetUserWrap(userID string, wrapped []byte, at time.Time) error {
	return setUserWrap(t.ctx, t.tx, userID, wrapped, at)
}

// Update runs fn inside a database transaction.
func (s *Store) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return fn(&pgTx{ctx: ctx, tx: tx})
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Warn().Err(rbErr).Msg("rollback failed")
			return errors.Join(err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *Store) PutCredential(ctx context.Context, id string, sealed []byte) error {
	query, args, err := psql.Insert("credentials").
		Columns("id", "data").
		Values(id, sealed).
		Suffix("ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data").
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return mapError(err, "credential "+id)
}

func (s *Store) GetCredential(ctx context.Context, id string) ([]byte, error) {
	query, args, err := psql.Select("data").From("credentials").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	var sealed []byte
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&sealed); err != nil {
		return nil, mapError(err, "credential "+id)
	}
	return sealed, nil
}

// ReencryptAll locks every credential row, rewrites it with fn and commits
// once. Any failure rolls the whole batch back.
func (s *Store) ReencryptAll(ctx context.Context, fn func(sealed []byte) ([]byte, error)) (int, error) {
	n := 0
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		query, args, err := psql.Select("id", "data").From("credentials").OrderBy("id").Suffix("FOR UPDATE").ToSql()
		if err != nil {
			return err
		}
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return mapError(err, "listing credentials")
		}

		type credential struct {
			id   string
			data []byte
		}
		var creds []credential
		for rows.Next() {
			var c credential
			if err := rows.Scan(&c.id, &c.data); err != nil {
				rows.Close()
				return fmt.Errorf("scanning credential: %w", err)
			}
			creds = append(creds, c)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return mapError(err, "listing credentials")
		}

		for _, c := range creds {
			out, err := fn(c.data)
			if err != nil {
				return fmt.Errorf("re-encrypting credential %s: %w", c.id, err)
			}
			query, args, err := psql.Update("credentials").Set("data", out).Where(sq.Eq{"id": c.id}).ToSql()
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return mapError(err, "credential "+c.id)
			}
		}
		n = len(creds)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}
