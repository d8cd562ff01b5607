package metadata

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"

	"sdcatalog/internal/selfdescription/models"
	"sdcatalog/pkg/platform/sentinel"
	"sdcatalog/pkg/platform/tx"
)

//go:embed schema.sql
var schema string

// PostgresStore persists lifecycle records in PostgreSQL.
// Pure I/O: transition rules live in the models and the service.
type PostgresStore struct {
	db       *sql.DB
	lockWait time.Duration
}

// NewPostgres constructs a PostgreSQL-backed metadata store. lockWait bounds
// how long a transaction waits for a row lock.
func NewPostgres(db *sql.DB, lockWait time.Duration) *PostgresStore {
	return &PostgresStore{db: db, lockWait: lockWait}
}

// Migrate applies the schema. Every statement is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply metadata schema: %w", err)
	}
	return nil
}

// RunInTx runs fn in one transaction with the store's lock wait applied.
// Nested calls join the outer transaction.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return translate(tx.Run(ctx, s.db, s.setLockTimeout, fn))
}

func (s *PostgresStore) setLockTimeout(ctx context.Context, sqlTx *sql.Tx) error {
	if s.lockWait <= 0 {
		return nil
	}
	ms := strconv.FormatInt(s.lockWait.Milliseconds(), 10) + "ms"
	if _, err := sqlTx.ExecContext(ctx, `SELECT set_config('lock_timeout', $1, true)`, ms); err != nil {
		return fmt.Errorf("set lock timeout: %w", err)
	}
	return nil
}

// FindActiveForUpdate locks and returns the ACTIVE record of subjectID.
// Must run inside RunInTx for the lock to outlive the statement.
func (s *PostgresStore) FindActiveForUpdate(ctx context.Context, subjectID string) (*models.Record, error) {
	query := `SELECT ` + recordColumns + `
		FROM sd_metadata
		WHERE subject_id = $1 AND status = 'ACTIVE'
		FOR UPDATE`
	r, err := scanRecord(tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, subjectID))
	if err != nil {
		return nil, fmt.Errorf("find active record: %w", translate(err))
	}
	return r, nil
}

// FindByHashForUpdate locks and returns the record stored under hash.
func (s *PostgresStore) FindByHashForUpdate(ctx context.Context, hash string) (*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM sd_metadata WHERE sd_hash = $1 FOR UPDATE`
	r, err := scanRecord(tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, hash))
	if err != nil {
		return nil, fmt.Errorf("find record for update: %w", translate(err))
	}
	return r, nil
}

func (s *PostgresStore) FindByHash(ctx context.Context, hash string) (*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM sd_metadata WHERE sd_hash = $1`
	r, err := scanRecord(tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, hash))
	if err != nil {
		return nil, fmt.Errorf("find record: %w", translate(err))
	}
	return r, nil
}

// Insert adds a new record. A duplicate hash or a second ACTIVE record for the
// subject returns sentinel.ErrConflict.
func (s *PostgresStore) Insert(ctx context.Context, r *models.Record) error {
	if r == nil {
		return fmt.Errorf("record is required")
	}
	query := `
		INSERT INTO sd_metadata (sd_hash, subject_id, issuer, upload_time, status, status_time, expiration_time, validators)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	validators := r.ValidatorDIDs
	if validators == nil {
		validators = []string{}
	}
	_, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		r.Hash,
		r.SubjectID,
		r.Issuer,
		r.UploadTime,
		string(r.Status),
		r.StatusTime,
		r.ExpirationTime,
		pq.Array(validators),
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", translate(err))
	}
	return nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, hash string, status models.Status, at time.Time) error {
	res, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx,
		`UPDATE sd_metadata SET status = $2, status_time = $3 WHERE sd_hash = $1`,
		hash, string(status), at)
	if err != nil {
		return fmt.Errorf("update status: %w", translate(err))
	}
	return requireAffected(res, "update status")
}

func (s *PostgresStore) Delete(ctx context.Context, hash string) error {
	res, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, `DELETE FROM sd_metadata WHERE sd_hash = $1`, hash)
	if err != nil {
		return fmt.Errorf("delete record: %w", translate(err))
	}
	return requireAffected(res, "delete record")
}

// Count runs the distinct-count query for f.
func (s *PostgresStore) Count(ctx context.Context, f models.Filter) (int, error) {
	query, args := countQuery(f)
	var n int
	if err := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// List returns the page of records selected by f.
func (s *PostgresStore) List(ctx context.Context, f models.Filter) ([]*models.Record, error) {
	query, args := listQuery(f)
	rows, err := tx.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []*models.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// ForEachExpired streams the hashes of ACTIVE records that expired before now
// and calls fn for each. The cursor takes no locks and holds its own
// connection, so fn may open transactions of its own. Iteration stops at the
// first error returned by fn.
func (s *PostgresStore) ForEachExpired(ctx context.Context, now time.Time, fn func(ctx context.Context, hash string) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sd_hash FROM sd_metadata WHERE status = 'ACTIVE' AND expiration_time < $1 ORDER BY expiration_time, sd_hash`,
		now)
	if err != nil {
		return fmt.Errorf("query expired records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return fmt.Errorf("scan expired hash: %w", err)
		}
		if err := fn(ctx, hash); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate expired records: %w", err)
	}
	return nil
}

// Ping checks the connection for readiness probes.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*models.Record, error) {
	var (
		r          models.Record
		status     string
		expiration sql.NullTime
		validators []string
	)
	err := row.Scan(
		&r.Hash,
		&r.SubjectID,
		&r.Issuer,
		&r.UploadTime,
		&status,
		&r.StatusTime,
		&expiration,
		pq.Array(&validators),
	)
	if err != nil {
		return nil, err
	}
	r.Status = models.Status(status)
	r.UploadTime = r.UploadTime.UTC()
	r.StatusTime = r.StatusTime.UTC()
	if expiration.Valid {
		t := expiration.Time.UTC()
		r.ExpirationTime = &t
	}
	if len(validators) > 0 {
		r.ValidatorDIDs = validators
	}
	return &r, nil
}

func requireAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, sentinel.ErrNotFound)
	}
	return nil
}

// translate maps driver errors onto sentinels; other errors pass unchanged.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "unique_violation":
			return fmt.Errorf("%s: %w", pqErr.Constraint, sentinel.ErrConflict)
		case "lock_not_available", "deadlock_detected":
			return fmt.Errorf("%s: %w", pqErr.Message, sentinel.ErrLockTimeout)
		}
	}
	return err
}
