package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/smartprint/printstage/internal/apperr"
	"github.com/smartprint/printstage/internal/models"
	"github.com/smartprint/printstage/internal/storage/migrations"
)

// RegistryClient is the file record registry backed by MySQL. All status
// reads and writes go through it; nothing is cached in memory, so
// concurrent callers always observe a consistent status ordering.
type RegistryClient struct {
	db *sql.DB
}

// NewRegistryClient opens the database, verifies connectivity and
// applies pending schema migrations.
func NewRegistryClient(ctx context.Context, dsn string) (*RegistryClient, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	rc := &RegistryClient{db: db}
	if err := rc.runMigrations(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return rc, nil
}

// NewRegistryClientWithDB wraps an existing handle. Used in tests.
func NewRegistryClientWithDB(db *sql.DB) *RegistryClient {
	return &RegistryClient{db: db}
}

func (rc *RegistryClient) runMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("mysql"); err != nil {
		return err
	}
	return goose.UpContext(ctx, rc.db, ".")
}

// Close closes the database connection
func (rc *RegistryClient) Close() error {
	return rc.db.Close()
}

// UpsertUserByEmail creates the user on first sign-in or refreshes name
// and image on a repeat sign-in, then returns the stored record.
func (rc *RegistryClient) UpsertUserByEmail(ctx context.Context, email, name, image string) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "mysql.upsert_user",
		trace.WithAttributes(
			attribute.String("user_email", email),
		),
	)
	defer span.End()

	query := `INSERT INTO users (id, email, name, image, created_at)
			  VALUES (?, ?, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE name = VALUES(name), image = VALUES(image)`

	_, err := rc.db.ExecContext(ctx, query, uuid.New().String(), email, name, image, time.Now())
	if err != nil {
		span.RecordError(err)
		return nil, &apperr.StorageError{Op: "upsert user", Err: err}
	}

	return rc.GetUserByEmail(ctx, email)
}

// GetUserByEmail retrieves a user by its identity key.
func (rc *RegistryClient) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "mysql.get_user_by_email",
		trace.WithAttributes(
			attribute.String("user_email", email),
		),
	)
	defer span.End()

	query := `SELECT id, email, name, image, created_at FROM users WHERE email = ?`
	return rc.scanUser(ctx, span, rc.db.QueryRowContext(ctx, query, email))
}

// GetUserByID retrieves a user by id.
func (rc *RegistryClient) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "mysql.get_user_by_id",
		trace.WithAttributes(
			attribute.String("user_id", userID),
		),
	)
	defer span.End()

	query := `SELECT id, email, name, image, created_at FROM users WHERE id = ?`
	return rc.scanUser(ctx, span, rc.db.QueryRowContext(ctx, query, userID))
}

func (rc *RegistryClient) scanUser(ctx context.Context, span trace.Span, row *sql.Row) (*models.User, error) {
	var user models.User
	var image sql.NullString
	err := row.Scan(&user.ID, &user.Email, &user.Name, &image, &user.CreatedAt)

	if err == sql.ErrNoRows {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, apperr.ErrNotFound
	} else if err != nil {
		span.RecordError(err)
		return nil, &apperr.StorageError{Op: "query user", Err: err}
	}

	user.Image = image.String
	span.SetAttributes(attribute.Bool("found", true))
	return &user, nil
}

// CreateFile inserts a new file record.
func (rc *RegistryClient) CreateFile(ctx context.Context, file *models.File) error {
	ctx, span := tracer.Start(ctx, "mysql.create_file",
		trace.WithAttributes(
			attribute.String("file_id", file.ID),
			attribute.String("user_id", file.UserID),
			attribute.String("file_name", file.Filename),
		),
	)
	defer span.End()

	query := `INSERT INTO files (id, user_id, url, filename, file_type, upload_date, status)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := rc.db.ExecContext(ctx, query, file.ID, file.UserID, file.URL, file.Filename, file.FileType, file.UploadDate, string(file.Status))
	if err != nil {
		span.RecordError(err)
		return &apperr.StorageError{Op: "insert file", Err: err}
	}

	span.SetAttributes(attribute.Bool("insert_success", true))
	return nil
}

// AppendUserFile links a file into the owner's denormalized index.
// The files table is the source of truth; this index only drives
// enumeration.
func (rc *RegistryClient) AppendUserFile(ctx context.Context, userID, fileID string) error {
	ctx, span := tracer.Start(ctx, "mysql.append_user_file",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.String("file_id", fileID),
		),
	)
	defer span.End()

	query := `INSERT IGNORE INTO user_files (user_id, file_id) VALUES (?, ?)`

	_, err := rc.db.ExecContext(ctx, query, userID, fileID)
	if err != nil {
		span.RecordError(err)
		return &apperr.StorageError{Op: "append user file", Err: err}
	}

	return nil
}

// ListFilesByStatus retrieves all of a user's files in a given status.
func (rc *RegistryClient) ListFilesByStatus(ctx context.Context, userID string, status models.FileStatus) ([]*models.File, error) {
	ctx, span := tracer.Start(ctx, "mysql.list_files_by_status",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.String("status", string(status)),
		),
	)
	defer span.End()

	query := `SELECT id, user_id, url, filename, file_type, upload_date, status
			  FROM files
			  WHERE user_id = ? AND status = ?
			  ORDER BY upload_date ASC`

	rows, err := rc.db.QueryContext(ctx, query, userID, string(status))
	if err != nil {
		span.RecordError(err)
		return nil, &apperr.StorageError{Op: "query files", Err: err}
	}
	defer rows.Close()

	var files []*models.File
	for rows.Next() {
		var file models.File
		err := rows.Scan(
			&file.ID,
			&file.UserID,
			&file.URL,
			&file.Filename,
			&file.FileType,
			&file.UploadDate,
			&file.Status,
		)
		if err != nil {
			span.RecordError(err)
			return nil, &apperr.StorageError{Op: "scan file", Err: err}
		}
		files = append(files, &file)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, &apperr.StorageError{Op: "iterate files", Err: err}
	}

	span.SetAttributes(attribute.Int("file_count", len(files)))
	return files, nil
}

// BulkUpdateStatus transitions every file of the user currently in
// status from to status to, in a single statement. Scoping the update to
// (user_id, from) makes repeated calls idempotent and keeps it from ever
// touching other users' files or files already past from.
func (rc *RegistryClient) BulkUpdateStatus(ctx context.Context, userID string, from, to models.FileStatus) (int64, error) {
	ctx, span := tracer.Start(ctx, "mysql.bulk_update_status",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.String("from_status", string(from)),
			attribute.String("to_status", string(to)),
		),
	)
	defer span.End()

	query := `UPDATE files SET status = ? WHERE user_id = ? AND status = ?`

	res, err := rc.db.ExecContext(ctx, query, string(to), userID, string(from))
	if err != nil {
		span.RecordError(err)
		return 0, &apperr.StorageError{Op: "bulk update status", Err: err}
	}

	count, err := res.RowsAffected()
	if err != nil {
		span.RecordError(err)
		return 0, &apperr.StorageError{Op: "rows affected", Err: err}
	}

	span.SetAttributes(attribute.Int64("files_updated", count))
	return count, nil
}

// ListFileIDsByUser enumerates a user's file ids from the files table,
// oldest first. This is the authoritative ownership view.
func (rc *RegistryClient) ListFileIDsByUser(ctx context.Context, userID string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "mysql.list_file_ids",
		trace.WithAttributes(
			attribute.String("user_id", userID),
		),
	)
	defer span.End()

	query := `SELECT id FROM files WHERE user_id = ? ORDER BY upload_date ASC`

	return rc.scanIDs(ctx, span, query, userID)
}

// ListUserFileIndex enumerates the denormalized user_files index in
// insertion order.
func (rc *RegistryClient) ListUserFileIndex(ctx context.Context, userID string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "mysql.list_user_file_index",
		trace.WithAttributes(
			attribute.String("user_id", userID),
		),
	)
	defer span.End()

	query := `SELECT file_id FROM user_files WHERE user_id = ? ORDER BY seq ASC`

	return rc.scanIDs(ctx, span, query, userID)
}

func (rc *RegistryClient) scanIDs(ctx context.Context, span trace.Span, query, userID string) ([]string, error) {
	rows, err := rc.db.QueryContext(ctx, query, userID)
	if err != nil {
		span.RecordError(err)
		return nil, &apperr.StorageError{Op: "query file ids", Err: err}
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			span.RecordError(err)
			return nil, &apperr.StorageError{Op: "scan file id", Err: err}
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, &apperr.StorageError{Op: "iterate file ids", Err: err}
	}

	span.SetAttributes(attribute.Int("id_count", len(ids)))
	return ids, nil
}

// ReplaceUserFiles rebuilds the user's denormalized index from the given
// id list, transactionally.
func (rc *RegistryClient) ReplaceUserFiles(ctx context.Context, userID string, fileIDs []string) error {
	ctx, span := tracer.Start(ctx, "mysql.replace_user_files",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.Int("file_count", len(fileIDs)),
		),
	)
	defer span.End()

	tx, err := rc.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		return &apperr.StorageError{Op: "begin tx", Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_files WHERE user_id = ?`, userID); err != nil {
		span.RecordError(err)
		return &apperr.StorageError{Op: "clear user files", Err: err}
	}

	for _, fileID := range fileIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO user_files (user_id, file_id) VALUES (?, ?)`, userID, fileID); err != nil {
			span.RecordError(err)
			return &apperr.StorageError{Op: "insert user file", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		return &apperr.StorageError{Op: "commit tx", Err: err}
	}

	return nil
}
