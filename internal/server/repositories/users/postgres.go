package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/userhub/internal/common"
	"github.com/dmitrijs2005/userhub/internal/dbx"
	"github.com/dmitrijs2005/userhub/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation           = "23505"
	pgInvalidTextRepresentation = "22P02"
)

const userColumns = `id, username, email, password_hash, is_admin, profile_photo_url, profile_photo_id, bio, created_at, updated_at`

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u        models.User
		photoURL sql.NullString
		photoID  sql.NullString
	)
	err := row.Scan(&u.ID, &u.UserName, &u.Email, &u.PasswordHash, &u.IsAdmin,
		&photoURL, &photoID, &u.Bio, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if photoID.Valid {
		u.ProfilePhoto = &models.ProfilePhoto{URL: photoURL.String, ExternalID: photoID.String}
	}
	return &u, nil
}

// mapError translates driver errors into the common taxonomy.
func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrorNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return common.ErrorAlreadyExists
		case pgInvalidTextRepresentation:
			// malformed uuid in a lookup
			return common.ErrorNotFound
		}
	}
	return fmt.Errorf("db error: %w", err)
}

// Create inserts a user and fills in the store-assigned fields.
// A duplicate email yields common.ErrorAlreadyExists.
func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query :=
		`INSERT INTO users (username, email, password_hash, is_admin)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, bio, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		user.UserName, user.Email, user.PasswordHash, user.IsAdmin).
		Scan(&user.ID, &user.Bio, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}

	return user, nil
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	u, err := scanUser(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		return nil, mapError(err)
	}
	return u, nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	u, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapError(err)
	}
	return u, nil
}

// List returns every user, oldest first.
func (r *PostgresRepository) List(ctx context.Context) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	result := make([]*models.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, mapError(err)
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return result, nil
}

func (r *PostgresRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, mapError(err)
	}
	return n, nil
}

// Update applies the set fields of patch and returns the resulting row.
// An empty patch is a plain lookup.
func (r *PostgresRepository) Update(ctx context.Context, id string, patch models.UserPatch) (*models.User, error) {
	if patch.Empty() {
		return r.FindByID(ctx, id)
	}

	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.UserName.Set {
		set("username", patch.UserName.Value)
	}
	if patch.PasswordHash.Set {
		set("password_hash", patch.PasswordHash.Value)
	}
	if patch.Bio.Set {
		set("bio", patch.Bio.Value)
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), userColumns)

	u, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, mapError(err)
	}
	return u, nil
}

// SetProfilePhoto replaces the photo reference; nil clears it.
func (r *PostgresRepository) SetProfilePhoto(ctx context.Context, id string, photo *models.ProfilePhoto) error {
	var url, externalID sql.NullString
	if photo != nil {
		url = sql.NullString{String: photo.URL, Valid: true}
		externalID = sql.NullString{String: photo.ExternalID, Valid: true}
	}

	query :=
		`UPDATE users SET profile_photo_url = $1, profile_photo_id = $2, updated_at = now()
		 WHERE id = $3`

	res, err := r.db.ExecContext(ctx, query, url, externalID, id)
	if err != nil {
		return mapError(err)
	}
	return expectOneRow(res)
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	return expectOneRow(res)
}

// ListPhotoIDs returns the external ids of every referenced profile photo.
func (r *PostgresRepository) ListPhotoIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT profile_photo_id FROM users WHERE profile_photo_id IS NOT NULL`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, mapError(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return ids, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}
