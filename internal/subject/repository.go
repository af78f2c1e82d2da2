package subject

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arthgyan/onboarding/internal/apperr"
)

// Repository persists subjects.
//
// Update loads the subject addressed by id, applies fn and saves the result
// atomically. When fn returns an error nothing is written and the error is
// returned unchanged. fn may be applied more than once when a store retries
// after a concurrent write, so it must only set fields. Implementations return apperr.ErrNotFound for unknown
// subjects and apperr.ErrAlreadyRegistered when a phone or email is taken.
type Repository interface {
	Create(ctx context.Context, s Subject) error
	FindByID(ctx context.Context, id string) (Subject, error)
	FindByIdentifier(ctx context.Context, ident Identifier) (Subject, error)
	FindByArtifact(ctx context.Context, kind ArtifactKind, artifactID string) (Subject, error)
	Update(ctx context.Context, id string, fn func(*Subject) error) (Subject, error)
}

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "23505"

const subjectColumns = `id, COALESCE(phone, ''), COALESCE(email, ''), full_name, pan, pan_updated_at,
    occupation, income, date_of_birth, pincode, address, city, district, state,
    google_id, is_google_user, pin_hash, otp_code, otp_expires_at,
    kyc_request_id, identity_document_id, esign_id, investor_profile_id, created_at, updated_at`

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed subject repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Migrate creates the subjects table when missing.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate subjects: %w", err)
	}
	return nil
}

// Create inserts a new subject.
func (r *PostgresRepository) Create(ctx context.Context, s Subject) error {
	id, err := uuid.Parse(s.ID)
	if err != nil {
		return fmt.Errorf("%w: subject id: %v", apperr.ErrInvalidInput, err)
	}
	otpCode, otpExpires := otpColumns(s.PendingOTP)
	_, err = r.db.Exec(ctx, `INSERT INTO subjects (id, phone, email, full_name, pan, pan_updated_at,
        occupation, income, date_of_birth, pincode, address, city, district, state,
        google_id, is_google_user, pin_hash, otp_code, otp_expires_at,
        kyc_request_id, identity_document_id, esign_id, investor_profile_id, created_at, updated_at)
        VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)`,
		id, s.Phone, s.Email, s.FullName, s.PAN, s.PANUpdatedAt,
		s.Occupation, s.Income, s.DateOfBirth, s.Pincode, s.Address, s.City, s.District, s.State,
		s.GoogleID, s.IsGoogleUser, s.PINHash, otpCode, otpExpires,
		s.KycRequestID, s.IdentityDocumentID, s.EsignID, s.InvestorProfileID, s.CreatedAt.UTC(), s.UpdatedAt.UTC())
	return mapWriteError(err)
}

// FindByID fetches a subject by its identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (Subject, error) {
	subjectID, err := uuid.Parse(id)
	if err != nil {
		return Subject{}, apperr.ErrNotFound
	}
	return scanSubject(r.db.QueryRow(ctx, `SELECT `+subjectColumns+` FROM subjects WHERE id = $1`, subjectID))
}

// FindByIdentifier fetches a subject by phone number or email.
func (r *PostgresRepository) FindByIdentifier(ctx context.Context, ident Identifier) (Subject, error) {
	query := `SELECT ` + subjectColumns + ` FROM subjects WHERE phone = $1`
	if ident.Kind == KindEmail {
		query = `SELECT ` + subjectColumns + ` FROM subjects WHERE lower(email) = lower($1)`
	}
	return scanSubject(r.db.QueryRow(ctx, query, ident.Value))
}

// FindByArtifact fetches the subject that requested the given identity document or esign.
func (r *PostgresRepository) FindByArtifact(ctx context.Context, kind ArtifactKind, artifactID string) (Subject, error) {
	if artifactID == "" {
		return Subject{}, apperr.ErrNotFound
	}
	var column string
	switch kind {
	case ArtifactIdentityDocument:
		column = "identity_document_id"
	case ArtifactEsign:
		column = "esign_id"
	default:
		return Subject{}, fmt.Errorf("%w: artifact kind %q", apperr.ErrInvalidInput, kind)
	}
	return scanSubject(r.db.QueryRow(ctx, `SELECT `+subjectColumns+` FROM subjects WHERE `+column+` = $1`, artifactID))
}

// Update applies fn to the locked row and writes it back in the same transaction.
func (r *PostgresRepository) Update(ctx context.Context, id string, fn func(*Subject) error) (Subject, error) {
	subjectID, err := uuid.Parse(id)
	if err != nil {
		return Subject{}, apperr.ErrNotFound
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Subject{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	current, err := scanSubject(tx.QueryRow(ctx, `SELECT `+subjectColumns+` FROM subjects WHERE id = $1 FOR UPDATE`, subjectID))
	if err != nil {
		return Subject{}, err
	}

	next := clone(current)
	if err := fn(&next); err != nil {
		return Subject{}, err
	}
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = time.Now().UTC()

	otpCode, otpExpires := otpColumns(next.PendingOTP)
	_, err = tx.Exec(ctx, `UPDATE subjects SET phone = NULLIF($2, ''), email = NULLIF($3, ''), full_name = $4,
        pan = $5, pan_updated_at = $6, occupation = $7, income = $8, date_of_birth = $9, pincode = $10,
        address = $11, city = $12, district = $13, state = $14, google_id = $15, is_google_user = $16,
        pin_hash = $17, otp_code = $18, otp_expires_at = $19, kyc_request_id = $20,
        identity_document_id = $21, esign_id = $22, investor_profile_id = $23, updated_at = $24
        WHERE id = $1`,
		subjectID, next.Phone, next.Email, next.FullName, next.PAN, next.PANUpdatedAt,
		next.Occupation, next.Income, next.DateOfBirth, next.Pincode, next.Address, next.City, next.District, next.State,
		next.GoogleID, next.IsGoogleUser, next.PINHash, otpCode, otpExpires,
		next.KycRequestID, next.IdentityDocumentID, next.EsignID, next.InvestorProfileID, next.UpdatedAt)
	if err != nil {
		return Subject{}, mapWriteError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Subject{}, err
	}
	return next, nil
}

func scanSubject(row pgx.Row) (Subject, error) {
	var (
		id         uuid.UUID
		s          Subject
		otpCode    *string
		otpExpires *time.Time
	)
	err := row.Scan(&id, &s.Phone, &s.Email, &s.FullName, &s.PAN, &s.PANUpdatedAt,
		&s.Occupation, &s.Income, &s.DateOfBirth, &s.Pincode, &s.Address, &s.City, &s.District, &s.State,
		&s.GoogleID, &s.IsGoogleUser, &s.PINHash, &otpCode, &otpExpires,
		&s.KycRequestID, &s.IdentityDocumentID, &s.EsignID, &s.InvestorProfileID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Subject{}, apperr.ErrNotFound
		}
		return Subject{}, err
	}
	s.ID = id.String()
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	if otpCode != nil && otpExpires != nil {
		s.PendingOTP = &PendingOTP{Code: *otpCode, ExpiresAt: otpExpires.UTC()}
	}
	return s, nil
}

func otpColumns(otp *PendingOTP) (*string, *time.Time) {
	if otp == nil {
		return nil, nil
	}
	code := otp.Code
	expires := otp.ExpiresAt.UTC()
	return &code, &expires
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return apperr.ErrAlreadyRegistered
	}
	return err
}
