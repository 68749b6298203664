package postgres

import (
	"context"
	"fmt"

	"github.com/aimerfeng/Gigsy/internal/models"
	"github.com/aimerfeng/Gigsy/internal/store"
	"github.com/google/uuid"
)

const profileColumns = `id, email, account_type, role, display_name, avatar_url, bio, phone,
	skills, level, is_verified, verified_by, verified_at, oauth_subject, password_hash,
	created_at, updated_at`

type profileRepo struct{ q querier }

func scanProfile(row rowScanner) (*models.Profile, error) {
	var p models.Profile
	err := row.Scan(
		&p.ID, &p.Email, &p.AccountType, &p.Role, &p.DisplayName, &p.AvatarURL, &p.Bio, &p.Phone,
		&p.Skills, &p.Level, &p.IsVerified, &p.VerifiedBy, &p.VerifiedAt, &p.Subject, &p.PasswordHash,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func (r *profileRepo) Create(ctx context.Context, p *models.Profile) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO profiles (`+profileColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, p.ID, p.Email, p.AccountType, p.Role, p.DisplayName, p.AvatarURL, p.Bio, p.Phone,
		nonNil(p.Skills), p.Level, p.IsVerified, p.VerifiedBy, p.VerifiedAt, p.Subject, p.PasswordHash,
		p.CreatedAt, p.UpdatedAt)
	return mapErr(err)
}

func (r *profileRepo) Get(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	return scanProfile(r.q.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id))
}

func (r *profileRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	return scanProfile(r.q.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1 FOR UPDATE`, id))
}

func (r *profileRepo) GetByEmail(ctx context.Context, email string) (*models.Profile, error) {
	return scanProfile(r.q.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE LOWER(email) = LOWER($1)`, email))
}

func (r *profileRepo) GetBySubject(ctx context.Context, subject string) (*models.Profile, error) {
	return scanProfile(r.q.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE oauth_subject = $1`, subject))
}

func (r *profileRepo) Update(ctx context.Context, p *models.Profile) error {
	return expectOne(r.q.Exec(ctx, `
		UPDATE profiles SET
			email = $2, account_type = $3, role = $4, display_name = $5, avatar_url = $6,
			bio = $7, phone = $8, skills = $9, level = $10, is_verified = $11,
			verified_by = $12, verified_at = $13, oauth_subject = $14, password_hash = $15,
			updated_at = $16
		WHERE id = $1
	`, p.ID, p.Email, p.AccountType, p.Role, p.DisplayName, p.AvatarURL,
		p.Bio, p.Phone, nonNil(p.Skills), p.Level, p.IsVerified,
		p.VerifiedBy, p.VerifiedAt, p.Subject, p.PasswordHash, p.UpdatedAt))
}

func (r *profileRepo) List(ctx context.Context, f store.ProfileFilter) ([]*models.Profile, int, error) {
	w := &where{}
	if f.Role != "" {
		w.add("role = $%d", f.Role)
	}

	var total int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM profiles`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count profiles: %w", err)
	}

	rows, err := r.q.Query(ctx, `SELECT `+profileColumns+` FROM profiles`+w.String()+
		` ORDER BY created_at DESC, id`+pageClause(f.Limit, f.Offset), w.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	out := []*models.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}
