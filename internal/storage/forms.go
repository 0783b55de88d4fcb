package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Jeffreasy/KoruFormsService/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const formColumns = `id, form_id, name, website_id, status, is_active, fields, layout, email_settings, created_by, created_at, updated_at`

// FormStore persists forms. Every owner-facing query takes a website scope;
// a nil scope means unrestricted.
type FormStore struct {
	pool *pgxpool.Pool
}

func NewFormStore(pool *pgxpool.Pool) *FormStore {
	return &FormStore{pool: pool}
}

func (s *FormStore) Create(ctx context.Context, f *domain.Form) error {
	fields, layout, email, err := marshalConfig(f.Fields, f.Layout, f.EmailSettings)
	if err != nil {
		return err
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO forms (form_id, name, website_id, status, is_active, fields, layout, email_settings, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`,
		f.FormID, f.Name, f.WebsiteID, string(f.Status), f.IsActive, fields, layout, email, f.CreatedBy,
	)
	return mapErr(row.Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt))
}

// Get returns a form by its external id without any scope check.
func (s *FormStore) Get(ctx context.Context, formID string) (*domain.Form, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+formColumns+` FROM forms WHERE form_id = $1`, formID)
	return scanForm(row)
}

// GetScoped returns a form only when its website is inside scope.
func (s *FormStore) GetScoped(ctx context.Context, formID string, scope []string) (*domain.Form, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+formColumns+` FROM forms
		WHERE form_id = $1 AND ($2::text[] IS NULL OR website_id = ANY($2))`,
		formID, scope,
	)
	return scanForm(row)
}

// GetSubmittable returns a form that can receive submissions (active or draft).
// Draft forms accept submissions even though public config refuses them.
func (s *FormStore) GetSubmittable(ctx context.Context, formID string) (*domain.Form, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+formColumns+` FROM forms
		WHERE form_id = $1 AND status IN ('active', 'draft')`,
		formID,
	)
	return scanForm(row)
}

func (s *FormStore) List(ctx context.Context, scope []string) ([]domain.Form, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+formColumns+` FROM forms
		WHERE ($1::text[] IS NULL OR website_id = ANY($1))
		ORDER BY created_at DESC`,
		scope,
	)
	if err != nil {
		return nil, fmt.Errorf("list forms: %w", err)
	}
	defer rows.Close()

	var out []domain.Form
	for rows.Next() {
		f, err := scanForm(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// Update applies the owner-editable fields of patch. It never touches
// is_active or website_id. Returns the number of rows matched.
func (s *FormStore) Update(ctx context.Context, formID string, scope []string, patch domain.FormPatch) (int64, error) {
	var (
		fields, layout, email []byte
		err                   error
	)
	if patch.Fields != nil {
		if fields, err = json.Marshal(*patch.Fields); err != nil {
			return 0, fmt.Errorf("marshal fields: %w", err)
		}
	}
	if patch.Layout != nil {
		if layout, err = json.Marshal(*patch.Layout); err != nil {
			return 0, fmt.Errorf("marshal layout: %w", err)
		}
	}
	if patch.EmailSettings != nil {
		if email, err = json.Marshal(*patch.EmailSettings); err != nil {
			return 0, fmt.Errorf("marshal email settings: %w", err)
		}
	}
	var status *string
	if patch.Status != nil {
		st := string(*patch.Status)
		status = &st
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE forms SET
			name = COALESCE($3, name),
			status = COALESCE($4, status),
			fields = COALESCE($5::jsonb, fields),
			layout = COALESCE($6::jsonb, layout),
			email_settings = COALESCE($7::jsonb, email_settings),
			updated_at = now()
		WHERE form_id = $1 AND ($2::text[] IS NULL OR website_id = ANY($2))`,
		formID, scope, patch.Name, status, fields, layout, email,
	)
	if err != nil {
		return 0, fmt.Errorf("update form: %w", mapErr(err))
	}
	return tag.RowsAffected(), nil
}

func (s *FormStore) Delete(ctx context.Context, formID string, scope []string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM forms
		WHERE form_id = $1 AND ($2::text[] IS NULL OR website_id = ANY($2))`,
		formID, scope,
	)
	if err != nil {
		return 0, fmt.Errorf("delete form: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Activate binds the form to websiteID and turns both switches on.
func (s *FormStore) Activate(ctx context.Context, formID, websiteID string) (*domain.Form, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE forms SET status = 'active', is_active = true, website_id = $2, updated_at = now()
		WHERE form_id = $1
		RETURNING `+formColumns,
		formID, websiteID,
	)
	return scanForm(row)
}

// ReconcilableWebsites returns every distinct website that has at least one
// form the owner wants live, whether or not it is currently enabled.
func (s *FormStore) ReconcilableWebsites(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT website_id FROM forms
		WHERE website_id IS NOT NULL AND (is_active OR status = 'active')
		ORDER BY website_id`)
	if err != nil {
		return nil, fmt.Errorf("list websites: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// SetActiveForWebsite flips is_active for every form of websiteID whose flag
// differs from active. It is a single statement so concurrent runs cannot
// interleave a read and a write.
func (s *FormStore) SetActiveForWebsite(ctx context.Context, websiteID string, active bool) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE forms SET is_active = $2, updated_at = now()
		WHERE website_id = $1 AND is_active = $3`,
		websiteID, active, !active,
	)
	if err != nil {
		return 0, fmt.Errorf("flip website %s: %w", websiteID, err)
	}
	return tag.RowsAffected(), nil
}

func marshalConfig(fields []domain.Field, layout domain.Layout, email domain.EmailSettings) ([]byte, []byte, []byte, error) {
	if fields == nil {
		fields = []domain.Field{}
	}
	fb, err := json.Marshal(fields)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal fields: %w", err)
	}
	lb, err := json.Marshal(layout)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal layout: %w", err)
	}
	eb, err := json.Marshal(email)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal email settings: %w", err)
	}
	return fb, lb, eb, nil
}

func scanForm(row pgx.Row) (*domain.Form, error) {
	var (
		f                     domain.Form
		status                string
		fields, layout, email []byte
		createdBy             *uuid.UUID
	)
	err := row.Scan(&f.ID, &f.FormID, &f.Name, &f.WebsiteID, &status, &f.IsActive,
		&fields, &layout, &email, &createdBy, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	f.Status = domain.FormStatus(status)
	f.CreatedBy = createdBy

	if err := json.Unmarshal(fields, &f.Fields); err != nil {
		return nil, fmt.Errorf("decode fields of %s: %w", f.FormID, err)
	}
	if err := json.Unmarshal(layout, &f.Layout); err != nil {
		return nil, fmt.Errorf("decode layout of %s: %w", f.FormID, err)
	}
	if err := json.Unmarshal(email, &f.EmailSettings); err != nil {
		return nil, fmt.Errorf("decode email settings of %s: %w", f.FormID, err)
	}
	return &f, nil
}
