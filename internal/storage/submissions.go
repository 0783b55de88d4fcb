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

type SubmissionStore struct {
	pool *pgxpool.Pool
}

func NewSubmissionStore(pool *pgxpool.Pool) *SubmissionStore {
	return &SubmissionStore{pool: pool}
}

// Create inserts the submission, including its mail log when already known.
func (s *SubmissionStore) Create(ctx context.Context, sub *domain.Submission) error {
	data, err := json.Marshal(sub.Data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}
	meta, err := json.Marshal(sub.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	var mailLog []byte
	if sub.MailLog != nil {
		if mailLog, err = json.Marshal(sub.MailLog); err != nil {
			return fmt.Errorf("marshal mail log: %w", err)
		}
	}
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO form_submissions (id, form_ref, form_id, website_id, app_id, data, metadata, status, is_spam, mail_log)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb)
		RETURNING created_at`,
		sub.ID, sub.FormRef, sub.FormID, sub.WebsiteID, sub.AppID, data, meta,
		string(sub.Status), sub.IsSpam, mailLog,
	)
	return mapErr(row.Scan(&sub.CreatedAt))
}

// UpdateMailLog overwrites the mail log of a submission.
func (s *SubmissionStore) UpdateMailLog(ctx context.Context, id uuid.UUID, log domain.MailLog) error {
	b, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("marshal mail log: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `UPDATE form_submissions SET mail_log = $2 WHERE id = $1`, id, b)
	if err != nil {
		return fmt.Errorf("update mail log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByForm returns the newest submissions of a form first.
func (s *SubmissionStore) ListByForm(ctx context.Context, formRef uuid.UUID, limit, offset int) ([]domain.Submission, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, form_ref, form_id, website_id, app_id, data, metadata, status, is_spam, mail_log, created_at
		FROM form_submissions
		WHERE form_ref = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		formRef, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var out []domain.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sub)
	}
	return out, rows.Err()
}

func scanSubmission(row pgx.Row) (*domain.Submission, error) {
	var (
		sub                 domain.Submission
		status              string
		data, meta, mailLog []byte
	)
	err := row.Scan(&sub.ID, &sub.FormRef, &sub.FormID, &sub.WebsiteID, &sub.AppID,
		&data, &meta, &status, &sub.IsSpam, &mailLog, &sub.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	sub.Status = domain.SubmissionStatus(status)
	if err := json.Unmarshal(data, &sub.Data); err != nil {
		return nil, fmt.Errorf("decode submission data: %w", err)
	}
	if err := json.Unmarshal(meta, &sub.Metadata); err != nil {
		return nil, fmt.Errorf("decode submission metadata: %w", err)
	}
	if len(mailLog) > 0 {
		sub.MailLog = &domain.MailLog{}
		if err := json.Unmarshal(mailLog, sub.MailLog); err != nil {
			return nil, fmt.Errorf("decode mail log: %w", err)
		}
	}
	return &sub, nil
}
