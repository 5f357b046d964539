package repository

import (
	"context"
	"mailtriage/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

type OtherMessageRepository struct {
	db *pgxpool.Pool
}

func NewOtherMessageRepository(db *pgxpool.Pool) *OtherMessageRepository {
	return &OtherMessageRepository{db: db}
}

// ExistingMessageIDs returns the subset of the given message IDs that are
// already stored.
func (r *OtherMessageRepository) ExistingMessageIDs(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
        SELECT message_id
        FROM other_messages
        WHERE message_id = ANY($1)
    `
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var existing []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		existing = append(existing, id)
	}

	return existing, rows.Err()
}

// Insert writes one non-inquiry message.
func (r *OtherMessageRepository) Insert(ctx context.Context, msg *model.OtherMessage) (int, error) {
	query := `
        INSERT INTO other_messages (
            message_id, sender_email, sender_name, email_subject, email_summary,
            extracted_json, email_raw, email_date, inquiry_type, created_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
        RETURNING id
    `
	var id int
	err := r.db.QueryRow(ctx, query,
		msg.MessageID,
		msg.SenderEmail,
		msg.SenderName,
		msg.EmailSubject,
		msg.EmailSummary,
		msg.ExtractedJSON,
		msg.EmailRaw,
		msg.EmailDate,
		msg.InquiryType,
	).Scan(&id)
	return id, err
}

// List returns the newest non-inquiry messages, up to limit.
func (r *OtherMessageRepository) List(ctx context.Context, limit int) ([]model.OtherMessage, error) {
	query := `
        SELECT id, message_id, sender_email, sender_name, email_subject, email_summary,
               extracted_json, email_raw, email_date, inquiry_type, created_at
        FROM other_messages
        ORDER BY created_at DESC
        LIMIT $1
    `
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []model.OtherMessage{}
	for rows.Next() {
		var msg model.OtherMessage
		err := rows.Scan(
			&msg.ID,
			&msg.MessageID,
			&msg.SenderEmail,
			&msg.SenderName,
			&msg.EmailSubject,
			&msg.EmailSummary,
			&msg.ExtractedJSON,
			&msg.EmailRaw,
			&msg.EmailDate,
			&msg.InquiryType,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}
