package repository

import (
	"context"
	"mailtriage/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

type SalesInquiryRepository struct {
	db *pgxpool.Pool
}

func NewSalesInquiryRepository(db *pgxpool.Pool) *SalesInquiryRepository {
	return &SalesInquiryRepository{db: db}
}

// ExistingMessageIDs returns the subset of the given message IDs that are
// already stored. One batched query regardless of batch size.
func (r *SalesInquiryRepository) ExistingMessageIDs(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
        SELECT message_id
        FROM sales_inquiries
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

// Insert writes one classified inquiry. The unique index on message_id is
// the second line of defense against concurrent cycles.
func (r *SalesInquiryRepository) Insert(ctx context.Context, inq *model.SalesInquiry) (int, error) {
	query := `
        INSERT INTO sales_inquiries (
            message_id, sender_email, sender_name, company_name, mobile_number,
            email_subject, email_summary, extracted_json, email_raw, email_date,
            inquiry_type, inquiry_reason, assigned_to, created_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())
        RETURNING id
    `
	var id int
	err := r.db.QueryRow(ctx, query,
		inq.MessageID,
		inq.SenderEmail,
		inq.SenderName,
		inq.CompanyName,
		inq.MobileNumber,
		inq.EmailSubject,
		inq.EmailSummary,
		inq.ExtractedJSON,
		inq.EmailRaw,
		inq.EmailDate,
		inq.InquiryType,
		inq.InquiryReason,
		inq.AssignedTo,
	).Scan(&id)
	return id, err
}

// List returns the newest inquiries, up to limit.
func (r *SalesInquiryRepository) List(ctx context.Context, limit int) ([]model.SalesInquiry, error) {
	query := `
        SELECT id, message_id, sender_email, sender_name, company_name, mobile_number,
               email_subject, email_summary, extracted_json, email_raw, email_date,
               inquiry_type, inquiry_reason, assigned_to, created_at
        FROM sales_inquiries
        ORDER BY created_at DESC
        LIMIT $1
    `
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	inquiries := []model.SalesInquiry{}
	for rows.Next() {
		var inq model.SalesInquiry
		err := rows.Scan(
			&inq.ID,
			&inq.MessageID,
			&inq.SenderEmail,
			&inq.SenderName,
			&inq.CompanyName,
			&inq.MobileNumber,
			&inq.EmailSubject,
			&inq.EmailSummary,
			&inq.ExtractedJSON,
			&inq.EmailRaw,
			&inq.EmailDate,
			&inq.InquiryType,
			&inq.InquiryReason,
			&inq.AssignedTo,
			&inq.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		inquiries = append(inquiries, inq)
	}

	return inquiries, rows.Err()
}
