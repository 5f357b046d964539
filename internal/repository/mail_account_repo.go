package repository

import (
	"context"
	"mailtriage/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

type MailAccountRepository struct {
	db *pgxpool.Pool
}

func NewMailAccountRepository(db *pgxpool.Pool) *MailAccountRepository {
	return &MailAccountRepository{db: db}
}

// ListActive returns accounts eligible for polling.
func (r *MailAccountRepository) ListActive(ctx context.Context) ([]model.MailAccount, error) {
	query := `
        SELECT id, email, app_code, status, description, created_at, updated_at
        FROM mail_accounts
        WHERE status = $1 AND deleted_at IS NULL
        ORDER BY id
    `
	rows, err := r.db.Query(ctx, query, model.AccountStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []model.MailAccount{}
	for rows.Next() {
		var a model.MailAccount
		err := rows.Scan(
			&a.ID,
			&a.Email,
			&a.AppCode,
			&a.Status,
			&a.Description,
			&a.CreatedAt,
			&a.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}

	return accounts, rows.Err()
}
