package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/JonMunkholm/schoolbulk/internal/core"
)

const TableAccounts = "accounts"

// AccountsRepository is the local identity provider. It stores a bcrypt hash
// of the temporary credential and links the account to its record in the
// same transaction.
type AccountsRepository struct {
	pool *pgxpool.Pool
	tx   *TxManager
	qb   sq.StatementBuilderType
	cost int
}

func NewAccountsRepository(pool *pgxpool.Pool, tx *TxManager) *AccountsRepository {
	return &AccountsRepository{
		pool: pool,
		tx:   tx,
		qb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		cost: bcrypt.DefaultCost,
	}
}

func (r *AccountsRepository) CreateAccount(ctx context.Context, req core.AccountRequest) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Credential), r.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash credential: %w", err)
	}

	var accountID string
	err = r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		db := extractDB(ctx, r.pool)

		sql, args, err := r.qb.
			Insert(TableAccounts).
			Columns("school_id", "email", "password_hash", "role", "record_id").
			Values(req.SchoolID, req.Email, string(hash), string(req.Role), req.RecordID).
			Suffix("RETURNING id::text").
			ToSql()
		if err != nil {
			return createQueryError(err)
		}

		if err := db.QueryRow(ctx, sql, args...).Scan(&accountID); err != nil {
			if isUniqueViolation(err) {
				return ErrAccountExists
			}
			return scanRowError(err)
		}

		sql, args, err = r.qb.
			Update(TableRecords).
			Set("account_id", accountID).
			Where(sq.Eq{"id::text": req.RecordID, "school_id": req.SchoolID}).
			ToSql()
		if err != nil {
			return createQueryError(err)
		}

		tag, err := db.Exec(ctx, sql, args...)
		if err != nil {
			return executeQueryError(err)
		}
		if tag.RowsAffected() == 0 {
			return ErrRecordNotFound
		}

		return nil
	})
	switch {
	case errors.Is(err, ErrAccountExists):
		return "", ErrAccountExists
	case errors.Is(err, ErrRecordNotFound):
		return "", ErrRecordNotFound
	case err != nil:
		return "", err
	}

	return accountID, nil
}
