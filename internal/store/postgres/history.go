package postgres

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/schoolbulk/internal/core"
)

const TableHistory = "import_history"

type HistoryRepository struct {
	pool *pgxpool.Pool
	qb   sq.StatementBuilderType
}

func NewHistoryRepository(pool *pgxpool.Pool) *HistoryRepository {
	return &HistoryRepository{
		pool: pool,
		qb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *HistoryRepository) AppendHistory(ctx context.Context, entry *core.ImportHistoryEntry) error {
	db := extractDB(ctx, r.pool)

	sql, args, err := r.qb.
		Insert(TableHistory).
		Columns(
			"id",
			"school_id",
			"module",
			"file_name",
			"total_rows",
			"success",
			"failed",
			"skipped",
			"accounts_created",
			"accounts_failed",
			"actor",
			"ip_address",
			"created_at",
		).
		Values(
			entry.ID,
			entry.SchoolID,
			entry.Module,
			entry.FileName,
			entry.TotalRows,
			entry.Success,
			entry.Failed,
			entry.Skipped,
			entry.AccountsCreated,
			entry.AccountsFailed,
			entry.Actor,
			entry.IPAddress,
			entry.CreatedAt,
		).
		ToSql()
	if err != nil {
		return createQueryError(err)
	}

	if _, err := db.Exec(ctx, sql, args...); err != nil {
		return executeQueryError(err)
	}

	return nil
}

// historyEntry mirrors core.ImportHistoryEntry field for field so rows
// convert directly.
type historyEntry struct {
	ID              string    `db:"id"`
	SchoolID        string    `db:"school_id"`
	Module          string    `db:"module"`
	FileName        string    `db:"file_name"`
	TotalRows       int       `db:"total_rows"`
	Success         int       `db:"success"`
	Failed          int       `db:"failed"`
	Skipped         int       `db:"skipped"`
	AccountsCreated int       `db:"accounts_created"`
	AccountsFailed  int       `db:"accounts_failed"`
	Actor           string    `db:"actor"`
	IPAddress       string    `db:"ip_address"`
	CreatedAt       time.Time `db:"created_at"`
}

// ListHistory returns entries newest first.
func (r *HistoryRepository) ListHistory(ctx context.Context, filter core.HistoryFilter) ([]core.ImportHistoryEntry, error) {
	db := extractDB(ctx, r.pool)

	where := sq.Eq{"school_id": filter.SchoolID}
	if filter.Module != "" {
		where["module"] = filter.Module
	}

	query := r.qb.
		Select(
			"id::text AS id",
			"school_id",
			"module",
			"file_name",
			"total_rows",
			"success",
			"failed",
			"skipped",
			"accounts_created",
			"accounts_failed",
			"actor",
			"ip_address",
			"created_at",
		).
		From(TableHistory).
		Where(where).
		OrderBy("created_at DESC", "id DESC")
	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, createQueryError(err)
	}

	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, executeQueryError(err)
	}

	entries, err := pgx.CollectRows(rows, pgx.RowToStructByNameLax[historyEntry])
	if err != nil {
		return nil, collectRowsError(err)
	}

	out := make([]core.ImportHistoryEntry, len(entries))
	for i, e := range entries {
		out[i] = core.ImportHistoryEntry(e)
	}
	return out, nil
}
