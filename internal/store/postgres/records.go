package postgres

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/schoolbulk/internal/core"
)

const TableRecords = "import_records"

// RecordsRepository stores imported records as one jsonb document per row,
// partitioned by school and module.
type RecordsRepository struct {
	pool *pgxpool.Pool
	qb   sq.StatementBuilderType
}

func NewRecordsRepository(pool *pgxpool.Pool) *RecordsRepository {
	return &RecordsRepository{
		pool: pool,
		qb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

type recordRow struct {
	ID        string         `db:"id"`
	Module    string         `db:"module"`
	Fields    map[string]any `db:"fields"`
	CreatedAt time.Time      `db:"created_at"`
}

func (r *RecordsRepository) CreateRecord(ctx context.Context, schoolID, moduleID string, fields map[string]any) (string, error) {
	db := extractDB(ctx, r.pool)

	sql, args, err := r.qb.
		Insert(TableRecords).
		Columns("school_id", "module", "fields").
		Values(schoolID, moduleID, fields).
		Suffix("RETURNING id::text").
		ToSql()
	if err != nil {
		return "", createQueryError(err)
	}

	var id string
	if err := db.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		return "", scanRowError(err)
	}

	return id, nil
}

func (r *RecordsRepository) ListRecords(ctx context.Context, schoolID, moduleID string) ([]core.Record, error) {
	db := extractDB(ctx, r.pool)

	sql, args, err := r.qb.
		Select(
			"id::text AS id",
			"module",
			"fields",
			"created_at",
		).
		From(TableRecords).
		Where(sq.Eq{"school_id": schoolID, "module": moduleID}).
		OrderBy("created_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, createQueryError(err)
	}

	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, executeQueryError(err)
	}

	found, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByNameLax[recordRow])
	if err != nil {
		return nil, collectRowsError(err)
	}

	records := make([]core.Record, len(found))
	for i, row := range found {
		records[i] = core.Record{
			ID:        row.ID,
			Module:    row.Module,
			Fields:    row.Fields,
			CreatedAt: row.CreatedAt,
		}
	}

	return records, nil
}
