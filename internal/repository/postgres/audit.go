package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mkravets/tickethub/internal/domain"
)

type AuditRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *AuditRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *AuditRepo) Append(ctx context.Context, entry *domain.ActivityLog) error {
	const op = "postgres.AuditRepo.Append"

	db := r.handle()

	err := db.QueryRow(ctx,
		`INSERT INTO activity_logs(tenant_id, actor_id, action, metadata)
       	 VALUES ($1, $2, $3, $4)
     	 RETURNING id, created_at`,
		entry.TenantID, entry.ActorID, entry.Action, entry.Metadata,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

func (r *AuditRepo) ListByActor(ctx context.Context, tenantID, actorID uuid.UUID, limit, offset int) ([]domain.ActivityLog, int64, error) {
	const op = "postgres.AuditRepo.ListByActor"

	db := r.handle()

	var total int64
	err := db.QueryRow(ctx,
		`SELECT COUNT(*) FROM activity_logs WHERE tenant_id = $1 AND actor_id = $2`,
		tenantID, actorID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	rows, err := db.Query(ctx,
		`SELECT id, tenant_id, actor_id, action, metadata, created_at
       	 FROM activity_logs
      	 WHERE tenant_id = $1 AND actor_id = $2
      	 ORDER BY created_at DESC
      	 LIMIT $3 OFFSET $4`,
		tenantID, actorID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.ActivityLog
	for rows.Next() {
		var l domain.ActivityLog
		if err := rows.Scan(
			&l.ID, &l.TenantID, &l.ActorID, &l.Action, &l.Metadata, &l.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}

		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%s:%w", op, err)
	}

	return out, total, nil
}
