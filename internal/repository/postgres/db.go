package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mkravets/tickethub/internal/repository"
)

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store implements repository.Store on a pgx connection pool. Repositories
// obtained directly from the Store auto-commit each statement; RunTx hands
// out a set bound to one transaction.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Catalog() repository.Catalog     { return &CatalogRepo{pool: s.pool} }
func (s *Store) Inventory() repository.Inventory { return &InventoryRepo{pool: s.pool} }
func (s *Store) Discounts() repository.Discounts { return &DiscountRepo{pool: s.pool} }
func (s *Store) Orders() repository.Orders       { return &OrderRepo{pool: s.pool} }
func (s *Store) Tickets() repository.Tickets     { return &TicketRepo{pool: s.pool} }
func (s *Store) Audit() repository.Audit         { return &AuditRepo{pool: s.pool} }

// RunTx runs fn inside a Read Committed transaction. Correctness of the
// contended counters does not rely on the isolation level: every counter
// mutation is a conditional UPDATE checked via RowsAffected.
func (s *Store) RunTx(
	ctx context.Context,
	fn func(ctx context.Context, tx repository.Tx) error,
) error {
	pgxTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return err
	}

	defer pgxTx.Rollback(ctx)

	if err := fn(ctx, &txStore{db: pgxTx}); err != nil {
		return err
	}

	if err := pgxTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

type txStore struct {
	db DB
}

func (t *txStore) Catalog() repository.Catalog     { return &CatalogRepo{db: t.db} }
func (t *txStore) Inventory() repository.Inventory { return &InventoryRepo{db: t.db} }
func (t *txStore) Discounts() repository.Discounts { return &DiscountRepo{db: t.db} }
func (t *txStore) Orders() repository.Orders       { return &OrderRepo{db: t.db} }
func (t *txStore) Tickets() repository.Tickets     { return &TicketRepo{db: t.db} }
func (t *txStore) Audit() repository.Audit         { return &AuditRepo{db: t.db} }
