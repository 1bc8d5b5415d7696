package repositories

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "repair-desk/pkg/errors"
)

type TxManagerInterface interface {
	RunInTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error
}

type TxManager struct {
	pool *pgxpool.Pool
	opts pgx.TxOptions
}

func NewTxManager(pool *pgxpool.Pool) TxManagerInterface {
	return &TxManager{pool: pool, opts: pgx.TxOptions{IsoLevel: pgx.ReadCommitted}}
}

// RunInTransaction коммитит, если fn вернула nil. Ошибка или паника в fn откатывают транзакцию.
// Доменные ошибки из fn возвращаются как есть, сбои begin/commit становятся StorageError.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	err := pgx.BeginTxFunc(ctx, m.pool, m.opts, fn)
	if err == nil || apperrors.IsUserFacing(err) {
		return err
	}
	return apperrors.NewStorageError("tx", err)
}
