package database

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TxFunc defines a transaction function. The context it receives carries the
// open transaction; repositories resolve it via GetDBFromContext.
type TxFunc func(ctx context.Context) error

// Transaction executes a function within a database transaction. The whole
// function either commits or rolls back as one unit.
func (db *DB) Transaction(ctx context.Context, fn TxFunc) error {
	return db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txCtx := ContextWithTransaction(ctx, tx)
		if err := fn(txCtx); err != nil {
			db.logger.Debug("transaction rolled back", zap.Error(err))
			return err
		}
		return nil
	})
}

// TransactionKey is the context key for storing a transaction
type TransactionKey struct{}

// ContextWithTransaction adds a transaction to the context
func ContextWithTransaction(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, TransactionKey{}, tx)
}

// TransactionFromContext extracts a transaction from the context
func TransactionFromContext(ctx context.Context) (*gorm.DB, bool) {
	tx, ok := ctx.Value(TransactionKey{}).(*gorm.DB)
	return tx, ok
}

// GetDBFromContext returns the transaction from the context if one is open,
// otherwise the base connection bound to the context.
func (db *DB) GetDBFromContext(ctx context.Context) *gorm.DB {
	if tx, ok := TransactionFromContext(ctx); ok {
		return tx
	}
	return db.DB.WithContext(ctx)
}
