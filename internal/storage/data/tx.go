package data

import (
	"context"

	"github.com/cloudvault/cloudvault-backend/internal/pkg/database"
	"github.com/cloudvault/cloudvault-backend/internal/storage/biz"
)

type txManager struct {
	db *database.DB
}

// NewTxManager creates a transaction manager over the shared connection
func NewTxManager(db *database.DB) biz.TxManager {
	return &txManager{db: db}
}

func (m *txManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.db.Transaction(ctx, database.TxFunc(fn))
}
