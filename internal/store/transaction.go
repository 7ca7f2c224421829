package store

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type contextKey int

const (
	transactionKey contextKey = iota
)

var errTxDone = errors.New("transaction already finished")

// Tx is a gorm transaction carried in a context. Job and Result stores pick it up through
// FromContext so a snapshot write and its result row can share one commit.
type Tx struct {
	id  int64
	tx  *gorm.DB
	log logrus.FieldLogger
}

// Commit commits the transaction carried by ctx. A context without transaction is a no-op.
func Commit(ctx context.Context) (context.Context, error) {
	tx, ok := ctx.Value(transactionKey).(*Tx)
	if !ok || tx == nil {
		return ctx, nil
	}
	return context.WithValue(ctx, transactionKey, nil), tx.Commit()
}

// Rollback rolls back the transaction carried by ctx. A context without transaction is a no-op.
func Rollback(ctx context.Context) (context.Context, error) {
	tx, ok := ctx.Value(transactionKey).(*Tx)
	if !ok || tx == nil {
		return ctx, nil
	}
	return context.WithValue(ctx, transactionKey, nil), tx.Rollback()
}

// FromContext returns the open transaction of ctx, or nil.
func FromContext(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(transactionKey).(*Tx); ok && tx != nil {
		return tx.tx
	}
	return nil
}

// WithTransaction runs fn inside a transaction, joining the one already in ctx if any. The
// transaction it opened is committed when fn succeeds and rolled back otherwise.
func WithTransaction(ctx context.Context, db *gorm.DB, log logrus.FieldLogger, fn func(ctx context.Context) error) error {
	if FromContext(ctx) != nil {
		return fn(ctx)
	}

	txCtx, err := newTransactionContext(ctx, db, log)
	if err != nil {
		return err
	}
	if err := fn(txCtx); err != nil {
		if _, rerr := Rollback(txCtx); rerr != nil {
			log.WithError(rerr).Warn("rollback failed")
		}
		return err
	}
	_, err = Commit(txCtx)
	return err
}

func newTransactionContext(ctx context.Context, db *gorm.DB, log logrus.FieldLogger) (context.Context, error) {
	if FromContext(ctx) != nil {
		return ctx, nil
	}

	tx := db.Session(&gorm.Session{Context: ctx}).Begin()
	if tx.Error != nil {
		return ctx, tx.Error
	}

	// postgres reuses txids after vacuum, so the id only correlates log lines
	var txid struct{ ID int64 }
	if db.Dialector.Name() == "postgres" {
		tx.Raw("select txid_current() as id").Scan(&txid)
	}

	return context.WithValue(ctx, transactionKey, &Tx{id: txid.ID, tx: tx, log: log}), nil
}

func (t *Tx) Commit() error {
	if t.tx == nil {
		return errTxDone
	}
	if err := t.tx.Commit().Error; err != nil {
		t.log.WithField("tx", t.id).WithError(err).Error("commit failed")
		return err
	}
	t.log.WithField("tx", t.id).Debug("committed")
	t.tx = nil
	return nil
}

func (t *Tx) Rollback() error {
	if t.tx == nil {
		return errTxDone
	}
	if err := t.tx.Rollback().Error; err != nil {
		t.log.WithField("tx", t.id).WithError(err).Error("rollback failed")
		return err
	}
	t.log.WithField("tx", t.id).Debug("rolled back")
	t.tx = nil
	return nil
}
