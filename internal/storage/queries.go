package storage

import (
	"context"
	"database/sql"
	"errors"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type TransactionRow struct {
	ID          string
	UserID      string
	Description string
	AmountCents int64
	Category    string
	Type        string
	Status      string
	Date        string
	CreatedAt   string
}

const insertTransaction = `
INSERT INTO transactions (id, user_id, description, amount_cents, category, type, status, date, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) InsertTransaction(ctx context.Context, arg TransactionRow) error {
	_, err := q.db.ExecContext(ctx, insertTransaction,
		arg.ID,
		arg.UserID,
		arg.Description,
		arg.AmountCents,
		arg.Category,
		arg.Type,
		arg.Status,
		arg.Date,
		arg.CreatedAt,
	)
	return err
}

const deleteTransaction = `
DELETE FROM transactions WHERE user_id = ? AND id = ?
`

// DeleteTransaction returns the number of deleted rows.
func (q *Queries) DeleteTransaction(ctx context.Context, userID, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteTransaction, userID, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listTransactions = `
SELECT id, user_id, description, amount_cents, category, type, status, date, created_at
FROM transactions
WHERE user_id = ?
ORDER BY date DESC, id ASC
`

func (q *Queries) ListTransactions(ctx context.Context, userID string) ([]TransactionRow, error) {
	rows, err := q.db.QueryContext(ctx, listTransactions, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TransactionRow
	for rows.Next() {
		var i TransactionRow
		if err := rows.Scan(
			&i.ID,
			&i.UserID,
			&i.Description,
			&i.AmountCents,
			&i.Category,
			&i.Type,
			&i.Status,
			&i.Date,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countTransactions = `
SELECT COUNT(*) FROM transactions WHERE user_id = ?
`

func (q *Queries) CountTransactions(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countTransactions, userID).Scan(&n)
	return n, err
}

const bumpRevision = `
INSERT INTO user_revisions (user_id, revision) VALUES (?, 1)
ON CONFLICT (user_id) DO UPDATE SET revision = revision + 1
`

func (q *Queries) BumpRevision(ctx context.Context, userID string) error {
	_, err := q.db.ExecContext(ctx, bumpRevision, userID)
	return err
}

const getRevision = `
SELECT revision FROM user_revisions WHERE user_id = ?
`

// GetRevision returns 0 for users that never wrote.
func (q *Queries) GetRevision(ctx context.Context, userID string) (int64, error) {
	var rev int64
	err := q.db.QueryRowContext(ctx, getRevision, userID).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return rev, err
}
