package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/inventory-ledger/internal/port"
)

const (
	defaultMySQLTxAttempts = 32

	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

var columnByField = map[string]string{
	port.FieldTokenBlueprintID:   "token_blueprint_id",
	port.FieldProductBlueprintID: "product_blueprint_id",
}

// MySQLStore keeps one collection in a table of JSON documents. The indexed
// fields are copied into their own columns so Where runs on an index.
// Transactions lock the rows they read (SELECT ... FOR UPDATE); deadlocks and
// lock wait timeouts are retried.
type MySQLStore struct {
	db          *sql.DB
	table       string
	maxAttempts int
}

var _ port.DocumentStore = (*MySQLStore)(nil)

func NewMySQLStore(db *sql.DB, table string, maxAttempts int) (*MySQLStore, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMySQLTxAttempts
	}
	return &MySQLStore{db: db, table: table, maxAttempts: maxAttempts}, nil
}

// EnsureSchema creates the collection table when it does not exist yet.
func (m *MySQLStore) EnsureSchema(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(512) NOT NULL PRIMARY KEY,
			token_blueprint_id VARCHAR(255) NOT NULL DEFAULT '',
			product_blueprint_id VARCHAR(255) NOT NULL DEFAULT '',
			doc JSON NOT NULL,
			created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
			updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
			KEY idx_%[1]s_token (token_blueprint_id),
			KEY idx_%[1]s_product (product_blueprint_id)
		)`, m.table))
	if err != nil {
		return fmt.Errorf("create table %s: %w", m.table, err)
	}
	return nil
}

func (m *MySQLStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx port.Tx) error) error {
	return retryTransaction(ctx, m.maxAttempts, isRetryableMySQLError, func() error {
		return m.runOnce(ctx, fn)
	})
}

func (m *MySQLStore) runOnce(ctx context.Context, fn func(ctx context.Context, tx port.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &mysqlTx{tx: tx, table: m.table}); err != nil {
		return err
	}

	return tx.Commit()
}

func (m *MySQLStore) Get(ctx context.Context, id string) (port.Document, error) {
	var data []byte
	err := m.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT doc FROM %s WHERE id = ?`, m.table), id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query document %s: %w", id, err)
	}
	return unmarshalDocument(data)
}

func (m *MySQLStore) Delete(ctx context.Context, id string) error {
	result, err := m.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, m.table), id,
	)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return port.ErrDocumentNotFound
	}
	return nil
}

func (m *MySQLStore) Where(ctx context.Context, field, value string) ([]port.Document, error) {
	column, ok := columnByField[field]
	if !ok {
		return nil, errUnsupportedField(field)
	}
	return m.query(ctx,
		fmt.Sprintf(`SELECT doc FROM %s WHERE %s = ? ORDER BY id`, m.table, column), value,
	)
}

func (m *MySQLStore) Scan(ctx context.Context) ([]port.Document, error) {
	return m.query(ctx, fmt.Sprintf(`SELECT doc FROM %s ORDER BY id`, m.table))
}

func (m *MySQLStore) query(ctx context.Context, query string, args ...any) ([]port.Document, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var out []port.Document
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc, err := unmarshalDocument(data)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func (m *MySQLStore) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

type mysqlTx struct {
	tx    *sql.Tx
	table string
}

func (t *mysqlTx) Get(ctx context.Context, id string) (port.Document, error) {
	var data []byte
	err := t.tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT doc FROM %s WHERE id = ? FOR UPDATE`, t.table), id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock document %s: %w", id, err)
	}
	return unmarshalDocument(data)
}

func (t *mysqlTx) Set(ctx context.Context, id string, doc port.Document) error {
	data, err := marshalDocument(doc)
	if err != nil {
		return err
	}

	_, err = t.tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, token_blueprint_id, product_blueprint_id, doc)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			token_blueprint_id = VALUES(token_blueprint_id),
			product_blueprint_id = VALUES(product_blueprint_id),
			doc = VALUES(doc)`, t.table),
		id,
		documentField(doc, port.FieldTokenBlueprintID),
		documentField(doc, port.FieldProductBlueprintID),
		string(data),
	)
	if err != nil {
		return fmt.Errorf("write document %s: %w", id, err)
	}
	return nil
}

func isRetryableMySQLError(err error) bool {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return false
	}
	return myErr.Number == mysqlErrDeadlock || myErr.Number == mysqlErrLockWaitTimeout
}
