package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // sqlite driver

	"price-tracker/internal/model"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// Options configures a SQLStore.
type Options struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SQLStore keeps products in a SQL database through sqlx. The same schema
// serves SQLite and PostgreSQL; history and subscribers are JSON columns.
type SQLStore struct {
	db     *sqlx.DB
	driver string
	now    func() time.Time
}

// SQLiteDSN returns the DSN of the database file inside dataDir, creating the
// directory if needed.
func SQLiteDSN(dataDir string) (string, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "pricewatch.db")

	// WAL mode and a busy timeout let parallel pipelines write without SQLITE_BUSY.
	// Transactions take the write lock at BEGIN, so a read-then-write transaction
	// waits for other writers instead of failing with SQLITE_BUSY_SNAPSHOT.
	return fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_timeout=5000&_txlock=immediate", dbPath), nil
}

// Open connects to the database and runs migrations.
func Open(ctx context.Context, opts Options) (*SQLStore, error) {
	db, err := sqlx.ConnectContext(ctx, opts.Driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	s := &SQLStore{
		db:     db,
		driver: opts.Driver,
		now:    time.Now,
	}

	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

var schema = []string{ //nolint:gochecknoglobals
	`CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL UNIQUE,
		currency TEXT NOT NULL DEFAULT '',
		image TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		current_price DOUBLE PRECISION NOT NULL DEFAULT 0,
		original_price DOUBLE PRECISION NOT NULL DEFAULT 0,
		discount_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
		is_out_of_stock BOOLEAN NOT NULL DEFAULT FALSE,
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		target_price DOUBLE PRECISION,
		lowest_price DOUBLE PRECISION NOT NULL DEFAULT 0,
		highest_price DOUBLE PRECISION NOT NULL DEFAULT 0,
		average_price DOUBLE PRECISION NOT NULL DEFAULT 0,
		price_history TEXT NOT NULL DEFAULT '[]',
		users TEXT NOT NULL DEFAULT '[]',
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_products_created_at ON products(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_products_updated_at ON products(updated_at DESC)`,
}

// migrate creates tables and indexes
func (s *SQLStore) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// withTx runs fn inside a transaction.
func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w; rollback: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

// forUpdate locks the selected row on databases that support it.
func (s *SQLStore) forUpdate() string {
	if s.driver == DriverPostgres {
		return " FOR UPDATE"
	}
	return ""
}

// FetchAll returns every tracked product, oldest first.
func (s *SQLStore) FetchAll(ctx context.Context) ([]model.Product, error) {
	var rows []productRow
	query := `SELECT ` + productColumns + ` FROM products ORDER BY created_at, id`
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}

	products := make([]model.Product, 0, len(rows))
	for _, r := range rows {
		p, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}

	return products, nil
}

func (s *SQLStore) GetByID(ctx context.Context, id string) (*model.Product, error) {
	return s.getBy(ctx, s.db, "id", id, "")
}

func (s *SQLStore) GetByURL(ctx context.Context, url string) (*model.Product, error) {
	return s.getBy(ctx, s.db, "url", url, "")
}

func (s *SQLStore) getBy(ctx context.Context, q sqlx.QueryerContext, column, value, suffix string) (*model.Product, error) {
	var row productRow
	query := s.db.Rebind(`SELECT ` + productColumns + ` FROM products WHERE ` + column + ` = ?` + suffix)
	if err := sqlx.GetContext(ctx, q, &row, query, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("select product by %s: %w", column, err)
	}

	p, err := row.toDomain()
	if err != nil {
		return nil, err
	}

	return &p, nil
}

func (s *SQLStore) UpsertByURL(ctx context.Context, url string, product model.Product) (*model.Product, error) {
	product.URL = url
	product.UpdatedAt = s.now()

	row, err := fromProduct(product)
	if err != nil {
		return nil, err
	}

	var stored *model.Product

	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			UPDATE products SET
				currency = :currency, image = :image, title = :title,
				current_price = :current_price, original_price = :original_price,
				discount_rate = :discount_rate, is_out_of_stock = :is_out_of_stock,
				description = :description, category = :category,
				lowest_price = :lowest_price, highest_price = :highest_price,
				average_price = :average_price, price_history = :price_history,
				updated_at = :updated_at
			WHERE url = :url`

		res, err := tx.NamedExecContext(ctx, query, row)
		if err != nil {
			return fmt.Errorf("update product: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("check affected rows: %w", err)
		}
		if n == 0 {
			return ErrProductNotFound
		}

		stored, err = s.getBy(ctx, tx, "url", url, "")
		return err
	})
	if err != nil {
		return nil, err
	}

	return stored, nil
}

func (s *SQLStore) TrackProduct(ctx context.Context, product model.Product) (*model.Product, bool, error) {
	product, err := prepareNew(product)
	if err != nil {
		return nil, false, err
	}

	now := s.now()
	if product.ID == "" {
		product.ID = model.NewID()
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	row, err := fromProduct(product)
	if err != nil {
		return nil, false, err
	}

	var (
		stored  *model.Product
		created bool
	)

	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `INSERT INTO products (` + productColumns + `) VALUES (
			:id, :url, :currency, :image, :title, :current_price, :original_price,
			:discount_rate, :is_out_of_stock, :description, :category, :target_price,
			:lowest_price, :highest_price, :average_price, :price_history, :users,
			:created_at, :updated_at)
			ON CONFLICT (url) DO NOTHING`

		res, err := tx.NamedExecContext(ctx, query, row)
		if err != nil {
			return fmt.Errorf("insert product: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("check affected rows: %w", err)
		}
		created = n > 0

		stored, err = s.getBy(ctx, tx, "url", product.URL, "")
		return err
	})
	if err != nil {
		return nil, false, err
	}

	return stored, created, nil
}

func (s *SQLStore) AddSubscriber(ctx context.Context, id string, user model.User) (*model.Product, bool, error) {
	user, err := model.NormalizeUser(user)
	if err != nil {
		return nil, false, err
	}

	var (
		stored *model.Product
		added  bool
	)

	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		p, err := s.getBy(ctx, tx, "id", id, s.forUpdate())
		if err != nil {
			return err
		}

		if p.HasSubscriber(user.Email) {
			stored = p
			return nil
		}

		p.Users = append(p.Users, user)
		usersJSON, err := json.MarshalToString(p.Users)
		if err != nil {
			return fmt.Errorf("marshal users: %w", err)
		}

		query := tx.Rebind(`UPDATE products SET users = ? WHERE id = ?`)
		if _, err := tx.ExecContext(ctx, query, usersJSON, id); err != nil {
			return fmt.Errorf("update users: %w", err)
		}

		stored = p
		added = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return stored, added, nil
}

func (s *SQLStore) SetTargetPrice(ctx context.Context, id string, price *float64) (*model.Product, error) {
	if price != nil && *price < 0 {
		return nil, errors.Join(ErrInvalidProduct, errors.New("target price must not be negative"))
	}

	target := sql.NullFloat64{}
	if price != nil {
		target = sql.NullFloat64{Float64: *price, Valid: true}
	}

	query := s.db.Rebind(`UPDATE products SET target_price = ? WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, query, target, id)
	if err != nil {
		return nil, fmt.Errorf("update target price: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check affected rows: %w", err)
	}
	if n == 0 {
		return nil, ErrProductNotFound
	}

	return s.GetByID(ctx, id)
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM products WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check affected rows: %w", err)
	}
	if n == 0 {
		return ErrProductNotFound
	}

	return nil
}

func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM products`); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}
