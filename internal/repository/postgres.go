package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/pharmacy-storefront/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var defaultRetryDelays = []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool        *pgxpool.Pool
	retryDelays []time.Duration
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool, retryDelays: defaultRetryDelays}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// InTx выполняет fn в транзакции READ COMMITTED. Сбои сериализации и взаимоблокировки
// приводят к повторному запуску fn целиком.
func (r *PostgresRepository) InTx(ctx context.Context, fn func(q Queries) error) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := fn(&pgQueries{q: tx}); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i <= len(r.retryDelays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if !isRetryable(err) || i == len(r.retryDelays) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.retryDelays[i]):
		}
	}
	return err
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}

	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// Деньги хранятся в копейках.
func toCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

func fromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgQueries struct {
	q querier
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
	}
	return fmt.Errorf("select %s: %w", fmt.Sprintf(format, args...), err)
}

func (p *pgQueries) CreateCustomer(ctx context.Context, c *model.Customer) (int64, error) {
	var id int64
	err := p.q.QueryRow(ctx,
		`INSERT INTO customers (login, password_hash, phone_number) VALUES ($1, $2, $3) RETURNING id`,
		c.Login, c.PasswordHash, c.PhoneNumber,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrCustomerExists, c.Login)
		}
		return 0, fmt.Errorf("create customer: %w", err)
	}
	return id, nil
}

func (p *pgQueries) GetCustomerByLogin(ctx context.Context, login string) (*model.Customer, error) {
	var c model.Customer
	err := p.q.QueryRow(ctx,
		`SELECT id, login, password_hash, phone_number, created_at FROM customers WHERE login = $1`,
		login,
	).Scan(&c.ID, &c.Login, &c.PasswordHash, &c.PhoneNumber, &c.CreatedAt)
	if err != nil {
		return nil, notFound(err, "customer %s", login)
	}
	return &c, nil
}

func (p *pgQueries) CreateProduct(ctx context.Context, pr *model.Product) (int64, error) {
	var id int64
	err := p.q.QueryRow(ctx,
		`INSERT INTO products (name, slug, price_cents, active) VALUES ($1, $2, $3, $4) RETURNING id`,
		pr.Name, pr.Slug, toCents(pr.Price), pr.Active,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrProductExists, pr.Slug)
		}
		return 0, fmt.Errorf("create product: %w", err)
	}
	return id, nil
}

func (p *pgQueries) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	var (
		pr    model.Product
		price int64
	)
	err := p.q.QueryRow(ctx,
		`SELECT id, name, slug, price_cents, active FROM products WHERE id = $1`,
		id,
	).Scan(&pr.ID, &pr.Name, &pr.Slug, &price, &pr.Active)
	if err != nil {
		return nil, notFound(err, "product %d", id)
	}
	pr.Price = fromCents(price)
	return &pr, nil
}

func (p *pgQueries) GetProductBySlug(ctx context.Context, slug string) (*model.Product, error) {
	var (
		pr    model.Product
		price int64
	)
	err := p.q.QueryRow(ctx,
		`SELECT id, name, slug, price_cents, active FROM products WHERE slug = $1`,
		slug,
	).Scan(&pr.ID, &pr.Name, &pr.Slug, &price, &pr.Active)
	if err != nil {
		return nil, notFound(err, "product %s", slug)
	}
	pr.Price = fromCents(price)
	return &pr, nil
}

func (p *pgQueries) CreateVariant(ctx context.Context, v *model.ProductVariant) (int64, error) {
	var id int64
	err := p.q.QueryRow(ctx,
		`INSERT INTO product_variants (product_id, label, price_cents, stock) VALUES ($1, $2, $3, $4) RETURNING id`,
		v.ProductID, v.Label, toCents(v.Price), v.Stock,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return 0, fmt.Errorf("%w: product %d", ErrNotFound, v.ProductID)
		}
		return 0, fmt.Errorf("create variant: %w", err)
	}
	return id, nil
}

func (p *pgQueries) GetVariant(ctx context.Context, id int64) (*model.ProductVariant, error) {
	var (
		v     model.ProductVariant
		price int64
	)
	err := p.q.QueryRow(ctx,
		`SELECT id, product_id, label, price_cents, stock FROM product_variants WHERE id = $1`,
		id,
	).Scan(&v.ID, &v.ProductID, &v.Label, &price, &v.Stock)
	if err != nil {
		return nil, notFound(err, "variant %d", id)
	}
	v.Price = fromCents(price)
	return &v, nil
}

// LockVariants блокирует строки в порядке возрастания id, чтобы параллельные оформления не взаимоблокировались.
func (p *pgQueries) LockVariants(ctx context.Context, ids []int64) (map[int64]model.ProductVariant, error) {
	rows, err := p.q.Query(ctx,
		`SELECT id, product_id, label, price_cents, stock
		 FROM product_variants
		 WHERE id = ANY($1)
		 ORDER BY id
		 FOR UPDATE`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("lock variants: %w", err)
	}
	defer rows.Close()

	res := make(map[int64]model.ProductVariant, len(ids))
	for rows.Next() {
		var (
			v     model.ProductVariant
			price int64
		)
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Label, &price, &v.Stock); err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		v.Price = fromCents(price)
		res[v.ID] = v
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

func (p *pgQueries) DecrementStock(ctx context.Context, variantID int64, quantity int) error {
	cmdTag, err := p.q.Exec(ctx,
		`UPDATE product_variants SET stock = stock - $2 WHERE id = $1 AND stock >= $2`,
		variantID, quantity,
	)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: variant %d", ErrStockConflict, variantID)
	}
	return nil
}

func (p *pgQueries) CreatePromotion(ctx context.Context, pr *model.Promotion) (int64, error) {
	var id int64
	err := p.q.QueryRow(ctx,
		`INSERT INTO promotions (name, discount_percent, start_date, end_date, active)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		pr.Name, pr.DiscountPercent, pr.StartDate, pr.EndDate, pr.Active,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create promotion: %w", err)
	}

	for _, productID := range pr.ProductIDs {
		_, err := p.q.Exec(ctx,
			`INSERT INTO promotion_products (promotion_id, product_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			id, productID,
		)
		if err != nil {
			return 0, fmt.Errorf("link promotion product: %w", err)
		}
	}
	return id, nil
}

func (p *pgQueries) FindActivePromotions(ctx context.Context, productID int64, at time.Time) ([]model.Promotion, error) {
	rows, err := p.q.Query(ctx,
		`SELECT pr.id, pr.name, pr.discount_percent, pr.start_date, pr.end_date, pr.active,
		        ARRAY(SELECT pp.product_id FROM promotion_products pp WHERE pp.promotion_id = pr.id ORDER BY pp.product_id)
		 FROM promotions pr
		 JOIN promotion_products link ON link.promotion_id = pr.id
		 WHERE link.product_id = $1 AND pr.active AND pr.start_date <= $2 AND pr.end_date >= $2
		 ORDER BY pr.id`,
		productID, at,
	)
	if err != nil {
		return nil, fmt.Errorf("select promotions: %w", err)
	}
	defer rows.Close()

	var res []model.Promotion
	for rows.Next() {
		var pr model.Promotion
		if err := rows.Scan(&pr.ID, &pr.Name, &pr.DiscountPercent, &pr.StartDate, &pr.EndDate, &pr.Active, &pr.ProductIDs); err != nil {
			return nil, fmt.Errorf("scan promotion: %w", err)
		}
		res = append(res, pr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

const (
	cartColumns     = `id, customer_id, active, created_at, updated_at`
	maxCartAttempts = 3
)

func scanCart(row pgx.Row) (*model.Cart, error) {
	var c model.Cart
	if err := row.Scan(&c.ID, &c.CustomerID, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (p *pgQueries) GetActiveCart(ctx context.Context, customerID int64) (*model.Cart, error) {
	c, err := scanCart(p.q.QueryRow(ctx,
		`SELECT `+cartColumns+` FROM carts WHERE customer_id = $1 AND active`,
		customerID,
	))
	if err != nil {
		return nil, notFound(err, "active cart of customer %d", customerID)
	}
	return c, nil
}

// LockActiveCart берёт строку корзины FOR UPDATE. Если конкурирующая транзакция деактивировала
// корзину, после её фиксации условие active перепроверяется и строка не возвращается.
func (p *pgQueries) LockActiveCart(ctx context.Context, customerID int64) (*model.Cart, error) {
	c, err := scanCart(p.q.QueryRow(ctx,
		`SELECT `+cartColumns+` FROM carts WHERE customer_id = $1 AND active FOR UPDATE`,
		customerID,
	))
	if err != nil {
		return nil, notFound(err, "active cart of customer %d", customerID)
	}
	return c, nil
}

// GetOrCreateActiveCart опирается на частичный уникальный индекс carts(customer_id) WHERE active:
// при гонке второй вставки не произойдёт, и будет заблокирована уже созданная корзина.
// Если её тем временем оформили, вставка повторяется.
func (p *pgQueries) GetOrCreateActiveCart(ctx context.Context, customerID int64, now time.Time) (*model.Cart, error) {
	for attempt := 0; ; attempt++ {
		c, err := scanCart(p.q.QueryRow(ctx,
			`INSERT INTO carts (customer_id, active, created_at, updated_at)
			 VALUES ($1, TRUE, $2, $2)
			 ON CONFLICT (customer_id) WHERE active DO NOTHING
			 RETURNING `+cartColumns,
			customerID, now,
		))
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("create cart: %w", err)
		}

		c, err = p.LockActiveCart(ctx, customerID)
		if err == nil || !errors.Is(err, ErrNotFound) || attempt >= maxCartAttempts {
			return c, err
		}
	}
}

func (p *pgQueries) TouchCart(ctx context.Context, cartID int64, now time.Time) error {
	return p.execOne(ctx, fmt.Sprintf("cart %d", cartID),
		`UPDATE carts SET updated_at = $2 WHERE id = $1`, cartID, now)
}

func (p *pgQueries) DeactivateCart(ctx context.Context, cartID int64, now time.Time) error {
	return p.execOne(ctx, fmt.Sprintf("cart %d", cartID),
		`UPDATE carts SET active = FALSE, updated_at = $2 WHERE id = $1 AND active`, cartID, now)
}

func (p *pgQueries) execOne(ctx context.Context, what, sql string, args ...any) error {
	cmdTag, err := p.q.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", what, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return nil
}

const cartItemColumns = `id, cart_id, variant_id, product_id, quantity`

func scanCartItem(row pgx.Row) (*model.CartItem, error) {
	var it model.CartItem
	if err := row.Scan(&it.ID, &it.CartID, &it.VariantID, &it.ProductID, &it.Quantity); err != nil {
		return nil, err
	}
	return &it, nil
}

func (p *pgQueries) ListCartItems(ctx context.Context, cartID int64) ([]model.CartItem, error) {
	rows, err := p.q.Query(ctx,
		`SELECT `+cartItemColumns+` FROM cart_items WHERE cart_id = $1 ORDER BY id`,
		cartID,
	)
	if err != nil {
		return nil, fmt.Errorf("select cart items: %w", err)
	}
	defer rows.Close()

	var res []model.CartItem
	for rows.Next() {
		it, err := scanCartItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		res = append(res, *it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

func (p *pgQueries) GetCartItem(ctx context.Context, cartID, variantID int64) (*model.CartItem, error) {
	it, err := scanCartItem(p.q.QueryRow(ctx,
		`SELECT `+cartItemColumns+` FROM cart_items WHERE cart_id = $1 AND variant_id = $2`,
		cartID, variantID,
	))
	if err != nil {
		return nil, notFound(err, "variant %d in cart %d", variantID, cartID)
	}
	return it, nil
}

func (p *pgQueries) AddCartItem(ctx context.Context, item model.CartItem) (*model.CartItem, error) {
	it, err := scanCartItem(p.q.QueryRow(ctx,
		`INSERT INTO cart_items (cart_id, variant_id, product_id, quantity)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (cart_id, variant_id) DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		 RETURNING `+cartItemColumns,
		item.CartID, item.VariantID, item.ProductID, item.Quantity,
	))
	if err != nil {
		return nil, fmt.Errorf("upsert cart item: %w", err)
	}
	return it, nil
}

func (p *pgQueries) SetCartItemQuantity(ctx context.Context, cartID, variantID int64, quantity int) error {
	return p.execOne(ctx, fmt.Sprintf("variant %d in cart %d", variantID, cartID),
		`UPDATE cart_items SET quantity = $3 WHERE cart_id = $1 AND variant_id = $2`,
		cartID, variantID, quantity)
}

func (p *pgQueries) DeleteCartItem(ctx context.Context, cartID, variantID int64) error {
	return p.execOne(ctx, fmt.Sprintf("variant %d in cart %d", variantID, cartID),
		`DELETE FROM cart_items WHERE cart_id = $1 AND variant_id = $2`,
		cartID, variantID)
}

func (p *pgQueries) CreateOrder(ctx context.Context, o *model.Order) (int64, error) {
	var id int64
	err := p.q.QueryRow(ctx,
		`INSERT INTO orders (customer_id, order_date, total_price_cents, shipping_fee_cents,
		                     payment_method, status, delivery_address, tracking_number)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		o.CustomerID, o.OrderDate, toCents(o.TotalPrice), toCents(o.ShippingFee),
		string(o.PaymentMethod), string(o.Status), o.DeliveryAddress, o.TrackingNumber,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create order: %w", err)
	}
	return id, nil
}

func (p *pgQueries) CreateOrderItem(ctx context.Context, item *model.OrderItem) (int64, error) {
	var id int64
	err := p.q.QueryRow(ctx,
		`INSERT INTO order_items (order_id, variant_id, product_id, quantity, unit_price_cents)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		item.OrderID, item.VariantID, item.ProductID, item.Quantity, toCents(item.UnitPrice),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create order item: %w", err)
	}
	return id, nil
}

func (p *pgQueries) AppendStatusHistory(ctx context.Context, h *model.OrderStatusHistory) (int64, error) {
	var id int64
	err := p.q.QueryRow(ctx,
		`INSERT INTO order_status_history (order_id, status, changed_at, notes)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		h.OrderID, string(h.Status), h.ChangedAt, h.Notes,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("append status history: %w", err)
	}
	return id, nil
}

const orderColumns = `id, customer_id, order_date, total_price_cents, shipping_fee_cents,
	payment_method, status, delivery_address, tracking_number`

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o               model.Order
		total, shipping int64
		payment, status string
	)
	err := row.Scan(&o.ID, &o.CustomerID, &o.OrderDate, &total, &shipping,
		&payment, &status, &o.DeliveryAddress, &o.TrackingNumber)
	if err != nil {
		return nil, err
	}
	o.TotalPrice = fromCents(total)
	o.ShippingFee = fromCents(shipping)
	o.PaymentMethod = model.PaymentMethod(payment)
	o.Status = model.OrderStatus(status)
	return &o, nil
}

func (p *pgQueries) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	o, err := scanOrder(p.q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "order %d", id)
	}

	if o.Items, err = p.listOrderItems(ctx, id); err != nil {
		return nil, err
	}
	if o.History, err = p.listStatusHistory(ctx, id); err != nil {
		return nil, err
	}
	return o, nil
}

func (p *pgQueries) listOrderItems(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	rows, err := p.q.Query(ctx,
		`SELECT id, order_id, variant_id, product_id, quantity, unit_price_cents
		 FROM order_items WHERE order_id = $1 ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	var res []model.OrderItem
	for rows.Next() {
		var (
			it    model.OrderItem
			price int64
		)
		if err := rows.Scan(&it.ID, &it.OrderID, &it.VariantID, &it.ProductID, &it.Quantity, &price); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		it.UnitPrice = fromCents(price)
		res = append(res, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

func (p *pgQueries) listStatusHistory(ctx context.Context, orderID int64) ([]model.OrderStatusHistory, error) {
	rows, err := p.q.Query(ctx,
		`SELECT id, order_id, status, changed_at, notes
		 FROM order_status_history WHERE order_id = $1 ORDER BY changed_at, id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("select status history: %w", err)
	}
	defer rows.Close()

	var res []model.OrderStatusHistory
	for rows.Next() {
		var (
			h      model.OrderStatusHistory
			status string
		)
		if err := rows.Scan(&h.ID, &h.OrderID, &status, &h.ChangedAt, &h.Notes); err != nil {
			return nil, fmt.Errorf("scan status history: %w", err)
		}
		h.Status = model.OrderStatus(status)
		res = append(res, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

func (p *pgQueries) LockOrder(ctx context.Context, id int64) (*model.Order, error) {
	o, err := scanOrder(p.q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err, "order %d", id)
	}
	return o, nil
}

func (p *pgQueries) ListOrdersByCustomer(ctx context.Context, customerID int64) ([]model.Order, error) {
	rows, err := p.q.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE customer_id = $1 ORDER BY order_date DESC, id DESC`,
		customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return orders, nil
}

func (p *pgQueries) UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus, trackingNumber string) error {
	return p.execOne(ctx, fmt.Sprintf("order %d", id),
		`UPDATE orders SET status = $2, tracking_number = $3 WHERE id = $1`,
		id, string(status), trackingNumber)
}

func (p *pgQueries) InsertOutboxEvent(ctx context.Context, e OutboxEvent) error {
	_, err := p.q.Exec(ctx,
		`INSERT INTO outbox (event_id, event_type, order_id, payload, created_at) VALUES ($1, $2, $3, $4, $5)`,
		e.EventID, e.Type, e.OrderID, e.Payload, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

// FetchPendingEvents пропускает строки, заблокированные другим экземпляром ретранслятора.
func (p *pgQueries) FetchPendingEvents(ctx context.Context, limit int) ([]OutboxEvent, error) {
	rows, err := p.q.Query(ctx,
		`SELECT id, event_id, event_type, order_id, payload, created_at, sent_at
		 FROM outbox
		 WHERE sent_at IS NULL
		 ORDER BY id
		 LIMIT $1
		 FOR UPDATE SKIP LOCKED`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select outbox: %w", err)
	}
	defer rows.Close()

	var res []OutboxEvent
	for rows.Next() {
		var e OutboxEvent
		if err := rows.Scan(&e.ID, &e.EventID, &e.Type, &e.OrderID, &e.Payload, &e.CreatedAt, &e.SentAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		res = append(res, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

func (p *pgQueries) MarkEventSent(ctx context.Context, id int64, at time.Time) error {
	return p.execOne(ctx, fmt.Sprintf("outbox event %d", id),
		`UPDATE outbox SET sent_at = $2 WHERE id = $1`, id, at)
}
