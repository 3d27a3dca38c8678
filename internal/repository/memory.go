package repository

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/mmeshcher/pharmacy-storefront/internal/model"
)

// MemoryRepository хранит данные в памяти процесса. Транзакции выполняются строго по очереди
// над копией состояния, которая заменяет исходное только при успешном завершении.
type MemoryRepository struct {
	mu    sync.Mutex
	state *memState
}

// NewMemoryRepository создаёт пустое in-memory хранилище.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{state: newMemState()}
}

// InTx выполняет fn в транзакции. Ошибка fn отменяет все изменения.
func (r *MemoryRepository) InTx(ctx context.Context, fn func(q Queries) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	work := r.state.clone()
	if err := fn(&memQueries{st: work}); err != nil {
		return err
	}
	r.state = work
	return nil
}

// Close ничего не делает и нужен для совместимости с PostgresRepository.
func (r *MemoryRepository) Close() error {
	return nil
}

type memState struct {
	nextID     int64
	customers  map[int64]model.Customer
	products   map[int64]model.Product
	variants   map[int64]model.ProductVariant
	promotions map[int64]model.Promotion
	carts      map[int64]model.Cart
	cartItems  map[int64]model.CartItem
	orders     map[int64]model.Order
	orderItems map[int64]model.OrderItem
	history    map[int64]model.OrderStatusHistory
	outbox     map[int64]OutboxEvent
}

func newMemState() *memState {
	return &memState{
		customers:  map[int64]model.Customer{},
		products:   map[int64]model.Product{},
		variants:   map[int64]model.ProductVariant{},
		promotions: map[int64]model.Promotion{},
		carts:      map[int64]model.Cart{},
		cartItems:  map[int64]model.CartItem{},
		orders:     map[int64]model.Order{},
		orderItems: map[int64]model.OrderItem{},
		history:    map[int64]model.OrderStatusHistory{},
		outbox:     map[int64]OutboxEvent{},
	}
}

// clone копирует карты. Значения копируются целиком; срезы внутри них после записи не меняются.
func (s *memState) clone() *memState {
	return &memState{
		nextID:     s.nextID,
		customers:  maps.Clone(s.customers),
		products:   maps.Clone(s.products),
		variants:   maps.Clone(s.variants),
		promotions: maps.Clone(s.promotions),
		carts:      maps.Clone(s.carts),
		cartItems:  maps.Clone(s.cartItems),
		orders:     maps.Clone(s.orders),
		orderItems: maps.Clone(s.orderItems),
		history:    maps.Clone(s.history),
		outbox:     maps.Clone(s.outbox),
	}
}

func (s *memState) newID() int64 {
	s.nextID++
	return s.nextID
}

type memQueries struct {
	st *memState
}

func sortedValues[V any](m map[int64]V, keep func(V) bool) []V {
	keys := slices.Sorted(maps.Keys(m))
	res := make([]V, 0, len(keys))
	for _, k := range keys {
		if keep(m[k]) {
			res = append(res, m[k])
		}
	}
	return res
}

func (q *memQueries) CreateCustomer(_ context.Context, c *model.Customer) (int64, error) {
	for _, existing := range q.st.customers {
		if existing.Login == c.Login {
			return 0, fmt.Errorf("%w: %s", ErrCustomerExists, c.Login)
		}
	}
	stored := *c
	stored.ID = q.st.newID()
	q.st.customers[stored.ID] = stored
	return stored.ID, nil
}

func (q *memQueries) GetCustomerByLogin(_ context.Context, login string) (*model.Customer, error) {
	for _, c := range q.st.customers {
		if c.Login == login {
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%w: customer %s", ErrNotFound, login)
}

func (q *memQueries) CreateProduct(_ context.Context, p *model.Product) (int64, error) {
	for _, existing := range q.st.products {
		if existing.Slug == p.Slug {
			return 0, fmt.Errorf("%w: %s", ErrProductExists, p.Slug)
		}
	}
	stored := *p
	stored.ID = q.st.newID()
	q.st.products[stored.ID] = stored
	return stored.ID, nil
}

func (q *memQueries) GetProduct(_ context.Context, id int64) (*model.Product, error) {
	p, ok := q.st.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: product %d", ErrNotFound, id)
	}
	return &p, nil
}

func (q *memQueries) GetProductBySlug(_ context.Context, slug string) (*model.Product, error) {
	found := sortedValues(q.st.products, func(p model.Product) bool { return p.Slug == slug })
	if len(found) > 0 {
		return &found[0], nil
	}
	return nil, fmt.Errorf("%w: product %s", ErrNotFound, slug)
}

func (q *memQueries) CreateVariant(_ context.Context, v *model.ProductVariant) (int64, error) {
	if _, ok := q.st.products[v.ProductID]; !ok {
		return 0, fmt.Errorf("%w: product %d", ErrNotFound, v.ProductID)
	}
	stored := *v
	stored.ID = q.st.newID()
	q.st.variants[stored.ID] = stored
	return stored.ID, nil
}

func (q *memQueries) GetVariant(_ context.Context, id int64) (*model.ProductVariant, error) {
	v, ok := q.st.variants[id]
	if !ok {
		return nil, fmt.Errorf("%w: variant %d", ErrNotFound, id)
	}
	return &v, nil
}

func (q *memQueries) LockVariants(_ context.Context, ids []int64) (map[int64]model.ProductVariant, error) {
	res := make(map[int64]model.ProductVariant, len(ids))
	for _, id := range ids {
		if v, ok := q.st.variants[id]; ok {
			res[id] = v
		}
	}
	return res, nil
}

func (q *memQueries) DecrementStock(_ context.Context, variantID int64, quantity int) error {
	v, ok := q.st.variants[variantID]
	if !ok {
		return fmt.Errorf("%w: variant %d", ErrNotFound, variantID)
	}
	if v.Stock < quantity {
		return fmt.Errorf("%w: variant %d", ErrStockConflict, variantID)
	}
	v.Stock -= quantity
	q.st.variants[variantID] = v
	return nil
}

func (q *memQueries) CreatePromotion(_ context.Context, p *model.Promotion) (int64, error) {
	stored := *p
	stored.ID = q.st.newID()
	stored.ProductIDs = slices.Clone(p.ProductIDs)
	q.st.promotions[stored.ID] = stored
	return stored.ID, nil
}

func (q *memQueries) FindActivePromotions(_ context.Context, productID int64, at time.Time) ([]model.Promotion, error) {
	return sortedValues(q.st.promotions, func(p model.Promotion) bool {
		return p.InEffect(productID, at)
	}), nil
}

func (q *memQueries) GetActiveCart(_ context.Context, customerID int64) (*model.Cart, error) {
	for _, c := range q.st.carts {
		if c.CustomerID == customerID && c.Active {
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%w: active cart of customer %d", ErrNotFound, customerID)
}

// LockActiveCart не отличается от GetActiveCart: транзакции хранилища и так выполняются по одной.
func (q *memQueries) LockActiveCart(ctx context.Context, customerID int64) (*model.Cart, error) {
	return q.GetActiveCart(ctx, customerID)
}

func (q *memQueries) GetOrCreateActiveCart(ctx context.Context, customerID int64, now time.Time) (*model.Cart, error) {
	if c, err := q.GetActiveCart(ctx, customerID); err == nil {
		return c, nil
	}
	c := model.Cart{
		ID:         q.st.newID(),
		CustomerID: customerID,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	q.st.carts[c.ID] = c
	return &c, nil
}

func (q *memQueries) TouchCart(_ context.Context, cartID int64, now time.Time) error {
	c, ok := q.st.carts[cartID]
	if !ok {
		return fmt.Errorf("%w: cart %d", ErrNotFound, cartID)
	}
	c.UpdatedAt = now
	q.st.carts[cartID] = c
	return nil
}

func (q *memQueries) DeactivateCart(_ context.Context, cartID int64, now time.Time) error {
	c, ok := q.st.carts[cartID]
	if !ok || !c.Active {
		return fmt.Errorf("%w: active cart %d", ErrNotFound, cartID)
	}
	c.Active = false
	c.UpdatedAt = now
	q.st.carts[cartID] = c
	return nil
}

func (q *memQueries) ListCartItems(_ context.Context, cartID int64) ([]model.CartItem, error) {
	return sortedValues(q.st.cartItems, func(it model.CartItem) bool {
		return it.CartID == cartID
	}), nil
}

func (q *memQueries) findCartItem(cartID, variantID int64) (model.CartItem, bool) {
	for _, it := range q.st.cartItems {
		if it.CartID == cartID && it.VariantID == variantID {
			return it, true
		}
	}
	return model.CartItem{}, false
}

func (q *memQueries) GetCartItem(_ context.Context, cartID, variantID int64) (*model.CartItem, error) {
	it, ok := q.findCartItem(cartID, variantID)
	if !ok {
		return nil, fmt.Errorf("%w: variant %d in cart %d", ErrNotFound, variantID, cartID)
	}
	return &it, nil
}

func (q *memQueries) AddCartItem(_ context.Context, item model.CartItem) (*model.CartItem, error) {
	if _, ok := q.st.carts[item.CartID]; !ok {
		return nil, fmt.Errorf("%w: cart %d", ErrNotFound, item.CartID)
	}
	if existing, ok := q.findCartItem(item.CartID, item.VariantID); ok {
		existing.Quantity += item.Quantity
		q.st.cartItems[existing.ID] = existing
		return &existing, nil
	}
	item.ID = q.st.newID()
	q.st.cartItems[item.ID] = item
	return &item, nil
}

func (q *memQueries) SetCartItemQuantity(_ context.Context, cartID, variantID int64, quantity int) error {
	it, ok := q.findCartItem(cartID, variantID)
	if !ok {
		return fmt.Errorf("%w: variant %d in cart %d", ErrNotFound, variantID, cartID)
	}
	it.Quantity = quantity
	q.st.cartItems[it.ID] = it
	return nil
}

func (q *memQueries) DeleteCartItem(_ context.Context, cartID, variantID int64) error {
	it, ok := q.findCartItem(cartID, variantID)
	if !ok {
		return fmt.Errorf("%w: variant %d in cart %d", ErrNotFound, variantID, cartID)
	}
	delete(q.st.cartItems, it.ID)
	return nil
}

func (q *memQueries) CreateOrder(_ context.Context, o *model.Order) (int64, error) {
	stored := *o
	stored.ID = q.st.newID()
	stored.Items = nil
	stored.History = nil
	q.st.orders[stored.ID] = stored
	return stored.ID, nil
}

func (q *memQueries) CreateOrderItem(_ context.Context, item *model.OrderItem) (int64, error) {
	if _, ok := q.st.orders[item.OrderID]; !ok {
		return 0, fmt.Errorf("%w: order %d", ErrNotFound, item.OrderID)
	}
	stored := *item
	stored.ID = q.st.newID()
	q.st.orderItems[stored.ID] = stored
	return stored.ID, nil
}

func (q *memQueries) AppendStatusHistory(_ context.Context, h *model.OrderStatusHistory) (int64, error) {
	if _, ok := q.st.orders[h.OrderID]; !ok {
		return 0, fmt.Errorf("%w: order %d", ErrNotFound, h.OrderID)
	}
	stored := *h
	stored.ID = q.st.newID()
	q.st.history[stored.ID] = stored
	return stored.ID, nil
}

func (q *memQueries) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	o, err := q.LockOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Items = sortedValues(q.st.orderItems, func(it model.OrderItem) bool {
		return it.OrderID == id
	})
	o.History = sortedValues(q.st.history, func(h model.OrderStatusHistory) bool {
		return h.OrderID == id
	})
	return o, nil
}

func (q *memQueries) LockOrder(_ context.Context, id int64) (*model.Order, error) {
	o, ok := q.st.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %d", ErrNotFound, id)
	}
	return &o, nil
}

func (q *memQueries) ListOrdersByCustomer(_ context.Context, customerID int64) ([]model.Order, error) {
	orders := sortedValues(q.st.orders, func(o model.Order) bool {
		return o.CustomerID == customerID
	})
	slices.SortStableFunc(orders, func(a, b model.Order) int {
		if c := b.OrderDate.Compare(a.OrderDate); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return orders, nil
}

func (q *memQueries) UpdateOrderStatus(_ context.Context, id int64, status model.OrderStatus, trackingNumber string) error {
	o, ok := q.st.orders[id]
	if !ok {
		return fmt.Errorf("%w: order %d", ErrNotFound, id)
	}
	o.Status = status
	o.TrackingNumber = trackingNumber
	q.st.orders[id] = o
	return nil
}

func (q *memQueries) InsertOutboxEvent(_ context.Context, e OutboxEvent) error {
	e.ID = q.st.newID()
	e.SentAt = nil
	q.st.outbox[e.ID] = e
	return nil
}

func (q *memQueries) FetchPendingEvents(_ context.Context, limit int) ([]OutboxEvent, error) {
	pending := sortedValues(q.st.outbox, func(e OutboxEvent) bool {
		return e.SentAt == nil
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (q *memQueries) MarkEventSent(_ context.Context, id int64, at time.Time) error {
	e, ok := q.st.outbox[id]
	if !ok {
		return fmt.Errorf("%w: outbox event %d", ErrNotFound, id)
	}
	sentAt := at
	e.SentAt = &sentAt
	q.st.outbox[id] = e
	return nil
}
