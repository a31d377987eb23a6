package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/eminingcampus/campus/core/cart"
	"github.com/eminingcampus/campus/core/catalog"
	"github.com/eminingcampus/campus/core/order"
)

type cartRepository struct {
	db *DB
}

var _ cart.Repository = (*cartRepository)(nil) // interface compliance check

func NewCartRepository(db *DB) cart.Repository {
	return &cartRepository{db: db}
}

func (repo *cartRepository) GetOrCreateCart(_ context.Context, userID string) (cart.Cart, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if c := repo.findCart(userID); c != nil {
		return *c, nil
	}
	now := time.Now().UTC()
	c := &cart.Cart{ID: repo.db.nextID("carts"), UserID: userID, CreatedAt: now, UpdatedAt: now}
	repo.db.carts[c.ID] = c
	return *c, nil
}

func (repo *cartRepository) ListItems(_ context.Context, cartID int64) ([]cart.Item, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	items := make([]cart.Item, 0)
	for _, id := range sortedKeys(repo.db.cartItems) {
		if item := repo.db.cartItems[id]; item.CartID == cartID {
			items = append(items, *item)
		}
	}
	return items, nil
}

func (repo *cartRepository) AddItem(_ context.Context, item cart.Item) (cart.Item, bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, i := range repo.db.cartItems {
		if i.CartID == item.CartID && i.CourseID == item.CourseID {
			return *i, false, nil
		}
	}
	if _, ok := repo.db.courses[item.CourseID]; !ok {
		return cart.Item{}, false, catalog.ErrCourseNotFound
	}
	item.ID = repo.db.nextID("cart_items")
	repo.db.cartItems[item.ID] = &item
	return item, true, nil
}

func (repo *cartRepository) RemoveItem(_ context.Context, cartID, itemID int64) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	item, ok := repo.db.cartItems[itemID]
	if !ok || item.CartID != cartID {
		return cart.ErrItemNotFound
	}
	delete(repo.db.cartItems, itemID)
	return nil
}

func (repo *cartRepository) ClearCart(_ context.Context, userID string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	c := repo.findCart(userID)
	if c == nil {
		return nil
	}
	for id, item := range repo.db.cartItems {
		if item.CartID == c.ID {
			delete(repo.db.cartItems, id)
		}
	}
	return nil
}

func (repo *cartRepository) findCart(userID string) *cart.Cart {
	for _, c := range repo.db.carts {
		if c.UserID == userID {
			return c
		}
	}
	return nil
}

type orderRepository struct {
	db *DB
}

var _ order.Repository = (*orderRepository)(nil) // interface compliance check

func NewOrderRepository(db *DB) order.Repository {
	return &orderRepository{db: db}
}

func (repo *orderRepository) CreateOrder(_ context.Context, o order.Order) (order.Order, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	o.ID = repo.db.nextID("orders")
	items := o.Items
	o.Items = nil
	repo.db.orders[o.ID] = &o

	for _, item := range items {
		item := item
		item.ID = repo.db.nextID("order_items")
		item.OrderID = o.ID
		repo.db.orderItems[item.ID] = &item
	}
	return repo.withItems(o), nil
}

func (repo *orderRepository) GetOrder(_ context.Context, filter order.GetFilter) (order.Order, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, o := range repo.db.orders {
		if filter.ID != 0 && o.ID != filter.ID {
			continue
		}
		if filter.Number != "" && o.OrderNumber != filter.Number {
			continue
		}
		if filter.UserID != "" && o.UserID != filter.UserID {
			continue
		}
		if filter.ID == 0 && filter.Number == "" {
			continue
		}
		return repo.withItems(*o), nil
	}
	return order.Order{}, order.ErrNotFound
}

func (repo *orderRepository) ListOrders(_ context.Context, userID string) ([]order.Order, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	orders := make([]order.Order, 0)
	for _, id := range sortedKeys(repo.db.orders) {
		if o := repo.db.orders[id]; o.UserID == userID {
			orders = append(orders, repo.withItems(*o))
		}
	}
	sort.SliceStable(orders, func(i, j int) bool { return orders[i].ID > orders[j].ID })
	return orders, nil
}

func (repo *orderRepository) TransitionStatus(_ context.Context, id int64, from []string, to string) (bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	o, ok := repo.db.orders[id]
	if !ok {
		return false, order.ErrNotFound
	}
	if !containsStatus(from, o.Status) {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (repo *orderRepository) CompleteOrder(_ context.Context, id int64, payment order.Payment, at time.Time) (bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	o, ok := repo.db.orders[id]
	if !ok {
		return false, order.ErrNotFound
	}
	if !containsStatus(order.FulfillableStatuses, o.Status) {
		return false, nil
	}
	o.Status = order.StatusCompleted
	o.PaymentReference = payment.Reference
	o.PaymentMethod = payment.Method
	o.CompletedAt = null.TimeFrom(at)
	o.UpdatedAt = at
	return true, nil
}

func (repo *orderRepository) FailStaleOrders(_ context.Context, before time.Time) ([]string, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	numbers := make([]string, 0)
	now := time.Now().UTC()
	for _, id := range sortedKeys(repo.db.orders) {
		o := repo.db.orders[id]
		if o.Status == order.StatusProcessing && o.UpdatedAt.Before(before) {
			o.Status = order.StatusFailed
			o.UpdatedAt = now
			numbers = append(numbers, o.OrderNumber)
		}
	}
	return numbers, nil
}

// withItems attaches the order items; the lock must be held.
func (repo *orderRepository) withItems(o order.Order) order.Order {
	o.Items = make([]order.Item, 0)
	for _, id := range sortedKeys(repo.db.orderItems) {
		item := *repo.db.orderItems[id]
		if item.OrderID != o.ID {
			continue
		}
		if course, ok := repo.db.courses[item.CourseID]; ok {
			item.CourseTitle = course.Title
		}
		o.Items = append(o.Items, item)
	}
	return o
}

func containsStatus(statuses []string, status string) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
