package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/eminingcampus/campus/core"
	"github.com/eminingcampus/campus/core/cart"
	"github.com/eminingcampus/campus/core/catalog"
	"github.com/eminingcampus/campus/core/order"
)

type cartRepository struct {
	db core.DBExecutor
}

var _ cart.Repository = (*cartRepository)(nil) // interface compliance check

func NewCartRepository(db core.DBExecutor) cart.Repository {
	return &cartRepository{db: db}
}

func (repo *cartRepository) GetOrCreateCart(ctx context.Context, userID string) (cart.Cart, error) {
	q := `INSERT INTO carts (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING *`
	var c cart.Cart
	err := executor(ctx, repo.db).GetContext(ctx, &c, q, userID)
	return c, errors.Wrap(err, "getting cart")
}

func (repo *cartRepository) ListItems(ctx context.Context, cartID int64) ([]cart.Item, error) {
	items := make([]cart.Item, 0)
	err := executor(ctx, repo.db).SelectContext(ctx, &items, `SELECT * FROM cart_items WHERE cart_id = $1 ORDER BY id`, cartID)
	return items, errors.Wrap(err, "listing cart items")
}

func (repo *cartRepository) AddItem(ctx context.Context, item cart.Item) (cart.Item, bool, error) {
	q := `INSERT INTO cart_items (cart_id, course_id, added_at) VALUES ($1, $2, $3)
		ON CONFLICT (cart_id, course_id) DO NOTHING
		RETURNING *`
	var stored cart.Item
	err := executor(ctx, repo.db).GetContext(ctx, &stored, q, item.CartID, item.CourseID, item.AddedAt)
	switch {
	case err == nil:
		return stored, true, nil
	case isViolation(err, foreignKeyViolation):
		return cart.Item{}, false, catalog.ErrCourseNotFound
	case errors.Cause(err) != sql.ErrNoRows:
		return cart.Item{}, false, errors.Wrap(err, "inserting cart item")
	}

	q = `SELECT * FROM cart_items WHERE cart_id = $1 AND course_id = $2`
	err = executor(ctx, repo.db).GetContext(ctx, &stored, q, item.CartID, item.CourseID)
	return stored, false, errors.Wrap(err, "getting cart item")
}

func (repo *cartRepository) RemoveItem(ctx context.Context, cartID, itemID int64) error {
	q := `DELETE FROM cart_items WHERE id = $1 AND cart_id = $2`
	n, err := rowsAffected(executor(ctx, repo.db).ExecContext(ctx, q, itemID, cartID))
	if err != nil {
		return errors.Wrap(err, "deleting cart item")
	}
	if n == 0 {
		return cart.ErrItemNotFound
	}
	return nil
}

func (repo *cartRepository) ClearCart(ctx context.Context, userID string) error {
	q := `DELETE FROM cart_items WHERE cart_id IN (SELECT id FROM carts WHERE user_id = $1)`
	_, err := executor(ctx, repo.db).ExecContext(ctx, q, userID)
	return errors.Wrap(err, "clearing cart")
}

type orderRepository struct {
	db core.DB
	tx *Transactor
}

var _ order.Repository = (*orderRepository)(nil) // interface compliance check

func NewOrderRepository(db core.DB) order.Repository {
	return &orderRepository{db: db, tx: NewTransactor(db)}
}

func (repo *orderRepository) CreateOrder(ctx context.Context, o order.Order) (order.Order, error) {
	err := repo.tx.RunInTx(ctx, func(ctx context.Context) error {
		exec := executor(ctx, repo.db)
		q := `INSERT INTO orders (order_number, user_id, total_amount, currency, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`
		err := exec.GetContext(ctx, &o.ID, q, o.OrderNumber, o.UserID, o.TotalAmount, o.Currency, o.Status, o.CreatedAt, o.UpdatedAt)
		if err != nil {
			return errors.Wrap(err, "inserting order")
		}

		q = `INSERT INTO order_items (order_id, course_id, price) VALUES ($1, $2, $3) RETURNING id`
		for i := range o.Items {
			o.Items[i].OrderID = o.ID
			if err = exec.GetContext(ctx, &o.Items[i].ID, q, o.ID, o.Items[i].CourseID, o.Items[i].Price); err != nil {
				if isViolation(err, foreignKeyViolation) {
					return catalog.ErrCourseNotFound
				}
				return errors.Wrap(err, "inserting order item")
			}
		}
		return nil
	})
	if err != nil {
		return order.Order{}, err
	}
	return repo.GetOrder(ctx, order.GetFilter{ID: o.ID})
}

func (repo *orderRepository) GetOrder(ctx context.Context, filter order.GetFilter) (order.Order, error) {
	var conds conditions
	if filter.ID != 0 {
		conds.add("id = ?", filter.ID)
	}
	if filter.Number != "" {
		conds.add("order_number = ?", filter.Number)
	}
	if len(conds.clauses) == 0 {
		return order.Order{}, order.ErrNotFound
	}
	if filter.UserID != "" {
		conds.add("user_id = ?", filter.UserID)
	}

	var o order.Order
	if err := executor(ctx, repo.db).GetContext(ctx, &o, rebind("SELECT * FROM orders"+conds.where()), conds.args...); err != nil {
		return order.Order{}, trapNoRows(err, order.ErrNotFound, "getting order")
	}
	orders, err := repo.withItems(ctx, []order.Order{o})
	if err != nil {
		return order.Order{}, err
	}
	return orders[0], nil
}

func (repo *orderRepository) ListOrders(ctx context.Context, userID string) ([]order.Order, error) {
	orders := make([]order.Order, 0)
	q := `SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC`
	if err := executor(ctx, repo.db).SelectContext(ctx, &orders, q, userID); err != nil {
		return nil, errors.Wrap(err, "listing orders")
	}
	return repo.withItems(ctx, orders)
}

func (repo *orderRepository) TransitionStatus(ctx context.Context, id int64, from []string, to string) (bool, error) {
	q := `UPDATE orders SET status = $3, updated_at = NOW() WHERE id = $1 AND status = ANY($2)`
	n, err := rowsAffected(executor(ctx, repo.db).ExecContext(ctx, q, id, pq.Array(from), to))
	if err != nil {
		return false, errors.Wrap(err, "updating order status")
	}
	return n > 0, nil
}

func (repo *orderRepository) CompleteOrder(ctx context.Context, id int64, payment order.Payment, at time.Time) (bool, error) {
	q := `UPDATE orders
		SET status = $2, payment_reference = $3, payment_method = $4, completed_at = $5, updated_at = $5
		WHERE id = $1 AND status = ANY($6)`
	n, err := rowsAffected(executor(ctx, repo.db).ExecContext(ctx, q,
		id, order.StatusCompleted, payment.Reference, payment.Method, at, pq.Array(order.FulfillableStatuses)))
	if err != nil {
		return false, errors.Wrap(err, "completing order")
	}
	return n > 0, nil
}

func (repo *orderRepository) FailStaleOrders(ctx context.Context, before time.Time) ([]string, error) {
	numbers := make([]string, 0)
	q := `UPDATE orders SET status = $1, updated_at = NOW()
		WHERE status = $2 AND updated_at < $3
		RETURNING order_number`
	err := executor(ctx, repo.db).SelectContext(ctx, &numbers, q, order.StatusFailed, order.StatusProcessing, before)
	return numbers, errors.Wrap(err, "failing stale orders")
}

func (repo *orderRepository) withItems(ctx context.Context, orders []order.Order) ([]order.Order, error) {
	if len(orders) == 0 {
		return orders, nil
	}
	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}

	var items []order.Item
	q := `SELECT oi.*, c.title AS course_title
		FROM order_items oi
		JOIN courses c ON c.id = oi.course_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.id`
	if err := executor(ctx, repo.db).SelectContext(ctx, &items, q, pq.Array(ids)); err != nil {
		return nil, errors.Wrap(err, "listing order items")
	}

	byOrder := make(map[int64][]order.Item, len(orders))
	for _, item := range items {
		byOrder[item.OrderID] = append(byOrder[item.OrderID], item)
	}
	for i := range orders {
		orders[i].Items = byOrder[orders[i].ID]
		if orders[i].Items == nil {
			orders[i].Items = []order.Item{}
		}
	}
	return orders, nil
}
