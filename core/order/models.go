package order

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
)

// Statuses
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusRefunded   = "refunded"
)

var (
	AllStatuses = []string{StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusRefunded}

	// FulfillableStatuses are the statuses an order may be completed from.
	FulfillableStatuses = []string{StatusPending, StatusProcessing, StatusFailed}

	transitions = map[string][]string{
		StatusPending:    {StatusProcessing, StatusCompleted, StatusFailed},
		StatusProcessing: {StatusCompleted, StatusFailed},
		StatusFailed:     {StatusCompleted},
		StatusCompleted:  {StatusRefunded},
	}
)

// CanTransition tells whether an order may go from one status to the other.
func CanTransition(from, to string) bool {
	for _, status := range transitions[from] {
		if status == to {
			return true
		}
	}
	return false
}

// StatusesFrom lists the statuses that may transition to `to`.
func StatusesFrom(to string) []string {
	var from []string
	for _, status := range AllStatuses {
		if CanTransition(status, to) {
			from = append(from, status)
		}
	}
	return from
}

type Order struct {
	ID               int64           `json:"id" db:"id"`
	OrderNumber      string          `json:"order_number" db:"order_number"`
	UserID           string          `json:"user_id" db:"user_id"`
	TotalAmount      decimal.Decimal `json:"total_amount" db:"total_amount"`
	Currency         string          `json:"currency" db:"currency"`
	Status           string          `json:"status" db:"status"`
	PaymentReference string          `json:"payment_reference" db:"payment_reference"`
	PaymentMethod    string          `json:"payment_method" db:"payment_method"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"` // UTC
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"` // UTC
	CompletedAt      null.Time       `json:"completed_at" db:"completed_at"`
	Items            []Item          `json:"items" db:"-"`
}

// AmountMinor is the order total in minor currency units (pesewas).
func (o Order) AmountMinor() int64 {
	return o.TotalAmount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func (o Order) IsCompleted() bool { return o.Status == StatusCompleted }

type Item struct {
	ID          int64           `json:"id" db:"id"`
	OrderID     int64           `json:"order_id" db:"order_id"`
	CourseID    int64           `json:"course_id" db:"course_id"`
	Price       decimal.Decimal `json:"price" db:"price"`
	CourseTitle string          `json:"course_title" db:"course_title"` // joined
}

// GetFilter selects a single Order. Zero fields are ignored.
type GetFilter struct {
	ID     int64
	Number string
	UserID string
}

// Payment identifies the confirmed gateway payment of an order.
type Payment struct {
	Reference string
	Method    string
}

type CheckoutResult struct {
	Order            Order  `json:"order"`
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
}

// NewOrderNumber generates a number like ORD-20240615103000-9F3A01BC.
func NewOrderNumber(at time.Time) string {
	token := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:8]
	return "ORD-" + at.UTC().Format("20060102150405") + "-" + token
}
