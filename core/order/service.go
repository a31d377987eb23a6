package order

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/eminingcampus/campus/core"
	"github.com/eminingcampus/campus/core/cart"
	"github.com/eminingcampus/campus/core/learning"
	"github.com/eminingcampus/campus/core/user"
)

const gatewayName = "paystack"

var (
	// errors
	ErrNotFound          = core.NewNotFoundError("order not found")
	ErrEmptyCart         = errors.New("your cart is empty")
	ErrInvalidSignature  = core.NewPermissionError("invalid webhook signature")
	ErrReferenceMismatch = errors.New("payment reference does not match the order number")
	ErrNotRefundable     = errors.New("only completed orders can be refunded")
)

type (
	Repository interface {
		// CreateOrder stores the order along with its items.
		CreateOrder(ctx context.Context, o Order) (Order, error)
		GetOrder(ctx context.Context, filter GetFilter) (Order, error)
		// ListOrders returns the user's orders, newest first.
		ListOrders(ctx context.Context, userID string) ([]Order, error)
		// TransitionStatus sets the status to `to` if the current one is in `from`.
		// It returns false when no row matched.
		TransitionStatus(ctx context.Context, id int64, from []string, to string) (bool, error)
		// CompleteOrder marks a fulfillable order completed. It returns false when the order
		// was not in a FulfillableStatuses status.
		CompleteOrder(ctx context.Context, id int64, payment Payment, at time.Time) (bool, error)
		// FailStaleOrders fails the processing orders last updated before `before`
		// and returns their numbers.
		FailStaleOrders(ctx context.Context, before time.Time) ([]string, error)
	}

	Carts interface {
		Get(ctx context.Context, userID string) (cart.View, error)
		Clear(ctx context.Context, userID string) error
	}

	Enroller interface {
		Enroll(ctx context.Context, studentID string, courseID int64) (learning.Enrollment, bool, error)
	}

	// Notifier is fire-and-forget: it handles its own failures.
	Notifier interface {
		EnrollmentConfirmation(ctx context.Context, o Order)
	}

	Deps struct {
		Tx          core.Transactor
		Carts       Carts
		Enroller    Enroller
		Gateway     Gateway
		Ledger      Ledger  // optional
		Deduper     Deduper // optional
		Notifier    Notifier
		Events      core.EventPublisher
		Logger      core.Logger
		CallbackURL string
		Currency    string
	}

	Service struct {
		repo Repository
		deps Deps
		now  func() time.Time
	}
)

func NewService(repo Repository, deps Deps) *Service {
	return &Service{repo: repo, deps: deps, now: time.Now}
}

func (svc *Service) ListForUser(ctx context.Context, userID string) ([]Order, error) {
	return svc.repo.ListOrders(ctx, userID)
}

func (svc *Service) GetForUser(ctx context.Context, userID, number string) (Order, error) {
	return svc.repo.GetOrder(ctx, GetFilter{Number: number, UserID: userID})
}

// Checkout turns the user's cart into a pending order and initializes its payment.
func (svc *Service) Checkout(ctx context.Context, usr user.User) (CheckoutResult, error) {
	view, err := svc.deps.Carts.Get(ctx, usr.ID)
	if err != nil {
		return CheckoutResult{}, errors.Wrap(err, "getting cart")
	}
	if view.IsEmpty() {
		return CheckoutResult{}, core.NewValidationError(ErrEmptyCart, core.FieldError{Field: "cart", Error: ErrEmptyCart.Error()})
	}

	now := svc.now().UTC()
	o := Order{
		OrderNumber: NewOrderNumber(now),
		UserID:      usr.ID,
		TotalAmount: view.Total,
		Currency:    svc.deps.Currency,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		Items:       make([]Item, 0, len(view.Items)),
	}
	for _, item := range view.Items {
		o.Items = append(o.Items, Item{CourseID: item.CourseID, Price: item.Course.Price, CourseTitle: item.Course.Title})
	}
	if o, err = svc.repo.CreateOrder(ctx, o); err != nil {
		return CheckoutResult{}, errors.Wrap(err, "creating order")
	}

	if _, err = svc.repo.TransitionStatus(ctx, o.ID, StatusesFrom(StatusProcessing), StatusProcessing); err != nil {
		return CheckoutResult{}, errors.Wrap(err, "updating order status")
	}
	o.Status = StatusProcessing

	resp, err := svc.deps.Gateway.Initialize(ctx, InitializeRequest{
		Email:       usr.Email,
		Amount:      o.AmountMinor(),
		Reference:   o.OrderNumber,
		CallbackURL: svc.deps.CallbackURL,
		Currency:    o.Currency,
		Metadata:    map[string]interface{}{"order_id": o.ID, "user_id": usr.ID},
	})
	svc.record(ctx, LedgerEntry{OrderNumber: o.OrderNumber, Kind: "initialize", Status: ledgerStatus(err), Payload: resp})
	if err != nil {
		if o, ferr := svc.fail(ctx, o); ferr != nil {
			svc.deps.Logger.Error("failing order "+o.OrderNumber, ferr)
		}
		return CheckoutResult{}, core.NewExternalError(gatewayName, err)
	}

	return CheckoutResult{Order: o, AuthorizationURL: resp.AuthorizationURL, AccessCode: resp.AccessCode}, nil
}

// VerifyPayment confirms the payment of the user's order with the gateway and fulfills it.
// A declined or mismatched payment fails the order and returns a core.PaymentError.
func (svc *Service) VerifyPayment(ctx context.Context, userID, reference string) (Order, error) {
	o, err := svc.repo.GetOrder(ctx, GetFilter{Number: core.CleanString(reference), UserID: userID})
	if err != nil {
		return Order{}, err
	}
	if o.Status == StatusCompleted || o.Status == StatusRefunded {
		return o, nil
	}

	tx, err := svc.deps.Gateway.Verify(ctx, o.OrderNumber)
	svc.record(ctx, LedgerEntry{OrderNumber: o.OrderNumber, Kind: "verify", Status: tx.Status, Payload: tx})
	if err != nil {
		if _, ferr := svc.fail(ctx, o); ferr != nil {
			svc.deps.Logger.Error("failing order "+o.OrderNumber, ferr)
		}
		return Order{}, core.NewExternalError(gatewayName, err)
	}

	if reason := svc.mismatch(o, tx.Status, tx.Amount, tx.Currency); reason != "" {
		if _, ferr := svc.fail(ctx, o); ferr != nil {
			svc.deps.Logger.Error("failing order "+o.OrderNumber, ferr)
		}
		return Order{}, core.NewPaymentError(reason)
	}
	return svc.Fulfill(ctx, o, Payment{Reference: tx.Reference, Method: tx.Channel})
}

// HandleWebhook fulfills the order of a signed `charge.success` event. Other events,
// unknown references and repeated deliveries are ignored.
func (svc *Service) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if !svc.deps.Gateway.VerifySignature(body, signature) {
		return ErrInvalidSignature
	}

	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "body", Error: "invalid webhook payload"})
	}
	svc.record(ctx, LedgerEntry{OrderNumber: event.Data.Reference, Kind: "webhook", Status: event.Event, Payload: json.RawMessage(body)})
	if event.Event != EventChargeSuccess {
		return nil
	}

	key := "webhook:" + event.Event + ":" + event.Data.Reference + ":" + strconv.FormatInt(event.Data.ID, 10)
	if svc.deps.Deduper != nil {
		first, err := svc.deps.Deduper.FirstSeen(ctx, key)
		if err != nil {
			svc.deps.Logger.Warn("webhook dedupe unavailable", err)
		} else if !first {
			return nil
		}
	}

	err := svc.handleChargeSuccess(ctx, event)
	if err != nil && svc.deps.Deduper != nil {
		if ferr := svc.deps.Deduper.Forget(ctx, key); ferr != nil {
			svc.deps.Logger.Warn("forgetting webhook delivery", ferr)
		}
	}
	return err
}

func (svc *Service) handleChargeSuccess(ctx context.Context, event WebhookEvent) error {
	o, err := svc.repo.GetOrder(ctx, GetFilter{Number: event.Data.Reference})
	if err != nil {
		if core.IsNotFound(err) {
			svc.deps.Logger.Warn("webhook for unknown order", map[string]interface{}{"reference": event.Data.Reference})
			return nil
		}
		return errors.Wrap(err, "getting order")
	}
	if o.Status == StatusCompleted || o.Status == StatusRefunded {
		return nil
	}

	status := event.Data.Status
	if status == "" {
		status = TxSuccess
	}
	if reason := svc.mismatch(o, status, event.Data.Amount, event.Data.Currency); reason != "" {
		svc.deps.Logger.Warn("webhook payment rejected", map[string]interface{}{"reference": o.OrderNumber, "reason": reason})
		_, err = svc.fail(ctx, o)
		return err
	}
	_, err = svc.Fulfill(ctx, o, Payment{Reference: event.Data.Reference, Method: event.Data.Channel})
	return err
}

// Refund moves a completed order to refunded.
func (svc *Service) Refund(ctx context.Context, reference string) (Order, error) {
	o, err := svc.repo.GetOrder(ctx, GetFilter{Number: core.CleanString(reference)})
	if err != nil {
		return Order{}, err
	}
	ok, err := svc.repo.TransitionStatus(ctx, o.ID, StatusesFrom(StatusRefunded), StatusRefunded)
	if err != nil {
		return Order{}, errors.Wrap(err, "refunding order")
	}
	if !ok {
		return Order{}, core.NewValidationError(ErrNotRefundable, core.FieldError{Field: "status", Error: ErrNotRefundable.Error()})
	}
	return svc.repo.GetOrder(ctx, GetFilter{ID: o.ID})
}

// ExpireStale fails the orders stuck in processing for longer than olderThan.
func (svc *Service) ExpireStale(ctx context.Context, olderThan time.Duration) ([]string, error) {
	numbers, err := svc.repo.FailStaleOrders(ctx, svc.now().UTC().Add(-olderThan))
	if err != nil {
		return nil, errors.Wrap(err, "failing stale orders")
	}
	events := make([]core.Event, 0, len(numbers))
	for _, number := range numbers {
		events = append(events, core.NewEvent(core.TopicOrderFailed, number, map[string]string{"order_number": number, "reason": "expired"}))
	}
	if len(events) > 0 {
		svc.deps.Events.Publish(ctx, events...)
	}
	return numbers, nil
}

// mismatch returns why a gateway payment cannot settle the order, or "".
func (svc *Service) mismatch(o Order, status string, amount int64, currency string) string {
	switch {
	case status != TxSuccess:
		return "payment not successful: " + status
	case amount != o.AmountMinor():
		return "amount mismatch: paid " + strconv.FormatInt(amount, 10) + ", expected " + strconv.FormatInt(o.AmountMinor(), 10)
	case currency != "" && currency != o.Currency:
		return "currency mismatch: paid in " + currency + ", expected " + o.Currency
	}
	return ""
}

func (svc *Service) fail(ctx context.Context, o Order) (Order, error) {
	ok, err := svc.repo.TransitionStatus(ctx, o.ID, []string{StatusPending, StatusProcessing}, StatusFailed)
	if err != nil {
		return o, errors.Wrap(err, "failing order")
	}
	if ok {
		o.Status = StatusFailed
		svc.deps.Events.Publish(ctx, core.NewEvent(core.TopicOrderFailed, o.OrderNumber, o))
	}
	return o, nil
}

func (svc *Service) record(ctx context.Context, entry LedgerEntry) {
	if svc.deps.Ledger == nil {
		return
	}
	if err := svc.deps.Ledger.Record(ctx, entry); err != nil {
		svc.deps.Logger.Error("recording payment ledger entry", errors.Wrap(err, entry.Kind))
	}
}

func ledgerStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
