package order_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eminingcampus/campus/core"
	"github.com/eminingcampus/campus/core/cart"
	"github.com/eminingcampus/campus/core/catalog"
	"github.com/eminingcampus/campus/core/learning"
	"github.com/eminingcampus/campus/core/order"
	"github.com/eminingcampus/campus/core/user"
	cachesvc "github.com/eminingcampus/campus/services/cache"
	eventsvc "github.com/eminingcampus/campus/services/events"
	inmemdb "github.com/eminingcampus/campus/storage/database/inmem"
	"github.com/eminingcampus/campus/tests/testutil"
)

const goodSignature = "signed"

type gatewayMock struct {
	initErr error
	verify  func(reference string) (order.Transaction, error)
	inits   []order.InitializeRequest
}

func (g *gatewayMock) Initialize(_ context.Context, req order.InitializeRequest) (order.InitializeResponse, error) {
	g.inits = append(g.inits, req)
	if g.initErr != nil {
		return order.InitializeResponse{}, g.initErr
	}
	return order.InitializeResponse{
		AuthorizationURL: "https://checkout.paystack.test/" + req.Reference,
		AccessCode:       "access_" + req.Reference,
		Reference:        req.Reference,
	}, nil
}

func (g *gatewayMock) Verify(_ context.Context, reference string) (order.Transaction, error) {
	return g.verify(reference)
}

func (g *gatewayMock) VerifySignature(_ []byte, signature string) bool {
	return signature == goodSignature
}

type notifierMock struct {
	mu     sync.Mutex
	orders []order.Order
}

func (n *notifierMock) EnrollmentConfirmation(_ context.Context, o order.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.orders = append(n.orders, o)
}

type ledgerMock struct {
	mu      sync.Mutex
	entries []order.LedgerEntry
}

func (l *ledgerMock) Record(_ context.Context, entry order.LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

// flakyEnroller fails to enroll in failCourse.
type flakyEnroller struct {
	*learning.Service
	failCourse int64
}

func (e *flakyEnroller) Enroll(ctx context.Context, studentID string, courseID int64) (learning.Enrollment, bool, error) {
	if courseID == e.failCourse {
		return learning.Enrollment{}, false, errors.New("enrollments unavailable")
	}
	return e.Service.Enroll(ctx, studentID, courseID)
}

type fixture struct {
	svc      *order.Service
	enroller *flakyEnroller
	carts    *cart.Service
	learning *learning.Service
	catalog  *catalog.Service
	gateway  *gatewayMock
	notifier *notifierMock
	ledger   *ledgerMock
	events   *eventsvc.MemoryPublisher
	buyer    user.User
	courses  []catalog.Course
}

func setup(t *testing.T) *fixture {
	ctx := context.Background()
	db := inmemdb.Open()
	logger := testutil.NewLogger()
	f := &fixture{
		catalog:  catalog.NewService(inmemdb.NewCatalogRepository(db), nil, logger),
		gateway:  &gatewayMock{},
		notifier: &notifierMock{},
		ledger:   &ledgerMock{},
		events:   &eventsvc.MemoryPublisher{},
	}
	f.learning = learning.NewService(inmemdb.NewLearningRepository(db), learning.Deps{
		Catalog: f.catalog,
		Events:  f.events,
		Logger:  logger,
	})
	f.enroller = &flakyEnroller{Service: f.learning}
	f.carts = cart.NewService(inmemdb.NewCartRepository(db), f.catalog, f.learning)
	f.svc = order.NewService(inmemdb.NewOrderRepository(db), order.Deps{
		Tx:          db,
		Carts:       f.carts,
		Enroller:    f.enroller,
		Gateway:     f.gateway,
		Ledger:      f.ledger,
		Deduper:     cachesvc.NewMemoryDeduper(time.Hour),
		Notifier:    f.notifier,
		Events:      f.events,
		Logger:      logger,
		CallbackURL: "http://campus.test/payments/verify",
		Currency:    "GHS",
	})
	f.gateway.verify = func(reference string) (order.Transaction, error) {
		return order.Transaction{Status: order.TxSuccess, Reference: reference, Channel: "mobile_money", Amount: 30000, Currency: "GHS"}, nil
	}

	f.buyer = testutil.CreateUser(t, inmemdb.NewUserRepository(db), "Esi", "esiboat", "esi@test.gh", "", []string{user.RoleStudent}, true)
	inst, err := f.catalog.CreateInstructor(ctx, catalog.NewInstructor{FullName: "Yaw Owusu"})
	require.NoError(t, err)
	for _, c := range []struct {
		slug  string
		price int64
	}{{"mine-safety", 100}, {"ore-processing", 200}} {
		course, err := f.catalog.CreateCourse(ctx, catalog.NewCourse{
			Title:        c.slug,
			Slug:         c.slug,
			InstructorID: inst.ID,
			Level:        catalog.LevelIntermediate,
			Price:        decimal.NewFromInt(c.price),
		})
		require.NoError(t, err)
		f.courses = append(f.courses, course)
	}
	return f
}

func (f *fixture) fillCart(t *testing.T) {
	for _, course := range f.courses {
		_, added, err := f.carts.AddCourse(context.Background(), f.buyer.ID, course.ID)
		require.NoError(t, err)
		require.True(t, added)
	}
}

func (f *fixture) checkout(t *testing.T) order.Order {
	f.fillCart(t)
	res, err := f.svc.Checkout(context.Background(), f.buyer)
	require.NoError(t, err)
	return res.Order
}

func (f *fixture) assertFulfilled(t *testing.T, o order.Order) {
	ctx := context.Background()
	assert.Equal(t, order.StatusCompleted, o.Status)
	assert.True(t, o.CompletedAt.Valid)
	for _, course := range f.courses {
		enrolled, err := f.learning.IsEnrolled(ctx, f.buyer.ID, course.ID)
		require.NoError(t, err)
		assert.True(t, enrolled, course.Slug)
	}
	view, err := f.carts.Get(ctx, f.buyer.ID)
	require.NoError(t, err)
	assert.True(t, view.IsEmpty())
	assert.Len(t, f.notifier.orders, 1)
}

func TestCheckout(t *testing.T) {
	f := setup(t)
	f.fillCart(t)

	res, err := f.svc.Checkout(context.Background(), f.buyer)
	require.NoError(t, err)
	o := res.Order
	assert.Regexp(t, `^ORD-\d{14}-[0-9A-F]{8}$`, o.OrderNumber)
	assert.Equal(t, order.StatusProcessing, o.Status)
	assert.True(t, decimal.NewFromInt(300).Equal(o.TotalAmount))
	assert.Len(t, o.Items, 2)
	assert.Equal(t, "https://checkout.paystack.test/"+o.OrderNumber, res.AuthorizationURL)

	require.Len(t, f.gateway.inits, 1)
	assert.Equal(t, int64(30000), f.gateway.inits[0].Amount)
	assert.Equal(t, o.OrderNumber, f.gateway.inits[0].Reference)
	assert.Equal(t, "esi@test.gh", f.gateway.inits[0].Email)
	assert.Equal(t, "initialize", f.ledger.entries[0].Kind)
}

func TestCheckout_EmptyCart(t *testing.T) {
	f := setup(t)
	_, err := f.svc.Checkout(context.Background(), f.buyer)
	_, ok := errors.Cause(err).(*core.ValidationError)
	assert.True(t, ok, "got %v", err)
	assert.Empty(t, f.gateway.inits)
}

func TestCheckout_GatewayFailure(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.gateway.initErr = errors.New("connection refused")
	f.fillCart(t)

	_, err := f.svc.Checkout(ctx, f.buyer)
	_, ok := errors.Cause(err).(*core.ExternalError)
	require.True(t, ok, "got %v", err)

	orders, err := f.svc.ListForUser(ctx, f.buyer.ID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, order.StatusFailed, orders[0].Status)

	view, err := f.carts.Get(ctx, f.buyer.ID)
	require.NoError(t, err)
	assert.Len(t, view.Items, 2, "the cart is kept")
}

func TestVerifyPayment(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	pending := f.checkout(t)

	o, err := f.svc.VerifyPayment(ctx, f.buyer.ID, pending.OrderNumber)
	require.NoError(t, err)
	f.assertFulfilled(t, o)
	assert.Equal(t, pending.OrderNumber, o.PaymentReference)
	assert.Equal(t, "mobile_money", o.PaymentMethod)
	assert.Equal(t, []string{
		core.TopicOrderCompleted, core.TopicEnrollmentCreated, core.TopicEnrollmentCreated,
	}, f.events.Topics())

	// verifying again is a no-op
	o, err = f.svc.VerifyPayment(ctx, f.buyer.ID, pending.OrderNumber)
	require.NoError(t, err)
	f.assertFulfilled(t, o)

	// another user's order is not found
	_, err = f.svc.VerifyPayment(ctx, "someone-else", pending.OrderNumber)
	assert.Equal(t, order.ErrNotFound, err)
}

func TestVerifyPayment_Declined(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	pending := f.checkout(t)
	f.gateway.verify = func(reference string) (order.Transaction, error) {
		return order.Transaction{Status: order.TxSuccess, Reference: reference, Amount: 100, Currency: "GHS"}, nil
	}

	_, err := f.svc.VerifyPayment(ctx, f.buyer.ID, pending.OrderNumber)
	payErr, ok := errors.Cause(err).(*core.PaymentError)
	require.True(t, ok, "got %v", err)
	assert.Contains(t, payErr.Reason, "amount mismatch")

	o, err := f.svc.GetForUser(ctx, f.buyer.ID, pending.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, order.StatusFailed, o.Status)
	assert.Empty(t, f.notifier.orders)
}

func TestFulfill_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	pending := f.checkout(t)
	payment := order.Payment{Reference: pending.OrderNumber, Method: "card"}

	o, err := f.svc.Fulfill(ctx, pending, payment)
	require.NoError(t, err)
	f.assertFulfilled(t, o)

	// a stale copy of the order does not fulfill it twice
	o, err = f.svc.Fulfill(ctx, pending, payment)
	require.NoError(t, err)
	f.assertFulfilled(t, o)

	_, err = f.svc.Fulfill(ctx, pending, order.Payment{Reference: "ORD-OTHER"})
	assert.Error(t, err)
}

func TestFulfill_RollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	pending := f.checkout(t)
	payment := order.Payment{Reference: pending.OrderNumber, Method: "card"}
	f.enroller.failCourse = f.courses[1].ID

	_, err := f.svc.Fulfill(ctx, pending, payment)
	require.Error(t, err)

	o, err := f.svc.GetForUser(ctx, f.buyer.ID, pending.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, pending.Status, o.Status)
	assert.False(t, o.CompletedAt.Valid)
	enrolled, err := f.learning.IsEnrolled(ctx, f.buyer.ID, f.courses[0].ID)
	require.NoError(t, err)
	assert.False(t, enrolled, "partial enrollments are rolled back")
	view, err := f.carts.Get(ctx, f.buyer.ID)
	require.NoError(t, err)
	assert.Len(t, view.Items, 2)
	assert.Empty(t, f.notifier.orders)

	// the order can still be fulfilled once enrollments work again
	f.enroller.failCourse = 0
	o, err = f.svc.Fulfill(ctx, o, payment)
	require.NoError(t, err)
	f.assertFulfilled(t, o)
}

func TestFulfill_Concurrent(t *testing.T) {
	f := setup(t)
	pending := f.checkout(t)
	payment := order.Payment{Reference: pending.OrderNumber, Method: "card"}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Fulfill(context.Background(), pending, payment)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	o, err := f.svc.GetForUser(context.Background(), f.buyer.ID, pending.OrderNumber)
	require.NoError(t, err)
	f.assertFulfilled(t, o)
}

func TestHandleWebhook(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	pending := f.checkout(t)

	body, err := json.Marshal(map[string]interface{}{
		"event": order.EventChargeSuccess,
		"data": map[string]interface{}{
			"id":        42,
			"reference": pending.OrderNumber,
			"status":    order.TxSuccess,
			"channel":   "card",
			"amount":    30000,
			"currency":  "GHS",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, order.ErrInvalidSignature, f.svc.HandleWebhook(ctx, body, "forged"))
	assert.Empty(t, f.notifier.orders)

	for i := 0; i < 2; i++ {
		require.NoError(t, f.svc.HandleWebhook(ctx, body, goodSignature))
	}
	o, err := f.svc.GetForUser(ctx, f.buyer.ID, pending.OrderNumber)
	require.NoError(t, err)
	f.assertFulfilled(t, o)

	// other events and unknown orders are acknowledged
	require.NoError(t, f.svc.HandleWebhook(ctx, []byte(`{"event":"transfer.success","data":{"reference":"x"}}`), goodSignature))
	require.NoError(t, f.svc.HandleWebhook(ctx, []byte(`{"event":"charge.success","data":{"id":1,"reference":"ORD-UNKNOWN"}}`), goodSignature))
}

func TestRefund(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	pending := f.checkout(t)

	_, err := f.svc.Refund(ctx, pending.OrderNumber)
	_, ok := errors.Cause(err).(*core.ValidationError)
	assert.True(t, ok, "only completed orders are refundable; got %v", err)

	_, err = f.svc.VerifyPayment(ctx, f.buyer.ID, pending.OrderNumber)
	require.NoError(t, err)

	o, err := f.svc.Refund(ctx, pending.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, order.StatusRefunded, o.Status)

	enrolled, err := f.learning.IsEnrolled(ctx, f.buyer.ID, f.courses[0].ID)
	require.NoError(t, err)
	assert.True(t, enrolled, "refunds keep the enrollments")
}

func TestExpireStale(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	pending := f.checkout(t)

	numbers, err := f.svc.ExpireStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, numbers)

	time.Sleep(10 * time.Millisecond)
	numbers, err = f.svc.ExpireStale(ctx, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []string{pending.OrderNumber}, numbers)
	assert.Contains(t, f.events.Topics(), core.TopicOrderFailed)

	o, err := f.svc.GetForUser(ctx, f.buyer.ID, pending.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, order.StatusFailed, o.Status)

	// a late payment still fulfills the failed order
	o, err = f.svc.VerifyPayment(ctx, f.buyer.ID, pending.OrderNumber)
	require.NoError(t, err)
	f.assertFulfilled(t, o)
}
