package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	echoapi "github.com/eminingcampus/campus/apps/api/echo"
	"github.com/eminingcampus/campus/core"
	"github.com/eminingcampus/campus/core/cart"
	"github.com/eminingcampus/campus/core/catalog"
	"github.com/eminingcampus/campus/core/discussion"
	"github.com/eminingcampus/campus/core/learning"
	"github.com/eminingcampus/campus/core/notify"
	"github.com/eminingcampus/campus/core/order"
	"github.com/eminingcampus/campus/core/review"
	"github.com/eminingcampus/campus/core/user"
	cachesvc "github.com/eminingcampus/campus/services/cache"
	docsvc "github.com/eminingcampus/campus/services/document"
	emailsvc "github.com/eminingcampus/campus/services/email"
	eventsvc "github.com/eminingcampus/campus/services/events"
	"github.com/eminingcampus/campus/services/payment/paystack"
	inmemdb "github.com/eminingcampus/campus/storage/database/inmem"
	"github.com/eminingcampus/campus/tests/testutil"
)

const paystackSecret = "sk_test_campus"

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

// paystackFake answers the transaction endpoints like the real gateway,
// settling every initialized transaction for the initialized amount.
type paystackFake struct {
	mu      sync.Mutex
	amounts map[string]int64
	status  string
}

func (p *paystackFake) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	if r.URL.Path == "/transaction/initialize" {
		var body struct {
			Reference string `json:"reference"`
			Amount    int64  `json:"amount"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		p.amounts[body.Reference] = body.Amount
		_, _ = w.Write([]byte(`{"status":true,"message":"Authorization URL created","data":{` +
			`"authorization_url":"https://checkout.paystack.test/` + body.Reference + `","access_code":"ac_1","reference":"` + body.Reference + `"}}`))
		return
	}

	const verifyPrefix = "/transaction/verify/"
	ref := r.URL.Path[len(verifyPrefix):]
	amount, ok := p.amounts[ref]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":false,"message":"Transaction reference not found"}`))
		return
	}
	_, _ = w.Write([]byte(`{"status":true,"message":"Verification successful","data":{"id":1,"status":"` + p.status +
		`","reference":"` + ref + `","amount":` + strconv.FormatInt(amount, 10) + `,"currency":"GHS","channel":"card"}}`))
}

type testApp struct {
	conf    *core.Config
	server  *echoapi.Server
	auth    *echoapi.JWTAuth
	users   user.Repository
	catalog *catalog.Service
	gateway *paystackFake
	email   *emailsvc.ConsoleServiceMock
	events  *eventsvc.MemoryPublisher
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	conf := testutil.NewConfig()
	logger := testutil.NewLogger()
	db := inmemdb.Open()

	templates, err := core.ParseEmailTemplates(conf)
	require.NoError(t, err)
	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)
	catalog.InitValidators(validate, translator)

	app := &testApp{
		conf:    conf,
		auth:    echoapi.NewJWTAuth(conf),
		users:   inmemdb.NewUserRepository(db),
		gateway: &paystackFake{amounts: make(map[string]int64), status: order.TxSuccess},
		email:   emailsvc.NewConsoleServiceMock(templates, conf, logger),
		events:  &eventsvc.MemoryPublisher{},
	}
	srv := httptest.NewServer(app.gateway)
	t.Cleanup(srv.Close)
	conf.Paystack.BaseURL = srv.URL
	conf.Paystack.SecretKey = paystackSecret
	conf.Paystack.Timeout = 5 * time.Second

	notifier := notify.NewDispatcher(app.email, nil, conf, logger)
	usrSvc := user.NewService(app.users, notifier, conf)
	notifier.SetUsers(usrSvc)

	app.catalog = catalog.NewService(inmemdb.NewCatalogRepository(db), nil, logger)
	learnSvc := learning.NewService(inmemdb.NewLearningRepository(db), learning.Deps{
		Catalog:  app.catalog,
		Students: usrSvc,
		Notifier: notifier,
		Events:   app.events,
		Renderer: docsvc.NewCertificateRenderer(conf.AppName),
		Store:    docsvc.NewLocalStore(t.TempDir()),
		Logger:   logger,
		SiteURL:  conf.SiteURL,
	})
	cartSvc := cart.NewService(inmemdb.NewCartRepository(db), app.catalog, learnSvc)
	orderSvc := order.NewService(inmemdb.NewOrderRepository(db), order.Deps{
		Tx:          db,
		Carts:       cartSvc,
		Enroller:    learnSvc,
		Gateway:     paystack.NewClient(conf.Paystack),
		Deduper:     cachesvc.NewMemoryDeduper(time.Hour),
		Notifier:    notifier,
		Events:      app.events,
		Logger:      logger,
		CallbackURL: conf.SiteURL + "/payments/verify",
		Currency:    catalog.DefaultCurrency,
	})

	app.server = echoapi.NewServer(echoapi.ServerDeps{
		Conf:          conf,
		Logger:        logger,
		Validate:      validate,
		Translator:    translator,
		UserSvc:       usrSvc,
		CatalogSvc:    app.catalog,
		LearningSvc:   learnSvc,
		CartSvc:       cartSvc,
		OrderSvc:      orderSvc,
		ReviewSvc:     review.NewService(inmemdb.NewReviewRepository(db), learnSvc),
		DiscussionSvc: discussion.NewService(inmemdb.NewDiscussionRepository(db), app.catalog, learnSvc),
	})
	t.Cleanup(func() { _ = app.server.Shutdown(context.Background()) })
	return app
}

func (app *testApp) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	app.server.ServeHTTP(rec, req)
	return rec
}

func (app *testApp) run(t *testing.T, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			rec := app.do(method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func (app *testApp) getToken(t *testing.T, usr user.User) string {
	token, err := app.auth.GenerateToken(app.auth.GetUserClaims(usr))
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList(): %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()

	wantCode := tt.wantCode
	if wantCode == 0 {
		wantCode = http.StatusOK
	}
	if rec.Code != wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}
