package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/eminingcampus/campus/core"
	"github.com/eminingcampus/campus/core/cart"
	"github.com/eminingcampus/campus/core/catalog"
	"github.com/eminingcampus/campus/core/discussion"
	"github.com/eminingcampus/campus/core/learning"
	"github.com/eminingcampus/campus/core/order"
	"github.com/eminingcampus/campus/core/review"
	"github.com/eminingcampus/campus/core/user"
)

type (
	ServerDeps struct {
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator

		UserSvc       *user.Service
		CatalogSvc    *catalog.Service
		LearningSvc   *learning.Service
		CartSvc       *cart.Service
		OrderSvc      *order.Service
		ReviewSvc     *review.Service
		DiscussionSvc *discussion.Service
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		auth     *JWTAuth
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ http.Handler = (*Server)(nil)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		auth:     NewJWTAuth(deps.Conf),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORS())

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.SignalShutdown)
	s.app.Debug = conf.Debug && !conf.TestMode

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1")
	jwt := s.auth.middleware()
	admin := adminMiddleware()

	registerUserAPI(v1, jwt, admin, s.auth, s.deps)
	registerCatalogAPI(v1, jwt, admin, s.deps)
	registerLearningAPI(v1, jwt, s.deps)
	registerCommerceAPI(v1, jwt, s.deps)
	registerCommunityAPI(v1, jwt, admin, s.deps)
}

// Start listens on conf.Server.Host. Listening errors are sent to Errors().
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

// SignalShutdown asks the app to shut down gracefully.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}
