// Package testutil holds the helpers shared by the test suites.
package testutil

import (
	"context"
	"io"
	"log"
	"os"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/eminingcampus/campus/core"
	"github.com/eminingcampus/campus/core/catalog"
	"github.com/eminingcampus/campus/core/user"
	logsvc "github.com/eminingcampus/campus/services/logger"
	"github.com/eminingcampus/campus/storage/database"
)

// NewConfig returns the TEST configuration.
func NewConfig() *core.Config {
	_ = os.Setenv("ENV", "TEST")
	conf := core.NewConfig()
	conf.TestMode = true
	conf.Debug = true
	return conf
}

// NewLogger returns a logger that discards everything.
func NewLogger() core.Logger {
	std := log.New(io.Discard, "TEST : ", log.LstdFlags)
	return logsvc.NewRollbarLogger(std, &core.Config{Env: "TEST", TestMode: true})
}

// NewValidator returns a validator with all the app validators registered.
func NewValidator() *validator.Validate {
	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)
	catalog.InitValidators(validate, translator)
	return validate
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	if roles == nil {
		roles = []string{}
	}
	usr := user.User{
		ID:        uuid.New().String(),
		Name:      name,
		Username:  uname,
		Email:     email,
		Profile:   user.Profile{Country: user.DefaultCountry},
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd == "" {
		pwd = "unusable"
	}
	if err := usr.SetPassword(pwd); err != nil {
		t.Fatalf("CreateUser(): %v", err)
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser(): %v", err)
	}
	return usr
}

// OpenDB connects to and migrates the database at TEST_DATABASE_URL,
// skipping the test when it is not set.
func OpenDB(t *testing.T) *sqlx.DB {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}
	db, err := database.Connect("postgres", url)
	if err != nil {
		t.Fatalf("OpenDB(): %v", err)
	}
	if err = database.Migrate(db.DB); err != nil {
		t.Fatalf("OpenDB(): %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ResetDB(t, db)
	return db
}

// ResetDB empties every app table.
func ResetDB(t *testing.T, db *sqlx.DB) {
	t.Helper()

	q := `TRUNCATE users, categories, instructors, courses, sections, lessons, enrollments, lesson_progress,
		certificates, carts, cart_items, orders, order_items, reviews, discussions, discussion_replies
		RESTART IDENTITY CASCADE`
	if _, err := db.Exec(q); err != nil {
		t.Fatalf("ResetDB(): %v", err)
	}
}
