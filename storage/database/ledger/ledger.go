// Package ledger keeps the payment gateway audit trail in its own gorm-managed store.
package ledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/eminingcampus/campus/core"
	"github.com/eminingcampus/campus/core/order"
)

// Entry is a single gateway exchange.
type Entry struct {
	ID          uint           `gorm:"primaryKey"`
	OrderNumber string         `gorm:"size:64;index"`
	Kind        string         `gorm:"size:32;not null"`
	Status      string         `gorm:"size:64"`
	Payload     datatypes.JSON `gorm:"type:json"`
	CreatedAt   time.Time      `gorm:"index"`
}

func (Entry) TableName() string { return "payment_ledger_entries" }

type Store struct {
	db *gorm.DB
}

var _ order.Ledger = (*Store)(nil) // interface compliance check

// Open connects to the ledger database (`postgres` or `sqlite` driver) and migrates it.
func Open(conf core.LedgerConfig) (*Store, error) {
	var dialector gorm.Dialector
	switch conf.Driver {
	case "postgres":
		dialector = postgres.Open(conf.DSN)
	case "sqlite", "":
		dsn := conf.DSN
		if dsn == "" {
			dsn = "file::memory:?cache=shared"
		}
		dialector = sqlite.Open(dsn)
	default:
		return nil, errors.Errorf("unsupported ledger driver %q", conf.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, errors.Wrap(err, "opening ledger")
	}
	return New(db)
}

func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, errors.Wrap(err, "migrating ledger")
	}
	return &Store{db: db}, nil
}

func (s *Store) Record(ctx context.Context, entry order.LedgerEntry) error {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return errors.Wrap(err, "encoding ledger payload")
	}
	row := Entry{
		OrderNumber: entry.OrderNumber,
		Kind:        entry.Kind,
		Status:      entry.Status,
		Payload:     datatypes.JSON(payload),
		CreatedAt:   time.Now().UTC(),
	}
	return errors.Wrap(s.db.WithContext(ctx).Create(&row).Error, "recording ledger entry")
}

// Entries returns the exchanges of an order, oldest first.
func (s *Store) Entries(ctx context.Context, orderNumber string) ([]Entry, error) {
	var entries []Entry
	err := s.db.WithContext(ctx).Where("order_number = ?", orderNumber).Order("id").Find(&entries).Error
	return entries, errors.Wrap(err, "listing ledger entries")
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
