// Package app assembles repositories, the availability ledger, notifiers and services from
// configuration. Both the API server and the cron runner start from here.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"homestay-booking/internal/config"
	"homestay-booking/internal/logger"
	"homestay-booking/internal/notify"
	"homestay-booking/internal/repository"
	"homestay-booking/internal/repository/firestore"
	"homestay-booking/internal/repository/memory"
	"homestay-booking/internal/repository/postgres"
	"homestay-booking/internal/service"

	_ "github.com/lib/pq"
)

// Repositories is the persistence surface the services need.
type Repositories struct {
	Cells    repository.CellRepository
	Bookings repository.BookingRepository
	Payments repository.PaymentRepository
	Promos   repository.PromoRepository
	Catalog  repository.CatalogRepository
}

type App struct {
	Config       *config.Config
	Repositories Repositories
	Ledger       service.AvailabilityLedger
	Bookings     service.BookingService
	Payments     service.PaymentService
	Promos       service.PromoService
	Catalog      service.CatalogService

	queue   *notify.Queue
	closers []func() error
}

// New connects every backend named in cfg and builds the services on top of them.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}
	if err := a.openStore(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openLedger(ctx); err != nil {
		a.Close()
		return nil, err
	}
	publisher, err := a.buildPublisher(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	repos := a.Repositories
	a.Ledger = service.NewAvailabilityLedger(repos.Cells, service.LedgerOptions{
		MaxCells: cfg.Booking.MaxCellsPerReservation,
		Attempts: cfg.Booking.ReserveAttempts,
	})
	a.Promos = service.NewPromoService(repos.Promos, repos.Bookings)
	a.Catalog = service.NewCatalogService(repos.Catalog)
	a.Bookings = service.NewBookingService(repos.Bookings, repos.Payments, repos.Catalog, a.Ledger, a.Promos, publisher,
		service.BookingOptions{
			HoldDuration:       cfg.Booking.HoldDuration,
			HorizonDays:        cfg.Booking.HorizonDays,
			MaxNights:          cfg.Booking.MaxNights,
			TransitionAttempts: cfg.Booking.TransitionAttempts,
			DownPaymentPercent: cfg.Payment.DownPaymentPercent,
		})
	a.Payments = service.NewPaymentService(repos.Payments, repos.Bookings, a.Bookings, publisher,
		service.PaymentOptions{Attempts: cfg.Booking.TransitionAttempts})
	return a, nil
}

func (a *App) openStore() error {
	cfg := a.Config
	switch cfg.Database.Driver {
	case "memory":
		logger.Warn("Using in-memory store; data is lost on restart")
		store := memory.NewStore()
		a.Repositories = Repositories{store.CellRepository, store.BookingRepository, store.PaymentRepository, store.PromoRepository, store.CatalogRepository}
		return nil
	case "postgres":
		logger.Debug("Connecting to database...", "connection_string", fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database))
		db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if err := db.Ping(); err != nil {
			return fmt.Errorf("failed to ping database: %w", err)
		}
		logger.Info("Database connection established", "host", cfg.Database.Host, "database", cfg.Database.Database)
		store := postgres.NewStore(db)
		a.Repositories = Repositories{store.CellRepository, store.BookingRepository, store.PaymentRepository, store.PromoRepository, store.CatalogRepository}
		return nil
	}
	return fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
}

// openLedger swaps the cell store when the ledger lives outside the main database.
// Config validation guarantees any other backend equals the database driver.
func (a *App) openLedger(ctx context.Context) error {
	cfg := a.Config
	if cfg.Ledger.Backend != "firestore" {
		return nil
	}
	client, err := firestore.NewClient(ctx, cfg.Firestore.ProjectID, cfg.Firestore.CredentialsFile)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, client.Close)
	a.Repositories.Cells = firestore.NewCellRepository(client, cfg.Firestore.CellCollection)
	logger.Info("Availability ledger on Firestore", "project", cfg.Firestore.ProjectID, "collection", cfg.Firestore.CellCollection)
	return nil
}

// buildPublisher fans events out to every enabled channel behind an asynchronous queue.
func (a *App) buildPublisher(ctx context.Context) (notify.Publisher, error) {
	cfg := a.Config
	fanout := notify.Fanout{notify.LogPublisher{}}

	if cfg.Firebase.Enabled {
		client, err := notify.NewMessagingClient(ctx, cfg.Firebase.CredentialsFile)
		if err != nil {
			return nil, err
		}
		fanout = append(fanout, notify.NewFCMPublisher(client, cfg.Firebase.StaffTopic))
		logger.Info("Push notifications enabled", "staff_topic", cfg.Firebase.StaffTopic)
	}
	if cfg.SendGrid.Enabled {
		fanout = append(fanout, notify.NewSendGridPublisher(notify.NewSendGridClient(cfg.SendGrid.APIKey), notify.SendGridConfig{
			FromEmail:   cfg.SendGrid.FromEmail,
			FromName:    cfg.SendGrid.FromName,
			TemplateID:  cfg.SendGrid.TemplateID,
			StaffEmails: cfg.SendGrid.StaffEmails,
		}))
		logger.Info("Staff e-mail enabled", "recipients", len(cfg.SendGrid.StaffEmails))
	}

	a.queue = notify.NewQueue(fanout, notify.QueueOptions{
		Workers:    cfg.Notify.Workers,
		Size:       cfg.Notify.QueueSize,
		MaxRetries: cfg.Notify.MaxRetries,
		Backoff:    200 * time.Millisecond,
	})
	return a.queue, nil
}

// Close drains pending notifications and releases connections.
func (a *App) Close() {
	if a.queue != nil {
		a.queue.Close()
		if n := a.queue.Dropped(); n > 0 {
			logger.Warn("Notifications dropped while running", "count", n)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("Failed to close resource", "error", err)
		}
	}
}
