package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/futsal-booking/internal/config"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/database"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/holiday"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/notify"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/payment"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/repository"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/service"
)

func newLogger(cfg *config.Config) *slog.Logger {
	if cfg.Production() {
		return slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// app is the wired booking engine shared by the serve and sweep commands.
type app struct {
	pool    *pgxpool.Pool
	svc     *service.BookingService
	closers []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.pool.Close()
	return errors.Join(errs...)
}

func buildApp(ctx context.Context, cfg *config.Config, log *slog.Logger, migrate bool) (*app, error) {
	pool, err := database.NewPool(ctx, cfg.DB, log)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	a := &app{pool: pool}

	if migrate {
		applied, err := database.Migrate(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		for _, name := range applied {
			log.Info("migration applied", "name", name)
		}
	}

	static, err := holiday.NewStatic(cfg.Holidays)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("HOLIDAYS: %w", err)
	}
	holidays := holiday.Chain{static}
	if cfg.HolidayAPIURL != "" {
		holidays = append(holidays, holiday.NewCalendar(cfg.HolidayAPIURL, cfg.HolidayCacheTTL))
	}

	gateway, currency, err := newGateway(cfg)
	if err != nil {
		pool.Close()
		return nil, err
	}

	notifiers := notify.Multi{notify.Log{Logger: log}}
	if cfg.RabbitURL != "" {
		pub, err := notify.DialAMQP(cfg.RabbitURL, cfg.NotifyExchange)
		if err != nil {
			// Notifications are best effort; run without the broker.
			log.Warn("rabbitmq unavailable, notifications go to the log only", "err", err)
		} else {
			notifiers = append(notifiers, pub)
			a.closers = append(a.closers, pub.Close)
		}
	}

	a.svc = service.NewBookingService(
		repository.NewBookingRepository(pool),
		repository.NewVenueRepository(pool),
		holidays,
		gateway,
		notify.NewDispatcher(notifiers, log, cfg.NotifyTimeout),
		log,
		service.Options{
			Location:       cfg.Location(),
			PaymentWindow:  cfg.PaymentWindow,
			MaxPending:     cfg.MaxPendingPerUser,
			MaxBulkDays:    cfg.MaxBulkDays,
			PaymentTimeout: cfg.PaymentTimeout,
			Currency:       currency,
			ReturnURL:      cfg.PaymentReturnURL,
		},
	)
	return a, nil
}

func newGateway(cfg *config.Config) (payment.Gateway, string, error) {
	switch cfg.PaymentProvider {
	case "omise":
		g, err := payment.NewOmise(cfg.OmisePublicKey, cfg.OmiseSecretKey, cfg.OmiseCurrency, cfg.OmiseSourceType)
		if err != nil {
			return nil, "", err
		}
		return g, strings.ToUpper(cfg.OmiseCurrency), nil
	default:
		return payment.NewKhalti(cfg.KhaltiBaseURL, cfg.KhaltiSecretKey, cfg.PaymentReturnURL), "NPR", nil
	}
}
