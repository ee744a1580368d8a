package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kusina-pos/api/internal/config"
	"github.com/kusina-pos/api/internal/database"
	"github.com/kusina-pos/api/internal/discount"
	"github.com/kusina-pos/api/internal/enum"
	"github.com/kusina-pos/api/internal/logger"
	"github.com/kusina-pos/api/internal/model"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	// CLI flags
	email := flag.String("email", "", "Admin email address")
	password := flag.String("password", "", "Admin password")
	name := flag.String("name", "", "Admin full name")
	paymentPassword := flag.String("payment-password", "", "Cash confirmation password")
	withDiscounts := flag.Bool("discounts", true, "Seed sample discount codes")
	flag.Parse()

	cfg := config.Load()
	log := logger.New(cfg.LogLevel, "text")

	// Fall back to environment variables, then defaults
	*email = fallback(*email, os.Getenv("SEED_EMAIL"), "admin@kusina.local")
	*name = fallback(*name, os.Getenv("SEED_NAME"), "Kusina Admin")
	*password = fallback(*password, os.Getenv("SEED_PASSWORD"), "")
	if *password == "" {
		*password = "password123"
		log.Warn("using default password 'password123'; change it immediately in production")
	}
	*paymentPassword = fallback(*paymentPassword, os.Getenv("SEED_PAYMENT_PASSWORD"), "")

	ctx := context.Background()

	if err := database.Migrate(cfg.DatabaseURL); err != nil {
		log.WithError(err).Fatal("apply migrations")
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("unable to connect to database")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.WithError(err).Fatal("unable to ping database")
	}
	log.Info("connected to database")

	store := database.NewPgStore(pool)

	// Seed in one transaction: everything or nothing
	err = store.ExecTx(ctx, func(tx database.Store) error {
		if err := seedAdmin(ctx, tx, log, *email, *password, *name); err != nil {
			return err
		}
		if *withDiscounts {
			if err := seedDiscounts(ctx, tx, log); err != nil {
				return err
			}
		}
		if *paymentPassword != "" {
			if err := seedPaymentPassword(ctx, tx, *paymentPassword); err != nil {
				return err
			}
			log.Info("cash confirmation password set")
		}
		return nil
	})
	if err != nil {
		log.WithError(err).Fatal("seed failed")
	}
	log.Info("seed completed successfully")
}

func fallback(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// seedAdmin creates the admin user if it doesn't exist.
func seedAdmin(ctx context.Context, tx database.Store, log logrus.FieldLogger, email, password, fullName string) error {
	existing, err := tx.GetUserByEmail(ctx, email)
	if err == nil {
		log.WithField("user_id", existing.ID).Infof("user %s already exists, skipping", email)
		return nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("check user: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	u, err := tx.CreateUser(ctx, model.User{
		Email:          email,
		FullName:       fullName,
		HashedPassword: string(hashed),
		Role:           enum.UserRoleAdmin,
		Active:         true,
	})
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	log.WithField("user_id", u.ID).Infof("created admin user %s", email)
	return nil
}

// seedDiscounts upserts the sample codes used by the ordering client.
func seedDiscounts(ctx context.Context, tx database.Store, log logrus.FieldLogger) error {
	samples := []discount.Discount{
		{
			Code:        "SAVE10",
			Name:        "10% off",
			Type:        enum.DiscountTypePercentage,
			Value:       decimal.NewFromInt(10),
			MinOrder:    decimal.NewFromInt(200),
			MaxDiscount: decimal.NewNullDecimal(decimal.NewFromInt(100)),
			Active:      true,
		},
		{
			Code:     "FLAT100",
			Name:     "₱100 off",
			Type:     enum.DiscountTypeFixed,
			Value:    decimal.NewFromInt(100),
			MinOrder: decimal.NewFromInt(500),
			Active:   true,
		},
	}
	for _, d := range samples {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("discount %s: %w", d.Code, err)
		}
		if err := tx.UpsertDiscount(ctx, d); err != nil {
			return fmt.Errorf("upsert discount %s: %w", d.Code, err)
		}
		log.Infof("discount %s ready", d.Code)
	}
	return nil
}

func seedPaymentPassword(ctx context.Context, tx database.Store, password string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash payment password: %w", err)
	}
	if err := tx.PutSetting(ctx, enum.SettingPaymentPassword, string(hashed)); err != nil {
		return fmt.Errorf("store payment password: %w", err)
	}
	return nil
}
