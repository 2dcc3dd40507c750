// Command createsuperuser bootstraps the role catalogue and the superuser
// account named by AUTHSVC_SUPERUSER_EMAIL. Running it again is a no-op.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/authsvc/pkg/accounts"
	"github.com/platinummonkey/authsvc/pkg/auth"
	"github.com/platinummonkey/authsvc/pkg/config"
	"github.com/platinummonkey/authsvc/pkg/observability"
	"github.com/platinummonkey/authsvc/pkg/rbac"
	"github.com/platinummonkey/authsvc/pkg/storage/postgres"
)

const defaultSuperuserName = "superuser"

func main() {
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	timeout := flag.Duration("timeout", time.Minute, "Overall time limit")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("Invalid log level %q: %v", *logLevel, err)
	}
	log.SetLevel(level)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.ValidateSuperuser(); err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conns, err := postgres.NewConnectionManager(
		postgres.ConnectionConfigFrom(cfg.Storage),
		observability.NewLogger(observability.ParseLogLevel(*logLevel), os.Stderr),
	)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conns.Close()

	created, err := createSuperuser(ctx, conns, cfg.Superuser, cfg.Auth.BcryptCost)
	if err != nil {
		log.WithError(err).Fatal("Failed to create superuser")
	}

	entry := log.WithField("email", cfg.Superuser.Email)
	if created {
		entry.Info("Successfully created superuser")
	} else {
		entry.Info("Superuser already exists")
	}
}

// createSuperuser applies migrations, seeds the role catalogue and inserts the
// account when no user holds its email. It reports whether a user was created.
func createSuperuser(ctx context.Context, conns *postgres.ConnectionManager, su config.SuperuserConfig, cost int) (bool, error) {
	db := conns.Primary()
	if err := rbac.RunMigrations(ctx, db); err != nil {
		return false, err
	}
	if err := postgres.RunMigrations(ctx, db); err != nil {
		return false, err
	}
	if err := rbac.NewStore(db).EnsureCatalogue(ctx); err != nil {
		return false, err
	}

	hash, err := auth.HashPasswordCost(su.Password, cost)
	if err != nil {
		return false, err
	}

	username := su.Username
	if username == "" {
		username = defaultSuperuserName
	}

	created := false
	err = postgres.NewStore(conns).InTx(ctx, func(ctx context.Context, tx accounts.Tx) error {
		_, err := tx.UserByEmail(ctx, su.Email)
		if err == nil {
			return nil
		}
		if !errors.Is(err, auth.ErrNotFound) {
			return err
		}

		user := &auth.User{Email: su.Email, Username: username, PasswordHash: hash}
		if err := tx.CreateUser(ctx, user, auth.RoleSuperuser); err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}
