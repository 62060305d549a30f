package database

import (
	"context"
	"crypto-alert-notifier/config"
	"crypto-alert-notifier/internal/types"
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrConnect marks a failure to reach the alert store at startup.
var ErrConnect = errors.New("alert store unreachable")

// Repository is the alert store as seen by the evaluation cycle.
type Repository interface {
	// ListActive returns a snapshot of every alert flagged active.
	ListActive(ctx context.Context) ([]types.Alert, error)
	// Fulfill marks one active alert inactive and fulfilled. Unknown or
	// already fulfilled ids are a no-op.
	Fulfill(ctx context.Context, id string) error
	Close(ctx context.Context) error
}

// Open connects to the configured store and verifies it is reachable.
// Errors wrap ErrConnect.
func Open(ctx context.Context, cfg config.Config) (Repository, error) {
	switch cfg.StoreDriver {
	case "mongo", "":
		repo, err := NewMongoRepository(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConnect, err)
		}
		log.Infof("✅ Connected to MongoDB → database: %s | collection: %s", cfg.MongoDatabase, cfg.MongoCollection)
		return repo, nil
	case "sqlite":
		repo, err := NewSQLiteRepository(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConnect, err)
		}
		log.Infof("✅ Opened SQLite alert store at %s", cfg.SQLitePath)
		return repo, nil
	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", ErrConnect, cfg.StoreDriver)
	}
}

// now is the fulfillment timestamp source, always UTC.
var now = func() time.Time {
	return time.Now().UTC()
}

// usable reports whether a stored active alert may be evaluated.
func usable(a types.Alert) bool {
	if a.IsFulfilled {
		log.Warnf("⚠️ Alert %s (user %s) is both active and fulfilled, skipping", a.ID, a.UserID)
		return false
	}
	if !(a.TargetPrice > 0) || math.IsInf(a.TargetPrice, 0) {
		log.Warnf("⚠️ Alert %s (user %s) has invalid target price %v, skipping", a.ID, a.UserID, a.TargetPrice)
		return false
	}
	return true
}
