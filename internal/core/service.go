package core

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/catalogsync/internal/catalog"
	"github.com/JonMunkholm/catalogsync/internal/engine"
	"github.com/JonMunkholm/catalogsync/internal/ingest"
	"github.com/JonMunkholm/catalogsync/internal/jobs"
	"github.com/JonMunkholm/catalogsync/internal/notify"
	"github.com/JonMunkholm/catalogsync/internal/pos"
	"github.com/JonMunkholm/catalogsync/internal/propagate"
	"github.com/JonMunkholm/catalogsync/internal/registry"
	"github.com/JonMunkholm/catalogsync/internal/store"
)

// Queue is the job queue as the service uses it.
type Queue interface {
	jobs.Queue
	RequeueStale(ctx context.Context, cutoff time.Time) (int64, error)
	Counts(ctx context.Context) (map[jobs.Status]int64, error)
}

// Records holds the upload audit log and the credential expiry index.
type Records interface {
	RecordUpload(ctx context.Context, u *store.Upload) (string, error)
	AttachJob(ctx context.Context, uploadID, jobID string) error
	ListUploads(ctx context.Context, restaurantID string, limit int) ([]store.Upload, error)
	PurgeUploadsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CredentialsExpiringBefore(ctx context.Context, cutoff time.Time) ([]pos.Record, error)
}

// OptionRegistry returns the master options of a restaurant.
type OptionRegistry interface {
	Options(ctx context.Context, restaurantID string) (registry.Options, error)
}

// Credentials hands out decrypted POS credentials.
type Credentials interface {
	Usable(ctx context.Context, id string) (*pos.Credential, error)
	Refresh(ctx context.Context, id string) (*pos.Credential, error)
}

// Inventory fetches a merchant's item list from the POS.
type Inventory interface {
	FetchInventory(ctx context.Context, cred *pos.Credential) ([]pos.Item, error)
}

// Deps are the collaborators of a Service. Authorizer, Notifier and Limiter
// fall back to CapabilityAuthorizer, notify.LogSender and a default
// UploadLimiter when nil.
type Deps struct {
	Catalog     catalog.Store
	Queue       Queue
	Records     Records
	Registry    OptionRegistry
	Credentials Credentials
	Inventory   Inventory
	Authorizer  Authorizer
	Notifier    notify.Sender
	Limiter     *UploadLimiter
}

// Service is the entry point for every catalog sync operation. Callers
// enqueue work through it and workers run that work through Handle.
type Service struct {
	catalog     catalog.Store
	queue       Queue
	records     Records
	registry    OptionRegistry
	credentials Credentials
	inventory   Inventory
	auth        Authorizer
	notifier    notify.Sender
	limiter     *UploadLimiter

	validator   *ingest.Validator
	coordinator *engine.Coordinator
	menuTypes   *propagate.MenuTypePropagator
	taxRates    *propagate.TaxRatePropagator

	now func() time.Time
}

// NewService creates a Service from its collaborators.
func NewService(d Deps) *Service {
	if d.Authorizer == nil {
		d.Authorizer = CapabilityAuthorizer{}
	}
	if d.Notifier == nil {
		d.Notifier = notify.LogSender{}
	}
	if d.Limiter == nil {
		d.Limiter = NewUploadLimiter(DefaultMaxConcurrentUploads, DefaultMaxWaitTime)
	}

	return &Service{
		catalog:     d.Catalog,
		queue:       d.Queue,
		records:     d.Records,
		registry:    d.Registry,
		credentials: d.Credentials,
		inventory:   d.Inventory,
		auth:        d.Authorizer,
		notifier:    d.Notifier,
		limiter:     d.Limiter,
		validator:   ingest.NewValidator(),
		coordinator: engine.NewCoordinator(d.Catalog),
		menuTypes:   propagate.NewMenuTypePropagator(d.Catalog),
		taxRates:    propagate.NewTaxRatePropagator(d.Catalog),
		now:         time.Now,
	}
}

// SetClock replaces the time source used for schedule cutoffs.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Limiter returns the upload limiter, for shutdown draining and health
// reporting.
func (s *Service) Limiter() *UploadLimiter {
	return s.limiter
}

// RestaurantContext combines the registry options of a restaurant with the
// order channels of its existing menus.
func (s *Service) RestaurantContext(ctx context.Context, restaurantID string) (ingest.RestaurantContext, error) {
	opts, err := s.registry.Options(ctx, restaurantID)
	if err != nil {
		return ingest.RestaurantContext{}, err
	}

	var types []catalog.MenuType
	err = s.catalog.WithTx(ctx, func(tx catalog.Tx) error {
		menus, err := tx.ListMenus(ctx, restaurantID)
		if err != nil {
			return err
		}
		for _, m := range menus {
			types = append(types, m.Type)
		}
		return nil
	})
	if err != nil {
		return ingest.RestaurantContext{}, classify("load restaurant menus", err)
	}
	return ingest.NewRestaurantContext(restaurantID, opts, types), nil
}

// enqueue validates and stores a payload.
func (s *Service) enqueue(ctx context.Context, op string, p jobs.Payload) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	id, err := s.queue.Enqueue(ctx, p)
	if err != nil {
		return "", catalog.E(catalog.ErrTransaction, op, err)
	}
	return id, nil
}

// classify gives unclassified errors the transaction kind.
func classify(op string, err error) error {
	if catalog.KindOf(err) != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return catalog.E(catalog.ErrTransaction, op, err)
}
