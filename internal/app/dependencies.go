package app

import (
	"errors"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-engine/internal/cart"
	"github.com/noah-isme/toko-engine/internal/catalog"
	"github.com/noah-isme/toko-engine/internal/checkout"
	"github.com/noah-isme/toko-engine/internal/config"
	"github.com/noah-isme/toko-engine/internal/coupon"
	"github.com/noah-isme/toko-engine/internal/events"
	"github.com/noah-isme/toko-engine/internal/inventory"
	"github.com/noah-isme/toko-engine/internal/lock"
	"github.com/noah-isme/toko-engine/internal/obs"
	"github.com/noah-isme/toko-engine/internal/order"
	"github.com/noah-isme/toko-engine/internal/payment"
	"github.com/noah-isme/toko-engine/internal/queue"
	"github.com/noah-isme/toko-engine/internal/ratelimit"
	"github.com/noah-isme/toko-engine/internal/repo"
	"github.com/noah-isme/toko-engine/internal/resilience"
	"github.com/noah-isme/toko-engine/internal/tax"
)

// Dependencies enumerates the clients the services are wired from.
type Dependencies struct {
	DB        repo.DBTX
	Redis     *redis.Client
	Tasks     *asynq.Client
	Kafka     events.MessageWriter
	Validator *validator.Validate
	Logger    zerolog.Logger
	Now       func() time.Time
}

// Engine holds the wired services.
type Engine struct {
	Config *config.Config
	Logger zerolog.Logger

	Products  catalog.Repository
	Catalog   repo.Products
	TaxRates  repo.TaxRates
	Zones     repo.Zones
	Orders    repo.Orders
	Reserver  inventory.RedisReserver
	Holds     inventory.HoldScheduler
	Locker    lock.Locker
	Queue     queue.Enqueuer
	DLQ       queue.Store
	EventLog  events.PGStore
	Events    *events.Bus
	Publisher events.Publisher

	Coupons  *coupon.Service
	Carts    *cart.Manager
	Checkout *checkout.Service
	Manager  *order.Manager
	Payments *payment.Processor
}

// Wire builds every service from configuration and clients. It does no I/O.
func Wire(cfg *config.Config, deps Dependencies) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if deps.DB == nil || deps.Redis == nil {
		return nil, errors.New("app: database and redis are required")
	}
	logger := deps.Logger
	v := deps.Validator
	if v == nil {
		v = checkout.NewValidator()
	}

	e := &Engine{
		Config:   cfg,
		Logger:   logger,
		Catalog:  repo.Products{DB: deps.DB},
		TaxRates: repo.TaxRates{DB: deps.DB},
		Zones:    repo.Zones{DB: deps.DB},
		Orders:   repo.Orders{DB: deps.DB},
		Locker:   lock.Locker{R: deps.Redis, RetryBackoff: cfg.LockRetryBackoff, Prefix: cfg.QueuePrefix},
		Queue:    queue.Enqueuer{R: deps.Redis, Prefix: cfg.QueuePrefix, DedupTTL: 24 * time.Hour, MaxAttempts: cfg.QueueMaxAttempts},
		DLQ:      queue.NewStore(deps.DB),
		EventLog: events.PGStore{DB: deps.DB},
	}
	e.Products = catalog.CachedRepository{Repo: e.Catalog, Cache: catalog.NewCache(deps.Redis, cfg.ProductCacheTTL)}

	hold := cfg.HoldStock()
	e.Reserver = inventory.RedisReserver{R: deps.Redis, Prefix: cfg.QueuePrefix, Hold: hold}
	e.Holds = inventory.HoldScheduler{Reserver: e.Reserver, HoldFor: hold}
	if deps.Tasks != nil {
		e.Holds.Tasks = deps.Tasks
	}

	e.Events = &events.Bus{Store: e.EventLog}
	if deps.Kafka != nil {
		e.Publisher = events.KafkaPublisher{Writer: deps.Kafka}
		e.Events.Scheduler = events.QueueScheduler{Queue: e.Queue, MaxAttempts: cfg.QueueMaxAttempts}
	}

	e.Coupons = &coupon.Service{Repo: repo.Coupons{DB: deps.DB}, Now: deps.Now, Logger: obs.Component(logger, "coupon")}

	cartSvc := &cart.Service{
		Settings:  cfg.CartSettings(),
		Inventory: inventory.Checker{Settings: cfg.InventorySettings()},
		Tax:       tax.Calculator{Settings: cfg.TaxSettings()},
		Now:       deps.Now,
	}
	e.Carts = &cart.Manager{
		Store:    &cart.Store{R: deps.Redis, Prefix: cfg.QueuePrefix, Now: deps.Now},
		Locker:   e.Locker,
		Service:  cartSvc,
		Products: e.Products,
		Coupons:  e.Coupons,
		TaxRates: e.TaxRates,
		Zones:    e.Zones,
		Attempts: ratelimit.Window{Client: deps.Redis, Prefix: cfg.QueuePrefix, Window: cfg.CouponAttemptWindow, Max: cfg.CouponAttemptLimit},
		LockTTL:  cfg.LockTTL,
		Logger:   obs.Component(logger, "cart"),
	}

	var numbers checkout.NumberGenerator = checkout.RandomNumbers{}
	if cfg.Store.OrderNumberSource == "sequence" {
		numbers = checkout.SequenceNumbers{R: deps.Redis, Prefix: cfg.QueuePrefix}
	}
	e.Checkout = &checkout.Service{
		Settings:  cfg.CheckoutSettings(),
		Validator: v,
		Cart:      cartSvc,
		TaxRates:  e.TaxRates,
		Zones:     e.Zones,
		Products:  e.Products,
		Inventory: inventory.Checker{Settings: cfg.InventorySettings()},
		Numbers:   numbers,
		Orders:    e.Orders,
		Releaser:  e.Reserver,
		Coupons:   e.Coupons,
		Events:    e.Events,
		Now:       deps.Now,
		Logger:    obs.Component(logger, "checkout"),
	}
	if hold > 0 {
		e.Checkout.Holds = e.Holds
	}

	e.Manager = &order.Manager{
		Repo:    e.Orders,
		Locker:  e.Locker,
		Events:  e.Events,
		Stock:   e.Reserver,
		LockTTL: cfg.LockTTL,
		Now:     deps.Now,
		Logger:  obs.Component(logger, "order"),
	}

	breakers := resilience.NewSet(cfg.BreakerMinRequests, cfg.BreakerFailureRatio, cfg.BreakerOpenFor).
		WithLogger(obs.Component(logger, "payment"))
	e.Payments = &payment.Processor{
		Gateways: payment.NewRegistry(payment.COD(), payment.BACS(cfg.Store.BACSDetails)),
		Orders:   e.Manager,
		Breakers: breakers,
		Events:   e.Events,
		Logger:   obs.Component(logger, "payment"),
	}
	return e, nil
}

// DeliveryHandler publishes queued domain events to the broker.
func (e *Engine) DeliveryHandler() events.DeliveryHandler {
	return events.DeliveryHandler{
		Publisher: e.Publisher,
		Marker:    e.EventLog,
		Breaker:   resilience.NewBreaker(e.Config.BreakerMinRequests, e.Config.BreakerFailureRatio, e.Config.BreakerOpenFor).WithTarget("kafka"),
		Logger:    obs.Component(e.Logger, "events"),
	}
}

// ReleaseHoldHandler expires stock holds of unpaid orders.
func (e *Engine) ReleaseHoldHandler() inventory.ReleaseHoldHandler {
	return inventory.ReleaseHoldHandler{
		Reserver: e.Reserver,
		Logger:   obs.Component(e.Logger, "inventory"),
	}
}
