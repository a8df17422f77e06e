package app

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/events"
	"github.com/xenking/storefront/internal/payment"
	"github.com/xenking/storefront/internal/repository"
)

// RunMilestones consumes courier milestones from Kafka and applies them to
// orders until ctx is done.
func RunMilestones(ctx context.Context, lg *zap.Logger, _ Telemetry, cfg *Config) error {
	if len(cfg.Kafka.Brokers) == 0 {
		return errors.New("kafka brokers are required: set STOREFRONT_KAFKA_BROKERS")
	}
	lg.Info("Initializing milestone consumer",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.MilestonesTopic),
		zap.String("group", cfg.Kafka.GroupID),
	)

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	publisher := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.OrderEventsTopic)
	defer func() {
		if err := publisher.Close(); err != nil {
			lg.Warn("Close event publisher", zap.Error(err))
		}
	}()

	// Only RecordMilestone is used here; order creation never runs in
	// this process.
	orders := order.NewService(
		repository.NewProductRepository(pool),
		coupon.NewRepoValidator(repository.NewCouponRepository(pool), nil),
		repository.NewOrderRepository(pool),
		payment.Sandbox{},
		payment.NewHMACVerifier(cfg.Payment.KeySecret),
		publisher,
		order.Config{CODSurcharge: cfg.CODSurcharge(), Currency: cfg.Checkout.Currency},
	)

	reader := events.NewMilestoneReader(cfg.Kafka.Brokers, cfg.Kafka.MilestonesTopic, cfg.Kafka.GroupID)
	defer func() {
		if err := reader.Close(); err != nil {
			lg.Warn("Close milestone reader", zap.Error(err))
		}
	}()

	if err := events.NewMilestoneConsumer(reader, orders, lg.Named("milestones")).Run(ctx); err != nil {
		return errors.Wrap(err, "consume milestones")
	}
	lg.Info("Milestone consumer stopped")
	return nil
}
