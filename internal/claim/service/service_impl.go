package service

import (
	"context"
	"errors"
	"strconv"

	auditdomain "github.com/openfleet/tally/internal/audit/domain"
	"github.com/openfleet/tally/internal/changefeed"
	claimdomain "github.com/openfleet/tally/internal/claim/domain"
	"github.com/openfleet/tally/internal/clock"
	driverdomain "github.com/openfleet/tally/internal/driver/domain"
	obsmetrics "github.com/openfleet/tally/internal/observability/metrics"
	dbpkg "github.com/openfleet/tally/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const updateAttempts = 5

var errStaleAggregate = errors.New("stale_aggregate")

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	DriverRepo driverdomain.Repository
	AuditSvc   auditdomain.Service `optional:"true"`
	Feed       *changefeed.Hub     `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	driverRepo driverdomain.Repository
	auditSvc   auditdomain.Service
	feed       *changefeed.Hub
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) claimdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("claim.service"),
		clock:      p.Clock,
		driverRepo: p.DriverRepo,
		auditSvc:   p.AuditSvc,
		feed:       p.Feed,
		obsMetrics: p.ObsMetrics,
	}
}

// Claim runs the same read-then-conditional-write discipline as accrual.
// Each successful call consumes exactly one point; with zero unclaimed
// points it fails before any mutation, so the counter never goes negative.
func (s *Service) Claim(ctx context.Context, driverID int64) (*driverdomain.Driver, error) {
	if driverID <= 0 {
		return nil, driverdomain.ErrInvalidDriverID
	}

	for attempt := 0; attempt < updateAttempts; attempt++ {
		current, err := s.driverRepo.FindByID(ctx, s.db, driverID)
		if err != nil {
			return nil, dbpkg.Classify(err)
		}
		if current == nil {
			return nil, driverdomain.ErrDriverNotFound
		}
		if current.UnclaimedPoints <= 0 {
			return nil, claimdomain.ErrNothingToClaim
		}

		updated := *current
		updated.UnclaimedPoints--
		updated.ClaimedPoints++
		updated.TotalCollected = 0
		updated.Version++
		updated.UpdatedAt = s.clock.Now()

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			ok, err := s.driverRepo.UpdateGuarded(ctx, tx, &updated, current.Version)
			if err != nil {
				return err
			}
			if !ok {
				return errStaleAggregate
			}
			return nil
		})
		if errors.Is(err, errStaleAggregate) {
			s.obsMetrics.RecordUpdateConflict(ctx, "claim")
			continue
		}
		if err != nil {
			return nil, dbpkg.Classify(err)
		}

		if s.feed != nil {
			s.feed.Publish(changefeed.Event{
				Entity:  changefeed.EntityDriver,
				Kind:    changefeed.KindUpdate,
				Key:     strconv.FormatInt(driverID, 10),
				Version: updated.Version,
				Value:   &updated,
			})
		}
		s.audit(ctx, &updated)
		s.obsMetrics.RecordClaim(ctx)

		s.log.Info("points claimed",
			zap.Int64("driver_id", driverID),
			zap.Int64("claimed_points", updated.ClaimedPoints),
			zap.Int64("unclaimed_points", updated.UnclaimedPoints),
		)
		return &updated, nil
	}

	return nil, driverdomain.ErrConcurrentUpdateExhausted
}

func (s *Service) audit(ctx context.Context, driver *driverdomain.Driver) {
	if s.auditSvc == nil {
		return
	}
	targetID := strconv.FormatInt(driver.DriverID, 10)
	err := s.auditSvc.AuditLog(ctx, "points.claimed", "driver", &targetID, map[string]any{
		"claimed_points":   driver.ClaimedPoints,
		"unclaimed_points": driver.UnclaimedPoints,
	})
	if err != nil {
		s.log.Warn("failed to write audit log", zap.Error(err))
	}
}
