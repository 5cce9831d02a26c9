package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/openfleet/tally/internal/audit/domain"
	"github.com/openfleet/tally/internal/changefeed"
	"github.com/openfleet/tally/internal/clock"
	deliverydomain "github.com/openfleet/tally/internal/delivery/domain"
	driverdomain "github.com/openfleet/tally/internal/driver/domain"
	obsmetrics "github.com/openfleet/tally/internal/observability/metrics"
	dbpkg "github.com/openfleet/tally/pkg/db"
	"github.com/openfleet/tally/pkg/db/option"
	"github.com/openfleet/tally/pkg/db/pagination"
	"github.com/openfleet/tally/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// updateAttempts bounds the optimistic retry loop on the driver aggregate.
const updateAttempts = 5

// errStaleAggregate signals that the aggregate changed between read and
// conditional write; the whole attempt re-runs with a fresh read.
var errStaleAggregate = errors.New("stale_aggregate")

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	DriverRepo driverdomain.Repository
	AuditSvc   auditdomain.Service `optional:"true"`
	Feed       *changefeed.Hub     `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	driverRepo driverdomain.Repository
	logrepo    repository.Repository[deliverydomain.Delivery]
	auditSvc   auditdomain.Service
	feed       *changefeed.Hub
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) deliverydomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("delivery.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		driverRepo: p.DriverRepo,
		logrepo:    repository.ProvideStore[deliverydomain.Delivery](p.DB),
		auditSvc:   p.AuditSvc,
		feed:       p.Feed,
		obsMetrics: p.ObsMetrics,
	}
}

// Record applies one delivery to the driver aggregate and appends the log
// entry in the same transaction. The aggregate write is conditional on the
// version read at the start of the attempt, so two concurrent deliveries for
// the same driver serialize: the loser re-reads and re-computes, and a
// threshold crossing is granted exactly once.
func (s *Service) Record(ctx context.Context, req deliverydomain.RecordDeliveryRequest) (*driverdomain.Driver, *deliverydomain.Delivery, error) {
	if req.DriverID <= 0 {
		return nil, nil, driverdomain.ErrInvalidDriverID
	}
	if req.Amount <= 0 {
		return nil, nil, deliverydomain.ErrInvalidAmount
	}

	for attempt := 0; attempt < updateAttempts; attempt++ {
		current, err := s.driverRepo.FindByID(ctx, s.db, req.DriverID)
		if err != nil {
			return nil, nil, dbpkg.Classify(err)
		}
		if current == nil {
			return nil, nil, driverdomain.ErrDriverNotFound
		}

		result := deliverydomain.Accrue(current.TotalCollected, req.Amount)

		now := s.clock.Now()
		updated := *current
		updated.TotalCollected = result.NewTotal
		if result.PointGranted {
			updated.UnclaimedPoints++
		}
		updated.Version++
		updated.UpdatedAt = now

		record := &deliverydomain.Delivery{
			ID:         s.genID.Generate(),
			DriverID:   req.DriverID,
			Amount:     req.Amount,
			BillNumber: req.BillNumber,
			Claimed:    result.PointGranted,
			Date:       now,
			CreatedAt:  now,
		}

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			ok, err := s.driverRepo.UpdateGuarded(ctx, tx, &updated, current.Version)
			if err != nil {
				return err
			}
			if !ok {
				return errStaleAggregate
			}
			return tx.Create(record).Error
		})
		if errors.Is(err, errStaleAggregate) {
			s.obsMetrics.RecordUpdateConflict(ctx, "delivery.record")
			continue
		}
		if err != nil {
			return nil, nil, dbpkg.Classify(err)
		}

		s.publishCommit(&updated, record)
		s.audit(ctx, record, result.PointGranted)
		s.obsMetrics.RecordDelivery(ctx, result.PointGranted)

		s.log.Info("delivery recorded",
			zap.Int64("driver_id", req.DriverID),
			zap.Int64("amount", req.Amount),
			zap.Bool("accrued", result.PointGranted),
		)
		return &updated, record, nil
	}

	return nil, nil, driverdomain.ErrConcurrentUpdateExhausted
}

// History answers from the log alone; the materialized aggregate is not
// consulted.
func (s *Service) History(ctx context.Context, req deliverydomain.HistoryRequest) (deliverydomain.HistoryResponse, error) {
	if req.DriverID <= 0 {
		return deliverydomain.HistoryResponse{}, driverdomain.ErrInvalidDriverID
	}
	if req.From != nil && req.To != nil && req.To.Before(*req.From) {
		return deliverydomain.HistoryResponse{}, deliverydomain.ErrInvalidPeriod
	}

	driver, err := s.driverRepo.FindByID(ctx, s.db, req.DriverID)
	if err != nil {
		return deliverydomain.HistoryResponse{}, dbpkg.Classify(err)
	}
	if driver == nil {
		return deliverydomain.HistoryResponse{}, driverdomain.ErrDriverNotFound
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.logrepo.Find(ctx, &deliverydomain.Delivery{DriverID: req.DriverID},
		option.ApplyPagination(pagination.Pagination{
			PageToken: req.PageToken,
			PageSize:  pageSize,
		}),
		option.WithSortBy(option.QuerySortBy{
			Allow:   map[string]bool{"date": true},
			Column:  "date",
			Desc:    true,
			Default: "date",
		}),
		option.WithTimeRange("date", req.From, req.To),
	)
	if err != nil {
		return deliverydomain.HistoryResponse{}, dbpkg.Classify(err)
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(record *deliverydomain.Delivery) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        record.ID.String(),
			CreatedAt: record.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	deliveries := make([]deliverydomain.Delivery, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		deliveries = append(deliveries, *item)
	}

	resp := deliverydomain.HistoryResponse{Deliveries: deliveries}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

// Reconcile re-derives the point counters from the append-only log and
// reports whether the materialized aggregate agrees.
func (s *Service) Reconcile(ctx context.Context, driverID int64) (deliverydomain.ReconciliationReport, error) {
	if driverID <= 0 {
		return deliverydomain.ReconciliationReport{}, driverdomain.ErrInvalidDriverID
	}

	driver, err := s.driverRepo.FindByID(ctx, s.db, driverID)
	if err != nil {
		return deliverydomain.ReconciliationReport{}, dbpkg.Classify(err)
	}
	if driver == nil {
		return deliverydomain.ReconciliationReport{}, driverdomain.ErrDriverNotFound
	}

	accruals, err := s.logrepo.Count(ctx, &deliverydomain.Delivery{DriverID: driverID, Claimed: true})
	if err != nil {
		return deliverydomain.ReconciliationReport{}, dbpkg.Classify(err)
	}

	return deliverydomain.ReconciliationReport{
		DriverID:        driverID,
		AccrualEntries:  accruals,
		UnclaimedPoints: driver.UnclaimedPoints,
		ClaimedPoints:   driver.ClaimedPoints,
		Consistent:      driver.UnclaimedPoints+driver.ClaimedPoints == accruals,
	}, nil
}

func (s *Service) publishCommit(driver *driverdomain.Driver, record *deliverydomain.Delivery) {
	if s.feed == nil {
		return
	}
	s.feed.Publish(changefeed.Event{
		Entity:  changefeed.EntityDriver,
		Kind:    changefeed.KindUpdate,
		Key:     strconv.FormatInt(driver.DriverID, 10),
		Version: driver.Version,
		Value:   driver,
	})
	s.feed.Publish(changefeed.Event{
		Entity: changefeed.EntityDelivery,
		Kind:   changefeed.KindInsert,
		Key:    record.ID.String(),
		Value:  record,
	})
}

func (s *Service) audit(ctx context.Context, record *deliverydomain.Delivery, accrued bool) {
	if s.auditSvc == nil {
		return
	}
	targetID := record.ID.String()
	err := s.auditSvc.AuditLog(ctx, "delivery.recorded", "delivery", &targetID, map[string]any{
		"driver_id":   record.DriverID,
		"amount":      record.Amount,
		"bill_number": record.BillNumber,
		"accrued":     accrued,
	})
	if err != nil {
		s.log.Warn("failed to write audit log", zap.Error(err))
	}
}
