package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/openfleet/tally/internal/audit/domain"
	"github.com/openfleet/tally/internal/changefeed"
	"github.com/openfleet/tally/internal/clock"
	deliverydomain "github.com/openfleet/tally/internal/delivery/domain"
	driverdomain "github.com/openfleet/tally/internal/driver/domain"
	obsmetrics "github.com/openfleet/tally/internal/observability/metrics"
	dbpkg "github.com/openfleet/tally/pkg/db"
	"github.com/openfleet/tally/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// createAttempts bounds retries when concurrent creates race on the next ID.
const createAttempts = 5

const defaultRole = "driver"

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Repo       driverdomain.Repository
	AuditSvc   auditdomain.Service `optional:"true"`
	Feed       *changefeed.Hub     `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	repo       driverdomain.Repository
	auditSvc   auditdomain.Service
	feed       *changefeed.Hub
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) driverdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("driver.service"),
		clock:      p.Clock,
		repo:       p.Repo,
		auditSvc:   p.AuditSvc,
		feed:       p.Feed,
		obsMetrics: p.ObsMetrics,
	}
}

// Create allocates the next driver ID and inserts the aggregate with zeroed
// counters. ID allocation runs inside the insert transaction; a duplicate-key
// collision with a concurrent create retries with a fresh allocation.
func (s *Service) Create(ctx context.Context, req driverdomain.CreateDriverRequest) (*driverdomain.Driver, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, driverdomain.ErrInvalidName
	}
	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = defaultRole
	}

	for attempt := 0; attempt < createAttempts; attempt++ {
		now := s.clock.Now()
		driver := &driverdomain.Driver{
			Name:      name,
			Role:      role,
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
		}

		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			next, err := s.repo.NextID(ctx, tx)
			if err != nil {
				return err
			}
			driver.DriverID = next
			return s.repo.Insert(ctx, tx, driver)
		})
		if err != nil {
			if dbpkg.IsDuplicateKeyErr(err) {
				s.obsMetrics.RecordUpdateConflict(ctx, "driver.create")
				continue
			}
			return nil, dbpkg.Classify(err)
		}

		s.publishDriver(changefeed.KindInsert, driver)
		s.audit(ctx, "driver.created", driver.DriverID, map[string]any{
			"name": driver.Name,
			"role": driver.Role,
		})
		s.obsMetrics.RecordDriverCreated(ctx)

		s.log.Info("driver created",
			zap.Int64("driver_id", driver.DriverID),
			zap.String("role", driver.Role),
		)
		return driver, nil
	}

	return nil, driverdomain.ErrConcurrentUpdateExhausted
}

func (s *Service) GetByID(ctx context.Context, driverID int64) (*driverdomain.Driver, error) {
	if driverID <= 0 {
		return nil, driverdomain.ErrInvalidDriverID
	}
	driver, err := s.repo.FindByID(ctx, s.db, driverID)
	if err != nil {
		return nil, dbpkg.Classify(err)
	}
	if driver == nil {
		return nil, driverdomain.ErrDriverNotFound
	}
	return driver, nil
}

func (s *Service) List(ctx context.Context, req driverdomain.ListDriversRequest) (driverdomain.ListDriversResponse, error) {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	query := s.db.WithContext(ctx).Model(&driverdomain.Driver{})
	if name := strings.TrimSpace(req.Name); name != "" {
		query = query.Where("name LIKE ?", "%"+name+"%")
	}
	if role := strings.TrimSpace(req.Role); role != "" {
		query = query.Where("role = ?", role)
	}
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil || cursor == nil || cursor.ID == "" {
			return driverdomain.ListDriversResponse{}, driverdomain.ErrInvalidDriverID
		}
		lastID, err := strconv.ParseInt(cursor.ID, 10, 64)
		if err != nil {
			return driverdomain.ListDriversResponse{}, driverdomain.ErrInvalidDriverID
		}
		query = query.Where("driver_id > ?", lastID)
	}

	var items []*driverdomain.Driver
	if err := query.Order("driver_id").Limit(pageSize + 1).Find(&items).Error; err != nil {
		return driverdomain.ListDriversResponse{}, dbpkg.Classify(err)
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(driver *driverdomain.Driver) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID: strconv.FormatInt(driver.DriverID, 10),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	drivers := make([]driverdomain.Driver, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		drivers = append(drivers, *item)
	}

	resp := driverdomain.ListDriversResponse{Drivers: drivers}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

// Delete removes the aggregate and its whole delivery log in one transaction.
// A partial cascade rolls back and surfaces ErrPartialCascade; there is no
// state where one side survives the other.
func (s *Service) Delete(ctx context.Context, driverID int64) error {
	if driverID <= 0 {
		return driverdomain.ErrInvalidDriverID
	}

	var removedDeliveries []snowflake.ID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&deliverydomain.Delivery{}).
			Where("driver_id = ?", driverID).
			Pluck("id", &removedDeliveries).Error; err != nil {
			return err
		}

		if err := tx.Where("driver_id = ?", driverID).
			Delete(&deliverydomain.Delivery{}).Error; err != nil {
			return err
		}

		rows, err := s.repo.Delete(ctx, tx, driverID)
		if err != nil {
			return err
		}
		if rows == 0 {
			return driverdomain.ErrDriverNotFound
		}

		var remaining int64
		if err := tx.Model(&deliverydomain.Delivery{}).
			Where("driver_id = ?", driverID).
			Count(&remaining).Error; err != nil {
			return err
		}
		if remaining > 0 {
			return driverdomain.ErrPartialCascade
		}
		return nil
	})
	if err != nil {
		return dbpkg.Classify(err)
	}

	if s.feed != nil {
		s.feed.Publish(changefeed.Event{
			Entity: changefeed.EntityDriver,
			Kind:   changefeed.KindDelete,
			Key:    strconv.FormatInt(driverID, 10),
		})
		for _, id := range removedDeliveries {
			s.feed.Publish(changefeed.Event{
				Entity: changefeed.EntityDelivery,
				Kind:   changefeed.KindDelete,
				Key:    id.String(),
			})
		}
	}
	s.audit(ctx, "driver.deleted", driverID, map[string]any{
		"deliveries_removed": len(removedDeliveries),
	})
	s.obsMetrics.RecordDriverDeleted(ctx)

	s.log.Info("driver deleted",
		zap.Int64("driver_id", driverID),
		zap.Int("deliveries_removed", len(removedDeliveries)),
	)
	return nil
}

func (s *Service) publishDriver(kind changefeed.Kind, driver *driverdomain.Driver) {
	if s.feed == nil || driver == nil {
		return
	}
	s.feed.Publish(changefeed.Event{
		Entity:  changefeed.EntityDriver,
		Kind:    kind,
		Key:     strconv.FormatInt(driver.DriverID, 10),
		Version: driver.Version,
		Value:   driver,
	})
}

func (s *Service) audit(ctx context.Context, action string, driverID int64, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	targetID := strconv.FormatInt(driverID, 10)
	if err := s.auditSvc.AuditLog(ctx, action, "driver", &targetID, metadata); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}
