package migration

import (
	"strings"

	auditdomain "github.com/openfleet/tally/internal/audit/domain"
	deliverydomain "github.com/openfleet/tally/internal/delivery/domain"
	driverdomain "github.com/openfleet/tally/internal/driver/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB) error {
		// golang-migrate only ships our postgres driver; other dialects
		// (sqlite for local development) fall back to AutoMigrate.
		if !strings.EqualFold(conn.Dialector.Name(), "postgres") {
			return conn.AutoMigrate(
				&driverdomain.Driver{},
				&deliverydomain.Delivery{},
				&auditdomain.AuditLog{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
