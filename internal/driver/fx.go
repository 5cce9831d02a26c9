package driver

import (
	"github.com/openfleet/tally/internal/driver/repository"
	"github.com/openfleet/tally/internal/driver/service"
	"go.uber.org/fx"
)

var Module = fx.Module("driver.service",
	fx.Provide(
		repository.NewRepository,
		service.NewService,
	),
)
