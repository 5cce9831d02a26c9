package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/openfleet/tally/internal/clock"
	"github.com/openfleet/tally/internal/config"
	"github.com/openfleet/tally/internal/logger"
	"github.com/openfleet/tally/internal/migration"
	"github.com/openfleet/tally/internal/observability/metrics"
	"github.com/openfleet/tally/internal/server"
	"github.com/openfleet/tally/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		metrics.Module,
		migration.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
