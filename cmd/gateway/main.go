package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/commercekit/paystack-gateway/internal/config"
	"github.com/commercekit/paystack-gateway/internal/migration"
	"github.com/commercekit/paystack-gateway/internal/observability"
	"github.com/commercekit/paystack-gateway/internal/server"
	"github.com/commercekit/paystack-gateway/internal/storage"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		storage.Module,
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
