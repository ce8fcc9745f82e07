package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/racepay/internal/clock"
	"github.com/smallbiznis/racepay/internal/config"
	"github.com/smallbiznis/racepay/internal/contact"
	"github.com/smallbiznis/racepay/internal/gateway"
	"github.com/smallbiznis/racepay/internal/lock"
	"github.com/smallbiznis/racepay/internal/migration"
	"github.com/smallbiznis/racepay/internal/notification"
	"github.com/smallbiznis/racepay/internal/observability"
	"github.com/smallbiznis/racepay/internal/payment"
	"github.com/smallbiznis/racepay/internal/providers"
	"github.com/smallbiznis/racepay/internal/reconcile"
	"github.com/smallbiznis/racepay/internal/registration"
	"github.com/smallbiznis/racepay/internal/server"
	"github.com/smallbiznis/racepay/internal/transaction"
	"github.com/smallbiznis/racepay/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		lock.Module,

		gateway.Module,
		transaction.Module,
		registration.Module,
		providers.Module,
		notification.Module,
		payment.Module,
		contact.Module,
		reconcile.Module,

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
