package bookings

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/homeserve-backend/internal/billing"
	"github.com/angelmondragon/homeserve-backend/internal/hubs"
	"github.com/angelmondragon/homeserve-backend/pkg/config"
	"github.com/angelmondragon/homeserve-backend/pkg/db"
	"github.com/angelmondragon/homeserve-backend/pkg/logger"
	"github.com/angelmondragon/homeserve-backend/pkg/outbox"
)

// NewServiceFromClient builds the booking service the processes share: postgres
// repositories, the transactional outbox, the hub directory and overage billing.
func NewServiceFromClient(client *db.Client, cfg config.BillingConfig, logg *logger.Logger) (Service, error) {
	if client == nil {
		return nil, fmt.Errorf("database client required")
	}
	directory, err := hubs.NewDirectory(hubs.NewRepository(client.DB()))
	if err != nil {
		return nil, err
	}
	biller, err := billing.NewService(billing.ServiceParams{
		RatePerMinute: decimal.NewFromInt(cfg.OverageRatePerMinute),
		Currency:      cfg.Currency,
	})
	if err != nil {
		return nil, err
	}
	return NewService(ServiceParams{
		Repo:    NewRepository(client.DB()),
		Tx:      client,
		Outbox:  outbox.NewService(outbox.NewRepository(client.DB()), logg),
		Hubs:    directory,
		Billing: biller,
		Logger:  logg,
	})
}
