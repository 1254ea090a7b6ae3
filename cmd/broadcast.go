package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fixnow/dispatch/app"
	"github.com/fixnow/dispatch/config"
	coredispatch "github.com/fixnow/dispatch/core/dispatch"
	"github.com/fixnow/dispatch/core/directory"
	"github.com/fixnow/dispatch/core/model"
	"github.com/fixnow/dispatch/infra/logger"
)

var broadcastTTL time.Duration

var broadcastCmd = &cobra.Command{
	Use:   "broadcast",
	Short: "Inject a test emergency request against a seeded directory",
	RunE:  broadcastRequest,
}

func init() {
	broadcastCmd.Flags().DurationVar(&broadcastTTL, "ttl", 30*time.Second, "broadcast window")
	rootCmd.AddCommand(broadcastCmd)
}

func broadcastRequest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg := logger.New("broadcast-command")
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logg.Errorf("service close: %v", err)
		}
	}()

	center := model.Location{Latitude: 30.0444, Longitude: 31.2357, City: "Cairo"}
	if err := svc.Catalog.Set(model.ServiceType{
		ID: "plumbing", Name: "Plumbing", RiskLevel: model.RiskMedium,
		BasePrice: 100, DefaultPriceType: model.PricePerHour, EstimatedDurationMinutes: 60,
	}); err != nil {
		return err
	}
	svc.Directory.Set(directory.Entry{
		ProviderID:   "test-provider",
		ServiceTypes: []string{"plumbing"},
		Location:     model.Location{Latitude: 30.05, Longitude: 31.24, City: "Cairo"},
		Active:       true,
	})

	req, err := svc.Coordinator.CreateAndBroadcast(context.Background(), coredispatch.CreateParams{
		ConsumerID:    "test-consumer",
		ServiceTypeID: "plumbing",
		Location:      center,
		Description:   "burst pipe in the kitchen",
		TTL:           broadcastTTL,
	})
	if err != nil {
		return fmt.Errorf("broadcast: %w", err)
	}
	logg.Infof("request %s created with status %s", req.ID, req.Status)

	deadline := time.After(broadcastTTL + time.Second)
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			cur, err := svc.Coordinator.GetStatus(req.ID)
			if err != nil {
				return err
			}
			if cur.Status.Terminal() {
				logg.Infof("request %s finished: %s (%d responses)", cur.ID, cur.Status, len(cur.Responses))
				return nil
			}
		case <-deadline:
			return fmt.Errorf("request %s did not reach a terminal state", req.ID)
		}
	}
}
