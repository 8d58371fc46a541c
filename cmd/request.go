package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fieldserv/matchd/app"
	"github.com/fieldserv/matchd/config"
	"github.com/fieldserv/matchd/core/assign"
	"github.com/fieldserv/matchd/core/model"
	"github.com/fieldserv/matchd/infra/logger"
)

var (
	reqServiceType string
	reqZone        string
	reqPriority    string
)

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Inject a test service request and follow its lifecycle",
	RunE:  injectRequest,
}

func init() {
	requestCmd.Flags().StringVar(&reqServiceType, "service-type", "plumbing", "service type of the request")
	requestCmd.Flags().StringVar(&reqZone, "zone", "zone-1", "coverage zone of the request")
	requestCmd.Flags().StringVar(&reqPriority, "priority", "normal", "priority (low, normal, high, urgent)")
	rootCmd.AddCommand(requestCmd)
}

func injectRequest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	logg := logger.New("request-command")
	defer func() {
		if err := svc.Close(); err != nil {
			logg.Errorf("service close: %v", err)
		}
	}()

	prio, err := model.ParsePriority(reqPriority)
	if err != nil {
		return err
	}
	req, err := svc.Manager.Submit(ctx, assign.NewRequest{
		ServiceType: reqServiceType,
		Location:    model.Location{Zone: reqZone},
		Priority:    prio,
	})
	if err != nil {
		return fmt.Errorf("submit request: %w", err)
	}
	logg.Infof("request %s submitted", req.ID)

	sub := svc.Bus.Subscribe()
	defer svc.Bus.Unsubscribe(sub)
	for {
		select {
		case ev := <-sub:
			b, _ := json.Marshal(ev)
			logg.Infof("event: %s", b)
		case <-ctx.Done():
			return nil
		}
	}
}
