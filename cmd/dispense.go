package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/carebox/carebox/config"
	"github.com/carebox/carebox/core/events"
	"github.com/carebox/carebox/infra/logger"
	"github.com/carebox/carebox/infra/mqtt"
)

var dispenseCmd = &cobra.Command{
	Use:   "dispense <medication-id> [schedule-id]",
	Short: "Inject a manual dispense command over the broker",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  injectDispense,
}

func init() {
	rootCmd.AddCommand(dispenseCmd)
}

func injectDispense(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logg := logger.New("dispense-command")
	mqttCfg := cfg.MQTT
	mqttCfg.ClientID = ""
	client, err := mqtt.NewPahoClient(mqttCfg, nil)
	if err != nil {
		return fmt.Errorf("mqtt client: %w", err)
	}
	defer client.Disconnect()

	schedID := ""
	if len(args) > 1 {
		schedID = args[1]
	}
	payload, err := json.Marshal(struct {
		Cmd          string `json:"cmd"`
		MedicationID string `json:"medicationId"`
		ScheduleID   string `json:"scheduleId,omitempty"`
	}{Cmd: mqtt.CmdDispense, MedicationID: args[0], ScheduleID: schedID})
	if err != nil {
		return err
	}
	b, err := events.Marshal("command", time.Now(), json.RawMessage(payload))
	if err != nil {
		return err
	}
	if err := client.Publish(events.TopicCommands, b); err != nil {
		return fmt.Errorf("publish command: %w", err)
	}
	logg.Infof("dispense command sent for %s", args[0])
	return nil
}
