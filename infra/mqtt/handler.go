package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/carebox/carebox/core/clock"
	"github.com/carebox/carebox/core/events"
	"github.com/carebox/carebox/core/logger"
	coremqtt "github.com/carebox/carebox/core/mqtt"
)

// Inbound command names.
const (
	CmdSyncSchedules   = "syncSchedules"
	CmdDispense        = "dispense_medication"
	CmdSetAutoDispense = "set_auto_dispense"
	CmdGetTelemetry    = "get_telemetry"
	CmdPing            = "ping"
)

// dispenseTimeout bounds a command-triggered dispense, container wait
// included.
const dispenseTimeout = 2 * time.Minute

// Engine is the command surface of the dispense loop.
type Engine interface {
	SyncMedications(raw []byte) (int, error)
	ManualDispense(ctx context.Context, medID, schedID string) error
	ConfirmTaken(medID, schedID string) error
	SetAutoDispense(on bool)
	Telemetry() events.TelemetryPayload
}

type commandEnvelope struct {
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

type command struct {
	Cmd          string          `json:"cmd"`
	MedicationID string          `json:"medicationId"`
	ScheduleID   string          `json:"scheduleId"`
	Enabled      *bool           `json:"enabled"`
	Data         json.RawMessage `json:"data"`
}

type takenMessage struct {
	MedicationID string `json:"medicationId"`
	ScheduleID   string `json:"scheduleId"`
}

// Handler decodes inbound messages and drives the engine. Every
// command is acknowledged with a result message; a dispense runs on
// its own goroutine because it blocks on the container wait.
type Handler struct {
	eng Engine
	clk clock.Clock
	log logger.Logger

	mu  sync.Mutex
	pub coremqtt.Publisher
}

// NewHandler builds a handler around the engine. The publisher is
// bound later by the client, once connected.
func NewHandler(eng Engine, clk clock.Clock, log logger.Logger) *Handler {
	if clk == nil {
		clk = clock.System{}
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Handler{eng: eng, clk: clk, log: log}
}

// Bind attaches the publisher used for results and telemetry.
func (h *Handler) Bind(pub coremqtt.Publisher) {
	h.mu.Lock()
	h.pub = pub
	h.mu.Unlock()
}

// HandleCommand processes one message from the command topic.
func (h *Handler) HandleCommand(payload []byte) {
	var env commandEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		h.log.Errorf("malformed command envelope: %v", err)
		return
	}
	var cmd command
	if err := json.Unmarshal(env.Payload, &cmd); err != nil {
		h.log.Errorf("malformed command payload: %v", err)
		return
	}

	switch cmd.Cmd {
	case CmdSyncSchedules:
		n, err := h.eng.SyncMedications(cmd.Data)
		if err != nil {
			h.result(cmd.Cmd, err)
			return
		}
		h.log.Infof("synced %d medication(s)", n)
		h.result(cmd.Cmd, nil)
	case CmdDispense:
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), dispenseTimeout)
			defer cancel()
			h.result(cmd.Cmd, h.eng.ManualDispense(ctx, cmd.MedicationID, cmd.ScheduleID))
		}()
	case CmdSetAutoDispense:
		if cmd.Enabled == nil {
			h.log.Warnf("set_auto_dispense without enabled flag")
			return
		}
		h.eng.SetAutoDispense(*cmd.Enabled)
		h.result(cmd.Cmd, nil)
	case CmdGetTelemetry:
		h.publish(events.TopicTelemetry, events.TypeTelemetry, h.eng.Telemetry())
	case CmdPing:
		h.publish(events.TopicStatus, events.TypePong, nil)
	default:
		h.log.Warnf("unknown command %q", cmd.Cmd)
	}
}

// HandleTaken processes one message from the intake confirmation topic.
func (h *Handler) HandleTaken(payload []byte) {
	var msg takenMessage
	if err := json.Unmarshal(payload, &msg); err != nil || msg.MedicationID == "" {
		h.log.Errorf("malformed taken message")
		return
	}
	if err := h.eng.ConfirmTaken(msg.MedicationID, msg.ScheduleID); err != nil {
		h.log.Warnf("confirm taken %s: %v", msg.MedicationID, err)
	}
}

func (h *Handler) result(cmd string, err error) {
	p := events.ResultPayload{Command: cmd, Success: err == nil}
	if err != nil {
		p.Error = err.Error()
		h.log.Errorf("command %s failed: %v", cmd, err)
	}
	h.publish(events.TopicStatus, events.TypeCommandResult, p)
}

func (h *Handler) publish(topic, typ string, payload interface{}) {
	h.mu.Lock()
	pub := h.pub
	h.mu.Unlock()
	if pub == nil {
		return
	}
	b, err := events.Marshal(typ, h.clk.Now(), payload)
	if err != nil {
		h.log.Errorf("encoding %s: %v", typ, err)
		return
	}
	if err := pub.Publish(topic, b); err != nil {
		h.log.Warnf("publish %s: %v", topic, err)
	}
}
