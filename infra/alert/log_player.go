// Package alert provides the default alert player: patterns are
// logged instead of driven to a buzzer.
package alert

import (
	corealert "github.com/carebox/carebox/core/alert"
	"github.com/carebox/carebox/core/logger"
)

// LogPlayer writes each pattern to the log.
type LogPlayer struct {
	log logger.Logger
}

// NewLogPlayer returns a player logging on log.
func NewLogPlayer(log logger.Logger) *LogPlayer {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &LogPlayer{log: log}
}

func (p *LogPlayer) Play(pattern corealert.Pattern) {
	p.log.Infof("alert: %s", pattern)
}
