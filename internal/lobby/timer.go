package lobby

import (
	"github.com/DoyleJ11/chits-backend/internal/engine"
	"go.uber.org/zap"
)

// armReactionTimer schedules the reaction deadline. Each arm or stop bumps
// timerGen so a fire that raced a stop is recognized as stale.
func (l *Lobby) armReactionTimer() {
	if l.opts.ReactionTimeout <= 0 {
		return
	}
	l.stopReactionTimer()
	gen := l.timerGen
	l.timer = l.clock.AfterFunc(l.opts.ReactionTimeout, func() {
		select {
		case l.inbox <- reactionExpired{gen: gen}:
		case <-l.done:
		}
	})
}

func (l *Lobby) stopReactionTimer() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.timerGen++
}

func (l *Lobby) expire(gen int) {
	if gen != l.timerGen {
		return
	}
	l.timer = nil

	events, err := l.apply(engine.Command{Type: engine.CmdReactionTimeout})
	if err != nil {
		l.log.Debug("reaction deadline ignored", zap.Error(err))
		return
	}
	l.log.Info("reaction deadline passed, forfeiting silent players",
		zap.Duration("timeout", l.opts.ReactionTimeout))
	l.publish(events)
}
