package observer

import "go.uber.org/zap"

// ZapObserver renders every published Event as a structured zap log
// line, the pipeline's audit trail independent of the db.Recorder's
// persisted rows. Rejection/abort kinds log at Warn; everything else
// logs at Info.
type ZapObserver struct {
	log *zap.Logger
}

// NewZapObserver builds an Observer writing through log.
func NewZapObserver(log *zap.Logger) *ZapObserver {
	return &ZapObserver{log: log}
}

func (z *ZapObserver) OnEvent(ev Event) {
	fields := []zap.Field{zap.String("event", string(ev.Kind)), zap.Any("data", ev.Data)}
	switch ev.Kind {
	case EventDropped, EventOracleRejected, EventRiskRejected, EventCircuitBreaker, EventEmergencyStop:
		z.log.Warn("pipeline event", fields...)
	default:
		z.log.Info("pipeline event", fields...)
	}
}
