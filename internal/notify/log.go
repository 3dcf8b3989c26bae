package notify

import (
	"context"
	"strconv"

	"go.uber.org/zap"
)

// LogNotifier writes events to the structured log.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier that logs every event at info level.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the event.
func (n *LogNotifier) Notify(_ context.Context, e Event) error {
	EventsTotal.WithLabelValues(string(e.Type), "log").Inc()
	n.logger.Info("lifecycle-event",
		zap.String("type", string(e.Type)),
		zap.String("pair-id", e.PairID),
		zap.Int64("order-id", e.OrderID),
		zap.String("side", string(e.Side)),
		zap.Float64("price", e.Price),
		zap.Float64("quantity", e.Quantity),
		zap.Float64("net-profit", e.NetProfit),
		zap.String("message", e.Message))
	return nil
}

// Close is a no-op.
func (n *LogNotifier) Close() error {
	return nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
