package notify

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tyeom/zeroquant-go/pkg/utils"
)

// moneyFields names the Notification field keys that carry a USD-denominated
// decimal.Decimal, so they log formatted ("$1234.56") instead of as a bare
// decimal string.
var moneyFields = map[string]bool{
	"price": true, "entryPrice": true, "exitPrice": true, "triggerPrice": true,
	"pnl": true, "loss": true, "profit": true, "totalPnL": true,
	"currentValue": true, "threshold": true,
}

// ZapNotifier is the structured-logging Notifier: it has no external
// transport of its own and always succeeds, so the executor and risk
// manager can call it unconditionally without handling delivery failure.
// A Telegram, Slack, or other transport is an external collaborator that
// would implement Notifier directly (out of scope here).
type ZapNotifier struct {
	logger *zap.Logger
}

// NewZapNotifier builds a notifier logging under the "notify" name.
func NewZapNotifier(logger *zap.Logger) *ZapNotifier {
	return &ZapNotifier{logger: logger.Named("notify")}
}

func (z *ZapNotifier) Notify(_ context.Context, n Notification) error {
	fields := make([]zap.Field, 0, len(n.Fields)+1)
	fields = append(fields, zap.String("priority", string(n.Priority)))

	keys := make([]string, 0, len(n.Fields))
	for k := range n.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := n.Fields[k]
		if moneyFields[k] {
			if d, ok := v.(decimal.Decimal); ok {
				fields = append(fields, zap.String(k, utils.FormatMoney(d, "USD")))
				continue
			}
		}
		fields = append(fields, zap.Any(k, v))
	}

	switch n.Priority {
	case PriorityCritical, PriorityHigh:
		z.logger.Warn(string(n.Kind), fields...)
	default:
		z.logger.Info(string(n.Kind), fields...)
	}
	return nil
}
