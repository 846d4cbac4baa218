package router

import (
	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"market_terminal/internal/models"
	"market_terminal/internal/store"
)

// Router turns envelopes into store mutations. It keeps no state of its own.
type Router struct {
	market    *store.Market
	signals   *store.Signals
	portfolio *store.Portfolio
	orders    *store.Orders
	log       *zap.Logger
}

func NewRouter(
	market *store.Market,
	signals *store.Signals,
	portfolio *store.Portfolio,
	orders *store.Orders,
	log *zap.Logger,
) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		market:    market,
		signals:   signals,
		portfolio: portfolio,
		orders:    orders,
		log:       log,
	}
}

// Decode parses one text frame into an envelope.
func Decode(frame []byte) (models.Envelope, error) {
	var env models.Envelope
	if err := sonic.Unmarshal(frame, &env); err != nil {
		return models.Envelope{}, errors.Wrap(err, "decode envelope")
	}
	if env.Type == "" {
		return models.Envelope{}, errors.New("envelope without type")
	}
	return env, nil
}

// Route applies env to the owning store. Unknown types are ignored and a payload
// that does not match its type is dropped; neither is an error for the caller.
func (r *Router) Route(env models.Envelope) {
	var err error
	switch env.Type {
	case models.EnvelopeTick:
		var t models.Tick
		if err = sonic.Unmarshal(env.Payload, &t); err == nil {
			r.market.UpdateTick(t)
		}
	case models.EnvelopeTickBatch:
		var ts []models.Tick
		if err = sonic.Unmarshal(env.Payload, &ts); err == nil {
			r.market.BulkUpdateTicks(ts)
		}
	case models.EnvelopeCandle:
		var c models.CandleUpdate
		if err = sonic.Unmarshal(env.Payload, &c); err == nil {
			r.market.UpdateCandle(c.Symbol, c.Candle)
		}
	case models.EnvelopeSignal:
		var s models.AgentSignal
		if err = sonic.Unmarshal(env.Payload, &s); err == nil {
			r.signals.AddSignal(s)
		}
	case models.EnvelopePortfolio:
		var p models.PortfolioSnapshot
		if err = sonic.Unmarshal(env.Payload, &p); err == nil {
			r.portfolio.Sync(p)
		}
	case models.EnvelopeOrder:
		if r.orders == nil {
			return
		}
		var o models.Order
		if err = sonic.Unmarshal(env.Payload, &o); err == nil {
			r.orders.UpsertOrder(o)
		}
	default:
		r.log.Debug("unknown envelope type", zap.String("type", env.Type))
		return
	}
	if err != nil {
		r.log.Debug("drop envelope payload", zap.String("type", env.Type), zap.Error(err))
	}
}

// RouteFrame decodes and routes a raw frame. Malformed frames are dropped.
func (r *Router) RouteFrame(frame []byte) bool {
	env, err := Decode(frame)
	if err != nil {
		r.log.Debug("drop frame", zap.Error(err))
		return false
	}
	r.Route(env)
	return true
}
