// Package backtest drives historical simulations: it feeds bars through
// the matching gateway, keeps the cash/margin/P&L books, and reduces the
// equity curve to summary statistics.
package backtest

import (
	"github.com/shopspring/decimal"

	"cta_runtime/internal/core"
	"cta_runtime/internal/event"
)

// ContractParams are the per-contract terms the accountant needs.
type ContractParams struct {
	Size       decimal.Decimal
	LongRate   decimal.Decimal
	ShortRate  decimal.Decimal
	MarginRate decimal.Decimal
}

// ContractLog tracks one symbol over the whole run: Volume and Margin are
// the current signed net volume and its margin, while RealizedPnL, Cost
// (notional) and Turnover accumulate across fills.
type ContractLog struct {
	Volume        decimal.Decimal
	Margin        decimal.Decimal
	RealizedPnL   decimal.Decimal
	UnrealizedPnL decimal.Decimal
	Cost          decimal.Decimal
	Turnover      decimal.Decimal
}

// Accountant is the backtest book-keeper. It consumes trade events and
// maintains positions, cash, margin and both P&L legs. It runs entirely
// on the synchronous backtest bus, so no locking is needed.
type Accountant struct {
	cash       decimal.Decimal
	realized   decimal.Decimal
	unrealized decimal.Decimal
	margin     decimal.Decimal

	positions map[string]*core.Position
	params    map[string]ContractParams
	logs      map[string]*ContractLog
	lastPrice map[string]decimal.Decimal
	trades    []*core.Trade

	logger core.ILogger
}

// NewAccountant creates an accountant with the given starting cash and
// registers it for trade events.
func NewAccountant(bus event.Bus, startingCash decimal.Decimal, logger core.ILogger) *Accountant {
	a := &Accountant{
		cash:      startingCash,
		positions: make(map[string]*core.Position),
		params:    make(map[string]ContractParams),
		logs:      make(map[string]*ContractLog),
		lastPrice: make(map[string]decimal.Decimal),
		logger:    logger,
	}
	if bus != nil {
		bus.Register(event.TopicTrade, func(ev event.Event) {
			if trade, ok := ev.Data.(*core.Trade); ok {
				a.OnTrade(trade)
			}
		})
	}
	return a
}

// SetContract registers the terms for one symbol. Unregistered symbols
// trade at size 1 with zero commission and margin.
func (a *Accountant) SetContract(symbol string, params ContractParams) {
	a.params[symbol] = params
}

func (a *Accountant) contractParams(symbol string) ContractParams {
	if p, ok := a.params[symbol]; ok {
		return p
	}
	return ContractParams{Size: decimal.NewFromInt(1)}
}

func (a *Accountant) contractLog(symbol string) *ContractLog {
	if l, ok := a.logs[symbol]; ok {
		return l
	}
	l := &ContractLog{}
	a.logs[symbol] = l
	return l
}

// OnTrade applies one fill to the books.
func (a *Accountant) OnTrade(trade *core.Trade) {
	a.trades = append(a.trades, trade.Clone())

	params := a.contractParams(trade.Symbol)
	log := a.contractLog(trade.Symbol)

	rate := params.LongRate
	if trade.Direction == core.DirectionShort {
		rate = params.ShortRate
	}
	turnover := trade.Price.Mul(trade.Volume).Mul(params.Size)
	commission := turnover.Mul(rate)
	a.cash = a.cash.Sub(commission)
	log.Cost = log.Cost.Add(turnover)
	log.Turnover = log.Turnover.Add(turnover)

	newSigned := trade.SignedVolume()

	pos := a.positions[trade.Symbol]
	var oldSigned, oldPrice decimal.Decimal
	if pos != nil {
		oldSigned = pos.SignedVolume()
		oldPrice = pos.Price
	}

	combined := oldSigned.Add(newSigned)
	avg := oldPrice

	switch {
	case oldSigned.IsZero() || oldSigned.Sign() == newSigned.Sign():
		// same side add: volume-weighted average entry
		total := oldSigned.Abs().Add(newSigned.Abs())
		avg = oldSigned.Abs().Mul(oldPrice).Add(newSigned.Abs().Mul(trade.Price)).Div(total)

	default:
		closeQty := decimal.Min(oldSigned.Abs(), newSigned.Abs())
		var realized decimal.Decimal
		if oldSigned.IsPositive() {
			realized = trade.Price.Sub(oldPrice).Mul(closeQty).Mul(params.Size)
		} else {
			realized = oldPrice.Sub(trade.Price).Mul(closeQty).Mul(params.Size)
		}
		a.cash = a.cash.Add(realized)
		a.realized = a.realized.Add(realized)
		log.RealizedPnL = log.RealizedPnL.Add(realized)

		if newSigned.Abs().GreaterThan(oldSigned.Abs()) {
			// reversal: the surviving exposure entered at the trade price
			avg = trade.Price
		}
		// partial close keeps the old average
	}

	log.Volume = combined

	if combined.IsZero() {
		delete(a.positions, trade.Symbol)
		log.UnrealizedPnL = decimal.Zero
		log.Margin = decimal.Zero
	} else {
		direction := core.DirectionLong
		if combined.IsNegative() {
			direction = core.DirectionShort
		}
		margin := combined.Abs().Mul(trade.Price).Mul(params.Size).Mul(params.MarginRate)
		a.positions[trade.Symbol] = &core.Position{
			GatewayName: trade.GatewayName,
			Symbol:      trade.Symbol,
			Exchange:    trade.Exchange,
			Direction:   direction,
			Volume:      combined.Abs(),
			Price:       avg,
			Margin:      margin,
		}
		log.Margin = margin
	}

	a.margin = decimal.Zero
	for _, p := range a.positions {
		a.margin = a.margin.Add(p.Margin)
	}
}

// RenewUnrealizedPnL marks every open position to the supplied last
// prices and refreshes equity and available funds.
func (a *Accountant) RenewUnrealizedPnL(prices map[string]decimal.Decimal) {
	for symbol, price := range prices {
		a.lastPrice[symbol] = price
	}

	total := decimal.Zero
	for symbol, pos := range a.positions {
		last, ok := a.lastPrice[symbol]
		if !ok {
			last = pos.Price
		}
		params := a.contractParams(symbol)
		float := last.Sub(pos.Price).Mul(pos.SignedVolume()).Mul(params.Size)
		pos.PnL = float
		a.contractLog(symbol).UnrealizedPnL = float
		total = total.Add(float)
	}
	a.unrealized = total
}

// Account returns the current account snapshot. The identities
// equity = cash + unrealized and available = equity - margin hold at
// every event boundary.
func (a *Accountant) Account() *core.Account {
	equity := a.cash.Add(a.unrealized)
	return &core.Account{
		GatewayName:   "BACKTEST",
		AccountID:     "backtest",
		Cash:          a.cash,
		Margin:        a.margin,
		RealizedPnL:   a.realized,
		UnrealizedPnL: a.unrealized,
		Equity:        equity,
		Available:     equity.Sub(a.margin),
	}
}

// Position returns the open position for a symbol, or nil.
func (a *Accountant) Position(symbol string) *core.Position {
	return a.positions[symbol]
}

// Positions returns a copy of every open position.
func (a *Accountant) Positions() []*core.Position {
	out := make([]*core.Position, 0, len(a.positions))
	for _, p := range a.positions {
		out = append(out, p.Clone())
	}
	return out
}

// ContractLogs returns the per-symbol flow accumulators.
func (a *Accountant) ContractLogs() map[string]ContractLog {
	out := make(map[string]ContractLog, len(a.logs))
	for k, v := range a.logs {
		out[k] = *v
	}
	return out
}

// Trades returns every fill applied, in order.
func (a *Accountant) Trades() []*core.Trade {
	return a.trades
}
