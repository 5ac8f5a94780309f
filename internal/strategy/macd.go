package strategy

import (
	"github.com/shopspring/decimal"

	"cta_runtime/internal/core"
	"cta_runtime/pkg/ta"
)

// MacdCross is the shipped example policy. A golden cross (DIF over DEA)
// opens a market long when flat; a dead cross closes it.
type MacdCross struct {
	name     string
	symbol   string
	exchange core.Exchange
	interval core.Interval
	volume   decimal.Decimal

	fast, slow, signal int

	closes    []float64
	position  decimal.Decimal
	wantEntry bool
	wantExit  bool
}

// NewMacdCross builds the policy with the conventional 12/26/9 windows.
func NewMacdCross(name, symbol string, exchange core.Exchange, interval core.Interval, volume decimal.Decimal) *MacdCross {
	return &MacdCross{
		name:     name,
		symbol:   symbol,
		exchange: exchange,
		interval: interval,
		volume:   volume,
		fast:     12,
		slow:     26,
		signal:   9,
	}
}

// SetWindows overrides the EMA windows. Short windows make the cross easier
// to exercise on small series.
func (s *MacdCross) SetWindows(fast, slow, signal int) {
	s.fast, s.slow, s.signal = fast, slow, signal
}

func (s *MacdCross) Name() string { return s.name }

func (s *MacdCross) OnBar(bar *core.Bar) bool {
	if bar.Symbol != s.symbol || bar.Interval != s.interval {
		return false
	}
	px, _ := bar.Close.Float64()
	s.closes = append(s.closes, px)

	macd := ta.MACD(s.closes, s.fast, s.slow, s.signal)
	switch {
	case ta.CrossedAbove(macd.DIF, macd.DEA):
		if s.position.IsZero() && !s.wantEntry {
			s.wantEntry = true
			return true
		}
	case ta.CrossedBelow(macd.DIF, macd.DEA):
		if s.position.IsPositive() && !s.wantExit {
			s.wantExit = true
			return true
		}
	}
	return false
}

func (s *MacdCross) OnTick(*core.Tick) bool { return false }

// OnOrder clears a pending desire once the order reaches a terminal state,
// so a market order is never re-sent. Active acks must not clear it: the
// desire keeps the live order in Plan() until the matcher fills it.
func (s *MacdCross) OnOrder(order *core.Order) bool {
	if order.IsActive() {
		return false
	}
	switch order.Reference {
	case s.name + ":entry":
		if s.wantEntry {
			s.wantEntry = false
			return true
		}
	case s.name + ":exit":
		if s.wantExit {
			s.wantExit = false
			return true
		}
	}
	return false
}

func (s *MacdCross) OnTrade(*core.Trade) bool { return false }

// OnPosition nets the per-fill deltas the gateways publish into the
// policy's running position.
func (s *MacdCross) OnPosition(position *core.Position) bool {
	if position.Symbol != s.symbol {
		return false
	}
	s.position = s.position.Add(position.SignedVolume())
	return false
}

func (s *MacdCross) Plan() []TargetOrder {
	var targets []TargetOrder
	if s.wantEntry {
		targets = append(targets, TargetOrder{
			Reference: "entry",
			Symbol:    s.symbol,
			Exchange:  s.exchange,
			Direction: core.DirectionLong,
			Type:      core.TypeMarket,
			Offset:    core.OffsetOpen,
			Volume:    s.volume,
		})
	}
	if s.wantExit {
		targets = append(targets, TargetOrder{
			Reference: "exit",
			Symbol:    s.symbol,
			Exchange:  s.exchange,
			Direction: core.DirectionShort,
			Type:      core.TypeMarket,
			Offset:    core.OffsetClose,
			Volume:    s.position,
		})
	}
	return targets
}
