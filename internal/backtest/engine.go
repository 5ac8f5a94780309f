package backtest

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"cta_runtime/internal/core"
	"cta_runtime/internal/event"
	btgateway "cta_runtime/internal/gateway/backtest"
)

// WindowSnapshot captures the books at one mark-to-market boundary.
type WindowSnapshot struct {
	Time         time.Time
	Account      *core.Account
	Positions    []*core.Position
	ContractLogs map[string]ContractLog
}

// Result is the outcome of a run.
type Result struct {
	Snapshots  []WindowSnapshot
	Statistics Statistics
}

// Engine drives a simulation: it replays bar series in end-time order,
// forwards matching-interval bars to the gateway, and flushes a
// mark-to-market window at each boundary of the largest interval.
type Engine struct {
	bus        *event.SyncBus
	gateway    *btgateway.Gateway
	accountant *Accountant
	logger     core.ILogger

	// matchedInterval drives the matcher and the simulation clock;
	// dailyInterval drives the mark-to-market window.
	matchedInterval core.Interval
	dailyInterval   core.Interval

	currentDatetime time.Time

	annualDays int
	riskFree   float64
}

// Config tunes a backtest run.
type Config struct {
	StartingCash decimal.Decimal
	// MatchedInterval defaults to the smallest interval in the data.
	MatchedInterval core.Interval
	// DailyUpdateInterval defaults to the largest interval in the data.
	DailyUpdateInterval core.Interval
	AnnualDays          int
	RiskFreeRate        float64
}

// NewEngine wires a synchronous bus, matching gateway and accountant.
func NewEngine(cfg Config, logger core.ILogger) *Engine {
	bus := event.NewSyncBus(logger)
	annualDays := cfg.AnnualDays
	if annualDays <= 0 {
		annualDays = 240
	}
	return &Engine{
		bus:             bus,
		gateway:         btgateway.New(bus, logger),
		accountant:      NewAccountant(bus, cfg.StartingCash, logger),
		logger:          logger,
		matchedInterval: cfg.MatchedInterval,
		dailyInterval:   cfg.DailyUpdateInterval,
		annualDays:      annualDays,
		riskFree:        cfg.RiskFreeRate,
	}
}

// Bus exposes the run's event bus so strategies and observers can register
// before Run.
func (e *Engine) Bus() event.Bus { return e.bus }

// Gateway exposes the matching gateway.
func (e *Engine) Gateway() *btgateway.Gateway { return e.gateway }

// Accountant exposes the book-keeper, e.g. to register contract params.
func (e *Engine) Accountant() *Accountant { return e.accountant }

// CurrentDatetime is the simulation clock: the start time of the last
// matching-interval bar processed.
func (e *Engine) CurrentDatetime() time.Time { return e.currentDatetime }

type timedBar struct {
	bar *core.Bar
	end time.Time
}

// orderBars derives per-bar end times and sorts all bars chronologically.
// Within one series a bar ends one second before the next bar starts; the
// last bar ends at start + interval - 1s. Ties on end time are broken by
// interval, shortest first.
func orderBars(series []*Series) []timedBar {
	var all []timedBar
	for _, s := range series {
		for i, bar := range s.Bars {
			var end time.Time
			if i+1 < len(s.Bars) {
				end = s.Bars[i+1].Datetime.Add(-time.Second)
			} else {
				end = bar.Datetime.Add(time.Duration(bar.Interval.Seconds())*time.Second - time.Second)
			}
			all = append(all, timedBar{bar: bar, end: end})
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].end.Equal(all[j].end) {
			return all[i].end.Before(all[j].end)
		}
		return all[i].bar.Interval < all[j].bar.Interval
	})
	return all
}

// Run replays the series and returns the window snapshots and statistics.
func (e *Engine) Run(series []*Series) *Result {
	intervals := Intervals(series)
	if e.matchedInterval == core.IntervalNone {
		e.matchedInterval = core.MinInterval(intervals)
	}
	if e.dailyInterval == core.IntervalNone {
		e.dailyInterval = core.MaxInterval(intervals)
	}

	bars := orderBars(series)

	var snapshots []WindowSnapshot
	window := make(map[string]decimal.Decimal)
	var windowTime time.Time

	flush := func(at time.Time) {
		e.accountant.RenewUnrealizedPnL(window)
		snapshots = append(snapshots, WindowSnapshot{
			Time:         at,
			Account:      e.accountant.Account(),
			Positions:    e.accountant.Positions(),
			ContractLogs: e.accountant.ContractLogs(),
		})
		window = make(map[string]decimal.Decimal)
	}

	for _, tb := range bars {
		bar := tb.bar

		if bar.Interval == e.matchedInterval {
			e.currentDatetime = bar.Datetime
		}

		e.bus.Put(event.New(event.TopicBar, bar))
		e.bus.Put(event.New(event.BarTopic(bar.VtSymbol(), bar.Interval.String()), bar))

		if bar.Interval == e.matchedInterval {
			e.gateway.OnBar(bar)
		}

		if bar.Interval == e.dailyInterval {
			if !windowTime.IsZero() && !bar.Datetime.Equal(windowTime) {
				flush(windowTime)
			}
			windowTime = bar.Datetime
			window[bar.Symbol] = bar.Close
		}
	}

	if !windowTime.IsZero() {
		flush(windowTime)
	}

	return &Result{
		Snapshots:  snapshots,
		Statistics: ComputeStatistics(snapshots, e.annualDays, e.riskFree),
	}
}
