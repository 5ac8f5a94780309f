// Package rollover implements the multi-phase futures roll: clear foreign
// orders, wait for the book to drain, read the old-contract position, then
// issue the open/close legs and wait for their acknowledgements. All
// coordination happens through bus events.
package rollover

import (
	"fmt"
	"strings"

	"cta_runtime/internal/core"
	"cta_runtime/internal/event"
)

// Phase of the roll state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseCancel
	PhaseWaitCancel
	PhaseAwaitPos
	PhaseIssue
	PhaseWaitAcks
	PhaseDone
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseCancel:
		return "CANCEL"
	case PhaseWaitCancel:
		return "WAIT_CANCEL"
	case PhaseAwaitPos:
		return "AWAIT_POS"
	case PhaseIssue:
		return "ISSUE"
	case PhaseWaitAcks:
		return "WAIT_ACKS"
	case PhaseDone:
		return "DONE"
	case PhaseFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// Mode picks the leg ordering.
type Mode string

const (
	// ModeHedged opens the new contract before closing the old one, so
	// market exposure never drops.
	ModeHedged Mode = "hedged"
	// ModeFlat closes first and re-opens afterwards.
	ModeFlat Mode = "flat"
)

// Task tracks one roll from request to completion.
type Task struct {
	SymbolGroup string
	OldSymbol   string
	NewSymbol   string
	Mode        Mode

	Phase  Phase
	Result string

	// seenNonAllCancelled records that some order finished with a status
	// other than ALLCANCELLED during the clearing phase, meaning fills
	// happened and a position must eventually appear.
	seenNonAllCancelled bool

	needOpen  bool
	needClose bool

	openRef  string
	closeRef string

	openAcked  bool
	closeAcked bool
}

func (t *Task) impacted(symbol string) bool {
	return symbol == t.SymbolGroup || symbol == t.OldSymbol || symbol == t.NewSymbol
}

// Manager runs at most one roll task at a time.
type Manager struct {
	bus    event.Bus
	oms    core.OMSReader
	logger core.ILogger

	task *Task
}

// New creates a manager and registers its handlers.
func New(bus event.Bus, oms core.OMSReader, logger core.ILogger) *Manager {
	m := &Manager{bus: bus, oms: oms, logger: logger}
	bus.Register(event.TopicCommand, m.handleCommand)
	bus.Register(event.TopicOrder, m.handleOrder)
	bus.Register(event.TopicPosition, m.handlePosition)
	return m
}

// Task returns the current task, nil when idle.
func (m *Manager) Task() *Task { return m.task }

func (m *Manager) handleCommand(ev event.Event) {
	cmd, ok := ev.Data.(*core.Command)
	if !ok || cmd.Cmd != "rollover" {
		return
	}

	group, _ := cmd.Data["symbol_group"].(string)
	oldSym, _ := cmd.Data["old"].(string)
	newSym, _ := cmd.Data["new"].(string)
	mode, _ := cmd.Data["mode"].(string)

	m.Start(group, oldSym, newSym, Mode(mode))
}

// Start begins a roll. A task still in flight rejects the new request.
func (m *Manager) Start(group, oldSym, newSym string, mode Mode) {
	if m.task != nil && m.task.Phase != PhaseDone && m.task.Phase != PhaseFailed {
		m.log(core.LevelWarning, "rollover already in progress, ignoring request")
		return
	}
	if oldSym == "" || newSym == "" {
		m.log(core.LevelError, "rollover request missing symbols")
		return
	}
	if mode != ModeHedged && mode != ModeFlat {
		mode = ModeHedged
	}

	m.task = &Task{
		SymbolGroup: group,
		OldSymbol:   oldSym,
		NewSymbol:   newSym,
		Mode:        mode,
		Phase:       PhaseCancel,
	}
	m.log(core.LevelInfo, fmt.Sprintf("rollover started: %s -> %s (%s)", oldSym, newSym, mode))

	m.clearForeignOrders()
}

// clearForeignOrders cancels every active order on the impacted symbols
// except the manager's own roll legs.
func (m *Manager) clearForeignOrders() {
	t := m.task

	cancelled := 0
	for _, order := range m.oms.GetAllActiveOrders() {
		if !t.impacted(order.Symbol) {
			continue
		}
		if strings.HasPrefix(order.Reference, "ROLL:") {
			continue
		}
		m.bus.Put(event.New(event.TopicCancelReq, order.CancelRequest()))
		cancelled++
	}

	t.Phase = PhaseWaitCancel
	if cancelled == 0 {
		t.Phase = PhaseAwaitPos
		m.evaluatePosition()
		return
	}
	m.log(core.LevelInfo, fmt.Sprintf("rollover clearing %d orders", cancelled))
}

func (m *Manager) handleOrder(ev event.Event) {
	order, ok := ev.Data.(*core.Order)
	if !ok || m.task == nil {
		return
	}
	t := m.task

	switch t.Phase {
	case PhaseWaitCancel:
		if !t.impacted(order.Symbol) || order.IsActive() {
			return
		}
		if order.Status != core.StatusAllCancelled {
			t.seenNonAllCancelled = true
		}
		if m.foreignActivesRemain() {
			return
		}
		t.Phase = PhaseAwaitPos
		m.evaluatePosition()

	case PhaseWaitAcks:
		m.observeAck(order)
	}
}

func (m *Manager) handlePosition(ev event.Event) {
	if m.task == nil || m.task.Phase != PhaseAwaitPos {
		return
	}
	if position, ok := ev.Data.(*core.Position); !ok || position.Symbol != m.task.OldSymbol {
		return
	}
	m.evaluatePosition()
}

func (m *Manager) foreignActivesRemain() bool {
	t := m.task
	for _, order := range m.oms.GetAllActiveOrders() {
		if t.impacted(order.Symbol) && !strings.HasPrefix(order.Reference, "ROLL:") {
			return true
		}
	}
	return false
}

func (m *Manager) oldPosition() *core.Position {
	for _, p := range m.oms.GetAllPositions() {
		if p.Symbol == m.task.OldSymbol {
			return p
		}
	}
	return nil
}

// evaluatePosition decides what AWAIT_POS does with the current books.
func (m *Manager) evaluatePosition() {
	t := m.task
	pos := m.oldPosition()

	if pos == nil {
		if !t.seenNonAllCancelled {
			m.finish("all cancelled & no position")
			return
		}
		// a fill happened during clearing, so a position event is still
		// in flight; stay here until it arrives
		return
	}

	if pos.Exchange == "" || pos.Exchange == core.ExchangeUnknown {
		m.finish("no exchange")
		return
	}

	m.issueLegs(pos)
}

func (m *Manager) issueLegs(pos *core.Position) {
	t := m.task
	t.Phase = PhaseIssue

	base := fmt.Sprintf("ROLL:%s:%s->%s", t.SymbolGroup, t.OldSymbol, t.NewSymbol)
	t.openRef = base + ":OPEN"
	t.closeRef = base + ":CLOSE"

	openLeg := &core.OrderRequest{
		Symbol:    t.NewSymbol,
		Exchange:  pos.Exchange,
		Direction: pos.Direction,
		Type:      core.TypeMarket,
		Volume:    pos.Volume,
		Offset:    core.OffsetOpen,
		Reference: t.openRef,
	}
	closeLeg := &core.OrderRequest{
		Symbol:    t.OldSymbol,
		Exchange:  pos.Exchange,
		Direction: pos.Direction.Opposite(),
		Type:      core.TypeMarket,
		Volume:    pos.Volume,
		Offset:    core.OffsetClose,
		Reference: t.closeRef,
	}

	t.needOpen = true
	t.needClose = true

	if t.Mode == ModeFlat {
		m.bus.Put(event.New(event.TopicOrderReq, closeLeg))
		m.bus.Put(event.New(event.TopicOrderReq, openLeg))
	} else {
		m.bus.Put(event.New(event.TopicOrderReq, openLeg))
		m.bus.Put(event.New(event.TopicOrderReq, closeLeg))
	}

	t.Phase = PhaseWaitAcks
	m.log(core.LevelInfo, fmt.Sprintf("rollover legs issued for %s %s", pos.Direction, pos.Volume))
}

// observeAck treats any non-REJECTED order status on a leg reference as
// the acknowledgement; a rejected leg fails the task.
func (m *Manager) observeAck(order *core.Order) {
	t := m.task

	var leg *bool
	switch order.Reference {
	case t.openRef:
		leg = &t.openAcked
	case t.closeRef:
		leg = &t.closeAcked
	default:
		return
	}

	if order.Status == core.StatusRejected {
		t.Phase = PhaseFailed
		t.Result = "leg rejected: " + order.Reference
		m.log(core.LevelError, t.Result)
		return
	}
	*leg = true

	if (!t.needOpen || t.openAcked) && (!t.needClose || t.closeAcked) {
		m.finish("legs acknowledged")
	}
}

func (m *Manager) finish(result string) {
	m.task.Phase = PhaseDone
	m.task.Result = result
	m.log(core.LevelInfo, "rollover done: "+result)
	m.bus.Put(event.New(event.TopicRollover, m.task))
}

func (m *Manager) log(level core.LogLevel, msg string) {
	if m.logger != nil {
		switch level {
		case core.LevelError:
			m.logger.Error(msg)
		case core.LevelWarning:
			m.logger.Warn(msg)
		default:
			m.logger.Info(msg)
		}
	}
	m.bus.Put(event.New(event.TopicLog, core.NewLogLevel(msg, level)))
}
