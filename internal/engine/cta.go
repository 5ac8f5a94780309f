// Package engine routes strategy request events to the gateway behind a
// firewall: a global trading switch and a per-symbol mute list that
// internal references may bypass.
package engine

import (
	"strings"
	"sync"

	"cta_runtime/internal/core"
	"cta_runtime/internal/event"
)

// Reference prefixes that identify internally generated orders. They pass
// the mute filter for sends; modifies never do.
var internalPrefixes = []string{"ENGINE:", "ROLL:", "RISK:"}

func isInternalReference(ref string) bool {
	for _, p := range internalPrefixes {
		if strings.HasPrefix(ref, p) {
			return true
		}
	}
	return false
}

// CtaEngine is the request firewall between strategies and the gateway.
type CtaEngine struct {
	name    string
	bus     event.Bus
	gateway core.Gateway
	logger  core.ILogger

	mu     sync.Mutex
	active bool
	muted  map[string]string // symbol -> mute reason
}

// New creates an engine, registers its handlers and starts active.
func New(name string, bus event.Bus, gateway core.Gateway, logger core.ILogger) *CtaEngine {
	e := &CtaEngine{
		name:    name,
		bus:     bus,
		gateway: gateway,
		logger:  logger,
		active:  true,
		muted:   make(map[string]string),
	}
	bus.Register(event.TopicOrderReq, e.handleOrderReq)
	bus.Register(event.TopicCancelReq, e.handleCancelReq)
	bus.Register(event.TopicModifyReq, e.handleModifyReq)
	bus.Register(event.TopicCommand, e.handleCommand)
	return e
}

// Name returns the engine identity used on the wire.
func (e *CtaEngine) Name() string { return e.name }

// Active reports the global trading switch.
func (e *CtaEngine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// MutedSymbols returns the currently muted symbols.
func (e *CtaEngine) MutedSymbols() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.muted))
	for s := range e.muted {
		out = append(out, s)
	}
	return out
}

func (e *CtaEngine) handleOrderReq(ev event.Event) {
	req, ok := ev.Data.(*core.OrderRequest)
	if !ok {
		return
	}

	e.mu.Lock()
	active := e.active
	reason, muted := e.muted[req.Symbol]
	e.mu.Unlock()

	if !active {
		e.drop("send", req.Symbol, "engine switched off")
		return
	}
	if muted && !isInternalReference(req.Reference) {
		e.drop("send", req.Symbol, "symbol muted: "+reason)
		return
	}
	e.gateway.SendOrder(req)
}

// handleCancelReq always forwards while the engine is active; blocking a
// cancel during a mute would strand live orders.
func (e *CtaEngine) handleCancelReq(ev event.Event) {
	req, ok := ev.Data.(*core.CancelRequest)
	if !ok {
		return
	}
	if !e.Active() {
		e.drop("cancel", req.Symbol, "engine switched off")
		return
	}
	e.gateway.CancelOrder(req)
}

// handleModifyReq blocks modifies on muted symbols regardless of the
// reference prefix.
func (e *CtaEngine) handleModifyReq(ev event.Event) {
	req, ok := ev.Data.(*core.ModifyRequest)
	if !ok {
		return
	}

	e.mu.Lock()
	active := e.active
	reason, muted := e.muted[req.Symbol]
	e.mu.Unlock()

	if !active {
		e.drop("modify", req.Symbol, "engine switched off")
		return
	}
	if muted {
		e.drop("modify", req.Symbol, "symbol muted: "+reason)
		return
	}
	e.gateway.ModifyOrder(req)
}

func (e *CtaEngine) drop(kind, symbol, why string) {
	if e.logger != nil {
		e.logger.Warn("request blocked", "kind", kind, "symbol", symbol, "reason", why)
	}
	e.bus.Put(event.New(event.TopicLog,
		core.NewLogLevel("blocked "+kind+" on "+symbol+": "+why, core.LevelWarning)))
}

func (e *CtaEngine) handleCommand(ev event.Event) {
	cmd, ok := ev.Data.(*core.Command)
	if !ok {
		return
	}
	switch cmd.Cmd {
	case "engine.mute":
		e.applyMute(cmd.Data)
	case "engine.switch":
		e.applySwitch(cmd.Data)
	}
}

func (e *CtaEngine) applyMute(data map[string]any) {
	on, _ := data["on"].(bool)
	reason, _ := data["reason"].(string)
	symbols := toStrings(data["symbols"])

	e.mu.Lock()
	for _, s := range symbols {
		if on {
			e.muted[s] = reason
		} else {
			delete(e.muted, s)
		}
	}
	e.mu.Unlock()

	if e.logger != nil {
		e.logger.Info("mute updated", "symbols", symbols, "on", on, "reason", reason)
	}
}

func (e *CtaEngine) applySwitch(data map[string]any) {
	on, _ := data["on"].(bool)
	e.mu.Lock()
	e.active = on
	e.mu.Unlock()

	if e.logger != nil {
		e.logger.Info("trading switch updated", "on", on)
	}
}

// toStrings copes with JSON-decoded []any as well as []string payloads.
func toStrings(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
