// Package dispatch delivers host events to eligible plugins. Eligibility is
// the load-time half of the gatekeeper: a plugin receives a hook only while
// it is Enabled, declared the hook, and holds the hook's required permission.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/goldpress/goldpress/internal/plugin"
	"github.com/goldpress/goldpress/internal/plugin/registry"
)

// DefaultHandlerTimeout bounds one handler invocation.
const DefaultHandlerTimeout = 5 * time.Second

// Handler executes plugin hook code. The Lua runtime implements it.
type Handler interface {
	// HandleAction delivers a fire-and-forget notification.
	HandleAction(ctx context.Context, pluginID, hook string, event map[string]any) error

	// HandleFilter transforms a value and returns the result.
	HandleFilter(ctx context.Context, pluginID, hook string, value map[string]any) (map[string]any, error)
}

// RecordSource feeds the eligibility index. The lifecycle manager
// implements it.
type RecordSource interface {
	List() ([]*plugin.Record, error)
	Subscribe(plugin.EventHandler) func()
}

// Dispatcher routes hooks to eligible plugins with Action/Filter semantics.
type Dispatcher struct {
	source  RecordSource
	handler Handler
	log     zerolog.Logger
	timeout time.Duration

	mu sync.RWMutex
	// eligible maps hook name to plugin ids in install order.
	eligible map[string][]string

	wg          sync.WaitGroup
	unsubscribe func()
}

// NewDispatcher builds the eligibility index from the source and keeps it
// current by subscribing to lifecycle events. A timeout of zero selects
// DefaultHandlerTimeout.
func NewDispatcher(source RecordSource, handler Handler, log zerolog.Logger, timeout time.Duration) (*Dispatcher, error) {
	if timeout <= 0 {
		timeout = DefaultHandlerTimeout
	}

	d := &Dispatcher{
		source:   source,
		handler:  handler,
		log:      log.With().Str("component", "hook-dispatcher").Logger(),
		timeout:  timeout,
		eligible: make(map[string][]string),
	}
	if err := d.rebuild(); err != nil {
		return nil, err
	}

	d.unsubscribe = source.Subscribe(func(event plugin.Event) {
		if err := d.rebuild(); err != nil {
			d.log.Error().Err(err).Str("plugin", event.PluginID).
				Msg("rebuilding eligibility index")
		}
	})
	return d, nil
}

// DispatchAction delivers an action hook concurrently to every eligible
// plugin and returns without waiting. Each handler gets its own snapshot of
// the event; a failure, panic, or timeout in one handler is isolated and
// logged, never reaching the triggering operation or other handlers.
func (d *Dispatcher) DispatchAction(hook string, event map[string]any) error {
	def, ok := registry.GetHookDef(hook)
	if !ok {
		return fmt.Errorf("unknown hook %q", hook)
	}
	if def.Kind != registry.KindAction {
		return fmt.Errorf("hook %q is not an action hook", hook)
	}

	dispatchID := uuid.NewString()
	for _, pluginID := range d.snapshot(hook) {
		pluginID := pluginID
		snapshot := cloneEvent(event)

		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.runAction(dispatchID, pluginID, hook, snapshot)
		}()
	}
	return nil
}

// DispatchFilter runs a filter chain: eligible plugins in install order, each
// receiving the prior output. A failed handler's transformation is skipped
// and the unmodified prior value propagates; the chain itself never fails the
// host operation. Independent invocations run concurrently without
// cross-blocking.
func (d *Dispatcher) DispatchFilter(ctx context.Context, hook string, value map[string]any) (map[string]any, error) {
	def, ok := registry.GetHookDef(hook)
	if !ok {
		return nil, fmt.Errorf("unknown hook %q", hook)
	}
	if def.Kind != registry.KindFilter {
		return nil, fmt.Errorf("hook %q is not a filter hook", hook)
	}

	dispatchID := uuid.NewString()
	current := value
	for _, pluginID := range d.snapshot(hook) {
		next, err := d.runFilter(ctx, dispatchID, pluginID, hook, current)
		if err != nil {
			// Transformation skipped; prior value propagates.
			continue
		}
		current = next
	}
	return current, nil
}

// Eligible returns the plugin ids currently eligible for a hook, in install
// order.
func (d *Dispatcher) Eligible(hook string) []string {
	return d.snapshot(hook)
}

// Drain waits for in-flight action handlers to finish, up to the context
// deadline. Used at shutdown.
func (d *Dispatcher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops tracking lifecycle events.
func (d *Dispatcher) Close() {
	if d.unsubscribe != nil {
		d.unsubscribe()
	}
}

// runAction invokes one action handler with timeout and panic isolation.
func (d *Dispatcher) runAction(dispatchID, pluginID, hook string, event map[string]any) {
	start := time.Now()
	err := d.invoke(func(ctx context.Context) error {
		return d.handler.HandleAction(ctx, pluginID, hook, event)
	})

	logger := d.log.With().Str("dispatch", dispatchID).Str("hook", hook).
		Str("plugin", pluginID).Dur("duration", time.Since(start)).Logger()
	if err != nil {
		logger.Warn().Err(err).Msg("action handler failed")
		return
	}
	logger.Debug().Msg("action handler completed")
}

// runFilter invokes one filter handler with timeout and panic isolation.
func (d *Dispatcher) runFilter(ctx context.Context, dispatchID, pluginID, hook string, value map[string]any) (map[string]any, error) {
	start := time.Now()

	var result map[string]any
	err := d.invoke(func(ctx context.Context) error {
		var err error
		result, err = d.handler.HandleFilter(ctx, pluginID, hook, value)
		return err
	})

	logger := d.log.With().Str("dispatch", dispatchID).Str("hook", hook).
		Str("plugin", pluginID).Dur("duration", time.Since(start)).Logger()
	if err != nil {
		logger.Warn().Err(err).Msg("filter handler failed, transformation skipped")
		return nil, err
	}
	logger.Debug().Msg("filter handler completed")
	return result, nil
}

// invoke runs fn in its own goroutine so a stuck handler cannot block the
// dispatcher past the timeout, and recovers panics into errors.
func (d *Dispatcher) invoke(fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				errc <- fmt.Errorf("handler panic: %v", rec)
			}
		}()
		errc <- fn(ctx)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return fmt.Errorf("handler timeout after %s", d.timeout)
	}
}

// snapshot copies the eligible set for a hook. Plugins enabled after the
// snapshot join only subsequent dispatches.
func (d *Dispatcher) snapshot(hook string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.eligible[hook]...)
}

// rebuild recomputes the whole eligibility index from the record source.
func (d *Dispatcher) rebuild() error {
	records, err := d.source.List()
	if err != nil {
		return err
	}

	eligible := make(map[string][]string)
	for _, rec := range records {
		if rec.Status != plugin.StatusEnabled {
			continue
		}
		for _, hook := range rec.Manifest.Hooks {
			def, ok := registry.GetHookDef(hook)
			if !ok {
				continue
			}
			if def.RequiredPermission != "" && !rec.Granted[def.RequiredPermission] {
				continue
			}
			eligible[hook] = append(eligible[hook], rec.ID)
		}
	}

	d.mu.Lock()
	d.eligible = eligible
	d.mu.Unlock()
	return nil
}

// cloneEvent gives each action handler its own shallow snapshot.
func cloneEvent(event map[string]any) map[string]any {
	if event == nil {
		return nil
	}
	snapshot := make(map[string]any, len(event))
	for k, v := range event {
		snapshot[k] = v
	}
	return snapshot
}
