// Package dispatch implements the reusable message-listener framework
// (spec component 4.3): general and connection-scoped handler bindings,
// one-shot bindings, and concurrent routed invocation.
package dispatch

import (
	"context"
	"log"
	"sync"

	"github.com/anthony2v/goircd/message"
	"github.com/pkg/errors"
)

// Handler reacts to one parsed message addressed to conn.
//
// Dispatch runs each handler on a goroutine of its own, concurrently with the
// other handler bound to the same message, and waits for both; handlers
// must not block.
type Handler func(ctx context.Context, conn any, params []string, prefix string)

// Dispatcher is a handler registry keyed by command, and by (command, conn)
// for connection-scoped bindings. It is safe for concurrent use: mu guards
// both binding maps. Dispatch looks its bindings up before running any
// handler, so a binding added or removed inside a handler takes effect from
// the next Dispatch call.
type Dispatcher struct {
	mu       sync.Mutex
	general  map[string]Handler
	specific map[specificKey]Handler
}

type specificKey struct {
	command string
	conn    any
}

// New returns an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{
		general:  make(map[string]Handler),
		specific: make(map[specificKey]Handler),
	}
}

// Bind registers handler as the general binding for command, replacing any
// existing general binding for it.
func (d *Dispatcher) Bind(command string, handler Handler) {
	if handler == nil {
		log.Printf("dispatch: refusing nil handler for command %q", command)
		return
	}
	d.mu.Lock()
	d.general[command] = handler
	d.mu.Unlock()
}

// BindFor registers handler as the specific binding for (command, conn),
// replacing any existing specific binding for that pair.
func (d *Dispatcher) BindFor(conn any, command string, handler Handler) {
	if handler == nil {
		log.Printf("dispatch: refusing nil handler for command %q on %v", command, conn)
		return
	}
	d.mu.Lock()
	d.specific[specificKey{command, conn}] = handler
	d.mu.Unlock()
}

// BindOnce registers a wrapper for command that removes itself from the
// general bindings before invoking handler, so it fires for at most one
// matching message.
func (d *Dispatcher) BindOnce(command string, handler Handler) {
	var wrapper Handler
	wrapper = func(ctx context.Context, conn any, params []string, prefix string) {
		d.Unbind(command, nil)
		handler(ctx, conn, params, prefix)
	}
	d.Bind(command, wrapper)
}

// BindOnceFor is BindOnce scoped to a single connection, used for the
// ping/pong liveness check (spec §4.4): a PONG from another connection must
// never satisfy conn's outstanding ping.
func (d *Dispatcher) BindOnceFor(conn any, command string, handler Handler) {
	var wrapper Handler
	wrapper = func(ctx context.Context, c any, params []string, prefix string) {
		d.Unbind(command, conn)
		handler(ctx, c, params, prefix)
	}
	d.BindFor(conn, command, wrapper)
}

// Unbind removes the binding for command. If conn is nil it removes the
// general binding; otherwise it removes the specific binding for
// (command, conn). It is a no-op if no such binding exists.
func (d *Dispatcher) Unbind(command string, conn any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if conn == nil {
		delete(d.general, command)
		return
	}
	delete(d.specific, specificKey{command, conn})
}

// Dispatch parses raw and invokes every handler bound to its command: the
// general binding (if any) and the binding specific to conn (if any), run
// concurrently. It blocks until both complete. A handler panic is recovered,
// logged, and does not propagate (spec §7: handler errors must not crash
// the event loop).
//
// An unparseable or unknown command (empty Command after Parse, or no
// matching binding) is logged and dropped, not treated as an error.
func (d *Dispatcher) Dispatch(ctx context.Context, conn any, raw string) {
	command, prefix, params := message.Parse(raw)
	if command == "" {
		log.Printf("dispatch: dropping unparseable/empty frame %q", raw)
		return
	}

	d.mu.Lock()
	general, hasGeneral := d.general[command]
	specific, hasSpecific := d.specific[specificKey{command, conn}]
	d.mu.Unlock()

	if !hasGeneral && !hasSpecific {
		log.Printf("dispatch: no handler for command %q", command)
		return
	}

	var wg sync.WaitGroup
	run := func(h Handler) {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Printf("dispatch: handler for %q panicked: %v", command, r)
			}
		}()
		h(ctx, conn, params, prefix)
	}

	if hasGeneral {
		wg.Add(1)
		go run(general)
	}
	if hasSpecific {
		wg.Add(1)
		go run(specific)
	}
	wg.Wait()
}

// ErrNotCallable names the refused-registration case. Go's type system
// prevents binding a non-Handler in the first place, so the only remaining
// case is a nil Handler value, which Bind/BindFor above log and drop
// without returning an error; nothing in this module returns
// ErrNotCallable.
var ErrNotCallable = errors.New("handler is not callable")
