// Package hooking defines the instrumentation points that engines, links and
// nodes expose to tracers and metric collectors.
package hooking

// HookPos names a site at which a hook can be triggered. Positions are
// compared by pointer, so each site declares a single package-level value.
type HookPos struct {
	Name string
}

// HookCtx describes one firing of a hook.
type HookCtx struct {
	// Domain is the object raising the hook.
	Domain Hookable

	Pos *HookPos

	// Item is the subject of the hook, such as the scheduled event or the
	// frame on the wire.
	Item any

	// Detail is optional and site specific.
	Detail any
}

// Hookable is implemented by engines, links and nodes.
type Hookable interface {
	AcceptHook(hook Hook)
	NumHooks() int
	Hooks() []Hook
	InvokeHook(ctx HookCtx)
}

// A Hook observes a Hookable. Hooks must not schedule events or mutate the
// domain that invokes them.
type Hook interface {
	Func(ctx HookCtx)
}

// HookFunc adapts a plain function to the Hook interface.
type HookFunc func(ctx HookCtx)

// Func calls f(ctx).
func (f HookFunc) Func(ctx HookCtx) {
	f(ctx)
}

// At returns a hook that runs f only when the hook fires from one of the
// given positions.
func At(f func(ctx HookCtx), positions ...*HookPos) Hook {
	return HookFunc(func(ctx HookCtx) {
		for _, p := range positions {
			if ctx.Pos == p {
				f(ctx)
				return
			}
		}
	})
}

// HookableBase keeps the hook list of a Hookable.
type HookableBase struct {
	hookList []Hook
}

// NewHookableBase creates an empty HookableBase.
func NewHookableBase() *HookableBase {
	return &HookableBase{}
}

// NumHooks returns the number of hooks registered.
func (h *HookableBase) NumHooks() int {
	return len(h.hookList)
}

// Hooks returns the registered hooks in registration order.
func (h *HookableBase) Hooks() []Hook {
	return h.hookList
}

// AcceptHook registers a hook. Registering the same hook value twice panics;
// HookFuncs are exempt since functions cannot be compared.
func (h *HookableBase) AcceptHook(hook Hook) {
	if _, isFunc := hook.(HookFunc); !isFunc {
		for _, existing := range h.hookList {
			if _, isFunc := existing.(HookFunc); isFunc {
				continue
			}

			if existing == hook {
				panic("duplicated hook")
			}
		}
	}

	h.hookList = append(h.hookList, hook)
}

// InvokeHook triggers the hooks in registration order.
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.hookList {
		hook.Func(ctx)
	}
}

var _ Hookable = (*HookableBase)(nil)
