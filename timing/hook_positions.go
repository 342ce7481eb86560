package timing

import "github.com/sarchlab/netsim/hooking"

// HookPosBeforeEvent is a hook position that triggers before handling an event.
// The hook item is the *ScheduledEvent.
var HookPosBeforeEvent = &hooking.HookPos{Name: "BeforeEvent"}

// HookPosAfterEvent is a hook position that triggers after handling an event.
var HookPosAfterEvent = &hooking.HookPos{Name: "AfterEvent"}
