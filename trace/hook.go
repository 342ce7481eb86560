package trace

import (
	"fmt"
	"reflect"

	"github.com/sarchlab/netsim/hooking"
	"github.com/sarchlab/netsim/network"
)

// CollectLinkTrace makes link report its frame events to sink.
func CollectLinkTrace(link network.Link, sink Sink) {
	comparable := reflect.TypeOf(sink).Comparable()

	for _, h := range link.Hooks() {
		if lh, ok := h.(*linkHook); ok && comparable && lh.sink == sink {
			panic(fmt.Sprintf("link %s already traced by this sink", link.Name()))
		}
	}

	link.AcceptHook(&linkHook{sink: sink})
}

type linkHook struct {
	sink Sink
}

// Func turns a link hook into a trace record.
func (h *linkHook) Func(ctx hooking.HookCtx) {
	var kind Kind

	switch ctx.Pos {
	case network.HookPosLinkEnqueue:
		kind = KindEnqueue
	case network.HookPosLinkTxStart:
		kind = KindTxStart
	case network.HookPosLinkDeliver:
		kind = KindReceive
	case network.HookPosLinkDrop:
		kind = KindDrop
	default:
		return
	}

	f := ctx.Item.(*network.Frame)
	detail := ctx.Detail.(network.FrameEvent)

	h.sink.Record(Record{
		Kind:    kind,
		Time:    detail.Time,
		NodeID:  detail.Node.ID(),
		LinkID:  detail.Link.ID(),
		Bytes:   f.PayloadSize,
		FrameID: f.ID,
	})
}
