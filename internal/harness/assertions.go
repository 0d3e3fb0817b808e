package harness

import (
	"sort"

	"github.com/roach88/radiocap/internal/capability"
	"github.com/roach88/radiocap/internal/radio"
)

// evaluate checks every expectation and records failures on res.
func evaluate(res *Result, exp Expect) {
	if exp.Outcome != "" && exp.Outcome != res.Outcome {
		res.AddError("outcome: expected %s, got %s", exp.Outcome, res.Outcome)
	}

	if exp.WireRequests != nil && *exp.WireRequests != res.WireRequests {
		res.AddError("wire_requests: expected %d, got %d", *exp.WireRequests, res.WireRequests)
	}

	for _, se := range exp.Slots {
		assertSlot(res, se)
	}

	kinds := make([]string, 0, len(exp.TraceCount))
	for k := range exp.TraceCount {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		want := exp.TraceCount[k]
		got := countKind(res.Trace, capability.TraceKind(k))
		if got != want {
			res.AddError("trace_count %s: expected %d, got %d", k, want, got)
		}
	}
}

func assertSlot(res *Result, se SlotExpect) {
	var st *capability.SlotStatus
	for i := range res.Status.Slots {
		if res.Status.Slots[i].Slot == se.Slot {
			st = &res.Status.Slots[i]
			break
		}
	}
	if st == nil {
		res.AddError("slot %d: not registered", se.Slot)
		return
	}
	if !st.HasCapability {
		res.AddError("slot %d: capability unknown", se.Slot)
		return
	}

	has, _ := radio.ParseFamilies(se.Has)
	lacks, _ := radio.ParseFamilies(se.Lacks)
	if missing := has &^ st.Families; missing != 0 {
		res.AddError("slot %d: expected %s, missing %s (have %s)", se.Slot, has, missing, st.Families)
	}
	if extra := lacks & st.Families; extra != 0 {
		res.AddError("slot %d: expected no %s (have %s)", se.Slot, extra, st.Families)
	}
}

func countKind(trace []capability.TraceEvent, kind capability.TraceKind) int {
	n := 0
	for _, e := range trace {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
