package httpapi

import "github.com/roach88/radiocap/internal/capability"

type slotView struct {
	Slot          int      `json:"slot"`
	HasCapability bool     `json:"has_capability"`
	Families      []string `json:"families"`
	ModemID       string   `json:"modem_id,omitempty"`
	Mode          string   `json:"mode"`
	Requested     []string `json:"requested"`
	Transaction   int32    `json:"transaction"`
	Pending       int      `json:"pending"`
	Online        bool     `json:"online"`
	SimReady      bool     `json:"sim_ready"`
	Probing       bool     `json:"probing"`
}

type statusView struct {
	Slots       []slotView `json:"slots"`
	Transaction int32      `json:"transaction"`
	Phase       string     `json:"phase"`
	Stage       string     `json:"stage"`
	Failed      bool       `json:"failed"`
	Requests    int        `json:"requests"`
}

type requestView struct {
	Token string   `json:"token"`
	Slot  int      `json:"slot"`
	Modes []string `json:"modes"`
	Role  string   `json:"role"`
}

func newStatusView(st capability.Status) statusView {
	out := statusView{
		Slots:       make([]slotView, 0, len(st.Slots)),
		Transaction: int32(st.Transaction),
		Phase:       st.Phase,
		Stage:       st.Stage,
		Failed:      st.Failed,
		Requests:    st.Requests,
	}
	for _, s := range st.Slots {
		requested := s.Requested.Names()
		if requested == nil {
			requested = []string{}
		}
		out.Slots = append(out.Slots, slotView{
			Slot:          s.Slot,
			HasCapability: s.HasCapability,
			Families:      s.Families.Names(),
			ModemID:       s.ModemID,
			Mode:          s.Mode.String(),
			Requested:     requested,
			Transaction:   int32(s.Transaction),
			Pending:       s.Pending,
			Online:        s.Online,
			SimReady:      s.SimReady,
			Probing:       s.Probing,
		})
	}
	return out
}

func newRequestView(info capability.RequestInfo) requestView {
	return requestView{
		Token: info.Token,
		Slot:  info.Slot,
		Modes: info.Modes.Names(),
		Role:  info.Role.String(),
	}
}
