package capability

import (
	"fmt"
	"strings"

	"github.com/roach88/radiocap/internal/radio"
)

// Role ranks data-role requests. Only requests of the highest outstanding
// role influence scoring.
type Role int

const (
	RoleNone Role = iota
	// RoleMMS is a messaging request.
	RoleMMS
	// RoleInternet is a primary-internet request.
	RoleInternet
)

func (r Role) String() string {
	switch r {
	case RoleNone:
		return "none"
	case RoleMMS:
		return "mms"
	case RoleInternet:
		return "internet"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// ParseRole resolves "none", "mms" or "internet".
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(s) {
	case "none", "":
		return RoleNone, nil
	case "mms":
		return RoleMMS, nil
	case "internet":
		return RoleInternet, nil
	}
	return RoleNone, fmt.Errorf("unknown data role %q", s)
}

type roleRequest struct {
	token string
	slot  int
	modes radio.AccessMode
	role  Role
}

// RequestInfo describes an outstanding data-role request.
type RequestInfo struct {
	Token string
	Slot  int
	Modes radio.AccessMode
	Role  Role
}

// Request asks that slot receive at least modes on behalf of role. The
// returned token releases the request.
func (m *Manager) Request(slot int, modes radio.AccessMode, role Role) (string, error) {
	if m.find(slot) == nil {
		return "", newError(ErrCodeUnknownSlot, slot, NoTransaction, "no such slot")
	}
	if modes == 0 || modes&^radio.ModeAll != 0 {
		return "", newError(ErrCodeInvalidRequest, slot, NoTransaction, "invalid access modes %#x", uint32(modes))
	}
	if role < RoleNone || role > RoleInternet {
		return "", newError(ErrCodeInvalidRequest, slot, NoTransaction, "invalid role %d", int(role))
	}

	token := m.tokens.Generate()
	m.requests = append(m.requests, &roleRequest{token: token, slot: slot, modes: modes, role: role})
	m.logger.Info("data role requested", "token", token, "slot", slot, "modes", modes.String(), "role", role.String())
	m.refreshRequested()
	m.check.Schedule()
	return token, nil
}

// Release withdraws a request. Its influence is gone from the next decision
// pass.
func (m *Manager) Release(token string) error {
	for i, r := range m.requests {
		if r.token != token {
			continue
		}
		m.requests = append(m.requests[:i], m.requests[i+1:]...)
		m.logger.Info("data role released", "token", token, "slot", r.slot)
		m.refreshRequested()
		m.check.Schedule()
		return nil
	}
	return newError(ErrCodeInvalidRequest, -1, NoTransaction, "unknown request token %q", token)
}

// Requests lists outstanding requests in submission order.
func (m *Manager) Requests() []RequestInfo {
	out := make([]RequestInfo, 0, len(m.requests))
	for _, r := range m.requests {
		out = append(out, RequestInfo{Token: r.token, Slot: r.slot, Modes: r.modes, Role: r.role})
	}
	return out
}

// refreshRequested recomputes every record's requested modes: the union of
// the masks of its highest-role requests, clipped to the slot's allowed
// modes when a preference is set.
func (m *Manager) refreshRequested() {
	top := RoleNone
	for _, r := range m.requests {
		if r.role > top {
			top = r.role
		}
	}
	for _, rec := range m.records {
		var want radio.AccessMode
		for _, r := range m.requests {
			if r.slot == rec.slot.Index && r.role == top {
				want |= r.modes
			}
		}
		if rec.slot.Prefs != nil {
			if allowed := rec.slot.Prefs.AllowedModes(); allowed != 0 {
				want &= allowed
			}
		}
		rec.requested = want
	}
}
