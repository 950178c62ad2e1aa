package greeter

import (
	"strconv"
)

// Hint names sent by the daemon
const (
	HintDefaultSession   = "default-session"
	HintHideUsers        = "hide-users"
	HintShowManualLogin  = "show-manual-login"
	HintShowRemoteLogin  = "show-remote-login"
	HintLockScreen       = "lock-screen"
	HintHasGuestAccount  = "has-guest-account"
	HintSelectUser       = "select-user"
	HintSelectGuest      = "select-guest"
	HintAutologinUser    = "autologin-user"
	HintAutologinGuest   = "autologin-guest"
	HintAutologinTimeout = "autologin-timeout"
	HintAutologinSession = "autologin-session"
)

func hintBool(hints map[string]string, name string) bool {
	return hints[name] == "true"
}

func hintInt(hints map[string]string, name string) int {
	v, err := strconv.Atoi(hints[name])
	if err != nil {
		return 0
	}
	return v
}

// Hints returns a copy of every hint
func (g *Greeter) Hints() map[string]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]string, len(g.hints))
	for k, v := range g.hints {
		out[k] = v
	}
	return out
}

// Hint returns one hint, empty when unset
func (g *Greeter) Hint(name string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hints[name]
}

func (g *Greeter) boolHint(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return hintBool(g.hints, name)
}

// DefaultSessionHint is the session started when none is chosen
func (g *Greeter) DefaultSessionHint() string { return g.Hint(HintDefaultSession) }

// HideUsersHint reports whether the user list should stay hidden
func (g *Greeter) HideUsersHint() bool { return g.boolHint(HintHideUsers) }

// ShowManualLoginHint reports whether typing a user name must be offered
func (g *Greeter) ShowManualLoginHint() bool { return g.boolHint(HintShowManualLogin) }

// ShowRemoteLoginHint reports whether remote login should be offered
func (g *Greeter) ShowRemoteLoginHint() bool { return g.boolHint(HintShowRemoteLogin) }

// LockHint reports whether the greeter was started to unlock a session
func (g *Greeter) LockHint() bool { return g.boolHint(HintLockScreen) }

// HasGuestAccountHint reports whether guest login is available
func (g *Greeter) HasGuestAccountHint() bool { return g.boolHint(HintHasGuestAccount) }

// SelectUserHint is the user to preselect, empty when unset
func (g *Greeter) SelectUserHint() string { return g.Hint(HintSelectUser) }

// SelectGuestHint reports whether the guest account should be preselected
func (g *Greeter) SelectGuestHint() bool { return g.boolHint(HintSelectGuest) }

// AutologinUserHint is the user logged in when the autologin timer expires
func (g *Greeter) AutologinUserHint() string { return g.Hint(HintAutologinUser) }

// AutologinGuestHint reports whether the autologin timer logs in the guest
func (g *Greeter) AutologinGuestHint() bool { return g.boolHint(HintAutologinGuest) }

// AutologinSessionHint is the session for autologin, empty for the default
func (g *Greeter) AutologinSessionHint() string { return g.Hint(HintAutologinSession) }

// AutologinTimeoutHint is the autologin delay in seconds, 0 when unset
func (g *Greeter) AutologinTimeoutHint() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return hintInt(g.hints, HintAutologinTimeout)
}
