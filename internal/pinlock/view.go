package pinlock

import "fmt"

// View is a render-ready snapshot of the machine. It never carries digits.
type View struct {
	Mode                Mode   `json:"mode"`
	Step                string `json:"step"`
	Title               string `json:"title"`
	Subtitle            string `json:"subtitle"`
	Filled              int    `json:"filled"`
	Message             string `json:"message,omitempty"`
	Attempts            int    `json:"attempts"`
	Locked              bool   `json:"locked"`
	RemainingSeconds    int    `json:"remaining_seconds,omitempty"`
	PinSet              bool   `json:"pin_set"`
	BiometricsAvailable bool   `json:"biometrics_available"`
	CanReset            bool   `json:"can_reset"`
}

// View returns the current snapshot.
func (m *Machine) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewLocked()
}

func (m *Machine) viewLocked() View {
	now := m.now()
	v := View{
		Mode:                m.state.Mode(),
		Step:                stepName(m.state),
		Title:               m.state.Title(),
		Subtitle:            m.state.Subtitle(),
		Filled:              len(m.state.Entry()),
		Message:             m.message,
		Attempts:            m.retry.Attempts,
		PinSet:              m.pinSet,
		BiometricsAvailable: m.bioAvailable,
	}
	if m.retry.Locked(now) {
		secs := seconds(m.retry.Remaining(now))
		v.Locked = true
		v.RemainingSeconds = secs
		v.Title = "Account Locked"
		v.Subtitle = fmt.Sprintf("Too many incorrect attempts. Try again in %ds.", secs)
	}
	_, login := m.state.(LoginEntry)
	v.CanReset = login && m.pinSet && !v.Locked
	return v
}

func stepName(s State) string {
	switch s.(type) {
	case CreateEntry:
		return "create_entry"
	case CreateConfirm:
		return "create_confirm"
	case LoginEntry:
		return "login_entry"
	case ResetOld:
		return "reset_old"
	case ResetEntry:
		return "reset_entry"
	case ResetConfirm:
		return "reset_confirm"
	}
	return "loading"
}
