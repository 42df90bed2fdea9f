package hfp

// Listener receives session lifecycle and indicator notifications.
// Sessions keep an ordinary slice of listeners (spec §9: "a session's
// 'known/claimed' owners ... are ordinary listener sets on the
// session"). Embed BaseListener to implement only the methods you
// need.
type Listener interface {
	OnConnected()
	OnDisconnected(err error)
	OnIndicatorChanged(name string, value int)
	OnCallStateChanged(state CallState)
	OnCallingLineIdentity(cli CallingLineIdentity)
	OnSpeakerGainChanged(level int)
	OnMicGainChanged(level int)
}

// BaseListener is a no-op Listener implementation to embed.
type BaseListener struct{}

func (BaseListener) OnConnected()                             {}
func (BaseListener) OnDisconnected(error)                     {}
func (BaseListener) OnIndicatorChanged(string, int)           {}
func (BaseListener) OnCallStateChanged(CallState)             {}
func (BaseListener) OnCallingLineIdentity(CallingLineIdentity) {}
func (BaseListener) OnSpeakerGainChanged(int)                 {}
func (BaseListener) OnMicGainChanged(int)                     {}

func (s *Session) AddListener(l Listener) {
	s.listeners = append(s.listeners, l)
}

func (s *Session) RemoveListener(l Listener) {
	for i, existing := range s.listeners {
		if existing == l {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}

func (s *Session) notifyConnected() {
	for _, l := range s.listeners {
		l.OnConnected()
	}
}

func (s *Session) notifyDisconnected(err error) {
	for _, l := range s.listeners {
		l.OnDisconnected(err)
	}
}

func (s *Session) notifyIndicator(name string, value int) {
	for _, l := range s.listeners {
		l.OnIndicatorChanged(name, value)
	}
}

func (s *Session) notifyCallState() {
	cs := s.CallState()
	for _, l := range s.listeners {
		l.OnCallStateChanged(cs)
	}
}

func (s *Session) notifyCLI(cli CallingLineIdentity) {
	for _, l := range s.listeners {
		l.OnCallingLineIdentity(cli)
	}
}

func (s *Session) notifySpeakerGain(level int) {
	for _, l := range s.listeners {
		l.OnSpeakerGainChanged(level)
	}
}

func (s *Session) notifyMicGain(level int) {
	for _, l := range s.listeners {
		l.OnMicGainChanged(level)
	}
}
