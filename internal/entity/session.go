package entity

type SessionState uint8

const (
	SessionOpen   SessionState = 0
	SessionClosed SessionState = 1
)

var SessionStateMap = map[SessionState]string{
	SessionOpen:   "open",
	SessionClosed: "closed",
}

func (s SessionState) String() string {
	return SessionStateMap[s]
}

// SessionStats are the per-connection counters reported when a session closes.
type SessionStats struct {
	FramesReceived  uint64
	FramesProcessed uint64
	FramesDropped   uint64
}
