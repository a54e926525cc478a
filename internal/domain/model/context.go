package model

// Context identifies the physical Asterisk peer that produced an event.
// Handlers receive it so replies can be routed back to the originating node.
// It is a value type; no long-lived structure owns one.
type Context struct {
	AsteriskID string
}

func NewContext(asteriskID string) Context {
	return Context{AsteriskID: asteriskID}
}

// StasisEvent is the dispatch-level view of an inbound ARI event: which
// Asterisk produced it and which application it targets.
type StasisEvent struct {
	AsteriskID      string
	ApplicationName string
}

func NewStasisEvent(asteriskID, applicationName string) StasisEvent {
	return StasisEvent{
		AsteriskID:      asteriskID,
		ApplicationName: applicationName,
	}
}
