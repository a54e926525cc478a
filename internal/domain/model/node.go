package model

type NodeStatus int16

const (
	StatusOK NodeStatus = iota + 1
	StatusKO
)

func (s NodeStatus) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusKO:
		return "KO"
	default:
		return "unknown"
	}
}

// AsteriskNode is a catalog-observed media-server peer. Nodes are built fresh
// on every catalog poll and replaced wholesale in the watch loop's shadow
// table, never mutated in place.
type AsteriskNode struct {
	ID      string
	Address string
	Port    int
	Status  NodeStatus
}
