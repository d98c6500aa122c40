package core

// Conn is a single client connection as the registry sees it. The
// transport layer owns the real socket; the registry only needs an
// identity, a way to push messages and a way to drop the peer.
// Implementations must allow concurrent Send calls and must tolerate
// Close being called more than once.
type Conn interface {
	// ID returns a stable identifier unique across all connections.
	ID() string
	// Send marshals msg and writes it to the peer.
	Send(msg any) error
	// Close terminates the connection, telling the peer why.
	Close(reason string) error
}
