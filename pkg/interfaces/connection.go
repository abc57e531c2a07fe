package interfaces

// Sink is the outbound side of one transport connection.
type Sink interface {
	// ID returns the transport-level connection identity.
	ID() string

	// Send queues an encoded frame without blocking. An error means the frame
	// was not queued (connection closed or its buffer is full).
	Send(frame []byte) error

	Close() error
}
