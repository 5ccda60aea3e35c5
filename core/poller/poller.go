// Package poller abstracts the platform I/O multiplexer. Every dispatch
// worker owns exactly one Poller instance watching its listener and its
// accepted connections; instances are never shared between workers.
package poller

// Poller is the I/O multiplexing interface
type Poller interface {
	Add(fd int) error
	Remove(fd int) error
	Wait(timeout int) ([]int, error)
	Close() error
}
