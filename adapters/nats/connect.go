// Package nats adapts NATS JetStream as durable storage: an event store on
// a JetStream stream and a key-value store backing mementos.
package nats

import (
	"os"
	"sync"

	natsgo "github.com/nats-io/nats.go"
)

// Connector opens a NATS connection and returns it together with the func
// that releases it. Components take a Connector instead of a *Conn so tests
// can hand out container-backed connections and production can share one.
type Connector func() (*natsgo.Conn, func(), error)

// ReuseConnection wraps a Connector so all callers lease one shared
// connection. The underlying connection closes once every lease was
// released; a later call dials again.
func ReuseConnection(connect Connector) Connector {
	var (
		mu          sync.Mutex
		shared      *natsgo.Conn
		closeShared func()
		leases      int
	)

	release := func() {
		mu.Lock()
		defer mu.Unlock()
		leases--
		if leases == 0 {
			closeShared()
			shared = nil
		}
	}

	return func() (*natsgo.Conn, func(), error) {
		mu.Lock()
		defer mu.Unlock()
		if shared == nil {
			nc, cf, err := connect()
			if err != nil {
				return nil, nil, err
			}
			shared, closeShared = nc, cf
		}
		leases++
		return shared, release, nil
	}
}

// ConnectURL dials natsURL with a capped number of reconnects. Extra options
// are handed to the client as-is.
func ConnectURL(natsURL string, opts ...natsgo.Option) Connector {
	return func() (*natsgo.Conn, func(), error) {
		all := append([]natsgo.Option{natsgo.MaxReconnects(3)}, opts...)
		nc, err := natsgo.Connect(natsURL, all...)
		if err != nil {
			return nil, nil, err
		}
		return nc, nc.Close, nil
	}
}

// ConnectDefault dials NATS_URL when set, the library default otherwise.
func ConnectDefault() Connector {
	url := os.Getenv("NATS_URL")
	if url == "" {
		url = natsgo.DefaultURL
	}
	return ConnectURL(url)
}
