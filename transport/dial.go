package transport

import (
	"context"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// CachingDialer is the default PeerDialer: connections are established
// lazily on first use, keyed by peer node_id, and cached for reuse (spec
// §6 "Connections are established lazily on first use, keyed by peer IP,
// and cached"), mirroring go.ref's mounttable client's address-keyed
// connection cache.
type CachingDialer struct {
	port string

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

// NewCachingDialer creates a CachingDialer. port is appended to each peer
// node_id to form the dial target when the node_id is a bare host (spec
// §3's node_id is "typically an IP"; trace2e nodes all listen on the same
// configured M2M port).
func NewCachingDialer(port string) *CachingDialer {
	return &CachingDialer{port: port, conns: make(map[string]*grpc.ClientConn)}
}

// Dial returns the cached connection to peerNodeID, dialing one if none
// exists yet.
func (d *CachingDialer) Dial(ctx context.Context, peerNodeID string) (*grpc.ClientConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if conn, ok := d.conns[peerNodeID]; ok {
		return conn, nil
	}

	target := peerNodeID
	if _, _, err := net.SplitHostPort(peerNodeID); err != nil {
		target = net.JoinHostPort(peerNodeID, d.port)
	}
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	d.conns[peerNodeID] = conn
	return conn, nil
}

// Close tears down every cached connection.
func (d *CachingDialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var firstErr error
	for peer, conn := range d.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(d.conns, peer)
	}
	return firstErr
}
