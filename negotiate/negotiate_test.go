package negotiate

import (
	"bytes"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/atsika/luarpc/rpcerr"
)

type memTransport struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

// ReadExact waits (up to one second) for len(p) bytes to be written, so
// the two halves of a pairTransport can run on separate goroutines the way
// the two ends of a socket do.
func (m *memTransport) ReadExact(p []byte) error {
	deadline := time.Now().Add(time.Second)
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return rpcerr.Wrap(rpcerr.KindClosed, "closed", nil)
		}
		if m.buf.Len() >= len(p) || time.Now().After(deadline) {
			_, err := io.ReadFull(&m.buf, p)
			m.mu.Unlock()
			if err != nil {
				return rpcerr.Wrap(rpcerr.KindEOF, "eof", err)
			}
			return nil
		}
		m.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
}
func (m *memTransport) WriteAll(p []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buf.Write(p)
	return nil
}
func (m *memTransport) Readable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf.Len() > 0
}
func (m *memTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
func (m *memTransport) LocalAddr() net.Addr  { return fakeAddr{} }
func (m *memTransport) RemoteAddr() net.Addr { return fakeAddr{} }

type fakeAddr struct{}

func (fakeAddr) Network() string { return "mem" }
func (fakeAddr) String() string  { return "mem" }

// pairTransport stitches two one-directional memTransports into a duplex
// Transport for one side of a negotiation.
type pairTransport struct {
	w *memTransport
	r *memTransport
}

func (p pairTransport) ReadExact(b []byte) error  { return p.r.ReadExact(b) }
func (p pairTransport) WriteAll(b []byte) error   { return p.w.WriteAll(b) }
func (p pairTransport) Readable() bool            { return p.r.Readable() }
func (p pairTransport) Close() error               { return nil }
func (p pairTransport) LocalAddr() net.Addr        { return fakeAddr{} }
func (p pairTransport) RemoteAddr() net.Addr       { return fakeAddr{} }

// Scenario 1: homogeneous little-endian 8-byte-float peers exchange
// exactly 16 bytes total and agree on a fully little-endian, float,
// 8-byte session.
func TestNegotiateDuplex(t *testing.T) {
	toServer := &memTransport{}
	toClient := &memTransport{}
	clientSide := pairTransport{w: toServer, r: toClient}
	serverSide := pairTransport{w: toClient, r: toServer}

	clientLocal := Local{Little: true, LNumBytes: 8, Intnum: false}
	serverLocal := Local{Little: true, LNumBytes: 8, Intnum: false}

	type result struct {
		profile Profile
		err     error
	}
	serverDone := make(chan result, 1)
	go func() {
		p, err := Server(serverSide, serverLocal)
		serverDone <- result{p, err}
	}()

	clientProfile, err := Client(clientSide, clientLocal)
	if err != nil {
		t.Fatalf("client negotiate: %v", err)
	}
	sr := <-serverDone
	if sr.err != nil {
		t.Fatalf("server negotiate: %v", sr.err)
	}

	if !clientProfile.NetLittle || !sr.profile.NetLittle {
		t.Fatalf("expected agreed little-endian wire, got client=%v server=%v", clientProfile, sr.profile)
	}
	if clientProfile.LNumBytes != 8 || sr.profile.LNumBytes != 8 {
		t.Fatalf("expected width 8, got client=%d server=%d", clientProfile.LNumBytes, sr.profile.LNumBytes)
	}
	if clientProfile.NetIntnum || sr.profile.NetIntnum {
		t.Fatalf("expected float wire, got client=%v server=%v", clientProfile.NetIntnum, sr.profile.NetIntnum)
	}
	if toServer.buf.Len() != 0 || toClient.buf.Len() != 0 {
		t.Fatalf("expected exactly 8 bytes each way with nothing left unread")
	}
}

// Scenario 5: width downgrade picks the minimum of the two proposals.
func TestNegotiateWidthDowngrade(t *testing.T) {
	toServer := &memTransport{}
	toClient := &memTransport{}
	clientSide := pairTransport{w: toServer, r: toClient}
	serverSide := pairTransport{w: toClient, r: toServer}

	serverDone := make(chan Profile, 1)
	go func() {
		p, _ := Server(serverSide, Local{Little: true, LNumBytes: 4, Intnum: false})
		serverDone <- p
	}()

	clientProfile, err := Client(clientSide, Local{Little: true, LNumBytes: 8, Intnum: false})
	if err != nil {
		t.Fatalf("client negotiate: %v", err)
	}
	serverProfile := <-serverDone

	if clientProfile.LNumBytes != 4 || serverProfile.LNumBytes != 4 {
		t.Fatalf("expected negotiated width 4, got client=%d server=%d", clientProfile.LNumBytes, serverProfile.LNumBytes)
	}
}

// Disagreeing byte order must resolve to big-endian on the wire.
func TestNegotiateEndianDisagreement(t *testing.T) {
	toServer := &memTransport{}
	toClient := &memTransport{}
	clientSide := pairTransport{w: toServer, r: toClient}
	serverSide := pairTransport{w: toClient, r: toServer}

	serverDone := make(chan Profile, 1)
	go func() {
		p, _ := Server(serverSide, Local{Little: false, LNumBytes: 8, Intnum: false})
		serverDone <- p
	}()

	clientProfile, err := Client(clientSide, Local{Little: true, LNumBytes: 8, Intnum: false})
	if err != nil {
		t.Fatalf("client negotiate: %v", err)
	}
	serverProfile := <-serverDone

	if clientProfile.NetLittle || serverProfile.NetLittle {
		t.Fatalf("expected big-endian wire on disagreement, got client=%v server=%v", clientProfile.NetLittle, serverProfile.NetLittle)
	}
}

func TestNegotiateBadMagic(t *testing.T) {
	tr := &memTransport{}
	tr.buf.Write([]byte{'X', 'X', 'X', 'X', ProtocolVersion, 1, 8, 0})
	_, err := Server(tr, Local{Little: true, LNumBytes: 8, Intnum: false})
	if err == nil {
		t.Fatal("expected protocol error on bad magic")
	}
	ge, ok := err.(*rpcerr.Error)
	if !ok || ge.Kind != rpcerr.KindProtocol {
		t.Fatalf("expected graded Protocol error, got %v", err)
	}
}
