package transport

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"gochannel/internal/auth"
	"gochannel/internal/logging"
)

// Connection timing constants, matching the teacher's own broker
// (writeWait = 10 * time.Second, pong wait = 2 * ping interval).
const (
	writeWait        = 10 * time.Second
	pingInterval     = 25 * time.Second
	pongWaitMultiple = 2
	pongWait         = pongWaitMultiple * pingInterval
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WebsocketTransport is the real, networked Transport: one *websocket.Conn
// per peer, each driven by a read pump and a write pump goroutine, in the
// shape of the teacher's main.go Client handling.
type WebsocketTransport struct {
	log       *logging.Logger
	issuer    *auth.TicketIssuer
	verifier  *auth.TicketVerifier
	bandwidth *BandwidthRegulator

	mu    sync.Mutex
	conns map[string]*wsPeerConn
	inbox chan Inbound

	closeOnce sync.Once
	closed    chan struct{}
}

type wsPeerConn struct {
	peerID string
	conn   *websocket.Conn
	send   chan []byte
}

// NewWebsocketTransport constructs a transport that verifies admission
// tickets with verifier. issuer is optional and only needed by a side that
// also issues tickets (e.g. a rendezvous/matchmaking component); it is not
// used by Send/Recv/ConnectByTicket themselves.
func NewWebsocketTransport(verifier *auth.TicketVerifier, issuer *auth.TicketIssuer, log *logging.Logger) *WebsocketTransport {
	if log == nil {
		log = logging.NewTestLogger()
	}
	return &WebsocketTransport{
		log:       log,
		issuer:    issuer,
		verifier:  verifier,
		bandwidth: NewBandwidthRegulator(DefaultBandwidthLimitBytesPerSecond, nil),
		conns:     make(map[string]*wsPeerConn),
		inbox:     make(chan Inbound, 256),
		closed:    make(chan struct{}),
	}
}

// WithBandwidthRegulator overrides the transport's default outbound
// throughput cap.
func (t *WebsocketTransport) WithBandwidthRegulator(r *BandwidthRegulator) *WebsocketTransport {
	if r != nil {
		t.bandwidth = r
	}
	return t
}

// ServeHTTP upgrades an incoming request to a websocket connection,
// verifying the ticket carried in the "ticket" query parameter before the
// upgrade completes admission (mirrors the teacher's
// hmacWebsocketAuthenticator.Authenticate, generalized from an HMAC token
// to the channel's own ticket format).
func (t *WebsocketTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	peerID, _, err := auth.VerifyTicket(t.verifier, ticket)
	if err != nil {
		http.Error(w, "invalid ticket", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.log.Warn("websocket upgrade failed", logging.String("peer_id", peerID), logging.Error(err))
		return
	}
	t.adopt(peerID, conn)
}

// DialAndJoin dials a remote channel endpoint as a client, presenting
// ticket as the admission credential, and registers the resulting
// connection under the peer id the ticket grants, as verified locally with
// this transport's own verifier.
func (t *WebsocketTransport) DialAndJoin(ctx context.Context, rawURL, ticket string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("ticket", ticket)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return "", err
	}

	peerID, _, err := auth.VerifyTicket(t.verifier, ticket)
	if err != nil {
		conn.Close()
		return "", err
	}
	t.adopt(peerID, conn)
	return peerID, nil
}

func (t *WebsocketTransport) adopt(peerID string, conn *websocket.Conn) {
	pc := &wsPeerConn{peerID: peerID, conn: conn, send: make(chan []byte, 64)}

	t.mu.Lock()
	if old, ok := t.conns[peerID]; ok {
		close(old.send)
		old.conn.Close()
	}
	t.conns[peerID] = pc
	t.mu.Unlock()

	go t.readPump(pc)
	go t.writePump(pc)
}

// readPump mirrors the teacher's Client read loop: blocking ReadMessage
// calls forwarded onto a shared channel, until the connection errors out.
func (t *WebsocketTransport) readPump(pc *wsPeerConn) {
	defer t.dropPeer(pc.peerID, pc.conn)

	pc.conn.SetReadDeadline(time.Now().Add(pongWait))
	pc.conn.SetPongHandler(func(string) error {
		pc.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := pc.conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case t.inbox <- Inbound{PeerID: pc.peerID, Payload: payload}:
		case <-t.closed:
			return
		}
	}
}

// writePump mirrors the teacher's Client write loop: drains pc.send,
// applying writeWait per message, and pings on pingInterval to keep the
// peer's pong deadline alive.
func (t *WebsocketTransport) writePump(pc *wsPeerConn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer pc.conn.Close()

	for {
		select {
		case msg, ok := <-pc.send:
			if !ok {
				pc.conn.SetWriteDeadline(time.Now().Add(writeWait))
				pc.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			for !t.bandwidth.AllowFrame(pc.peerID, msg) {
				time.Sleep(5 * time.Millisecond)
			}
			pc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := pc.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			pc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := pc.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-t.closed:
			return
		}
	}
}

func (t *WebsocketTransport) dropPeer(peerID string, conn *websocket.Conn) {
	t.mu.Lock()
	if pc, ok := t.conns[peerID]; ok && pc.conn == conn {
		delete(t.conns, peerID)
		close(pc.send)
	}
	t.mu.Unlock()
	t.bandwidth.Forget(peerID)
}

// Send enqueues payload on peerID's write pump. It returns an error
// immediately if no connection for peerID is currently registered; it
// does not block waiting for one to appear.
func (t *WebsocketTransport) Send(peerID string, payload []byte) error {
	t.mu.Lock()
	pc, ok := t.conns[peerID]
	t.mu.Unlock()
	if !ok {
		return errors.New("transport: no connection for peer " + peerID)
	}
	select {
	case pc.send <- payload:
		return nil
	default:
		return errors.New("transport: send buffer full for peer " + peerID)
	}
}

// Recv returns the shared inbound channel; frames from every connected
// peer are multiplexed onto it, tagged by PeerID.
func (t *WebsocketTransport) Recv() <-chan Inbound { return t.inbox }

// ConnectByTicket verifies ticket and returns the peer id it grants. It
// does not itself establish a connection — pair it with DialAndJoin (to
// dial out) or ServeHTTP (to accept) for an actual socket.
func (t *WebsocketTransport) ConnectByTicket(ctx context.Context, ticket string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	peerID, _, err := auth.VerifyTicket(t.verifier, ticket)
	if err != nil {
		return "", err
	}
	return peerID, nil
}

// Close tears down every connection and stops accepting further traffic.
func (t *WebsocketTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
		t.mu.Lock()
		for _, pc := range t.conns {
			pc.conn.Close()
		}
		t.conns = make(map[string]*wsPeerConn)
		t.mu.Unlock()
	})
	return nil
}

var _ Transport = (*WebsocketTransport)(nil)
