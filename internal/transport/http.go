package transport

import (
	"bytes"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/coreraft/raft/raft"
)

// HTTPTransport is a raft.Transport over plain HTTP/JSON, the same stack
// the teacher's RaftClient/HTTPHandler use, generalized to one endpoint
// and one envelope type (see wire.go) instead of three fixed endpoints.
type HTTPTransport struct {
	addresses map[raft.MemberId]string
	client    *http.Client
	inbox     raft.Inbox
	server    *http.Server
	logger    *log.Logger
}

// NewHTTPTransport returns a transport that dials addresses[member] for
// outbound sends and listens on listenAddr for inbound ones.
func NewHTTPTransport(listenAddr string, addresses map[raft.MemberId]string, logger *log.Logger) *HTTPTransport {
	return &HTTPTransport{
		addresses: addresses,
		client:    &http.Client{Timeout: 200 * time.Millisecond},
		server:    &http.Server{Addr: listenAddr},
		logger:    logger,
	}
}

func (t *HTTPTransport) RegisterInbox(inbox raft.Inbox) { t.inbox = inbox }

func (t *HTTPTransport) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/raft/message", t.handleMessage)
	t.server.Handler = mux

	ln, err := net.Listen("tcp", t.server.Addr)
	if err != nil {
		return &raft.FatalError{Op: "Transport.Start", Err: err}
	}
	go func() {
		if err := t.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			t.logger.Printf("transport: serve error: %v", err)
		}
	}()
	return nil
}

func (t *HTTPTransport) Close() error {
	return t.server.Close()
}

func (t *HTTPTransport) Send(to raft.MemberId, msg raft.Message) error {
	addr, ok := t.addresses[to]
	if !ok {
		return fmt.Errorf("transport: no address for %s", to)
	}

	data, err := encodeEnvelope(msg)
	if err != nil {
		return err
	}

	go func() {
		resp, err := t.client.Post("http://"+addr+"/raft/message", "application/json", bytes.NewReader(data))
		if err != nil {
			t.logger.Printf("transport: send to %s failed: %v", to, err)
			return
		}
		resp.Body.Close()
	}()
	return nil
}

func (t *HTTPTransport) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(r.Body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	msg, err := decodeEnvelope(buf.Bytes())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	t.inbox.Enqueue(msg)
	w.WriteHeader(http.StatusAccepted)
}
