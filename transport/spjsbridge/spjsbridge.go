// Package spjsbridge adapts a serial-port-json-server-compatible network
// bridge into the transport.Transport contract. It is the networked
// sibling of transport/serialport, for when the process driving the
// scheduler is not on the same host as the serial device. The wire
// protocol (newline-delimited JSON over a WebSocket, "list"/"open"/"sendjson"
// text commands) is carried over from the teacher's spjs.Client/spjs.Port:
// outgoing lines are wrapped in the same per-command "Id"-tagged SendJSON
// envelope the teacher builds in Port.sendCommand, rather than a bare text
// command, since SPJS only queues writes it receives in that shape.
package spjsbridge

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/net/websocket"

	"github.com/atgocore/atcore/transport"
)

// Bridge is a transport.Transport that proxies through an SPJS-compatible
// server reachable at url (e.g. "ws://localhost:8989/ws").
type Bridge struct {
	url string
}

// New returns a Bridge pointed at an SPJS-compatible server.
func New(url string) *Bridge { return &Bridge{url: url} }

type serialPort struct {
	Name   string `json:"Name"`
	IsOpen bool   `json:"IsOpen"`
}

type frame struct {
	SerialPorts []serialPort `json:"SerialPorts,omitempty"`
	P           string       `json:"P,omitempty"`
	D           string       `json:"D,omitempty"`
	Cmd         string       `json:"Cmd,omitempty"`
}

// sendJSON and sendJSONData mirror the teacher's SendJSON/SendJSONData
// (spjs/client.go) — the envelope SPJS requires for queued writes, each
// line tagged with a unique "Id" so SPJS can report per-command
// completion. This library's ack model comes from the firmware's own
// reply text arriving as a "D" frame, so the Complete/Error callback SPJS
// sends back for each ID is not consumed here; it simply falls outside
// handle.readLoop's P/D filter.
type sendJSON struct {
	Port string         `json:"P"`
	Data []sendJSONData `json:"Data"`
}
type sendJSONData struct {
	Data string `json:"D"`
	ID   string `json:"Id"`
}

// Enumerate asks the bridge to list its serial ports and waits for the
// first "SerialPorts" payload in reply.
func (b *Bridge) Enumerate() ([]string, error) {
	ws, err := websocket.Dial(b.url, "ws", "http://localhost")
	if err != nil {
		return nil, transport.NewError("enumerate", transport.ErrIO, err)
	}
	defer ws.Close()

	if _, err := io.WriteString(ws, "list"); err != nil {
		return nil, transport.NewError("enumerate", transport.ErrIO, err)
	}

	scan := bufio.NewScanner(ws)
	for scan.Scan() {
		var f frame
		if err := json.Unmarshal(scan.Bytes(), &f); err != nil {
			continue
		}
		if f.SerialPorts == nil {
			continue
		}
		names := make([]string, len(f.SerialPorts))
		for i, p := range f.SerialPorts {
			names[i] = p.Name
		}
		return names, nil
	}
	if err := scan.Err(); err != nil {
		return nil, transport.NewError("enumerate", transport.ErrIO, err)
	}
	return nil, transport.NewError("enumerate", transport.ErrIO, io.ErrUnexpectedEOF)
}

// Open dials the bridge and asks it to open port at baud, mirroring the
// teacher's Port.open ("open <name> <baud> <bufferAlgorithm>").
func (b *Bridge) Open(ctx context.Context, port string, baud int) (transport.Handle, error) {
	ws, err := websocket.Dial(b.url, "ws", "http://localhost")
	if err != nil {
		return nil, transport.NewError("open", transport.ErrIO, err)
	}

	if _, err := fmt.Fprintf(ws, "open %s %d default", port, baud); err != nil {
		ws.Close()
		return nil, transport.NewError("open", transport.ErrIO, err)
	}

	h := &handle{ws: ws, port: port, lines: make(chan string, 64), baseID: newBaseID()}
	go h.readLoop()
	return h, nil
}

// newBaseID mirrors the teacher's NewClient: a random per-connection prefix
// so command IDs are unique across reconnects without a central counter.
func newBaseID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return base64.StdEncoding.EncodeToString(buf)
}

type handle struct {
	ws   *websocket.Conn
	port string

	mu    sync.Mutex
	lines chan string

	baseID string
	seq    uint32
}

func (h *handle) readLoop() {
	defer close(h.lines)
	scan := bufio.NewScanner(h.ws)
	for scan.Scan() {
		var f frame
		if err := json.Unmarshal(scan.Bytes(), &f); err != nil {
			continue
		}
		if f.P != h.port || f.Cmd != "" || f.D == "" {
			continue
		}
		h.lines <- strings.TrimRight(f.D, "\r\n")
	}
}

func (h *handle) Write(p []byte) error {
	id := atomic.AddUint32(&h.seq, 1)
	payload, err := json.Marshal(sendJSON{
		Port: h.port,
		Data: []sendJSONData{{
			Data: string(p),
			ID:   fmt.Sprintf("%s-%d", h.baseID, id),
		}},
	})
	if err != nil {
		return transport.NewError("write", transport.ErrIO, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := io.WriteString(h.ws, "sendjson "+string(payload)); err != nil {
		return transport.NewError("write", transport.ErrIO, err)
	}
	return nil
}

func (h *handle) Lines() <-chan string { return h.lines }

func (h *handle) Close() error {
	err := h.ws.Close()
	if err != nil {
		return transport.NewError("close", transport.ErrClosed, err)
	}
	return nil
}
