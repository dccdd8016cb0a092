package chat

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"

	"tools.zach/dev/loopchat/internal/packet"
)

// ///////////////////////////////////////////////
// Message
// ///////////////////////////////////////////////

// Message is one decoded chunk of inbound data.
type Message struct {
	// Peer labels the remote end, usually its port.
	Peer string
	// Sender is the packet id; empty for raw text.
	Sender string
	// Text is the payload.
	Text string
	// Structured is true when Text came from a decoded [packet.Packet].
	Structured bool
}

// String renders m the way both ends print it:
//
//	#54321(msg): [alice] hi
//	#54321(str): hi
func (m Message) String() string {
	if !m.Structured {
		return fmt.Sprintf("#%5s(str): %s", m.Peer, m.Text)
	}
	if m.Sender == "" {
		return fmt.Sprintf("#%5s(msg): %s", m.Peer, m.Text)
	}
	return fmt.Sprintf("#%5s(msg): [%s] %s", m.Peer, m.Sender, m.Text)
}

// Decode turns the bytes of one read into messages. Well-formed packet frames
// yield one structured message each; anything else becomes a single raw-text
// message, with invalid UTF-8 replaced.
func Decode(peer string, data []byte) []Message {
	packets, err := packet.DecodeAll(data)
	if err != nil {
		return []Message{{Peer: peer, Text: toValidText(data)}}
	}
	msgs := make([]Message, 0, len(packets))
	for _, p := range packets {
		msgs = append(msgs, Message{Peer: peer, Sender: p.ID, Text: p.Data, Structured: true})
	}
	return msgs
}

// peerLabel returns the remote port for TCP peers and the address string
// otherwise.
func peerLabel(addr net.Addr) string {
	if addr == nil {
		return "?"
	}
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return strconv.Itoa(tcp.Port)
	}
	return addr.String()
}

// ///////////////////////////////////////////////
// Policies
// ///////////////////////////////////////////////

// Policy is how a handler responds to an inbound message. w writes back to
// the peer; the handler flushes it after Respond returns. A non-nil error
// ends the handler loop.
type Policy interface {
	Respond(w io.Writer, m Message) error
}

// Echo is the server policy: print the message and write its text back to
// the same peer.
type Echo struct {
	// Out receives the printed line; nil discards it.
	Out io.Writer
}

// Respond implements [Policy].
func (e Echo) Respond(w io.Writer, m Message) error {
	printLine(e.Out, m)
	if _, err := io.WriteString(w, m.Text); err != nil {
		return fmt.Errorf("writing echo: %w", err)
	}
	return nil
}

// Print is the client policy: print the message and send nothing back.
type Print struct {
	// Out receives the printed line; nil discards it.
	Out io.Writer
}

// Respond implements [Policy].
func (p Print) Respond(_ io.Writer, m Message) error {
	printLine(p.Out, m)
	return nil
}

// outMu keeps lines from concurrent handlers sharing one writer whole.
var outMu sync.Mutex

func printLine(out io.Writer, m Message) {
	if out == nil {
		return
	}
	outMu.Lock()
	defer outMu.Unlock()
	fmt.Fprintln(out, m.String())
}

// toValidText converts b to a string, replacing invalid UTF-8.
func toValidText(b []byte) string {
	return strings.ToValidUTF8(string(b), "\uFFFD")
}
