package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tools.zach/dev/loopchat/internal/config"
	"tools.zach/dev/loopchat/internal/device"
	"tools.zach/dev/loopchat/internal/packet"
	"tools.zach/dev/loopchat/internal/prompt"
)

var local = &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 50123}

// ///////////////////////////////////////////////
// sender Tests
// ///////////////////////////////////////////////

func TestSenderEncodeRaw(t *testing.T) {
	s := sender{mode: prompt.Raw, local: local}
	got, err := s.encode("hello")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestSenderEncodePacket(t *testing.T) {
	s := sender{mode: prompt.Packet, id: "alice", local: local}
	got, err := s.encode("hi")
	require.NoError(t, err)

	packets, err := packet.DecodeAll(got)
	require.NoError(t, err)
	require.Len(t, packets, 1)
	assert.Equal(t, "alice", packets[0].ID)
	assert.Equal(t, "hi", packets[0].Data)
}

func TestSenderEncodeSpec(t *testing.T) {
	s := sender{mode: prompt.Raw, local: local}
	got, err := s.encode(specCommand)
	require.NoError(t, err)

	var spec device.Spec
	require.NoError(t, json.Unmarshal(got, &spec))
	assert.Equal(t, "127.0.0.1", spec.IPAddr)
	assert.Equal(t, uint16(50123), spec.Port)
	assert.Equal(t, device.StatusActive, spec.Status)
	assert.NotEmpty(t, spec.ID)
}

// ///////////////////////////////////////////////
// newSender Tests
// ///////////////////////////////////////////////

func TestNewSender_Terminal(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.ClientConfig
		input    string
		wantMode prompt.Mode
		wantID   string
	}{
		{"configured raw", config.ClientConfig{Mode: config.ModeRaw}, "", prompt.Raw, ""},
		{"configured packet and id", config.ClientConfig{Mode: config.ModePacket, ID: "bob"}, "", prompt.Packet, "bob"},
		{"configured packet asks id", config.ClientConfig{Mode: config.ModePacket}, "carol\n", prompt.Packet, "carol"},
		{"ask packet", config.ClientConfig{Mode: config.ModeAsk}, "1\ndave\n", prompt.Packet, "dave"},
		{"ask string", config.ClientConfig{Mode: config.ModeAsk}, "2\n", prompt.Raw, ""},
		{"ask packet empty id", config.ClientConfig{Mode: config.ModeAsk}, "1\n\n", prompt.Packet, local.String()},
		{"ask at end of input", config.ClientConfig{Mode: config.ModeAsk}, "", prompt.Raw, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := prompt.New(strings.NewReader(tt.input), io.Discard, prompt.WithInteractive(true))
			s, err := newSender(tt.cfg, p, local)
			require.NoError(t, err)
			assert.Equal(t, tt.wantMode, s.mode)
			assert.Equal(t, tt.wantID, s.id)
		})
	}
}

func TestNewSender_PipedInput(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.ClientConfig
		wantMode prompt.Mode
		wantID   string
	}{
		{"ask becomes raw", config.ClientConfig{Mode: config.ModeAsk}, prompt.Raw, ""},
		{"packet without id uses local address", config.ClientConfig{Mode: config.ModePacket}, prompt.Packet, local.String()},
		{"packet with configured id", config.ClientConfig{Mode: config.ModePacket, ID: "bob"}, prompt.Packet, "bob"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := prompt.New(strings.NewReader("1\nfirst message\n"), &out)
			s, err := newSender(tt.cfg, p, local)
			require.NoError(t, err)
			assert.Equal(t, tt.wantMode, s.mode)
			assert.Equal(t, tt.wantID, s.id)
			assert.NotContains(t, out.String(), "Chat Type")
			assert.NotContains(t, out.String(), "Enter client id")

			// Nothing was consumed; every line is message text.
			line, err := p.Line()
			require.NoError(t, err)
			assert.Equal(t, "1", line)
		})
	}
}

func TestNewSenderBadMode(t *testing.T) {
	p := prompt.New(strings.NewReader(""), io.Discard)
	_, err := newSender(config.ClientConfig{Mode: "morse"}, p, local)
	assert.Error(t, err)
}

// ///////////////////////////////////////////////
// sendLoop Tests
// ///////////////////////////////////////////////

func TestSendLoopQueuesUntilQuit(t *testing.T) {
	p := prompt.New(strings.NewReader("one\ntwo\nq\nthree\n"), io.Discard, prompt.WithInteractive(true))
	out := make(chan []byte, 4)
	var stdout bytes.Buffer

	quit := sendLoop(p, sender{mode: prompt.Raw}, out, make(chan struct{}), &stdout)
	assert.True(t, quit)
	require.Len(t, out, 2)
	assert.Equal(t, []byte("one"), <-out)
	assert.Equal(t, []byte("two"), <-out)
	assert.Contains(t, stdout.String(), `"q" : for exit`)
}

func TestSendLoopEndOfInputQuits(t *testing.T) {
	p := prompt.New(strings.NewReader("last"), io.Discard)
	out := make(chan []byte, 1)
	var stdout bytes.Buffer

	assert.True(t, sendLoop(p, sender{mode: prompt.Raw}, out, make(chan struct{}), &stdout))
	assert.Equal(t, []byte("last"), <-out)
	assert.Empty(t, stdout.String(), "no usage banner for piped input")
}

func TestSendLoopStopsWhenHandlerDone(t *testing.T) {
	p := prompt.New(strings.NewReader("hello\n"), io.Discard)
	done := make(chan struct{})
	close(done)

	assert.False(t, sendLoop(p, sender{mode: prompt.Raw}, make(chan []byte, 1), done, io.Discard))
}

// ///////////////////////////////////////////////
// overrides Tests
// ///////////////////////////////////////////////

func TestOverridesApply(t *testing.T) {
	cfg := config.DefaultConfig()
	o := overrides{address: "127.0.0.1:9090", mode: "packet", id: "eve"}
	require.NoError(t, o.apply(cfg))
	assert.Equal(t, "127.0.0.1:9090", cfg.Client.Address)
	assert.Equal(t, config.ModePacket, cfg.Client.Mode)
	assert.Equal(t, "eve", cfg.Client.ID)
	assert.Equal(t, "tcp", cfg.Client.Network)

	assert.Error(t, overrides{mode: "morse"}.apply(config.DefaultConfig()))
}
