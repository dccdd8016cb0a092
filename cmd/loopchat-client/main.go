// Package main implements the interactive loopchat client. Lines typed on
// stdin are sent to the server as raw text or as framed packets, and every
// message the server sends back is printed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"

	"tools.zach/dev/loopchat/internal/app"
	"tools.zach/dev/loopchat/internal/buildinfo"
	"tools.zach/dev/loopchat/internal/chat"
	"tools.zach/dev/loopchat/internal/config"
	"tools.zach/dev/loopchat/internal/device"
	"tools.zach/dev/loopchat/internal/packet"
	"tools.zach/dev/loopchat/internal/pool"
	"tools.zach/dev/loopchat/internal/prompt"
	"tools.zach/dev/loopchat/internal/shutdown"
	"tools.zach/dev/loopchat/internal/transport"
)

// ///////////////////////////////////////////////
// Commands
// ///////////////////////////////////////////////

const (
	// quitCommand ends the session with exit status 1.
	quitCommand = "q"
	// specCommand sends this host's device spec as the message text.
	specCommand = "/spec"
)

// outboundQueue is how many lines may wait for the handler to send them.
const outboundQueue = 16

// ///////////////////////////////////////////////
// Sender
// ///////////////////////////////////////////////

// sender turns typed lines into wire payloads.
type sender struct {
	mode prompt.Mode
	// id is the packet sender id; unused in raw mode.
	id string
	// local is the client end of the connection, reported by /spec.
	local net.Addr
}

// encode returns the payload for line. In packet mode it is one framed
// packet; in raw mode the bytes of the text.
func (s sender) encode(line string) ([]byte, error) {
	text := line
	if line == specCommand {
		spec, err := device.Collect().WithAddr(s.local).JSON()
		if err != nil {
			return nil, err
		}
		text = spec
	}
	if s.mode == prompt.Packet {
		return packet.Encode(packet.New(s.id, text))
	}
	return []byte(text), nil
}

// ///////////////////////////////////////////////
// Session Setup
// ///////////////////////////////////////////////

// overrides holds command-line values that replace the [client] section.
type overrides struct {
	network string
	address string
	mode    string
	id      string
}

func (o overrides) apply(cfg *config.Config) error {
	if o.network != "" {
		cfg.Client.Network = o.network
	}
	if o.address != "" {
		cfg.Client.Address = o.address
	}
	if o.mode != "" {
		cfg.Client.Mode = o.mode
	}
	if o.id != "" {
		cfg.Client.ID = o.id
	}
	return cfg.Validate()
}

// newSender resolves the chat mode and sender id from config, asking through
// p for whatever is not configured. Without a terminal nothing is asked: an
// unconfigured mode is raw and an unconfigured id is the local address.
func newSender(cfg config.ClientConfig, p *prompt.Prompter, local net.Addr) (sender, error) {
	s := sender{mode: prompt.Raw, local: local}

	if cfg.Mode == config.ModeAsk {
		mode, err := p.ChatMode()
		if err != nil && !errors.Is(err, io.EOF) {
			return s, err
		}
		s.mode = mode
	} else {
		mode, err := prompt.ParseMode(cfg.Mode)
		if err != nil {
			return s, err
		}
		s.mode = mode
	}
	if s.mode != prompt.Packet {
		return s, nil
	}

	if cfg.ID != "" {
		s.id = cfg.ID
		return s, nil
	}
	fallback := ""
	if local != nil {
		fallback = local.String()
	}
	id, err := p.ClientID(fallback)
	if err != nil {
		return s, err
	}
	s.id = id
	return s, nil
}

// ///////////////////////////////////////////////
// Send Loop
// ///////////////////////////////////////////////

// sendLoop reads lines from p and queues their payloads on out until the
// quit command, end of input, or done closing. It reports whether the user
// asked to quit. The usage banner is only shown on a terminal.
func sendLoop(p *prompt.Prompter, s sender, out chan<- []byte, done <-chan struct{}, stdout io.Writer) (quit bool) {
	if p.Interactive() {
		fmt.Fprintln(stdout, `"q" : for exit`)
		fmt.Fprintln(stdout, "Enter message to send: ")
	}
	for {
		line, err := p.Line()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Warn("reading input failed", "error", err)
			}
			return true
		}
		if line == quitCommand {
			return true
		}

		select {
		case <-done:
			return false
		default:
		}

		payload, err := s.encode(line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to send: %v\n", err)
			continue
		}
		select {
		case out <- payload:
		case <-done:
			return false
		default:
			fmt.Fprintln(os.Stderr, "Failed to send: queue full")
		}
	}
}

// ///////////////////////////////////////////////
// Main
// ///////////////////////////////////////////////

func main() {
	dataDir := flag.String("data-dir", app.DefaultDataDir(), "Data directory for config and logs")
	var o overrides
	flag.StringVar(&o.network, "network", "", "Dial network: tcp, unix, or pipe (overrides client.network)")
	flag.StringVar(&o.address, "addr", "", "Server address (overrides client.address)")
	flag.StringVar(&o.mode, "mode", "", "Chat mode: ask, packet, or raw (overrides client.mode)")
	flag.StringVar(&o.id, "id", "", "Sender id for packet mode (overrides client.id)")
	showVersion := flag.Bool("version", false, "Print the version and exit")
	flag.Parse()

	ver := buildinfo.Version()
	if *showVersion {
		fmt.Println(ver)
		return
	}

	env, err := app.Setup("client", *dataDir)
	if err != nil {
		app.Fatal("setup", err)
	}
	defer env.Close()

	cfg := env.Config
	if err := o.apply(cfg); err != nil {
		app.Fatal("flags", err)
	}
	slog.Info("loopchat client starting", "version", ver, "addr", cfg.Client.Address)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.CheckForUpdate(ctx, ver)

	conn, err := transport.Dial(ctx, cfg.Client.Network, cfg.Client.Address)
	if err != nil {
		app.Fatal("connect", err)
	}
	fmt.Printf("Connected to server: %s\n", cfg.Client.Address)

	p := prompt.New(os.Stdin, os.Stdout)
	s, err := newSender(cfg.Client, p, conn.LocalAddr())
	if err != nil {
		conn.Close()
		app.Fatal("prompt", err)
	}
	slog.Info("chat mode selected", "mode", s.mode.String(), "id", s.id)

	workers, err := pool.New(cfg.Client.PoolSize)
	if err != nil {
		conn.Close()
		app.Fatal("worker pool", err)
	}
	registry := shutdown.NewRegistry()
	term := shutdown.NewTermination()
	registry.Register(term)

	outbound := make(chan []byte, outboundQueue)
	opts := append(app.HandlerOptions(cfg.Connection),
		chat.WithPolicy(chat.Print{Out: os.Stdout}),
		chat.WithOutbound(outbound),
	)
	handler := chat.NewHandler(conn, term, opts...)
	done := make(chan struct{})
	if err := workers.Execute(pool.JobFunc(func() {
		defer close(done)
		handler.Run()
	})); err != nil {
		conn.Close()
		app.Fatal("start handler", err)
	}

	coordinator := shutdown.New(registry, workers, shutdown.WithExit(func(code int) {
		fmt.Println("Exiting....")
		env.Close()
		os.Exit(code)
	}))
	stop := coordinator.Install()
	defer stop()

	if sendLoop(p, s, outbound, done, os.Stdout) {
		fmt.Println("Exiting....")
		registry.Broadcast()
		workers.Join()
		env.Close()
		os.Exit(1)
	}

	fmt.Println("Connection closed by server.")
	workers.Join()
	env.Close()
	os.Exit(1)
}
