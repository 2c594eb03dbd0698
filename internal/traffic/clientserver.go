package traffic

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
)

// Server protocol variants spoken to the real server of a client message.
const (
	ProtocolClassic = "classic"
	ProtocolLine    = "line"
)

// ClientServerOptions configures forwarding of client socket messages.
type ClientServerOptions struct {
	// Address of the real server. Empty means client messages cannot be
	// forwarded live.
	Address  string
	Protocol string
}

func clientBehavior(opts ClientServerOptions) Behavior {
	return Behavior{
		Kind:       KindClientMessage,
		WirePrefix: "",
		RecordTag:  "CLI",
		Forward: func(ctx context.Context, u Unit) ([]Unit, error) {
			return forwardClientMessage(ctx, opts, u)
		},
		Failure: func(u Unit, err error) []Unit {
			return []Unit{{Kind: KindServerMessage, Payload: "ERROR: " + err.Error(), IsResponse: true}}
		},
	}
}

func forwardClientMessage(ctx context.Context, opts ClientServerOptions, u Unit) ([]Unit, error) {
	if opts.Address == "" {
		return nil, errors.New("no server address configured for client traffic")
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", opts.Address)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var reply string
	switch opts.Protocol {
	case ProtocolLine:
		if _, err := io.WriteString(conn, u.Payload+"\n"); err != nil {
			return nil, err
		}
		line, err := bufio.NewReader(conn).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		reply = strings.TrimSuffix(line, "\n")
	case ProtocolClassic, "":
		if _, err := io.WriteString(conn, u.Payload); err != nil {
			return nil, err
		}
		if tcp, ok := conn.(*net.TCPConn); ok {
			if err := tcp.CloseWrite(); err != nil {
				return nil, err
			}
		}
		data, err := io.ReadAll(conn)
		if err != nil {
			return nil, err
		}
		reply = string(data)
	default:
		return nil, fmt.Errorf("unknown server protocol %q", opts.Protocol)
	}

	if reply == "" {
		return nil, nil
	}
	return []Unit{{Kind: KindServerMessage, Payload: reply, IsResponse: true}}, nil
}
