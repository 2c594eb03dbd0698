package traffic

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
)

// TerminateMessage is the in-band control text that asks a server to stop.
const TerminateMessage = "TERMINATE_SERVER"

// ErrorPrefix marks a frame reporting that the request could not be decoded.
const ErrorPrefix = "SUT_ERROR"

// WriteFrame writes text as "<length>\n<text>".
func WriteFrame(w io.Writer, text string) error {
	if _, err := fmt.Fprintf(w, "%d\n", len(text)); err != nil {
		return err
	}
	_, err := io.WriteString(w, text)
	return err
}

// ReadFrames reads frames until EOF.
func ReadFrames(r io.Reader) ([]string, error) {
	br := bufio.NewReader(r)
	var frames []string
	for {
		header, err := br.ReadString('\n')
		if errors.Is(err, io.EOF) && header == "" {
			return frames, nil
		}
		if err != nil {
			return frames, fmt.Errorf("reading frame header: %w", err)
		}
		n, err := strconv.Atoi(strings.TrimSuffix(header, "\n"))
		if err != nil || n < 0 {
			return frames, fmt.Errorf("malformed frame header %q", header)
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(br, buf); err != nil {
			return frames, fmt.Errorf("reading frame body: %w", err)
		}
		frames = append(frames, string(buf))
	}
}

// IsErrorFrame reports whether a frame carries a decode failure.
func IsErrorFrame(frame string) bool {
	return strings.HasPrefix(frame, ErrorPrefix+":")
}

// Send opens one connection to addr, sends text, half-closes and returns every
// frame the server writes back before closing.
func Send(ctx context.Context, addr, text string) ([]string, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if _, err := io.WriteString(conn, text); err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.CloseWrite(); err != nil {
			return nil, fmt.Errorf("closing request stream: %w", err)
		}
	}
	return ReadFrames(conn)
}
