package notify

import (
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestEmailMessage_Headers(t *testing.T) {
	s := NewEmailSink("smtp.example", 587, "user", "pass", "from@example.com", "to@example.com")

	msg := string(s.message(alertRecord()))
	for _, want := range []string{
		"From: from@example.com\r\n",
		"To: to@example.com\r\n",
		"Subject: System Alert: CPU\r\n",
		"Value: 95",
		"Time: 2025-10-25T00:00:00Z",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

// A stalled SMTP server must not hold Send past cancellation; closing the
// connection on ctx.Done unblocks the handshake immediately.
func TestEmailSend_CancelAbandonsHandshake(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	// Accept the connection but never send the greeting.
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io.Copy(io.Discard, conn) //nolint:errcheck
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	s := NewEmailSink(host, port, "", "", "from@example.com", "to@example.com")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Send(ctx, alertRecord()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Send: expected an error after cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Send did not return after cancellation")
	}
}
