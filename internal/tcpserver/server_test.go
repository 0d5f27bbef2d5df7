package tcpserver

import (
	"net"
	"testing"
	"time"
)

func TestServerReceivesLines(t *testing.T) {
	srv := NewServer("127.0.0.1:0")
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	conn, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if _, err := conn.Write([]byte("first line\n\nsecond line\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	_ = conn.Close()

	var got []string
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case env := <-srv.Lines():
			if env.Source != "tcp" {
				t.Errorf("Source = %q, want tcp", env.Source)
			}
			got = append(got, env.Line)
		case <-timeout:
			t.Fatalf("timed out, got %v", got)
		}
	}
	if got[0] != "first line" || got[1] != "second line" {
		t.Errorf("lines = %v (blank lines should be dropped)", got)
	}

	if err := srv.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
}

func TestServerStopClosesLines(t *testing.T) {
	srv := NewServer("127.0.0.1:0")
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := srv.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	select {
	case _, ok := <-srv.Lines():
		if ok {
			t.Fatal("expected lines channel to be closed after Stop")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for lines channel to close")
	}
}

func TestServerAddrBeforeStart(t *testing.T) {
	srv := NewServer("")
	if srv.Addr() != "127.0.0.1:4000" {
		t.Errorf("Addr = %q, want default", srv.Addr())
	}
}
