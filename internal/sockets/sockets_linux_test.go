//go:build linux

package sockets

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/momentics/hioload-basp/api"
)

func TestStreamPairReadWrite(t *testing.T) {
	a, b, err := StreamPair()
	if err != nil {
		t.Fatal(err)
	}
	defer Close(a)

	buf := make([]byte, 16)
	if _, err := Read(a, buf); !errors.Is(err, api.ErrWouldBlock) {
		t.Fatalf("read on empty socket: %v", err)
	}
	if n, err := Write(b, []byte("ping")); err != nil || n != 4 {
		t.Fatalf("write: %d %v", n, err)
	}
	n, err := Read(a, buf)
	if err != nil || string(buf[:n]) != "ping" {
		t.Fatalf("read: %q %v", buf[:n], err)
	}
	Close(b)
	if _, err := Read(a, buf); !errors.Is(err, api.ErrSocketDisconnected) {
		t.Fatalf("read after peer close: %v", err)
	}
}

func TestPipe(t *testing.T) {
	rd, wr, err := MakePipe()
	if err != nil {
		t.Fatal(err)
	}
	defer Close(rd)
	if _, err := Write(wr, []byte{1}); err != nil {
		t.Fatal(err)
	}
	Close(wr)
	buf := make([]byte, 4)
	if n, err := Read(rd, buf); n != 1 || err != nil {
		t.Fatalf("read: %d %v", n, err)
	}
	if _, err := Read(rd, buf); !errors.Is(err, api.ErrSocketDisconnected) {
		t.Fatalf("read after close: %v", err)
	}
}

func TestDatagramRoundTrip(t *testing.T) {
	loopback := netip.MustParseAddrPort("127.0.0.1:0")
	a, err := ListenUDP(loopback)
	if err != nil {
		t.Fatal(err)
	}
	defer Close(a)
	b, err := ListenUDP(loopback)
	if err != nil {
		t.Fatal(err)
	}
	defer Close(b)
	addrA, err := LocalAddr(a)
	if err != nil || addrA.Port() == 0 {
		t.Fatalf("local addr %v %v", addrA, err)
	}
	addrB, _ := LocalAddr(b)

	if n, err := SendTo(b, [][]byte{[]byte("he"), []byte("llo")}, addrA); err != nil || n != 5 {
		t.Fatalf("sendto: %d %v", n, err)
	}
	buf := make([]byte, MaxDatagramSize)
	var (
		n    int
		from netip.AddrPort
	)
	for {
		n, from, err = RecvFrom(a, buf)
		if !errors.Is(err, api.ErrWouldBlock) {
			break
		}
	}
	if err != nil || string(buf[:n]) != "hello" {
		t.Fatalf("recvfrom: %q %v", buf[:n], err)
	}
	if from.Port() != addrB.Port() {
		t.Fatalf("from %v, want port %d", from, addrB.Port())
	}
}

func TestTCPListenDialAccept(t *testing.T) {
	l, err := ListenTCP(netip.MustParseAddrPort("127.0.0.1:0"), 16)
	if err != nil {
		t.Fatal(err)
	}
	defer Close(l)
	addr, err := LocalAddr(l)
	if err != nil {
		t.Fatal(err)
	}
	c, err := DialTCP(addr)
	if err != nil {
		t.Fatal(err)
	}
	defer Close(c)
	var s Socket
	for {
		s, _, err = Accept(l)
		if !errors.Is(err, api.ErrWouldBlock) {
			break
		}
	}
	if err != nil {
		t.Fatal(err)
	}
	defer Close(s)
	if err := SetNoDelay(s, true); err != nil {
		t.Fatal(err)
	}
}
