// Copyright 2014 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package server_test

import (
	"bufio"
	"fmt"
	"net"
	"testing"
	"time"

	"go.chatd.dev/chatd/server"
)

func startServer(t *testing.T, domain, secret string) (clientPort int) {
	t.Helper()

	clientLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserving client port: %v", err)
	}
	s2sLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserving s2s port: %v", err)
	}
	clientPort = clientLn.Addr().(*net.TCPAddr).Port
	s2sPort := s2sLn.Addr().(*net.TCPAddr).Port
	clientLn.Close()
	s2sLn.Close()

	srv, err := server.New(domain, secret, s2sPort, server.BindIP("127.0.0.1"), server.IdleTimeout(50*time.Millisecond))
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	if err := srv.Listen(clientPort); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go srv.ServeForever()

	// give the listeners a moment to actually be connectable.
	time.Sleep(20 * time.Millisecond)
	return clientPort
}

// loginClient opens a client stream and completes jabber:iq:auth login,
// returning the connection positioned to read/write stanzas.
func loginClient(t *testing.T, clientPort int, domain, username, resource string) net.Conn {
	t.Helper()
	c, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", clientPort))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	fmt.Fprintf(c, "<stream:stream xmlns:stream='http://etherx.jabber.org/streams' xmlns='jabber:client' to='%s'>", domain)
	r := bufio.NewReader(c)
	readUntil(t, r, '>') // opening stream tag
	readUntil(t, r, '>') // stream:features

	fmt.Fprintf(c, "<iq type='set' id='login1'><query xmlns='jabber:iq:auth'><username>%s</username><password>x</password><resource>%s</resource></query></iq>",
		username, resource)
	readUntil(t, r, '>') // login result iq

	return c
}

func readUntil(t *testing.T, r *bufio.Reader, delim byte) string {
	t.Helper()
	s, err := r.ReadString(delim)
	if err != nil {
		t.Fatalf("reading response: %v", err)
	}
	return s
}

func TestLocalDeliver(t *testing.T) {
	const domain = "ex.org"
	clientPort := startServer(t, domain, "sharedsecret")

	a := loginClient(t, clientPort, domain, "a", "r1")
	defer a.Close()
	b := loginClient(t, clientPort, domain, "b", "r2")
	defer b.Close()

	fmt.Fprintf(a, "<message to='b@%s/r2'><body>hi</body></message>", domain)

	b.SetReadDeadline(time.Now().Add(2 * time.Second))
	br := bufio.NewReader(b)
	got, err := br.ReadString('>')
	for err == nil && got == "" {
		got, err = br.ReadString('>')
	}
	msg, err := readFullMessage(br, got)
	if err != nil {
		t.Fatalf("reading delivered message: %v", err)
	}
	if want := fmt.Sprintf(`to="b@%s/r2"`, domain); !contains(msg, want) {
		t.Errorf("delivered message %q missing %q", msg, want)
	}
	if want := fmt.Sprintf(`from="a@%s/r1"`, domain); !contains(msg, want) {
		t.Errorf("delivered message %q missing %q", msg, want)
	}
}

func TestLocalMiss(t *testing.T) {
	const domain = "ex.org"
	clientPort := startServer(t, domain, "sharedsecret")

	a := loginClient(t, clientPort, domain, "a", "r1")
	defer a.Close()

	fmt.Fprintf(a, "<message to='b@%s/r2'><body>hi</body></message>", domain)

	a.SetReadDeadline(time.Now().Add(2 * time.Second))
	br := bufio.NewReader(a)
	got, err := br.ReadString('>')
	for err == nil && got == "" {
		got, err = br.ReadString('>')
	}
	msg, err := readFullMessage(br, got)
	if err != nil {
		t.Fatalf("reading bounce: %v", err)
	}
	if want := fmt.Sprintf("b@%s/r2", domain); !contains(msg, want) {
		t.Errorf("bounce %q does not name the missing recipient", msg)
	}
	if !contains(msg, `type="error"`) {
		t.Errorf("bounce %q is not a type=error message", msg)
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

// readFullMessage reads until the closing </message> tag, given the
// already-read opening fragment first.
func readFullMessage(r *bufio.Reader, first string) (string, error) {
	msg := first
	for !contains(msg, "</message>") {
		chunk, err := r.ReadString('>')
		if err != nil {
			return msg, err
		}
		msg += chunk
	}
	return msg, nil
}
