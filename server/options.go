// Copyright 2014 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package server

import (
	"log"
	"time"
)

// Option configures a ChatServer at construction time.
type Option func(*ChatServer)

// BindIP sets the address listeners are bound to. The default is 0.0.0.0.
func BindIP(ip string) Option {
	return func(s *ChatServer) {
		s.bindIP = ip
	}
}

// Logger overrides the default stderr logger.
func Logger(l *log.Logger) Option {
	return func(s *ChatServer) {
		s.logger = l
	}
}

// IdleTimeout bounds how long a single WaitAll iteration blocks with no
// ready sockets. A negative duration (the default) blocks indefinitely; with
// a positive value WaitAll returns after at most d when no socket is ready,
// and ServeForever simply waits again (it does no other work in between).
func IdleTimeout(d time.Duration) Option {
	return func(s *ChatServer) {
		s.idleTimeout = d
	}
}
