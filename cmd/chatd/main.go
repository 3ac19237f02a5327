// Copyright 2019 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// The chatd command listens for client and server-to-server connections for
// a single domain and routes message stanzas between them.
//
// For more information try running:
//
//	chatd -help
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"go.chatd.dev/chatd/server"
)

func main() {
	logger := log.New(os.Stderr, "chatd: ", log.LstdFlags)

	var (
		domain     string
		clientPort int
		s2sPort    int
		bindIP     string
		secret     string
	)
	flags := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprintf(flags.Output(), "Usage of %s:\n", flags.Name())
		flags.PrintDefaults()
	}
	flags.StringVar(&domain, "domain", "", "the domain this server routes mail for")
	flags.IntVar(&clientPort, "client-port", 5222, "port to listen for client connections on")
	flags.IntVar(&s2sPort, "s2s-port", 5269, "port to listen for and dial peer servers on")
	flags.StringVar(&bindIP, "bind", "0.0.0.0", "address to bind listeners to")
	flags.StringVar(&secret, "secret", os.Getenv("CHATD_SECRET"), "shared secret used to authenticate Server Dialback peers; defaults to $CHATD_SECRET")

	switch err := flags.Parse(os.Args[1:]); err {
	case flag.ErrHelp:
		return
	case nil:
	default:
		logger.Fatal(err)
	}

	if domain == "" {
		logger.Fatal("domain not specified, use the -domain flag")
	}
	if secret == "" {
		logger.Fatal("shared secret not specified, use the -secret flag or set $CHATD_SECRET")
	}

	srv, err := server.New(domain, secret, s2sPort,
		server.BindIP(bindIP),
		server.Logger(logger),
	)
	if err != nil {
		logger.Fatalf("creating server: %v", err)
	}
	if err := srv.Listen(clientPort); err != nil {
		logger.Fatalf("listening: %v", err)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		<-c
		logger.Print("received interrupt, shutting down")
		os.Exit(0)
	}()

	logger.Printf("chatd serving domain %q (client :%d, s2s :%d)", domain, clientPort, s2sPort)
	if err := srv.ServeForever(); err != nil {
		logger.Fatalf("serve: %v", err)
	}
}
