// Copyright 2020 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package server

import (
	"go.chatd.dev/chatd/crypto"
	"go.chatd.dev/chatd/internal/attr"
	"go.chatd.dev/chatd/internal/ns"
	"go.chatd.dev/chatd/s2s"
)

const (
	nsClient = ns.Client
	nsServer = ns.Server
)

// mintAuthkey generates a fresh per-handshake nonce. The same value is used
// both as the stream id shown to the peer and as the nonce folded into the
// dialback key derivation (the stream id doubles as the key-derivation nonce
// by design, kept for wire compatibility, but every handshake mints a fresh one).
func mintAuthkey() string {
	return attr.RandomID()
}

// acceptClientStream handles a client's opening stream tag: it mints an
// authkey, replies with the opening tag and (empty) features, and advances
// the Node to Connecting.
func (n *Node) acceptClientStream(domain string) []byte {
	n.kind = KindClient
	n.authkey = mintAuthkey()
	n.state = StateConnecting
	out := streamOpen(domain, n.authkey, nsClient)
	return append(out, streamFeatures()...)
}

// acceptS2SStream handles an inbound peer's opening stream tag: mints an
// authkey, sends the S2S challenge, and moves to S2SResponse awaiting the
// peer's db:result.
func (n *Node) acceptS2SStream(domain string) []byte {
	n.kind = KindS2S
	n.authkey = mintAuthkey()
	n.state = StateS2SResponse
	return streamOpen(domain, n.authkey, nsServer)
}

// completeLogin handles the closing </iq> of a login request: it computes
// the Node's routable identifier and emits the canned login-success iq. The
// caller is responsible for the nodes_by_addr bookkeeping (eviction of any
// prior holder, insertion of this Node), since that is an index concern
// owned by the ChatServer, not the handshake.
func (n *Node) completeLogin() []byte {
	n.remote = n.username + "@" + n.domain + "/" + n.resource
	n.state = StateConnected
	return loginSuccess(n.iqID)
}

// initiateDialback starts the outbound half of a Server Dialback handshake:
// send a bare stream open advertising jabber:server. The
// Node is expected to already be registered under to_domain with
// state S2SChallenge.
func (n *Node) initiateDialback(fromDomain string) []byte {
	return streamOpen(fromDomain, "", nsServer)
}

// offerDialbackKey runs when the initiator has received the responder's
// challenge stream open carrying id=authkey: it derives the dialback key and
// offers it.
func (n *Node) offerDialbackKey(secret, fromDomain, toDomain, peerAuthkey string) []byte {
	key := crypto.DialbackKey(secret, toDomain, peerAuthkey)
	n.state = StateS2SVerify
	return renderElement(s2s.Result(fromDomain, toDomain, "", key))
}

// verifyDialbackOffer recomputes the key from the authkey the responder
// minted for this link and compares it against the key the initiator
// offered. On mismatch it returns ok=false; the caller (the handshake
// dispatcher) is responsible for closing the link and bouncing pending
// sends with NO_RECIPIENT rather than continuing with an unverified peer.
func verifyDialbackOffer(secret, fromDomain, toDomain, mintedAuthkey, offeredKey string) bool {
	want := crypto.DialbackKey(secret, toDomain, mintedAuthkey)
	return want == offeredKey
}

// confirmDialbackKey handles the success branch of key verification: emit
// the db:verify request and move to S2SVerifyResponse.
func (n *Node) confirmDialbackKey(fromDomain, toDomain, key string) []byte {
	n.state = StateS2SVerifyResponse
	return renderElement(s2s.Verify(n.authkey, fromDomain, toDomain, "", key))
}

// echoDialbackVerify runs when the initiator echoes the responder's verify
// request; it moves to S2SVerifyFinal.
func (n *Node) echoDialbackVerify(id, fromDomain, toDomain string) []byte {
	n.state = StateS2SVerifyFinal
	return renderElement(s2s.VerifyResponse(id, fromDomain, toDomain))
}

// confirmDialbackOutcome runs once the responder has seen the initiator's
// verify echo; it announces the link valid.
func (n *Node) confirmDialbackOutcome(fromDomain, toDomain string) []byte {
	n.state = StateConnected
	return renderElement(s2s.Result(fromDomain, toDomain, "valid", ""))
}

// finishDialback runs when the initiator sees the final db:result and moves
// to Connected. Flushing pending is done by the caller,
// which owns the nodes_by_addr index.
func (n *Node) finishDialback() {
	n.state = StateConnected
}
