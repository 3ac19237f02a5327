// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package crypto provides the cryptographic key derivation used by the
// Server Dialback handshake.
package crypto // import "go.chatd.dev/chatd/crypto"

import (
	"crypto/sha1"
	"encoding/hex"
)

// DialbackKey derives the Server Dialback authentication key for a
// handshake between an initiating domain and a receiving domain, given the
// shared secret and the authkey (stream id) minted by the receiver.
//
// The derivation chains SHA-1 three times over hex-encoded digests:
//
//	key = H( H( H(secret) || receivingDomain ) || streamID )
//
// All three sides of the chain MUST operate on the hex representation of
// the previous digest, not the raw bytes; this matches the wire behavior
// expected by both the initiator and the receiver so that each can
// recompute the same value independently.
func DialbackKey(secret, receivingDomain, streamID string) string {
	secretDigest := hexSHA1(secret)
	domainDigest := hexSHA1(secretDigest + receivingDomain)
	return hexSHA1(domainDigest + streamID)
}

func hexSHA1(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
