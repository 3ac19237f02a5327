// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package crypto_test

import (
	"testing"

	"go.chatd.dev/chatd/crypto"
)

func TestDialbackKeyDeterministic(t *testing.T) {
	k1 := crypto.DialbackKey("sekrit", "peer.example", "abc123")
	k2 := crypto.DialbackKey("sekrit", "peer.example", "abc123")
	if k1 != k2 {
		t.Fatalf("expected deterministic key, got %q and %q", k1, k2)
	}
	if len(k1) != 40 {
		t.Errorf("expected a 40-char hex sha1 digest, got %d chars", len(k1))
	}
}

func TestDialbackKeyDependsOnInputs(t *testing.T) {
	base := crypto.DialbackKey("sekrit", "peer.example", "abc123")
	if k := crypto.DialbackKey("other", "peer.example", "abc123"); k == base {
		t.Error("expected different secret to change the derived key")
	}
	if k := crypto.DialbackKey("sekrit", "other.example", "abc123"); k == base {
		t.Error("expected different receiving domain to change the derived key")
	}
	if k := crypto.DialbackKey("sekrit", "peer.example", "xyz789"); k == base {
		t.Error("expected different stream id to change the derived key")
	}
}

func TestDialbackKeyBothSidesAgree(t *testing.T) {
	// Simulates I and R independently deriving the same key from the
	// values exchanged on the wire (secret is shared out of band, the
	// receiving domain and stream id are both visible to either side).
	initiator := crypto.DialbackKey("sekrit", "receiver.example", "s3cr3tid")
	receiver := crypto.DialbackKey("sekrit", "receiver.example", "s3cr3tid")
	if initiator != receiver {
		t.Fatalf("initiator and receiver derived different keys: %q vs %q", initiator, receiver)
	}
}
