// Copyright 2014 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package jid_test

import (
	"testing"

	"go.chatd.dev/chatd/jid"
)

var splitTests = [...]struct {
	in         string
	local      string
	domain     string
	resource   string
	shouldFail bool
}{
	0: {in: "example.net", domain: "example.net"},
	1: {in: "user@example.net", local: "user", domain: "example.net"},
	2: {in: "user@example.net/resource", local: "user", domain: "example.net", resource: "resource"},
	3: {in: "example.net/resource", domain: "example.net", resource: "resource"},
	4: {in: "example.net.", domain: "example.net"},
	5: {in: "@example.net", shouldFail: true},
	6: {in: "user@example.net/", shouldFail: true},
}

func TestSplitString(t *testing.T) {
	for i, tc := range splitTests {
		local, domain, resource, err := jid.SplitString(tc.in)
		switch {
		case tc.shouldFail && err == nil:
			t.Errorf("%d: expected an error splitting %q", i, tc.in)
		case !tc.shouldFail && err != nil:
			t.Errorf("%d: unexpected error splitting %q: %v", i, tc.in, err)
		case !tc.shouldFail:
			if local != tc.local || domain != tc.domain || resource != tc.resource {
				t.Errorf("%d: got (%q, %q, %q), want (%q, %q, %q)",
					i, local, domain, resource, tc.local, tc.domain, tc.resource)
			}
		}
	}
}

func TestDomainFromAddress(t *testing.T) {
	j := jid.MustParse("user@peer.org/res")
	if got := j.Domain().String(); got != "peer.org" {
		t.Errorf("got domain %q, want peer.org", got)
	}
}

func TestBareStripsResource(t *testing.T) {
	j := jid.MustParse("user@example.net/res")
	bare := j.Bare()
	if bare.Resourcepart() != "" {
		t.Errorf("expected bare JID to have no resourcepart, got %q", bare.Resourcepart())
	}
	if bare.String() != "user@example.net" {
		t.Errorf("got %q, want user@example.net", bare.String())
	}
}

func TestEqual(t *testing.T) {
	a := jid.MustParse("user@example.net/r1")
	b := jid.MustParse("user@example.net/r1")
	c := jid.MustParse("user@example.net/r2")
	if !a.Equal(b) {
		t.Error("expected equal JIDs to compare equal")
	}
	if a.Equal(c) {
		t.Error("expected JIDs with different resources to compare unequal")
	}
}
