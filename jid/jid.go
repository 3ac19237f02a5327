// Copyright 2014 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

// Package jid provides data structures for working with XMPP addresses.
//
// Historically, XMPP addresses have been called "Jabber IDs" or "JIDs", and
// the name has stuck even as the rest of the ecosystem moved on to calling
// them addresses. A JID normally takes the form localpart@domainpart/resource,
// where the localpart identifies a user at a domain and the resourcepart
// identifies a particular client or session for that user. Server-to-server
// addresses omit the localpart and resourcepart and consist of a domainpart
// only.
package jid // import "go.chatd.dev/chatd/jid"

import (
	"encoding/xml"
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"
	"golang.org/x/text/unicode/precis"
)

// JID represents an XMPP address (historically, a "Jabber ID") comprising a
// localpart, domainpart, and resourcepart. The zero value is not a valid JID.
type JID struct {
	localpart    string
	domainpart   string
	resourcepart string
}

// Parse constructs a new JID from its string representation, normalizing each
// part per RFC 7622.
func Parse(s string) (JID, error) {
	localpart, domainpart, resourcepart, err := SplitString(s)
	if err != nil {
		return JID{}, err
	}
	return New(localpart, domainpart, resourcepart)
}

// New constructs a new JID from the given localpart, domainpart, and
// resourcepart, normalizing and validating each part.
func New(localpart, domainpart, resourcepart string) (JID, error) {
	if !utf8.ValidString(localpart) || !utf8.ValidString(resourcepart) {
		return JID{}, errors.New("jid: address contains invalid UTF-8")
	}

	domainpart, err := idna.ToUnicode(domainpart)
	if err != nil {
		return JID{}, err
	}
	if !utf8.ValidString(domainpart) {
		return JID{}, errors.New("jid: domainpart contains invalid UTF-8")
	}

	if localpart != "" {
		localpart, err = precis.UsernameCaseMapped.String(localpart)
		if err != nil {
			return JID{}, err
		}
	}
	if resourcepart != "" {
		resourcepart, err = precis.OpaqueString.String(resourcepart)
		if err != nil {
			return JID{}, err
		}
	}

	if err := commonChecks(localpart, domainpart, resourcepart); err != nil {
		return JID{}, err
	}

	return JID{localpart: localpart, domainpart: domainpart, resourcepart: resourcepart}, nil
}

// MustParse is like Parse but panics if the JID cannot be parsed. It is
// intended for use with constants known to be valid at compile time.
func MustParse(s string) JID {
	j, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return j
}

// SplitString splits out the localpart, domainpart, and resourcepart from a
// string representation of a JID. The parts are not guaranteed to be valid,
// and each part must be 1023 bytes or less.
func SplitString(s string) (localpart, domainpart, resourcepart string, err error) {
	// RFC 7622 §3.1: match the separator characters '@' and '/' before
	// applying any transformation algorithm.
	parts := strings.SplitAfterN(s, "/", 2)

	if strings.HasSuffix(parts[0], "/") {
		if len(parts) == 2 && parts[1] != "" {
			resourcepart = parts[1]
		} else {
			err = errors.New("jid: resourcepart must be larger than 0 bytes")
			return
		}
	}

	norp := strings.TrimSuffix(parts[0], "/")
	nolp := strings.SplitAfterN(norp, "@", 2)

	if nolp[0] == "@" {
		err = errors.New("jid: localpart must be larger than 0 bytes")
		return
	}

	switch len(nolp) {
	case 1:
		domainpart = nolp[0]
	case 2:
		domainpart = nolp[1]
		localpart = strings.TrimSuffix(nolp[0], "@")
	}

	// RFC 7622 §3.2: a trailing dot on the domainpart is ignored for routing
	// purposes and must be stripped before comparison.
	domainpart = strings.TrimSuffix(domainpart, ".")

	return
}

func commonChecks(localpart, domainpart, resourcepart string) error {
	if l := len(localpart); l > 1023 {
		return errors.New("jid: localpart must be smaller than 1024 bytes")
	}
	if strings.ContainsAny(localpart, "\"&'/:<>@") {
		return errors.New("jid: localpart contains forbidden characters")
	}
	if l := len(resourcepart); l > 1023 {
		return errors.New("jid: resourcepart must be smaller than 1024 bytes")
	}
	if l := len(domainpart); l < 1 || l > 1023 {
		return errors.New("jid: domainpart must be between 1 and 1023 bytes")
	}
	return nil
}

// Localpart returns the localpart of the JID, if any (e.g. "username").
func (j JID) Localpart() string { return j.localpart }

// Domainpart returns the domainpart of the JID (e.g. "example.net").
func (j JID) Domainpart() string { return j.domainpart }

// Resourcepart returns the resourcepart of the JID, if any.
func (j JID) Resourcepart() string { return j.resourcepart }

// Domain returns the bare domain-only JID (no localpart or resourcepart).
// This is the routable identifier used for server-to-server peers.
func (j JID) Domain() JID {
	return JID{domainpart: j.domainpart}
}

// Bare returns a copy of the JID without a resourcepart.
func (j JID) Bare() JID {
	return JID{localpart: j.localpart, domainpart: j.domainpart}
}

// WithResource returns a copy of the JID with the resourcepart replaced.
func (j JID) WithResource(resourcepart string) JID {
	j.resourcepart = resourcepart
	return j
}

// IsZero reports whether j is the zero JID.
func (j JID) IsZero() bool {
	return j.localpart == "" && j.domainpart == "" && j.resourcepart == ""
}

// Equal performs an octet-for-octet comparison with the given JID.
func (j JID) Equal(j2 JID) bool {
	return j.localpart == j2.localpart &&
		j.domainpart == j2.domainpart &&
		j.resourcepart == j2.resourcepart
}

// String converts a JID to its string representation.
func (j JID) String() string {
	s := j.domainpart
	if j.localpart != "" {
		s = j.localpart + "@" + s
	}
	if j.resourcepart != "" {
		s = s + "/" + j.resourcepart
	}
	return s
}

// MarshalXMLAttr satisfies the xml.MarshalerAttr interface.
func (j JID) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	return xml.Attr{Name: name, Value: j.String()}, nil
}

// UnmarshalXMLAttr satisfies the xml.UnmarshalerAttr interface.
func (j *JID) UnmarshalXMLAttr(attr xml.Attr) error {
	parsed, err := Parse(attr.Value)
	if err != nil {
		return err
	}
	*j = parsed
	return nil
}
