// Copyright 2025 momentics@gmail.com
// License: Apache 2.0

// payload_test.go — payload codec and identity validation tests.

package protocol

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseIdentity(t *testing.T) {
	valid := []string{"alice", "bob_42", "ümlaut", "日本語", "a", strings.Repeat("x", MaxIdentityLen)}
	for _, id := range valid {
		got, err := ParseIdentity([]byte(id))
		if err != nil {
			t.Errorf("ParseIdentity(%q) failed: %v", id, err)
		}
		if got != id {
			t.Errorf("ParseIdentity(%q) = %q", id, got)
		}
	}

	invalid := [][]byte{
		nil,
		[]byte(""),
		[]byte(strings.Repeat("x", MaxIdentityLen+1)),
		[]byte("has space"),
		[]byte("tab\there"),
		[]byte("new\nline"),
		[]byte{0x01, 'a'},
		{0xFF, 0xFE, 0xFD}, // broken UTF-8
	}
	for _, id := range invalid {
		if _, err := ParseIdentity(id); err == nil {
			t.Errorf("ParseIdentity(%q) accepted invalid identity", id)
		}
	}
}

func TestDirectPayloadRoundTrip(t *testing.T) {
	p, err := EncodeDirect("bob", []byte("hi bob"))
	if err != nil {
		t.Fatalf("EncodeDirect failed: %v", err)
	}
	recipient, text, err := DecodeDirect(p)
	if err != nil {
		t.Fatalf("DecodeDirect failed: %v", err)
	}
	if recipient != "bob" || string(text) != "hi bob" {
		t.Errorf("got (%q, %q)", recipient, text)
	}
}

func TestRelayPayloadRoundTrip(t *testing.T) {
	p, err := EncodeRelay("alice", []byte("hello"))
	if err != nil {
		t.Fatalf("EncodeRelay failed: %v", err)
	}
	sender, text, err := DecodeRelay(p)
	if err != nil {
		t.Fatalf("DecodeRelay failed: %v", err)
	}
	if sender != "alice" || string(text) != "hello" {
		t.Errorf("got (%q, %q)", sender, text)
	}
}

func TestDecodeTaggedEmptyText(t *testing.T) {
	p, err := EncodeDirect("bob", nil)
	if err != nil {
		t.Fatalf("EncodeDirect failed: %v", err)
	}
	recipient, text, err := DecodeDirect(p)
	if err != nil {
		t.Fatalf("DecodeDirect failed: %v", err)
	}
	if recipient != "bob" || len(text) != 0 {
		t.Errorf("got (%q, %q)", recipient, text)
	}
}

func TestDecodeTaggedMalformed(t *testing.T) {
	overCap := append([]byte{0x00, MaxIdentityLen + 1}, bytes.Repeat([]byte{'a'}, MaxIdentityLen+1)...)
	cases := [][]byte{
		nil,
		{0x00},            // truncated length field
		{0x00, 0x05, 'a'}, // declared recipient longer than payload
		{0xFF, 0xFF},      // recipient length beyond identity cap
		overCap,
	}
	for i, p := range cases {
		if _, _, err := DecodeDirect(p); err == nil {
			t.Errorf("case %d: malformed payload accepted", i)
		}
	}
}

func TestErrorPayloadRoundTrip(t *testing.T) {
	p := EncodeError(CodeDuplicateIdentity, "identity already bound")
	code, msg, err := DecodeError(p)
	if err != nil {
		t.Fatalf("DecodeError failed: %v", err)
	}
	if code != CodeDuplicateIdentity || msg != "identity already bound" {
		t.Errorf("got (%d, %q)", code, msg)
	}

	if _, _, err := DecodeError([]byte{0x07}); err == nil {
		t.Error("truncated error payload accepted")
	}
}

func TestWireErrorPayload(t *testing.T) {
	we := NewWireError(CodeRecipientUnknown, "no such user", false)
	if we.Error() == "" {
		t.Error("empty error string")
	}
	code, msg, err := DecodeError(we.Payload())
	if err != nil {
		t.Fatalf("DecodeError failed: %v", err)
	}
	if code != CodeRecipientUnknown || msg != "no such user" {
		t.Errorf("got (%d, %q)", code, msg)
	}
}
