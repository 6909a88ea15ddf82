package spdymux

import "testing"

func TestHeaderCodecRoundTrip(t *testing.T) {
	codec, err := newHeaderCodec()
	if err != nil {
		t.Fatal(err)
	}

	var block HeaderBlock
	block.Add("method", "GET")
	block.Add("path", "/index.html")
	block.Add("set-cookie", "a=1", "b=2")

	raw, err := codec.Encode(block)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) == 0 {
		t.Fatal("expected non-empty compressed header block")
	}

	decodeCodec, err := newHeaderCodec()
	if err != nil {
		t.Fatal(err)
	}
	got, err := decodeCodec.Decode(raw, 0)
	if err != nil {
		t.Fatal(err)
	}

	method, ok := got.Get("method")
	if !ok || method != "GET" {
		t.Fatalf("method = %q, %v", method, ok)
	}
	path, ok := got.Get("path")
	if !ok || path != "/index.html" {
		t.Fatalf("path = %q, %v", path, ok)
	}
	cookie, ok := got.Get("set-cookie")
	if !ok || cookie != "a=1" {
		t.Fatalf("set-cookie = %q, %v", cookie, ok)
	}
}

func TestHeaderCodecSharedStreamAcrossBlocks(t *testing.T) {
	enc, err := newHeaderCodec()
	if err != nil {
		t.Fatal(err)
	}
	dec, err := newHeaderCodec()
	if err != nil {
		t.Fatal(err)
	}

	var first HeaderBlock
	first.Add("method", "GET")
	first.Add("host", "example.com")

	raw1, err := enc.Encode(first)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dec.Decode(raw1, 0); err != nil {
		t.Fatal(err)
	}

	var second HeaderBlock
	second.Add("method", "POST")
	second.Add("host", "example.com")

	raw2, err := enc.Encode(second)
	if err != nil {
		t.Fatal(err)
	}
	got, err := dec.Decode(raw2, 0)
	if err != nil {
		t.Fatal(err)
	}
	method, ok := got.Get("method")
	if !ok || method != "POST" {
		t.Fatalf("method = %q, %v", method, ok)
	}
}

func TestHeaderCodecDecodeCorruptFails(t *testing.T) {
	dec, err := newHeaderCodec()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dec.Decode([]byte{0x01, 0x02, 0x03}, 0); err == nil {
		t.Fatal("expected an error decoding garbage input")
	}
}

func TestHeaderCodecDecodeEnforcesMaxSize(t *testing.T) {
	enc, err := newHeaderCodec()
	if err != nil {
		t.Fatal(err)
	}
	dec, err := newHeaderCodec()
	if err != nil {
		t.Fatal(err)
	}

	var block HeaderBlock
	block.Add("method", "GET")
	block.Add("path", "/index.html")

	raw, err := enc.Encode(block)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := dec.Decode(raw, 4); err != ErrHeaderTooLarge {
		t.Fatalf("Decode with tiny maxSize = %v, want ErrHeaderTooLarge", err)
	}
}

func TestHeaderCodecDecodeStaysSyncedAfterOversizedBlock(t *testing.T) {
	enc, err := newHeaderCodec()
	if err != nil {
		t.Fatal(err)
	}
	dec, err := newHeaderCodec()
	if err != nil {
		t.Fatal(err)
	}

	var oversized HeaderBlock
	oversized.Add("method", "GET")
	oversized.Add("path", "/index.html")
	raw1, err := enc.Encode(oversized)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dec.Decode(raw1, 4); err != ErrHeaderTooLarge {
		t.Fatalf("first Decode = %v, want ErrHeaderTooLarge", err)
	}

	var fine HeaderBlock
	fine.Add("method", "POST")
	raw2, err := enc.Encode(fine)
	if err != nil {
		t.Fatal(err)
	}
	got, err := dec.Decode(raw2, 0)
	if err != nil {
		t.Fatalf("Decode after an oversized block should still track the shared zlib stream: %v", err)
	}
	method, ok := got.Get("method")
	if !ok || method != "POST" {
		t.Fatalf("method = %q, %v", method, ok)
	}
}
