package id

import "testing"

func TestFrameID_PackUnpack(t *testing.T) {
	f := NewFrameID(2, 1)
	if f.Frameset() != 2 || f.Source() != 1 {
		t.Fatalf("unexpected components: %v", f)
	}
	if f.String() != "2/1" {
		t.Fatalf("unexpected string form: %s", f)
	}
}

func TestFrameID_Wildcard(t *testing.T) {
	if !AllFrames.IsWildcard() {
		t.Fatal("255/255 should be the all-frames wildcard")
	}
	f := NewFrameID(Wildcard, 0)
	if !f.IsWildcardFrameset() || f.IsWildcardSource() {
		t.Fatalf("unexpected wildcard flags for %v", f)
	}
}

func TestChannel_Bands(t *testing.T) {
	if !ChannelColour.IsVideo() {
		t.Fatal("channel 0 should be video")
	}
	if !ChannelAudio.IsAudio() {
		t.Fatal("channel 32 should be audio")
	}
	if !ChannelCalibration.IsPersistent() {
		t.Fatal("channel 65 should be persistent")
	}
	if !ChannelEndFrame.IsControl() {
		t.Fatal("kEndFrame should be a control channel")
	}
	if ChannelCalibration.IsVideo() || ChannelCalibration.IsAudio() {
		t.Fatal("persistent channel misclassified")
	}
}

func TestParsePeerID_RoundTrip(t *testing.T) {
	p := NewPeerID()
	got, err := ParsePeerID(p.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != p {
		t.Fatalf("round-trip mismatch: %v != %v", got, p)
	}
}

func TestParseURI_Schemes(t *testing.T) {
	cases := map[string]string{
		"ftl://myhost:9000/mystream": "ftl",
		"file:///tmp/a.ftl":          "file",
		"tcp://10.0.0.1:9001":        "tcp",
		"ws://example.org/ws":        "ws",
		"cast://group":               "cast",
		"mux://group":                "mux",
	}
	for raw, wantScheme := range cases {
		u, err := ParseURI(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if u.Scheme != wantScheme {
			t.Fatalf("parse %q: scheme = %q, want %q", raw, u.Scheme, wantScheme)
		}
	}
}

func TestParseURI_PlainPathNormalisesToFile(t *testing.T) {
	u, err := ParseURI("/tmp/recording.ftl")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Scheme != "file" || u.Path != "/tmp/recording.ftl" {
		t.Fatalf("unexpected normalisation: %+v", u)
	}
}

func TestParseURI_RejectsUnknownScheme(t *testing.T) {
	if _, err := ParseURI("http://example.org/x"); err == nil {
		t.Fatal("expected rejection of unsupported scheme")
	}
}

func TestURI_IsLocalhost(t *testing.T) {
	u, _ := ParseURI("tcp://127.0.0.1:9001")
	if !u.IsLocalhost() {
		t.Fatal("127.0.0.1 should be recognised as localhost")
	}
	u2, _ := ParseURI("tcp://10.0.0.5:9001")
	if u2.IsLocalhost() {
		t.Fatal("10.0.0.5 should not be recognised as localhost")
	}
}
