package protocol

import "testing"

func TestGlobalFinishedRequiresAllSubstates(t *testing.T) {
	c := StartedCursors()
	if c.GlobalFinished() {
		t.Fatal("freshly started cursors must not be finished")
	}
	c.Ledger = NewFinished[[]byte](nil)
	c.AsyncPool = NewFinished[[]byte](nil)
	c.PoSCycle = NewFinished[uint64](0)
	c.PoSDeferredCreds = NewFinished[uint64](0)
	if c.GlobalFinished() {
		t.Fatal("expected not finished while ExecutedOps is still Started")
	}
	c.ExecutedOps = NewFinished[[]byte](nil)
	if !c.GlobalFinished() {
		t.Fatal("expected finished once every substate is Finished")
	}
}

func TestEncodeDecodeClientMessageRoundTrip(t *testing.T) {
	cursors := StartedCursors()
	msg := ClientMessage{Kind: AskBootstrapPart, Cursors: &cursors}
	b, err := EncodeClientMessage(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeClientMessage(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Kind != AskBootstrapPart || got.Cursors == nil {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestEncodeDecodeServerMessageRoundTrip(t *testing.T) {
	msg := ServerMessage{Kind: BootstrapTime, ServerTime: 12345, Version: "BOOT.1.0"}
	b, err := EncodeServerMessage(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeServerMessage(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ServerTime != 12345 || got.Version != "BOOT.1.0" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}
