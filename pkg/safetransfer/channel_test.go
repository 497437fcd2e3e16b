// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package safetransfer

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// scenarioFrame is int32(42) framed as DATA
var scenarioFrame = []byte{0x00, 0x2A, 0x00, 0x00, 0x00, 0xE5, 0x5F}

func newTestChannel(t *testing.T, opts ...Option) (*Channel[int32], *fakeBus) {
	t.Helper()
	ch, err := New[int32](opts...)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	bus := &fakeBus{}
	ch.Begin(bus)
	return ch, bus
}

// collect registers a receive callback that records every payload
func collect[T any](ch *Channel[T]) *[]T {
	got := &[]T{}
	ch.OnReceive(func(v T) { *got = append(*got, v) })
	return got
}

// ============================================================
// Unbound Channel Tests
// ============================================================

func TestChannel_Unbound(t *testing.T) {
	ch, err := New[int32]()
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	got := collect(ch)
	ch.OnRequest(func() int32 { return 1 })
	ch.SetAddress(0x10)

	if ch.Bound() {
		t.Error("new channel should be unbound")
	}
	if err := ch.Send(1); !errors.Is(err, ErrUnbound) {
		t.Errorf("Send: expected ErrUnbound, got %v", err)
	}
	if err := ch.SendToPeer(0x10, 1); !errors.Is(err, ErrUnbound) {
		t.Errorf("SendToPeer: expected ErrUnbound, got %v", err)
	}
	if err := ch.SendToController(1); !errors.Is(err, ErrUnbound) {
		t.Errorf("SendToController: expected ErrUnbound, got %v", err)
	}
	if err := ch.Request(); !errors.Is(err, ErrUnbound) {
		t.Errorf("Request: expected ErrUnbound, got %v", err)
	}
	if _, err := ch.RequestFrom(0x10); !errors.Is(err, ErrUnbound) {
		t.Errorf("RequestFrom: expected ErrUnbound, got %v", err)
	}

	res := ch.Poll()
	if res.Status != StatusIdle || !errors.Is(res.Reason, ErrUnbound) {
		t.Errorf("Poll: got %s (%v), want IDLE (ErrUnbound)", res.Status, res.Reason)
	}
	if len(*got) != 0 {
		t.Error("no callback should run on an unbound channel")
	}
}

func TestChannel_BeginNilUnbinds(t *testing.T) {
	ch, _ := newTestChannel(t)
	ch.Begin(nil)
	if ch.Bound() {
		t.Error("Begin(nil) should unbind")
	}
}

// ============================================================
// Poll / Dispatch Tests
// ============================================================

func TestPoll_Idle(t *testing.T) {
	ch, _ := newTestChannel(t)
	got := collect(ch)

	res := ch.Poll()
	if res.Status != StatusIdle || res.Reason != nil || res.Frame != nil {
		t.Errorf("Poll with no bytes = %+v, want plain IDLE", res)
	}
	if len(*got) != 0 {
		t.Error("callback should not run")
	}
}

func TestPoll_DeliversScenarioFrame(t *testing.T) {
	ch, bus := newTestChannel(t)
	got := collect(ch)
	bus.inject(scenarioFrame)

	res := ch.Poll()
	if !res.Delivered() {
		t.Fatalf("expected DELIVERED, got %s: %v", res.Status, res.Reason)
	}
	if res.Payload != 42 || res.Type != PacketData {
		t.Errorf("result payload = %d type = %s", res.Payload, res.Type)
	}
	if len(*got) != 1 || (*got)[0] != 42 {
		t.Errorf("callback calls = %v, want [42]", *got)
	}
	if !bytes.Equal(res.Frame, scenarioFrame) {
		t.Errorf("result frame = % X", res.Frame)
	}

	// Nothing left: the next poll is idle and the callback is not re-run
	if res := ch.Poll(); res.Status != StatusIdle {
		t.Errorf("second Poll = %s, want IDLE", res.Status)
	}
	if len(*got) != 1 {
		t.Errorf("callback ran %d times, want once", len(*got))
	}
}

func TestPoll_CorruptPayloadRejected(t *testing.T) {
	ch, bus := newTestChannel(t)
	got := collect(ch)

	frame := bytes.Clone(scenarioFrame)
	frame[1] ^= 0x01
	bus.inject(frame)

	res := ch.Poll()
	if !res.Rejected() || !errors.Is(res.Reason, ErrIntegrity) {
		t.Fatalf("expected REJECTED with ErrIntegrity, got %s: %v", res.Status, res.Reason)
	}
	var fe *FrameError
	if !errors.As(res.Reason, &fe) || fe.ReceivedCRC != 0x5FE5 {
		t.Errorf("unexpected frame error: %#v", res.Reason)
	}
	if len(*got) != 0 {
		t.Errorf("callback should not run for a corrupt frame, got %v", *got)
	}
}

func TestPoll_CorruptLastPayloadByteRejected(t *testing.T) {
	ch, bus := newTestChannel(t)
	got := collect(ch)

	frame := bytes.Clone(scenarioFrame)
	frame[4] ^= 0x01
	bus.inject(frame)

	res := ch.Poll()
	if !res.Rejected() || !errors.Is(res.Reason, ErrIntegrity) {
		t.Fatalf("expected REJECTED with ErrIntegrity, got %s: %v", res.Status, res.Reason)
	}
	if len(*got) != 0 {
		t.Errorf("callback should not run for a corrupt frame, got %v", *got)
	}
}

func TestPoll_NoHandler(t *testing.T) {
	ch, bus := newTestChannel(t)
	bus.inject(scenarioFrame)

	res := ch.Poll()
	if res.Status != StatusDropped || !errors.Is(res.Reason, ErrNoHandler) {
		t.Fatalf("expected DROPPED with ErrNoHandler, got %s: %v", res.Status, res.Reason)
	}
	if bus.Available() != 0 {
		t.Errorf("frame bytes should be consumed, %d left", bus.Available())
	}

	// Channel stays ready for the next frame
	got := collect(ch)
	bus.inject(scenarioFrame)
	if res := ch.Poll(); !res.Delivered() {
		t.Errorf("next frame not delivered: %s %v", res.Status, res.Reason)
	}
	if len(*got) != 1 {
		t.Errorf("callback calls = %v", *got)
	}
}

func TestPoll_ShortFrame(t *testing.T) {
	ch, bus := newTestChannel(t)
	got := collect(ch)
	bus.inject(scenarioFrame[:4])

	res := ch.Poll()
	if !res.Rejected() || !errors.Is(res.Reason, ErrMalformedFrame) {
		t.Fatalf("expected REJECTED with ErrMalformedFrame, got %s: %v", res.Status, res.Reason)
	}
	if len(res.Frame) != 4 {
		t.Errorf("consumed %d bytes, want 4", len(res.Frame))
	}
	if bus.Available() != 0 {
		t.Errorf("partial bytes should be discarded, %d left", bus.Available())
	}
	if len(*got) != 0 {
		t.Error("callback should not run for a short frame")
	}

	// Back to idle
	if res := ch.Poll(); res.Status != StatusIdle {
		t.Errorf("Poll after discard = %s, want IDLE", res.Status)
	}
}

func TestPoll_BackToBackFrames(t *testing.T) {
	ch, bus := newTestChannel(t)
	got := collect(ch)

	second, _ := ch.Codec().Encode(43, PacketData)
	bus.inject(scenarioFrame, second)

	// One frame per Poll; the remainder waits for the next call
	res := ch.Poll()
	if !res.Delivered() || res.Payload != 42 {
		t.Fatalf("first Poll = %s %d", res.Status, res.Payload)
	}
	if bus.Available() != len(second) {
		t.Errorf("remaining bytes = %d, want %d", bus.Available(), len(second))
	}

	res = ch.Poll()
	if !res.Delivered() || res.Payload != 43 {
		t.Fatalf("second Poll = %s %d", res.Status, res.Payload)
	}
	if len(*got) != 2 || (*got)[0] != 42 || (*got)[1] != 43 {
		t.Errorf("callback calls = %v, want [42 43]", *got)
	}
}

func TestDispatch_ReservedTypes(t *testing.T) {
	ch, _ := newTestChannel(t)
	got := collect(ch)

	for _, typ := range []PacketType{PacketAck, PacketError, PacketRetry} {
		frame, err := ch.Codec().Encode(42, typ)
		if err != nil {
			t.Fatalf("Encode error: %v", err)
		}
		res := ch.Dispatch(frame)
		if res.Status != StatusDropped || res.Type != typ || !errors.Is(res.Reason, ErrReservedType) {
			t.Errorf("%s: got %s (%v)", typ, res.Status, res.Reason)
		}
	}
	if len(*got) != 0 {
		t.Errorf("reserved types must not dispatch a payload, got %v", *got)
	}
}

func TestDispatch_UnknownType(t *testing.T) {
	ch, _ := newTestChannel(t)
	got := collect(ch)

	frame := bytes.Clone(scenarioFrame)
	frame[0] = 0x42

	res := ch.Dispatch(frame)
	if !res.Rejected() || !errors.Is(res.Reason, ErrUnknownType) {
		t.Errorf("expected REJECTED with ErrUnknownType, got %s: %v", res.Status, res.Reason)
	}
	if len(*got) != 0 {
		t.Error("unknown type must not dispatch")
	}
}

func TestDispatch_WrongLength(t *testing.T) {
	ch, _ := newTestChannel(t)
	collect(ch)

	for _, frame := range [][]byte{nil, scenarioFrame[:3], append(bytes.Clone(scenarioFrame), 0)} {
		res := ch.Dispatch(frame)
		if !res.Rejected() || !errors.Is(res.Reason, ErrMalformedFrame) {
			t.Errorf("len %d: got %s (%v)", len(frame), res.Status, res.Reason)
		}
	}
}

func TestOnReceive_Replaces(t *testing.T) {
	ch, bus := newTestChannel(t)
	first := collect(ch)
	second := collect(ch)

	bus.inject(scenarioFrame)
	ch.Poll()

	if len(*first) != 0 {
		t.Error("replaced callback should not run")
	}
	if len(*second) != 1 {
		t.Errorf("current callback calls = %v", *second)
	}

	ch.OnReceive(nil)
	bus.inject(scenarioFrame)
	if res := ch.Poll(); !errors.Is(res.Reason, ErrNoHandler) {
		t.Errorf("OnReceive(nil) should clear the slot, got %s %v", res.Status, res.Reason)
	}
}

// ============================================================
// Send Tests
// ============================================================

func TestSendToPeer(t *testing.T) {
	ch, bus := newTestChannel(t)

	if err := ch.SendToPeer(0x21, 42); err != nil {
		t.Fatalf("SendToPeer error: %v", err)
	}
	if len(bus.transactions) != 1 {
		t.Fatalf("transactions = %d, want 1", len(bus.transactions))
	}
	tx := bus.transactions[0]
	if tx.addr != 0x21 {
		t.Errorf("address = 0x%02X, want 0x21", tx.addr)
	}
	if !bytes.Equal(tx.data, scenarioFrame) {
		t.Errorf("data = % X, want % X", tx.data, scenarioFrame)
	}
	if len(bus.direct) != 0 {
		t.Error("controller send should not write outside a transaction")
	}
}

func TestSend_DefaultAddress(t *testing.T) {
	ch, bus := newTestChannel(t)

	if err := ch.Send(42); !errors.Is(err, ErrNoAddress) {
		t.Errorf("expected ErrNoAddress, got %v", err)
	}
	if len(bus.transactions) != 0 {
		t.Error("nothing should be sent without an address")
	}

	ch.SetAddress(0x08)
	if addr, ok := ch.Address(); !ok || addr != 0x08 {
		t.Errorf("Address() = 0x%02X, %v", addr, ok)
	}
	if err := ch.Send(42); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if len(bus.transactions) != 1 || bus.transactions[0].addr != 0x08 {
		t.Errorf("transactions = %+v", bus.transactions)
	}
}

func TestSendToPeer_Errors(t *testing.T) {
	t.Run("write error", func(t *testing.T) {
		ch, bus := newTestChannel(t)
		bus.writeErr = errors.New("bus stuck")
		err := ch.SendToPeer(0x10, 1)
		if err == nil || !strings.Contains(err.Error(), "bus stuck") {
			t.Errorf("expected write error, got %v", err)
		}
		if bus.inTx {
			t.Error("transaction should be ended after a failed write")
		}
	})

	t.Run("short write", func(t *testing.T) {
		ch, bus := newTestChannel(t)
		bus.shortWrite = true
		if err := ch.SendToPeer(0x10, 1); !errors.Is(err, ErrShortWrite) {
			t.Errorf("expected ErrShortWrite, got %v", err)
		}
	})

	t.Run("nack", func(t *testing.T) {
		ch, bus := newTestChannel(t)
		bus.endErr = errors.New("nack")
		err := ch.SendToPeer(0x10, 1)
		if err == nil || !strings.Contains(err.Error(), "0x10") {
			t.Errorf("expected end transmission error, got %v", err)
		}
	})
}

func TestSendToController(t *testing.T) {
	ch, bus := newTestChannel(t)

	if err := ch.SendToController(42); err != nil {
		t.Fatalf("SendToController error: %v", err)
	}
	if !bytes.Equal(bus.direct, scenarioFrame) {
		t.Errorf("written = % X, want % X", bus.direct, scenarioFrame)
	}
	if len(bus.transactions) != 0 {
		t.Error("peripheral send should not open a transaction")
	}
}

// ============================================================
// Request Tests
// ============================================================

func TestRequest_NoHandler(t *testing.T) {
	ch, bus := newTestChannel(t)

	if err := ch.Request(); !errors.Is(err, ErrNoHandler) {
		t.Errorf("expected ErrNoHandler, got %v", err)
	}
	bus.onRequest()
	if len(bus.direct) != 0 {
		t.Errorf("nothing should be written, got % X", bus.direct)
	}
}

func TestRequest_ViaBusCallback(t *testing.T) {
	ch, bus := newTestChannel(t)
	if bus.onRequest == nil {
		t.Fatal("Begin should register a request handler with the bus")
	}

	calls := 0
	ch.OnRequest(func() int32 {
		calls++
		return 42
	})

	bus.onRequest()
	if calls != 1 {
		t.Errorf("request callback calls = %d, want 1", calls)
	}
	if !bytes.Equal(bus.direct, scenarioFrame) {
		t.Errorf("reply = % X, want % X", bus.direct, scenarioFrame)
	}
}

func TestRequestFrom(t *testing.T) {
	ch, err := New[int32]()
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	bus := &fakeRequesterBus{reply: scenarioFrame}
	ch.Begin(bus)
	got := collect(ch)

	n, err := ch.RequestFrom(0x30)
	if err != nil || n != len(scenarioFrame) {
		t.Fatalf("RequestFrom = %d, %v", n, err)
	}
	if len(bus.requested) != 1 || bus.requested[0] != ch.Codec().FrameSize() {
		t.Errorf("requested sizes = %v", bus.requested)
	}

	if res := ch.Poll(); !res.Delivered() {
		t.Errorf("Poll after RequestFrom = %s %v", res.Status, res.Reason)
	}
	if len(*got) != 1 || (*got)[0] != 42 {
		t.Errorf("callback calls = %v", *got)
	}
}

func TestRequestFrom_Unsupported(t *testing.T) {
	ch, _ := newTestChannel(t)
	if _, err := ch.RequestFrom(0x30); !errors.Is(err, ErrUnsupportedBus) {
		t.Errorf("expected ErrUnsupportedBus, got %v", err)
	}
}

// ============================================================
// Diagnostics Tests
// ============================================================

func TestChannel_LogsIntegrityFailure(t *testing.T) {
	var buf bytes.Buffer
	ch, bus := newTestChannel(t, WithLogger(zerolog.New(&buf)))
	collect(ch)

	frame := bytes.Clone(scenarioFrame)
	frame[1] = 0x2B
	bus.inject(frame)
	ch.Poll()

	out := buf.String()
	if !strings.Contains(out, "rejecting frame") {
		t.Errorf("expected rejection log, got %q", out)
	}
	if !strings.Contains(out, `"expected_crc":10577`) || !strings.Contains(out, `"received_crc":24549`) {
		t.Errorf("expected crc fields in log, got %q", out)
	}
}

func TestChannel_Recorder(t *testing.T) {
	stats := NewStatistics()
	ch, bus := newTestChannel(t, WithRecorder(stats))
	collect(ch)

	corrupt := bytes.Clone(scenarioFrame)
	corrupt[1] ^= 0x80
	ack, _ := ch.Codec().Encode(0, PacketAck)

	bus.inject(scenarioFrame)
	ch.Poll()
	bus.inject(corrupt)
	ch.Poll()
	bus.inject(ack)
	ch.Poll()
	bus.inject(scenarioFrame[:2])
	ch.Poll()
	ch.Poll() // idle, not counted

	_ = ch.Send(1) // no address
	_ = ch.SendToPeer(0x10, 1)

	if stats.TotalFrames != 4 {
		t.Errorf("TotalFrames = %d, want 4", stats.TotalFrames)
	}
	if stats.DeliveredFrames != 1 || stats.CRCErrors != 1 || stats.ReservedTypes != 1 || stats.MalformedFrames != 1 {
		t.Errorf("unexpected counters: %+v", stats)
	}
	if stats.Sends != 2 || stats.SendErrors != 1 {
		t.Errorf("Sends = %d SendErrors = %d, want 2 and 1", stats.Sends, stats.SendErrors)
	}
}

func TestNew_UnsupportedPayload(t *testing.T) {
	if _, err := New[string](); !errors.Is(err, ErrUnsupportedPayload) {
		t.Errorf("expected ErrUnsupportedPayload, got %v", err)
	}
}

func TestNew_UnexportedFieldPayload(t *testing.T) {
	type reading struct {
		value int32
		Unit  uint8
	}
	if _, err := New[reading](); !errors.Is(err, ErrUnsupportedPayload) {
		t.Errorf("expected ErrUnsupportedPayload, got %v", err)
	}
}
