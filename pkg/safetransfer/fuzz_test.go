// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package safetransfer

import (
	"bytes"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

func randomReading(rng *rand.Rand) reading {
	return reading{
		ID:      uint16(rng.Intn(1 << 16)),
		Celsius: rng.Float32()*200 - 50,
		Valid:   rng.Intn(2) == 1,
	}
}

// ============================================================
// Codec Fuzz Tests
// ============================================================

func TestFuzz_RoundTrip(t *testing.T) {
	rng := newFuzzRng(t)
	codec := MustCodec[reading]()

	for i := 0; i < getFuzzRounds(); i++ {
		v := randomReading(rng)
		frame, err := codec.Encode(v, PacketData)
		if err != nil {
			t.Fatalf("round %d: Encode error: %v", i, err)
		}
		if !codec.Verify(frame) {
			t.Fatalf("round %d: fresh frame does not verify: % X", i, frame)
		}
		typ, got, err := codec.Decode(frame)
		if err != nil || typ != PacketData || got != v {
			t.Fatalf("round %d: Decode = (%s, %+v, %v), want (DATA, %+v)", i, typ, got, err, v)
		}
	}
}

func TestFuzz_BurstErrorsDetected(t *testing.T) {
	rng := newFuzzRng(t)
	codec := MustCodec[reading]()
	bits := codec.FrameSize() * 8

	for i := 0; i < getFuzzRounds(); i++ {
		frame, _ := codec.Encode(randomReading(rng), PacketData)

		// Flip every bit of a random run of 1-16 bits: CRC-16 detects
		// all bursts no longer than its width.
		length := 1 + rng.Intn(16)
		start := rng.Intn(bits - length + 1)
		mutated := bytes.Clone(frame)
		for b := start; b < start+length; b++ {
			mutated[b/8] ^= 0x80 >> (b % 8)
		}

		if codec.Verify(mutated) {
			t.Fatalf("round %d: burst of %d bits at %d not detected", i, length, start)
		}
	}
}

// ============================================================
// Channel Fuzz Tests
// ============================================================

func TestFuzz_RandomBytes(t *testing.T) {
	rng := newFuzzRng(t)
	ch, bus := newTestChannel(t)
	got := collect(ch)
	size := ch.Codec().FrameSize()

	delivered := 0
	for i := 0; i < getFuzzRounds(); i++ {
		data := make([]byte, rng.Intn(size*3))
		rng.Read(data)
		bus.inject(data)

		// Drain completely; every poll must consume bytes until idle
		for bus.Available() > 0 {
			before := bus.Available()
			res := ch.Poll()
			if res.Status == StatusIdle {
				t.Fatalf("round %d: idle with %d bytes available", i, before)
			}
			if len(res.Frame) > size {
				t.Fatalf("round %d: consumed %d bytes in one poll", i, len(res.Frame))
			}
			if res.Delivered() {
				if !ch.Codec().Verify(res.Frame) {
					t.Fatalf("round %d: delivered unverified frame % X", i, res.Frame)
				}
				delivered++
			}
		}
	}

	if len(*got) != delivered {
		t.Errorf("callback calls = %d, delivered results = %d", len(*got), delivered)
	}
}
