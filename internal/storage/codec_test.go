package storage

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestRunCodecRoundTrip(t *testing.T) {
	input := testRun("run-1", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	encoded, err := EncodeRun(input)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeRun(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(decoded, input) {
		t.Fatalf("roundtrip mismatch\ngot=%+v\nwant=%+v", decoded, input)
	}
}

func TestStepsCodecRoundTrip(t *testing.T) {
	input := testBatch("run-1")

	encoded, err := EncodeSteps(input)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeSteps(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(decoded, input) {
		t.Fatalf("roundtrip mismatch\ngot=%+v\nwant=%+v", decoded, input)
	}
}

func TestSummaryCodecRoundTrip(t *testing.T) {
	input := testSummary("run-1")

	encoded, err := EncodeSummary(input)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeSummary(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(decoded, input) {
		t.Fatalf("roundtrip mismatch\ngot=%+v\nwant=%+v", decoded, input)
	}
}

func TestDecodeRunVersionMismatch(t *testing.T) {
	input := testRun("run-1", time.Now().UTC())
	input.CodecVersion++

	encoded, err := EncodeRun(input)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeRun(encoded); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got: %v", err)
	}
}

func TestDecodeStepsVersionMismatch(t *testing.T) {
	input := testBatch("run-1")
	input.SchemaVersion++

	encoded, err := EncodeSteps(input)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeSteps(encoded); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got: %v", err)
	}
}

func TestDecodeSummaryVersionMismatch(t *testing.T) {
	input := testSummary("run-1")
	input.CodecVersion++

	encoded, err := EncodeSummary(input)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeSummary(encoded); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got: %v", err)
	}
}

func TestDecodeRunRejectsMalformedPayload(t *testing.T) {
	if _, err := DecodeRun([]byte("{not json")); err == nil {
		t.Fatal("expected decode error")
	}
}
