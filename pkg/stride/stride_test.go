package stride

import "testing"

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		info    Info
		wantErr bool
	}{
		{"contiguous", Contiguous(128), false},
		{"strided ok", Info{Stride: 64, NStrides: 4, LenPerStride: 32}, false},
		{"zero strides", Info{Stride: 64, NStrides: 0, LenPerStride: 32}, true},
		{"zero len", Info{Stride: 64, NStrides: 4, LenPerStride: 0}, true},
		{"len exceeds stride", Info{Stride: 16, NStrides: 4, LenPerStride: 32}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.info.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestSizeAndSpan(t *testing.T) {
	si := Info{Stride: 100, NStrides: 3, LenPerStride: 40}
	if got := si.Size(); got != 120 {
		t.Fatalf("Size() = %d, want 120", got)
	}
	if got := si.Span(); got != 240 {
		t.Fatalf("Span() = %d, want 240", got)
	}
}

func TestKeyEqualityAndHash(t *testing.T) {
	slice := Slice{File: "f1", Offset: 512}
	info := Info{Stride: 64, NStrides: 2, LenPerStride: 64}
	k1 := NewKey(slice, info)
	k2 := NewKey(slice, info)
	if k1 != k2 {
		t.Fatalf("expected equal keys, got %+v != %+v", k1, k2)
	}
	if k1.Hash() != k2.Hash() {
		t.Fatalf("expected equal hashes")
	}
	k3 := NewKey(slice.Add(64), info)
	if k1 == k3 {
		t.Fatalf("expected distinct keys after offset shift")
	}
}

func TestSliceAdd(t *testing.T) {
	s := Slice{File: "a", Offset: 10}
	s2 := s.Add(20)
	if s2.Offset != 30 || s2.File != "a" {
		t.Fatalf("Add() = %+v, want offset 30 same file", s2)
	}
	if s.Offset != 10 {
		t.Fatalf("Add() must not mutate receiver")
	}
}
