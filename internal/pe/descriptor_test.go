package pe

import (
	"bytes"
	"errors"
	"testing"
)

func TestDecodeDescriptor(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    ImportDescriptor
		wantErr error
	}{
		{
			name: "Field order",
			data: []byte{
				0x01, 0x00, 0x00, 0x00,
				0x02, 0x00, 0x00, 0x00,
				0x03, 0x00, 0x00, 0x00,
				0x04, 0x00, 0x00, 0x00,
				0x05, 0x00, 0x00, 0x00,
			},
			want: ImportDescriptor{1, 2, 3, 4, 5},
		},
		{
			name: "Little endian",
			data: []byte{
				0x78, 0x56, 0x34, 0x12,
				0xFF, 0xFF, 0xFF, 0xFF,
				0x00, 0x00, 0x00, 0x00,
				0x00, 0x20, 0x00, 0x00,
				0x10, 0x20, 0x00, 0x00,
			},
			want: ImportDescriptor{0x12345678, 0xFFFFFFFF, 0, 0x2000, 0x2010},
		},
		{
			name:    "Short buffer",
			data:    make([]byte, 19),
			wantErr: ErrMalformedRecord,
		},
		{
			name:    "Empty buffer",
			data:    nil,
			wantErr: ErrMalformedRecord,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeDescriptor(tt.data)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("DecodeDescriptor() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeDescriptor() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("DecodeDescriptor() = %v, want %v", got, tt.want)
			}
			if enc := got.Bytes(); !bytes.Equal(enc, tt.data) {
				t.Errorf("Bytes() = % X, want % X", enc, tt.data)
			}
		})
	}
}

func TestDescriptorRoundTrip(t *testing.T) {
	// Every byte position carries a distinct value.
	data := make([]byte, DescriptorSize)
	for i := range data {
		data[i] = byte(0xA0 + i)
	}

	desc, err := DecodeDescriptor(data)
	if err != nil {
		t.Fatalf("DecodeDescriptor() error = %v", err)
	}
	if !bytes.Equal(desc.Bytes(), data) {
		t.Errorf("Bytes() = % X, want % X", desc.Bytes(), data)
	}

	again, err := DecodeDescriptor(desc.Bytes())
	if err != nil || again != desc {
		t.Errorf("DecodeDescriptor(Bytes()) = %v, %v, want %v", again, err, desc)
	}
}

func TestDecodeDescriptors(t *testing.T) {
	a := ImportDescriptor{OriginalFirstThunk: 0x2100, Name: 0x2200, FirstThunk: 0x2300}
	b := ImportDescriptor{OriginalFirstThunk: 0x3100, Name: 0x3200, FirstThunk: 0x3300}

	tests := []struct {
		name    string
		data    []byte
		want    []ImportDescriptor
		wantErr bool
	}{
		{
			name: "No sentinel",
			data: EncodeDescriptors([]ImportDescriptor{a, b}),
			want: []ImportDescriptor{a, b},
		},
		{
			name: "Zero fill ends table",
			data: append(EncodeDescriptors([]ImportDescriptor{a}), make([]byte, 2*DescriptorSize)...),
			want: []ImportDescriptor{a},
		},
		{
			name: "Empty",
			data: nil,
			want: []ImportDescriptor{},
		},
		{
			name:    "Not a multiple of record size",
			data:    append(EncodeDescriptors([]ImportDescriptor{a}), 0, 0, 0, 0),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeDescriptors(tt.data)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedRecord) {
					t.Fatalf("DecodeDescriptors() error = %v, want ErrMalformedRecord", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeDescriptors() error = %v", err)
			}
			if !equalTables(got, tt.want) {
				t.Errorf("DecodeDescriptors() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEncodeDescriptorsHasNoSentinel(t *testing.T) {
	table := []ImportDescriptor{{Name: 1}, {Name: 2}}
	if got := len(EncodeDescriptors(table)); got != 2*DescriptorSize {
		t.Errorf("len(EncodeDescriptors()) = %d, want %d", got, 2*DescriptorSize)
	}
	if got := len(EncodeDescriptors(nil)); got != 0 {
		t.Errorf("len(EncodeDescriptors(nil)) = %d, want 0", got)
	}
}

func TestDescriptorIsZero(t *testing.T) {
	if !(ImportDescriptor{}).IsZero() {
		t.Error("zero descriptor should be the sentinel")
	}
	if (ImportDescriptor{TimeDateStamp: 1}).IsZero() {
		t.Error("descriptor with a timestamp is not the sentinel")
	}
}

func equalTables(a, b []ImportDescriptor) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
