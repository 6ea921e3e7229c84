package pe

import (
	"encoding/binary"
	"fmt"
)

// DescriptorSize is sizeof(IMAGE_IMPORT_DESCRIPTOR).
const DescriptorSize = 20

// ImportDescriptor represents IMAGE_IMPORT_DESCRIPTOR.
// It is a comparable value: two descriptors are the same record when all
// five fields match, so it can key maps directly.
type ImportDescriptor struct {
	OriginalFirstThunk uint32 // RVA to Import Name Table (INT).
	TimeDateStamp      uint32 // Usually 0.
	ForwarderChain     uint32 // Usually 0.
	Name               uint32 // RVA to DLL name.
	FirstThunk         uint32 // RVA to Import Address Table (IAT).
}

// DecodeDescriptor decodes the first DescriptorSize bytes of b.
func DecodeDescriptor(b []byte) (ImportDescriptor, error) {
	if len(b) < DescriptorSize {
		return ImportDescriptor{}, fmt.Errorf("%w: 需要 %d 字节, 实际 %d 字节", ErrMalformedRecord, DescriptorSize, len(b))
	}

	return ImportDescriptor{
		OriginalFirstThunk: binary.LittleEndian.Uint32(b[0:4]),
		TimeDateStamp:      binary.LittleEndian.Uint32(b[4:8]),
		ForwarderChain:     binary.LittleEndian.Uint32(b[8:12]),
		Name:               binary.LittleEndian.Uint32(b[12:16]),
		FirstThunk:         binary.LittleEndian.Uint32(b[16:20]),
	}, nil
}

// DecodeDescriptors decodes back-to-back records. The length of b must be a
// multiple of DescriptorSize. An all-zero record ends the table.
func DecodeDescriptors(b []byte) ([]ImportDescriptor, error) {
	if len(b)%DescriptorSize != 0 {
		return nil, fmt.Errorf("%w: 长度 %d 不是 %d 的整数倍", ErrMalformedRecord, len(b), DescriptorSize)
	}

	table := make([]ImportDescriptor, 0, len(b)/DescriptorSize)
	for off := 0; off < len(b); off += DescriptorSize {
		desc, err := DecodeDescriptor(b[off:])
		if err != nil {
			return nil, err
		}
		if desc.IsZero() {
			break
		}
		table = append(table, desc)
	}

	return table, nil
}

// IsZero reports whether d is the end-of-table sentinel.
func (d ImportDescriptor) IsZero() bool {
	return d == ImportDescriptor{}
}

// Append appends the 20-byte encoding of d to b.
func (d ImportDescriptor) Append(b []byte) []byte {
	var buf [DescriptorSize]byte
	encodeDescriptor(buf[:], d)
	return append(b, buf[:]...)
}

// Bytes returns the 20-byte encoding of d.
func (d ImportDescriptor) Bytes() []byte {
	return d.Append(make([]byte, 0, DescriptorSize))
}

func (d ImportDescriptor) String() string {
	return fmt.Sprintf("{INT: 0x%08X, 时间戳: 0x%08X, 转发链: 0x%08X, 名称: 0x%08X, IAT: 0x%08X}",
		d.OriginalFirstThunk, d.TimeDateStamp, d.ForwarderChain, d.Name, d.FirstThunk)
}

// EncodeDescriptors concatenates the encodings of table. No sentinel is
// appended: the length of the result is authoritative.
func EncodeDescriptors(table []ImportDescriptor) []byte {
	buf := make([]byte, 0, len(table)*DescriptorSize)
	for _, desc := range table {
		buf = desc.Append(buf)
	}
	return buf
}

// encodeDescriptor encodes an ImportDescriptor to bytes.
func encodeDescriptor(buf []byte, desc ImportDescriptor) {
	binary.LittleEndian.PutUint32(buf[0:4], desc.OriginalFirstThunk)
	binary.LittleEndian.PutUint32(buf[4:8], desc.TimeDateStamp)
	binary.LittleEndian.PutUint32(buf[8:12], desc.ForwarderChain)
	binary.LittleEndian.PutUint32(buf[12:16], desc.Name)
	binary.LittleEndian.PutUint32(buf[16:20], desc.FirstThunk)
}
