package pe

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"io"
)

// ChecksumInfo contains PE checksum verification results.
type ChecksumInfo struct {
	Stored   uint32
	Computed uint32
	Valid    bool
}

// VerifyChecksum recomputes the checksum of the loaded file and compares it
// with the value stored in the optional header.
func VerifyChecksum(img *Image) (*ChecksumInfo, error) {
	var storedChecksum uint32

	if oh32, ok := img.file.OptionalHeader.(*pe.OptionalHeader32); ok {
		storedChecksum = oh32.CheckSum
	} else if oh64, ok := img.file.OptionalHeader.(*pe.OptionalHeader64); ok {
		storedChecksum = oh64.CheckSum
	}

	// If checksum is 0, file is not checksummed (common for non-system files)
	if storedChecksum == 0 {
		return &ChecksumInfo{Valid: true}, nil
	}

	computed, err := CalculatePEChecksum(bytes.NewReader(img.raw), int64(len(img.raw)), img.optOffset+64)
	if err != nil {
		return nil, err
	}

	return &ChecksumInfo{
		Stored:   storedChecksum,
		Computed: computed,
		Valid:    computed == storedChecksum,
	}, nil
}

// CalculatePEChecksum calculates the PE checksum of the first filesize bytes
// of r, treating the 4 bytes at checksumOffset as zero. A negative
// checksumOffset skips nothing.
func CalculatePEChecksum(r io.ReaderAt, filesize int64, checksumOffset int64) (uint32, error) {
	var checksum uint64
	buf := make([]byte, 4)

	// Process file in 4-byte chunks
	for offset := int64(0); offset < filesize; offset += 4 {
		// Skip checksum field itself
		if checksumOffset >= 0 && offset >= checksumOffset && offset < checksumOffset+4 {
			continue
		}

		n, err := r.ReadAt(buf, offset)
		if err != nil && err != io.EOF {
			return 0, err
		}

		// Handle partial read at end of file
		for i := n; i < 4; i++ {
			buf[i] = 0
		}

		checksum += uint64(binary.LittleEndian.Uint32(buf))

		// Fold high 32 bits into low 32 bits
		if checksum > 0xFFFFFFFF {
			checksum = (checksum & 0xFFFFFFFF) + (checksum >> 32)
		}
	}

	// Fold to 16 bits, then add the file size.
	checksum = (checksum & 0xFFFF) + (checksum >> 16)
	checksum = (checksum & 0xFFFF) + (checksum >> 16)
	checksum += (checksum >> 16)
	checksum &= 0xFFFF

	return uint32(checksum + uint64(filesize)), nil
}
