package pe

import (
	"debug/pe"
	"encoding/binary"
)

// SignatureInfo contains PE signature information.
type SignatureInfo struct {
	IsSigned        bool
	Offset          uint32
	Size            uint32
	Revision        uint16
	CertificateType uint16
}

// PE signature constants (Windows SDK naming convention).
//
//nolint:revive // ALL_CAPS matches Windows SDK naming
const (
	WIN_CERT_REVISION_2_0          = 0x0200
	WIN_CERT_TYPE_PKCS_SIGNED_DATA = 0x0002
)

// HasSignature checks if the PE file has a digital signature. The security
// directory holds a file offset, not an RVA.
func (img *Image) HasSignature() (bool, uint32, uint32) {
	dir := img.DataDirectory(pe.IMAGE_DIRECTORY_ENTRY_SECURITY)
	return dir.VirtualAddress != 0 && dir.Size != 0, dir.VirtualAddress, dir.Size
}

// Signature describes the certificate table of the image, reading the
// leading WIN_CERTIFICATE header when it lies inside the overlay.
func (img *Image) Signature() *SignatureInfo {
	hasSig, certOffset, certSize := img.HasSignature()
	info := &SignatureInfo{IsSigned: hasSig, Offset: certOffset, Size: certSize}
	if !hasSig {
		return info
	}

	start := int64(certOffset) - img.overlayOffset
	if img.overlay != nil && start >= 0 && start+8 <= int64(len(img.overlay)) {
		// WIN_CERTIFICATE: dwLength, wRevision, wCertificateType.
		info.Revision = binary.LittleEndian.Uint16(img.overlay[start+4:])
		info.CertificateType = binary.LittleEndian.Uint16(img.overlay[start+6:])
	}
	return info
}

// StripSignature clears the security directory and drops the certificate
// table from the overlay. Any rewrite invalidates Authenticode anyway.
func (img *Image) StripSignature() bool {
	hasSig, certOffset, certSize := img.HasSignature()
	if !hasSig {
		return false
	}

	_ = img.SetDataDirectory(pe.IMAGE_DIRECTORY_ENTRY_SECURITY, pe.DataDirectory{})

	start := int64(certOffset) - img.overlayOffset
	end := start + int64(certSize)
	if img.overlay != nil && start >= 0 && end <= int64(len(img.overlay)) {
		img.overlay = append(img.overlay[:start:start], img.overlay[end:]...)
	}

	return true
}
