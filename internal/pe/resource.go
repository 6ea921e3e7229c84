package pe

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf16"
)

// ErrNoVersionInfo reports an image without a usable RT_VERSION resource.
var ErrNoVersionInfo = errors.New("PE文件没有版本资源")

// ResourceInfo contains PE resource information.
type ResourceInfo struct {
	VersionInfo *VersionInfo
	HasIcon     bool
	IconCount   int
	StringCount int
}

// VersionInfo contains version information from RT_VERSION resource.
type VersionInfo struct {
	// FixedFileVersion is VS_FIXEDFILEINFO's file version as a.b.c.d, the
	// value the run-time loader matches import points against.
	FixedFileVersion    string
	FixedProductVersion string

	FileVersion      string
	ProductVersion   string
	CompanyName      string
	ProductName      string
	FileDescription  string
	InternalName     string
	OriginalFilename string
	LegalCopyright   string
}

// Resource types.
const (
	RT_ICON       = 3
	RT_STRING     = 6
	RT_GROUP_ICON = 14
	RT_VERSION    = 16
)

const (
	resourceDirectorySize = 16
	resourceEntrySize     = 8
	resourceSubdirFlag    = 0x80000000
	fixedFileInfoMagic    = 0xFEEF04BD
	fixedFileInfoSize     = 52
)

// resourceDirectory is the part of IMAGE_RESOURCE_DIRECTORY that matters.
type resourceDirectory struct {
	NumberOfNamedEntries uint16
	NumberOfIdEntries    uint16
}

// resourceDirectoryEntry is IMAGE_RESOURCE_DIRECTORY_ENTRY.
type resourceDirectoryEntry struct {
	NameOrID                uint32
	OffsetToDataOrDirectory uint32
}

func (e resourceDirectoryEntry) isDirectory() bool {
	return e.OffsetToDataOrDirectory&resourceSubdirFlag != 0
}

func (e resourceDirectoryEntry) offset() uint32 {
	return e.OffsetToDataOrDirectory &^ resourceSubdirFlag
}

// ParseResources extracts resource information from the image.
func ParseResources(img *Image) (*ResourceInfo, error) {
	info := &ResourceInfo{}

	dir := img.DataDirectory(pe.IMAGE_DIRECTORY_ENTRY_RESOURCE)
	if dir.VirtualAddress == 0 || dir.Size == 0 {
		return info, nil // No resources
	}

	entries, err := readResourceEntries(img, dir.VirtualAddress)
	if err != nil {
		return info, err
	}

	for _, entry := range entries {
		if !entry.isDirectory() {
			continue
		}
		switch entry.NameOrID {
		case RT_VERSION:
			data, err := readFirstResource(img, dir.VirtualAddress, dir.VirtualAddress+entry.offset())
			if err == nil {
				info.VersionInfo = parseVersionInfo(data)
			}
		case RT_ICON:
			info.HasIcon = true
			info.IconCount++
		case RT_GROUP_ICON:
			info.HasIcon = true
		case RT_STRING:
			info.StringCount++
		}
	}

	return info, nil
}

// FileVersion returns the fixed file version (a.b.c.d) of the image.
func FileVersion(img *Image) (string, error) {
	info, err := ParseResources(img)
	if err != nil {
		return "", fmt.Errorf("解析资源失败: %w", err)
	}
	if info.VersionInfo == nil || info.VersionInfo.FixedFileVersion == "" {
		return "", ErrNoVersionInfo
	}
	return info.VersionInfo.FixedFileVersion, nil
}

// readResourceEntries reads the entries of the directory at rva.
func readResourceEntries(img *Image, rva uint32) ([]resourceDirectoryEntry, error) {
	hdr, err := img.ReadRVA(rva, resourceDirectorySize)
	if err != nil {
		return nil, err
	}
	dir := resourceDirectory{
		NumberOfNamedEntries: binary.LittleEndian.Uint16(hdr[12:14]),
		NumberOfIdEntries:    binary.LittleEndian.Uint16(hdr[14:16]),
	}

	total := uint32(dir.NumberOfNamedEntries) + uint32(dir.NumberOfIdEntries)
	if total == 0 {
		return nil, nil
	}

	buf, err := img.ReadRVA(rva+resourceDirectorySize, total*resourceEntrySize)
	if err != nil {
		return nil, err
	}

	entries := make([]resourceDirectoryEntry, total)
	for i := range entries {
		entries[i] = resourceDirectoryEntry{
			NameOrID:                binary.LittleEndian.Uint32(buf[i*resourceEntrySize:]),
			OffsetToDataOrDirectory: binary.LittleEndian.Uint32(buf[i*resourceEntrySize+4:]),
		}
	}
	return entries, nil
}

// readFirstResource follows the first entry of the name and language levels
// below a type directory and returns the resource data.
func readFirstResource(img *Image, base, typeDir uint32) ([]byte, error) {
	rva := typeDir
	for level := 0; level < 2; level++ {
		entries, err := readResourceEntries(img, rva)
		if err != nil {
			return nil, err
		}
		// Name level points to a directory, language level to data.
		if len(entries) == 0 || entries[0].isDirectory() != (level == 0) {
			return nil, ErrNoVersionInfo
		}
		rva = base + entries[0].offset()
	}

	// IMAGE_RESOURCE_DATA_ENTRY: OffsetToData (an RVA) and Size.
	dataEntry, err := img.ReadRVA(rva, 16)
	if err != nil {
		return nil, err
	}
	return img.ReadRVA(binary.LittleEndian.Uint32(dataEntry[0:4]), binary.LittleEndian.Uint32(dataEntry[4:8]))
}

func parseVersionInfo(data []byte) *VersionInfo {
	if len(data) < 6 {
		return nil
	}

	info := &VersionInfo{
		CompanyName:      extractVersionString(data, "CompanyName"),
		FileDescription:  extractVersionString(data, "FileDescription"),
		FileVersion:      extractVersionString(data, "FileVersion"),
		InternalName:     extractVersionString(data, "InternalName"),
		LegalCopyright:   extractVersionString(data, "LegalCopyright"),
		OriginalFilename: extractVersionString(data, "OriginalFilename"),
		ProductName:      extractVersionString(data, "ProductName"),
		ProductVersion:   extractVersionString(data, "ProductVersion"),
	}

	var magic [4]byte
	binary.LittleEndian.PutUint32(magic[:], fixedFileInfoMagic)
	if i := bytes.Index(data, magic[:]); i >= 0 && len(data)-i >= fixedFileInfoSize {
		info.FixedFileVersion = formatVersion(binary.LittleEndian.Uint32(data[i+8:]), binary.LittleEndian.Uint32(data[i+12:]))
		info.FixedProductVersion = formatVersion(binary.LittleEndian.Uint32(data[i+16:]), binary.LittleEndian.Uint32(data[i+20:]))
	}

	if info.FileVersion == "" {
		info.FileVersion = info.FixedFileVersion
	}
	if info.ProductVersion == "" {
		info.ProductVersion = info.FixedProductVersion
	}

	return info
}

func formatVersion(ms, ls uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", ms>>16, ms&0xFFFF, ls>>16, ls&0xFFFF)
}

func extractVersionString(data []byte, key string) string {
	// Keys are stored as UTF-16LE followed by a NUL character.
	keyPos := bytes.Index(data, append(encodeUTF16(key), 0, 0))
	if keyPos == -1 {
		return ""
	}

	valueStart := keyPos + len(key)*2 + 2

	// Align to 4-byte boundary
	if valueStart%4 != 0 {
		valueStart += 4 - (valueStart % 4)
	}

	if valueStart >= len(data) {
		return ""
	}

	// Read until null terminator
	valueEnd := valueStart
	for valueEnd+1 < len(data) {
		if data[valueEnd] == 0 && data[valueEnd+1] == 0 {
			break
		}
		valueEnd += 2
	}

	if valueEnd+1 >= len(data) {
		return ""
	}

	return decodeUTF16(data[valueStart:valueEnd])
}

func encodeUTF16(s string) []byte {
	u16 := utf16.Encode([]rune(s))
	result := make([]byte, len(u16)*2)
	for i, v := range u16 {
		binary.LittleEndian.PutUint16(result[i*2:], v)
	}
	return result
}

func decodeUTF16(data []byte) string {
	if len(data)%2 != 0 {
		return ""
	}

	u16 := make([]uint16, len(data)/2)
	for i := range u16 {
		u16[i] = binary.LittleEndian.Uint16(data[i*2:])
	}

	return string(utf16.Decode(u16))
}
