package pe

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const sectionHeaderSize = 40

// Section is a section of an Image. Header fields follow debug/pe; the raw
// data is owned by the Image.
type Section struct {
	pe.SectionHeader
	rawName [8]byte
	data    []byte
	placed  bool
}

// span is the number of bytes the section occupies once mapped.
func (s *Section) span() uint32 {
	if s.VirtualSize != 0 {
		return s.VirtualSize
	}
	return s.Size
}

// Data returns the raw file data of the section.
func (s *Section) Data() []byte {
	return s.data
}

// Content returns the mapped view of the section: VirtualSize bytes, with
// everything past the raw data zero-filled.
func (s *Section) Content() []byte {
	out := make([]byte, s.span())
	copy(out, s.data)
	return out
}

// Image is a PE file held in memory. Sections can be removed and appended,
// data directories rewritten, and the result serialized to a new file.
type Image struct {
	filepath string
	mode     fs.FileMode
	raw      []byte
	file     *pe.File

	is64               bool
	peOffset           int64
	optOffset          int64
	dataDirOffset      int64
	sectionTableOffset int64
	fileAlignment      uint32
	sectionAlignment   uint32
	sizeOfHeaders      uint32
	sizeOfImage        uint32
	origSections       int

	sections      []*Section
	dirs          []pe.DataDirectory
	overlay       []byte
	overlayOffset int64

	updateChecksum bool
}

// NewImage parses data as a PE image. data is not modified.
func NewImage(data []byte) (*Image, error) {
	if len(data) < 64 || data[0] != 'M' || data[1] != 'Z' {
		return nil, fmt.Errorf("解析PE文件失败: 缺少DOS头")
	}

	f, err := pe.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("解析PE文件失败: %w", err)
	}

	peOffset := int64(binary.LittleEndian.Uint32(data[60:64]))
	img := &Image{
		raw:                data,
		file:               f,
		peOffset:           peOffset,
		optOffset:          peOffset + 4 + 20,
		sectionTableOffset: peOffset + 4 + 20 + int64(f.FileHeader.SizeOfOptionalHeader),
		origSections:       len(f.Sections),
	}

	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		img.dataDirOffset = img.optOffset + 96
		img.fileAlignment = oh.FileAlignment
		img.sectionAlignment = oh.SectionAlignment
		img.sizeOfHeaders = oh.SizeOfHeaders
		img.sizeOfImage = oh.SizeOfImage
		img.dirs = append([]pe.DataDirectory(nil), oh.DataDirectory[:min(oh.NumberOfRvaAndSizes, 16)]...)
	case *pe.OptionalHeader64:
		img.is64 = true
		img.dataDirOffset = img.optOffset + 112
		img.fileAlignment = oh.FileAlignment
		img.sectionAlignment = oh.SectionAlignment
		img.sizeOfHeaders = oh.SizeOfHeaders
		img.sizeOfImage = oh.SizeOfImage
		img.dirs = append([]pe.DataDirectory(nil), oh.DataDirectory[:min(oh.NumberOfRvaAndSizes, 16)]...)
	default:
		return nil, fmt.Errorf("无法读取可选头")
	}

	if int64(img.sizeOfHeaders) > int64(len(data)) || img.sectionTableOffset > int64(img.sizeOfHeaders) {
		return nil, fmt.Errorf("解析PE文件失败: SizeOfHeaders 0x%X 无效", img.sizeOfHeaders)
	}

	rawEnd := int64(img.sizeOfHeaders)
	for i, s := range f.Sections {
		sec := &Section{SectionHeader: s.SectionHeader, placed: true}

		hdr := img.sectionTableOffset + int64(i*sectionHeaderSize)
		copy(sec.rawName[:], data[hdr:hdr+8])

		if s.Offset != 0 && s.Size != 0 && int64(s.Offset) < int64(len(data)) {
			end := min(int64(s.Offset)+int64(s.Size), int64(len(data)))
			sec.data = bytes.Clone(data[s.Offset:end])
			rawEnd = max(rawEnd, end)
		}

		img.sections = append(img.sections, sec)
	}

	if rawEnd < int64(len(data)) {
		img.overlay = bytes.Clone(data[rawEnd:])
		img.overlayOffset = rawEnd
	}

	return img, nil
}

// Is64 reports whether the image is PE32+.
func (img *Image) Is64() bool {
	return img.is64
}

// Section returns the section with the given name, or nil.
func (img *Image) Section(name string) *Section {
	for _, s := range img.sections {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Sections returns the current sections in table order.
func (img *Image) Sections() []*Section {
	return append([]*Section(nil), img.sections...)
}

// Overlay returns the data stored after the last section.
func (img *Image) Overlay() []byte {
	return img.overlay
}

// mappedEnd returns the end RVA of s once loaded. The loader maps whole
// pages, so the tail up to the next SectionAlignment boundary reads as zero.
func (img *Image) mappedEnd(s *Section) uint64 {
	return uint64(s.VirtualAddress) + uint64(alignUp(s.span(), img.sectionAlignment))
}

// sectionAt returns the section mapping rva. A section's own span wins over
// the zero-filled tail of a preceding one.
func (img *Image) sectionAt(rva uint32) *Section {
	for _, s := range img.sections {
		if rva >= s.VirtualAddress && uint64(rva) < uint64(s.VirtualAddress)+uint64(s.span()) {
			return s
		}
	}
	for _, s := range img.sections {
		if rva >= s.VirtualAddress && uint64(rva) < img.mappedEnd(s) {
			return s
		}
	}
	return nil
}

// ReadRVA reads size bytes at a Relative Virtual Address.
func (img *Image) ReadRVA(rva, size uint32) ([]byte, error) {
	end := uint64(rva) + uint64(size)

	if s := img.sectionAt(rva); s != nil {
		if end > img.mappedEnd(s) {
			return nil, &AddressError{RVA: rva, Size: size}
		}
		out := make([]byte, size)
		if off := rva - s.VirtualAddress; int(off) < len(s.data) && off < s.span() {
			copy(out, s.data[off:min(uint32(len(s.data)), s.span())])
		}
		return out, nil
	}

	// Headers are mapped at RVA 0 as well.
	if rva != 0 && end <= uint64(img.sizeOfHeaders) {
		return bytes.Clone(img.raw[rva:end]), nil
	}

	return nil, &AddressError{RVA: rva, Size: size}
}

// ReadCString reads a NUL-terminated string at rva. The terminator must lie
// inside the same mapped region.
func (img *Image) ReadCString(rva uint32) (string, error) {
	var region []byte
	var limit int

	if s := img.sectionAt(rva); s != nil {
		off := rva - s.VirtualAddress
		limit = int(img.mappedEnd(s) - uint64(rva))
		if raw := min(uint32(len(s.data)), s.span()); off < raw {
			region = s.data[off:raw]
		}
	} else if rva != 0 && rva < img.sizeOfHeaders {
		region = img.raw[rva:img.sizeOfHeaders]
		limit = len(region)
	} else {
		return "", &AddressError{RVA: rva, Size: 1}
	}

	if i := bytes.IndexByte(region[:min(len(region), limit)], 0); i >= 0 {
		return string(region[:i]), nil
	}
	// Past the raw data the mapped section is zero-filled.
	if len(region) < limit {
		return string(region), nil
	}

	return "", fmt.Errorf("%w: RVA 0x%X 处的字符串没有结束符", ErrUnresolvableAddress, rva)
}

// DataDirectory returns data directory entry i, or a zero entry when the
// image declares fewer directories.
func (img *Image) DataDirectory(i int) pe.DataDirectory {
	if i < 0 || i >= len(img.dirs) {
		return pe.DataDirectory{}
	}
	return img.dirs[i]
}

// SetDataDirectory replaces data directory entry i.
func (img *Image) SetDataDirectory(i int, dir pe.DataDirectory) error {
	if i < 0 || i >= len(img.dirs) {
		return fmt.Errorf("数据目录 %d 不存在 (共 %d 个)", i, len(img.dirs))
	}
	img.dirs[i] = dir
	return nil
}

// ImportDirectory returns the Import Table data directory.
func (img *Image) ImportDirectory() (pe.DataDirectory, error) {
	dir := img.DataDirectory(pe.IMAGE_DIRECTORY_ENTRY_IMPORT)
	if dir.VirtualAddress == 0 {
		return dir, ErrMissingImportDirectory
	}
	return dir, nil
}

// SetImportDirectory points the Import Table data directory at dir.
func (img *Image) SetImportDirectory(dir pe.DataDirectory) error {
	return img.SetDataDirectory(pe.IMAGE_DIRECTORY_ENTRY_IMPORT, dir)
}

// SetUpdateChecksum controls whether Bytes recomputes the header checksum.
func (img *Image) SetUpdateChecksum(enabled bool) {
	img.updateChecksum = enabled
}

// Bytes serializes the image: headers with the current section table and
// data directories, every section's raw data, then the overlay.
func (img *Image) Bytes() ([]byte, error) {
	if err := img.AlignSections(); err != nil {
		return nil, err
	}

	tableEnd := img.sectionTableOffset + int64(len(img.sections)*sectionHeaderSize)
	if tableEnd > int64(img.sizeOfHeaders) {
		return nil, fmt.Errorf("%w: 需要 %d 个节区头", ErrHeaderSpace, len(img.sections))
	}

	rawEnd := int64(img.sizeOfHeaders)
	for _, s := range img.sections {
		if s.Size > 0 {
			rawEnd = max(rawEnd, int64(s.Offset)+int64(s.Size))
		}
	}

	out := make([]byte, rawEnd+int64(len(img.overlay)))
	copy(out, img.raw[:img.sizeOfHeaders])

	// Clear the old table; it may have had more entries.
	oldEnd := min(img.sectionTableOffset+int64(img.origSections*sectionHeaderSize), int64(img.sizeOfHeaders))
	clear(out[img.sectionTableOffset:max(oldEnd, tableEnd)])
	for i, s := range img.sections {
		putSectionHeader(out[img.sectionTableOffset+int64(i*sectionHeaderSize):], s)
	}

	binary.LittleEndian.PutUint16(out[img.peOffset+4+2:], uint16(len(img.sections)))
	binary.LittleEndian.PutUint32(out[img.optOffset+56:], img.sizeOfImage)
	for i, dir := range img.dirs {
		off := img.dataDirOffset + int64(i*8)
		binary.LittleEndian.PutUint32(out[off:], dir.VirtualAddress)
		binary.LittleEndian.PutUint32(out[off+4:], dir.Size)
	}

	for _, s := range img.sections {
		if s.Size > 0 {
			copy(out[s.Offset:int64(s.Offset)+int64(s.Size)], s.data)
		}
	}
	copy(out[rawEnd:], img.overlay)

	if img.updateChecksum {
		checksumOffset := img.optOffset + 64
		binary.LittleEndian.PutUint32(out[checksumOffset:], 0)
		sum, err := CalculatePEChecksum(bytes.NewReader(out), int64(len(out)), checksumOffset)
		if err != nil {
			return nil, fmt.Errorf("计算校验和失败: %w", err)
		}
		binary.LittleEndian.PutUint32(out[checksumOffset:], sum)
	}

	return out, nil
}

// WriteFile serializes the image to path. The data goes to a staging file
// next to path first and is renamed into place only once fully written, so
// a failed write never leaves a partial file at path.
func (img *Image) WriteFile(path string) error {
	data, err := img.Bytes()
	if err != nil {
		return err
	}

	staging := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	f, err := os.OpenFile(staging, os.O_WRONLY|os.O_CREATE|os.O_EXCL, img.Mode())
	if err != nil {
		return fmt.Errorf("创建输出文件失败: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(staging)
		return fmt.Errorf("写入输出文件失败: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(staging)
		return fmt.Errorf("同步文件失败: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(staging)
		return fmt.Errorf("写入输出文件失败: %w", err)
	}

	if err := os.Rename(staging, path); err != nil {
		_ = os.Remove(staging)
		return fmt.Errorf("重命名输出文件失败: %w", err)
	}

	return nil
}

// putSectionHeader writes a 40-byte IMAGE_SECTION_HEADER.
func putSectionHeader(buf []byte, s *Section) {
	copy(buf[0:8], s.rawName[:])                                      // Name.
	binary.LittleEndian.PutUint32(buf[8:12], s.VirtualSize)           // VirtualSize.
	binary.LittleEndian.PutUint32(buf[12:16], s.VirtualAddress)       // VirtualAddress.
	binary.LittleEndian.PutUint32(buf[16:20], s.Size)                 // SizeOfRawData.
	binary.LittleEndian.PutUint32(buf[20:24], s.Offset)               // PointerToRawData.
	binary.LittleEndian.PutUint32(buf[24:28], s.PointerToRelocations) // PointerToRelocations.
	binary.LittleEndian.PutUint32(buf[28:32], s.PointerToLineNumbers) // PointerToLinenumbers.
	binary.LittleEndian.PutUint16(buf[32:34], s.NumberOfRelocations)  // NumberOfRelocations.
	binary.LittleEndian.PutUint16(buf[34:36], s.NumberOfLineNumbers)  // NumberOfLinenumbers.
	binary.LittleEndian.PutUint32(buf[36:40], s.Characteristics)      // Characteristics.
}
