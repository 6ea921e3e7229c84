package pe

import (
	"bytes"
	"debug/pe"
	"fmt"
)

// AddSection appends a new section holding data. The section gets its
// address and file offset from the next AlignSections call.
func (img *Image) AddSection(name string, data []byte, characteristics uint32) (*Section, error) {
	// Validate section name (max 8 bytes).
	if len(name) > 8 {
		return nil, fmt.Errorf("节区名称过长: %d 字节 (最大8字节)", len(name))
	}
	if img.Section(name) != nil {
		return nil, fmt.Errorf("节区 %s 已存在", name)
	}

	if err := img.checkHeaderSpace(len(img.sections) + 1); err != nil {
		return nil, err
	}

	s := &Section{data: bytes.Clone(data)}
	s.Name = name
	copy(s.rawName[:], name)
	s.VirtualSize = uint32(len(data))
	s.Characteristics = characteristics

	img.sections = append(img.sections, s)
	return s, nil
}

// RemoveSection drops the named section and reports whether it existed.
func (img *Image) RemoveSection(name string) bool {
	for i, s := range img.sections {
		if s.Name == name {
			img.sections = append(img.sections[:i], img.sections[i+1:]...)
			return true
		}
	}
	return false
}

// AlignSections lays out sections added since the last call after every
// existing section, aligned to FileAlignment and SectionAlignment, and
// recomputes SizeOfImage. Existing sections never move.
func (img *Image) AlignSections() error {
	nextVA := alignUp(img.sizeOfHeaders, img.sectionAlignment)
	rawEnd := alignUp(img.sizeOfHeaders, img.fileAlignment)

	var prev *Section
	for _, s := range img.sections {
		if !s.placed {
			continue
		}
		if prev != nil && s.VirtualAddress < prev.VirtualAddress+prev.span() {
			return fmt.Errorf("%w: 节区 %s (0x%X) 与 %s 重叠", ErrSectionLayout, s.Name, s.VirtualAddress, prev.Name)
		}
		prev = s

		nextVA = max(nextVA, alignUp(s.VirtualAddress+s.span(), img.sectionAlignment))
		if s.Size > 0 {
			rawEnd = max(rawEnd, alignUp(s.Offset+s.Size, img.fileAlignment))
		}
	}

	for _, s := range img.sections {
		if s.placed {
			continue
		}

		s.VirtualAddress = nextVA
		s.Size = alignUp(uint32(len(s.data)), img.fileAlignment)
		if s.Size > 0 {
			s.Offset = rawEnd
			rawEnd += s.Size
		} else {
			s.Offset = 0
		}
		s.placed = true

		nextVA = alignUp(s.VirtualAddress+s.span(), img.sectionAlignment)
	}

	img.sizeOfImage = nextVA
	return nil
}

// checkHeaderSpace verifies there's space for count section headers.
func (img *Image) checkHeaderSpace(count int) error {
	newTableEnd := img.sectionTableOffset + int64(count*sectionHeaderSize)
	if newTableEnd > int64(img.sizeOfHeaders) {
		return fmt.Errorf("%w，无法添加新节区", ErrHeaderSpace)
	}

	// Check against first section's file offset.
	for _, s := range img.sections {
		if s.Size > 0 && int64(s.Offset) < newTableEnd {
			return fmt.Errorf("%w: 节区 %s 的数据位于 0x%X", ErrHeaderSpace, s.Name, s.Offset)
		}
	}

	// Linkers may park the bound import table in the slack after the table.
	oldTableEnd := img.sectionTableOffset + int64(img.origSections*sectionHeaderSize)
	bound := img.DataDirectory(pe.IMAGE_DIRECTORY_ENTRY_BOUND_IMPORT)
	if bound.VirtualAddress != 0 && int64(bound.VirtualAddress) < newTableEnd &&
		int64(bound.VirtualAddress)+int64(bound.Size) > oldTableEnd {
		return fmt.Errorf("%w: 绑定导入表占用了节区头表之后的空间", ErrHeaderSpace)
	}

	return nil
}

// alignUp aligns a value up to the nearest multiple of alignment.
func alignUp(value, alignment uint32) uint32 {
	if alignment == 0 {
		return value
	}
	return ((value + alignment - 1) / alignment) * alignment
}

// SectionCharacteristics groups common section characteristics.
type SectionCharacteristics struct {
	Code             uint32 // Executable code section.
	InitializedData  uint32 // Initialized data section.
	ReadOnly         uint32 // Read-only section.
	ReadWrite        uint32 // Read-write section.
	ReadExecute      uint32 // Read-execute section.
	ReadWriteExecute uint32 // Read-write-execute section.
}

// CommonCharacteristics provides commonly used section characteristics.
var CommonCharacteristics = SectionCharacteristics{
	Code:             pe.IMAGE_SCN_CNT_CODE | pe.IMAGE_SCN_MEM_READ | pe.IMAGE_SCN_MEM_EXECUTE,
	InitializedData:  pe.IMAGE_SCN_CNT_INITIALIZED_DATA | pe.IMAGE_SCN_MEM_READ,
	ReadOnly:         pe.IMAGE_SCN_CNT_INITIALIZED_DATA | pe.IMAGE_SCN_MEM_READ,
	ReadWrite:        pe.IMAGE_SCN_CNT_INITIALIZED_DATA | pe.IMAGE_SCN_MEM_READ | pe.IMAGE_SCN_MEM_WRITE,
	ReadExecute:      pe.IMAGE_SCN_CNT_CODE | pe.IMAGE_SCN_MEM_READ | pe.IMAGE_SCN_MEM_EXECUTE,
	ReadWriteExecute: pe.IMAGE_SCN_CNT_INITIALIZED_DATA | pe.IMAGE_SCN_MEM_READ | pe.IMAGE_SCN_MEM_WRITE | pe.IMAGE_SCN_MEM_EXECUTE,
}
