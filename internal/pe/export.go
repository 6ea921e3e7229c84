package pe

import (
	"debug/pe"
	"encoding/binary"
	"fmt"
)

// exportDirectorySize is sizeof(IMAGE_EXPORT_DIRECTORY).
const exportDirectorySize = 40

// ExportDirectory represents the PE export directory table.
type ExportDirectory struct {
	Characteristics       uint32
	TimeDateStamp         uint32
	MajorVersion          uint16
	MinorVersion          uint16
	Name                  uint32
	Base                  uint32
	NumberOfFunctions     uint32
	NumberOfNames         uint32
	AddressOfFunctions    uint32
	AddressOfNames        uint32
	AddressOfNameOrdinals uint32
}

// ExportInfo lists the named exports of a module.
type ExportInfo struct {
	Module string
	Names  []string
}

// ParseExports extracts the module name and exported function names. An
// image without export directory yields a nil result and no error.
func ParseExports(img *Image) (*ExportInfo, error) {
	dir := img.DataDirectory(pe.IMAGE_DIRECTORY_ENTRY_EXPORT)

	// No exports
	if dir.VirtualAddress == 0 || dir.Size == 0 {
		return nil, nil
	}

	raw, err := img.ReadRVA(dir.VirtualAddress, exportDirectorySize)
	if err != nil {
		return nil, fmt.Errorf("无法定位导出表: %w", err)
	}
	exportDir := ExportDirectory{
		Characteristics:       binary.LittleEndian.Uint32(raw[0:]),
		TimeDateStamp:         binary.LittleEndian.Uint32(raw[4:]),
		MajorVersion:          binary.LittleEndian.Uint16(raw[8:]),
		MinorVersion:          binary.LittleEndian.Uint16(raw[10:]),
		Name:                  binary.LittleEndian.Uint32(raw[12:]),
		Base:                  binary.LittleEndian.Uint32(raw[16:]),
		NumberOfFunctions:     binary.LittleEndian.Uint32(raw[20:]),
		NumberOfNames:         binary.LittleEndian.Uint32(raw[24:]),
		AddressOfFunctions:    binary.LittleEndian.Uint32(raw[28:]),
		AddressOfNames:        binary.LittleEndian.Uint32(raw[32:]),
		AddressOfNameOrdinals: binary.LittleEndian.Uint32(raw[36:]),
	}

	info := &ExportInfo{}
	if exportDir.Name != 0 {
		info.Module, _ = img.ReadCString(exportDir.Name)
	}

	// No named exports
	if exportDir.NumberOfNames == 0 {
		return info, nil
	}

	namePointers, err := img.ReadRVA(exportDir.AddressOfNames, exportDir.NumberOfNames*4)
	if err != nil {
		return nil, fmt.Errorf("读取导出名称指针失败: %w", err)
	}

	for i := uint32(0); i < exportDir.NumberOfNames; i++ {
		name, err := img.ReadCString(binary.LittleEndian.Uint32(namePointers[i*4:]))
		if err != nil {
			continue
		}
		info.Names = append(info.Names, name)
	}

	return info, nil
}
