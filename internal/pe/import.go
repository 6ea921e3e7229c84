package pe

import (
	"encoding/binary"
	"fmt"
)

// maxThunks bounds a single INT walk.
const maxThunks = 10000

// ReadImportTable reads import descriptors starting at rva until the
// all-zero descriptor, which is not included in the result.
func ReadImportTable(img *Image, rva uint32) ([]ImportDescriptor, error) {
	var table []ImportDescriptor

	for offset := rva; ; offset += DescriptorSize {
		descData, err := img.ReadRVA(offset, DescriptorSize)
		if err != nil {
			return nil, fmt.Errorf("读取导入描述符失败 (第 %d 项): %w", len(table), err)
		}

		desc, err := DecodeDescriptor(descData)
		if err != nil {
			return nil, err
		}

		// Null descriptor marks end.
		if desc.IsZero() {
			return table, nil
		}

		table = append(table, desc)
	}
}

// ReadSectionTable decodes the whole content of a section written by a
// previous run. No sentinel is expected: the section's VirtualSize bounds
// the table, and trailing zero fill ends it early.
func ReadSectionTable(s *Section) ([]ImportDescriptor, error) {
	table, err := DecodeDescriptors(s.Content())
	if err != nil {
		return nil, fmt.Errorf("解析节区 %s 失败: %w", s.Name, err)
	}
	return table, nil
}

// Partition splits table into descriptors whose DLL name differs from
// target (static) and those that match it exactly (dynamic). The comparison
// is byte-for-byte and case-sensitive. Order is preserved in both results.
func Partition(img *Image, table []ImportDescriptor, target string) (static, dynamic []ImportDescriptor, err error) {
	static = make([]ImportDescriptor, 0, len(table))
	dynamic = make([]ImportDescriptor, 0)

	for _, desc := range table {
		name, err := img.ReadCString(desc.Name)
		if err != nil {
			return nil, nil, fmt.Errorf("读取DLL名称失败 (描述符 %s): %w", desc, err)
		}

		if name == target {
			dynamic = append(dynamic, desc)
		} else {
			static = append(static, desc)
		}
	}

	return static, dynamic, nil
}

// ImportFunction represents an imported function.
type ImportFunction struct {
	Name        string
	Ordinal     uint16
	IsByOrdinal bool
	Hint        uint16
}

func (fn ImportFunction) String() string {
	if fn.IsByOrdinal {
		return fmt.Sprintf("Ordinal_%d", fn.Ordinal)
	}
	return fn.Name
}

// ListImports resolves DLL names and function lists for every descriptor
// of table. Descriptors whose name cannot be read are reported with an
// empty DLL name instead of failing the listing.
func ListImports(img *Image, table []ImportDescriptor) []ImportInfo {
	imports := make([]ImportInfo, 0, len(table))

	for _, desc := range table {
		info := ImportInfo{Descriptor: desc}

		if dllName, err := img.ReadCString(desc.Name); err == nil {
			info.DLL = dllName
		}

		// Bound or patched images may have no INT; the IAT still holds names.
		thunks := desc.OriginalFirstThunk
		if thunks == 0 {
			thunks = desc.FirstThunk
		}
		if functions, err := readImportThunks(img, thunks); err == nil {
			info.Functions = functions
		}

		imports = append(imports, info)
	}

	return imports
}

// readImportThunks reads thunk data (INT or IAT).
func readImportThunks(img *Image, rva uint32) ([]ImportFunction, error) {
	if rva == 0 {
		return nil, fmt.Errorf("invalid RVA")
	}

	ptrSize := uint32(4)
	if img.is64 {
		ptrSize = 8
	}
	ordinalFlag := getOrdinalFlag(img.is64)

	var functions []ImportFunction
	for offset := rva; len(functions) < maxThunks; offset += ptrSize {
		buf, err := img.ReadRVA(offset, ptrSize)
		if err != nil {
			return functions, err
		}

		var thunkData uint64
		if img.is64 {
			thunkData = binary.LittleEndian.Uint64(buf)
		} else {
			thunkData = uint64(binary.LittleEndian.Uint32(buf))
		}
		if thunkData == 0 {
			break
		}

		functions = append(functions, parseImportFunction(img, thunkData, ordinalFlag))
	}

	return functions, nil
}

// parseImportFunction parses function information from thunk data.
func parseImportFunction(img *Image, thunkData, ordinalFlag uint64) ImportFunction {
	var fn ImportFunction

	if thunkData&ordinalFlag != 0 {
		fn.IsByOrdinal = true
		fn.Ordinal = uint16(thunkData & 0xFFFF)
		return fn
	}

	nameRVA := uint32(thunkData)
	if hint, err := img.ReadRVA(nameRVA, 2); err == nil {
		fn.Hint = binary.LittleEndian.Uint16(hint)
	}
	if name, err := img.ReadCString(nameRVA + 2); err == nil {
		fn.Name = name
	}

	return fn
}

// getOrdinalFlag returns the ordinal flag based on architecture.
func getOrdinalFlag(is64bit bool) uint64 {
	if is64bit {
		return 0x8000000000000000
	}
	return 0x80000000
}
