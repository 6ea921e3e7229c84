package pe

import (
	"debug/pe"
	"fmt"
	"math"
)

// Info contains analyzed PE file information.
type Info struct {
	FilePath     string
	FileSize     int64
	Architecture string
	Subsystem    string
	EntryPoint   uint64
	ImageBase    uint64
	Checksum     *ChecksumInfo
	Signature    *SignatureInfo
	Version      *VersionInfo
	Sections     []SectionInfo

	ImportDirectory pe.DataDirectory
	Imports         []ImportInfo
	// Override and Dynamic list the tables of a patched image; both are
	// nil when the corresponding section is absent.
	Override []ImportInfo
	Dynamic  []ImportInfo
	Exports  *ExportInfo
	// Errors collects problems that did not stop the analysis.
	Errors []error
}

// SectionInfo contains information about a PE section.
type SectionInfo struct {
	Name            string
	VirtualAddress  uint32
	VirtualSize     uint32
	Offset          uint32
	Size            uint32
	Characteristics uint32
	Permissions     string
	Entropy         float64
}

// ImportInfo contains information about imported DLL and functions.
type ImportInfo struct {
	DLL        string
	Descriptor ImportDescriptor
	Functions  []ImportFunction
}

// Analyzer extracts information from PE files.
type Analyzer struct {
	img *Image
}

// NewAnalyzer creates a new analyzer for the given image.
func NewAnalyzer(img *Image) *Analyzer {
	return &Analyzer{img: img}
}

// Analyze extracts all information from the PE file.
func (a *Analyzer) Analyze() (*Info, error) {
	info := &Info{
		FilePath: a.img.FilePath(),
		FileSize: a.img.FileSize(),
	}

	a.extractBasicInfo(a.img.File(), info)
	a.extractSections(info)
	a.extractImports(info)
	a.extractDynImpTables(info)
	a.extractExports(info)
	a.extractVersion(info)
	a.verifyChecksum(info)
	info.Signature = a.img.Signature()

	return info, nil
}

func (a *Analyzer) extractBasicInfo(f *pe.File, info *Info) {
	switch f.Machine {
	case pe.IMAGE_FILE_MACHINE_I386:
		info.Architecture = "x86 (32位)"
	case pe.IMAGE_FILE_MACHINE_AMD64:
		info.Architecture = "x64 (64位)"
	case pe.IMAGE_FILE_MACHINE_ARM:
		info.Architecture = "ARM"
	case pe.IMAGE_FILE_MACHINE_ARM64:
		info.Architecture = "ARM64"
	default:
		info.Architecture = fmt.Sprintf("未知 (0x%X)", f.Machine)
	}

	if opt, ok := f.OptionalHeader.(*pe.OptionalHeader32); ok {
		info.EntryPoint = uint64(opt.AddressOfEntryPoint)
		info.ImageBase = uint64(opt.ImageBase)
		info.Subsystem = getSubsystem(opt.Subsystem)
	} else if opt, ok := f.OptionalHeader.(*pe.OptionalHeader64); ok {
		info.EntryPoint = uint64(opt.AddressOfEntryPoint)
		info.ImageBase = opt.ImageBase
		info.Subsystem = getSubsystem(opt.Subsystem)
	}
}

func (a *Analyzer) extractSections(info *Info) {
	for _, section := range a.img.Sections() {
		info.Sections = append(info.Sections, SectionInfo{
			Name:            section.Name,
			VirtualAddress:  section.VirtualAddress,
			VirtualSize:     section.VirtualSize,
			Offset:          section.Offset,
			Size:            section.Size,
			Characteristics: section.Characteristics,
			Permissions:     getSectionPermissions(section.Characteristics),
			Entropy:         section.Entropy(),
		})
	}
}

// Entropy returns the Shannon entropy of the raw bytes the loader maps for
// s, in bits per byte. Packed or encrypted sections sit close to 8.
func (s *Section) Entropy() float64 {
	mapped := s.data[:min(len(s.data), int(s.span()))]
	if len(mapped) == 0 {
		return 0
	}

	var counts [256]float64
	for _, b := range mapped {
		counts[b]++
	}

	n := float64(len(mapped))
	var bits float64
	for _, c := range counts {
		if c > 0 {
			bits += c / n * math.Log2(n/c)
		}
	}
	return bits
}

func (a *Analyzer) extractImports(info *Info) {
	dir, err := a.img.ImportDirectory()
	if err != nil {
		info.Errors = append(info.Errors, err)
		return
	}
	info.ImportDirectory = dir

	table, err := ReadImportTable(a.img, dir.VirtualAddress)
	if err != nil {
		info.Errors = append(info.Errors, err)
		return
	}
	info.Imports = ListImports(a.img, table)
}

func (a *Analyzer) extractDynImpTables(info *Info) {
	if s := a.img.Section(OverrideSectionName); s != nil {
		table, err := ReadSectionTable(s)
		if err != nil {
			info.Errors = append(info.Errors, err)
		} else {
			info.Override = ListImports(a.img, table)
		}
	}
	if s := a.img.Section(DynamicSectionName); s != nil {
		table, err := ReadSectionTable(s)
		if err != nil {
			info.Errors = append(info.Errors, err)
		} else {
			info.Dynamic = ListImports(a.img, table)
		}
	}
}

func (a *Analyzer) extractExports(info *Info) {
	exports, err := ParseExports(a.img)
	if err != nil {
		info.Errors = append(info.Errors, err)
		return
	}
	info.Exports = exports
}

func (a *Analyzer) extractVersion(info *Info) {
	res, err := ParseResources(a.img)
	if err != nil {
		// Silently ignore resource parsing errors
		return
	}
	info.Version = res.VersionInfo
}

func (a *Analyzer) verifyChecksum(info *Info) {
	checksum, err := VerifyChecksum(a.img)
	if err != nil {
		// Silently ignore checksum verification errors
		return
	}
	info.Checksum = checksum
}

func getSubsystem(subsystem uint16) string {
	switch subsystem {
	case pe.IMAGE_SUBSYSTEM_WINDOWS_GUI:
		return "Windows GUI"
	case pe.IMAGE_SUBSYSTEM_WINDOWS_CUI:
		return "Windows 控制台"
	case pe.IMAGE_SUBSYSTEM_NATIVE:
		return "Native"
	default:
		return fmt.Sprintf("未知 (0x%X)", subsystem)
	}
}

func getSectionPermissions(c uint32) string {
	perms := [3]rune{'-', '-', '-'}

	if c&pe.IMAGE_SCN_MEM_READ != 0 {
		perms[0] = 'R'
	}
	if c&pe.IMAGE_SCN_MEM_WRITE != 0 {
		perms[1] = 'W'
	}
	if c&pe.IMAGE_SCN_MEM_EXECUTE != 0 {
		perms[2] = 'X'
	}

	return string(perms[:])
}
