package pe

import (
	"debug/pe"
	"fmt"

	"github.com/raonygamer/dynimp/internal/logger"
)

// Reserved section names. Images patched by earlier releases carry these
// exact names, so they must not change.
const (
	// OverrideSectionName holds the static imports once the image is patched.
	OverrideSectionName = ".dynidt"
	// DynamicSectionName holds the accumulated dynamic imports.
	DynamicSectionName = ".dynimp"
)

// tableSlack is added to the VirtualSize of a table section so the mapped
// image always has a zero descriptor right after the table.
const tableSlack = DescriptorSize

// SectionNames names the two sections Apply writes.
type SectionNames struct {
	Override string
	Dynamic  string
}

// DefaultSectionNames returns the reserved section names.
func DefaultSectionNames() SectionNames {
	return SectionNames{Override: OverrideSectionName, Dynamic: DynamicSectionName}
}

// Apply replaces the import tables of img. static becomes the content of
// the override section, which the import directory then points at; dynamic
// becomes the content of the dynamic section. Previous copies of both
// sections are removed first; their records must already be folded into
// static and dynamic. The image is left untouched if Apply fails before
// the first section is removed.
func Apply(img *Image, static, dynamic []ImportDescriptor, names SectionNames) error {
	if _, err := img.ImportDirectory(); err != nil {
		return err
	}

	count := len(img.sections) + 2
	for _, name := range []string{names.Override, names.Dynamic} {
		if img.Section(name) != nil {
			count--
		}
	}
	if err := img.checkHeaderSpace(count); err != nil {
		return err
	}

	img.RemoveSection(names.Override)
	img.RemoveSection(names.Dynamic)

	override, err := addTableSection(img, names.Override, static)
	if err != nil {
		return err
	}
	if err := img.AlignSections(); err != nil {
		return err
	}

	if err := img.SetImportDirectory(pe.DataDirectory{
		VirtualAddress: override.VirtualAddress,
		Size:           uint32(len(override.Data())),
	}); err != nil {
		return err
	}

	if _, err := addTableSection(img, names.Dynamic, dynamic); err != nil {
		return err
	}
	return img.AlignSections()
}

func addTableSection(img *Image, name string, table []ImportDescriptor) (*Section, error) {
	s, err := img.AddSection(name, EncodeDescriptors(table), CommonCharacteristics.ReadWrite)
	if err != nil {
		return nil, fmt.Errorf("添加节区 %s 失败: %w", name, err)
	}
	s.VirtualSize += tableSlack
	return s, nil
}

// RewriteResult summarizes a Rewrite.
type RewriteResult struct {
	Imported        int // Descriptors in the import directory before the rewrite.
	PriorStatic     int
	PriorDynamic    int
	Static          []ImportDescriptor
	Dynamic         []ImportDescriptor
	StrippedSig     bool
	ImportDirBefore pe.DataDirectory
	ImportDirAfter  pe.DataDirectory
}

// Rewrite moves every import of target out of the import directory of img
// into the dynamic section, merging with the state of a previous run.
func Rewrite(img *Image, target string, log logger.Logger) (*RewriteResult, error) {
	names := DefaultSectionNames()

	dir, err := img.ImportDirectory()
	if err != nil {
		return nil, err
	}
	log.Debug("导入目录", "rva", fmt.Sprintf("0x%X", dir.VirtualAddress), "size", dir.Size)

	table, err := ReadImportTable(img, dir.VirtualAddress)
	if err != nil {
		return nil, fmt.Errorf("读取导入表失败: %w", err)
	}

	static, dynamic, err := Partition(img, table, target)
	if err != nil {
		return nil, err
	}
	log.Info("导入表分类完成", "total", len(table), "static", len(static), "dynamic", len(dynamic))

	var priorStatic, priorDynamic []ImportDescriptor
	if s := img.Section(names.Override); s != nil {
		if priorStatic, err = ReadSectionTable(s); err != nil {
			return nil, err
		}
		log.Info("发现已有覆盖导入表", "section", s.Name, "entries", len(priorStatic))
	}
	if s := img.Section(names.Dynamic); s != nil {
		if priorDynamic, err = ReadSectionTable(s); err != nil {
			return nil, err
		}
		log.Info("发现已有动态导入表", "section", s.Name, "entries", len(priorDynamic))
	}

	result := &RewriteResult{
		Imported:        len(table),
		PriorStatic:     len(priorStatic),
		PriorDynamic:    len(priorDynamic),
		Static:          MergeStatic(static, priorStatic),
		Dynamic:         MergeDynamic(priorDynamic, dynamic),
		ImportDirBefore: dir,
	}

	if img.StripSignature() {
		result.StrippedSig = true
		log.Warn("已移除数字签名，修改后的文件需要重新签名")
	}

	if err := Apply(img, result.Static, result.Dynamic, names); err != nil {
		return nil, err
	}
	result.ImportDirAfter = img.DataDirectory(pe.IMAGE_DIRECTORY_ENTRY_IMPORT)

	for _, s := range []*Section{img.Section(names.Override), img.Section(names.Dynamic)} {
		log.Debug("写入节区", "section", s.Name,
			"rva", fmt.Sprintf("0x%X", s.VirtualAddress), "vsize", s.VirtualSize,
			"offset", fmt.Sprintf("0x%X", s.Offset), "size", s.Size)
	}

	return result, nil
}
