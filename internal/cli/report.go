// Package cli provides command-line interface utilities.
package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/raonygamer/dynimp/internal/pe"
)

// Reporter formats and prints PE analysis results.
type Reporter struct {
	info           *pe.Info
	w              io.Writer
	verbose        bool
	suspiciousOnly bool
	target         string
}

// NewReporter creates a new reporter for the given PE info writing to w.
func NewReporter(info *pe.Info, w io.Writer) *Reporter {
	return &Reporter{info: info, w: w}
}

// SetVerbose enables verbose mode (show all functions).
func (r *Reporter) SetVerbose(verbose bool) {
	r.verbose = verbose
}

// SetSuspiciousOnly enables suspicious-only mode (show RWX sections only).
func (r *Reporter) SetSuspiciousOnly(suspicious bool) {
	r.suspiciousOnly = suspicious
}

// SetTarget marks the imports of target in the import directory as the
// ones modbin would move.
func (r *Reporter) SetTarget(target string) {
	r.target = target
}

// Print outputs the complete analysis report.
func (r *Reporter) Print() {
	r.printHeader()
	r.printBasicInfo()
	r.printSections()
	r.printImports()
	r.printDynImpTables()
	r.printExports()
	r.printErrors()
}

func (r *Reporter) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.w, format, args...)
}

func (r *Reporter) println(a ...any) {
	_, _ = fmt.Fprintln(r.w, a...)
}

func (r *Reporter) title(format string, args ...any) {
	yellow := color.New(color.FgYellow, color.Bold)
	_, _ = yellow.Fprintf(r.w, format, args...)
}

func (r *Reporter) printHeader() {
	cyan := color.New(color.FgCyan, color.Bold)
	_, _ = cyan.Fprintln(r.w, "\n╔════════════════════════════════════════╗")
	_, _ = cyan.Fprintln(r.w, "║           dynimp 分析报告              ║")
	_, _ = cyan.Fprintln(r.w, "╚════════════════════════════════════════╝")
}

func (r *Reporter) printBasicInfo() {
	r.title("\n【基本信息】\n")

	r.printf("  %-20s: %s\n", "文件路径", r.info.FilePath)
	r.printf("  %-20s: %s\n", "文件大小", formatSize(r.info.FileSize))
	r.printf("  %-20s: %s\n", "架构", r.info.Architecture)
	r.printf("  %-20s: %s\n", "子系统", r.info.Subsystem)
	r.printf("  %-20s: 0x%X\n", "入口点", r.info.EntryPoint)
	r.printf("  %-20s: 0x%X\n", "镜像基址", r.info.ImageBase)

	if v := r.info.Version; v != nil && v.FixedFileVersion != "" {
		r.printf("  %-20s: %s\n", "文件版本", v.FixedFileVersion)
		if v.ProductName != "" {
			r.printf("  %-20s: %s\n", "产品名称", v.ProductName)
		}
	}

	if r.info.Checksum != nil {
		r.printf("  %-20s: ", "校验和")
		if r.info.Checksum.Stored == 0 {
			gray := color.New(color.FgHiBlack)
			_, _ = gray.Fprint(r.w, "未设置")
		} else if r.info.Checksum.Valid {
			green := color.New(color.FgGreen)
			_, _ = green.Fprintf(r.w, "✓ 有效 (0x%08X)", r.info.Checksum.Stored)
		} else {
			red := color.New(color.FgRed, color.Bold)
			_, _ = red.Fprintf(r.w, "✗ 无效 (存储: 0x%08X, 计算: 0x%08X)",
				r.info.Checksum.Stored, r.info.Checksum.Computed)
		}
		r.println()
	}

	if sig := r.info.Signature; sig != nil {
		r.printf("  %-20s: ", "数字签名")
		if sig.IsSigned {
			yellow := color.New(color.FgYellow)
			_, _ = yellow.Fprintf(r.w, "已签名 (%s)，修改后将被移除", formatSize(int64(sig.Size)))
		} else {
			r.printf("无")
		}
		r.println()
	}
}

func (r *Reporter) printSections() {
	sections := r.info.Sections

	// Filter suspicious sections if flag is set
	if r.suspiciousOnly {
		var suspicious []pe.SectionInfo
		for _, s := range sections {
			if s.Permissions == "RWX" {
				suspicious = append(suspicious, s)
			}
		}
		sections = suspicious
	}

	if r.suspiciousOnly {
		r.title("\n【可疑节区】(共 %d 个)\n", len(sections))
	} else {
		r.title("\n【节区信息】(共 %d 个)\n", len(sections))
	}

	if len(sections) == 0 {
		if r.suspiciousOnly {
			r.println("  未发现可疑节区")
		} else {
			r.println("  未发现节区")
		}
		return
	}

	r.println(strings.Repeat("-", 100))
	r.printf("  %-10s %-12s %-15s %-15s %-8s %-8s %-20s\n",
		"名称", "虚拟地址", "虚拟大小", "原始大小", "权限", "熵", "特征")
	r.println(strings.Repeat("-", 100))

	for _, section := range sections {
		// Highlight dangerous permissions (RWX)
		permColor := color.New(color.FgWhite)
		if section.Permissions == "RWX" {
			permColor = color.New(color.FgRed, color.Bold)
		} else if strings.Contains(section.Permissions, "X") {
			permColor = color.New(color.FgYellow)
		}

		nameColor := color.New(color.FgWhite)
		if section.Name == pe.OverrideSectionName || section.Name == pe.DynamicSectionName {
			nameColor = color.New(color.FgCyan)
		}

		_, _ = nameColor.Fprintf(r.w, "  %-10s", section.Name)
		r.printf(" 0x%08X   %-15s %-15s ",
			section.VirtualAddress,
			formatSize(int64(section.VirtualSize)),
			formatSize(int64(section.Size)),
		)
		_, _ = permColor.Fprintf(r.w, "%-8s", section.Permissions)
		r.printf(" %-8.2f 0x%08X\n", section.Entropy, section.Characteristics)
	}
	r.println(strings.Repeat("-", 100))
}

func (r *Reporter) printImports() {
	dir := r.info.ImportDirectory
	r.title("\n【导入表】(共 %d 个DLL)\n", len(r.info.Imports))
	if dir.VirtualAddress != 0 {
		r.printf("  目录: RVA 0x%08X, 大小 %d\n", dir.VirtualAddress, dir.Size)
	}

	if len(r.info.Imports) == 0 {
		r.println("  未发现导入")
		return
	}

	moved := 0
	for i, imp := range r.info.Imports {
		dynamic := r.target != "" && imp.DLL == r.target
		if dynamic {
			moved++
		}
		r.printImport(i, imp, dynamic)
	}

	if r.target != "" {
		cyan := color.New(color.FgCyan)
		_, _ = cyan.Fprintf(r.w, "  %s 的 %d 个描述符将被移入 %s\n", r.target, moved, pe.DynamicSectionName)
	}
	r.println()
}

func (r *Reporter) printDynImpTables() {
	tables := []struct {
		section string
		label   string
		imports []pe.ImportInfo
	}{
		{pe.OverrideSectionName, "覆盖导入表", r.info.Override},
		{pe.DynamicSectionName, "动态导入表", r.info.Dynamic},
	}

	for _, t := range tables {
		if t.imports == nil {
			continue
		}
		r.title("\n【%s %s】(共 %d 个描述符)\n", t.label, t.section, len(t.imports))
		if len(t.imports) == 0 {
			r.println("  空")
			continue
		}
		for i, imp := range t.imports {
			r.printImport(i, imp, false)
		}
	}
}

func (r *Reporter) printImport(i int, imp pe.ImportInfo, dynamic bool) {
	green := color.New(color.FgGreen)
	if dynamic {
		green = color.New(color.FgCyan, color.Bold)
	}
	funcCount := len(imp.Functions)
	_, _ = green.Fprintf(r.w, "  %3d. %s (%d 个函数)", i+1, imp.DLL, funcCount)
	if dynamic {
		_, _ = green.Fprint(r.w, " [动态]")
	}
	r.println()

	maxDisplay := 10
	if r.verbose {
		maxDisplay = funcCount // Show all in verbose mode
	}

	for _, fn := range imp.Functions[:min(funcCount, maxDisplay)] {
		r.printf("       - %s\n", fn)
	}

	if funcCount > maxDisplay {
		gray := color.New(color.FgHiBlack)
		_, _ = gray.Fprintf(r.w, "       ... (还有 %d 个函数)\n", funcCount-maxDisplay)
	}
}

func (r *Reporter) printExports() {
	if r.info.Exports == nil {
		return
	}
	names := r.info.Exports.Names
	r.title("\n【导出表】%s (共 %d 个函数)\n", r.info.Exports.Module, len(names))

	if len(names) == 0 {
		r.println("  未发现导出")
		return
	}

	maxDisplay := 20
	if r.verbose {
		maxDisplay = len(names) // Show all in verbose mode
	}

	green := color.New(color.FgGreen)
	for i, name := range names[:min(len(names), maxDisplay)] {
		_, _ = green.Fprintf(r.w, "  %3d. %s\n", i+1, name)
	}

	if len(names) > maxDisplay {
		gray := color.New(color.FgHiBlack)
		_, _ = gray.Fprintf(r.w, "  ... (还有 %d 个函数)\n", len(names)-maxDisplay)
	}
	r.println()
}

func (r *Reporter) printErrors() {
	if len(r.info.Errors) == 0 {
		return
	}
	red := color.New(color.FgRed)
	r.title("\n【警告】\n")
	for _, err := range r.info.Errors {
		_, _ = red.Fprintf(r.w, "  - %v\n", err)
	}
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
