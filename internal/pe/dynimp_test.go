package pe

import (
	"bytes"
	"debug/pe"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/raonygamer/dynimp/internal/logger"
)

// rewriteBytes runs the full pipeline over data and returns the new image.
func rewriteBytes(t *testing.T, data []byte, target string) ([]byte, *RewriteResult) {
	t.Helper()
	img := mustImage(t, data)
	result, err := Rewrite(img, target, logger.Discard())
	if err != nil {
		t.Fatalf("Rewrite() error = %v", err)
	}
	return mustBytes(t, img), result
}

func sectionTable(t *testing.T, img *Image, name string) []ImportDescriptor {
	t.Helper()
	s := img.Section(name)
	if s == nil {
		t.Fatalf("section %s missing", name)
	}
	table, err := ReadSectionTable(s)
	if err != nil {
		t.Fatalf("ReadSectionTable(%s) error = %v", name, err)
	}
	return table
}

func dllNames(t *testing.T, img *Image, table []ImportDescriptor) []string {
	t.Helper()
	names := make([]string, len(table))
	for i, desc := range table {
		name, err := img.ReadCString(desc.Name)
		if err != nil {
			t.Fatalf("ReadCString() error = %v", err)
		}
		names[i] = name
	}
	return names
}

func TestRewriteScenario(t *testing.T) {
	for _, pe32 := range []bool{false, true} {
		src := fixture{pe32: pe32, imports: twoModuleImports}.build(t)
		original := mustImportTable(t, mustImage(t, src))

		out, result := rewriteBytes(t, src, "B.dll")
		img := mustImage(t, out)

		static := sectionTable(t, img, OverrideSectionName)
		dynamic := sectionTable(t, img, DynamicSectionName)

		if !equalTables(static, []ImportDescriptor{original[0], original[2]}) {
			t.Errorf("static section = %v, want A.dll records", static)
		}
		if !equalTables(dynamic, []ImportDescriptor{original[1]}) {
			t.Errorf("dynamic section = %v, want B.dll record", dynamic)
		}
		if got := dllNames(t, img, static); got[0] != "A.dll" || got[1] != "A.dll" {
			t.Errorf("static modules = %v", got)
		}

		dir, err := img.ImportDirectory()
		if err != nil {
			t.Fatalf("ImportDirectory() error = %v", err)
		}
		override := img.Section(OverrideSectionName)
		if dir.VirtualAddress != override.VirtualAddress || dir.Size != 40 {
			t.Errorf("import directory = %+v, want {%#x 40}", dir, override.VirtualAddress)
		}

		// The loader walks the directory until a zero record.
		if live := mustImportTable(t, img); !equalTables(live, static) {
			t.Errorf("live import table = %v, want %v", live, static)
		}

		if result.Imported != 3 || len(result.Static) != 2 || len(result.Dynamic) != 1 {
			t.Errorf("result = %+v", result)
		}
		if result.ImportDirAfter != dir {
			t.Errorf("ImportDirAfter = %+v, want %+v", result.ImportDirAfter, dir)
		}
	}
}

func TestRewriteLayout(t *testing.T) {
	out, _ := rewriteBytes(t, fixture{imports: twoModuleImports}.build(t), "B.dll")
	img := mustImage(t, out)

	override := img.Section(OverrideSectionName)
	dynamic := img.Section(DynamicSectionName)

	tests := []struct {
		name string
		got  uint32
		want uint32
	}{
		{"override VA", override.VirtualAddress, 0x3000},
		{"override VirtualSize", override.VirtualSize, 40 + DescriptorSize},
		{"override raw offset", override.Offset, 0x800},
		{"override raw size", override.Size, fxFileAlignment},
		{"dynamic VA", dynamic.VirtualAddress, 0x4000},
		{"dynamic VirtualSize", dynamic.VirtualSize, 20 + DescriptorSize},
		{"dynamic raw offset", dynamic.Offset, 0xA00},
		{"override characteristics", override.Characteristics, CommonCharacteristics.ReadWrite},
		{"SizeOfImage", img.File().OptionalHeader.(*pe.OptionalHeader64).SizeOfImage, 0x5000},
		{"NumberOfSections", uint32(img.File().NumberOfSections), 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %#x, want %#x", tt.name, tt.got, tt.want)
			}
		})
	}

	// The original sections keep their place.
	if s := img.Section(".rdata"); s.VirtualAddress != fxRdataRVA || s.Offset != 0x600 {
		t.Errorf(".rdata moved to VA %#x offset %#x", s.VirtualAddress, s.Offset)
	}
}

func TestRewriteIdempotent(t *testing.T) {
	src := fixture{imports: twoModuleImports, overlay: []byte("overlay data")}.build(t)

	first, _ := rewriteBytes(t, src, "B.dll")
	second, result := rewriteBytes(t, first, "B.dll")
	if !bytes.Equal(first, second) {
		t.Fatal("second run changed the image")
	}

	if result.PriorStatic != 2 || result.PriorDynamic != 1 {
		t.Errorf("prior counts = %d/%d, want 2/1", result.PriorStatic, result.PriorDynamic)
	}

	third, _ := rewriteBytes(t, second, "B.dll")
	if !bytes.Equal(second, third) {
		t.Fatal("third run changed the image")
	}
}

func TestRewriteExactVirtualSize(t *testing.T) {
	src := fixture{imports: twoModuleImports}.build(t)
	original := mustImportTable(t, mustImage(t, src))
	first, _ := rewriteBytes(t, src, "B.dll")

	// Older releases sized the table sections to their content, leaving the
	// live directory's terminator in the zero-filled page tail.
	img := mustImage(t, first)
	img.Section(OverrideSectionName).VirtualSize = 2 * DescriptorSize
	img.Section(DynamicSectionName).VirtualSize = DescriptorSize
	if live := mustImportTable(t, img); len(live) != 2 {
		t.Fatalf("live import table has %d records, want 2", len(live))
	}

	second, result := rewriteBytes(t, mustBytes(t, img), "B.dll")
	if result.PriorStatic != 2 || result.PriorDynamic != 1 {
		t.Errorf("prior counts = %d/%d, want 2/1", result.PriorStatic, result.PriorDynamic)
	}

	out := mustImage(t, second)
	if got := sectionTable(t, out, OverrideSectionName); !equalTables(got, []ImportDescriptor{original[0], original[2]}) {
		t.Errorf("static section = %v", got)
	}
	if got := sectionTable(t, out, DynamicSectionName); !equalTables(got, []ImportDescriptor{original[1]}) {
		t.Errorf("dynamic section = %v", got)
	}
	if s := out.Section(OverrideSectionName); s.VirtualSize != 2*DescriptorSize+DescriptorSize {
		t.Errorf("override VirtualSize = %d, want %d", s.VirtualSize, 3*DescriptorSize)
	}
}

func TestRewriteAccumulates(t *testing.T) {
	src := fixture{imports: twoModuleImports}.build(t)
	original := mustImportTable(t, mustImage(t, src))

	first, _ := rewriteBytes(t, src, "B.dll")

	// B.dll is no longer in the live directory; the second run moves A.dll.
	second, result := rewriteBytes(t, first, "A.dll")
	img := mustImage(t, second)

	// Records of the override section are never dropped, even when the
	// live directory moves them to the dynamic side.
	if got := len(result.Static); got != 2 {
		t.Errorf("len(Static) = %d, want 2", got)
	}

	dynamic := sectionTable(t, img, DynamicSectionName)
	want := []ImportDescriptor{original[1], original[0], original[2]}
	if !equalTables(dynamic, want) {
		t.Errorf("dynamic section = %v, want %v", dynamic, want)
	}
	if names := dllNames(t, img, dynamic); names[0] != "B.dll" {
		t.Errorf("dynamic modules = %v, want B.dll first", names)
	}
}

func TestRewriteNothingToMove(t *testing.T) {
	src := fixture{imports: twoModuleImports}.build(t)
	original := mustImportTable(t, mustImage(t, src))

	out, _ := rewriteBytes(t, src, "C.dll")
	img := mustImage(t, out)

	if got := sectionTable(t, img, OverrideSectionName); !equalTables(got, original) {
		t.Errorf("static section = %v, want %v", got, original)
	}
	if got := sectionTable(t, img, DynamicSectionName); len(got) != 0 {
		t.Errorf("dynamic section = %v, want empty", got)
	}
	if s := img.Section(DynamicSectionName); s.Size != 0 || s.Offset != 0 {
		t.Errorf("empty dynamic section has raw data at %#x (%d bytes)", s.Offset, s.Size)
	}
}

func TestRewriteMissingImportDirectory(t *testing.T) {
	data := fixture{imports: twoModuleImports, noImportDir: true}.build(t)
	img := mustImage(t, data)

	_, err := Rewrite(img, "B.dll", logger.Discard())
	if !errors.Is(err, ErrMissingImportDirectory) {
		t.Fatalf("Rewrite() error = %v, want ErrMissingImportDirectory", err)
	}
	if len(img.Sections()) != 2 {
		t.Error("sections were touched before the failure")
	}
	if out := mustBytes(t, img); !bytes.Equal(out, data) {
		t.Error("image was modified")
	}
}

func TestApplyHeaderSpace(t *testing.T) {
	// Room for exactly three section headers.
	hdr := uint32(0x148 + 3*sectionHeaderSize)
	img := mustImage(t, fixture{imports: twoModuleImports, headerSize: hdr}.build(t))

	err := Apply(img, nil, nil, DefaultSectionNames())
	if !errors.Is(err, ErrHeaderSpace) {
		t.Fatalf("Apply() error = %v, want ErrHeaderSpace", err)
	}
	if len(img.Sections()) != 2 {
		t.Error("sections were touched before the failure")
	}
}

func TestRewriteStripsSignature(t *testing.T) {
	overlay := []byte("installer payload")
	src := fixture{imports: twoModuleImports, overlay: overlay, certificate: bytes.Repeat([]byte{0x30}, 64)}.build(t)
	if has, off, size := mustImage(t, src).HasSignature(); !has || off == 0 || size != 8+64 {
		t.Fatalf("source HasSignature() = %v, %#x, %d, want a 72-byte certificate", has, off, size)
	}

	out, result := rewriteBytes(t, src, "B.dll")
	if !result.StrippedSig {
		t.Error("StrippedSig = false, want true")
	}

	img := mustImage(t, out)
	if has, _, _ := img.HasSignature(); has {
		t.Error("output still has a security directory")
	}
	if !bytes.HasPrefix(img.Overlay(), overlay) {
		t.Errorf("overlay = %q, want prefix %q", img.Overlay(), overlay)
	}
	if bytes.Contains(out, bytes.Repeat([]byte{0x30}, 64)) {
		t.Error("certificate bytes survived")
	}
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "app.exe")
	if err := os.WriteFile(src, fixture{imports: twoModuleImports}.build(t), 0o755); err != nil {
		t.Fatal(err)
	}

	img, err := Open(src)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := Rewrite(img, "B.dll", logger.Discard()); err != nil {
		t.Fatalf("Rewrite() error = %v", err)
	}

	outDir := filepath.Join(dir, "out")
	if err := os.Mkdir(outDir, 0o755); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(outDir, "app.exe")
	if err := img.WriteFile(dst); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "app.exe" {
		t.Errorf("output dir holds %v, want only app.exe", entries)
	}

	written, err := Open(dst)
	if err != nil {
		t.Fatalf("Open(output) error = %v", err)
	}
	if written.Section(OverrideSectionName) == nil {
		t.Error("written image has no override section")
	}
}

func TestWriteFileFailureLeavesNothing(t *testing.T) {
	img := mustImage(t, fixture{imports: twoModuleImports}.build(t))

	dst := filepath.Join(t.TempDir(), "missing", "app.exe")
	if err := img.WriteFile(dst); err == nil {
		t.Fatal("WriteFile() into a missing directory succeeded")
	}
	if _, err := os.Stat(filepath.Dir(dst)); !os.IsNotExist(err) {
		t.Errorf("output directory was created: %v", err)
	}
}
