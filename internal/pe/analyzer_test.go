package pe

import (
	"bytes"
	"debug/pe"
	"math"
	"testing"
)

func TestGetSectionPermissions(t *testing.T) {
	tests := []struct {
		name string
		char uint32
		want string
	}{
		{
			name: "Read only",
			char: pe.IMAGE_SCN_MEM_READ,
			want: "R--",
		},
		{
			name: "Read Write",
			char: pe.IMAGE_SCN_MEM_READ | pe.IMAGE_SCN_MEM_WRITE,
			want: "RW-",
		},
		{
			name: "Read Execute",
			char: pe.IMAGE_SCN_MEM_READ | pe.IMAGE_SCN_MEM_EXECUTE,
			want: "R-X",
		},
		{
			name: "Read Write Execute (RWX - suspicious)",
			char: pe.IMAGE_SCN_MEM_READ | pe.IMAGE_SCN_MEM_WRITE | pe.IMAGE_SCN_MEM_EXECUTE,
			want: "RWX",
		},
		{
			name: "Write Execute",
			char: pe.IMAGE_SCN_MEM_WRITE | pe.IMAGE_SCN_MEM_EXECUTE,
			want: "-WX",
		},
		{
			name: "No permissions",
			char: 0,
			want: "---",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := getSectionPermissions(tt.char)
			if got != tt.want {
				t.Errorf("getSectionPermissions() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetSubsystem(t *testing.T) {
	tests := []struct {
		name      string
		subsystem uint16
		want      string
	}{
		{
			name:      "Windows GUI",
			subsystem: pe.IMAGE_SUBSYSTEM_WINDOWS_GUI,
			want:      "Windows GUI",
		},
		{
			name:      "Windows Console",
			subsystem: pe.IMAGE_SUBSYSTEM_WINDOWS_CUI,
			want:      "Windows 控制台",
		},
		{
			name:      "Native",
			subsystem: pe.IMAGE_SUBSYSTEM_NATIVE,
			want:      "Native",
		},
		{
			name:      "Unknown subsystem",
			subsystem: 0xFF,
			want:      "未知 (0xFF)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := getSubsystem(tt.subsystem)
			if got != tt.want {
				t.Errorf("getSubsystem() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAnalyze(t *testing.T) {
	src := fixture{imports: twoModuleImports, version: []uint16{1, 20, 300, 4}}.build(t)

	out, _ := rewriteBytes(t, src, "B.dll")
	info, err := NewAnalyzer(mustImage(t, out)).Analyze()
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if info.Architecture != "x64 (64位)" {
		t.Errorf("Architecture = %q", info.Architecture)
	}
	if info.Subsystem != "Windows 控制台" {
		t.Errorf("Subsystem = %q", info.Subsystem)
	}
	if len(info.Sections) != 5 {
		t.Fatalf("len(Sections) = %d, want 5", len(info.Sections))
	}
	if got := info.Sections[3]; got.Name != OverrideSectionName || got.Permissions != "RW-" {
		t.Errorf("Sections[3] = %+v, want RW- override section", got)
	}
	if len(info.Imports) != 2 || info.Imports[0].DLL != "A.dll" {
		t.Errorf("Imports = %+v, want the two A.dll records", info.Imports)
	}
	if len(info.Override) != 2 {
		t.Errorf("len(Override) = %d, want 2", len(info.Override))
	}
	if len(info.Dynamic) != 1 || info.Dynamic[0].DLL != "B.dll" {
		t.Errorf("Dynamic = %+v, want B.dll", info.Dynamic)
	}
	if info.Version == nil || info.Version.FixedFileVersion != "1.20.300.4" {
		t.Errorf("Version = %+v, want 1.20.300.4", info.Version)
	}
	if info.Signature == nil || info.Signature.IsSigned {
		t.Errorf("Signature = %+v, want unsigned", info.Signature)
	}
	if len(info.Errors) != 0 {
		t.Errorf("Errors = %v", info.Errors)
	}
}

func TestAnalyzeWithoutImports(t *testing.T) {
	img := mustImage(t, fixture{imports: twoModuleImports, noImportDir: true}.build(t))

	info, err := NewAnalyzer(img).Analyze()
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(info.Imports) != 0 || info.Override != nil || info.Dynamic != nil {
		t.Errorf("unexpected import data: %+v", info)
	}
	if len(info.Errors) != 1 {
		t.Errorf("Errors = %v, want the missing import directory", info.Errors)
	}
}

func TestSectionEntropy(t *testing.T) {
	everyByte := make([]byte, 256)
	for i := range everyByte {
		everyByte[i] = byte(i)
	}

	tests := []struct {
		name        string
		data        []byte
		virtualSize uint32
		want        float64
	}{
		{"No raw data", nil, 0, 0},
		{"Uniform", bytes.Repeat([]byte{0xCC}, 64), 0, 0},
		{"Eight symbols", []byte{0, 1, 2, 3, 4, 5, 6, 7}, 0, 3},
		{"Every byte value", everyByte, 0, 8},
		// File alignment padding past VirtualSize is not mapped.
		{"Padding ignored", append([]byte{0, 1, 2, 3}, make([]byte, 60)...), 4, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Section{data: tt.data}
			s.Size = uint32(len(tt.data))
			s.VirtualSize = tt.virtualSize
			if got := s.Entropy(); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Entropy() = %v, want %v", got, tt.want)
			}
		})
	}

	img := mustImage(t, fixture{imports: twoModuleImports}.build(t))
	for _, s := range img.Sections() {
		if e := s.Entropy(); e <= 0 || e > 8 {
			t.Errorf("%s Entropy() = %v, want within (0, 8]", s.Name, e)
		}
	}
}
