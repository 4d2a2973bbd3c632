package dataset

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// writeTestWav emits a minimal PCM16 RIFF file containing a sine tone.
func writeTestWav(t *testing.T, path string, numSamples int) {
	t.Helper()
	var buf bytes.Buffer
	dataLen := numSamples * 2

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(16000))
	binary.Write(&buf, binary.LittleEndian, uint32(16000*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	for i := 0; i < numSamples; i++ {
		v := int16(10000 * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.Write(&buf, binary.LittleEndian, v)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("writing test wav: %v", err)
	}
}

func TestDEMoSDataset(t *testing.T) {
	dir := t.TempDir()
	writeTestWav(t, filepath.Join(dir, "PR_f_21_gio_031.wav"), 2000)
	writeTestWav(t, filepath.Join(dir, "PR_m_03_rab_107.wav"), 500)
	writeTestWav(t, filepath.Join(dir, "notes.txt.wav.bak"), 100) // ignored: wrong extension
	if err := os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	ds, err := NewDEMoS(dir, 1000, false)
	if err != nil {
		t.Fatalf("NewDEMoS failed: %v", err)
	}
	if ds.Len() != 2 {
		t.Fatalf("Len = %d, want 2", ds.Len())
	}
	if len(ds.Classes()) != 7 {
		t.Errorf("DEMoS classes = %d, want 7", len(ds.Classes()))
	}

	for i := 0; i < ds.Len(); i++ {
		x, y, err := ds.Get(i)
		if err != nil {
			t.Fatalf("Get(%d) failed: %v", i, err)
		}
		if x.Shape[0] != 1 || x.Shape[1] != 1000 {
			t.Errorf("Get(%d) shape = %v, want [1 1000]", i, x.Shape)
		}
		labels, _ := y.GetInt32Data()
		class := ds.Classes()[labels[0]]
		if class != "joy" && class != "anger" {
			t.Errorf("Get(%d) class = %q", i, class)
		}
	}

	// The short file is zero-padded to the fixed length.
	x, _, err := ds.Get(1)
	if err != nil {
		t.Fatalf("Get(1) failed: %v", err)
	}
	data, _ := x.GetFloat32Data()
	if data[999] != 0 {
		t.Errorf("expected zero padding at tail, got %v", data[999])
	}
}

func TestRAVDESSLabels(t *testing.T) {
	tests := []struct {
		filename string
		class    string
		ok       bool
	}{
		{"03-01-06-01-02-01-12.wav", "fearful", true},
		{"03-01-01-01-01-01-01.wav", "neutral", true},
		{"03-01-08-02-02-01-24.wav", "surprised", true},
		{"badname.wav", "", false},
		{"03-01.wav", "", false},
		{"03-01-99-01-02-01-12.wav", "", false},
	}
	for _, tt := range tests {
		class, ok := parseRAVDESS(tt.filename)
		if ok != tt.ok || class != tt.class {
			t.Errorf("parseRAVDESS(%q) = %q, %v; want %q, %v", tt.filename, class, ok, tt.class, tt.ok)
		}
	}
}

func TestDEMoSLabels(t *testing.T) {
	tests := []struct {
		filename string
		class    string
		ok       bool
	}{
		{"PR_f_21_gio_031.wav", "joy", true},
		{"NP_m_10_tri_002.wav", "sadness", true},
		{"PR_f_21_xyz_031.wav", "", false},
	}
	for _, tt := range tests {
		class, ok := parseDEMoS(tt.filename)
		if ok != tt.ok || class != tt.class {
			t.Errorf("parseDEMoS(%q) = %q, %v; want %q, %v", tt.filename, class, ok, tt.class, tt.ok)
		}
	}
}

func TestDatasetErrors(t *testing.T) {
	if _, err := NewDEMoS("/nonexistent/path", 1000, false); !errors.Is(err, ErrData) {
		t.Errorf("missing root: err = %v, want ErrData", err)
	}

	empty := t.TempDir()
	if _, err := NewDEMoS(empty, 1000, false); !errors.Is(err, ErrData) {
		t.Errorf("empty root: err = %v, want ErrData", err)
	}

	if _, err := Open("no_such_set", t.TempDir(), 1000, false); !errors.Is(err, ErrData) {
		t.Errorf("unknown name: err = %v, want ErrData", err)
	}
}

func TestSpectrogramShape(t *testing.T) {
	n := 4096 + 512
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / 16000))
	}

	spec, frames, err := Spectrogram(samples)
	if err != nil {
		t.Fatalf("Spectrogram failed: %v", err)
	}
	if want := SpectrogramFrames(n); frames != want {
		t.Errorf("frames = %d, want %d", frames, want)
	}
	if len(spec) != SpectrogramBins*frames {
		t.Errorf("len = %d, want %d", len(spec), SpectrogramBins*frames)
	}
	for i, v := range spec {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			t.Fatalf("non-finite value at %d: %v", i, v)
		}
	}

	if _, _, err := Spectrogram(make([]float32, 100)); err == nil {
		t.Error("expected error for too-short waveform")
	}
}

func TestSpectrogramDataset(t *testing.T) {
	dir := t.TempDir()
	writeTestWav(t, filepath.Join(dir, "PR_f_21_gio_031.wav"), 3000)

	ds, err := NewDEMoS(dir, 4096, true)
	if err != nil {
		t.Fatalf("NewDEMoS failed: %v", err)
	}
	x, _, err := ds.Get(0)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	wantFrames := SpectrogramFrames(4096)
	if x.Shape[0] != 1 || x.Shape[1] != SpectrogramBins || x.Shape[2] != wantFrames {
		t.Errorf("shape = %v, want [1 %d %d]", x.Shape, SpectrogramBins, wantFrames)
	}
}
