package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

type testOptions struct {
	Config string `help:"Config file path"`

	Device      string   `toml:"uvc.device" env:"DEVICE"`
	Formats     []string `toml:"uvc.formats" env:"FORMATS"`
	Rotation    int      `toml:"camera.rotation" env:"ROTATION"`
	JournalLogs bool     `toml:"logging.journal" env:"JOURNAL_LOGS"`
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLoadConfigFromTOML(t *testing.T) {
	path := writeFile(t, "webcamd.toml", `
[uvc]
device = "/dev/video2"
formats = ["yuyv-1280x720", "mjpeg-1920x1080"]

[camera]
rotation = 180

[logging]
journal = true
`)

	opts := &testOptions{Config: path}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if opts.Device != "/dev/video2" {
		t.Errorf("Device = %q, want /dev/video2", opts.Device)
	}
	want := []string{"yuyv-1280x720", "mjpeg-1920x1080"}
	if !reflect.DeepEqual(opts.Formats, want) {
		t.Errorf("Formats = %v, want %v", opts.Formats, want)
	}
	if opts.Rotation != 180 {
		t.Errorf("Rotation = %d, want 180", opts.Rotation)
	}
	if !opts.JournalLogs {
		t.Error("JournalLogs = false, want true")
	}
}

func TestLoadConfigEnvOverridesTOML(t *testing.T) {
	path := writeFile(t, "webcamd.toml", `
[uvc]
device = "/dev/video2"

[camera]
rotation = 180
`)

	t.Setenv("WEBCAMD_DEVICE", "/dev/video5")
	t.Setenv("WEBCAMD_FORMATS", "yuyv-640x480, mjpeg-1280x720")

	opts := &testOptions{Config: path}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if opts.Device != "/dev/video5" {
		t.Errorf("Device = %q, want env override /dev/video5", opts.Device)
	}
	want := []string{"yuyv-640x480", "mjpeg-1280x720"}
	if !reflect.DeepEqual(opts.Formats, want) {
		t.Errorf("Formats = %v, want %v", opts.Formats, want)
	}
	// TOML still applies where no env var is set.
	if opts.Rotation != 180 {
		t.Errorf("Rotation = %d, want 180", opts.Rotation)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	opts := &testOptions{Config: "/nonexistent/webcamd.toml", Device: "/dev/video0"}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig with missing file: %v", err)
	}
	if opts.Device != "/dev/video0" {
		t.Errorf("Device = %q, defaults must survive a missing file", opts.Device)
	}
}

func TestLoadConfigBadTOML(t *testing.T) {
	path := writeFile(t, "webcamd.toml", "not [valid toml")
	if err := LoadConfig(&testOptions{Config: path}, nil); err == nil {
		t.Fatal("LoadConfig accepted malformed TOML")
	}
}

func TestFieldNameToFlag(t *testing.T) {
	tests := []struct {
		field string
		want  string
	}{
		{"Device", "device"},
		{"LogLevel", "log-level"},
		{"ApiPort", "api-port"},
	}

	for _, tt := range tests {
		if got := fieldNameToFlag(tt.field); got != tt.want {
			t.Errorf("fieldNameToFlag(%q) = %q, want %q", tt.field, got, tt.want)
		}
	}
}

func TestLoadLoggingConfig(t *testing.T) {
	path := writeFile(t, "webcamd.toml", `
[logging]
level = "debug"
format = "json"
uvc = "warn"
encoder = "error"
`)

	cfg := LoadLoggingConfig(path)
	if cfg.Level != "debug" || cfg.Format != "json" {
		t.Errorf("config = (%s, %s), want (debug, json)", cfg.Level, cfg.Format)
	}
	if cfg.Modules["uvc"] != "warn" || cfg.Modules["encoder"] != "error" {
		t.Errorf("module levels = %v, want uvc=warn encoder=error", cfg.Modules)
	}
}

func TestLoadLoggingConfigDefaults(t *testing.T) {
	cfg := LoadLoggingConfig("/nonexistent/webcamd.toml")
	if cfg.Level != "info" || cfg.Format != "text" {
		t.Errorf("defaults = (%s, %s), want (info, text)", cfg.Level, cfg.Format)
	}
}

func TestLoadIgnoredNodes(t *testing.T) {
	path := writeFile(t, "ignored_v4l2_nodes.json",
		`["/dev/video12", "/dev/media0", "/dev/video33"]`)

	nodes, err := LoadIgnoredNodes(path)
	if err != nil {
		t.Fatalf("LoadIgnoredNodes: %v", err)
	}
	// Non-video nodes are filtered out.
	want := []string{"/dev/video12", "/dev/video33"}
	if !reflect.DeepEqual(nodes, want) {
		t.Errorf("nodes = %v, want %v", nodes, want)
	}
}

func TestLoadIgnoredNodesMissingFile(t *testing.T) {
	nodes, err := LoadIgnoredNodes(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("missing overlay is not an error: %v", err)
	}
	if len(nodes) != 0 {
		t.Errorf("nodes = %v, want empty", nodes)
	}
}

func TestLoadIgnoredNodesBadJSON(t *testing.T) {
	path := writeFile(t, "ignored_v4l2_nodes.json", `{"not": "an array"}`)
	if _, err := LoadIgnoredNodes(path); err == nil {
		t.Fatal("LoadIgnoredNodes accepted malformed JSON")
	}
}

func TestLoadVendorCameraPrefs(t *testing.T) {
	path := writeFile(t, "physical_camera_mapping.json",
		`{"0": {"2": "wide", "3": "ultrawide"}, "1": {"4": "front"}}`)

	prefs, err := LoadVendorCameraPrefs(path)
	if err != nil {
		t.Fatalf("LoadVendorCameraPrefs: %v", err)
	}

	back := prefs.PhysicalCameras("0")
	want := []PhysicalCamera{{ID: "2", Label: "wide"}, {ID: "3", Label: "ultrawide"}}
	if !reflect.DeepEqual(back, want) {
		t.Errorf("camera 0 = %v, want %v in vendor order", back, want)
	}
	if front := prefs.PhysicalCameras("1"); len(front) != 1 || front[0].ID != "4" {
		t.Errorf("camera 1 = %v, want [{4 front}]", front)
	}
	if unknown := prefs.PhysicalCameras("9"); unknown != nil {
		t.Errorf("camera 9 = %v, want nil", unknown)
	}
}

func TestLoadVendorCameraPrefsMissingFile(t *testing.T) {
	prefs, err := LoadVendorCameraPrefs(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("missing overlay is not an error: %v", err)
	}
	if prefs.PhysicalCameras("0") != nil {
		t.Error("empty prefs returned cameras")
	}
}

func TestLoadVendorCameraPrefsBadJSON(t *testing.T) {
	path := writeFile(t, "physical_camera_mapping.json", `{"0": ["not", "an", "object"]}`)
	if _, err := LoadVendorCameraPrefs(path); err == nil {
		t.Fatal("LoadVendorCameraPrefs accepted malformed JSON")
	}
}
