package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// v4l2NodePrefix filters ignore-list entries down to nodes discovery
// would consider in the first place.
const v4l2NodePrefix = "/dev/video"

// LoadIgnoredNodes reads the vendor ignore list: a JSON array of V4L2
// node paths the daemon must never claim as its gadget node. A missing
// file means no overlay is installed and yields an empty list.
func LoadIgnoredNodes(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entries []string
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	nodes := make([]string, 0, len(entries))
	for _, node := range entries {
		if strings.HasPrefix(node, v4l2NodePrefix) {
			nodes = append(nodes, node)
		}
	}
	return nodes, nil
}

// PhysicalCamera is one entry of a vendor's logical-to-physical camera
// mapping. The label is display text for operators cycling cameras.
type PhysicalCamera struct {
	ID    string
	Label string
}

// VendorCameraPrefs holds the physical camera mapping some vendors ship
// as an overlay. For each logical camera the physical cameras are listed
// in order of preference.
type VendorCameraPrefs struct {
	physical map[string][]PhysicalCamera
}

// PhysicalCameras returns the vendor's preferred physical cameras for a
// logical camera ID, or nil when the overlay has no entry.
func (p *VendorCameraPrefs) PhysicalCameras(logicalID string) []PhysicalCamera {
	if p == nil {
		return nil
	}
	return p.physical[logicalID]
}

// LoadVendorCameraPrefs parses the physical camera mapping overlay:
//
//	{"0": {"2": "wide", "3": "ultrawide"}}
//
// Object order carries the vendor's preference, so the file is walked
// with a token decoder rather than unmarshalled into a map. A missing
// file yields empty prefs.
func LoadVendorCameraPrefs(path string) (*VendorCameraPrefs, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &VendorCameraPrefs{physical: map[string][]PhysicalCamera{}}, nil
		}
		return nil, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	if err := expectDelim(dec, '{'); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	prefs := &VendorCameraPrefs{physical: map[string][]PhysicalCamera{}}
	for dec.More() {
		logical, err := stringToken(dec)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		if err := expectDelim(dec, '{'); err != nil {
			return nil, fmt.Errorf("parsing %s: camera %s: %w", path, logical, err)
		}

		var cameras []PhysicalCamera
		for dec.More() {
			id, err := stringToken(dec)
			if err != nil {
				return nil, fmt.Errorf("parsing %s: camera %s: %w", path, logical, err)
			}
			label, err := stringToken(dec)
			if err != nil {
				return nil, fmt.Errorf("parsing %s: camera %s: %w", path, logical, err)
			}
			cameras = append(cameras, PhysicalCamera{ID: id, Label: label})
		}
		if err := expectDelim(dec, '}'); err != nil {
			return nil, fmt.Errorf("parsing %s: camera %s: %w", path, logical, err)
		}
		prefs.physical[logical] = cameras
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return prefs, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func stringToken(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	s, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected string, got %v", tok)
	}
	return s, nil
}
