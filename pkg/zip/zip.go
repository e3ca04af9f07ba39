// Package zip bundles downloadable files into a single zip archive.
package zip

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ManifestName is the entry holding the JSON manifest, when one is given.
const ManifestName = "manifest.json"

type Asset struct {
	Filename string
	MIME     string
	Data     []byte
}

// ArchiveAssets writes assets, in order, into a zip archive stamped with
// modified. Empty assets are skipped. A non-nil manifest is marshalled into
// ManifestName as the last entry.
func ArchiveAssets(assets []Asset, manifest any, modified time.Time) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	seen := make(map[string]bool, len(assets))
	for _, asset := range assets {
		if len(asset.Data) == 0 {
			continue
		}
		if asset.Filename == "" || asset.Filename == ManifestName || seen[asset.Filename] {
			return nil, fmt.Errorf("zip: invalid or duplicate filename %q", asset.Filename)
		}
		seen[asset.Filename] = true
		if err := writeEntry(zw, asset.Filename, asset.Data, modified, zip.Store); err != nil {
			return nil, err
		}
	}
	if manifest != nil {
		data, err := json.MarshalIndent(manifest, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("zip: marshal manifest: %w", err)
		}
		if err := writeEntry(zw, ManifestName, data, modified, zip.Deflate); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: finalize: %w", err)
	}
	return buf.Bytes(), nil
}

// Images are already compressed, so they are stored as is.
func writeEntry(zw *zip.Writer, name string, data []byte, modified time.Time, method uint16) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method, Modified: modified})
	if err != nil {
		return fmt.Errorf("zip: create %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("zip: write %s: %w", name, err)
	}
	return nil
}
