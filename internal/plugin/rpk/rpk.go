// Package rpk reads and writes RPK plugin packages: ZIP archives carrying a
// manifest.toml and a plugin.lua guest module at the root, plus optional
// static assets.
package rpk

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/goldpress/goldpress/internal/plugin"
)

// Archive member names.
const (
	ManifestName = "manifest.toml"
	ModuleName   = "plugin.lua"
)

// maxMemberSize bounds a single decompressed member to guard against
// zip bombs in uploaded archives.
const maxMemberSize = 8 << 20

// Package errors.
var (
	// ErrNotZip is returned when the bytes are not a ZIP archive.
	ErrNotZip = errors.New("not a zip archive")

	// ErrMissingManifest is returned when manifest.toml is absent from the root.
	ErrMissingManifest = errors.New("manifest.toml missing from package root")

	// ErrMissingModule is returned when plugin.lua is absent from the root.
	ErrMissingModule = errors.New("plugin.lua missing from package root")

	// ErrUnsafePath is returned when a member path escapes the archive root.
	ErrUnsafePath = errors.New("unsafe path in package")

	// ErrMemberTooLarge is returned when a member exceeds the size bound.
	ErrMemberTooLarge = errors.New("package member too large")
)

// Package is a decoded RPK archive with its manifest already validated.
type Package struct {
	// Manifest is the parsed, validated manifest.
	Manifest *plugin.Manifest

	// ManifestRaw is the original manifest.toml bytes.
	ManifestRaw []byte

	// Module is the plugin.lua guest source.
	Module []byte

	// Assets maps the remaining member paths to their contents.
	Assets map[string][]byte
}

// ReadPackage decodes an RPK archive and validates its manifest. It rejects
// archives with members that escape the root and archives missing the
// required root members.
func ReadPackage(data []byte) (*Package, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotZip, err)
	}

	pkg := &Package{Assets: make(map[string][]byte)}
	for _, file := range reader.File {
		name := file.Name
		if strings.HasSuffix(name, "/") {
			continue // directory entry
		}
		if !safePath(name) {
			return nil, fmt.Errorf("%w: %q", ErrUnsafePath, name)
		}

		contents, err := readMember(file)
		if err != nil {
			return nil, err
		}

		switch name {
		case ManifestName:
			pkg.ManifestRaw = contents
		case ModuleName:
			pkg.Module = contents
		default:
			pkg.Assets[name] = contents
		}
	}

	if pkg.ManifestRaw == nil {
		return nil, ErrMissingManifest
	}
	if pkg.Module == nil {
		return nil, ErrMissingModule
	}

	manifest, err := plugin.ParseManifest(pkg.ManifestRaw)
	if err != nil {
		return nil, err
	}
	pkg.Manifest = manifest

	return pkg, nil
}

// WritePackage builds an RPK archive from manifest bytes, a guest module,
// and optional assets. The manifest is not validated here; ReadPackage is
// the gatekeeper.
func WritePackage(manifestTOML, module []byte, assets map[string][]byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)

	members := map[string][]byte{
		ManifestName: manifestTOML,
		ModuleName:   module,
	}
	for name, contents := range assets {
		if !safePath(name) {
			return nil, fmt.Errorf("%w: %q", ErrUnsafePath, name)
		}
		if name == ManifestName || name == ModuleName {
			return nil, fmt.Errorf("asset %q collides with a reserved member", name)
		}
		members[name] = contents
	}

	// Deterministic member order keeps archives byte-stable for tests.
	for _, name := range sortedKeys(members) {
		w, err := writer.Create(name)
		if err != nil {
			return nil, fmt.Errorf("writing package member %q: %w", name, err)
		}
		if _, err := w.Write(members[name]); err != nil {
			return nil, fmt.Errorf("writing package member %q: %w", name, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing package: %w", err)
	}
	return buf.Bytes(), nil
}

// readMember decompresses one archive member with a size bound.
func readMember(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("opening package member %q: %w", file.Name, err)
	}
	defer rc.Close()

	contents, err := io.ReadAll(io.LimitReader(rc, maxMemberSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading package member %q: %w", file.Name, err)
	}
	if len(contents) > maxMemberSize {
		return nil, fmt.Errorf("%w: %q", ErrMemberTooLarge, file.Name)
	}
	return contents, nil
}

// safePath rejects absolute paths and any path that escapes the archive
// root after cleaning.
func safePath(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, "\\") {
		return false
	}
	clean := path.Clean(name)
	return clean != ".." && !strings.HasPrefix(clean, "../") && clean != "."
}

func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
