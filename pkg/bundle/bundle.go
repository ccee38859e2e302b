// Package bundle packs a script, its generated wrapper source and a manifest
// into a zstd-compressed tar, so the build can be finished on a machine that
// has the Windows toolchain.
package bundle

import (
	"archive/tar"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
	"github.com/valyala/gozstd"

	"vbs2exe-tools/go/pkg/logbowl"
)

// ManifestName is the archive entry holding the Manifest.
const ManifestName = "manifest.json"

// FormatVersion identifies the bundle layout.
const FormatVersion = 1

const maxEntrySize = 256 * 1024 * 1024 // 256 MB

var (
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrPathTraversal    = errors.New("archive entry escapes destination")
	ErrNoManifest       = errors.New("bundle has no manifest")
	ErrUnlistedEntry    = errors.New("archive entry is not listed in the manifest")
)

// File is one file to pack: Path on disk, stored as Name.
type File struct {
	Name string
	Path string
}

// ManifestEntry records one packed file.
type ManifestEntry struct {
	Name   string `json:"name"`
	Sha256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// Manifest describes a bundle.
type Manifest struct {
	FormatVersion int             `json:"format_version"`
	ToolVersion   string          `json:"tool_version"`
	Script        string          `json:"script"`
	Wrapper       string          `json:"wrapper"`
	BuildCommand  []string        `json:"build_command"`
	Files         []ManifestEntry `json:"files"`
}

// Attachments expands doublestar patterns relative to dir into Files named
// by their slash-separated path under dir. Directories are skipped and the
// result is sorted by name.
func Attachments(dir string, patterns []string) ([]File, error) {
	seen := map[string]bool{}
	var files []File
	fsys := os.DirFS(dir)
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, errors.Errorf("invalid pattern %q", pattern)
		}
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "expanding %q", pattern)
		}
		for _, m := range matches {
			if seen[m] {
				continue
			}
			info, err := fs.Stat(fsys, m)
			if err != nil {
				return nil, err
			}
			if info.IsDir() {
				continue
			}
			seen[m] = true
			files = append(files, File{Name: m, Path: filepath.Join(dir, filepath.FromSlash(m))})
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Write packs files into w and appends the manifest, whose Files list it
// fills in. Entry names must be unique, relative and slash-separated.
func Write(log logbowl.Logger, w io.Writer, files []File, manifest Manifest) error {
	return write(log, w, files, manifest, nil)
}

// WriteSigned is Write followed by a SignatureName entry signing the
// manifest bytes with key.
func WriteSigned(log logbowl.Logger, w io.Writer, files []File, manifest Manifest, key *rsa.PrivateKey) error {
	if key == nil {
		return errors.New("signing key is nil")
	}
	return write(log, w, files, manifest, key)
}

func write(log logbowl.Logger, w io.Writer, files []File, manifest Manifest, key *rsa.PrivateKey) error {
	zw := gozstd.NewWriter(w)
	defer zw.Release()
	tw := tar.NewWriter(zw)

	manifest.FormatVersion = FormatVersion
	manifest.Files = nil
	names := map[string]bool{ManifestName: true, SignatureName: true}
	for _, f := range files {
		name := path.Clean(f.Name)
		if names[name] {
			return errors.Errorf("duplicate bundle entry %q", name)
		}
		if !safeName(name) {
			return errors.Wrapf(ErrPathTraversal, "entry %q", f.Name)
		}
		names[name] = true

		entry, err := addFile(tw, name, f.Path)
		if err != nil {
			return errors.Wrapf(err, "adding %s", f.Path)
		}
		log.Debug("bundle", "pack", "progress", "Added file", "name", name, "bytes", entry.Size)
		manifest.Files = append(manifest.Files, entry)
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	if err := addBytes(tw, ManifestName, data); err != nil {
		return err
	}
	if key != nil {
		sig, err := sign(data, key)
		if err != nil {
			log.Error("bundle", "sign", "error", "Failed to sign manifest", "error", err)
			return errors.Wrap(err, "signing manifest")
		}
		if err := addBytes(tw, SignatureName, sig); err != nil {
			return err
		}
		log.Debug("bundle", "sign", "success", "Manifest signed")
	}
	if err := tw.Close(); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	log.Info("bundle", "pack", "success", "Bundle written", "files", len(manifest.Files), "signed", key != nil)
	return nil
}

func addBytes(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{Name: name, Mode: 0644, Size: int64(len(data)), Typeflag: tar.TypeReg}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}

func addFile(tw *tar.Writer, name, src string) (ManifestEntry, error) {
	f, err := os.Open(src)
	if err != nil {
		return ManifestEntry{}, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return ManifestEntry{}, err
	}
	if !info.Mode().IsRegular() {
		return ManifestEntry{}, errors.Errorf("%s is not a regular file", src)
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return ManifestEntry{}, err
	}
	hdr.Name = name
	if err := tw.WriteHeader(hdr); err != nil {
		return ManifestEntry{}, err
	}
	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tw, h), f)
	if err != nil {
		return ManifestEntry{}, err
	}
	return ManifestEntry{Name: name, Sha256: hex.EncodeToString(h.Sum(nil)), Size: n}, nil
}

func safeName(name string) bool {
	return name != "." && name != ".." && !path.IsAbs(name) &&
		!strings.HasPrefix(name, "../") && !strings.Contains(name, `\`)
}

// Extract unpacks a bundle into dest and verifies every file against the
// manifest. It returns the manifest on success.
func Extract(log logbowl.Logger, r io.Reader, dest string) (*Manifest, error) {
	files, err := unTar(r, dest)
	if err != nil {
		return nil, err
	}
	if !files[ManifestName] {
		return nil, ErrNoManifest
	}
	data, err := os.ReadFile(filepath.Join(dest, ManifestName))
	if err != nil {
		return nil, err
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, errors.Wrap(err, "parsing manifest")
	}
	if err := Verify(dest, &manifest); err != nil {
		log.Error("bundle", "verify", "failure", "Bundle verification failed", "error", err)
		return nil, err
	}
	if err := rejectUnlisted(dest, files, &manifest); err != nil {
		log.Error("bundle", "verify", "failure", "Bundle carries files the manifest does not cover", "error", err)
		return nil, err
	}
	log.Info("bundle", "verify", "success", "Bundle extracted and verified", "files", len(manifest.Files), "dest", dest)
	return &manifest, nil
}

// rejectUnlisted removes every extracted file the manifest does not account
// for and reports the first one.
func rejectUnlisted(dest string, files map[string]bool, manifest *Manifest) error {
	listed := map[string]bool{ManifestName: true, SignatureName: true}
	for _, e := range manifest.Files {
		listed[path.Clean(e.Name)] = true
	}
	var unlisted []string
	for name := range files {
		if !listed[name] {
			unlisted = append(unlisted, name)
		}
	}
	if len(unlisted) == 0 {
		return nil
	}
	sort.Strings(unlisted)
	for _, name := range unlisted {
		os.Remove(filepath.Join(dest, filepath.FromSlash(name)))
	}
	return errors.Wrapf(ErrUnlistedEntry, "entry %q", unlisted[0])
}

// Verify checks the files under dir against the manifest checksums.
func Verify(dir string, manifest *Manifest) error {
	for _, e := range manifest.Files {
		if !safeName(e.Name) {
			return errors.Wrapf(ErrPathTraversal, "manifest entry %q", e.Name)
		}
		f, err := os.Open(filepath.Join(dir, filepath.FromSlash(e.Name)))
		if err != nil {
			return err
		}
		h := sha256.New()
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return err
		}
		if got := hex.EncodeToString(h.Sum(nil)); got != e.Sha256 {
			return errors.Wrapf(ErrChecksumMismatch, "%s: expected %s, got %s", e.Name, e.Sha256, got)
		}
	}
	return nil
}

func unTar(r io.Reader, dest string) (map[string]bool, error) {
	zr := gozstd.NewReader(r)
	defer zr.Release()
	tr := tar.NewReader(zr)
	files := map[string]bool{}
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading bundle")
		}
		target := filepath.Join(dest, header.Name)
		if !within(dest, target) {
			return nil, errors.Wrapf(ErrPathTraversal, "entry %q", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return nil, err
			}
		case tar.TypeReg:
			if header.Size > maxEntrySize {
				return nil, errors.Errorf("entry %q is %d bytes, limit is %d", header.Name, header.Size, maxEntrySize)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return nil, err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode).Perm())
			if err != nil {
				return nil, err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return nil, err
			}
			f.Close()
			files[path.Clean(header.Name)] = true
		default:
			// Bundles only ever hold regular files.
			return nil, errors.Errorf("entry %q has unsupported type %q", header.Name, header.Typeflag)
		}
	}
	return files, nil
}

// within reports whether target is dest itself or lies below it. Both are
// compared lexically, so a relative dest such as "." works.
func within(dest, target string) bool {
	rel, err := filepath.Rel(dest, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator)) && !filepath.IsAbs(rel)
}

// Inspect reads the manifest of a bundle without writing anything to disk.
// signed reports whether the bundle carries a SignatureName entry; the
// signature itself is not checked.
func Inspect(r io.Reader) (manifest *Manifest, signed bool, err error) {
	zr := gozstd.NewReader(r)
	defer zr.Release()
	tr := tar.NewReader(zr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, errors.Wrap(err, "reading bundle")
		}
		switch path.Clean(header.Name) {
		case SignatureName:
			signed = true
		case ManifestName:
			data, err := io.ReadAll(io.LimitReader(tr, maxEntrySize))
			if err != nil {
				return nil, false, err
			}
			manifest = new(Manifest)
			if err := json.Unmarshal(data, manifest); err != nil {
				return nil, false, errors.Wrap(err, "parsing manifest")
			}
		}
	}
	if manifest == nil {
		return nil, false, ErrNoManifest
	}
	return manifest, signed, nil
}
