package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Kind distinguishes server-side selections from uploaded content.
type Kind string

const (
	Selected Kind = "select"
	Uploaded Kind = "upload"
)

const hashLen = 16

var ErrEmptyName = errors.New("file name is empty after sanitization")

// Source describes where a table comes from. Selected sources are identified by
// path and modification time, uploaded ones by name and content.
type Source struct {
	Kind    Kind
	Name    string
	Path    string
	ModTime time.Time
	Content []byte
}

// SelectedSource stats path and returns its descriptor.
func SelectedSource(path string) (Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Source{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return Source{}, fmt.Errorf("%s is a directory", path)
	}
	return Source{
		Kind:    Selected,
		Name:    filepath.Base(path),
		Path:    path,
		ModTime: info.ModTime(),
	}, nil
}

func UploadedSource(name string, content []byte) Source {
	return Source{Kind: Uploaded, Name: name, Content: content}
}

// Key addresses one persisted normalized table.
type Key struct {
	Kind    Kind
	Name    string // sanitized file name
	Version string // mtime seconds or content hash prefix
}

// Derive computes the key for src. Identical sources give identical keys;
// a different mtime or different bytes give a different Version.
func Derive(src Source) (Key, error) {
	name := SecureFilename(src.Name)
	if name == "" {
		return Key{}, ErrEmptyName
	}

	switch src.Kind {
	case Selected:
		return Key{Kind: Selected, Name: name, Version: strconv.FormatInt(src.ModTime.Unix(), 10)}, nil
	case Uploaded:
		sum := sha256.Sum256(src.Content)
		return Key{Kind: Uploaded, Name: name, Version: hex.EncodeToString(sum[:])[:hashLen]}, nil
	default:
		return Key{}, fmt.Errorf("unknown source kind %q", src.Kind)
	}
}

func (k Key) String() string {
	return string(k.Kind) + "_" + k.Name + "_" + k.Version
}

// FileName is the on-disk name of the entry with the given extension (".tbl").
func (k Key) FileName(ext string) string {
	return k.String() + ext
}

// SiblingPattern is a glob matching every entry that may share this key's
// kind and name. Matches must still be confirmed with Parse, because the glob
// also matches longer names that merely start with the same prefix.
func (k Key) SiblingPattern() string {
	return string(k.Kind) + "_" + k.Name + "_*"
}

// Parse recovers a key from a key string or an entry file name. Everything from
// the first dot after the version is treated as the extension.
func Parse(s string) (Key, bool) {
	var kind Kind
	switch {
	case strings.HasPrefix(s, string(Selected)+"_"):
		kind = Selected
	case strings.HasPrefix(s, string(Uploaded)+"_"):
		kind = Uploaded
	default:
		return Key{}, false
	}
	rest := s[len(kind)+1:]

	sep := strings.LastIndexByte(rest, '_')
	if sep <= 0 {
		return Key{}, false
	}
	name, version := rest[:sep], rest[sep+1:]
	if dot := strings.IndexByte(version, '.'); dot >= 0 {
		version = version[:dot]
	}

	if !validVersion(kind, version) {
		return Key{}, false
	}
	return Key{Kind: kind, Name: name, Version: version}, true
}

func validVersion(kind Kind, v string) bool {
	if v == "" {
		return false
	}
	if kind == Uploaded {
		if len(v) != hashLen {
			return false
		}
		_, err := hex.DecodeString(v)
		return err == nil
	}
	for i := 0; i < len(v); i++ {
		if (v[i] < '0' || v[i] > '9') && !(i == 0 && v[i] == '-') {
			return false
		}
	}
	return true
}
