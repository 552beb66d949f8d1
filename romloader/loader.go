// Package romloader decides how a game file is presented to a core:
// as a local filesystem path, as the path of its containing archive,
// or as an in-memory buffer read through the host filesystem,
// extracting from compressed archives (ZIP, 7z, gzip, tar.gz, RAR)
// where needed.
package romloader

import (
	"errors"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// maxGameSize bounds in-memory presentations. Reads past this reject
// the strategy rather than hand a truncated image to the core.
const maxGameSize = 512 * 1024 * 1024

// ErrRejectedByAllStrategies is returned when every applicable
// strategy was tried and the core refused each presentation.
var ErrRejectedByAllStrategies = errors.New("file rejected by all load strategies")

// ErrNoGameFile is returned when an archive holds no entry with an
// accepted extension.
var ErrNoGameFile = errors.New("no game file found in archive")

// ErrFileTooLarge is returned when content exceeds the in-memory size
// ceiling.
var ErrFileTooLarge = errors.New("file exceeds maximum size limit")

// GameFile identifies the file the user asked to play. A file may be
// a member of a zip container, in which case Archive names the
// container and Path the member within it.
type GameFile struct {
	Path    string
	Archive string
}

// InArchive reports whether the file is a member of a container.
func (f GameFile) InArchive() bool {
	return f.Archive != ""
}

// localPath reports whether s is a plain local path with no URL
// scheme.
func localPath(s string) bool {
	return !strings.Contains(s, "://")
}

// Presentation is the form a game is handed to a core in: a
// filesystem path, or an in-memory buffer.
type Presentation struct {
	Path string
	Data []byte
}

// InMemory reports whether the presentation carries a buffer rather
// than a path.
func (p Presentation) InMemory() bool {
	return p.Data != nil
}

// CoreTraits is the view of a core's capabilities the resolver needs.
// Implemented by libretro.SystemInfo.
type CoreTraits interface {
	// AllowsVFS reports whether the core accepts in-memory game data.
	AllowsVFS() bool

	// IsExtensionValid reports whether the core accepts files with the
	// given extension. Must be case-insensitive, and an empty accepted
	// set must match everything.
	IsExtensionValid(ext string) bool
}

// strategy is one way of presenting a game file to a core: an
// applicability test plus a presentation producer.
type strategy interface {
	name() string
	resolve(fs afero.Fs, file GameFile, core CoreTraits) (Presentation, bool)
}

// Order returns the strategies in the order they are attempted. The
// default favors handing cores real paths; preferVFS moves the two
// in-memory strategies to the front, preserving relative order within
// each pair.
func Order(preferVFS bool) []strategy {
	s := []strategy{useLocalPath{}, useParentArchive{}, useMemory{}, enterArchive{}}
	if preferVFS {
		s[0], s[2] = s[2], s[0]
		s[1], s[3] = s[3], s[1]
	}
	return s
}

// Resolve walks the strategy order. A strategy is taken only when it
// is applicable to the file AND the core accepts the presentation it
// produces; a core refusing load_game advances to the next strategy.
// The file is unloadable only when every strategy has been tried.
func Resolve(fs afero.Fs, file GameFile, core CoreTraits, preferVFS bool, load func(Presentation) bool) error {
	for _, s := range Order(preferVFS) {
		p, ok := s.resolve(fs, file, core)
		if !ok {
			continue
		}
		if load(p) {
			log.WithFields(log.Fields{
				"strategy": s.name(),
				"path":     file.Path,
			}).Info("core loaded game")
			return nil
		}
		log.WithFields(log.Fields{
			"strategy": s.name(),
			"path":     file.Path,
		}).Info("core refused presentation, trying next strategy")
	}
	return ErrRejectedByAllStrategies
}

// useLocalPath hands the core the file's own path. Applicable only to
// purely local files with an accepted extension.
type useLocalPath struct{}

func (useLocalPath) name() string { return "local-path" }

func (useLocalPath) resolve(fs afero.Fs, file GameFile, core CoreTraits) (Presentation, bool) {
	if file.InArchive() || !localPath(file.Path) {
		return Presentation{}, false
	}
	if !core.IsExtensionValid(filepath.Ext(file.Path)) {
		return Presentation{}, false
	}
	return Presentation{Path: file.Path}, true
}

// useParentArchive hands the core the path of the zip containing the
// file. Cores with block_extract set want the whole archive; this is
// the strategy that honors that. Applicable only when the member sits
// at the archive root and the archive is a local zip the core
// accepts.
type useParentArchive struct{}

func (useParentArchive) name() string { return "parent-archive" }

func (useParentArchive) resolve(fs afero.Fs, file GameFile, core CoreTraits) (Presentation, bool) {
	if !file.InArchive() {
		return Presentation{}, false
	}
	if !strings.EqualFold(filepath.Ext(file.Archive), ".zip") {
		return Presentation{}, false
	}
	if !core.IsExtensionValid(".zip") {
		return Presentation{}, false
	}
	// Member must sit at the archive root.
	if strings.ContainsAny(strings.Trim(file.Path, "/"), "/") {
		return Presentation{}, false
	}
	if !localPath(file.Archive) {
		return Presentation{}, false
	}
	return Presentation{Path: file.Archive}, true
}

// useMemory reads the full file into memory through the host
// filesystem. Applicable when the core accepts buffers and the
// extension matches. Zero-length files and files past the size
// ceiling reject the strategy.
type useMemory struct{}

func (useMemory) name() string { return "in-memory" }

func (useMemory) resolve(fs afero.Fs, file GameFile, core CoreTraits) (Presentation, bool) {
	if !core.AllowsVFS() {
		return Presentation{}, false
	}
	if !core.IsExtensionValid(filepath.Ext(file.Path)) {
		return Presentation{}, false
	}

	var data []byte
	var err error
	if file.InArchive() {
		data, err = zipMember(fs, file.Archive, file.Path)
	} else {
		data, err = readLocal(fs, file.Path)
	}
	if err != nil {
		log.WithField("path", file.Path).WithError(err).Error("filesystem read failed")
		return Presentation{}, false
	}
	if len(data) == 0 {
		log.WithField("path", file.Path).Error("refusing zero-length game file")
		return Presentation{}, false
	}
	return Presentation{Data: data}, true
}

// enterArchive treats the file itself as a container and presents the
// first member with an accepted extension as a buffer. Zip per the
// core contract; 7z, gzip/tar.gz and rar are handled the same way.
type enterArchive struct{}

func (enterArchive) name() string { return "enter-archive" }

func (enterArchive) resolve(fs afero.Fs, file GameFile, core CoreTraits) (Presentation, bool) {
	if file.InArchive() || !core.AllowsVFS() {
		return Presentation{}, false
	}

	var data []byte
	var name string
	var err error
	switch strings.ToLower(filepath.Ext(file.Path)) {
	case ".zip":
		data, name, err = zipFirstMatch(fs, file.Path, core.IsExtensionValid)
	case ".7z":
		data, name, err = sevenZipFirstMatch(fs, file.Path, core.IsExtensionValid)
	case ".rar":
		data, name, err = rarFirstMatch(fs, file.Path, core.IsExtensionValid)
	case ".gz", ".tgz":
		data, name, err = gzipFirstMatch(fs, file.Path, core.IsExtensionValid)
	default:
		return Presentation{}, false
	}
	if err != nil {
		log.WithField("archive", file.Path).WithError(err).Info("cannot enter archive")
		return Presentation{}, false
	}
	if len(data) == 0 {
		return Presentation{}, false
	}
	log.WithFields(log.Fields{
		"archive": file.Path,
		"member":  name,
	}).Debug("entered archive")
	return Presentation{Data: data}, true
}
