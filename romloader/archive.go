package romloader

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/nwaples/rardecode/v2"
	"github.com/spf13/afero"
)

// readLocal reads a whole file through the host filesystem, enforcing
// the in-memory size ceiling.
func readLocal(fs afero.Fs, path string) ([]byte, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()
	return limitedRead(f)
}

// limitedRead reads from r up to maxGameSize bytes, erroring if
// exceeded.
func limitedRead(r io.Reader) ([]byte, error) {
	lr := io.LimitReader(r, maxGameSize+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if len(data) > maxGameSize {
		return nil, ErrFileTooLarge
	}
	return data, nil
}

func openZip(fs afero.Fs, path string) (*zip.Reader, io.Closer, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open zip: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to stat zip: %w", err)
	}
	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to read zip: %w", err)
	}
	return zr, f, nil
}

// zipFirstMatch extracts the first zip member whose extension the
// accept function approves.
func zipFirstMatch(fs afero.Fs, path string, accept func(ext string) bool) ([]byte, string, error) {
	zr, closer, err := openZip(fs, path)
	if err != nil {
		return nil, "", err
	}
	defer closer.Close()

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if !accept(filepath.Ext(f.Name)) {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, "", fmt.Errorf("failed to open %s in archive: %w", f.Name, err)
		}
		data, err := limitedRead(rc)
		rc.Close()
		if err != nil {
			return nil, "", fmt.Errorf("failed to read %s: %w", f.Name, err)
		}
		return data, f.Name, nil
	}

	return nil, "", ErrNoGameFile
}

// zipMember extracts one named member from a zip archive.
func zipMember(fs afero.Fs, path, member string) ([]byte, error) {
	zr, closer, err := openZip(fs, path)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	member = strings.Trim(member, "/")
	for _, f := range zr.File {
		if strings.Trim(f.Name, "/") != member {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s in archive: %w", f.Name, err)
		}
		defer rc.Close()
		data, err := limitedRead(rc)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
		}
		return data, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrNoGameFile, member)
}

// sevenZipFirstMatch extracts the first matching member of a 7z
// archive.
func sevenZipFirstMatch(fs afero.Fs, path string, accept func(ext string) bool) ([]byte, string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open 7z: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, "", fmt.Errorf("failed to stat 7z: %w", err)
	}
	r, err := sevenzip.NewReader(f, info.Size())
	if err != nil {
		return nil, "", fmt.Errorf("failed to read 7z: %w", err)
	}

	for _, zf := range r.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		if !accept(filepath.Ext(zf.Name)) {
			continue
		}

		rc, err := zf.Open()
		if err != nil {
			return nil, "", fmt.Errorf("failed to open %s in archive: %w", zf.Name, err)
		}
		data, err := limitedRead(rc)
		rc.Close()
		if err != nil {
			return nil, "", fmt.Errorf("failed to read %s: %w", zf.Name, err)
		}
		return data, zf.Name, nil
	}

	return nil, "", ErrNoGameFile
}

// rarFirstMatch extracts the first matching member of a RAR archive.
func rarFirstMatch(fs afero.Fs, path string, accept func(ext string) bool) ([]byte, string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open rar: %w", err)
	}
	defer f.Close()

	r, err := rardecode.NewReader(f)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read rar: %w", err)
	}

	for {
		header, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("failed to read rar entry: %w", err)
		}

		if header.IsDir {
			continue
		}
		if !accept(filepath.Ext(header.Name)) {
			continue
		}

		data, err := limitedRead(r)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read %s: %w", header.Name, err)
		}
		return data, header.Name, nil
	}

	return nil, "", ErrNoGameFile
}

// gzipFirstMatch decompresses a gzip or tar.gz file. A plain .gz is
// taken as the compressed game image itself; a tarball is scanned for
// the first matching member.
func gzipFirstMatch(fs afero.Fs, path string, accept func(ext string) bool) ([]byte, string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open gzip: %w", err)
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gr.Close()

	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".tar.gz") || strings.HasSuffix(lower, ".tgz") {
		return tarFirstMatch(gr, accept)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if !accept(filepath.Ext(name)) {
		return nil, "", ErrNoGameFile
	}
	data, err := limitedRead(gr)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decompress gzip: %w", err)
	}
	return data, name, nil
}

// tarFirstMatch scans a tar stream for the first matching member.
func tarFirstMatch(r io.Reader, accept func(ext string) bool) ([]byte, string, error) {
	tr := tar.NewReader(r)

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("failed to read tar entry: %w", err)
		}

		if header.Typeflag != tar.TypeReg {
			continue
		}
		if !accept(filepath.Ext(header.Name)) {
			continue
		}

		data, err := limitedRead(tr)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read %s from tar: %w", header.Name, err)
		}
		return data, header.Name, nil
	}

	return nil, "", ErrNoGameFile
}
