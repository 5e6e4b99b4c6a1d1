package backport

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Extractor unpacks package files from the downloaded archive. Extraction
// is one level deep: the archive is expected to directly contain .deb
// files, so entry names are flattened to their base name.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract unpacks archivePath into destDir and returns the paths of the
// extracted .deb files.
func (e *Extractor) Extract(archivePath, destDir string) ([]string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, &ExtractError{Message: "opening archive", Err: err}
	}
	defer f.Close()

	reader, err := archiveReader(f)
	if err != nil {
		return nil, &ExtractError{Message: "reading archive", Err: err}
	}

	var debs []string
	tr := tar.NewReader(reader)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ExtractError{Message: "malformed archive", Err: err}
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		name := filepath.Base(hdr.Name)
		if name == "." || name == ".." || name == "/" {
			continue
		}

		dest := filepath.Join(destDir, name)
		if err := writeEntry(dest, tr); err != nil {
			return nil, &ExtractError{Message: "writing " + name, Err: err}
		}

		if strings.HasSuffix(name, ".deb") {
			debs = append(debs, dest)
		}
	}

	if len(debs) == 0 {
		return nil, &ExtractError{Message: "archive contains no .deb packages"}
	}

	return debs, nil
}

// List returns the file names contained in the archive without extracting.
func (e *Extractor) List(archivePath string) ([]string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, &ExtractError{Message: "opening archive", Err: err}
	}
	defer f.Close()

	reader, err := archiveReader(f)
	if err != nil {
		return nil, &ExtractError{Message: "reading archive", Err: err}
	}

	var names []string
	tr := tar.NewReader(reader)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ExtractError{Message: "malformed archive", Err: err}
		}
		if hdr.Typeflag == tar.TypeReg {
			names = append(names, hdr.Name)
		}
	}

	return names, nil
}

// archiveReader sniffs the gzip magic so both .tar and .tar.gz archives
// are accepted, matching what tar -xf would do.
func archiveReader(f *os.File) (io.Reader, error) {
	var magic [2]byte
	n, err := io.ReadFull(f, magic[:])
	if err != nil && n == 0 {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	if magic[0] == 0x1f && magic[1] == 0x8b {
		return gzip.NewReader(f)
	}
	return f, nil
}

func writeEntry(dest string, r io.Reader) error {
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
