package subtitle

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"sort"
)

const maxInflated = 64 << 20

func isZip(buf []byte) bool {
	return len(buf) > 4 && bytes.HasPrefix(buf, []byte("PK\x03\x04"))
}

func isGzip(buf []byte) bool {
	return len(buf) > 2 && buf[0] == 0x1f && buf[1] == 0x8b
}

func gunzip(buf []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompress, err)
	}
	defer zr.Close()

	out, err := io.ReadAll(io.LimitReader(zr, maxInflated))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompress, err)
	}
	return out, nil
}

type archiveMember struct {
	name string
	data []byte
}

// regular files of a zip archive in name order
func zipMembers(buf []byte) ([]archiveMember, error) {
	zr, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompress, err)
	}

	files := make([]*zip.File, 0, len(zr.File))
	for _, f := range zr.File {
		if !f.FileInfo().IsDir() {
			files = append(files, f)
		}
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].Name < files[j].Name
	})

	members := make([]archiveMember, 0, len(files))
	for _, f := range files {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrDecompress, f.Name, err)
		}
		data, err := io.ReadAll(io.LimitReader(rc, maxInflated))
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrDecompress, f.Name, err)
		}
		members = append(members, archiveMember{name: f.Name, data: data})
	}
	return members, nil
}
