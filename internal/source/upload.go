package source

import (
	"fmt"
	"io"
	"mime/multipart"

	"codedocs/internal/fileset"
)

// maxUploadFileBytes bounds a single uploaded file.
const maxUploadFileBytes = 1 << 20

// FromMultipart reads every uploaded file into a filtered FileSet. Files
// with disallowed extensions or oversized bodies are skipped, not errors.
// Relative paths from directory uploads are preserved via the part's
// filename.
func FromMultipart(files []*multipart.FileHeader) (fileset.FileSet, error) {
	fs := make(fileset.FileSet)
	for _, fh := range files {
		name := fileset.NormalizePath(fh.Filename)
		if name == "" || !fileset.AllowedExtension(name) {
			continue
		}
		if fh.Size > maxUploadFileBytes {
			continue
		}

		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open upload %s: %w", name, err)
		}
		content, err := io.ReadAll(io.LimitReader(f, maxUploadFileBytes+1))
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read upload %s: %w", name, err)
		}
		if len(content) > maxUploadFileBytes {
			continue
		}
		fs[name] = string(content)
	}
	if len(fs) == 0 {
		return nil, fmt.Errorf("no supported files in upload")
	}
	return fs, nil
}
