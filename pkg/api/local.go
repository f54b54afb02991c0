package api

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	errPathNotAllowed = errors.New("path not allowed")
	errFileNotFound   = errors.New("file not found")
)

// attachmentExts are downloaded rather than displayed by the browser.
var attachmentExts = map[string]bool{
	".xlsx": true,
	".xls":  true,
	".csv":  true,
	".tsv":  true,
	".zip":  true,
}

// asAttachment reports whether name should be served as a download.
func asAttachment(name string) bool {
	return attachmentExts[strings.ToLower(filepath.Ext(name))]
}

// localFileServer serves run files from the datasets root. Request paths
// are resolved relative to the root and may never leave it.
type localFileServer struct {
	log  logrus.FieldLogger
	root string
}

// newLocalFileServer creates a file server rooted at the datasets root.
func newLocalFileServer(log logrus.FieldLogger, root string) *localFileServer {
	return &localFileServer{
		log:  log.WithField("component", "local-file-server"),
		root: filepath.Clean(root),
	}
}

// resolve maps a slash separated path relative to the root onto the
// filesystem and stats it.
func (l *localFileServer) resolve(filePath string) (string, os.FileInfo, error) {
	if !l.isAllowedPath(filePath) {
		return "", nil, fmt.Errorf("%q: %w", filePath, errPathNotAllowed)
	}

	full := filepath.Join(l.root, filepath.FromSlash(filePath))

	// Defense-in-depth: ensure the resolved path stays under root.
	if !strings.HasPrefix(full, l.root+string(filepath.Separator)) {
		return "", nil, fmt.Errorf("%q: %w", filePath, errPathNotAllowed)
	}

	info, err := os.Stat(full)
	if err != nil {
		return "", nil, fmt.Errorf("%q: %w", filePath, errFileNotFound)
	}

	return full, info, nil
}

// ServeFile serves a regular file below the root. Spreadsheets, tables and
// archives are sent as attachments; everything else inline.
func (l *localFileServer) ServeFile(
	w http.ResponseWriter,
	r *http.Request,
	filePath string,
) error {
	full, info, err := l.resolve(filePath)
	if err != nil {
		return err
	}

	if !info.Mode().IsRegular() {
		return fmt.Errorf("%q: %w", filePath, errFileNotFound)
	}

	name := path.Base(filePath)

	if asAttachment(name) {
		w.Header().Set("Content-Disposition",
			mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	}

	f, err := os.Open(full)
	if err != nil {
		return fmt.Errorf("%q: %w", filePath, errFileNotFound)
	}
	defer func() { _ = f.Close() }()

	http.ServeContent(w, r, name, info.ModTime(), f)

	return nil
}

// isAllowedPath rejects empty, absolute, unclean, or traversal request paths.
func (l *localFileServer) isAllowedPath(filePath string) bool {
	if filePath == "" {
		return false
	}

	if strings.Contains(filePath, "..") || strings.Contains(filePath, `\`) {
		return false
	}

	if path.IsAbs(filePath) || filepath.IsAbs(filePath) {
		return false
	}

	// Ensure the path is clean (no double slashes, trailing slashes, etc.).
	return path.Clean(filePath) == filePath
}
