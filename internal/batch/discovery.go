package batch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// imageExtension is the only extension collected, compared case-insensitively.
const imageExtension = ".jpg"

// Group is one immediate child of the archive root.
type Group struct {
	Name string
	Path string
}

// ImageRef maps a local file to its remote object URI.
type ImageRef struct {
	Path    string
	RelPath string
	URI     string
}

// ListGroups returns every immediate child of root, sorted by name. Children
// are not filtered: a plain file is still a group.
func ListGroups(root string) ([]Group, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("cannot list archive root %s: %w", root, err)
	}

	groups := make([]Group, 0, len(entries))
	for _, e := range entries {
		groups = append(groups, Group{
			Name: e.Name(),
			Path: filepath.Join(root, e.Name()),
		})
	}
	return groups, nil
}

// CollectImages walks the group recursively and returns one ImageRef per
// regular .jpg file. URIs are built from the path relative to root.
func CollectImages(root string, g Group, bucket string, normalize bool) ([]ImageRef, error) {
	var refs []ImageRef

	walkFn := func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isJPEG(path) {
			return nil
		}

		regular, err := isRegularFile(path, d)
		if err != nil {
			return err
		}
		if !regular {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("cannot relativize %s: %w", path, err)
		}
		rel = filepath.ToSlash(rel)
		if normalize {
			rel = norm.NFC.String(rel)
		}

		refs = append(refs, ImageRef{
			Path:    path,
			RelPath: rel,
			URI:     RemoteURI(bucket, rel),
		})
		return nil
	}

	if err := filepath.WalkDir(g.Path, walkFn); err != nil {
		return nil, fmt.Errorf("failed to walk group %s: %w", g.Name, err)
	}
	return refs, nil
}

// RemoteURI joins the bucket prefix and a slash-separated relative path.
func RemoteURI(bucket, rel string) string {
	return strings.TrimRight(bucket, "/") + "/" + strings.TrimLeft(rel, "/")
}

// OutputURI is the destination prefix for a group's results. It always ends
// in a slash.
func OutputURI(bucket, group string) string {
	return strings.TrimRight(bucket, "/") + "/" + group + "/"
}

// isJPEG reports whether the lowercased extension is .jpg. .jpeg is excluded.
func isJPEG(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == imageExtension
}

// isRegularFile follows symlinks, so a link to a regular file counts.
func isRegularFile(path string, d fs.DirEntry) (bool, error) {
	if d.Type().IsRegular() {
		return true, nil
	}
	if d.Type()&fs.ModeSymlink == 0 {
		return false, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			// dangling link
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}
