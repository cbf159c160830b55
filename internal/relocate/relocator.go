// Package relocate moves capture artifacts out of the shared sandbox
// mount into the partitioned artifact store once a job reports success.
package relocate

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chuanzhoupan/goingest/internal/config"
	"github.com/chuanzhoupan/goingest/internal/domain"
	"github.com/chuanzhoupan/goingest/internal/logger"
)

// dateLayout partitions the store by capture date.
const dateLayout = "20060102"

// Relocator reads per-sandbox result manifests, rewrites sandbox paths
// to host paths, and moves artifacts into the
// <base>/<kind>/<date>/<domain> tree.
type Relocator struct {
	hostCodePath    string
	sandboxCodePath string
	baseDst         string
	identity        config.HostIdentity
	logger          logger.Interface

	now func() time.Time
}

// New creates a relocator.
func New(hostCodePath, sandboxCodePath, baseDst string, identity config.HostIdentity, log logger.Interface) *Relocator {
	return &Relocator{
		hostCodePath:    hostCodePath,
		sandboxCodePath: sandboxCodePath,
		baseDst:         baseDst,
		identity:        identity,
		logger:          log,
		now:             time.Now,
	}
}

// ManifestPath returns where the named sandbox writes its result
// manifest, in the host filesystem view.
func (r *Relocator) ManifestPath(sandboxName string) string {
	return filepath.Join(r.hostCodePath, "meta", sandboxName+"_last.json")
}

// Process validates the manifest for job's sandbox and moves every
// artifact into the store. No file is moved unless all required paths
// are present. On success the returned paths are host-side and final.
func (r *Relocator) Process(job *domain.Job) (domain.ArtifactPaths, error) {
	var paths domain.ArtifactPaths

	manifest, err := r.readManifest(job.Sandbox)
	if err != nil {
		return paths, err
	}

	required := map[string]string{
		"pcap":       manifest.PcapPath,
		"ssl_key":    manifest.SSLKeyFilePath,
		"content":    manifest.ContentPath,
		"html":       manifest.HTMLPath,
		"screenshot": manifest.ScreenshotPath,
	}
	var missing []string
	for kind, p := range required {
		if strings.TrimSpace(p) == "" {
			missing = append(missing, kind)
		}
	}
	if len(missing) > 0 {
		return paths, fmt.Errorf("result manifest for %s missing required paths: %s",
			job.Sandbox, strings.Join(missing, ", "))
	}

	domainDir := job.Domain
	if domainDir == "" {
		domainDir = "unknown"
	}
	date := r.now().Format(dateLayout)

	move := func(kind, sandboxPath string) (string, error) {
		src := r.RewritePath(sandboxPath)
		dstDir := filepath.Join(r.baseDst, kind, date, domainDir)
		return r.moveAndChown(src, dstDir)
	}

	if paths.Pcap, err = move("pcap", manifest.PcapPath); err != nil {
		return domain.ArtifactPaths{}, err
	}
	if paths.SSLKey, err = move("ssl_key", manifest.SSLKeyFilePath); err != nil {
		return domain.ArtifactPaths{}, err
	}
	if paths.Content, err = move("content", manifest.ContentPath); err != nil {
		return domain.ArtifactPaths{}, err
	}
	if paths.HTML, err = move("html", manifest.HTMLPath); err != nil {
		return domain.ArtifactPaths{}, err
	}
	if paths.Screenshot, err = move("screenshot", manifest.ScreenshotPath); err != nil {
		return domain.ArtifactPaths{}, err
	}
	paths.CurrentURL = manifest.CurrentURL

	return paths, nil
}

// RewritePath translates a sandbox-relative path to its host
// equivalent. Already-host-rooted paths pass through unchanged, so the
// rewrite is idempotent.
func (r *Relocator) RewritePath(p string) string {
	if rest, ok := strings.CutPrefix(p, r.sandboxCodePath); ok {
		return r.hostCodePath + rest
	}
	return p
}

// readManifest loads and decodes the sandbox's result manifest.
func (r *Relocator) readManifest(sandboxName string) (domain.Manifest, error) {
	var m domain.Manifest
	raw, err := os.ReadFile(r.ManifestPath(sandboxName))
	if err != nil {
		return m, fmt.Errorf("failed to read result manifest for %s: %w", sandboxName, err)
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return m, fmt.Errorf("failed to parse result manifest for %s: %w", sandboxName, err)
	}
	return m, nil
}

// moveAndChown moves src into dstDir and applies host ownership to the
// moved tree. Ownership failures are swallowed: file usability matters
// more than ownership correctness.
func (r *Relocator) moveAndChown(src, dstDir string) (string, error) {
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dstDir, err)
	}

	dst := filepath.Join(dstDir, filepath.Base(src))
	if err := moveFile(src, dst); err != nil {
		return "", fmt.Errorf("failed to move %s: %w", src, err)
	}

	r.chownRecursive(dst)
	return dst, nil
}

// moveFile renames src to dst, falling back to copy+remove when the
// store lives on a different filesystem than the sandbox mount. The
// fallback carries directory artifacts whole.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	info, err := os.Lstat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		if err := copyDir(src, dst); err != nil {
			return err
		}
	} else if err := copyFile(src, dst, info.Mode().Perm()); err != nil {
		return err
	}
	return os.RemoveAll(src)
}

// copyDir recursively copies the directory at src to dst.
func copyDir(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, info.Mode().Perm()); err != nil {
		return err
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())
		if entry.IsDir() {
			if err := copyDir(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		entryInfo, err := entry.Info()
		if err != nil {
			return err
		}
		if err := copyFile(srcPath, dstPath, entryInfo.Mode().Perm()); err != nil {
			return err
		}
	}
	return nil
}

// copyFile copies one regular file, removing a partial dst on failure.
func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

// chownRecursive applies the host identity to path and everything under
// it, best-effort.
func (r *Relocator) chownRecursive(path string) {
	uid, gid := r.identity.UID, r.identity.GID
	_ = os.Lchown(path, uid, gid)

	info, err := os.Lstat(path)
	if err != nil || !info.IsDir() {
		return
	}
	_ = filepath.WalkDir(path, func(p string, _ fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		_ = os.Lchown(p, uid, gid)
		return nil
	})
}
