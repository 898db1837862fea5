package docker

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/addiskers/webp/internal/dockerfile"
	"github.com/addiskers/webp/internal/model"
)

// dockerfileName is the path of the rendered Dockerfile inside the build
// context. It replaces any Dockerfile already present in the source tree.
const dockerfileName = "Dockerfile"

// ignoreFileName lists context exclusions, one pattern per line.
const ignoreFileName = ".dockerignore"

// ImageAPI is the subset of the Docker SDK used for image operations.
// *client.Client satisfies it; tests substitute a fake.
type ImageAPI interface {
	ImageBuild(ctx context.Context, buildContext io.Reader, options build.ImageBuildOptions) (build.ImageBuildResponse, error)
	ImageList(ctx context.Context, options image.ListOptions) ([]image.Summary, error)
}

// BuildRequest describes one image build.
type BuildRequest struct {
	// ContextDir is the source tree sent to the daemon.
	ContextDir string

	// Tag is the repository:tag applied to the result.
	Tag string

	// Descriptor renders the Dockerfile and supplies label values.
	Descriptor *dockerfile.Descriptor

	// Version is recorded in the webp.version label.
	Version string

	// Out receives the daemon's progress stream. Nil discards it.
	Out io.Writer
}

// BuildImage renders the Dockerfile for req.Descriptor, packs it together
// with req.ContextDir into a tar stream and asks the daemon to build it.
//
// Errors from the daemon or from the build itself come back as a
// model.CLIError with ExitBuildFailed.
func BuildImage(ctx context.Context, api ImageAPI, req BuildRequest, log *logrus.Entry) error {
	var df bytes.Buffer
	if err := dockerfile.Render(&df, req.Descriptor); err != nil {
		return model.WrapCLIError(model.ExitDescriptorInvalid, "cannot render Dockerfile", err)
	}

	buildCtx, err := ContextArchive(req.ContextDir, df.Bytes())
	if err != nil {
		return model.WrapCLIError(model.ExitBuildFailed, "cannot pack build context", err)
	}

	log.WithFields(logrus.Fields{
		"tag":     req.Tag,
		"context": req.ContextDir,
		"bytes":   buildCtx.Len(),
	}).Info("building image")

	resp, err := api.ImageBuild(ctx, buildCtx, build.ImageBuildOptions{
		Tags:        []string{req.Tag},
		Dockerfile:  dockerfileName,
		Labels:      BuildLabels(req.Descriptor, req.Version, time.Now()),
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return model.WrapCLIError(model.ExitBuildFailed, "image build request failed",
			errors.Wrapf(err, "build %s", req.Tag))
	}
	defer func() { _ = resp.Body.Close() }()

	out := req.Out
	if out == nil {
		out = io.Discard
	}
	// Build step failures arrive as error messages inside the stream, not as
	// an HTTP error, so the stream must be drained to learn the outcome.
	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, out, 0, false, nil); err != nil {
		return model.WrapCLIError(model.ExitBuildFailed, "image build failed",
			errors.Wrapf(err, "build %s", req.Tag))
	}

	log.WithField("tag", req.Tag).Info("image built")
	return nil
}

// ListManagedImages returns every image carrying the managed-by label,
// newest first. Images whose labels do not parse are skipped with a
// warning.
func ListManagedImages(ctx context.Context, api ImageAPI, log *logrus.Entry) ([]model.ImageInfo, error) {
	args := filters.NewArgs()
	for k, v := range FilterLabels() {
		args.Add("label", k+"="+v)
	}

	summaries, err := api.ImageList(ctx, image.ListOptions{Filters: args})
	if err != nil {
		return nil, errors.Wrap(err, "list images")
	}

	infos := make([]model.ImageInfo, 0, len(summaries))
	for _, s := range summaries {
		info, err := ParseLabels(s.Labels)
		if err != nil {
			log.WithField("image", s.ID).WithError(err).Warn("skipping image with invalid labels")
			continue
		}
		info.ImageID = s.ID
		info.Tags = s.RepoTags
		info.Size = s.Size
		infos = append(infos, *info)
	}

	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})
	return infos, nil
}

// ContextArchive packs dir into an in-memory tar stream, skipping entries
// matched by dir/.dockerignore and replacing the top-level Dockerfile with
// rendered.
func ContextArchive(dir string, rendered []byte) (*bytes.Buffer, error) {
	patterns, err := readIgnoreFile(filepath.Join(dir, ignoreFileName))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	err = filepath.Walk(dir, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if rel == dockerfileName || ignored(rel, patterns) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() && !info.IsDir() {
			return nil
		}
		return writeTarEntry(tw, p, rel, info)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walk %s", dir)
	}

	if err := tw.WriteHeader(&tar.Header{
		Name:     dockerfileName,
		Mode:     0o644,
		Size:     int64(len(rendered)),
		ModTime:  time.Now(),
		Typeflag: tar.TypeReg,
	}); err != nil {
		return nil, err
	}
	if _, err := tw.Write(rendered); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

// writeTarEntry adds one file or directory header, copying file content.
func writeTarEntry(tw *tar.Writer, p, rel string, info os.FileInfo) error {
	h, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	h.Name = rel
	if info.IsDir() {
		h.Name += "/"
	}
	if err := tw.WriteHeader(h); err != nil {
		return err
	}
	if info.IsDir() {
		return nil
	}

	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	_, err = io.Copy(tw, f)
	return err
}

// readIgnoreFile returns the patterns in an ignore file. A missing file
// yields no patterns. Blank lines and "#" comments are skipped.
func readIgnoreFile(p string) ([]string, error) {
	f, err := os.Open(p)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var patterns []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, strings.TrimPrefix(path.Clean(line), "/"))
	}
	return patterns, sc.Err()
}

// ignored reports whether rel or any of its parent directories matches a
// pattern. Patterns are anchored at the context root. Only path.Match
// globs are supported; negation and "**" are not.
func ignored(rel string, patterns []string) bool {
	for _, pattern := range patterns {
		for candidate := rel; candidate != "."; candidate = path.Dir(candidate) {
			if ok, _ := path.Match(pattern, candidate); ok {
				return true
			}
		}
	}
	return false
}
