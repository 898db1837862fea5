package docker

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/addiskers/webp/internal/dockerfile"
	"github.com/addiskers/webp/internal/model"
)

// Label keys recorded on every image this tool builds. They let
// "image list" find the images and report what each one declares without
// running it.
//
// All keys share the "webp." prefix to avoid collisions with labels set by
// base images or other tools.
const (
	// LabelPrefix is the common prefix for all webp-converter labels.
	LabelPrefix = "webp."

	// LabelManagedBy marks images built by this tool; it is the label
	// filter used for discovery.
	LabelManagedBy = LabelPrefix + "managed-by"

	// LabelVersion is the webp-converter version compiled into the image.
	LabelVersion = LabelPrefix + "version"

	// LabelPort is the listening port the image declares.
	LabelPort = LabelPrefix + "port"

	// LabelEntrypoint is the launch command, space-joined.
	LabelEntrypoint = LabelPrefix + "entrypoint"

	// LabelCreatedAt is the RFC 3339 build timestamp.
	LabelCreatedAt = LabelPrefix + "created-at"
)

// ManagedByValue is the constant value of LabelManagedBy.
const ManagedByValue = "webp-converter"

// BuildLabels returns the labels to apply to an image built from d.
// The timestamp is stored in UTC so it reads the same on every host.
func BuildLabels(d *dockerfile.Descriptor, version string, createdAt time.Time) map[string]string {
	return map[string]string{
		LabelManagedBy:  ManagedByValue,
		LabelVersion:    version,
		LabelPort:       strconv.Itoa(d.Port),
		LabelEntrypoint: strings.Join(d.Command(), " "),
		LabelCreatedAt:  createdAt.UTC().Format(time.RFC3339),
	}
}

// ParseLabels reconstructs image metadata from its labels. It is the
// inverse of BuildLabels. ImageID, Tags and Size are not labels and are
// left for the caller to fill in.
//
// Every missing key is reported in one error, which makes hand-edited or
// half-built images easy to diagnose.
func ParseLabels(labels map[string]string) (*model.ImageInfo, error) {
	required := []string{LabelManagedBy, LabelVersion, LabelPort, LabelEntrypoint, LabelCreatedAt}

	var missing []string
	for _, key := range required {
		if _, ok := labels[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required image labels: %s", strings.Join(missing, ", "))
	}

	if labels[LabelManagedBy] != ManagedByValue {
		return nil, fmt.Errorf("label %s has unexpected value %q (expected %q)",
			LabelManagedBy, labels[LabelManagedBy], ManagedByValue)
	}

	port, err := strconv.Atoi(labels[LabelPort])
	if err != nil {
		return nil, fmt.Errorf("invalid label %s: %w", LabelPort, err)
	}

	createdAt, err := time.Parse(time.RFC3339, labels[LabelCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("invalid label %s: %w", LabelCreatedAt, err)
	}

	return &model.ImageInfo{
		Version:    labels[LabelVersion],
		Port:       port,
		Entrypoint: labels[LabelEntrypoint],
		CreatedAt:  createdAt,
	}, nil
}

// FilterLabels returns the label selector matching managed images.
func FilterLabels() map[string]string {
	return map[string]string{
		LabelManagedBy: ManagedByValue,
	}
}
