package storage

import (
	"fmt"
	"strings"

	"github.com/jittakal/edgeshuffle/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Router = (*DefaultRouter)(nil)

// Layout directory names. A transposed export groups edges by destination.
const (
	LayoutMajorSrc = "major-src"
	LayoutMajorDst = "major-dst"
)

// DefaultRouter implements Hive-style partitioning for storage paths.
type DefaultRouter struct {
	protocol string
	bucket   string
	basePath string
}

// NewRouter creates a new storage router.
// bucket may be empty for the local filesystem.
func NewRouter(protocol, bucket, basePath string) *DefaultRouter {
	return &DefaultRouter{
		protocol: protocol,
		bucket:   strings.Trim(bucket, "/"),
		basePath: strings.Trim(basePath, "/"),
	}
}

// Route returns the storage directory for a device partition.
// Format: protocol://bucket/basePath/graph/major-src|major-dst/rank=N/
func (r *DefaultRouter) Route(graph string, rank int, transposed bool) string {
	layout := LayoutMajorSrc
	if transposed {
		layout = LayoutMajorDst
	}

	segments := make([]string, 0, 5)
	for _, s := range []string{r.bucket, r.basePath, graph} {
		if s != "" {
			segments = append(segments, s)
		}
	}
	segments = append(segments, layout, fmt.Sprintf("rank=%d", rank))

	return fmt.Sprintf("%s://%s/", r.protocol, strings.Join(segments, "/"))
}

// Protocol returns the URL scheme used in routes for a backend.
func Protocol(backend string) string {
	switch backend {
	case BackendS3:
		return "s3"
	case BackendGCS:
		return "gs"
	case BackendAzure:
		return "wasbs"
	default:
		return "file"
	}
}
