package artifactstore

import (
	"context"
	"fmt"
	"strings"
)

// IsObjectURI reports whether root names an object-storage location.
func IsObjectURI(root string) bool {
	return strings.HasPrefix(root, "gs://")
}

// ParseObjectURI splits a gs://bucket/prefix root into bucket and prefix.
func ParseObjectURI(root string) (bucket, prefix string, err error) {
	trimmed := strings.TrimPrefix(root, "gs://")
	if trimmed == "" {
		return "", "", fmt.Errorf("invalid object storage uri %q: missing bucket", root)
	}
	parts := strings.SplitN(trimmed, "/", 2)
	bucket = parts[0]
	if bucket == "" {
		return "", "", fmt.Errorf("invalid object storage uri %q: missing bucket", root)
	}
	if len(parts) == 2 {
		prefix = strings.Trim(parts[1], "/")
	}
	return bucket, prefix, nil
}

// Build dispatches on the root's scheme: file://, a plain absolute path, or
// gs://bucket/prefix, returning the matching Store implementation.
func Build(ctx context.Context, root string) (Store, error) {
	if IsObjectURI(root) {
		bucket, prefix, err := ParseObjectURI(root)
		if err != nil {
			return nil, err
		}
		return NewObjectStore(ctx, bucket, prefix)
	}
	local := strings.TrimPrefix(root, "file://")
	return NewLocalStore(local)
}
