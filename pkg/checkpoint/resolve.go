package checkpoint

import (
	"context"
	"fmt"
	"strings"
)

// ResolveSyncer turns an announced storage-location string into the
// Syncer that reads it. It recognizes "file://<dir>" and
// "s3://<bucket>/<region>[/<folder>]", the two formats LocalSyncer and
// S3Syncer produce from AnnouncementLocation. Local locations are
// rejected unless allowLocal is set, since a remote relayer trusting a
// validator-supplied local path is a misconfiguration outside of local
// development and testing.
func ResolveSyncer(ctx context.Context, location string, allowLocal bool) (Syncer, error) {
	switch {
	case strings.HasPrefix(location, "file://"):
		if !allowLocal {
			return nil, fmt.Errorf("checkpoint: local checkpoint syncers are disabled: %s", location)
		}
		return NewLocalSyncer(strings.TrimPrefix(location, "file://"))

	case strings.HasPrefix(location, "s3://"):
		parts := strings.SplitN(strings.TrimPrefix(location, "s3://"), "/", 3)
		if len(parts) < 2 {
			return nil, fmt.Errorf("checkpoint: malformed s3 location %q", location)
		}
		bucket, region := parts[0], parts[1]
		folder := ""
		if len(parts) == 3 {
			folder = parts[2]
		}
		return NewS3Syncer(ctx, bucket, region, folder)

	default:
		return nil, fmt.Errorf("checkpoint: unrecognized storage location %q", location)
	}
}
