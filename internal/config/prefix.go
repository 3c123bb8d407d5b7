package config

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidLocation = errors.New("invalid location: expected s3://bucket[/prefix]")

const locationScheme = "s3://"

// Location is a bucket plus an optional key prefix.
type Location struct {
	Bucket string
	Prefix string
}

// ParseLocation parses s3://bucket/prefix. Everything after the bucket is
// taken literally as the key prefix, apart from outer slashes: characters
// such as '#', '?' or '%' are valid in object keys and are not decoded.
// Relative segments are rejected since object stores do not resolve them.
func ParseLocation(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Location{}, fmt.Errorf("%w: empty", ErrInvalidLocation)
	}
	if !strings.HasPrefix(raw, locationScheme) {
		return Location{}, fmt.Errorf("%w: unsupported scheme in %q", ErrInvalidLocation, raw)
	}
	bucket, prefix, _ := strings.Cut(strings.TrimPrefix(raw, locationScheme), "/")
	if bucket == "" {
		return Location{}, fmt.Errorf("%w: missing bucket in %q", ErrInvalidLocation, raw)
	}
	if strings.ContainsAny(bucket, "?#% \\") {
		return Location{}, fmt.Errorf("%w: invalid bucket name %q", ErrInvalidLocation, bucket)
	}
	prefix = strings.Trim(prefix, "/")
	for _, seg := range strings.Split(prefix, "/") {
		if seg == ".." || seg == "." {
			return Location{}, fmt.Errorf("%w: relative segment %q in %q", ErrInvalidLocation, seg, raw)
		}
	}
	return Location{Bucket: bucket, Prefix: prefix}, nil
}

// ListPrefix is the prefix used to list the objects below the location.
func (l Location) ListPrefix() string {
	if l.Prefix == "" {
		return ""
	}
	return l.Prefix + "/"
}

// Key joins name below the location prefix.
func (l Location) Key(name string) string {
	name = strings.Trim(name, "/")
	if l.Prefix == "" {
		return name
	}
	return l.Prefix + "/" + name
}

func (l Location) String() string {
	if l.Prefix == "" {
		return locationScheme + l.Bucket
	}
	return locationScheme + l.Bucket + "/" + l.Prefix
}
