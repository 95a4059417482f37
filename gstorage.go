package gwassumstats

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
)

type ReadSeekCloser interface {
	io.Reader
	io.Seeker
	io.Closer
}

// IsGoogleStorage reports whether any of the given paths point at a Google
// Storage object, in which case the caller needs a storage client.
func IsGoogleStorage(paths ...string) bool {
	for _, p := range paths {
		if strings.HasPrefix(p, "gs://") {
			return true
		}
	}

	return false
}

// GSReadSeekCloser decorates a Google Storage object handle with io.Reader,
// io.Seeker and io.Closer. Derived from
// https://github.com/googleapis/google-cloud-go/issues/1124#issuecomment-419070541
type GSReadSeekCloser struct {
	*storage.ObjectHandle
	Context context.Context
	r       *storage.Reader
	offset  int64
}

func (s *GSReadSeekCloser) Read(buf []byte) (int, error) {
	if s.r == nil {
		var err error
		s.r, err = s.NewRangeReader(s.Context, s.offset, -1)
		if err != nil {
			return 0, err
		}
	}

	return s.r.Read(buf)
}

// Seek on a storage object is emulated: the current connection is dropped and
// a new range reader is opened at the requested offset on the next Read.
// Only seeking relative to the start of the object is supported, which is all
// the compression sniffer needs.
func (s *GSReadSeekCloser) Seek(offset int64, whence int) (int64, error) {
	if whence != io.SeekStart {
		return 0, fmt.Errorf("io.Seeker 'whence' value %d is not implemented", whence)
	}

	if s.r != nil {
		s.r.Close()
		s.r = nil
	}
	s.offset = offset

	return s.offset, nil
}

func (s *GSReadSeekCloser) Close() error {
	if s.r != nil {
		return s.r.Close()
	}

	return nil
}

// MaybeOpenSeekerFromGoogleStorage opens path from Google Storage if it is a
// gs:// URL and a client is available, and from local disk otherwise.
func MaybeOpenSeekerFromGoogleStorage(path string, client *storage.Client) (ReadSeekCloser, error) {
	if client != nil && strings.HasPrefix(path, "gs://") {
		pathParts := strings.SplitN(strings.TrimPrefix(path, "gs://"), "/", 2)
		if len(pathParts) != 2 {
			return nil, fmt.Errorf("tried to split your google storage path into 2 parts, but got %d: %v", len(pathParts), pathParts)
		}
		bucketName := pathParts[0]
		pathName := pathParts[1]

		handle := client.Bucket(bucketName).Object(pathName)

		wrappedHandle := &GSReadSeekCloser{
			ObjectHandle: handle,
			Context:      context.Background(),
		}

		// A hard call up front so that a bad path fails here rather than on
		// the first Read.
		if _, err := handle.Attrs(wrappedHandle.Context); err != nil {
			return nil, pfx.Err(fmt.Errorf("%s: %s", path, err))
		}

		return wrappedHandle, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, pfx.Err(err)
	}

	return f, nil
}
