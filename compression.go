package gwassumstats

import (
	"compress/bzip2"
	"compress/gzip"
	"compress/zlib"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
	"github.com/krolaw/zipstream"
	"github.com/xi2/xz"
)

// Raw summary statistics arrive from many labs and may be compressed with
// whatever tool the submitter had on hand. Rather than asking the legend to
// declare a compression type, we sniff the leading bytes.
type DataType byte

const (
	DataTypeInvalid DataType = iota
	DataTypeNoCompression
	DataTypeGzip
	DataTypeZip
	DataTypeXZ
	DataTypeZ
	DataTypeBZip2
)

// Byte code signatures from https://stackoverflow.com/a/19127748/199475
var byteCodeSigs = map[DataType][]byte{
	DataTypeGzip:  {0x1f, 0x8b, 0x08},
	DataTypeZip:   {0x50, 0x4b, 0x03, 0x04},
	DataTypeXZ:    {0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00},
	DataTypeZ:     {0x1f, 0x9d},
	DataTypeBZip2: {0x42, 0x5a, 0x68},
}

// DetectDataType reads (and consumes) the first few bytes of r and matches
// them against the known compression signatures.
func DetectDataType(r io.Reader) (DataType, error) {
	buff := make([]byte, 6)
	if _, err := io.ReadAtLeast(r, buff, 3); err != nil {
		return DataTypeInvalid, err
	}

Outer:
	for dt, sig := range byteCodeSigs {
		for position := range sig {
			if buff[position] != sig[position] {
				continue Outer
			}
		}
		return dt, nil
	}

	return DataTypeNoCompression, nil
}

// MaybeDecompressReadSeeker sniffs the compression type of rs and returns a
// reader that yields the decompressed stream. rs is rewound before the
// decompressing reader is attached, so the caller must not have consumed any
// bytes yet.
func MaybeDecompressReadSeeker(rs ReadSeekCloser) (io.ReadCloser, error) {
	dt, err := DetectDataType(rs)
	if err != nil {
		return nil, pfx.Err(err)
	}

	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, pfx.Err(err)
	}

	switch dt {
	case DataTypeGzip:
		return gzip.NewReader(rs)
	case DataTypeZip:
		return &nopReadCloser{zipstream.NewReader(rs)}, nil
	case DataTypeBZip2:
		return &nopReadCloser{bzip2.NewReader(rs)}, nil
	case DataTypeXZ:
		reader, err := xz.NewReader(rs, 0)
		if err != nil {
			return nil, err
		}
		return &nopReadCloser{reader}, nil
	case DataTypeZ:
		return zlib.NewReader(rs)
	}

	// No signature matched; assume the stream is uncompressed.
	return rs, nil
}

// OpenMaybeCompressed opens a local path or (when client is non-nil) a gs://
// URL and transparently decompresses it. The caller should close both
// returned closers, decompressor first.
func OpenMaybeCompressed(path string, client *storage.Client) (io.ReadCloser, io.Closer, error) {
	f, err := MaybeOpenSeekerFromGoogleStorage(ExpandHome(path), client)
	if err != nil {
		return nil, nil, pfx.Err(err)
	}

	r, err := MaybeDecompressReadSeeker(f)
	if err != nil {
		f.Close()
		return nil, nil, pfx.Err(err)
	}

	return r, f, nil
}

// OpenLocal is OpenMaybeCompressed for callers that never see gs:// paths.
func OpenLocal(path string) (io.ReadCloser, io.Closer, error) {
	return OpenMaybeCompressed(path, nil)
}

// nopReadCloser upgrades readers that don't need to be closed.
type nopReadCloser struct {
	io.Reader
}

func (c *nopReadCloser) Close() error {
	return nil
}

var _ io.ReadCloser = &nopReadCloser{}

// Exists reports whether a local path exists and is a regular file.
func Exists(path string) bool {
	fi, err := os.Stat(ExpandHome(path))

	return err == nil && fi.Mode().IsRegular()
}
