package cache

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// compressionMinRatio is the maximum compressed/original size ratio for
// compression to be worth keeping. Payloads that barely shrink are stored
// uncompressed to avoid paying inflate cost on every read.
const compressionMinRatio = 0.9

// maybeCompress gzips data when it exceeds the threshold and the result is
// materially smaller. It reports whether the returned bytes are compressed.
func maybeCompress(data []byte, threshold int) ([]byte, bool, error) {
	if threshold <= 0 || len(data) < threshold {
		return data, false, nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, false, fmt.Errorf("compress cache value: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, false, fmt.Errorf("compress cache value: %w", err)
	}

	if float64(buf.Len()) > float64(len(data))*compressionMinRatio {
		return data, false, nil
	}
	return buf.Bytes(), true, nil
}

// decompress inflates a gzip-compressed cache value.
func decompress(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decompress cache value: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress cache value: %w", err)
	}
	return out, nil
}
