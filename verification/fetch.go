package verification

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxFetchBytes bounds a single image download.
const maxFetchBytes = 20 << 20

// NewHTTPFetch returns a FetchFunc that resolves http(s) URLs and inline
// data URIs, which is how mobile clients reference their evidence photos.
func NewHTTPFetch(timeout time.Duration) FetchFunc {
	client := &http.Client{Timeout: timeout}

	return func(ctx context.Context, ref string) ([]byte, error) {
		if strings.HasPrefix(ref, "data:") {
			return decodeDataURI(ref)
		}
		if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
			return nil, fmt.Errorf("unsupported image reference %q", ref)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
		if err != nil {
			return nil, err
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("image fetch returned status %d", resp.StatusCode)
		}

		return io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	}
}

func decodeDataURI(ref string) ([]byte, error) {
	idx := strings.Index(ref, ",")
	if idx < 0 {
		return nil, fmt.Errorf("malformed data URI")
	}
	return base64.StdEncoding.DecodeString(ref[idx+1:])
}
