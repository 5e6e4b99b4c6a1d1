package backport

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/hunter-fleet/nm-backport-agent/internal/config"
)

// Fetcher downloads the backport archive and optionally verifies its
// sha256 digest. A verification failure removes the partial file so no
// later step can pick up a corrupted archive.
type Fetcher struct {
	client   *http.Client
	verify   bool
	expected string
}

func NewFetcher(cfg *config.Config) *Fetcher {
	return &Fetcher{
		client:   &http.Client{Timeout: cfg.DownloadTimeout()},
		verify:   cfg.VerifyChecksum,
		expected: cfg.ExpectedChecksum,
	}
}

// Fetch retrieves url into dest. The digest is computed while streaming so
// verification does not require a second read of the file.
func (f *Fetcher) Fetch(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building download request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("downloading archive: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("archive download failed with status %d", resp.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("creating archive file: %w", err)
	}

	hasher := sha256.New()
	_, copyErr := io.Copy(io.MultiWriter(out, hasher), resp.Body)
	closeErr := out.Close()
	if copyErr != nil {
		os.Remove(dest)
		return fmt.Errorf("writing archive: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(dest)
		return fmt.Errorf("writing archive: %w", closeErr)
	}

	if f.verify {
		actual := hex.EncodeToString(hasher.Sum(nil))
		if !strings.EqualFold(actual, f.expected) {
			os.Remove(dest)
			return &ChecksumError{Expected: strings.ToLower(f.expected), Actual: actual}
		}
	}

	return nil
}
