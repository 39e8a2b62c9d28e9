package source

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/kamilpajak/deoptviewer/internal/commonroot"
	"github.com/kamilpajak/deoptviewer/pkg/models"
)

func (l *Locator) resolveRemote(ctx context.Context, id, root string) (models.Resolution, error) {
	res := models.Resolution{SrcPath: id, RelativePath: commonroot.Relative(id, root)}

	src, err := l.fetch(ctx, id)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	res.Src = src
	return res, nil
}

// fetch performs a plain GET. Any non-2xx status is an error.
func (l *Locator) fetch(ctx context.Context, url string) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("unexpected status: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}

	return toText(body), nil
}
