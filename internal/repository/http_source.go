package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"RangeBreak/internal/domain/models"
	domrepo "RangeBreak/internal/domain/repository"
	pkghttp "RangeBreak/pkg/http"
)

// HTTPBarSource fetches daily bars from a market-data service:
//
//	GET {base}/v1/bars/{code}  ->  {"code": "...", "bars": [{date, open, high, low, close}, ...]}
type HTTPBarSource struct {
	client  *pkghttp.Client
	baseURL string
	token   string
}

var _ domrepo.BarSource = (*HTTPBarSource)(nil)

func NewHTTPBarSource(client *pkghttp.Client, baseURL, token string) *HTTPBarSource {
	return &HTTPBarSource{client: client, baseURL: strings.TrimRight(baseURL, "/"), token: token}
}

type barsResponse struct {
	Code string      `json:"code"`
	Bars []barRecord `json:"bars"`
}

func (s *HTTPBarSource) LoadSeries(ctx context.Context, code string) (*models.Series, error) {
	opts := &pkghttp.RequestOptions{
		Method:  pkghttp.MethodGet,
		URL:     s.baseURL + "/v1/bars/" + url.PathEscape(code),
		Headers: map[string]string{"Accept": "application/json"},
	}
	if s.token != "" {
		opts.Headers["Authorization"] = "Bearer " + s.token
	}

	var resp barsResponse
	if err := s.client.SendAndParse(ctx, opts, &resp); err != nil {
		var se *pkghttp.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%s: %w", code, domrepo.ErrSeriesNotFound)
		}
		return nil, fmt.Errorf("fetch bars %s: %w", code, err)
	}
	if len(resp.Bars) == 0 {
		return nil, fmt.Errorf("%s: %w", code, domrepo.ErrSeriesNotFound)
	}
	return toSeries(code, resp.Bars)
}
