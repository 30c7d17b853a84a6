package kyt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
)

// LabelService resolves known labels (exchange, mixer, sanctioned, ...) for
// an address. Implementations must honor ctx deadlines.
type LabelService interface {
	GetLabels(ctx context.Context, address string) ([]string, error)
	BulkGetLabels(ctx context.Context, addresses []string) (map[string][]string, error)
}

// RiskScorer returns the per-address score produced by the external ML
// service. The pipeline only consumes this narrow contract.
type RiskScorer interface {
	CalculateRiskScore(ctx context.Context, address string) (model.AddressRisk, error)
}

// HTTPLabelService talks to the label service over plain JSON HTTP.
type HTTPLabelService struct {
	base string
	hc   *http.Client
}

func NewHTTPLabelService(base string, timeout time.Duration) *HTTPLabelService {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPLabelService{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: timeout},
	}
}

func (s *HTTPLabelService) GetLabels(ctx context.Context, address string) ([]string, error) {
	var out struct {
		Labels []string `json:"labels"`
	}
	u := s.base + "/labels/" + url.PathEscape(address)
	if err := getJSON(ctx, s.hc, u, &out); err != nil {
		return nil, err
	}
	return out.Labels, nil
}

func (s *HTTPLabelService) BulkGetLabels(ctx context.Context, addresses []string) (map[string][]string, error) {
	req := struct {
		Addresses []string `json:"addresses"`
	}{Addresses: addresses}
	var out struct {
		Labels map[string][]string `json:"labels"`
	}
	if err := postJSON(ctx, s.hc, s.base+"/labels/bulk", req, &out); err != nil {
		return nil, err
	}
	return out.Labels, nil
}

// HTTPRiskScorer talks to the risk scorer over plain JSON HTTP.
type HTTPRiskScorer struct {
	base string
	hc   *http.Client
}

func NewHTTPRiskScorer(base string, timeout time.Duration) *HTTPRiskScorer {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPRiskScorer{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: timeout},
	}
}

func (s *HTTPRiskScorer) CalculateRiskScore(ctx context.Context, address string) (model.AddressRisk, error) {
	var out model.AddressRisk
	u := s.base + "/score/" + url.PathEscape(address)
	if err := getJSON(ctx, s.hc, u, &out); err != nil {
		return model.AddressRisk{}, err
	}
	if out.Address == "" {
		out.Address = address
	}
	return out, nil
}

func getJSON(ctx context.Context, hc *http.Client, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return doJSON(hc, req, out)
}

func postJSON(ctx context.Context, hc *http.Client, u string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return doJSON(hc, req, out)
}

func doJSON(hc *http.Client, req *http.Request, out any) error {
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("http %d from %s: %s", resp.StatusCode, req.URL.Path, bytes.TrimSpace(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
