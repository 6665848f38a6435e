package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"golang.org/x/time/rate"

	"github.com/vladbelms/neural-critic/internal/critic"
)

// Info is the embedding sidecar's self-description.
type Info struct {
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	Ready      bool   `json:"ready"`
}

type embedRequest struct {
	SampleRate int       `json:"sample_rate"`
	Samples    []float64 `json:"samples"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// HTTPProvider is a Provider backed by an embedding sidecar service (a CLAP
// server in the default deployment). Requests are rate limited so a large
// corpus extraction does not overwhelm the model host, and 5xx responses are
// retried.
type HTTPProvider struct {
	base    string
	client  *http.Client
	limiter *rate.Limiter

	info Info // populated by EnsureReady
}

func NewHTTPProvider(baseURL string, requestsPerSecond float64) *HTTPProvider {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 4
	}
	return &HTTPProvider{
		base:    strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 120 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

// statusError carries an HTTP status so retry logic can tell transient server
// failures from rejected input.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("embedder returned %d: %s", e.status, e.body)
}

// EnsureReady polls the sidecar until it reports a loaded checkpoint. The
// sidecar may still be downloading model weights on startup, so this retries
// for a while before giving up with critic.ErrModelUnavailable. It must be
// called once before Embed or Dimensions.
func (p *HTTPProvider) EnsureReady(ctx context.Context) error {
	var info Info
	err := retry.Do(
		func() error {
			got, err := p.fetchInfo(ctx)
			if err != nil {
				return err
			}
			if !got.Ready {
				return fmt.Errorf("embedder %q not ready", got.Model)
			}
			info = got
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(10),
		retry.Delay(2*time.Second),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("waiting for embedder at %s: %v: %w", p.base, err, critic.ErrModelUnavailable)
	}
	if info.Dimensions <= 0 {
		return fmt.Errorf("embedder reported dimensionality %d: %w", info.Dimensions, critic.ErrModelUnavailable)
	}
	p.info = info
	return nil
}

func (p *HTTPProvider) ModelID() string { return p.info.Model }

func (p *HTTPProvider) Dimensions(ctx context.Context) (int, error) {
	if p.info.Dimensions <= 0 {
		return 0, fmt.Errorf("provider not initialized, call EnsureReady first: %w", critic.ErrModelUnavailable)
	}
	return p.info.Dimensions, nil
}

func (p *HTTPProvider) Embed(ctx context.Context, w critic.Waveform) ([]float64, error) {
	if p.info.Dimensions <= 0 {
		return nil, fmt.Errorf("provider not initialized, call EnsureReady first: %w", critic.ErrModelUnavailable)
	}
	if len(w.Samples) == 0 || w.SampleRate <= 0 {
		return nil, fmt.Errorf("empty waveform: %w", critic.ErrUnsupportedAudio)
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(embedRequest{SampleRate: w.SampleRate, Samples: w.Samples})
	if err != nil {
		return nil, fmt.Errorf("encoding embed request: %w", err)
	}

	var out embedResponse
	err = retry.Do(
		func() error {
			return p.post(ctx, "/embed", body, &out)
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			if serr, ok := err.(*statusError); ok {
				return serr.status/100 == 5
			}
			return false
		}),
	)
	if err != nil {
		if serr, ok := err.(*statusError); ok && serr.status/100 == 4 {
			return nil, fmt.Errorf("%v: %w", serr, critic.ErrUnsupportedAudio)
		}
		return nil, fmt.Errorf("embed request: %w", err)
	}

	if len(out.Embedding) != p.info.Dimensions {
		return nil, fmt.Errorf("embedder returned %d values, expected %d: %w",
			len(out.Embedding), p.info.Dimensions, critic.ErrDimensionMismatch)
	}
	return out.Embedding, nil
}

func (p *HTTPProvider) fetchInfo(ctx context.Context) (Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.base+"/info", nil)
	if err != nil {
		return Info{}, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return Info{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Info{}, &statusError{status: resp.StatusCode, body: string(body)}
	}

	var info Info
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return Info{}, fmt.Errorf("decoding info: %w", err)
	}
	return info, nil
}

func (p *HTTPProvider) post(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{status: resp.StatusCode, body: string(b)}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
