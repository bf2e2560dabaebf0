// Package coach talks to the voice-coach analysis service: one multipart
// upload of a WAV utterance in, one structured judgement out.
package coach

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
)

const analyzePath = "/api/coach/analyze_audio"

type Indicators struct {
	Clarity      float64 `json:"clarity"`
	Centeredness float64 `json:"centeredness"`
	Risk         float64 `json:"risk"`
}

type ActiveSilence struct {
	Enabled bool   `json:"enabled"`
	Phrase  string `json:"phrase"`
}

type Meta struct {
	Transcript string `json:"transcript"`
}

// Analysis is the structured result for one utterance.
type Analysis struct {
	Phrase        string        `json:"phrase"`
	Score         float64       `json:"score"`
	Indicators    Indicators    `json:"indicators"`
	Meta          Meta          `json:"meta"`
	ActiveSilence ActiveSilence `json:"active_silence"`
	Alternatives  []string      `json:"alternatives"`
}

// Result pairs the analysis with the network timings of its upload.
type Result struct {
	Analysis *Analysis
	Metrics  *NetworkMetrics
}

type Options struct {
	Mode             string
	ShowAlternatives bool
	LiveBeta         bool
}

type Client struct {
	baseURL string
	http    *tracedClient
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newTracedClient(),
	}
}

// Warm pre-opens a connection to the analysis endpoint.
func (c *Client) Warm() {
	c.http.Warm(c.baseURL + analyzePath)
}

// Analyze uploads one WAV-encoded utterance. Transport failures and non-2xx
// responses are reported uniformly as an error.
func (c *Client) Analyze(ctx context.Context, wav []byte, opts Options) (*Result, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="audio.wav"`)
	header.Set("Content-Type", "audio/wav")
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(wav); err != nil {
		return nil, err
	}

	writer.WriteField("mode", opts.Mode)
	writer.WriteField("show_alternatives", strconv.FormatBool(opts.ShowAlternatives))
	writer.WriteField("live_beta", strconv.FormatBool(opts.LiveBeta))
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+analyzePath, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analyze request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("analyze API error %d: %s", resp.StatusCode, string(resp.Body))
	}

	var analysis Analysis
	if err := json.Unmarshal(resp.Body, &analysis); err != nil {
		return nil, fmt.Errorf("analyze response parse error: %w", err)
	}

	return &Result{Analysis: &analysis, Metrics: resp.Metrics}, nil
}
