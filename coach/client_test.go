package coach

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"mirror/encoder"
)

func TestAnalyze(t *testing.T) {
	wav := encoder.EncodeWAV([]int16{0, 1, -1, 100}, 16000)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/coach/analyze_audio" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("mode"); got != "colloquio" {
			t.Errorf("mode = %q", got)
		}
		if got := r.FormValue("show_alternatives"); got != "true" {
			t.Errorf("show_alternatives = %q", got)
		}
		if got := r.FormValue("live_beta"); got != "false" {
			t.Errorf("live_beta = %q", got)
		}

		file, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		if hdr.Filename != "audio.wav" {
			t.Errorf("filename = %q", hdr.Filename)
		}
		if ct := hdr.Header.Get("Content-Type"); ct != "audio/wav" {
			t.Errorf("file content type = %q", ct)
		}
		buf := make([]byte, len(wav)+1)
		n, _ := file.Read(buf)
		if n != len(wav) {
			t.Errorf("file size = %d, want %d", n, len(wav))
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"phrase": "Capisco.",
			"score": 7.5,
			"indicators": {"clarity": 8, "centeredness": 6, "risk": 2},
			"meta": {"transcript": "ho capito bene"},
			"active_silence": {"enabled": true, "phrase": "..."},
			"alternatives": ["Va bene.", "Continua."]
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	res, err := c.Analyze(context.Background(), wav, Options{
		Mode:             "colloquio",
		ShowAlternatives: true,
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	a := res.Analysis
	if a.Phrase != "Capisco." {
		t.Errorf("Phrase = %q", a.Phrase)
	}
	if a.Score != 7.5 {
		t.Errorf("Score = %v", a.Score)
	}
	if a.Indicators.Clarity != 8 || a.Indicators.Centeredness != 6 || a.Indicators.Risk != 2 {
		t.Errorf("Indicators = %+v", a.Indicators)
	}
	if a.Meta.Transcript != "ho capito bene" {
		t.Errorf("Transcript = %q", a.Meta.Transcript)
	}
	if !a.ActiveSilence.Enabled {
		t.Error("ActiveSilence.Enabled = false")
	}
	if len(a.Alternatives) != 2 {
		t.Errorf("Alternatives = %v", a.Alternatives)
	}
	if res.Metrics == nil {
		t.Error("Metrics = nil")
	}
}

func TestAnalyzeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.Analyze(context.Background(), nil, Options{Mode: "x"}); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestAnalyzeTransportError(t *testing.T) {
	c := NewClient("http://127.0.0.1:1") // nothing listens here
	if _, err := c.Analyze(context.Background(), nil, Options{Mode: "x"}); err == nil {
		t.Error("expected transport error")
	}
}

func TestAnalyzeBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.Analyze(context.Background(), nil, Options{Mode: "x"}); err == nil {
		t.Error("expected parse error")
	}
}
