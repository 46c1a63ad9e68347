package transport

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestNew_DefaultTransport(t *testing.T) {
	rt := New(Options{Timeout: 5 * time.Second})
	ht, ok := rt.(*http.Transport)
	if !ok {
		t.Fatalf("expected *http.Transport, got %T", rt)
	}
	if ht.MaxIdleConnsPerHost != 16 {
		t.Errorf("MaxIdleConnsPerHost = %d, want 16", ht.MaxIdleConnsPerHost)
	}
	if ht.TLSHandshakeTimeout != 5*time.Second {
		t.Errorf("TLSHandshakeTimeout = %v", ht.TLSHandshakeTimeout)
	}
}

func TestNew_ChromeTransport(t *testing.T) {
	rt := New(Options{ChromeTLS: true})
	if _, ok := rt.(*chromeTransport); !ok {
		t.Errorf("expected *chromeTransport, got %T", rt)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestChromeTransport_FallsBackOnlyWithoutH2(t *testing.T) {
	var h2Calls, h1Calls int
	ct := &chromeTransport{
		h2: roundTripFunc(func(*http.Request) (*http.Response, error) {
			h2Calls++
			return nil, fmt.Errorf("dial: %w", errNoH2)
		}),
		h1: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			h1Calls++
			body, _ := io.ReadAll(r.Body)
			if string(body) != `{"query":"{}"}` {
				t.Errorf("h1 body = %q", body)
			}
			return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
		}),
	}

	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest("POST", "https://shop.example/api/graphql.json", strings.NewReader(`{"query":"{}"}`))
		resp, err := ct.RoundTrip(req)
		if err != nil || resp.StatusCode != http.StatusOK {
			t.Fatalf("RoundTrip() = %v, %v", resp, err)
		}
	}
	if h2Calls != 1 || h1Calls != 2 {
		t.Errorf("h2 calls = %d, h1 calls = %d; want 1, 2", h2Calls, h1Calls)
	}
}

func TestChromeTransport_NoReplayAfterSend(t *testing.T) {
	sent := errors.New("http2: stream reset")
	ct := &chromeTransport{
		h2: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			io.ReadAll(r.Body)
			return nil, sent
		}),
		h1: roundTripFunc(func(*http.Request) (*http.Response, error) {
			t.Error("a request that may have reached the server must not be replayed")
			return nil, nil
		}),
	}

	req, _ := http.NewRequest("POST", "https://shop.example/api/graphql.json", strings.NewReader(`{"query":"mutation"}`))
	if _, err := ct.RoundTrip(req); !errors.Is(err, sent) {
		t.Errorf("RoundTrip() error = %v, want %v", err, sent)
	}
}
