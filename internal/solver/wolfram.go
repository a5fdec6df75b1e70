package solver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// DefaultWolframURL is the Full Results API root.
const DefaultWolframURL = "https://api.wolframalpha.com"

// noAnswerText is what the engine wrapper renders when Wolfram has no
// primary result. It carries no Answer line, so parsing yields Unparsable.
const noAnswerText = "Wolfram Alpha wasn't able to answer it"

// ErrEngine indicates Wolfram Alpha could not be reached or reported an
// error for the query.
var ErrEngine = errors.New("wolfram alpha error")

// WolframConfig configures the Wolfram Alpha engine.
type WolframConfig struct {
	AppID   string
	BaseURL string
	Timeout time.Duration
}

// Wolfram queries the Wolfram Alpha Full Results API.
type Wolfram struct {
	cfg  WolframConfig
	http *http.Client
}

// NewWolfram creates a Wolfram Alpha engine.
func NewWolfram(cfg WolframConfig) (*Wolfram, error) {
	if cfg.AppID == "" {
		return nil, fmt.Errorf("wolfram app id is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultWolframURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Wolfram{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}, nil
}

// Query runs input through Wolfram Alpha and renders the result as
//
//	Assumption: <input interpretation>
//	Answer: <primary result>
//
// or noAnswerText when there is no primary result.
func (w *Wolfram) Query(ctx context.Context, input string) (string, error) {
	params := url.Values{
		"input":  {input},
		"appid":  {w.cfg.AppID},
		"output": {"json"},
		"format": {"plaintext"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.cfg.BaseURL+"/v2/query?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := w.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEngine, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", ErrEngine, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrEngine, resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("%w: malformed JSON", ErrEngine)
	}

	return renderResult(gjson.GetBytes(body, "queryresult"))
}

func renderResult(qr gjson.Result) (string, error) {
	if e := qr.Get("error"); e.IsObject() || e.Bool() {
		msg := e.Get("msg").String()
		if msg == "" {
			msg = "query failed"
		}
		return "", fmt.Errorf("%w: %s", ErrEngine, msg)
	}
	if !qr.Get("success").Bool() {
		return noAnswerText, nil
	}

	pods := qr.Get("pods").Array()
	if len(pods) == 0 {
		return noAnswerText, nil
	}

	assumption := podText(pods[0])
	for _, pod := range pods {
		if pod.Get("primary").Bool() || pod.Get("title").String() == "Result" {
			if answer := podText(pod); answer != "" {
				return fmt.Sprintf("Assumption: %s \nAnswer: %s", assumption, answer), nil
			}
		}
	}
	return noAnswerText, nil
}

// podText joins the plaintext of every subpod with newlines.
func podText(pod gjson.Result) string {
	var parts []string
	for _, sp := range pod.Get("subpods.#.plaintext").Array() {
		if s := strings.TrimSpace(sp.String()); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}
