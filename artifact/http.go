package artifact

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Request is the body accepted by the artifact persistence endpoint.
// At least one of Content and RawContent must be set.
type Request struct {
	Content    any     `json:"content,omitempty"`
	RawContent *string `json:"rawContent,omitempty"`
	Filename   string  `json:"filename,omitempty"`
	Lang       string  `json:"lang,omitempty"`
}

// Response is the success body of the persistence endpoint.
type Response struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Paths   []string `json:"paths"`
}

// ErrorResponse is the failure body of the persistence endpoint.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HTTPStore posts artifacts to a deployed persistence endpoint.
type HTTPStore struct {
	URL   string
	Token string
	http  *resty.Client
}

// NewHTTPStore returns a store posting to url. An empty token sends no
// Authorization header.
func NewHTTPStore(url, token string, timeout time.Duration) *HTTPStore {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPStore{
		URL:   url,
		Token: token,
		http:  resty.New().SetTimeout(timeout),
	}
}

func (s *HTTPStore) PutArtifact(ctx context.Context, name string, content any) (Receipt, error) {
	if err := ValidName(name); err != nil {
		return Receipt{}, err
	}
	return s.post(ctx, Request{Content: content, Filename: name})
}

// PutRaw sends text as rawContent. The endpoint derives the raw file name
// from filename, and raw names map to themselves.
func (s *HTTPStore) PutRaw(ctx context.Context, name, text string) (Receipt, error) {
	if err := ValidName(name); err != nil {
		return Receipt{}, err
	}
	return s.post(ctx, Request{RawContent: &text, Filename: name})
}

func (s *HTTPStore) post(ctx context.Context, body Request) (Receipt, error) {
	var (
		resp    Response
		errResp ErrorResponse
	)
	r := s.http.R().SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&resp).
		SetError(&errResp)
	if s.Token != "" {
		r.SetAuthToken(s.Token)
	}
	rr, err := r.Post(s.URL)
	if err != nil {
		return Receipt{}, fmt.Errorf("posting %s: %w", body.Filename, err)
	}
	if rr.IsError() {
		msg := errResp.Error
		if msg == "" {
			msg = strings.TrimSpace(rr.String())
		}
		return Receipt{}, fmt.Errorf("posting %s: %s: %s", body.Filename, rr.Status(), msg)
	}
	if !resp.Success {
		return Receipt{}, fmt.Errorf("posting %s: endpoint reported failure: %s", body.Filename, resp.Message)
	}
	path := strings.TrimRight(s.URL, "/") + "#" + body.Filename
	if len(resp.Paths) > 0 {
		path = resp.Paths[len(resp.Paths)-1]
	}
	return Receipt{Path: path}, nil
}
