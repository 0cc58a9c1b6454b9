package pakd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/pakctl/internal/foundation"
	"git.home.luguber.info/inful/pakctl/internal/logfields"
	"git.home.luguber.info/inful/pakctl/internal/observability"
)

// Error kinds the daemon reports in its error envelope. Kind strings are
// mapped to typed outcomes here, at the transport boundary, and never
// compared anywhere else.
const (
	errKindNotInstalled = "not-installed"
	errKindNotFound     = "not-found"
)

// apiResponse is the daemon's JSON envelope. Synchronous requests carry
// Result; asynchronous requests carry the id of the spawned change.
type apiResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Change string          `json:"change,omitempty"`
	Error  *apiError       `json:"error,omitempty"`
}

type apiError struct {
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

// HTTPClient talks to the daemon's REST API, normally over its unix socket.
// It implements both Client and ChangeStreamer; the event stream uses the
// daemon's SSE endpoint.
type HTTPClient struct {
	base string
	http *http.Client
}

var _ Client = (*HTTPClient)(nil)
var _ ChangeStreamer = (*HTTPClient)(nil)

// NewHTTPClient creates a client dialing the daemon's unix socket.
func NewHTTPClient(socket string) *HTTPClient {
	return &HTTPClient{
		base: "http://localhost",
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socket)
				},
			},
		},
	}
}

// NewHTTPClientURL creates a client against an http base URL. Used by tests
// and by deployments exposing the daemon over TCP.
func NewHTTPClientURL(base string) *HTTPClient {
	return &HTTPClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{},
	}
}

// do issues one request/response pair against the daemon. Transport and
// protocol failures come back as DaemonError; a daemon error envelope is
// returned as-is for the caller to map by kind.
func (c *HTTPClient) do(ctx context.Context, verb, method, path string, body any) (*apiResponse, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &DaemonError{Verb: verb, Message: "encode request", Cause: err}
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reqBody)
	if err != nil {
		return nil, &DaemonError{Verb: verb, Message: "build request", Cause: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-Id", requestID)

	observability.DebugContext(observability.WithRequestID(ctx, requestID),
		"Daemon request", slog.String("verb", verb), slog.String("path", path))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &DaemonError{Verb: verb, Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, &DaemonError{Verb: verb, StatusCode: resp.StatusCode, Message: "decode response", Cause: err}
	}
	if envelope.Error != nil {
		return &envelope, nil
	}
	if resp.StatusCode >= 400 {
		return nil, &DaemonError{Verb: verb, StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return &envelope, nil
}

// LocalInfo implements Client. The daemon's "not installed" condition is
// collapsed into the NotFound lookup case here; it never surfaces as an error.
func (c *HTTPClient) LocalInfo(ctx context.Context, name string) foundation.Lookup[LocalInfo] {
	resp, err := c.do(ctx, "local-info", http.MethodGet, "/v1/packages/"+url.PathEscape(name)+"/local", nil)
	if err != nil {
		return foundation.LookupErr[LocalInfo](err)
	}
	if resp.Error != nil {
		switch resp.Error.Kind {
		case errKindNotInstalled, errKindNotFound:
			return foundation.NotFound[LocalInfo]()
		default:
			return foundation.LookupErr[LocalInfo](&DaemonError{Verb: "local-info", Message: resp.Error.Message})
		}
	}
	var info LocalInfo
	if err := json.Unmarshal(resp.Result, &info); err != nil {
		return foundation.LookupErr[LocalInfo](&DaemonError{Verb: "local-info", Message: "decode result", Cause: err})
	}
	return foundation.Found(info)
}

// CatalogInfo implements Client.
func (c *HTTPClient) CatalogInfo(ctx context.Context, name string) (CatalogInfo, error) {
	resp, err := c.do(ctx, "catalog-info", http.MethodGet, "/v1/packages/"+url.PathEscape(name)+"/catalog", nil)
	if err != nil {
		return CatalogInfo{}, err
	}
	if resp.Error != nil {
		if resp.Error.Kind == errKindNotFound {
			return CatalogInfo{}, &NotFoundError{Name: name}
		}
		return CatalogInfo{}, &DaemonError{Verb: "catalog-info", Message: resp.Error.Message}
	}
	var info CatalogInfo
	if err := json.Unmarshal(resp.Result, &info); err != nil {
		return CatalogInfo{}, &DaemonError{Verb: "catalog-info", Message: "decode result", Cause: err}
	}
	return info, nil
}

// Changes implements Client.
func (c *HTTPClient) Changes(ctx context.Context, name string) ([]ChangeSummary, error) {
	resp, err := c.do(ctx, "changes", http.MethodGet, "/v1/changes?package="+url.QueryEscape(name), nil)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, &DaemonError{Verb: "changes", Message: resp.Error.Message}
	}
	var changes []ChangeSummary
	if err := json.Unmarshal(resp.Result, &changes); err != nil {
		return nil, &DaemonError{Verb: "changes", Message: "decode result", Cause: err}
	}
	return changes, nil
}

// packageAction is the body of asynchronous package verbs.
type packageAction struct {
	Action  string `json:"action"`
	Channel string `json:"channel,omitempty"`
	Classic bool   `json:"classic,omitempty"`
}

func (c *HTTPClient) packageOp(ctx context.Context, name string, action packageAction) (string, error) {
	resp, err := c.do(ctx, action.Action, http.MethodPost, "/v1/packages/"+url.PathEscape(name), action)
	if err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", &DaemonError{Verb: action.Action, Message: resp.Error.Message}
	}
	if resp.Change == "" {
		return "", &DaemonError{Verb: action.Action, Message: "daemon returned no change id"}
	}
	return resp.Change, nil
}

// Install implements Client.
func (c *HTTPClient) Install(ctx context.Context, name, channel string, classic bool) (string, error) {
	return c.packageOp(ctx, name, packageAction{Action: "install", Channel: channel, Classic: classic})
}

// Refresh implements Client.
func (c *HTTPClient) Refresh(ctx context.Context, name, channel string, classic bool) (string, error) {
	return c.packageOp(ctx, name, packageAction{Action: "refresh", Channel: channel, Classic: classic})
}

// Remove implements Client.
func (c *HTTPClient) Remove(ctx context.Context, name string) (string, error) {
	return c.packageOp(ctx, name, packageAction{Action: "remove"})
}

// Abort implements Client. The daemon answers with the id of the abort
// change that unwinds the target.
func (c *HTTPClient) Abort(ctx context.Context, changeID string) (string, error) {
	resp, err := c.do(ctx, "abort", http.MethodPost, "/v1/changes/"+url.PathEscape(changeID),
		map[string]string{"action": "abort"})
	if err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", &DaemonError{Verb: "abort", Message: resp.Error.Message}
	}
	if resp.Change == "" {
		return "", &DaemonError{Verb: "abort", Message: "daemon returned no abort change id"}
	}
	return resp.Change, nil
}

// Installed implements Client.
func (c *HTTPClient) Installed(ctx context.Context) ([]LocalInfo, error) {
	resp, err := c.do(ctx, "installed", http.MethodGet, "/v1/packages?select=installed", nil)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, &DaemonError{Verb: "installed", Message: resp.Error.Message}
	}
	var infos []LocalInfo
	if err := json.Unmarshal(resp.Result, &infos); err != nil {
		return nil, &DaemonError{Verb: "installed", Message: "decode result", Cause: err}
	}
	return infos, nil
}

// Stream implements ChangeStreamer over the daemon's SSE endpoint. The
// returned channel closes after the terminal update, or when ctx is
// canceled, which also tears down the HTTP response.
func (c *HTTPClient) Stream(ctx context.Context, changeID string) (<-chan ChangeUpdate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.base+"/v1/changes/"+url.PathEscape(changeID)+"/events", nil)
	if err != nil {
		return nil, &DaemonError{Verb: "watch", Message: "build request", Cause: err}
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &DaemonError{Verb: "watch", Message: "subscribe failed", Cause: err}
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, &DaemonError{Verb: "watch", StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	out := make(chan ChangeUpdate)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var update ChangeUpdate
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &update); err != nil {
				observability.WarnContext(ctx, "Dropping malformed change event", logfields.Error(err))
				continue
			}
			if update.ID == "" {
				update.ID = changeID
			}
			select {
			case out <- update:
			case <-ctx.Done():
				return
			}
			if update.Terminal() {
				return
			}
		}
	}()
	return out, nil
}
