package cloudsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/infogata/socialgata/internal/storage"
)

const (
	nsSettings      = "settings"
	keyDropboxAuth  = "dropboxAuth"
	dropboxAPIBase  = "https://api.dropboxapi.com"
	dropboxContent  = "https://content.dropboxapi.com"
	dropboxSnapshot = "/socialgata/%s.bin"
)

// TokenPair is the OAuth credential set persisted for Dropbox.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// Dropbox stores snapshots in a Dropbox app folder, one file per address.
type Dropbox struct {
	client   *http.Client
	settings *storage.Store
	clientID string

	// Overridable for tests.
	apiBase     string
	contentBase string
}

// NewDropbox builds a provider over the settings store, where its token
// pair lives.
func NewDropbox(client *http.Client, settings *storage.Store, clientID string) *Dropbox {
	if client == nil {
		client = http.DefaultClient
	}
	return &Dropbox{
		client:      client,
		settings:    settings,
		clientID:    clientID,
		apiBase:     dropboxAPIBase,
		contentBase: dropboxContent,
	}
}

func (d *Dropbox) Name() string { return "dropbox" }

// SetTokens persists a token pair obtained from the OAuth flow.
func (d *Dropbox) SetTokens(pair TokenPair) error {
	data, err := json.Marshal(pair)
	if err != nil {
		return err
	}
	return d.settings.Set(nsSettings, keyDropboxAuth, data)
}

// ClearTokens drops the stored credentials.
func (d *Dropbox) ClearTokens() error {
	return d.settings.Delete(nsSettings, keyDropboxAuth)
}

// SignOut discards the stored token pair.
func (d *Dropbox) SignOut() error {
	return d.ClearTokens()
}

// Authenticate exchanges an OAuth authorization code for a token pair and
// persists it. The code comes from the user completing the Dropbox consent
// page with redirectURI as the callback.
func (d *Dropbox) Authenticate(ctx context.Context, code, redirectURI string) error {
	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"client_id":    {d.clientID},
		"redirect_uri": {redirectURI},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		d.apiBase+"/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return &Error{Provider: d.Name(), Phase: "authenticate", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.client.Do(req)
	if err != nil {
		return &Error{Provider: d.Name(), Phase: "authenticate", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &Error{Provider: d.Name(), Phase: "authenticate",
			Err: fmt.Errorf("status %d: %s", resp.StatusCode, body)}
	}

	var out struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return &Error{Provider: d.Name(), Phase: "authenticate", Err: err}
	}
	return d.SetTokens(TokenPair{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken})
}

func (d *Dropbox) tokens() (TokenPair, bool) {
	data, err := d.settings.Get(nsSettings, keyDropboxAuth)
	if err != nil {
		return TokenPair{}, false
	}
	var pair TokenPair
	if err := json.Unmarshal(data, &pair); err != nil || pair.AccessToken == "" {
		return TokenPair{}, false
	}
	return pair, true
}

func (d *Dropbox) Authenticated() bool {
	_, ok := d.tokens()
	return ok
}

// snapshotPath sanitizes the address into a Dropbox file path.
func snapshotPath(address string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, address)
	return fmt.Sprintf(dropboxSnapshot, clean)
}

func (d *Dropbox) Download(ctx context.Context, address string) ([]byte, error) {
	pair, ok := d.tokens()
	if !ok {
		return nil, &Error{Provider: d.Name(), Phase: "download", Err: fmt.Errorf("not authenticated")}
	}

	arg, _ := json.Marshal(map[string]string{"path": snapshotPath(address)})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.contentBase+"/2/files/download", nil)
	if err != nil {
		return nil, &Error{Provider: d.Name(), Phase: "download", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	req.Header.Set("Dropbox-API-Arg", string(arg))

	resp, err := d.do(ctx, req, pair)
	if err != nil {
		return nil, &Error{Provider: d.Name(), Phase: "download", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Provider: d.Name(), Phase: "download", Err: err}
	}
	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusConflict && strings.Contains(string(body), "not_found"):
		return nil, ErrNotFound
	default:
		return nil, &Error{Provider: d.Name(), Phase: "download",
			Err: fmt.Errorf("status %d: %s", resp.StatusCode, body)}
	}
}

func (d *Dropbox) Upload(ctx context.Context, address string, data []byte) error {
	pair, ok := d.tokens()
	if !ok {
		return &Error{Provider: d.Name(), Phase: "upload", Err: fmt.Errorf("not authenticated")}
	}

	arg, _ := json.Marshal(map[string]any{
		"path": snapshotPath(address),
		"mode": "overwrite",
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.contentBase+"/2/files/upload", bytes.NewReader(data))
	if err != nil {
		return &Error{Provider: d.Name(), Phase: "upload", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	req.Header.Set("Dropbox-API-Arg", string(arg))
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := d.do(ctx, req, pair)
	if err != nil {
		return &Error{Provider: d.Name(), Phase: "upload", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &Error{Provider: d.Name(), Phase: "upload",
			Err: fmt.Errorf("status %d: %s", resp.StatusCode, body)}
	}
	return nil
}

// Metadata asks Dropbox for the remote file's modification time, size and
// revision.
func (d *Dropbox) Metadata(ctx context.Context, address string) (*Metadata, error) {
	body, err := d.rpc(ctx, "metadata", "/2/files/get_metadata",
		map[string]string{"path": snapshotPath(address)})
	if err != nil {
		return nil, err
	}

	var out struct {
		ServerModified time.Time `json:"server_modified"`
		Size           int64     `json:"size"`
		Rev            string    `json:"rev"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &Error{Provider: d.Name(), Phase: "metadata", Err: err}
	}
	return &Metadata{LastModified: out.ServerModified, Size: out.Size, Version: out.Rev}, nil
}

// Delete removes the remote snapshot. A snapshot that never existed is not
// an error.
func (d *Dropbox) Delete(ctx context.Context, address string) error {
	_, err := d.rpc(ctx, "delete", "/2/files/delete_v2",
		map[string]string{"path": snapshotPath(address)})
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// rpc performs a JSON-body call against the RPC endpoint, mapping 409
// not_found responses to ErrNotFound.
func (d *Dropbox) rpc(ctx context.Context, phase, endpoint string, arg any) ([]byte, error) {
	pair, ok := d.tokens()
	if !ok {
		return nil, &Error{Provider: d.Name(), Phase: phase, Err: fmt.Errorf("not authenticated")}
	}

	payload, err := json.Marshal(arg)
	if err != nil {
		return nil, &Error{Provider: d.Name(), Phase: phase, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.apiBase+endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Provider: d.Name(), Phase: phase, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.do(ctx, req, pair)
	if err != nil {
		return nil, &Error{Provider: d.Name(), Phase: phase, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Provider: d.Name(), Phase: phase, Err: err}
	}
	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusConflict && strings.Contains(string(body), "not_found"):
		return nil, ErrNotFound
	default:
		return nil, &Error{Provider: d.Name(), Phase: phase,
			Err: fmt.Errorf("status %d: %s", resp.StatusCode, body)}
	}
}

// do performs the request, refreshing the access token once on 401 when a
// refresh token is available.
func (d *Dropbox) do(ctx context.Context, req *http.Request, pair TokenPair) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body = io.NopCloser(bytes.NewReader(body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || pair.RefreshToken == "" || d.clientID == "" {
		return resp, nil
	}
	resp.Body.Close()

	refreshed, err := d.refresh(ctx, pair)
	if err != nil {
		return nil, err
	}
	retry := req.Clone(ctx)
	if body != nil {
		retry.Body = io.NopCloser(bytes.NewReader(body))
	}
	retry.Header.Set("Authorization", "Bearer "+refreshed.AccessToken)
	return d.client.Do(retry)
}

func (d *Dropbox) refresh(ctx context.Context, pair TokenPair) (TokenPair, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {pair.RefreshToken},
		"client_id":     {d.clientID},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		d.apiBase+"/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return TokenPair{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.client.Do(req)
	if err != nil {
		return TokenPair{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return TokenPair{}, fmt.Errorf("token refresh: status %d: %s", resp.StatusCode, body)
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return TokenPair{}, err
	}
	refreshed := TokenPair{AccessToken: out.AccessToken, RefreshToken: pair.RefreshToken}
	if err := d.SetTokens(refreshed); err != nil {
		return TokenPair{}, err
	}
	return refreshed, nil
}
