package plugin

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// Authentication describes how a plugin's platform logs users in. The host
// opens LoginURL and watches traffic for the listed cookies and headers;
// once all are seen (or CompletionURL is reached) the captured values are
// stored as the plugin's auth record.
type Authentication struct {
	LoginURL            string   `json:"loginUrl,omitempty"`
	CookiesToFind       []string `json:"cookiesToFind,omitempty"`
	HeadersToFind       []string `json:"headersToFind,omitempty"`
	DomainHeadersToFind []string `json:"domainHeadersToFind,omitempty"`
	CompletionURL       string   `json:"completionUrl,omitempty"`
}

// Manifest describes an installable plugin.
type Manifest struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Version        string            `json:"version,omitempty"`
	Description    string            `json:"description,omitempty"`
	Script         string            `json:"script,omitempty"`
	ScriptURL      string            `json:"scriptUrl,omitempty"`
	ManifestURL    string            `json:"manifestUrl,omitempty"`
	UpdateURL      string            `json:"updateUrl,omitempty"`
	HomePage       string            `json:"homePage,omitempty"`
	Authentication *Authentication   `json:"authentication,omitempty"`
	Options        map[string]string `json:"options,omitempty"`
}

// ParseManifest decodes a manifest document, tolerating the loose shapes
// found in the wild: options may be a JSON object or a pre-encoded string,
// and an id is generated when absent.
func ParseManifest(data []byte) (*Manifest, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrInvalidManifest)
	}
	doc := gjson.ParseBytes(data)

	m := &Manifest{
		ID:          doc.Get("id").String(),
		Name:        doc.Get("name").String(),
		Version:     doc.Get("version").String(),
		Description: doc.Get("description").String(),
		Script:      doc.Get("script").String(),
		ScriptURL:   doc.Get("scriptUrl").String(),
		ManifestURL: doc.Get("manifestUrl").String(),
		UpdateURL:   doc.Get("updateUrl").String(),
		HomePage:    doc.Get("homePage").String(),
	}

	if auth := doc.Get("authentication"); auth.IsObject() {
		var a Authentication
		if err := json.Unmarshal([]byte(auth.Raw), &a); err != nil {
			return nil, fmt.Errorf("%w: authentication: %v", ErrInvalidManifest, err)
		}
		m.Authentication = &a
	}

	if opts := doc.Get("options"); opts.Exists() {
		raw := opts
		if raw.Type == gjson.String {
			raw = gjson.Parse(raw.String())
		}
		if raw.IsObject() {
			m.Options = make(map[string]string)
			raw.ForEach(func(key, value gjson.Result) bool {
				m.Options[key.String()] = value.String()
				return true
			})
		}
	}

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks the manifest has the fields a plugin cannot load without.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidManifest)
	}
	if m.Script == "" && m.ScriptURL == "" {
		return ErrNoScript
	}
	return nil
}

// ResolveScript loads the plugin script, fetching ScriptURL when no inline
// script is present. Relative script URLs resolve against the manifest URL.
func (m *Manifest) ResolveScript(client *http.Client) (string, error) {
	if m.Script != "" {
		return m.Script, nil
	}
	if m.ScriptURL == "" {
		return "", ErrNoScript
	}

	target := m.ScriptURL
	if m.ManifestURL != "" && !strings.Contains(target, "://") {
		base, err := url.Parse(m.ManifestURL)
		if err != nil {
			return "", fmt.Errorf("plugin: bad manifest url %q: %w", m.ManifestURL, err)
		}
		ref, err := url.Parse(target)
		if err != nil {
			return "", fmt.Errorf("plugin: bad script url %q: %w", target, err)
		}
		target = base.ResolveReference(ref).String()
	}

	body, err := fetch(client, target)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// FetchManifest downloads and parses a manifest, recording where it came
// from so the plugin can be updated later.
func FetchManifest(client *http.Client, manifestURL string) (*Manifest, error) {
	body, err := fetch(client, manifestURL)
	if err != nil {
		return nil, err
	}
	m, err := ParseManifest(body)
	if err != nil {
		return nil, err
	}
	m.ManifestURL = manifestURL
	return m, nil
}

func fetch(client *http.Client, target string) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Get(target)
	if err != nil {
		return nil, fmt.Errorf("plugin: fetch %s: %w", target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("plugin: fetch %s: unexpected status %d", target, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("plugin: fetch %s: %w", target, err)
	}
	return body, nil
}
