// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package mirror implements C5, the artifact mirror: it re-uploads
// non-index artifacts (and republishes index artifacts) into a
// per-request hosted repository in the external artifact store, per
// spec.md §4.5 and §6. It is a small REST client in the same shape as
// pkg/python/pep503.Client (BaseURL/HTTPClient, a context-aware "do"
// helper), pointed at a Nexus-Repository-style hosted-repository API:
// multipart component upload, a component search endpoint for the
// idempotent-create rule, and a named-script runner backing
// prepare_for_request/finalize_for_request.
package mirror

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/datawire/pipcache/pkg/pipfault"
)

// ComponentKind distinguishes the two hosted-repository formats C5
// publishes into.
type ComponentKind int

const (
	ComponentPyPI ComponentKind = iota
	ComponentRaw
)

// Client is the artifact-store client. The zero value is usable;
// BaseURL must be set before use.
type Client struct {
	BaseURL    string
	Username   string
	Password   string
	HTTPClient *http.Client
	UserAgent  string
}

func (c *Client) fillDefaults() {
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.UserAgent == "" {
		c.UserAgent = "github.com/datawire/pipcache/pkg/mirror"
	}
}

// conflictError marks a 409 response from an upload endpoint, letting
// Publish* distinguish "already exists" from any other failure.
type conflictError struct{}

func (conflictError) Error() string { return "component already exists" }

func isConflict(err error) bool {
	_, ok := err.(conflictError) //nolint:errorlint // sentinel-only comparison, never wrapped further
	return ok
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	c.fillDefaults()
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.BaseURL, "/")+path, body)
	if err != nil {
		return nil, fmt.Errorf("mirror: %w", err)
	}
	req.Header.Set("User-Agent", c.UserAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.Username != "" || c.Password != "" {
		req.SetBasicAuth(c.Username, c.Password)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mirror: %s %s: %w", method, path, err)
	}
	return resp, nil
}

// UploadPyPI uploads the sdist at localPath as a PyPI-format component
// into repo. Returns conflictError if the store reports the component
// already exists.
func (c *Client) UploadPyPI(ctx context.Context, repo, localPath string) error {
	body, contentType, err := multipartFile("pypi.asset", filepath.Base(localPath), localPath, nil)
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPost, "/repository/"+repo+"/", body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return classifyUploadResponse(resp, repo, localPath)
}

// UploadRaw uploads localPath as destDir/filename into repo's raw
// component storage. Returns conflictError if the store reports the
// component already exists.
func (c *Client) UploadRaw(ctx context.Context, repo, destDir, filename, localPath string) error {
	fields := map[string]string{
		"raw.directory":       destDir,
		"raw.asset1.filename": filename,
	}
	body, contentType, err := multipartFile("raw.asset1", filename, localPath, fields)
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPost, "/repository/"+repo+"/", body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return classifyUploadResponse(resp, repo, destDir+"/"+filename)
}

func classifyUploadResponse(resp *http.Response, repo, what string) error {
	switch {
	case resp.StatusCode/100 == 2:
		return nil
	case resp.StatusCode == http.StatusConflict:
		return conflictError{}
	default:
		return pipfault.Mirror("upload %s to repo %q: HTTP %s", what, repo, resp.Status)
	}
}

func multipartFile(fieldName, filename, localPath string, extraFields map[string]string) (io.Reader, string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, "", pipfault.Mirror("opening %s for upload: %w", localPath, err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range extraFields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", pipfault.Mirror("building upload request: %w", err)
		}
	}
	part, err := mw.CreateFormFile(fieldName, filename)
	if err != nil {
		return nil, "", pipfault.Mirror("building upload request: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", pipfault.Mirror("reading %s for upload: %w", localPath, err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", pipfault.Mirror("building upload request: %w", err)
	}
	return &body, mw.FormDataContentType(), nil
}

// RawAssetURL reports whether name already exists under repo's raw
// storage, and if so its download URL -- used by C4 to consult the
// mirror before re-fetching from origin.
func (c *Client) RawAssetURL(ctx context.Context, repo, name string) (string, bool, error) {
	resp, err := c.do(ctx, http.MethodGet, "/repository/"+repo+"/"+name, nil, "")
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", false, nil
	case resp.StatusCode/100 == 2:
		return strings.TrimRight(c.BaseURL, "/") + "/repository/" + repo + "/" + name, true, nil
	default:
		return "", false, pipfault.Mirror("checking raw asset %s in repo %q: HTTP %s", name, repo, resp.Status)
	}
}

type searchResult struct {
	Items []json.RawMessage `json:"items"`
}

// ComponentExists queries the store's component search API, backing the
// idempotent-create rule of spec.md §4.5: after an upload conflict,
// existence of a same-identity component is treated as success.
func (c *Client) ComponentExists(ctx context.Context, repo string, kind ComponentKind, name, version string) (bool, error) {
	q := url.Values{}
	q.Set("repository", repo)
	q.Set("name", name)
	if kind == ComponentPyPI && version != "" {
		q.Set("version", version)
	}
	resp, err := c.do(ctx, http.MethodGet, "/v1/search?"+q.Encode(), nil, "")
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return false, pipfault.Mirror("searching repo %q for component %q: HTTP %s", repo, name, resp.Status)
	}
	var result searchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, pipfault.Mirror("decoding search response for %q: %w", name, err)
	}
	return len(result.Items) > 0, nil
}

// PublishPyPI is the idempotent upload C4 calls after fetching an index
// artifact: upload, and on conflict treat an existing identically-named
// component as success.
func (c *Client) PublishPyPI(ctx context.Context, repo, localPath, name, version string) error {
	err := c.UploadPyPI(ctx, repo, localPath)
	if err == nil {
		return nil
	}
	if !isConflict(err) {
		return err
	}
	exists, qerr := c.ComponentExists(ctx, repo, ComponentPyPI, name, version)
	if qerr != nil {
		return qerr
	}
	if !exists {
		return pipfault.Mirror("upload conflict for %s==%s in repo %q, but no existing component found", name, version, repo)
	}
	return nil
}

// PublishRaw is the idempotent upload C4 calls after fetching a vcs/url
// artifact whose AlreadyMirrored is false.
func (c *Client) PublishRaw(ctx context.Context, repo, destDir, filename, localPath, name string) error {
	err := c.UploadRaw(ctx, repo, destDir, filename, localPath)
	if err == nil {
		return nil
	}
	if !isConflict(err) {
		return err
	}
	exists, qerr := c.ComponentExists(ctx, repo, ComponentRaw, name, "")
	if qerr != nil {
		return qerr
	}
	if !exists {
		return pipfault.Mirror("upload conflict for %s in repo %q, but no existing component found", destDir+"/"+filename, repo)
	}
	return nil
}

// ExecuteNamedScript invokes a pre-registered store-side script with a
// JSON payload, backing prepare_for_request/finalize_for_request (§6).
func (c *Client) ExecuteNamedScript(ctx context.Context, name string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return pipfault.Mirror("encoding payload for script %q: %w", name, err)
	}
	resp, err := c.do(ctx, http.MethodPost, "/v1/script/"+name+"/run", bytes.NewReader(data), "text/plain")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return pipfault.Mirror("executing script %q: HTTP %s", name, resp.Status)
	}
	return nil
}

// GeneratePassword produces a random 24-32 hex-character password, as
// finalize_for_request (§6) is specified to return.
func GeneratePassword() (string, error) {
	n, err := randIntRange(12, 16)
	if err != nil {
		return "", pipfault.Internal("generating password: %w", err)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", pipfault.Internal("generating password: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// randIntRange returns a cryptographically random integer in [lo, hi].
func randIntRange(lo, hi int) (int, error) {
	span := big.NewInt(int64(hi - lo + 1))
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return 0, err
	}
	return lo + int(n.Int64()), nil
}
