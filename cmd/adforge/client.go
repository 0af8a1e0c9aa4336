package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"adforge/internal/daemon"
)

type apiClient struct {
	base *url.URL
	http *http.Client
}

func newAPIClient(address string) (*apiClient, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, errors.New("api address is required")
	}
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	base, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("parse api address: %w", err)
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""
	return &apiClient{
		base: base,
		http: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func wrapDialError(err error, address string) error {
	var opErr *net.OpError
	if errors.As(err, &opErr) || errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("connect to daemon at %s: %v; verify adforged is running", address, err)
	}
	return err
}

type submitParams struct {
	Script        string
	ImagePath     string
	Owner         string
	CharacterName string
	Voice         string
	AspectRatio   string
	Driver        string
}

func (c *apiClient) SubmitJob(ctx context.Context, params submitParams) (daemon.JobView, error) {
	var view daemon.JobView

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	fields := map[string]string{
		"script":         params.Script,
		"owner":          params.Owner,
		"character_name": params.CharacterName,
		"voice":          params.Voice,
		"aspect_ratio":   params.AspectRatio,
		"driver":         params.Driver,
	}
	for name, value := range fields {
		if value == "" {
			continue
		}
		if err := writer.WriteField(name, value); err != nil {
			return view, fmt.Errorf("encode form field %s: %w", name, err)
		}
	}

	image, err := os.Open(params.ImagePath)
	if err != nil {
		return view, fmt.Errorf("open reference image: %w", err)
	}
	defer image.Close()
	part, err := writer.CreateFormFile("image", filepath.Base(params.ImagePath))
	if err != nil {
		return view, fmt.Errorf("encode image part: %w", err)
	}
	if _, err := io.Copy(part, image); err != nil {
		return view, fmt.Errorf("copy reference image: %w", err)
	}
	if err := writer.Close(); err != nil {
		return view, err
	}

	endpoint := c.base.ResolveReference(&url.URL{Path: "/api/jobs"})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), body)
	if err != nil {
		return view, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	err = c.do(req, &view)
	return view, err
}

func (c *apiClient) ListJobs(ctx context.Context, statuses []string) ([]daemon.JobView, error) {
	values := url.Values{}
	for _, status := range statuses {
		if status = strings.TrimSpace(status); status != "" {
			values.Add("status", status)
		}
	}
	endpoint := c.base.ResolveReference(&url.URL{Path: "/api/jobs", RawQuery: values.Encode()})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Jobs []daemon.JobView `json:"jobs"`
	}
	if err := c.do(req, &payload); err != nil {
		return nil, err
	}
	return payload.Jobs, nil
}

func (c *apiClient) GetJob(ctx context.Context, id int64) (daemon.JobView, error) {
	var view daemon.JobView
	endpoint := c.base.ResolveReference(&url.URL{Path: "/api/jobs/" + strconv.FormatInt(id, 10)})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return view, err
	}
	err = c.do(req, &view)
	return view, err
}

func (c *apiClient) DaemonStatus(ctx context.Context) (daemon.StatusResponse, error) {
	var status daemon.StatusResponse
	endpoint := c.base.ResolveReference(&url.URL{Path: "/api/status"})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return status, err
	}
	err = c.do(req, &status)
	return status, err
}

// OpenEvents starts the server-sent event stream for a job. The caller owns
// the returned body and must close it.
func (c *apiClient) OpenEvents(ctx context.Context, id int64) (io.ReadCloser, error) {
	endpoint := c.base.ResolveReference(&url.URL{Path: fmt.Sprintf("/api/jobs/%d/events", id)})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	// No client timeout here: the stream stays open until the job finishes
	// or the caller cancels the context.
	stream := &http.Client{}
	resp, err := stream.Do(req)
	if err != nil {
		return nil, wrapDialError(err, c.base.Host)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}
	return resp.Body, nil
}

func (c *apiClient) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return wrapDialError(err, c.base.Host)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode api response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return fmt.Errorf("api: %s (http %d)", payload.Error, resp.StatusCode)
	}
	return fmt.Errorf("api returned status %d", resp.StatusCode)
}
