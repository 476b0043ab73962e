package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/teslashibe/sentinel/internal/httpc"
)

// Backend is the analysis service. Each method is one interaction from the
// poller's point of view.
type Backend interface {
	// Submit uploads the video and starts processing, returning the task id.
	Submit(ctx context.Context, up Upload) (string, error)

	// AnalysisStatus fetches the current state of a task.
	AnalysisStatus(ctx context.Context, taskID string) (StatusReport, error)
}

// HTTPBackend talks to the analysis REST API:
//
//	POST /upload-video              multipart "file" -> camera {id}
//	POST /cameras/{id}/process      -> {task_id}
//	GET  /analysis/{task_id}        -> {status, progress, result}
type HTTPBackend struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewHTTPBackend creates a backend client.
func NewHTTPBackend(opts ...Option) *HTTPBackend {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	return &HTTPBackend{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		http:    httpc.NewClient(cfg.Timeout),
		logger:  cfg.Logger.With("component", "analysis.http"),
	}
}

// Submit uploads the video, then asks the service to process it.
func (b *HTTPBackend) Submit(ctx context.Context, up Upload) (string, error) {
	cameraID, err := b.upload(ctx, up)
	if err != nil {
		return "", err
	}

	var ack struct {
		TaskID string `json:"task_id"`
	}
	path := "/cameras/" + url.PathEscape(cameraID) + "/process"
	if err := b.do(ctx, http.MethodPost, path, nil, "", &ack); err != nil {
		return "", err
	}
	if ack.TaskID == "" {
		return "", &TransportError{Op: "process", Err: fmt.Errorf("response has no task_id")}
	}
	b.logger.Info("analysis submitted", "camera", cameraID, "task", ack.TaskID)
	return ack.TaskID, nil
}

func (b *HTTPBackend) upload(ctx context.Context, up Upload) (string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", up.Filename)
		if err == nil {
			_, err = io.Copy(part, up.Body)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	var camera struct {
		ID string `json:"id"`
	}
	if err := b.do(ctx, http.MethodPost, "/upload-video", pr, mw.FormDataContentType(), &camera); err != nil {
		pr.CloseWithError(err)
		return "", err
	}
	if camera.ID == "" {
		return "", &TransportError{Op: "upload", Err: fmt.Errorf("response has no camera id")}
	}
	return camera.ID, nil
}

// AnalysisStatus fetches one status report. A completed report whose result
// cannot be decoded fails with ErrMalformedResult; polling again would only
// fetch the same body.
func (b *HTTPBackend) AnalysisStatus(ctx context.Context, taskID string) (StatusReport, error) {
	var raw struct {
		Status   string          `json:"status"`
		Progress float64         `json:"progress"`
		Result   json.RawMessage `json:"result"`
		Error    string          `json:"error"`
	}
	if err := b.do(ctx, http.MethodGet, "/analysis/"+url.PathEscape(taskID), nil, "", &raw); err != nil {
		return StatusReport{}, err
	}

	rep := StatusReport{Status: raw.Status, Progress: raw.Progress, Error: raw.Error}
	if len(raw.Result) == 0 || string(raw.Result) == "null" {
		return rep, nil
	}
	var result Result
	if err := json.Unmarshal(raw.Result, &result); err != nil {
		if raw.Status == RemoteCompleted {
			return rep, fmt.Errorf("%w: task %s: %v", ErrMalformedResult, taskID, err)
		}
		b.logger.Warn("ignoring partial result", "task", taskID, "error", err)
		return rep, nil
	}
	rep.Result = &result
	return rep, nil
}

func (b *HTTPBackend) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	op := method + " " + path
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &TransportError{Op: op, Err: parseError(resp)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var errResp struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	message := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &errResp) == nil {
		switch {
		case errResp.Detail != "":
			message = errResp.Detail
		case errResp.Error != "":
			message = errResp.Error
		}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: message}
}
