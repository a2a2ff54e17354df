package snapring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	retry "github.com/avast/retry-go"
	"go.uber.org/zap"
)

// ToolTag is the fixed type tag identifying this tool to the API. The
// actual backup kind (full/differential) travels inside the summary.
const ToolTag = "snapring-v1"

// Reporter uploads a completed-cycle summary.
type Reporter interface {
	Send(ctx context.Context, sum *Summary) (response string, err error)
}

// APIReporter posts the summary as multipart/form-data: a hostname field, a
// backup_type field carrying the tool tag, and the summary JSON as the
// backuplog file part.
type APIReporter struct {
	cfg    APIConfig
	client *http.Client
}

func NewAPIReporter(cfg APIConfig) *APIReporter {
	return &APIReporter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout()},
	}
}

func (r *APIReporter) Send(ctx context.Context, sum *Summary) (string, error) {
	payload, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal summary: %w", err)
	}

	var response string
	err = retry.Do(
		func() error {
			resp, postErr := r.post(ctx, sum.ComputerName, payload)
			if postErr != nil {
				return postErr
			}
			response = resp
			return nil
		},
		retry.Attempts(3),
		retry.Delay(2*time.Second),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			zlog.Warn("summary upload attempt failed, retrying",
				zap.Uint("attempt", n+1),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrReportingFailed, err)
	}
	return response, nil
}

func (r *APIReporter) post(ctx context.Context, hostname string, payload []byte) (string, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	if err := mw.WriteField("hostname", hostname); err != nil {
		return "", err
	}
	if err := mw.WriteField("backup_type", ToolTag); err != nil {
		return "", err
	}

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="backuplog"; filename="backup.json"`)
	header.Set("Content-Type", "application/json")
	part, err := mw.CreatePart(header)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(payload); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Endpoint, body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+r.cfg.Token)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("post summary: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}
	return string(bytes.TrimSpace(raw)), nil
}
