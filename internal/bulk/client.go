// Package bulk drives the remote asynchronous bulk-query protocol: job
// submission, polling to a terminal state, and cursor-based chunked download
// of the tabular result set.
package bulk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/datalift/bulkvault/internal/config"
	"github.com/datalift/bulkvault/internal/logger"
	"github.com/datalift/bulkvault/internal/transport"
)

// locatorHeader carries the continuation cursor between result chunks.
// The literal value "null" (or absence) marks end-of-stream.
const locatorHeader = "Sforce-Locator"

// Client talks the bulk-query protocol against one remote instance.
// All requests share the transport manager's pooled connection; each request
// is individually wrapped by pool-shutdown recovery.
type Client struct {
	baseURL    string
	token      string
	apiVersion string

	tm     *transport.Manager
	logger *logger.Logger

	pollInterval    time.Duration
	maxPollAttempts int

	describeMu    sync.Mutex
	describeCache map[string]*EntityDescribe
}

// NewClient creates a bulk protocol client.
func NewClient(remote config.RemoteConfig, proc config.ProcessingConfig, tm *transport.Manager, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewDefault()
	}
	interval := time.Duration(proc.PollIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Second
	}
	attempts := proc.MaxPollAttempts
	if attempts <= 0 {
		attempts = 300
	}
	return &Client{
		baseURL:         strings.TrimRight(remote.BaseURL, "/"),
		token:           remote.AccessToken,
		apiVersion:      remote.APIVersion,
		tm:              tm,
		logger:          log,
		pollInterval:    interval,
		maxPollAttempts: attempts,
	}
}

func (c *Client) restURL(path string) string {
	return fmt.Sprintf("%s/services/data/v%s%s", c.baseURL, c.apiVersion, path)
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
}

// doJSON executes one request under pool recovery and decodes the JSON body
// into out. Non-2xx responses come back as *StatusError.
func (c *Client) doJSON(ctx context.Context, method, rawURL string, body []byte, out interface{}) error {
	return c.tm.ExecuteWithRecovery(func(client *http.Client) error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
		if err != nil {
			return err
		}
		c.authorize(req)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 400 {
			return &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
		}
		if out == nil {
			return nil
		}
		return json.Unmarshal(raw, out)
	})
}

// BuildQuery assembles the query text for one entity export.
func BuildQuery(entity string, fields []string, where string, limit int) string {
	q := "SELECT " + strings.Join(fields, ", ") + " FROM " + entity
	if strings.TrimSpace(where) != "" {
		q += " WHERE " + where
	}
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	return q
}

// Submit creates a remote export job for one entity type and returns the
// job identifier. Rejections for fundamentally unsupported entity types
// surface as *RemoteRejectedError and must not be retried.
func (c *Client) Submit(ctx context.Context, entity string, fields []string, where string, limit int) (string, error) {
	soql := BuildQuery(entity, fields, where, limit)

	payload, err := json.Marshal(map[string]string{
		"operation": "query",
		"query":     soql,
	})
	if err != nil {
		return "", err
	}

	var created struct {
		ID string `json:"id"`
	}
	err = c.doJSON(ctx, http.MethodPost, c.restURL("/jobs/query"), payload, &created)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && isRejectionMessage(statusErr.Body) {
			return "", &RemoteRejectedError{Entity: entity, Message: statusErr.Body}
		}
		return "", fmt.Errorf("failed to create query job for %s: %w", entity, err)
	}

	c.logger.Infow("Export job created", "entity", entity, "job_id", created.ID)
	return created.ID, nil
}

// AwaitCompletion polls the job on a fixed interval until it reaches a
// terminal state. Failed and Aborted raise *JobFailedError with the remote
// error text; exceeding the attempt bound raises ErrPollTimeout.
func (c *Client) AwaitCompletion(ctx context.Context, jobID string, progress ProgressFunc) (*ExportJob, error) {
	statusURL := c.restURL("/jobs/query/" + jobID)

	job := &ExportJob{ID: jobID, State: StateCreated}

	for attempt := 0; attempt < c.maxPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		default:
		}

		var status struct {
			State            string `json:"state"`
			RecordsProcessed int64  `json:"numberRecordsProcessed"`
			ErrorMessage     string `json:"errorMessage"`
		}
		if err := c.doJSON(ctx, http.MethodGet, statusURL, nil, &status); err != nil {
			return job, fmt.Errorf("failed to poll job %s: %w", jobID, err)
		}

		job.State = JobState(status.State)
		job.RecordsProcessed = status.RecordsProcessed

		if progress != nil && status.RecordsProcessed > 0 {
			progress(status.RecordsProcessed)
		}

		switch job.State {
		case StateComplete:
			return job, nil
		case StateFailed, StateAborted:
			msg := status.ErrorMessage
			if msg == "" {
				msg = "unknown error"
			}
			return job, &JobFailedError{JobID: jobID, State: job.State, Message: msg}
		}

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}

	return job, fmt.Errorf("job %s: %w after %d attempts", jobID, ErrPollTimeout, c.maxPollAttempts)
}

// DownloadResults fetches the job's result set chunk by chunk, following the
// continuation cursor, and writes the assembled tabular output to w: exactly
// one header line followed by all data lines in arrival order. Each chunk
// fetch is independently wrapped by pool recovery, so a mid-stream fault
// restarts only the current chunk — the last-seen cursor is the resumption
// token.
func (c *Client) DownloadResults(ctx context.Context, jobID string, w io.Writer) (int64, error) {
	resultsURL := c.restURL("/jobs/query/" + jobID + "/results")

	var totalBytes int64
	locator := ""
	chunk := 0

	for {
		chunkURL := resultsURL
		if locator != "" {
			chunkURL = resultsURL + "?locator=" + url.QueryEscape(locator)
		}
		dropHeader := chunk > 0

		var chunkBody []byte
		var nextLocator string
		err := c.tm.ExecuteWithRecovery(func(client *http.Client) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, chunkURL, nil)
			if err != nil {
				return err
			}
			c.authorize(req)
			req.Header.Set("Accept", "text/csv")

			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			raw, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode >= 400 {
				return &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
			}

			chunkBody = raw
			nextLocator = resp.Header.Get(locatorHeader)
			return nil
		})
		if err != nil {
			return totalBytes, fmt.Errorf("failed to download chunk %d of job %s: %w", chunk+1, jobID, err)
		}

		data := chunkBody
		if dropHeader {
			// Later chunks repeat the header line; keep only the data lines.
			if idx := bytes.IndexByte(data, '\n'); idx >= 0 {
				data = data[idx+1:]
			} else {
				data = nil
			}
		}
		n, err := w.Write(data)
		if err != nil {
			return totalBytes, fmt.Errorf("failed to write chunk %d of job %s: %w", chunk+1, jobID, err)
		}
		totalBytes += int64(n)
		chunk++

		if nextLocator == "" || nextLocator == "null" {
			break
		}
		locator = nextLocator
	}

	c.logger.Infow("Results downloaded",
		"job_id", jobID,
		"chunks", chunk,
		"bytes", totalBytes,
	)
	return totalBytes, nil
}

// RecordCount runs a count-only predicate and returns the aggregate size.
func (c *Client) RecordCount(ctx context.Context, entity string) (int64, error) {
	q := url.QueryEscape("SELECT COUNT() FROM " + entity)

	var result struct {
		TotalSize int64 `json:"totalSize"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.restURL("/query?q="+q), nil, &result); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", entity, err)
	}
	return result.TotalSize, nil
}

// RecordMetadata fetches one record's non-binary fields, used for naming
// fetched content files. Best effort: callers fall back to a generated name.
func (c *Client) RecordMetadata(ctx context.Context, entity, recordID string) (map[string]interface{}, error) {
	var record map[string]interface{}
	err := c.doJSON(ctx, http.MethodGet, c.restURL("/sobjects/"+entity+"/"+recordID), nil, &record)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// StreamContent fetches one record's binary field and streams it to w.
func (c *Client) StreamContent(ctx context.Context, entity, recordID, field string, w io.Writer) error {
	contentURL := c.restURL(contentPath(entity, recordID, field))

	return c.tm.ExecuteWithRecovery(func(client *http.Client) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, contentURL, nil)
		if err != nil {
			return err
		}
		c.authorize(req)

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
		}

		_, err = io.Copy(w, resp.Body)
		return err
	})
}

// contentPath returns the REST path exposing an entity's binary field.
// A few well-known entity types expose content under fixed field names.
func contentPath(entity, recordID, field string) string {
	switch entity {
	case "Attachment", "Document", "StaticResource":
		return "/sobjects/" + entity + "/" + recordID + "/Body"
	case "ContentVersion":
		return "/sobjects/ContentVersion/" + recordID + "/VersionData"
	default:
		return "/sobjects/" + entity + "/" + recordID + "/" + field
	}
}
