package bulk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datalift/bulkvault/internal/config"
	"github.com/datalift/bulkvault/internal/logger"
	"github.com/datalift/bulkvault/internal/transport"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	remote := config.RemoteConfig{
		BaseURL:     srv.URL,
		AccessToken: "test-token",
		APIVersion:  "62.0",
	}
	log := logger.NewDefault()
	tm := transport.NewManager(remote, log)
	t.Cleanup(tm.Close)

	c := NewClient(remote, config.ProcessingConfig{PollIntervalSeconds: 1, MaxPollAttempts: 300}, tm, log)
	c.pollInterval = time.Millisecond
	return c, srv
}

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name   string
		entity string
		fields []string
		where  string
		limit  int
		want   string
	}{
		{
			name:   "plain projection",
			entity: "Account",
			fields: []string{"Id", "Name"},
			want:   "SELECT Id, Name FROM Account",
		},
		{
			name:   "with predicate",
			entity: "Contact",
			fields: []string{"Id"},
			where:  "AccountId IN ('001')",
			want:   "SELECT Id FROM Contact WHERE AccountId IN ('001')",
		},
		{
			name:   "with limit",
			entity: "Case",
			fields: []string{"Id", "Subject"},
			limit:  50,
			want:   "SELECT Id, Subject FROM Case LIMIT 50",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildQuery(tt.entity, tt.fields, tt.where, tt.limit))
		})
	}
}

func TestSubmit(t *testing.T) {
	var gotQuery string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/services/data/v62.0/jobs/query", r.URL.Path)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotQuery = body["query"]
		require.Equal(t, "query", body["operation"])

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"750xx0000001","state":"UploadComplete"}`)
	}))

	jobID, err := c.Submit(context.Background(), "Account", []string{"Id", "Name"}, "", 0)
	require.NoError(t, err)
	assert.Equal(t, "750xx0000001", jobID)
	assert.Equal(t, "SELECT Id, Name FROM Account", gotQuery)
}

func TestSubmitRejectedEntity(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bulk unsupported", `[{"message":"Entity 'ContentDocumentLink' is not supported by the Bulk API"}]`},
		{"invalid entity", `[{"errorCode":"INVALIDENTITY","message":"bad entity"}]`},
		{"compound data", `[{"message":"Selecting compound data not supported in Bulk Query"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, tt.body)
			}))

			_, err := c.Submit(context.Background(), "ContentDocumentLink", []string{"Id"}, "", 0)
			var rejected *RemoteRejectedError
			require.ErrorAs(t, err, &rejected)
			assert.Equal(t, "ContentDocumentLink", rejected.Entity)
		})
	}
}

func TestSubmitServerErrorIsNotRejection(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `[{"message":"transient backend failure"}]`)
	}))

	_, err := c.Submit(context.Background(), "Account", []string{"Id"}, "", 0)
	require.Error(t, err)

	var rejected *RemoteRejectedError
	assert.False(t, errors.As(err, &rejected))

	var status *StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, http.StatusInternalServerError, status.StatusCode)
}

func TestAwaitCompletion(t *testing.T) {
	polls := 0
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		polls++
		state := "InProgress"
		if polls >= 3 {
			state = "JobComplete"
		}
		fmt.Fprintf(w, `{"state":%q,"numberRecordsProcessed":%d}`, state, polls*100)
	}))

	var lastProgress int64
	job, err := c.AwaitCompletion(context.Background(), "750xx0000001", func(n int64) { lastProgress = n })
	require.NoError(t, err)
	assert.Equal(t, StateComplete, job.State)
	assert.Equal(t, int64(300), job.RecordsProcessed)
	assert.Equal(t, int64(300), lastProgress)
	assert.Equal(t, 3, polls)
}

func TestAwaitCompletionFailedJob(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"state":"Failed","errorMessage":"MALFORMED_QUERY: unexpected token"}`)
	}))

	_, err := c.AwaitCompletion(context.Background(), "750xx0000002", nil)
	var failed *JobFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, StateFailed, failed.State)
	assert.Contains(t, failed.Message, "MALFORMED_QUERY")
}

func TestAwaitCompletionTimeout(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"state":"InProgress"}`)
	}))
	c.maxPollAttempts = 5

	_, err := c.AwaitCompletion(context.Background(), "750xx0000003", nil)
	require.ErrorIs(t, err, ErrPollTimeout)
}

func TestAwaitCompletionContextCancel(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"state":"InProgress"}`)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.AwaitCompletion(ctx, "750xx0000004", nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDownloadResultsSingleChunk(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "text/csv", r.Header.Get("Accept"))
		w.Header().Set(locatorHeader, "null")
		fmt.Fprint(w, "Id,Name\n001,Acme\n002,Globex\n")
	}))

	var buf bytes.Buffer
	n, err := c.DownloadResults(context.Background(), "750xx0000001", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)
	assert.Equal(t, "Id,Name\n001,Acme\n002,Globex\n", buf.String())
}

// Multi-chunk download keeps exactly one header line and preserves data-line
// order across chunk boundaries.
func TestDownloadResultsMultiChunk(t *testing.T) {
	chunks := []struct {
		locator string
		next    string
		body    string
	}{
		{"", "chunk2", "Id,Name\n001,Acme\n"},
		{"chunk2", "chunk3", "Id,Name\n002,Globex\n003,Initech\n"},
		{"chunk3", "null", "Id,Name\n004,Umbrella\n"},
	}

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		loc := r.URL.Query().Get("locator")
		for _, ch := range chunks {
			if ch.locator == loc {
				w.Header().Set(locatorHeader, ch.next)
				fmt.Fprint(w, ch.body)
				return
			}
		}
		t.Errorf("unexpected locator %q", loc)
		w.WriteHeader(http.StatusBadRequest)
	}))

	var buf bytes.Buffer
	_, err := c.DownloadResults(context.Background(), "750xx0000001", &buf)
	require.NoError(t, err)

	want := "Id,Name\n001,Acme\n002,Globex\n003,Initech\n004,Umbrella\n"
	assert.Equal(t, want, buf.String())
	assert.Equal(t, 1, strings.Count(buf.String(), "Id,Name"))
}

// A chunk fetch that fails leaves the writer holding only fully-written
// earlier chunks, never a partial chunk.
func TestDownloadResultsFailedChunkWritesNothingPartial(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("locator") == "" {
			w.Header().Set(locatorHeader, "chunk2")
			fmt.Fprint(w, "Id,Name\n001,Acme\n")
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "backend failure")
	}))

	var buf bytes.Buffer
	_, err := c.DownloadResults(context.Background(), "750xx0000001", &buf)
	require.Error(t, err)
	assert.Equal(t, "Id,Name\n001,Acme\n", buf.String())
}

// A pool-shutdown fault on a later chunk is retried from the same cursor, so
// the assembled output matches a fault-free download exactly.
func TestDownloadResultsRecoversMidStreamFault(t *testing.T) {
	chunk2Calls := 0
	handler := func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("locator") {
		case "":
			w.Header().Set(locatorHeader, "chunk2")
			fmt.Fprint(w, "Id,Name\n001,Acme\n")
		case "chunk2":
			chunk2Calls++
			if chunk2Calls == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprint(w, "connection pool shut down")
				return
			}
			w.Header().Set(locatorHeader, "null")
			fmt.Fprint(w, "Id,Name\n002,Globex\n")
		default:
			t.Errorf("unexpected locator %q", r.URL.Query().Get("locator"))
			w.WriteHeader(http.StatusBadRequest)
		}
	}

	c, _ := newTestClient(t, http.HandlerFunc(handler))

	var buf bytes.Buffer
	n, err := c.DownloadResults(context.Background(), "750xx0000001", &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, chunk2Calls)
	assert.Equal(t, int64(buf.Len()), n)
	assert.Equal(t, "Id,Name\n001,Acme\n002,Globex\n", buf.String())
	assert.Equal(t, 1, strings.Count(buf.String(), "Id,Name"))
}

func TestRecordCount(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/services/data/v62.0/query", r.URL.Path)
		require.Equal(t, "SELECT COUNT() FROM Account", r.URL.Query().Get("q"))
		fmt.Fprint(w, `{"totalSize":1234,"done":true}`)
	}))

	n, err := c.RecordCount(context.Background(), "Account")
	require.NoError(t, err)
	assert.Equal(t, int64(1234), n)
}

func TestStreamContentPaths(t *testing.T) {
	tests := []struct {
		entity   string
		recordID string
		field    string
		wantPath string
	}{
		{"Attachment", "00P1", "Body", "/services/data/v62.0/sobjects/Attachment/00P1/Body"},
		{"Document", "0151", "Body", "/services/data/v62.0/sobjects/Document/0151/Body"},
		{"StaticResource", "0811", "Body", "/services/data/v62.0/sobjects/StaticResource/0811/Body"},
		{"ContentVersion", "0681", "VersionData", "/services/data/v62.0/sobjects/ContentVersion/0681/VersionData"},
		{"CustomDoc__c", "a001", "File__c", "/services/data/v62.0/sobjects/CustomDoc__c/a001/File__c"},
	}

	for _, tt := range tests {
		t.Run(tt.entity, func(t *testing.T) {
			var gotPath string
			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				fmt.Fprint(w, "binary-payload")
			}))

			var buf bytes.Buffer
			err := c.StreamContent(context.Background(), tt.entity, tt.recordID, tt.field, &buf)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPath, gotPath)
			assert.Equal(t, "binary-payload", buf.String())
		})
	}
}
