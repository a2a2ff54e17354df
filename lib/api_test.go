package snapring

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIReporterSend(t *testing.T) {
	var gotAuth, gotHostname, gotType, gotFilename string
	var gotPayload []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotHostname = r.FormValue("hostname")
		gotType = r.FormValue("backup_type")

		file, header, err := r.FormFile("backuplog")
		require.NoError(t, err)
		defer file.Close()
		gotFilename = header.Filename
		gotPayload, err = io.ReadAll(file)
		require.NoError(t, err)

		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, "accepted\n")
	}))
	defer server.Close()

	ring, _, _ := newTestRing(t)
	reporter := NewAPIReporter(APIConfig{
		Enabled:  true,
		Endpoint: server.URL,
		Token:    "secret-token",
	})

	response, err := reporter.Send(context.Background(), ring.TestSummary())
	require.NoError(t, err)
	assert.Equal(t, "accepted", response)

	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "testhost", gotHostname)
	assert.Equal(t, ToolTag, gotType)
	assert.Equal(t, "backup.json", gotFilename)

	sum := &Summary{}
	require.NoError(t, json.Unmarshal(gotPayload, sum))
	assert.Equal(t, summaryVersion, sum.Version)
	assert.Equal(t, "test", sum.Backup.Type)
}

func TestAPIReporterSendRetriesThenFails(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "backend down", http.StatusInternalServerError)
	}))
	defer server.Close()

	ring, _, _ := newTestRing(t)
	reporter := NewAPIReporter(APIConfig{Enabled: true, Endpoint: server.URL})

	_, err := reporter.Send(context.Background(), ring.TestSummary())
	require.ErrorIs(t, err, ErrReportingFailed)
	assert.Contains(t, err.Error(), "unexpected status 500")
	assert.Equal(t, 3, attempts)
}
