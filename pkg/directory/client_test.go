package directory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csnavigator/callcopilot/pkg/config"
	"github.com/csnavigator/callcopilot/pkg/models"
)

func newTestClient(baseURL string) *Client {
	return NewClient(&config.DirectoryConfig{
		BaseURL:        baseURL,
		APIKey:         "secret",
		ProfileTimeout: 2 * time.Second,
		UploadTimeout:  2 * time.Second,
	})
}

func TestFetchProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "01012345678", r.URL.Query().Get("phoneNumber"))
		assert.Equal(t, "secret", r.Header.Get("X-API-KEY"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"고객 ID": "cust-1",
			"이름":    "김철수",
			"요금제명":  "5G 스탠다드",
			"전화번호":  "01012345678",
		})
	}))
	defer srv.Close()

	info, err := newTestClient(srv.URL).FetchProfile(context.Background(), "01012345678")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "cust-1", info.CustomerID)
	assert.Equal(t, "5G 스탠다드", info.RatePlan)
}

func TestFetchProfileUnknownCustomer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	info, err := newTestClient(srv.URL).FetchProfile(context.Background(), "01000000000")
	require.NoError(t, err, "404 means unknown caller, not an error")
	assert.Nil(t, info)
}

func TestFetchProfileServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchProfile(context.Background(), "01012345678")
	assert.Error(t, err)
}

func TestUploadCallLog(t *testing.T) {
	var received models.CallLogPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/call-end", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret", r.Header.Get("X-API-KEY"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	payload := models.CallLogPayload{
		CustomerNumber: "01012345678",
		SummaryText:    "요금제 변경 상담",
		Duration:       120,
		Billsec:        84,
	}
	require.NoError(t, newTestClient(srv.URL).UploadCallLog(context.Background(), payload))
	assert.Equal(t, "요금제 변경 상담", received.SummaryText)
	assert.Equal(t, 84, received.Billsec)
}

func TestUploadCallLogFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).UploadCallLog(context.Background(), models.CallLogPayload{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}
