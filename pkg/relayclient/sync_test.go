package relayclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSync_WalksEveryConnectionPage(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	all := make([]Connection, 250)
	for i := range all {
		all[i] = Connection{
			ID:        fmt.Sprintf("r%03d", i),
			Status:    StatusPending,
			UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		}
	}

	var (
		mu    sync.Mutex
		pages []string
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/connections", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		pages = append(pages, r.URL.Query().Get("page"))
		mu.Unlock()
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		start := min((page-1)*limit, len(all))
		end := min(start+limit, len(all))
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": all[start:end]})
	})
	mux.HandleFunc("/api/v1/notifications", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": []Notification{}})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	state := NewState()
	require.NoError(t, Sync(context.Background(), NewREST(ts.URL, "tok"), state))

	mu.Lock()
	assert.Equal(t, []string{"1", "2", "3"}, pages)
	mu.Unlock()
	assert.Len(t, state.Connections(), 250)
	_, ok := state.Connection("r249")
	assert.True(t, ok)
}
