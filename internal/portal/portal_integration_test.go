//go:build integration

package portal_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"crossref/internal/config"
	"crossref/internal/portal"
	"crossref/internal/types"
)

const robotPage = `<html><body>
<div id="robot-check">
  <button class="honeypot" style="position:absolute;left:-9999px">Continue</button>
  <button onclick="document.cookie='human=1';location.reload()">I am not a robot</button>
</div></body></html>`

const searchPage = `<html><body>
<div id="age-gate"><button data-answer="yes" onclick="this.parentNode.remove()">I am 18+</button></div>
<form onsubmit="event.preventDefault(); location.href='/search?q='+encodeURIComponent(document.getElementById('search-input').value)">
  <input id="search-input" type="search" value="%s">
</form>
%s
</body></html>`

// fakePortal serves a robot gate, then an age gate, then search results.
func fakePortal() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("human"); err != nil || c.Value != "1" {
			fmt.Fprint(w, robotPage)
			return
		}
		q := r.URL.Query().Get("q")
		results := ""
		switch {
		case q == "":
		case strings.EqualFold(q, "Tom Kundig"):
			results = `<div class="results-summary">Showing 1 to 2 of 2</div>
<div class="search-results">
 <div class="result"><a href="/f/1">EFTA001.pdf</a><p class="snippet">Flight log, passenger Tom Kundig</p></div>
 <div class="result"><a href="/f/2">EFTA002.pdf</a><p class="snippet">Tom Kundig phone</p></div>
</div>`
		default:
			results = `<div class="no-results">No documents found</div>`
		}
		fmt.Fprintf(w, searchPage, q, results)
	}))
}

func TestClient_GatesAndSearch_Integration(t *testing.T) {
	ts := fakePortal()
	defer ts.Close()

	cfg := config.DefaultConfig()
	cfg.Portal.URL = ts.URL
	cfg.Portal.ResultTimeout = "5s"
	cfg.Browser.Headless = true

	cl := portal.New(cfg)
	defer cl.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	require.NoError(t, cl.Start(ctx))
	require.Equal(t, portal.StateSearchReady, cl.State())
	require.NoError(t, cl.EnsureReady(ctx))

	res, err := cl.SearchOne(ctx, "Tom Kundig")
	require.NoError(t, err)
	require.Equal(t, 2, res.TotalResults)
	require.Len(t, res.Entries, 2)
	require.Equal(t, "EFTA001.pdf", res.Entries[0].Filename)
	require.Equal(t, types.TierHigh, res.Tier)

	sess, ok := cl.Session()
	require.True(t, ok)
	require.Equal(t, portal.StateSearchReady.String(), sess.Status)
	require.False(t, sess.LastActive.Before(sess.CreatedAt))

	res, err = cl.SearchOne(ctx, "Nobody Here")
	require.NoError(t, err)
	require.Equal(t, 0, res.TotalResults)
	require.Equal(t, types.TierNone, res.Tier)

	require.NoError(t, cl.Stop())
	require.Equal(t, portal.StateStopped, cl.State())
}
