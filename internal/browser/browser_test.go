package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ysmood/gson"

	"github.com/muandane/glimpse/internal/config"
)

func TestCheckName(t *testing.T) {
	assert.NoError(t, CheckName(""))
	assert.NoError(t, CheckName("Chromium"))
	assert.Error(t, CheckName("firefox"))
}

func TestCaptureErrClassifiesDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	err := captureErr(ctx, NavigationFailed, "https://example.com", errors.New("navigation aborted"))
	assert.Equal(t, Timeout, err.Kind)

	err = captureErr(context.Background(), NavigationFailed, "https://example.com", fmt.Errorf("wrapped: %w", context.DeadlineExceeded))
	assert.True(t, IsKind(err, Timeout))

	err = captureErr(context.Background(), RenderFailed, "https://example.com", errors.New("boom"))
	assert.True(t, IsKind(err, RenderFailed))
	assert.Contains(t, err.Error(), "https://example.com")
}

func TestRecorderTracksRedirects(t *testing.T) {
	rec := newRecorder()
	port := 443

	rec.request(&proto.NetworkRequestWillBeSent{
		RequestID: "1",
		Type:      proto.NetworkResourceTypeDocument,
		Request:   &proto.NetworkRequest{URL: "http://example.com", Method: "GET"},
	})
	rec.request(&proto.NetworkRequestWillBeSent{
		RequestID: "1",
		Type:      proto.NetworkResourceTypeDocument,
		Request:   &proto.NetworkRequest{URL: "https://example.com/", Method: "GET"},
		RedirectResponse: &proto.NetworkResponse{
			URL: "http://example.com", Status: 301, RemoteIPAddress: "93.184.216.34", RemotePort: &port,
		},
	})
	rec.response(&proto.NetworkResponseReceived{
		RequestID: "1",
		Type:      proto.NetworkResourceTypeDocument,
		Response: &proto.NetworkResponse{
			URL:     "https://example.com/",
			Status:  200,
			Headers: proto.NetworkHeaders{"content-type": gson.New("text/html")},
		},
	})

	require.Len(t, rec.redirects, 1)
	assert.Equal(t, Redirect{
		Step: 1, From: "http://example.com", To: "https://example.com/",
		StatusCode: 301, ResourceType: "Document", Server: "93.184.216.34:443",
	}, rec.redirects[0])

	require.Len(t, rec.network, 3)
	assert.NotEqual(t, rec.network[0].UUID, rec.network[1].UUID)
	assert.Equal(t, rec.network[1].UUID, rec.network[2].UUID, "response pairs with the last hop")
	assert.Equal(t, "text/html", rec.network[2].Headers["content-type"])
}

func TestRecorderLogs(t *testing.T) {
	rec := newRecorder()
	rec.console(&proto.RuntimeConsoleAPICalled{Args: []*proto.RuntimeRemoteObject{
		{Type: proto.RuntimeRemoteObjectTypeString, Value: gson.New("hello")},
		{Type: proto.RuntimeRemoteObjectTypeObject, Description: "Object"},
	}})
	rec.exception(&proto.RuntimeExceptionThrown{ExceptionDetails: &proto.RuntimeExceptionDetails{
		Text:      "Uncaught",
		Exception: &proto.RuntimeRemoteObject{Description: "ReferenceError: x is not defined"},
	}})

	assert.Equal(t, []LogEntry{
		{ConsoleMessage: "hello Object"},
		{JavascriptError: "ReferenceError: x is not defined"},
	}, rec.logs)
}

func TestDescribe(t *testing.T) {
	title, desc := describe(`<html><head><title> Example </title>
		<meta name="description" content="An example page"></head><body></body></html>`)
	assert.Equal(t, "Example", title)
	assert.Equal(t, "An example page", desc)

	title, desc = describe("<p>no head</p>")
	assert.Empty(t, title)
	assert.Empty(t, desc)
}

func TestConvertCookies(t *testing.T) {
	got := convertCookies([]*proto.NetworkCookie{
		{Name: "a", Value: "1", Domain: "example.com", Path: "/", Expires: 1700000000, HTTPOnly: true, Secure: true, SameSite: proto.NetworkCookieSameSiteLax},
		{Name: "b", Value: "2", Session: true, Expires: -1},
	})
	require.Len(t, got, 2)
	assert.Equal(t, 1700000000.0, got[0].Expires)
	assert.Equal(t, "Lax", got[0].SameSite)
	assert.Zero(t, got[1].Expires)
}

// Needs a local Chromium; set GLIMPSE_BROWSER_TEST=1 to run.
func TestCaptureWithChromium(t *testing.T) {
	if os.Getenv("GLIMPSE_BROWSER_TEST") == "" {
		t.Skip("GLIMPSE_BROWSER_TEST not set")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>fixture</title></head><body style="height:3000px">hi</body></html>`)
	}))
	defer srv.Close()

	b, err := New(&config.BrowserConfig{
		Bin:                os.Getenv("BROWSER_BIN"),
		CaptureTimeout:     30 * time.Second,
		MaxConcurrentPages: 2,
	}, nil)
	require.NoError(t, err)
	defer b.Close()

	raw, err := b.Capture(context.Background(), CaptureOptions{URL: srv.URL, FullPage: true})
	require.NoError(t, err)
	assert.Equal(t, DefaultViewportWidth, raw.Width)
	assert.GreaterOrEqual(t, raw.Height, 3000)

	res, err := b.Browse(context.Background(), BrowseOptions{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "fixture", res.PageTitle)
	assert.Equal(t, noMetaDescription, res.MetaDescription)
	assert.NotEmpty(t, res.Thumbnail)

	_, err = b.Capture(context.Background(), CaptureOptions{URL: "http://127.0.0.1:1"})
	assert.True(t, IsKind(err, NavigationFailed), "got %v", err)
}
