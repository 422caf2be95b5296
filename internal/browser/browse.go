package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"

	"github.com/muandane/glimpse/internal/imaging"
)

const (
	noMetaDescription = "No Meta Description"
	browseQuality     = 85
	browseThumbnail   = 450
)

type BrowseOptions struct {
	URL               string
	Method            string
	PostData          string
	HideCookieBanners bool
}

type NetworkEvent struct {
	UUID           string                       `json:"uuid"`
	Network        string                       `json:"network"`
	URL            string                       `json:"url"`
	Method         string                       `json:"method,omitempty"`
	Status         int                          `json:"status,omitempty"`
	ResourceType   string                       `json:"resource_type"`
	Headers        map[string]string            `json:"headers,omitempty"`
	ResponseSize   float64                      `json:"response_size,omitempty"`
	MIMEType       string                       `json:"mime_type,omitempty"`
	Server         string                       `json:"server,omitempty"`
	Protocol       string                       `json:"protocol,omitempty"`
	RedirectedFrom string                       `json:"redirected_from,omitempty"`
	Timing         *proto.NetworkResourceTiming `json:"timing,omitempty"`
}

type LogEntry struct {
	ConsoleMessage  string `json:"console_message,omitempty"`
	JavascriptError string `json:"javascript_error,omitempty"`
	Warning         string `json:"warning,omitempty"`
	Error           string `json:"error,omitempty"`
}

type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"http_only"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"same_site,omitempty"`
}

type Redirect struct {
	Step         int    `json:"step"`
	From         string `json:"from"`
	To           string `json:"to"`
	StatusCode   int    `json:"status_code"`
	ResourceType string `json:"resource_type"`
	Server       string `json:"server,omitempty"`
}

type PerformanceMetrics struct {
	PerformanceTiming map[string]float64 `json:"performance_timing"`
}

// BrowseResult describes everything observed while loading a page.
// Screenshot and Thumbnail are JPEG and marshal as base64.
type BrowseResult struct {
	URL                string             `json:"url"`
	FinalURL           string             `json:"final_url"`
	PageTitle          string             `json:"page_title"`
	MetaDescription    string             `json:"meta_description"`
	NetworkData        []NetworkEvent     `json:"network_data"`
	Logs               []LogEntry         `json:"logs"`
	Cookies            []Cookie           `json:"cookies"`
	Redirects          []Redirect         `json:"redirects"`
	PerformanceMetrics PerformanceMetrics `json:"performance_metrics"`
	Screenshot         []byte             `json:"screenshot"`
	Thumbnail          []byte             `json:"thumbnail"`
}

// recorder collects page events. Callbacks run on rod's event goroutine.
type recorder struct {
	mu        sync.Mutex
	ids       map[proto.NetworkRequestID]string
	network   []NetworkEvent
	logs      []LogEntry
	redirects []Redirect
}

func newRecorder() *recorder {
	return &recorder{ids: map[proto.NetworkRequestID]string{}}
}

func (r *recorder) request(e *proto.NetworkRequestWillBeSent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var from string
	if e.RedirectResponse != nil {
		from = e.RedirectResponse.URL
		r.redirects = append(r.redirects, Redirect{
			Step:         len(r.redirects) + 1,
			From:         from,
			To:           e.Request.URL,
			StatusCode:   e.RedirectResponse.Status,
			ResourceType: string(e.Type),
			Server:       serverAddr(e.RedirectResponse),
		})
	}

	// CDP keeps the request id across redirect hops; each hop gets its own uuid.
	id := uuid.NewString()
	r.ids[e.RequestID] = id
	r.network = append(r.network, NetworkEvent{
		UUID:           id,
		Network:        "request",
		URL:            e.Request.URL,
		Method:         e.Request.Method,
		ResourceType:   string(e.Type),
		Headers:        flattenHeaders(e.Request.Headers),
		RedirectedFrom: from,
	})
}

func (r *recorder) response(e *proto.NetworkResponseReceived) {
	if e.Response == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.network = append(r.network, NetworkEvent{
		UUID:         r.ids[e.RequestID],
		Network:      "response",
		URL:          e.Response.URL,
		Status:       e.Response.Status,
		ResourceType: string(e.Type),
		Headers:      flattenHeaders(e.Response.Headers),
		ResponseSize: e.Response.EncodedDataLength,
		MIMEType:     e.Response.MIMEType,
		Server:       serverAddr(e.Response),
		Protocol:     e.Response.Protocol,
		Timing:       e.Response.Timing,
	})
}

func (r *recorder) console(e *proto.RuntimeConsoleAPICalled) {
	parts := make([]string, 0, len(e.Args))
	for _, arg := range e.Args {
		switch {
		case arg.Description != "":
			parts = append(parts, arg.Description)
		case arg.Value.Nil():
			parts = append(parts, string(arg.Type))
		default:
			parts = append(parts, arg.Value.Str())
		}
	}
	r.log(LogEntry{ConsoleMessage: strings.Join(parts, " ")})
}

func (r *recorder) exception(e *proto.RuntimeExceptionThrown) {
	if e.ExceptionDetails == nil {
		return
	}
	msg := e.ExceptionDetails.Text
	if ex := e.ExceptionDetails.Exception; ex != nil && ex.Description != "" {
		msg = ex.Description
	}
	r.log(LogEntry{JavascriptError: msg})
}

func (r *recorder) log(entry LogEntry) {
	r.mu.Lock()
	r.logs = append(r.logs, entry)
	r.mu.Unlock()
}

// Browse loads a page and reports its metadata, traffic and logs. A
// navigation that runs out of time is logged and the page is described as
// far as it got.
func (b *Browser) Browse(ctx context.Context, opts BrowseOptions) (*BrowseResult, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	s, err := b.openSession(ctx, DefaultViewportWidth, DefaultViewportHeight)
	if err != nil {
		return nil, captureErr(ctx, RenderFailed, opts.URL, err)
	}
	defer s.release()
	page := s.page

	rec := newRecorder()
	go page.EachEvent(rec.request, rec.response, rec.console, rec.exception)()

	if strings.EqualFold(opts.Method, http.MethodPost) && opts.PostData != "" {
		router, err := rewriteDocumentRequest(page, http.MethodPost, opts.PostData)
		if err != nil {
			return nil, captureErr(ctx, NavigationFailed, opts.URL, err)
		}
		defer router.Stop()
	}

	// Navigation may use half of the budget, the rest is kept for reading the page.
	navPage := page.Timeout(b.timeout / 2)
	if err := navigate(navPage, opts.URL); err != nil {
		if !isTimeout(navPage.GetContext(), err) {
			return nil, captureErr(ctx, NavigationFailed, opts.URL, err)
		}
		rec.log(LogEntry{ConsoleMessage: "Navigation timed out"})
	}
	navPage.CancelTimeout()

	if opts.HideCookieBanners {
		if err := HideCookieBanners(page); err != nil {
			rec.log(LogEntry{Warning: fmt.Sprintf("hide cookie banners: %v", err)})
		}
	}

	result := &BrowseResult{URL: opts.URL, FinalURL: opts.URL, MetaDescription: noMetaDescription}
	if info, err := page.Info(); err == nil {
		result.FinalURL = info.URL
		result.PageTitle = info.Title
	}

	if html, err := page.HTML(); err == nil {
		title, desc := describe(html)
		if title != "" {
			result.PageTitle = title
		}
		if desc != "" {
			result.MetaDescription = desc
		}
	} else {
		rec.log(LogEntry{Warning: fmt.Sprintf("read page html: %v", err)})
	}

	timing, err := performanceTiming(page)
	if err != nil {
		rec.log(LogEntry{Warning: fmt.Sprintf("read performance timing: %v", err)})
	}
	result.PerformanceMetrics.PerformanceTiming = timing

	cookies, err := page.Cookies(nil)
	if err != nil {
		rec.log(LogEntry{Warning: fmt.Sprintf("read cookies: %v", err)})
	}
	result.Cookies = convertCookies(cookies)

	shot, err := page.Screenshot(false, &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng})
	if err != nil {
		return nil, captureErr(ctx, RenderFailed, opts.URL, err)
	}
	set, err := imaging.BuildDerivatives(
		imaging.Raw{Bytes: shot, Width: DefaultViewportWidth, Height: DefaultViewportHeight},
		imaging.Options{Quality: browseQuality, ThumbnailMaxDim: browseThumbnail, Format: imaging.JPEG},
	)
	if err != nil {
		return nil, err
	}
	result.Screenshot = set.Full.Bytes
	result.Thumbnail = set.Thumbnail.Bytes

	rec.mu.Lock()
	result.NetworkData = append([]NetworkEvent{}, rec.network...)
	result.Logs = append([]LogEntry{}, rec.logs...)
	result.Redirects = append([]Redirect{}, rec.redirects...)
	rec.mu.Unlock()

	return result, nil
}

// rewriteDocumentRequest turns the first document request into method with
// body. Later documents pass through untouched.
func rewriteDocumentRequest(page *rod.Page, method, body string) (*rod.HijackRouter, error) {
	router := page.HijackRequests()
	var once sync.Once
	err := router.Add("*", proto.NetworkResourceTypeDocument, func(h *rod.Hijack) {
		rewritten := false
		once.Do(func() {
			headers := []*proto.FetchHeaderEntry{{Name: "Content-Type", Value: "application/x-www-form-urlencoded"}}
			for name, value := range h.Request.Headers() {
				if strings.EqualFold(name, "Content-Type") {
					continue
				}
				headers = append(headers, &proto.FetchHeaderEntry{Name: name, Value: value.Str()})
			}
			h.ContinueRequest(&proto.FetchContinueRequest{
				Method:   method,
				PostData: []byte(body),
				Headers:  headers,
			})
			rewritten = true
		})
		if !rewritten {
			h.ContinueRequest(&proto.FetchContinueRequest{})
		}
	})
	if err != nil {
		return nil, err
	}
	go router.Run()
	return router, nil
}

// describe pulls the title and meta description out of rendered markup.
func describe(html string) (title, description string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", ""
	}
	title = strings.TrimSpace(doc.Find("title").First().Text())
	description, _ = doc.Find(`meta[name="description"]`).First().Attr("content")
	return title, strings.TrimSpace(description)
}

const timingJS = `() => JSON.stringify(window.performance.timing.toJSON())`

func performanceTiming(page *rod.Page) (map[string]float64, error) {
	res, err := page.Eval(timingJS)
	if err != nil {
		return map[string]float64{}, err
	}
	timing := map[string]float64{}
	if err := json.Unmarshal([]byte(res.Value.Str()), &timing); err != nil {
		return map[string]float64{}, err
	}
	return timing, nil
}

func convertCookies(in []*proto.NetworkCookie) []Cookie {
	out := make([]Cookie, 0, len(in))
	for _, c := range in {
		cookie := Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		}
		if !c.Session {
			cookie.Expires = float64(c.Expires)
		}
		out = append(out, cookie)
	}
	return out
}

func flattenHeaders(h proto.NetworkHeaders) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v.Str()
	}
	return out
}

func serverAddr(r *proto.NetworkResponse) string {
	if r.RemoteIPAddress == "" {
		return ""
	}
	if r.RemotePort != nil {
		return fmt.Sprintf("%s:%d", r.RemoteIPAddress, *r.RemotePort)
	}
	return r.RemoteIPAddress
}
