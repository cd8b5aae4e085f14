package directv_test

import (
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dtvctl/internal/directv"
)

const clientAddr = "2CA17D1CD30X"

type route struct {
	status      int
	contentType string
	body        string
}

func jsonRoute(status int, body string) route {
	return route{status: status, contentType: "application/json; charset=UTF-8", body: body}
}

func fixtureRoute(t *testing.T, name string) route {
	t.Helper()
	return jsonRoute(http.StatusOK, fixture(t, name))
}

func fixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(data)
}

// fakeReceiver serves canned replies keyed by request path and records every request
type fakeReceiver struct {
	server *httptest.Server

	mu       sync.Mutex
	routes   map[string]route
	requests []*http.Request
}

func newFakeReceiver(t *testing.T, routes map[string]route) *fakeReceiver {
	t.Helper()

	fake := &fakeReceiver{routes: routes}
	fake.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fake.mu.Lock()
		fake.requests = append(fake.requests, r.Clone(r.Context()))
		rt, ok := fake.routes[r.URL.Path]
		fake.mu.Unlock()

		if !ok {
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte("Not Found"))
			return
		}

		if rt.contentType != "" {
			w.Header().Set("Content-Type", rt.contentType)
		}
		w.WriteHeader(rt.status)
		_, _ = w.Write([]byte(rt.body))
	}))
	t.Cleanup(fake.server.Close)

	return fake
}

func (f *fakeReceiver) setRoute(path string, rt route) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[path] = rt
}

func (f *fakeReceiver) calls() []*http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*http.Request(nil), f.requests...)
}

func (f *fakeReceiver) hostPort(t *testing.T) (string, int) {
	t.Helper()
	u, err := url.Parse(f.server.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func (f *fakeReceiver) receiver(t *testing.T, opts ...directv.Option) *directv.Receiver {
	t.Helper()
	host, port := f.hostPort(t)
	receiver := directv.New(host, append([]directv.Option{
		directv.WithPort(port),
		directv.WithTimeout(2 * time.Second),
	}, opts...)...)
	t.Cleanup(func() { _ = receiver.Close() })
	return receiver
}

func (f *fakeReceiver) client(t *testing.T, opts ...directv.Option) *directv.Client {
	t.Helper()
	host, port := f.hostPort(t)
	client := directv.NewClient(host, append([]directv.Option{
		directv.WithPort(port),
		directv.WithTimeout(2 * time.Second),
	}, opts...)...)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// deviceRoutes answers info and locations from the fixtures
func deviceRoutes(t *testing.T) map[string]route {
	return map[string]route{
		"/info/getVersion":   fixtureRoute(t, "info.json"),
		"/info/getLocations": fixtureRoute(t, "locations.json"),
	}
}
