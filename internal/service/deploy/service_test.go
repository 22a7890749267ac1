package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/splax/statichost/internal/config"
	"github.com/splax/statichost/internal/domain"
	"github.com/splax/statichost/internal/repository"
	"github.com/splax/statichost/internal/repository/jsonfile"
	"github.com/splax/statichost/internal/stage"
)

type fakeReloader struct {
	calls int
	err   error
}

func (f *fakeReloader) Ensure(_ context.Context) error {
	f.calls++
	return f.err
}

// reserveRange finds n contiguous free ports and returns the first one plus
// the open listeners holding them. Callers close listeners to free ports.
func reserveRange(t *testing.T, n int) (int, []net.Listener) {
	t.Helper()
	for base := 20000; base < 60000; base += 100 {
		listeners := make([]net.Listener, 0, n)
		ok := true
		for port := base; port < base+n; port++ {
			ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
			if err != nil {
				ok = false
				break
			}
			listeners = append(listeners, ln)
		}
		if ok {
			t.Cleanup(func() {
				for _, ln := range listeners {
					ln.Close()
				}
			})
			return base, listeners
		}
		for _, ln := range listeners {
			ln.Close()
		}
	}
	t.Fatalf("could not find %d contiguous free ports", n)
	return 0, nil
}

func newTestService(t *testing.T, portStart int) (*Service, config.Config, *fakeReloader, *jsonfile.Store) {
	t.Helper()
	cfg := config.Default(t.TempDir())
	cfg.PortStart = portStart
	cfg.PortAttempts = 50

	store, err := jsonfile.New(cfg.RecordDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	stager, err := stage.New(cfg.HTMLRoot())
	if err != nil {
		t.Fatalf("new stager: %v", err)
	}
	reloader := &fakeReloader{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, store, stager, reloader, log), cfg, reloader, store
}

func writeSite(t *testing.T) string {
	t.Helper()
	source := t.TempDir()
	files := map[string]string{
		"index.html":    "<html>demo</html>",
		"app.js":        "console.log('demo')",
		"css/style.css": "body { margin: 0 }",
	}
	for name, content := range files {
		path := filepath.Join(source, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return source
}

func TestDeployThenCleanupIsFullInverse(t *testing.T) {
	base, listeners := reserveRange(t, 1)
	for _, ln := range listeners {
		ln.Close()
	}

	svc, _, reloader, store := newTestService(t, base)
	ctx := context.Background()
	source := writeSite(t)

	record, err := svc.Deploy(ctx, source)
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if !strings.HasPrefix(record.ProjectID, "project-") {
		t.Fatalf("unexpected id format: %s", record.ProjectID)
	}
	if record.Port < base || record.Port >= base+50 {
		t.Fatalf("port %d outside configured range", record.Port)
	}
	if !strings.HasSuffix(record.URL, fmt.Sprintf(":%d", record.Port)) {
		t.Fatalf("url %s does not end with allocated port %d", record.URL, record.Port)
	}
	for _, name := range []string{"index.html", "app.js", "css/style.css"} {
		if _, err := os.Stat(filepath.Join(record.HTMLDir, name)); err != nil {
			t.Fatalf("staged file %s missing: %v", name, err)
		}
	}
	if _, err := os.Stat(record.ConfFile); err != nil {
		t.Fatalf("conf file missing: %v", err)
	}
	if reloader.calls != 1 {
		t.Fatalf("expected one reload during deploy, got %d", reloader.calls)
	}
	persisted, err := store.Get(ctx, record.ProjectID)
	if err != nil {
		t.Fatalf("get persisted record: %v", err)
	}
	if !reflect.DeepEqual(persisted, record) {
		t.Fatalf("persisted record differs:\ngot  %+v\nwant %+v", persisted, record)
	}

	if err := svc.Cleanup(ctx, record.ProjectID); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if _, err := store.Get(ctx, record.ProjectID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("record should be gone, got %v", err)
	}
	if _, err := os.Stat(record.HTMLDir); !os.IsNotExist(err) {
		t.Fatalf("staged directory should be gone")
	}
	if _, err := os.Stat(record.ConfFile); !os.IsNotExist(err) {
		t.Fatalf("conf file should be gone")
	}
	if reloader.calls != 2 {
		t.Fatalf("expected a reload during cleanup, got %d total", reloader.calls)
	}
}

func TestDeployPicksNextFreePort(t *testing.T) {
	base, listeners := reserveRange(t, 4)
	// Keep the first three ports occupied; free the fourth.
	listeners[3].Close()

	svc, _, _, _ := newTestService(t, base)
	record, err := svc.Deploy(context.Background(), writeSite(t))
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if record.Port != base+3 {
		t.Fatalf("port = %d, want %d", record.Port, base+3)
	}
	if !strings.HasSuffix(record.URL, fmt.Sprintf(":%d", base+3)) {
		t.Fatalf("url %s should end with :%d", record.URL, base+3)
	}
}

func TestCleanupUnknownIDMutatesNothing(t *testing.T) {
	base, listeners := reserveRange(t, 1)
	listeners[0].Close()

	svc, _, reloader, _ := newTestService(t, base)
	ctx := context.Background()

	record, err := svc.Deploy(ctx, writeSite(t))
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	callsBefore := reloader.calls

	if err := svc.Cleanup(ctx, "project-0"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if reloader.calls != callsBefore {
		t.Fatalf("cleanup of unknown id must not touch the proxy")
	}
	if _, err := os.Stat(record.HTMLDir); err != nil {
		t.Fatalf("existing deployment's assets were touched: %v", err)
	}
	if _, err := os.Stat(record.ConfFile); err != nil {
		t.Fatalf("existing deployment's conf was touched: %v", err)
	}
}

func TestDeployUnwindsOnReloadFailure(t *testing.T) {
	base, listeners := reserveRange(t, 1)
	listeners[0].Close()

	svc, cfg, reloader, store := newTestService(t, base)
	reloader.err = errors.New("nginx: configuration test failed")

	_, err := svc.Deploy(context.Background(), writeSite(t))
	if err == nil {
		t.Fatalf("expected deploy to fail")
	}

	records, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("no record should be persisted, found %d", len(records))
	}
	if entries, err := os.ReadDir(cfg.HTMLRoot()); err == nil && len(entries) != 0 {
		t.Fatalf("staged assets should be unwound, found %d entries", len(entries))
	}
	if entries, err := os.ReadDir(cfg.ConfDir()); err == nil && len(entries) != 0 {
		t.Fatalf("vhost files should be unwound, found %d entries", len(entries))
	}
}

func TestCleanupAllIsolatesFailures(t *testing.T) {
	base, listeners := reserveRange(t, 1)
	listeners[0].Close()

	svc, _, _, store := newTestService(t, base)
	ctx := context.Background()

	first, err := svc.Deploy(ctx, writeSite(t))
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	// A record whose staged path escapes the html root fails its cleanup
	// without blocking the rest of the batch.
	bad := &domain.Deployment{
		ProjectID:  "project-0000000000",
		Port:       base,
		URL:        fmt.Sprintf("http://localhost:%d", base),
		HTMLDir:    t.TempDir(),
		ConfFile:   "",
		SourceDir:  "/nowhere",
		DeployedAt: time.Now().Format("2006-01-02 15:04:05"),
	}
	if err := store.Put(ctx, bad); err != nil {
		t.Fatalf("put bad record: %v", err)
	}

	results, err := svc.CleanupAll(ctx)
	if err != nil {
		t.Fatalf("cleanup all: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	outcomes := map[string]error{}
	for _, result := range results {
		outcomes[result.ProjectID] = result.Err
	}
	if outcomes[bad.ProjectID] == nil {
		t.Fatalf("expected the bad record's cleanup to fail")
	}
	if outcomes[first.ProjectID] != nil {
		t.Fatalf("good record cleanup failed: %v", outcomes[first.ProjectID])
	}
	if _, err := store.Get(ctx, first.ProjectID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("good record should be removed, got %v", err)
	}
}

func TestGenerateIDSkipsTakenIDs(t *testing.T) {
	base, listeners := reserveRange(t, 1)
	listeners[0].Close()

	svc, _, _, store := newTestService(t, base)
	ctx := context.Background()

	now := time.Now().Unix()
	taken := map[string]bool{}
	for ts := now; ts < now+3; ts++ {
		id := fmt.Sprintf("project-%d", ts)
		taken[id] = true
		record := &domain.Deployment{ProjectID: id, Port: base, URL: "http://localhost", DeployedAt: "2026-08-30 12:00:00"}
		if err := store.Put(ctx, record); err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}

	id, err := svc.generateID(ctx)
	if err != nil {
		t.Fatalf("generate id: %v", err)
	}
	if taken[id] {
		t.Fatalf("generated id %s collides with an existing record", id)
	}
	if !strings.HasPrefix(id, "project-") {
		t.Fatalf("unexpected id format: %s", id)
	}
}

func TestCleanupAllIsolatesUndecodableRecord(t *testing.T) {
	base, listeners := reserveRange(t, 1)
	listeners[0].Close()

	svc, cfg, _, store := newTestService(t, base)
	ctx := context.Background()

	good, err := svc.Deploy(ctx, writeSite(t))
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	corrupt := filepath.Join(cfg.RecordDir(), "project-0000000000.json")
	if err := os.WriteFile(corrupt, []byte("{ not json"), 0o644); err != nil {
		t.Fatalf("write corrupt record: %v", err)
	}

	results, err := svc.CleanupAll(ctx)
	if err != nil {
		t.Fatalf("cleanup all: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	outcomes := map[string]error{}
	for _, result := range results {
		outcomes[result.ProjectID] = result.Err
	}
	if outcomes["project-0000000000"] == nil {
		t.Fatalf("expected the undecodable record's cleanup to fail")
	}
	if outcomes[good.ProjectID] != nil {
		t.Fatalf("good record cleanup failed: %v", outcomes[good.ProjectID])
	}
	if _, err := store.Get(ctx, good.ProjectID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("good record should be removed, got %v", err)
	}
	if _, err := os.Stat(good.HTMLDir); !os.IsNotExist(err) {
		t.Fatalf("good deployment's staged directory should be gone")
	}
	if _, err := os.Stat(good.ConfFile); !os.IsNotExist(err) {
		t.Fatalf("good deployment's conf file should be gone")
	}
}

func TestDeployFailsOnIDProbeFault(t *testing.T) {
	base, listeners := reserveRange(t, 1)
	listeners[0].Close()

	svc, cfg, _, _ := newTestService(t, base)
	if err := os.MkdirAll(cfg.RecordDir(), 0o755); err != nil {
		t.Fatalf("mkdir record dir: %v", err)
	}
	// Undecodable records at every id the probe could step through: the
	// fault must be terminal, not treated as an endless run of taken ids.
	now := time.Now().Unix()
	for ts := now; ts < now+10; ts++ {
		name := filepath.Join(cfg.RecordDir(), fmt.Sprintf("project-%d.json", ts))
		if err := os.WriteFile(name, []byte("{ not json"), 0o644); err != nil {
			t.Fatalf("write corrupt record: %v", err)
		}
	}

	if _, err := svc.Deploy(context.Background(), writeSite(t)); err == nil {
		t.Fatalf("expected deploy to fail on an undecodable candidate record")
	}
}
