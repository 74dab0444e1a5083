package controllers_test

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/kvantos/patchbay/internal/api"
	"github.com/kvantos/patchbay/internal/app"
	"github.com/kvantos/patchbay/internal/domain"
	"github.com/kvantos/patchbay/internal/infra/config"
	"github.com/kvantos/patchbay/internal/infra/logger"
	"github.com/kvantos/patchbay/internal/store"
)

func newTestDaemon(t *testing.T) (*httptest.Server, *app.Context) {
	t.Helper()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Patch.TargetFolder = filepath.Join(dir, "patcher")

	appCtx := app.NewContext(cfgPath, cfg, logger.New("daemon-test"))

	st, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	appCtx.Store = st

	e := echo.New()
	api.RegisterRoutes(e, appCtx)

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv, appCtx
}

func getJSON(t *testing.T, url string, out any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s returned %s", url, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatal(err)
	}
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestDaemon(t)

	var body struct {
		Status  string `json:"status"`
		Service string `json:"service"`
	}
	getJSON(t, srv.URL+"/health", &body)

	if body.Status != "healthy" || body.Service != "patcher-backend" {
		t.Errorf("unexpected health body: %+v", body)
	}
}

func TestStatusDefaultsToZeroSnapshot(t *testing.T) {
	srv, _ := newTestDaemon(t)

	var snap domain.ProgressData
	getJSON(t, srv.URL+"/status", &snap)

	if snap.Completed || snap.Progress != 0 || snap.Total != 0 {
		t.Errorf("expected a zero snapshot before any run, got %+v", snap)
	}
	if snap.Logs == nil || len(snap.Logs) != 0 {
		t.Errorf("logs must be an empty array, got %v", snap.Logs)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	srv, _ := newTestDaemon(t)

	want := domain.AppConfig{
		ServerURL:          "https://files.example.com/",
		TargetFolder:       "game",
		FileListURL:        "https://files.example.com/filelist.txt",
		DownloadSpeedLimit: 128,
	}

	resp := postJSON(t, srv.URL+"/config", want)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /config returned %s", resp.Status)
	}

	var got domain.AppConfig
	getJSON(t, srv.URL+"/config", &got)
	if got != want {
		t.Errorf("config round trip:\nsaved  %+v\nloaded %+v", want, got)
	}
}

func TestUpdateRunEndToEnd(t *testing.T) {
	content := []byte("patch me in")
	sum := sha256.Sum256(content)

	files := http.NewServeMux()
	files.HandleFunc("/filelist.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "data.bin,%s\n", hex.EncodeToString(sum[:]))
	})
	files.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "data.bin", time.Now(), bytes.NewReader(content))
	})
	fileSrv := httptest.NewServer(files)
	defer fileSrv.Close()

	srv, appCtx := newTestDaemon(t)

	resp := postJSON(t, srv.URL+"/update", map[string]any{
		"config": domain.AppConfig{
			ServerURL:    fileSrv.URL + "/files/",
			TargetFolder: appCtx.Config.Patch.TargetFolder,
			FileListURL:  fileSrv.URL + "/filelist.txt",
		},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /update returned %s", resp.Status)
	}

	var snap domain.ProgressData
	deadline := time.Now().Add(10 * time.Second)
	for {
		getJSON(t, srv.URL+"/status", &snap)
		if snap.Completed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("update never completed; last snapshot %+v", snap)
		}
		time.Sleep(20 * time.Millisecond)
	}

	if snap.Error != "" {
		t.Fatalf("update failed: %s", snap.Error)
	}
	if snap.StatusReport == nil || len(snap.StatusReport.Updated) != 1 {
		t.Fatalf("expected one updated file in the report, got %+v", snap.StatusReport)
	}

	// The history row is finalized just after the tracker turns terminal,
	// so give it a moment.
	var history struct {
		Runs []*store.UpdateRun `json:"runs"`
	}
	for {
		getJSON(t, srv.URL+"/history", &history)
		if len(history.Runs) == 1 && history.Runs[0].FinishedAt != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("run never landed in history: %+v", history.Runs)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if history.Runs[0].Updated != 1 {
		t.Errorf("expected one updated file in history, got %+v", history.Runs[0])
	}
}
