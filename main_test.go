package main

import (
	"bytes"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hunterlog/hunt"
	"hunterlog/pota"
	"hunterlog/store"
)

type cliEnv struct {
	dir     string
	cfgPath string
	udp     net.PacketConn
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/park/K-1234", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"reference":"K-1234","name":"Acadia","grid6":"FN54wi","active":1,"locationDesc":"US-ME"}`)
	})
	mux.HandleFunc("/spot/activator", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"spotId":7,"activator":"W1AW","frequency":"14285","mode":"SSB","reference":"K-1234","locationDesc":"US-ME","grid6":"FN54wi"}]`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	udp, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}
	t.Cleanup(func() { udp.Close() })

	dir := t.TempDir()
	cfg := fmt.Sprintf(`station:
  callsign: k1abc
  grid: FN42aa
  adif_host: 127.0.0.1
  adif_port: %d
pota:
  base_url: %s
data:
  dir: %s
  adif_log: %s
  export_dir: %s
`, udp.LocalAddr().(*net.UDPAddr).Port, srv.URL, filepath.Join(dir, "data"),
		filepath.Join(dir, "hunter.adi"), dir)
	cfgPath := filepath.Join(dir, "hunterlog.yaml")
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		log.SetFlags(log.LstdFlags)
	})
	return &cliEnv{dir: dir, cfgPath: cfgPath, udp: udp}
}

func (e *cliEnv) run(t *testing.T, args ...string) []byte {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"-c", e.cfgPath}, args...))
	if err := root.Execute(); err != nil {
		t.Fatalf("%v: %v\nstderr:\n%s", args, err, errOut.String())
	}
	return out.Bytes()
}

func TestLogCommandEndToEnd(t *testing.T) {
	env := newCLIEnv(t)
	out := env.run(t, "log", "--call", "w1aw", "--ref", "k-1234", "--freq", "14285",
		"--mode", "SSB", "--rst-sent", "59", "--rst-recv", "57", "--date", "2024-05-04", "--time", "18:30")

	var res hunt.Result
	if err := json.Unmarshal(out, &res); err != nil {
		t.Fatalf("decode result %q: %v", out, err)
	}
	if !res.Success || res.QSOID == 0 {
		t.Fatalf("unexpected result %+v", res)
	}

	buf := make([]byte, 2048)
	_ = env.udp.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := env.udp.ReadFrom(buf)
	if err != nil {
		t.Fatalf("no udp datagram: %v", err)
	}
	if !strings.Contains(string(buf[:n]), "<SIG_INFO:6>K-1234\n") || !strings.Contains(string(buf[:n]), "<OPERATOR:5>K1ABC\n") {
		t.Fatalf("unexpected datagram %q", buf[:n])
	}

	var hunts huntCount
	if err := json.Unmarshal(env.run(t, "hunts", "K-1234"), &hunts); err != nil {
		t.Fatalf("decode hunts: %v", err)
	}
	if !hunts.Success || hunts.Count != 1 {
		t.Fatalf("unexpected hunts %+v", hunts)
	}

	var park parkView
	if err := json.Unmarshal(env.run(t, "park", "K-1234"), &park); err != nil {
		t.Fatalf("decode park: %v", err)
	}
	if park.Name == nil || *park.Name != "Acadia" || park.Hunts != 1 {
		t.Fatalf("unexpected park %+v", park)
	}

	if err := json.Unmarshal(env.run(t, "export"), &res); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if !res.Success || res.Count != 1 {
		t.Fatalf("unexpected export %+v", res)
	}
	matches, _ := filepath.Glob(filepath.Join(env.dir, "*_export.adi"))
	if len(matches) != 1 {
		t.Fatalf("expected one export file, got %v", matches)
	}
}

func TestLogCommandFromSpot(t *testing.T) {
	env := newCLIEnv(t)
	env.run(t, "spots")
	var res hunt.Result
	if err := json.Unmarshal(env.run(t, "log", "--spot", "7", "--time", "18:30"), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !res.Success || !strings.Contains(res.Message, "W1AW at K-1234") {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestActivatorCommandMissing(t *testing.T) {
	env := newCLIEnv(t)
	var res hunt.Result
	if err := json.Unmarshal(env.run(t, "activator", "N0CALL"), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Success || res.Message != "activator does not exists in POTA" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestLoadConfigUsesEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.yaml")
	if err := os.WriteFile(path, []byte("station:\n  callsign: n0env\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(envConfigPath, path)
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Station.Callsign != "N0ENV" || cfg.LoadedFrom != path {
		t.Fatalf("unexpected config %+v", cfg.Station)
	}
	if _, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatalf("missing config should fall back to defaults: %v", err)
	}
}

func TestMergeContactOverridesNonEmpty(t *testing.T) {
	base := hunt.ContactInput{Call: "W1AW", Freq: "7032", Mode: "CW", RSTSent: "599", Distance: 10, Bearing: 20}
	got := mergeContact(base, hunt.ContactInput{Freq: "7035", RSTSent: " "})
	if got.Call != "W1AW" || got.Freq != "7035" || got.RSTSent != "599" || got.Distance != 10 {
		t.Fatalf("unexpected merge %+v", got)
	}
}

func TestAreaResult(t *testing.T) {
	tests := []struct {
		status  pota.AreaStatus
		success bool
	}{
		{pota.AreaAlreadyPresent, true},
		{pota.AreaUnreachable, false},
		{200, true},
		{404, false},
	}
	for _, tt := range tests {
		if got := areaResult(tt.status, "parks-US-ME.json"); got.Success != tt.success {
			t.Fatalf("areaResult(%d)=%+v", tt.status, got)
		}
	}
}

func TestNewParkViewKeepsNullName(t *testing.T) {
	v := newParkView(store.Park{Reference: "K-0001", Hunts: 3})
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"name":null`) {
		t.Fatalf("expected null name, got %s", data)
	}
	v = newParkView(store.Park{Reference: "K-0001", Name: sql.NullString{String: "Acadia", Valid: true}})
	if v.Name == nil || *v.Name != "Acadia" {
		t.Fatalf("unexpected name %+v", v.Name)
	}
}
