package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RedCat17/mudrets-bot/internal/config"
	"github.com/RedCat17/mudrets-bot/internal/model"
	"github.com/RedCat17/mudrets-bot/internal/snapshot"
	"gopkg.in/yaml.v3"
)

func TestWriteOutFormats(t *testing.T) {
	st := model.Stats{NS: "chat", Order: 2, MessagesLearned: 3}
	text := func(w io.Writer) { io.WriteString(w, "plain\n") }

	var buf bytes.Buffer
	if err := writeOut(&buf, "json", st, text); err != nil {
		t.Fatalf("json: %v", err)
	}
	var got model.Stats
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("json output does not parse: %v\n%s", err, buf.String())
	}
	if got != st {
		t.Errorf("json round trip = %+v, want %+v", got, st)
	}

	buf.Reset()
	if err := writeOut(&buf, "yaml", st, text); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	got = model.Stats{}
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("yaml output does not parse: %v\n%s", err, buf.String())
	}
	if got != st {
		t.Errorf("yaml round trip = %+v, want %+v", got, st)
	}

	buf.Reset()
	if err := writeOut(&buf, "text", st, text); err != nil {
		t.Fatalf("text: %v", err)
	}
	if buf.String() != "plain\n" {
		t.Errorf("text output = %q", buf.String())
	}
}

func TestWriteOutTextFallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := writeOut(&buf, "text", map[string]bool{"ok": true}, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"ok": true`) {
		t.Errorf("expected JSON fallback, got %q", buf.String())
	}
}

func TestRedact(t *testing.T) {
	cfg := config.Default()
	cfg.Telegram.Token = "123:secret"
	cfg.Matrix.AccessToken = "syt_secret"

	out := redact(cfg)
	if strings.Contains(out.Telegram.Token, "secret") || strings.Contains(out.Matrix.AccessToken, "secret") {
		t.Errorf("secrets not masked: %+v %+v", out.Telegram, out.Matrix)
	}
	if cfg.Telegram.Token != "123:secret" {
		t.Error("redact modified its argument")
	}

	empty := redact(config.Default())
	if empty.Telegram.Token != "" {
		t.Errorf("empty token should stay empty, got %q", empty.Telegram.Token)
	}
}

func TestOpenBackendSQLite(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "nested", "bot.db")

	backend, s, err := openBackend(cfg)
	if err != nil {
		t.Fatalf("openBackend: %v", err)
	}
	if s == nil {
		t.Fatal("sqlite driver should return the store")
	}
	defer s.Close()
	if !backend.Incremental() {
		t.Error("sqlite backend should save incrementally")
	}
}

func TestOpenBackendFile(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Driver = config.DriverFile
	cfg.Storage.Format = "yaml"
	cfg.Storage.Path = filepath.Join(t.TempDir(), "snapshots")

	backend, s, err := openBackend(cfg)
	if err != nil {
		t.Fatalf("openBackend: %v", err)
	}
	if s != nil {
		t.Error("file driver should not return a sqlite store")
	}
	fb, ok := backend.(*snapshot.FileBackend)
	if !ok {
		t.Fatalf("backend = %T, want *snapshot.FileBackend", backend)
	}
	if got := fb.Path("chat"); filepath.Ext(got) != ".yaml" {
		t.Errorf("Path = %q, want a .yaml file", got)
	}
}

func TestAppStateIsNilWithoutStore(t *testing.T) {
	a := &app{cfg: config.Default()}
	if a.state() != nil {
		t.Error("state() should be a nil interface for the file driver")
	}
}
