package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestBuildWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := Build(Config{Level: "debug", Component: "pipeline"}, &buf)
	l.Debug().Str("url", "a.fgb").Msg("extent cache hit")

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("not json: %v (%s)", err, buf.String())
	}
	if got["msg"] != "extent cache hit" || got["component"] != "pipeline" || got["url"] != "a.fgb" {
		t.Fatalf("unexpected entry: %v", got)
	}
	if _, ok := got["timestamp"]; !ok {
		t.Fatalf("missing timestamp: %v", got)
	}
}

func TestBuildRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := Build(Config{Level: "warn"}, &buf)
	l.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("DEBUG") != zerolog.DebugLevel || ParseLevel("") != zerolog.InfoLevel {
		t.Fatal("unexpected level mapping")
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := Build(Config{}, &buf)
	l := FromContext(WithRequestID(context.Background(), "abc"), base)
	l.Info().Msg("x")
	if !bytes.Contains(buf.Bytes(), []byte(`"request_id":"abc"`)) {
		t.Fatalf("missing request id: %s", buf.String())
	}
}
