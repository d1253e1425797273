package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureAppender keeps everything written so tests can parse the output.
type captureAppender struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *captureAppender) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(b)
}

func (c *captureAppender) Refresh() error { return nil }

func (c *captureAppender) Close() error { return nil }

func (c *captureAppender) lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := strings.TrimRight(c.buf.String(), "\n")
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

func newCaptureLogger(cfg *LogCfg) (*CoreLogger, *captureAppender) {
	if cfg == nil {
		cfg = &LogCfg{LogLevel: DebugLevel}
	}
	l := NewLogger(cfg)
	c := &captureAppender{}
	l.AddAppender(c)
	return l, c
}

func parseLine(t *testing.T, line string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &m), "log line is not valid JSON: %s", line)
	return m
}

func TestEventEncodesTypedFields(t *testing.T) {
	l, c := newCaptureLogger(nil)

	l.Info().
		Str("transport", "udp").
		Int("pending", 3).
		Int64("durUS", 1500).
		Uint8("porder", 2).
		Uint16("rid", 4096).
		Err(errors.New("socket closed")).
		Msg("request finished")

	lines := c.lines()
	require.Len(t, lines, 1)
	m := parseLine(t, lines[0])
	assert.Equal(t, "INFO", m["level"])
	assert.Equal(t, "udp", m["transport"])
	assert.Equal(t, float64(3), m["pending"])
	assert.Equal(t, float64(1500), m["durUS"])
	assert.Equal(t, float64(2), m["porder"])
	assert.Equal(t, float64(4096), m["rid"])
	assert.Equal(t, "socket closed", m["error"])
	assert.Equal(t, "request finished", m["msg"])
	assert.NotEmpty(t, m["time"])
}

func TestErrNilIsNull(t *testing.T) {
	l, c := newCaptureLogger(nil)

	l.Debug().Err(nil).Msg("no failure")

	m := parseLine(t, c.lines()[0])
	v, ok := m["error"]
	require.True(t, ok)
	assert.Nil(t, v)
}

func TestStringEscaping(t *testing.T) {
	l, c := newCaptureLogger(nil)

	l.Info().Str("raw", "a\"b\\c\nd\te").Str("bad", "x\xffy").Msg("escaped")

	m := parseLine(t, c.lines()[0])
	assert.Equal(t, "a\"b\\c\nd\te", m["raw"])
	assert.Equal(t, "x�y", m["bad"])
}

type marshalPair struct {
	name string
	rid  uint16
}

func (p *marshalPair) MarshalLogObj(e *LogEvent) {
	e.Str("name", p.name).Uint16("rid", p.rid)
}

func TestObjEmitsNestedObject(t *testing.T) {
	l, c := newCaptureLogger(nil)

	l.Info().Obj("pair", &marshalPair{name: "client", rid: 9}).Msg("state")

	m := parseLine(t, c.lines()[0])
	nested, ok := m["pair"].(map[string]any)
	require.True(t, ok, "pair field should be a JSON object")
	assert.Equal(t, "client", nested["name"])
	assert.Equal(t, float64(9), nested["rid"])
}

func TestObjNil(t *testing.T) {
	l, c := newCaptureLogger(nil)

	l.Info().Obj("pair", nil).Msg("state")

	m := parseLine(t, c.lines()[0])
	v, ok := m["pair"]
	require.True(t, ok)
	assert.Nil(t, v)
}

func TestAnyMarshalsValue(t *testing.T) {
	l, c := newCaptureLogger(nil)

	l.Info().Any("limits", map[string]int{"burst": 8}).Msg("cfg")

	m := parseLine(t, c.lines()[0])
	assert.Equal(t, `{"burst":8}`, m["limits"])
}

func TestTimeFixedLayout(t *testing.T) {
	l, c := newCaptureLogger(nil)

	ts := time.Date(2026, 2, 3, 4, 5, 6, 7*int(time.Millisecond), time.Local)
	l.Info().Time("ts", &ts).Msg("tick")

	m := parseLine(t, c.lines()[0])
	assert.Equal(t, "2026-02-03 04:05:06.007", m["ts"])
}

func TestLevelFiltering(t *testing.T) {
	l, c := newCaptureLogger(&LogCfg{LogLevel: WarnLevel})

	l.Debug().Str("k", "v").Msg("dropped")
	l.Info().Msg("dropped too")
	l.Warn().Msg("kept")

	lines := c.lines()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "kept")
}

func TestLevelOverridePromotesCallSite(t *testing.T) {
	l, c := newCaptureLogger(&LogCfg{
		LogLevel:          ErrorLevel,
		EnabledCallerInfo: true,
		LevelOverrides:    []LevelOverride{{File: "log/log_test.go", Level: ErrorLevel}},
	})

	l.Debug().Str("k", "v").Msg("promoted site")

	lines := c.lines()
	require.Len(t, lines, 1)
	m := parseLine(t, lines[0])
	assert.Equal(t, "ERROR", m["level"])
}

func TestCallerInfoIncluded(t *testing.T) {
	l, c := newCaptureLogger(&LogCfg{LogLevel: DebugLevel, EnabledCallerInfo: true})

	l.Info().Msg("where am I")

	m := parseLine(t, c.lines()[0])
	caller, ok := m["caller"].(string)
	require.True(t, ok)
	assert.Contains(t, caller, "log_test.go")
}

func TestFatalPanicsAfterWrite(t *testing.T) {
	l, c := newCaptureLogger(nil)

	assert.Panics(t, func() { l.Fatal().Msg("going down") })
	require.Len(t, c.lines(), 1)
	assert.Contains(t, c.lines()[0], "going down")
}

func TestResetShedsOversizedBuffer(t *testing.T) {
	l, _ := newCaptureLogger(nil)

	e := newEvent(l)
	e.Reset()
	e.Str("blob", strings.Repeat("x", 16*1024))
	e.Reset()
	assert.LessOrEqual(t, e.buf.Cap(), 4096)
}

func TestFileLogging(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "r2p2_test.log")

	cfg := &LogCfg{
		LogPath:         logPath,
		LogLevel:        DebugLevel,
		FileSplitMB:     10,
		IsAsync:         false,
		FileAppender:    true,
		ConsoleAppender: false,
	}
	require.NoError(t, cfg.Validate())

	l := NewLogger(cfg)
	l.Info().Str("transport", "tcp").Msg("file sink check")
	l.Refresh()
	l.Close()

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "file sink check")
	assert.Contains(t, string(content), "INFO")
}
