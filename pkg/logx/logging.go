package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	kit "cevshenbot/internal/transport"
	"cevshenbot/pkg/tgui"
)

// ---- Config ----

type Config struct {
	Level    string
	Console  bool
	File     FileConfig
	Telegram TelegramConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

type TelegramConfig struct {
	Enabled    bool
	ThreadID   int
	MinLevel   string
	RatePerSec int
}

// TextSender is the part of the transport adapter the Telegram sink needs.
type TextSender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

// ---- Logger API ----

type Level = zerolog.Level

const (
	LevelTrace = zerolog.TraceLevel
	LevelDebug = zerolog.DebugLevel
	LevelInfo  = zerolog.InfoLevel
	LevelWarn  = zerolog.WarnLevel
	LevelError = zerolog.ErrorLevel
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Field mutates a zerolog event. Fields are applied in order; later keys win.
type Field func(e *zerolog.Event)

func String(k, v string) Field  { return func(e *zerolog.Event) { e.Str(k, v) } }
func Int(k string, v int) Field { return func(e *zerolog.Event) { e.Int(k, v) } }
func Int64(k string, v int64) Field {
	return func(e *zerolog.Event) { e.Int64(k, v) }
}
func Uint64(k string, v uint64) Field {
	return func(e *zerolog.Event) { e.Uint64(k, v) }
}
func Bool(k string, v bool) Field { return func(e *zerolog.Event) { e.Bool(k, v) } }
func Strings(k string, v []string) Field {
	return func(e *zerolog.Event) { e.Strs(k, v) }
}
func Duration(k string, v time.Duration) Field {
	return func(e *zerolog.Event) { e.Dur(k, v) }
}
func Time(k string, v time.Time) Field { return func(e *zerolog.Event) { e.Time(k, v) } }
func Any(k string, v any) Field        { return func(e *zerolog.Event) { e.Interface(k, v) } }
func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.Err(err)
		}
	}
}

// Logger is a lightweight structured logger.
//
// - If created from Service, it stays "live" across Service.Apply() calls.
// - With() returns a derived logger with additional fixed fields.
// - Zero value is a safe no-op logger.
type Logger struct {
	svc     *Service
	base    zerolog.Logger
	hasBase bool

	fields []Field
}

// Nop returns a logger that never writes anything.
func Nop() Logger {
	return Logger{base: zerolog.Nop(), hasBase: true}
}

// NewConsole creates a standalone console logger (no Service, no fanout).
// Used by the CLI and for bootstrapping before the log service exists.
func NewConsole(level string) Logger {
	zerolog.TimeFieldFormat = consoleTimeFormat
	zerolog.ErrorFieldName = "err"

	return Logger{base: consoleLogger(level), hasBase: true}
}

// NewWriter logs JSON lines to w. Tests use it to capture output.
func NewWriter(w io.Writer, level string) Logger {
	zl := zerolog.New(w).Level(parseLevel(level, zerolog.DebugLevel)).With().Timestamp().Logger()
	return Logger{base: zl, hasBase: true}
}

func (l Logger) IsZero() bool { return l.svc == nil && !l.hasBase && len(l.fields) == 0 }

func (l Logger) root() zerolog.Logger {
	if l.svc != nil {
		return l.svc.current()
	}
	if l.hasBase {
		return l.base
	}
	return zerolog.Nop()
}

func (l Logger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	cp := l
	cp.fields = append(append([]Field(nil), l.fields...), fields...)
	return cp
}

func (l Logger) Debug(msg string, fields ...Field) { l.log(zerolog.DebugLevel, msg, fields...) }
func (l Logger) Info(msg string, fields ...Field)  { l.log(zerolog.InfoLevel, msg, fields...) }
func (l Logger) Warn(msg string, fields ...Field)  { l.log(zerolog.WarnLevel, msg, fields...) }
func (l Logger) Error(msg string, fields ...Field) { l.log(zerolog.ErrorLevel, msg, fields...) }

func (l Logger) log(level zerolog.Level, msg string, fields ...Field) {
	zl := l.root()
	e := zl.WithLevel(level)
	if e == nil {
		return
	}

	if caller := shortCaller(3); caller != "" {
		e.Str(zerolog.CallerFieldName, caller)
	}
	for _, f := range l.fields {
		if f != nil {
			f(e)
		}
	}
	for _, f := range fields {
		if f != nil {
			f(e)
		}
	}
	e.Msg(msg)
}

func shortCaller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok || file == "" {
		return ""
	}
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}

// ---- Service (dynamic config + sinks) ----

// Service owns the process-wide sinks. Loggers derived from it follow every
// Apply, so a config reload changes level and outputs without rewiring.
type Service struct {
	root atomic.Value // zerolog.Logger

	mu   sync.Mutex
	file *os.File // guarded by mu
	fwd  *groupForwarder
}

// New creates the logging service, applies cfg immediately and returns the
// Service together with a live root Logger. sender may be nil.
func New(cfg Config, sender TextSender) (*Service, Logger) {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = consoleTimeFormat

	s := &Service{fwd: newGroupForwarder(sender, cfg.Telegram.ThreadID)}
	s.root.Store(consoleLogger(cfg.Level))
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func consoleLogger(level string) zerolog.Logger {
	return zerolog.New(newConsoleWriter(stdout)).Level(parseLevel(level, zerolog.InfoLevel)).With().Timestamp().Logger()
}

func (s *Service) current() zerolog.Logger {
	zl, ok := s.root.Load().(zerolog.Logger)
	if !ok {
		return zerolog.Nop()
	}
	return zl
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

// SetTelegramTarget sets the group chat that receives forwarded log lines.
// A zero chatID disables forwarding; a zero threadID keeps the current one.
func (s *Service) SetTelegramTarget(chatID int64, threadID int) {
	s.fwd.setTarget(chatID, threadID)
}

// Close stops the forwarder and closes the log file.
func (s *Service) Close() error {
	s.fwd.stop()
	s.mu.Lock()
	f := s.file
	s.file = nil
	s.mu.Unlock()
	if f != nil {
		return f.Close()
	}
	return nil
}

// Apply swaps logger outputs and levels at runtime. Safe for concurrent use.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, newConsoleWriter(stdout))
	}
	if cfg.File.Enabled {
		if f := openLogFile(cfg.File.Path); f != nil {
			s.file = f
			writers = append(writers, zerolog.SyncWriter(f))
		}
	}
	s.fwd.configure(cfg.Telegram)
	if cfg.Telegram.Enabled {
		s.fwd.start()
		writers = append(writers, s.fwd)
		if !s.fwd.hasTarget() {
			fmt.Fprintln(stderr, "logx: telegram logging enabled but telegram.group_log is not set")
		}
	}
	if len(writers) == 0 {
		writers = append(writers, newConsoleWriter(stdout))
	}

	lvl := parseLevel(cfg.Level, zerolog.InfoLevel)
	s.root.Store(zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(lvl).With().Timestamp().Logger())
}

func openLogFile(path string) *os.File {
	path = strings.TrimSpace(path)
	if path == "" {
		path = "./cevshenbot.log"
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(stderr, "logx: open log file %q: %v\n", path, err)
		return nil
	}
	return f
}

func newConsoleWriter(w io.Writer) io.Writer {
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
	cw.FormatCaller = func(i any) string {
		s, _ := i.(string)
		return s
	}
	return cw
}

// ---- Group chat forwarder (zerolog sink) ----

// Forwarded lines stay well below the 4096 rune message limit.
const (
	maxLogLine  = 3500
	maxLogValue = 600
)

type forwardItem struct {
	to   kit.ChatTarget
	text string
}

// groupForwarder is a zerolog LevelWriter that posts lines at or above a
// floor level to the log group chat. Sends happen on one worker goroutine;
// a full queue or an exhausted rate limit drops the line.
type groupForwarder struct {
	sender TextSender
	queue  chan forwardItem

	once   sync.Once
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	to       kit.ChatTarget
	limiter  *rate.Limiter
	minLevel zerolog.Level
}

func newGroupForwarder(sender TextSender, threadID int) *groupForwarder {
	return &groupForwarder{
		sender:   sender,
		queue:    make(chan forwardItem, 256),
		to:       kit.ChatTarget{ThreadID: threadID},
		limiter:  rate.NewLimiter(1, 1),
		minLevel: zerolog.WarnLevel,
	}
}

func (g *groupForwarder) configure(cfg TelegramConfig) {
	rps := max(1, cfg.RatePerSec)
	g.mu.Lock()
	g.minLevel = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	g.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	if cfg.ThreadID != 0 {
		g.to.ThreadID = cfg.ThreadID
	}
	g.mu.Unlock()
}

func (g *groupForwarder) setTarget(chatID int64, threadID int) {
	g.mu.Lock()
	g.to.ChatID = chatID
	if threadID != 0 {
		g.to.ThreadID = threadID
	}
	g.mu.Unlock()
}

func (g *groupForwarder) hasTarget() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.to.ChatID != 0
}

func (g *groupForwarder) start() {
	g.once.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		g.mu.Lock()
		g.cancel = cancel
		g.mu.Unlock()
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			g.run(ctx)
		}()
	})
}

func (g *groupForwarder) stop() {
	g.mu.Lock()
	cancel := g.cancel
	g.cancel = nil
	g.mu.Unlock()
	if cancel != nil {
		cancel()
		g.wg.Wait()
	}
}

func (g *groupForwarder) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-g.queue:
			if g.sender == nil {
				continue
			}
			sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			_, _ = g.sender.SendText(sctx, it.to, it.text, &kit.SendOptions{ParseMode: tgui.ParseMode, DisablePreview: true})
			cancel()
		}
	}
}

func (g *groupForwarder) Write(p []byte) (int, error) {
	return g.WriteLevel(zerolog.InfoLevel, p)
}

func (g *groupForwarder) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	g.mu.Lock()
	to, lim, floor := g.to, g.limiter, g.minLevel
	g.mu.Unlock()

	if to.ChatID == 0 || level < floor || !lim.Allow() {
		return len(p), nil
	}
	text := formatLogLine(p)
	if text == "" {
		return len(p), nil
	}
	select {
	case g.queue <- forwardItem{to: to, text: text}:
	default:
	}
	return len(p), nil
}

// formatLogLine renders one zerolog JSON line as Telegram HTML:
// the level in bold, the message, then one "key=value" line per field.
func formatLogLine(p []byte) string {
	raw := strings.TrimSpace(string(p))
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return tgui.Esc(tgui.TruncRunes(raw, maxLogLine)).String()
	}

	lvl, _ := m["level"].(string)
	msg, _ := m["message"].(string)
	head := tgui.Esc(tgui.TruncRunes(msg, 2*maxLogValue))
	if lvl != "" {
		head = tgui.JoinH(" ", tgui.B(strings.ToUpper(lvl)), head)
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case "time", "level", "message":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := []tgui.H{head}
	for _, k := range keys {
		v := tgui.TruncRunes(fmt.Sprint(m[k]), maxLogValue)
		lines = append(lines, tgui.JoinH("=", tgui.Code(k), tgui.Esc(v)))
	}
	return closeTruncated(tgui.Lines(lines...).String(), maxLogLine)
}

// closeTruncated cuts an HTML body at a line boundary so no tag is left
// open. The first line is short enough to always fit.
func closeTruncated(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	cut := string([]rune(s)[:n])
	if i := strings.LastIndexByte(cut, '\n'); i > 0 {
		cut = cut[:i]
	}
	return cut + "\n…"
}

func parseLevel(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return def
	}
}

// Console sinks. Replaced in tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)
