package clog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/fatih/color"
)

// color.Output and color.NoColor are package globals.
var colorMu sync.Mutex

type TextHandlerConfig struct {
	Color bool
	Level *slog.Level
}

type TextHandlerOption func(*TextHandlerConfig)

func WithColor(c bool) TextHandlerOption {
	return func(cfg *TextHandlerConfig) {
		cfg.Color = c
	}
}

func WithLevel(level slog.Level) TextHandlerOption {
	return func(cfg *TextHandlerConfig) {
		cfg.Level = &level
	}
}

// TextHandler renders one colored header line per record followed by the
// remaining attributes, one per line. The leading columns are pulled out of
// the attribute set in order.
type TextHandler struct {
	cfg     TextHandlerConfig
	columns []string
	quoted  bool
	groups  []string
	attrs   []slog.Attr
	w       io.Writer
}

// NewConnectTextHandler lays records out for connect procedures.
func NewConnectTextHandler(w io.Writer, opts ...TextHandlerOption) *TextHandler {
	return newTextHandler(w, []string{"method", "stream_type", "procedure", "conversation_id"}, true, opts)
}

// NewHTTPTextHandler lays records out for plain HTTP routes such as the chat
// stream endpoint.
func NewHTTPTextHandler(w io.Writer, opts ...TextHandlerOption) *TextHandler {
	return newTextHandler(w, []string{"proto", "method", "procedure", "status"}, false, opts)
}

func newTextHandler(w io.Writer, columns []string, quoted bool, opts []TextHandlerOption) *TextHandler {
	cfg := TextHandlerConfig{
		Color: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &TextHandler{
		cfg:     cfg,
		columns: columns,
		quoted:  quoted,
		w:       w,
	}
}

func (h *TextHandler) clone() *TextHandler {
	nh := *h
	nh.groups = append([]string(nil), h.groups...)
	nh.attrs = append([]slog.Attr(nil), h.attrs...)
	return &nh
}

func (h *TextHandler) Enabled(_ context.Context, l slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.cfg.Level != nil {
		minLevel = h.cfg.Level.Level()
	}
	return l >= minLevel
}

func (h *TextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := h.clone()
	h2.groups = append(h2.groups, name)
	return h2
}

func (h *TextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := h.clone()
	nh.attrs = append(nh.attrs, attrs...)
	return nh
}

func (h *TextHandler) Handle(_ context.Context, record slog.Record) error {
	colorMu.Lock()
	defer colorMu.Unlock()

	color.NoColor = !h.cfg.Color
	buf := bytes.NewBuffer(make([]byte, 0, 1024))
	color.Output = buf
	defer color.Unset()

	c := color.New()
	if _, err := c.Printf("%s ", record.Time.Format(time.RFC3339)); err != nil {
		return fmt.Errorf("can't write time: %w", err)
	}
	if _, err := levelColor(record.Level).Printf("%s ", record.Level); err != nil {
		return fmt.Errorf("can't write level: %w", err)
	}

	kv := map[string]slog.Value{}
	for _, attr := range h.attrs {
		kv[attr.Key] = attr.Value
	}
	record.Attrs(func(attr slog.Attr) bool {
		kv[attr.Key] = attr.Value
		return true
	})
	for _, key := range h.columns {
		if err := printColumn(c, kv, key); err != nil {
			return err
		}
	}

	c = color.New(color.FgGreen)
	quote := ""
	if h.quoted {
		quote = "\""
	}
	if v, ok := kv["code"]; ok && h.quoted {
		delete(kv, "code")
		if _, err := c.Printf("%s[%s] %s%s", quote, v, record.Message, quote); err != nil {
			return fmt.Errorf("can't write message: %w", err)
		}
	} else if _, err := c.Printf("%s%s%s", quote, record.Message, quote); err != nil {
		return fmt.Errorf("can't write message: %w", err)
	}
	if e, ok := kv[ErrorAttributeKey]; ok {
		delete(kv, ErrorAttributeKey)
		if _, err := color.New(color.FgRed).Printf(" %s%s%s", quote, e, quote); err != nil {
			return fmt.Errorf("can't write err: %w", err)
		}
	}
	if _, err := buf.WriteString("\n"); err != nil {
		return err
	}

	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(buf, "    %s=%s\n", k, kv[k]); err != nil {
			return fmt.Errorf("can't write %s: %w", k, err)
		}
	}
	_, err := h.w.Write(buf.Bytes())
	return err
}

func levelColor(l slog.Level) *color.Color {
	switch l {
	case slog.LevelDebug:
		return color.New(color.FgCyan)
	case slog.LevelInfo:
		return color.New(color.FgBlue)
	case slog.LevelWarn:
		return color.New(color.FgYellow)
	case slog.LevelError:
		return color.New(color.FgRed)
	}
	return color.New()
}

func printColumn(c *color.Color, kv map[string]slog.Value, key string) error {
	if v, ok := kv[key]; ok {
		if _, err := c.Printf("%s ", v); err != nil {
			return fmt.Errorf("can't write %s: %w", key, err)
		}
		delete(kv, key)
	}
	return nil
}
