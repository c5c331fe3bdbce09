package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/pmezard/go-difflib/difflib"
	"gopkg.in/yaml.v3"

	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/agenttask"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/dify"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/stage"
	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/streamrouter"
)

const replayConversationID = "replay"

type replayOptions struct {
	ContextID string
	Diff      bool
	// Now stamps every applied update. Defaults to time.Now.
	Now func() time.Time
}

// snapshotStore applies updates in memory and keeps every intermediate state.
type snapshotStore struct {
	mu        sync.Mutex
	now       func() time.Time
	current   *agenttask.AgentTask
	snapshots []*agenttask.AgentTask
}

func (s *snapshotStore) Upsert(_ context.Context, u agenttask.Update) (*agenttask.AgentTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := agenttask.Apply(s.current, u, s.now())
	next.Version++
	s.current = next
	s.snapshots = append(s.snapshots, next)
	return next, nil
}

// replay feeds every event line of r through a stream router turn and
// prints one classification row per event, then the final state as YAML.
func replay(r io.Reader, w io.Writer, classifier *stage.Classifier, opts replayOptions) error {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	store := &snapshotStore{now: opts.Now}
	router := streamrouter.NewRouter(classifier, store, nil, nil, streamrouter.WithClock(opts.Now))
	turn := router.NewTurn(context.Background(), streamrouter.TurnParams{
		ConversationID: replayConversationID,
		UserID:         replayConversationID,
		ContextID:      opts.ContextID,
		Mode:           stage.ModeFromContextID(opts.ContextID),
	})

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var (
		line int
		rows []agenttask.TaskEvent
	)
	for scanner.Scan() {
		line++
		payload := bytes.TrimSpace(scanner.Bytes())
		payload = bytes.TrimPrefix(payload, []byte("data:"))
		payload = bytes.TrimSpace(payload)
		if len(payload) == 0 {
			continue
		}
		ev, err := dify.Decode(payload)
		if err != nil {
			turn.Close()
			router.Wait()
			return fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, turn.Handle(ev))
	}
	turn.Close()
	router.Wait()
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read events: %w", err)
	}

	store.mu.Lock()
	snapshots := store.snapshots
	store.mu.Unlock()

	prev := ""
	for i, row := range rows {
		fmt.Fprintf(w, "%3d  %-20s %-12s %-8s %s\n", i+1, row.Event, row.StageKey, row.Status, row.StageLabel)
		if !opts.Diff || i >= len(snapshots) {
			continue
		}
		cur, err := toYAML(snapshots[i])
		if err != nil {
			return err
		}
		if err := writeDiff(w, prev, cur, i); err != nil {
			return err
		}
		prev = cur
	}

	if len(snapshots) == 0 {
		return nil
	}
	final, err := toYAML(snapshots[len(snapshots)-1])
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "---")
	_, err = io.WriteString(w, final)
	return err
}

func toYAML(t *agenttask.AgentTask) (string, error) {
	b, err := yaml.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("failed to marshal agent task: %w", err)
	}
	return string(b), nil
}

var (
	addedColor   = color.New(color.FgGreen)
	removedColor = color.New(color.FgRed)
	headerColor  = color.New(color.FgCyan)
)

func writeDiff(w io.Writer, prev, cur string, step int) error {
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(prev),
		B:        difflib.SplitLines(cur),
		FromFile: fmt.Sprintf("state@%d", step),
		ToFile:   fmt.Sprintf("state@%d", step+1),
		Context:  1,
	})
	if err != nil {
		return fmt.Errorf("failed to diff states: %w", err)
	}
	for _, l := range strings.SplitAfter(text, "\n") {
		if l == "" {
			continue
		}
		switch {
		case strings.HasPrefix(l, "+++"), strings.HasPrefix(l, "---"), strings.HasPrefix(l, "@@"):
			headerColor.Fprint(w, l)
		case strings.HasPrefix(l, "+"):
			addedColor.Fprint(w, l)
		case strings.HasPrefix(l, "-"):
			removedColor.Fprint(w, l)
		default:
			fmt.Fprint(w, l)
		}
	}
	return nil
}
