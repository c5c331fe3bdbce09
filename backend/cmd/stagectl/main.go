// Command stagectl inspects stage classification offline: it classifies
// answer text and replays recorded engine event streams.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kingpin/v2"

	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/stage"
)

var (
	app      = kingpin.New("stagectl", "Inspect procurement stage classification")
	keywords = app.Flag("keywords", "Keyword YAML file overriding the built-in lists").Short('k').ExistingFile()

	classifyCmd  = app.Command("classify", "Classify a piece of answer text")
	classifyMode = classifyCmd.Flag("mode", "casual or standard").Default(string(stage.ModeCasual)).Enum(string(stage.ModeCasual), string(stage.ModeStandard))
	classifyLast = classifyCmd.Flag("last", "Stage of the previous event").Default(string(stage.KeyReceive)).String()
	classifyText = classifyCmd.Arg("text", "Answer text").Required().String()

	replayCmd     = app.Command("replay", "Replay a JSONL file of engine events")
	replayFile    = replayCmd.Arg("file", "JSONL file, one engine event per line; - for stdin").Default("-").String()
	replayContext = replayCmd.Flag("context", "Chat context id").Default("casual_chat").String()
	replayDiff    = replayCmd.Flag("diff", "Print a diff of the agent task after every event").Bool()
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	classifier, err := newClassifier(*keywords)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading keywords: %v\n", err)
		os.Exit(1)
	}

	switch command {
	case classifyCmd.FullCommand():
		mode := stage.Mode(*classifyMode)
		key := classifier.ByContent(*classifyText, mode, stage.Key(*classifyLast))
		fmt.Printf("%s\t%s\n", key, stage.Label(mode, key))
	case replayCmd.FullCommand():
		opts := replayOptions{ContextID: *replayContext, Diff: *replayDiff}
		if err := replayFrom(*replayFile, os.Stdin, os.Stdout, classifier, opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error replaying events: %v\n", err)
			os.Exit(1)
		}
	}
}

// replayFrom replays path, or stdin when path is "-". The file is closed
// before returning.
func replayFrom(path string, stdin io.Reader, w io.Writer, classifier *stage.Classifier, opts replayOptions) error {
	if path == "-" {
		return replay(stdin, w, classifier, opts)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return replay(f, w, classifier, opts)
}

func newClassifier(path string) (*stage.Classifier, error) {
	if path == "" {
		return stage.NewClassifier(stage.DefaultKeywords()), nil
	}
	kw, err := stage.LoadKeywordsFile(path)
	if err != nil {
		return nil, err
	}
	return stage.NewClassifier(kw), nil
}
