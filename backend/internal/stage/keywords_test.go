package stage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestParseKeywords_OverlaysDefaults(t *testing.T) {
	kw, err := ParseKeywords([]byte(`
review: ["Polish"]
node:
  deep: ["crawl"]
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"polish"}, kw.Review)
	assert.Equal(t, []string{"crawl"}, kw.Node.Deep)
	assert.Equal(t, DefaultKeywords().Check, kw.Check)
	assert.Equal(t, DefaultKeywords().Result.Standard, kw.Result.Standard)
}

func TestParseKeywords_Invalid(t *testing.T) {
	_, err := ParseKeywords([]byte("review: {"))
	assert.Error(t, err)
}

func TestWatchKeywords_ReloadsOnChange(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "keywords.yaml")
	require.NoError(t, os.WriteFile(path, []byte("review: [\"润色\"]\n"), 0o644))
	initial, err := LoadKeywordsFile(path)
	require.NoError(t, err)
	c := NewClassifier(initial)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- WatchKeywords(ctx, path, c) }()

	// Give the watcher time to attach before the single write.
	time.Sleep(3 * reloadDebounce)
	require.NoError(t, os.WriteFile(path, []byte("review: [\"打磨\"]\n"), 0o644))
	assert.Eventually(t, func() bool {
		return c.ByContent("打磨", ModeCasual, KeyDeep) == KeyReview
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("review: {"), 0o644))
	time.Sleep(3 * reloadDebounce)
	assert.Equal(t, KeyReview, c.ByContent("打磨", ModeCasual, KeyDeep), "broken file keeps previous keywords")

	cancel()
	require.NoError(t, <-done)
}
