package sigma

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eofRule = `
title: Stuck reader hit EOF
id: 4f9c43a2-45d4-4c1e-a73d-3c1f69a56c11
status: stable
logsource:
    product: readguard
detection:
    selection:
        Kind: EOF
    condition: selection
`

const rootUserRule = `
title: Stuck reader owned by root
id: 8f3b62d1-90ab-4e0f-bd21-6a7f4bd02c5a
status: stable
logsource:
    product: readguard
detection:
    selection:
        User: root
    condition: selection
`

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestDetector(t *testing.T, rules map[string]string) *Detector {
	t.Helper()
	dir := t.TempDir()
	for name, content := range rules {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}

	d, err := NewDetector(dir, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestLoadAndMatchRule(t *testing.T) {
	d := newTestDetector(t, map[string]string{"eof.yml": eofRule})
	assert.Equal(t, 1, d.RuleCount())

	matched := d.Check(context.Background(), map[string]interface{}{
		"Kind":      "EOF",
		"ProcessId": 42,
		"User":      "alice",
		"Image":     "app",
	})
	require.Len(t, matched, 1)
	assert.Equal(t, "Stuck reader hit EOF", matched[0])
}

func TestNoMatchForOtherKind(t *testing.T) {
	d := newTestDetector(t, map[string]string{"eof.yml": eofRule})

	matched := d.Check(context.Background(), map[string]interface{}{
		"Kind":  "IOError",
		"Errno": "EIO",
	})
	assert.Empty(t, matched)
}

func TestMultipleRules(t *testing.T) {
	d := newTestDetector(t, map[string]string{
		"eof.yml":  eofRule,
		"root.yml": rootUserRule,
	})
	assert.Equal(t, 2, d.RuleCount())

	matched := d.Check(context.Background(), map[string]interface{}{
		"Kind": "EOF",
		"User": "root",
	})
	assert.Len(t, matched, 2)
}

func TestNonRuleFilesSkipped(t *testing.T) {
	d := newTestDetector(t, map[string]string{
		"eof.yml":    eofRule,
		"notes.txt":  "not a rule",
		"broken.yml": "title: [unclosed",
	})
	assert.Equal(t, 1, d.RuleCount())
}

func TestReloadPicksUpNewRules(t *testing.T) {
	dir := t.TempDir()
	d, err := NewDetector(dir, quietLogger())
	require.NoError(t, err)
	defer d.Close()
	assert.Equal(t, 0, d.RuleCount())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "eof.yml"), []byte(eofRule), 0644))
	require.NoError(t, d.LoadRules())
	assert.Equal(t, 1, d.RuleCount())
}
