package logging

import (
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

func TestNew(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	logger, err := New("server", Options{Level: "debug", File: path})
	test.That(t, err, test.ShouldBeNil)

	logger.Debugw("loaded model", "classes", 10)
	logger.Sync()

	raw, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(raw), test.ShouldContainSubstring, `"msg":"loaded model"`)
	test.That(t, string(raw), test.ShouldContainSubstring, `"logger":"server"`)
	test.That(t, string(raw), test.ShouldContainSubstring, `"classes":10`)
}

func TestNewLevel(t *testing.T) {
	_, err := New("x", Options{Level: "loud"})
	test.That(t, err, test.ShouldNotBeNil)

	path := filepath.Join(t.TempDir(), "quiet.log")
	logger, err := New("x", Options{Level: "warn", File: path})
	test.That(t, err, test.ShouldBeNil)
	logger.Info("dropped")
	logger.Warn("kept")
	logger.Sync()

	raw, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(raw), test.ShouldNotContainSubstring, "dropped")
	test.That(t, string(raw), test.ShouldContainSubstring, "kept")
}
