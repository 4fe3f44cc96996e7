// Copyright 2025 momentics@gmail.com
// License: Apache 2.0

package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewDefaults(t *testing.T) {
	log, err := New(Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	log.Info("defaults work")
	log.Sync()
}

func TestNewRejectsBadInput(t *testing.T) {
	if _, err := New(Config{Level: "shout"}); err == nil {
		t.Error("bad level accepted")
	}
	if _, err := New(Config{Format: "yaml"}); err == nil {
		t.Error("bad format accepted")
	}
}

func TestFileSinkWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatd.log")
	log, err := New(Config{Level: "debug", Format: "json", File: path})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	log.Info("hello file sink")
	log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"hello file sink"`) {
		t.Errorf("log file missing entry: %s", data)
	}
}
