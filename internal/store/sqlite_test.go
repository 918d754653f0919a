// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers file creation, reopen durability, migrations and the result column encoding

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestSQLiteStore_ReopenKeepsActions(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if err := store.CreateAgent(ctx, &Agent{ID: "agent-1", LastOnline: baseTime}); err != nil {
		t.Fatalf("CreateAgent failed: %v", err)
	}
	action := &Action{
		ID:        "act-1",
		AgentID:   "agent-1",
		CreatedAt: baseTime,
		Timeout:   1500 * time.Millisecond,
		Kind:      KindPing,
		State:     StatePending,
	}
	if err := store.CreateAction(ctx, action, PingCommand{Data: "ping"}); err != nil {
		t.Fatalf("CreateAction failed: %v", err)
	}
	if err := store.MarkDispatched(ctx, "act-1", baseTime.Add(time.Second)); err != nil {
		t.Fatalf("MarkDispatched failed: %v", err)
	}
	store.Close()

	// Migrations and schema creation must be idempotent across restarts
	store, err = NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopening store failed: %v", err)
	}
	defer store.Close()

	got, err := store.GetDispatchedAction(ctx, "agent-1")
	if err != nil {
		t.Fatalf("GetDispatchedAction failed: %v", err)
	}
	if got.ID != "act-1" {
		t.Errorf("dispatched action = %q, want act-1", got.ID)
	}
	if got.Timeout != 1500*time.Millisecond {
		t.Errorf("Timeout = %v, want 1.5s", got.Timeout)
	}
	deadline, ok := got.Deadline()
	if !ok || !deadline.Equal(baseTime.Add(2500*time.Millisecond)) {
		t.Errorf("Deadline() = %v, %v; want started_at + timeout", deadline, ok)
	}
}

func TestSQLiteStore_TimestampsSortLexically(t *testing.T) {
	early := formatTime(time.Date(2026, 1, 1, 0, 0, 0, 5, time.UTC))
	late := formatTime(time.Date(2026, 1, 1, 0, 0, 0, 40, time.UTC))
	if !(early < late) {
		t.Errorf("formatTime not lexically ordered: %q >= %q", early, late)
	}

	parsed, err := parseTime(early)
	if err != nil {
		t.Fatalf("parseTime failed: %v", err)
	}
	if parsed.Nanosecond() != 5 {
		t.Errorf("parsed nanoseconds = %d, want 5", parsed.Nanosecond())
	}
}

func TestResultEncoding(t *testing.T) {
	tests := []struct {
		name   string
		result Result
	}{
		{"pong", PongResult{Data: "ping"}},
		{"purge", PurgeResult{}},
		{"shell", ShellResult{Code: 127, Stdout: []byte("a\x00b"), Stderr: []byte("not found\n")}},
		{"shell negative code", ShellResult{Code: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := EncodeResult(tt.result)
			if err != nil {
				t.Fatalf("EncodeResult failed: %v", err)
			}
			again, err := EncodeResult(tt.result)
			if err != nil {
				t.Fatalf("EncodeResult failed: %v", err)
			}
			if string(b) != string(again) {
				t.Error("encoding is not deterministic")
			}

			got, err := DecodeResult(b)
			if err != nil {
				t.Fatalf("DecodeResult failed: %v", err)
			}
			if got.Kind() != tt.result.Kind() {
				t.Errorf("Kind = %q, want %q", got.Kind(), tt.result.Kind())
			}
			if sr, ok := tt.result.(ShellResult); ok {
				gr := got.(ShellResult)
				if gr.Code != sr.Code || string(gr.Stdout) != string(sr.Stdout) || string(gr.Stderr) != string(sr.Stderr) {
					t.Errorf("shell result = %+v, want %+v", gr, sr)
				}
			} else if got != tt.result {
				t.Errorf("result = %+v, want %+v", got, tt.result)
			}
		})
	}
}

func TestResultEncoding_Nil(t *testing.T) {
	b, err := EncodeResult(nil)
	if err != nil || b != nil {
		t.Fatalf("EncodeResult(nil) = %v, %v; want nil, nil", b, err)
	}
	r, err := DecodeResult(nil)
	if err != nil || r != nil {
		t.Fatalf("DecodeResult(nil) = %v, %v; want nil, nil", r, err)
	}
}

func TestResultEncoding_Garbage(t *testing.T) {
	if _, err := DecodeResult([]byte{0xff, 0x00}); err == nil {
		t.Error("DecodeResult accepted garbage")
	}
}
