package manager

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hyper-ai-inc/ptymanager/internal/pool"
	"github.com/hyper-ai-inc/ptymanager/internal/pty"
	"github.com/hyper-ai-inc/ptymanager/internal/router"
)

// collectingEmitter records every exit event it receives, for assertions.
type collectingEmitter struct {
	mu     sync.Mutex
	events []TerminalExitEvent
}

func (e *collectingEmitter) EmitTerminalExit(ev TerminalExitEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *collectingEmitter) snapshot() []TerminalExitEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]TerminalExitEvent, len(e.events))
	copy(out, e.events)
	return out
}

const testSize = 80

func sizeOf(cols, rows uint16) pty.Size { return pty.Size{Cols: cols, Rows: rows} }

// drainUntil reads from ch until pred matches the accumulated output or the
// timeout elapses, returning whatever was accumulated.
func drainUntil(t *testing.T, ch router.Channel, timeout time.Duration, pred func(string) bool) string {
	t.Helper()
	var acc strings.Builder
	deadline := time.After(timeout)
	for {
		select {
		case out := <-ch:
			acc.Write(out.Data)
			if pred(acc.String()) {
				return acc.String()
			}
		case <-deadline:
			return acc.String()
		}
	}
}

func TestCreateTerminalPoolHitStreamsAfterAssignment(t *testing.T) {
	emitter := &collectingEmitter{}
	m := New(emitter)
	if err := m.WarmPool(1); err != nil {
		t.Fatalf("WarmPool: %v", err)
	}
	time.Sleep(150 * time.Millisecond) // let the pooled shell print its prompt

	ch := make(router.Channel, 64)
	if err := m.CreateTerminal("t1", "", sizeOf(100, 40), ch); err != nil {
		t.Fatalf("CreateTerminal: %v", err)
	}

	marker := "ptymanager-test-marker"
	if err := m.WriteTerminal("t1", []byte(fmt.Sprintf("echo %s\n", marker))); err != nil {
		t.Fatalf("WriteTerminal: %v", err)
	}

	got := drainUntil(t, ch, 3*time.Second, func(s string) bool { return strings.Contains(s, marker) })
	if !strings.Contains(got, marker) {
		t.Fatalf("expected output to contain %q, got %q", marker, got)
	}

	if !m.sessions.Has("t1") {
		t.Fatal("session table should contain t1 after create")
	}
}

func TestCreateTerminalPoolHitWithCwdInjectsCd(t *testing.T) {
	emitter := &collectingEmitter{}
	m := New(emitter)
	if err := m.WarmPool(1); err != nil {
		t.Fatalf("WarmPool: %v", err)
	}
	time.Sleep(150 * time.Millisecond)

	dir := t.TempDir()
	sub := filepath.Join(dir, "a b")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	ch := make(router.Channel, 64)
	if err := m.CreateTerminal("t2", sub, sizeOf(100, 40), ch); err != nil {
		t.Fatalf("CreateTerminal: %v", err)
	}

	if err := m.WriteTerminal("t2", []byte("pwd\n")); err != nil {
		t.Fatalf("WriteTerminal: %v", err)
	}

	got := drainUntil(t, ch, 3*time.Second, func(s string) bool { return strings.Contains(s, sub) })
	if !strings.Contains(got, sub) {
		t.Fatalf("expected pwd output to contain %q, got %q", sub, got)
	}
}

func TestCreateTerminalPoolHitWithQuoteInCwdEscapesCorrectly(t *testing.T) {
	emitter := &collectingEmitter{}
	m := New(emitter)
	if err := m.WarmPool(1); err != nil {
		t.Fatalf("WarmPool: %v", err)
	}
	time.Sleep(150 * time.Millisecond)

	dir := t.TempDir()
	sub := filepath.Join(dir, "x'y")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	ch := make(router.Channel, 64)
	if err := m.CreateTerminal("t3", sub, sizeOf(100, 40), ch); err != nil {
		t.Fatalf("CreateTerminal: %v", err)
	}
	if err := m.WriteTerminal("t3", []byte("pwd\n")); err != nil {
		t.Fatalf("WriteTerminal: %v", err)
	}

	got := drainUntil(t, ch, 3*time.Second, func(s string) bool { return strings.Contains(s, sub) })
	if !strings.Contains(got, sub) {
		t.Fatalf("expected pwd output to contain %q, got %q", sub, got)
	}
}

func TestCdAndClearEscapesSingleQuotes(t *testing.T) {
	got := cdAndClear("/tmp/x'y")
	want := " cd '/tmp/x'\\''y' && clear\n"
	if got != want {
		t.Fatalf("cdAndClear = %q, want %q", got, want)
	}
}

func TestCreateTerminalPoolMissSpawnsFreshAtRequestedCwd(t *testing.T) {
	emitter := &collectingEmitter{}
	m := New(emitter) // empty pool — every create is a miss

	dir := t.TempDir()
	ch := make(router.Channel, 64)
	if err := m.CreateTerminal("t4", dir, sizeOf(100, 40), ch); err != nil {
		t.Fatalf("CreateTerminal: %v", err)
	}
	if err := m.WriteTerminal("t4", []byte("pwd\n")); err != nil {
		t.Fatalf("WriteTerminal: %v", err)
	}

	got := drainUntil(t, ch, 3*time.Second, func(s string) bool { return strings.Contains(s, dir) })
	if !strings.Contains(got, dir) {
		t.Fatalf("expected pwd output to contain %q, got %q", dir, got)
	}
}

func TestCloseTerminalIsIdempotent(t *testing.T) {
	emitter := &collectingEmitter{}
	m := New(emitter)

	if err := m.CloseTerminal("never-created"); err != nil {
		t.Fatalf("CloseTerminal on unknown id should not error: %v", err)
	}

	ch := make(router.Channel, 16)
	if err := m.CreateTerminal("t5", "", sizeOf(80, 24), ch); err != nil {
		t.Fatalf("CreateTerminal: %v", err)
	}
	if err := m.CloseTerminal("t5"); err != nil {
		t.Fatalf("CloseTerminal: %v", err)
	}
	if m.sessions.Has("t5") {
		t.Fatal("session should be removed after close")
	}
	if err := m.CloseTerminal("t5"); err != nil {
		t.Fatalf("second CloseTerminal should also succeed: %v", err)
	}
}

func TestChildExitEmitsExactlyOneEvent(t *testing.T) {
	emitter := &collectingEmitter{}
	m := New(emitter)

	ch := make(router.Channel, 64)
	if err := m.CreateTerminal("t6", "", sizeOf(80, 24), ch); err != nil {
		t.Fatalf("CreateTerminal: %v", err)
	}
	if err := m.WriteTerminal("t6", []byte("exit\n")); err != nil {
		t.Fatalf("WriteTerminal: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		if len(emitter.snapshot()) > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for exit event")
		case <-time.After(20 * time.Millisecond):
		}
	}

	time.Sleep(100 * time.Millisecond) // make sure a second, spurious event isn't about to land
	events := emitter.snapshot()
	if len(events) != 1 {
		t.Fatalf("exit events = %v, want exactly one", events)
	}
	if events[0].TerminalID != "t6" {
		t.Fatalf("exit event terminal id = %q, want t6", events[0].TerminalID)
	}
	if events[0].ExitCode == nil || *events[0].ExitCode != 0 {
		t.Fatalf("exit code = %v, want 0", events[0].ExitCode)
	}
}

func TestRefreshPoolIsSilentAndRefillsToMaxSize(t *testing.T) {
	emitter := &collectingEmitter{}
	m := New(emitter)
	if err := m.WarmPool(pool.MaxSize); err != nil {
		t.Fatalf("WarmPool: %v", err)
	}

	if err := m.RefreshPool(); err != nil {
		t.Fatalf("RefreshPool: %v", err)
	}

	time.Sleep(200 * time.Millisecond)
	if len(emitter.snapshot()) != 0 {
		t.Fatalf("refresh should emit no exit events, got %v", emitter.snapshot())
	}
	if got := m.pool.Len(); got != pool.MaxSize {
		t.Fatalf("pool.Len() after refresh = %d, want %d", got, pool.MaxSize)
	}
}

func TestGetTerminalCwdUnknownIDReturnsErrNotFound(t *testing.T) {
	emitter := &collectingEmitter{}
	m := New(emitter)
	if _, _, err := m.GetTerminalCwd("nope"); err != ErrNotFound {
		t.Fatalf("GetTerminalCwd(unknown) err = %v, want ErrNotFound", err)
	}
}

func TestGetTerminalCwdDoesNotBlockConcurrentWrite(t *testing.T) {
	emitter := &collectingEmitter{}
	m := New(emitter)

	ch := make(router.Channel, 64)
	if err := m.CreateTerminal("t7", "", sizeOf(80, 24), ch); err != nil {
		t.Fatalf("CreateTerminal: %v", err)
	}

	done := make(chan struct{})
	go func() {
		_, _, _ = m.GetTerminalCwd("t7")
		close(done)
	}()

	if err := m.WriteTerminal("t7", []byte("echo still-alive\n")); err != nil {
		t.Fatalf("WriteTerminal while cwd probe in flight: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("GetTerminalCwd did not return")
	}
}
