package provider

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
)

type fakeConn struct {
	tools    []ToolInfo
	toolsErr error

	mu     sync.Mutex
	calls  []string
	args   []map[string]any
	closed int
}

func (c *fakeConn) Tools(ctx context.Context) ([]ToolInfo, error) {
	return c.tools, c.toolsErr
}

func (c *fakeConn) Call(ctx context.Context, name string, args map[string]any) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, name)
	c.args = append(c.args, args)
	return "result of " + name, nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

type fakeLauncher struct {
	conns    map[string]*fakeConn
	failOn   string
	launched []string
}

func (l *fakeLauncher) Launch(ctx context.Context, spec Spec) (Conn, error) {
	l.launched = append(l.launched, spec.Name)
	if spec.Name == l.failOn {
		return nil, errors.New("boom")
	}
	conn, ok := l.conns[spec.Name]
	if !ok {
		return nil, errors.New("unknown provider")
	}
	return conn, nil
}

func tools(names ...string) []ToolInfo {
	out := make([]ToolInfo, len(names))
	for i, n := range names {
		out[i] = ToolInfo{Name: n, Description: n + " tool"}
	}
	return out
}

func newFakes() (*fakeLauncher, []Spec) {
	l := &fakeLauncher{conns: map[string]*fakeConn{
		"modeling": {tools: tools("validate_data_model", "get_mermaid_config_str")},
		"cypher":   {tools: tools("get_neo4j_schema", "read_neo4j_cypher", "write_neo4j_cypher")},
	}}
	specs := []Spec{
		{Name: "modeling", Command: "uvx"},
		{Name: "cypher", Command: "uvx"},
	}
	return l, specs
}

func TestAcquire_ExposesCapabilities(t *testing.T) {
	l, specs := newFakes()
	scope, err := NewRegistry(l).Acquire(context.Background(), specs)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer scope.Release()

	want := []string{
		"get_mermaid_config_str",
		"get_neo4j_schema",
		"read_neo4j_cypher",
		"validate_data_model",
		"write_neo4j_cypher",
	}
	if got := scope.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}

	c, err := scope.Lookup("write_neo4j_cypher")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if c.ProviderName() != "cypher" {
		t.Errorf("ProviderName() = %q, want %q", c.ProviderName(), "cypher")
	}
}

func TestLookup_Unknown(t *testing.T) {
	l, specs := newFakes()
	scope, err := NewRegistry(l).Acquire(context.Background(), specs)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer scope.Release()

	_, err = scope.Lookup("drop_database")
	if !errors.Is(err, ErrCapabilityUnavailable) {
		t.Fatalf("Lookup() error = %v, want ErrCapabilityUnavailable", err)
	}
	var ue *UnavailableError
	if !errors.As(err, &ue) || !reflect.DeepEqual(ue.Names, []string{"drop_database"}) {
		t.Errorf("UnavailableError.Names = %v", ue)
	}
}

func TestEnsure_SameSetTwiceLaunchesOnce(t *testing.T) {
	l, specs := newFakes()
	scope, err := NewRegistry(l).Acquire(context.Background(), specs)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer scope.Release()

	if err := scope.Ensure(context.Background(), specs...); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if got := scope.Launches(); got != 2 {
		t.Errorf("Launches() = %d, want 2", got)
	}
	if len(l.launched) != 2 {
		t.Errorf("launcher called %d times, want 2", len(l.launched))
	}
}

func TestBind_NoPartialBinding(t *testing.T) {
	l, specs := newFakes()
	scope, err := NewRegistry(l).Acquire(context.Background(), specs)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer scope.Release()

	caps, err := scope.Bind("get_neo4j_schema", "missing_a", "read_neo4j_cypher", "missing_b")
	if caps != nil {
		t.Errorf("Bind() returned %d capabilities on failure, want none", len(caps))
	}
	var ue *UnavailableError
	if !errors.As(err, &ue) {
		t.Fatalf("Bind() error = %v, want *UnavailableError", err)
	}
	if want := []string{"missing_a", "missing_b"}; !reflect.DeepEqual(ue.Names, want) {
		t.Errorf("missing = %v, want %v", ue.Names, want)
	}

	caps, err = scope.Bind("read_neo4j_cypher", "get_neo4j_schema")
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if caps[0].Name() != "read_neo4j_cypher" || caps[1].Name() != "get_neo4j_schema" {
		t.Errorf("Bind() order = [%s %s]", caps[0].Name(), caps[1].Name())
	}
}

func TestRelease_ClosesEachProviderOnce(t *testing.T) {
	l, specs := newFakes()
	scope, err := NewRegistry(l).Acquire(context.Background(), specs)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if err := scope.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := scope.Release(); err != nil {
		t.Fatalf("second Release() error = %v", err)
	}

	for name, conn := range l.conns {
		if conn.closed != 1 {
			t.Errorf("provider %s closed %d times, want 1", name, conn.closed)
		}
	}
	for _, p := range scope.Providers() {
		if p.State() != StateTerminated {
			t.Errorf("provider %s state = %v, want terminated", p.Spec().Name, p.State())
		}
	}
	if names := scope.Names(); len(names) != 0 {
		t.Errorf("Names() after release = %v, want empty", names)
	}
}

func TestInvoke_AfterReleaseFails(t *testing.T) {
	l, specs := newFakes()
	scope, err := NewRegistry(l).Acquire(context.Background(), specs)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	c, err := scope.Lookup("read_neo4j_cypher")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	out, err := c.Invoke(context.Background(), json.RawMessage(`{"query":"MATCH (n) RETURN n"}`))
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if out != "result of read_neo4j_cypher" {
		t.Errorf("Invoke() = %q", out)
	}
	if got := l.conns["cypher"].args[0]["query"]; got != "MATCH (n) RETURN n" {
		t.Errorf("argument query = %v", got)
	}

	scope.Release()

	if _, err := c.Invoke(context.Background(), nil); !errors.Is(err, ErrCapabilityUnavailable) {
		t.Errorf("Invoke() after release error = %v, want ErrCapabilityUnavailable", err)
	}
	if _, err := scope.Lookup("read_neo4j_cypher"); !errors.Is(err, ErrCapabilityUnavailable) {
		t.Errorf("Lookup() after release error = %v, want ErrCapabilityUnavailable", err)
	}
}

func TestInvoke_BadArguments(t *testing.T) {
	l, specs := newFakes()
	scope, err := NewRegistry(l).Acquire(context.Background(), specs)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer scope.Release()

	c, _ := scope.Lookup("read_neo4j_cypher")
	if _, err := c.Invoke(context.Background(), json.RawMessage(`[1,2]`)); err == nil {
		t.Error("Invoke() with non-object arguments should fail")
	}
}

func TestAcquire_FailureReleasesLaunched(t *testing.T) {
	l, specs := newFakes()
	l.failOn = "cypher"

	scope, err := NewRegistry(l).Acquire(context.Background(), specs)
	if err == nil {
		scope.Release()
		t.Fatal("Acquire() expected error")
	}
	if !strings.Contains(err.Error(), "cypher") {
		t.Errorf("error %q should name the failing provider", err)
	}
	if !errors.Is(err, ErrCapabilityUnavailable) {
		t.Errorf("error %v should match ErrCapabilityUnavailable", err)
	}
	var ue *UnavailableError
	if !errors.As(err, &ue) || ue.Provider != "cypher" {
		t.Errorf("UnavailableError = %+v, want provider cypher", ue)
	}
	if got := l.conns["modeling"].closed; got != 1 {
		t.Errorf("modeling provider closed %d times, want 1", got)
	}
}

func TestAcquire_ToolListingFailure(t *testing.T) {
	l, specs := newFakes()
	lost := errors.New("handshake lost")
	l.conns["modeling"].toolsErr = lost

	_, err := NewRegistry(l).Acquire(context.Background(), specs)
	if err == nil {
		t.Fatal("Acquire() expected error")
	}
	if !errors.Is(err, ErrCapabilityUnavailable) {
		t.Errorf("error %v should match ErrCapabilityUnavailable", err)
	}
	if !errors.Is(err, lost) {
		t.Errorf("error %v should keep the handshake failure", err)
	}
	if got := l.conns["modeling"].closed; got != 1 {
		t.Errorf("modeling provider closed %d times, want 1", got)
	}
	if len(l.launched) != 1 {
		t.Errorf("launched %v, want only modeling", l.launched)
	}
}

func TestAcquire_UnnamedSpec(t *testing.T) {
	l, _ := newFakes()
	if _, err := NewRegistry(l).Acquire(context.Background(), []Spec{{Command: "uvx"}}); err == nil {
		t.Fatal("Acquire() with unnamed spec expected error")
	}
}

func TestWith_ReleasesOnEveryPath(t *testing.T) {
	tests := []struct {
		name    string
		fn      func(*Scope) error
		wantErr bool
	}{
		{"success", func(*Scope) error { return nil }, false},
		{"error", func(*Scope) error { return errors.New("stage failed") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, specs := newFakes()
			err := With(context.Background(), NewRegistry(l), specs, tt.fn)
			if (err != nil) != tt.wantErr {
				t.Fatalf("With() error = %v, wantErr %v", err, tt.wantErr)
			}
			for name, conn := range l.conns {
				if conn.closed != 1 {
					t.Errorf("provider %s closed %d times, want 1", name, conn.closed)
				}
			}
		})
	}
}

func TestWith_ReleasesOnPanic(t *testing.T) {
	l, specs := newFakes()

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		With(context.Background(), NewRegistry(l), specs, func(*Scope) error {
			panic("worker exploded")
		})
	}()

	for name, conn := range l.conns {
		if conn.closed != 1 {
			t.Errorf("provider %s closed %d times, want 1", name, conn.closed)
		}
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateLaunching, "launching"},
		{StateReady, "ready"},
		{StateTerminated, "terminated"},
		{State(9), "State(9)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int32(tt.state), got, tt.want)
		}
	}
}
