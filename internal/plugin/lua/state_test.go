package lua

import (
	"errors"
	"strings"
	"testing"

	lua "github.com/yuin/gopher-lua"
)

func TestStateRunsSafeLibraries(t *testing.T) {
	state := NewState()
	defer state.Close()

	err := state.DoString(`
		result = string.upper("ok") .. tostring(math.floor(2.7)) .. table.concat({"a","b"}, ",")
	`)
	if err != nil {
		t.Fatalf("DoString() error = %v", err)
	}
}

func TestSandboxBlocksEscapeHatches(t *testing.T) {
	state := NewState()
	defer state.Close()

	tests := []struct {
		name string
		code string
	}{
		{"io", `io.open("/etc/passwd")`},
		{"os", `os.execute("true")`},
		{"require", `require("io")`},
		{"dofile", `dofile("/tmp/x.lua")`},
		{"loadfile", `loadfile("/tmp/x.lua")`},
		{"load", `load("return 1")()`},
		{"debug", `debug.getinfo(1)`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := state.DoString(tt.code); err == nil {
				t.Errorf("%s is reachable from the sandbox", tt.name)
			}
		})
	}
}

func TestCallGlobal(t *testing.T) {
	state := NewState()
	defer state.Close()

	if err := state.DoString(`function double(n) return n * 2 end`); err != nil {
		t.Fatalf("DoString() error = %v", err)
	}

	results, err := state.CallGlobal("double", lua.LNumber(21))
	if err != nil {
		t.Fatalf("CallGlobal() error = %v", err)
	}
	if len(results) != 1 || results[0] != lua.LNumber(42) {
		t.Errorf("CallGlobal() = %v, want [42]", results)
	}

	if _, err := state.CallGlobal("missing"); err == nil {
		t.Error("CallGlobal(missing) succeeded, want error")
	}

	if err := state.DoString(`not_a_function = 5`); err != nil {
		t.Fatalf("DoString() error = %v", err)
	}
	if _, err := state.CallGlobal("not_a_function"); err == nil {
		t.Error("CallGlobal(not_a_function) succeeded, want error")
	}
}

func TestCallGlobalPropagatesLuaErrors(t *testing.T) {
	state := NewState()
	defer state.Close()

	if err := state.DoString(`function boom() error("guest failure") end`); err != nil {
		t.Fatalf("DoString() error = %v", err)
	}

	_, err := state.CallGlobal("boom")
	if err == nil || !strings.Contains(err.Error(), "guest failure") {
		t.Errorf("CallGlobal(boom) error = %v, want guest failure", err)
	}
}

func TestClosedState(t *testing.T) {
	state := NewState()
	state.Close()

	if err := state.DoString(`x = 1`); !errors.Is(err, ErrStateClosed) {
		t.Errorf("DoString() after close error = %v, want ErrStateClosed", err)
	}
	if _, err := state.CallGlobal("f"); !errors.Is(err, ErrStateClosed) {
		t.Errorf("CallGlobal() after close error = %v, want ErrStateClosed", err)
	}
	// Closing twice is fine.
	state.Close()
}

func TestRegisterModule(t *testing.T) {
	state := NewState()
	defer state.Close()

	var got string
	state.RegisterModule("host", map[string]lua.LGFunction{
		"echo": func(L *lua.LState) int {
			got = L.CheckString(1)
			L.Push(lua.LString(got))
			return 1
		},
	})

	if err := state.DoString(`reply = host.echo("hello")`); err != nil {
		t.Fatalf("DoString() error = %v", err)
	}
	if got != "hello" {
		t.Errorf("module function received %q, want hello", got)
	}
}
