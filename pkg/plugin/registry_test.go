package plugin

import (
	"context"
	"errors"
	"testing"

	"firestige.xyz/flat/internal/core"
)

type mockReporter struct {
	name    string
	reports int
}

func (m *mockReporter) Name() string                { return m.name }
func (m *mockReporter) Init(map[string]any) error   { return nil }
func (m *mockReporter) Start(context.Context) error { return nil }
func (m *mockReporter) Stop(context.Context) error  { return nil }
func (m *mockReporter) Flush(context.Context) error { return nil }
func (m *mockReporter) Report(context.Context, *core.FlowEvent) error {
	m.reports++
	return nil
}

func TestRegisterAndGetReporter(t *testing.T) {
	reporterReg.Reset()

	RegisterReporter("test_rep", func() Reporter {
		return &mockReporter{name: "test_rep"}
	})

	factory, err := GetReporterFactory("test_rep")
	if err != nil {
		t.Fatalf("GetReporterFactory failed: %v", err)
	}

	instance := factory()
	if instance.Name() != "test_rep" {
		t.Errorf("Expected name 'test_rep', got %s", instance.Name())
	}
}

func TestNewReturnsFreshInstances(t *testing.T) {
	r := NewRegistry()
	r.Register("mock", func() Reporter { return &mockReporter{name: "mock"} })

	a, err := r.New("mock")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	b, _ := r.New("mock")
	if a == b {
		t.Error("Expected distinct instances per New call")
	}
}

func TestGetNotFoundReturnsError(t *testing.T) {
	reporterReg.Reset()

	_, err := GetReporterFactory("nonexistent")
	if err == nil {
		t.Fatal("Expected error for nonexistent reporter")
	}
	if !errors.Is(err, core.ErrPluginNotFound) {
		t.Errorf("Expected ErrPluginNotFound, got %v", err)
	}

	if _, err := NewReporter("nonexistent"); !errors.Is(err, core.ErrPluginNotFound) {
		t.Errorf("Expected ErrPluginNotFound from NewReporter, got %v", err)
	}
}

func TestDuplicateRegisterPanics(t *testing.T) {
	r := NewRegistry()
	r.Register("dup", func() Reporter { return &mockReporter{} })

	defer func() {
		if recover() == nil {
			t.Error("Expected panic on duplicate registration")
		}
	}()
	r.Register("dup", func() Reporter { return &mockReporter{} })
}

func TestList(t *testing.T) {
	reporterReg.Reset()

	RegisterReporter("rep_c", func() Reporter { return &mockReporter{name: "rep_c"} })
	RegisterReporter("rep_a", func() Reporter { return &mockReporter{name: "rep_a"} })
	RegisterReporter("rep_b", func() Reporter { return &mockReporter{name: "rep_b"} })

	list := ListReporters()
	if len(list) != 3 {
		t.Fatalf("Expected 3 reporters, got %d", len(list))
	}
	if list[0] != "rep_a" || list[1] != "rep_b" || list[2] != "rep_c" {
		t.Errorf("Expected sorted [rep_a, rep_b, rep_c], got %v", list)
	}

	reporterReg.Reset()
	if n := len(ListReporters()); n != 0 {
		t.Errorf("Expected 0 reporters after reset, got %d", n)
	}
}
