package scripting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/markpdf/cos/object"
)

func TestExecute_Simple(t *testing.T) {
	e := NewEngine()
	got, err := e.Execute(context.Background(), "6 * 7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n, ok := got.(int64); !ok || n != 42 {
		t.Fatalf("got %v (%T)", got, got)
	}
}

func TestExecute_Cancellation(t *testing.T) {
	e := NewEngine()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := e.Execute(ctx, "for(;;){}")
	if err == nil {
		t.Fatal("expected interruption")
	}
	// The engine recovers after an interrupt.
	if _, err := e.Execute(context.Background(), "1 + 1"); err != nil {
		t.Fatalf("engine did not recover: %v", err)
	}
}

func TestExecute_ImmediateCancel(t *testing.T) {
	e := NewEngine()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Execute(ctx, "42"); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestRegisterHost_Alert(t *testing.T) {
	e := NewEngine()
	h := &recordingHost{}
	if err := e.RegisterHost(h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := e.Execute(context.Background(), `app.alert("hi")`); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.alerts) != 1 || h.alerts[0] != "hi" {
		t.Fatalf("alerts: %v", h.alerts)
	}
}

type recordingHost struct{ alerts []string }

func (r *recordingHost) Alert(msg string) { r.alerts = append(r.alerts, msg) }

func jsAction(script string) *object.Dict {
	d := object.NewDict()
	d.Set("S", object.Name{V: "JavaScript"})
	d.Set("JS", object.StringLit{Raw: []byte(script)})
	return d
}

func TestActionScript(t *testing.T) {
	js, err := ActionScript(jsAction("1+1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if js != "1+1" {
		t.Fatalf("got %q", js)
	}
	other := object.NewDict()
	other.Set("S", object.Name{V: "URI"})
	if _, err := ActionScript(other); !errors.Is(err, ErrNotJavaScript) {
		t.Fatalf("got %v", err)
	}
	if _, err := ActionScript(nil); !errors.Is(err, ErrNotJavaScript) {
		t.Fatalf("nil: got %v", err)
	}
}

func TestRunAction(t *testing.T) {
	got, err := RunAction(context.Background(), NewEngine(), jsAction("2+3"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n, ok := got.(int64); !ok || n != 5 {
		t.Fatalf("got %v (%T)", got, got)
	}
}
