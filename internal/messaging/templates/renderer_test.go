package templates

import "testing"

func TestSetRender(t *testing.T) {
	set, err := NewSet(map[string]string{"greet": "Hola {{.Name}}"})
	if err != nil {
		t.Fatalf("new set: %v", err)
	}
	out, err := set.Render("greet", map[string]string{"Name": "Laura"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "Hola Laura" {
		t.Fatalf("unexpected output %q", out)
	}
	if _, err := set.Render("greet", map[string]string{"Other": "x"}); err == nil {
		t.Fatalf("expected error for missing key")
	}
	if _, err := set.Render("absent", nil); err == nil {
		t.Fatalf("expected error for unknown template")
	}
}

func TestNewSetRejectsInvalidSources(t *testing.T) {
	if _, err := NewSet(map[string]string{"empty": ""}); err == nil {
		t.Fatalf("expected error for empty template")
	}
	if _, err := NewSet(map[string]string{"broken": "Hola {{.Name"}); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestMustSetPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	MustSet(map[string]string{"broken": "{{"})
}
