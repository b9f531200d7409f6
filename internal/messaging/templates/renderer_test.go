package templates

import "testing"

func TestRendererRender(t *testing.T) {
	r := NewRenderer()
	if err := r.Register("card", "*{{.Name}}*: ${{.Price}} COP"); err != nil {
		t.Fatalf("register: %v", err)
	}
	out, err := r.Render("card", map[string]string{"Name": "NETFLIX", "Price": "13.000"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "*NETFLIX*: $13.000 COP" {
		t.Fatalf("unexpected output %q", out)
	}
	if _, err := r.Render("card", map[string]string{"Name": "x"}); err == nil {
		t.Fatalf("expected error for missing key")
	}
}

func TestRendererErrors(t *testing.T) {
	r := NewRenderer()
	if err := r.Register("empty", ""); err == nil {
		t.Fatalf("expected error for empty template")
	}
	if err := r.Register("broken", "{{.Name"); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := r.Render("missing", nil); err == nil {
		t.Fatalf("expected unknown template error")
	}
}
