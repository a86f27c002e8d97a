package backend_test

import (
	"bytes"
	"testing"

	"github.com/robfig/soy"
	"github.com/robfig/soy/backend"
	"github.com/robfig/soy/soyhtml"
)

func TestArtifactRendersThroughTofu(t *testing.T) {
	var a, err = soy.NewBundle().
		AddTemplateString("artifact.soy", `
{namespace artifact}

/** */
{template .hello}
<div onclick="x()">hi {$name |escapeHtml}</div>
{/template}
`).
		CompileToArtifact()
	if err != nil {
		t.Fatal(err)
	}

	if a.Registry() == nil {
		t.Fatal("Registry() returned nil")
	}
	if a.Types() == nil {
		t.Fatal("Types() returned nil")
	}

	var tofu = soyhtml.NewTofuFromArtifact(a)
	var buf bytes.Buffer
	if err := tofu.Render(&buf, "artifact.hello", map[string]interface{}{"name": "world"}); err != nil {
		t.Fatal(err)
	}
	if buf.Len() == 0 {
		t.Error("expected non-empty render output")
	}
}

func TestArtifactEscapingDirectivesOnNonPrintNode(t *testing.T) {
	var a = backend.New(nil, nil)
	if got := a.EscapingDirectives(nil); got != nil {
		t.Errorf("EscapingDirectives(nil) = %v, want nil", got)
	}
}
