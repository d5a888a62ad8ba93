package pipeline

import (
	"reflect"
	"strings"
	"testing"
)

func TestParseTemplate(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		wantVars []string
		wantErr  string
	}{
		{"plain text", "Read the schema.", []string{}, ""},
		{"known vars", "${usecase} uses ${entities} and ${usecase}", []string{"entities", "usecase"}, ""},
		{"all vars", "${usecase}${entities}${relationships}${diagram}${instructions}${context}",
			[]string{"context", "diagram", "entities", "instructions", "relationships", "usecase"}, ""},
		{"unknown var", "Hello ${user}", nil, `unknown placeholder "user"`},
		{"unterminated", "Hello ${usecase", nil, "parse template"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := ParseTemplate("test", tt.src)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("ParseTemplate() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTemplate() error = %v", err)
			}
			if got := tmpl.Variables(); !reflect.DeepEqual(got, tt.wantVars) {
				t.Errorf("Variables() = %v, want %v", got, tt.wantVars)
			}
		})
	}
}

func TestTemplate_Render(t *testing.T) {
	tmpl := MustParseTemplate("test", "Usecase: ${usecase}\nDiagram:\n${diagram}")
	got, err := tmpl.Render(map[string]string{
		VarUsecase: "Library",
		VarDiagram: "graph TD\n  A-->B",
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	want := "Usecase: Library\nDiagram:\ngraph TD\n  A-->B"
	if got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}

func TestTemplate_RenderMissingVarIsEmpty(t *testing.T) {
	tmpl := MustParseTemplate("test", "[${instructions}]")
	got, err := tmpl.Render(nil)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got != "[]" {
		t.Errorf("Render() = %q, want %q", got, "[]")
	}
}

func TestTemplate_EscapedDollar(t *testing.T) {
	tmpl := MustParseTemplate("test", "literal $${usecase}")
	got, err := tmpl.Render(map[string]string{VarUsecase: "x"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got != "literal ${usecase}" {
		t.Errorf("Render() = %q", got)
	}
}

func TestInputs_Vars(t *testing.T) {
	in := Inputs{
		Usecase:       "Employee Org",
		Entities:      []string{" Employee ", "", "Company"},
		Relationships: nil,
	}
	vars := in.vars("ctx")
	if vars[VarEntities] != "Employee, Company" {
		t.Errorf("entities = %q", vars[VarEntities])
	}
	if vars[VarRelationships] != noneSpecified {
		t.Errorf("relationships = %q, want %q", vars[VarRelationships], noneSpecified)
	}
	if vars[VarContext] != "ctx" {
		t.Errorf("context = %q", vars[VarContext])
	}
}

func TestMustParseTemplate_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustParseTemplate() should panic on unknown placeholder")
		}
	}()
	MustParseTemplate("bad", "${nope}")
}
