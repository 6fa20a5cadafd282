package models

import (
	"testing"
	"time"
)

func TestValueFormat_FormatValue(t *testing.T) {
	hired := time.Date(2021, 2, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		v      any
		want   string
		wantOK bool
	}{
		{"nil", nil, "", false},
		{"string", "Ana", "Ana", true},
		{"date", hired, "01/02/2021", true},
		{"date pointer", &hired, "01/02/2021", true},
		{"zero date", time.Time{}, "", false},
		{"true", true, "Sí", true},
		{"false", false, "No", true},
		{"int", 42, "42", true},
		{"int64", int64(-7), "-7", true},
		{"float", 1500000.5, "1500000.5", true},
		{"slice", []int{1}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DefaultValueFormat.FormatValue(tt.v)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("FormatValue(%v) = %q, %v; want %q, %v", tt.v, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestIsEmptyValue(t *testing.T) {
	tests := []struct {
		v    any
		want bool
	}{
		{nil, true},
		{"", true},
		{"   ", true},
		{"x", false},
		{time.Time{}, true},
		{0, false},
		{false, false},
	}
	for _, tt := range tests {
		if got := IsEmptyValue(tt.v); got != tt.want {
			t.Errorf("IsEmptyValue(%#v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestDocumentRecord_RequiredSigned(t *testing.T) {
	doc := &DocumentRecord{Slots: []SignatureSlot{
		{Label: "Empleado", Required: true, Status: SlotSigned},
		{Label: "Testigo", Required: false, Status: SlotPending},
		{Label: "RRHH", Required: true, Status: SlotPending},
	}}
	if doc.RequiredSigned() {
		t.Error("RequiredSigned() = true with a pending required slot")
	}
	doc.Slots[2].Status = SlotSigned
	if !doc.RequiredSigned() {
		t.Error("RequiredSigned() = false; optional slots should not gate completion")
	}
	if !(&DocumentRecord{}).RequiredSigned() {
		t.Error("a document without slots has nothing left to sign")
	}
}

func TestDocumentRecord_Clone(t *testing.T) {
	at := time.Date(2026, 3, 9, 14, 30, 0, 0, time.UTC)
	doc := &DocumentRecord{
		ID:            "doc-1",
		Slots:         []SignatureSlot{{Label: "RRHH", Status: SlotSigned, SignedAt: &at}},
		Variables:     map[string]any{"Nombre": "Ana"},
		Substitutions: []Substitution{{Part: "word/document.xml", Pattern: "{{Nombre}}", Found: true}},
		CompletedAt:   &at,
	}
	c := doc.Clone()
	c.Slots[0].Status = SlotPending
	*c.Slots[0].SignedAt = at.Add(time.Hour)
	c.Variables["Nombre"] = "Luis"
	c.Substitutions[0].Found = false
	*c.CompletedAt = at.Add(time.Hour)

	if doc.Slots[0].Status != SlotSigned || !doc.Slots[0].SignedAt.Equal(at) {
		t.Error("Clone shares slot state with the original")
	}
	if doc.Variables["Nombre"] != "Ana" {
		t.Error("Clone shares the variables map")
	}
	if !doc.Substitutions[0].Found {
		t.Error("Clone shares the substitutions slice")
	}
	if !doc.CompletedAt.Equal(at) {
		t.Error("Clone shares CompletedAt")
	}
}

func TestGeometry_DateLabelPosition(t *testing.T) {
	g := Geometry{Page: 1, X: 72, Y: 100, Width: 150, Height: 40}
	if x, y := g.DateLabelPosition(); x != 72 || y != 90 {
		t.Errorf("default label position = (%v, %v), want (72, 90)", x, y)
	}
	g.DateX, g.DateY = 300, 50
	if x, y := g.DateLabelPosition(); x != 300 || y != 50 {
		t.Errorf("explicit label position = (%v, %v), want (300, 50)", x, y)
	}
}

func TestTemplate_CanGenerate(t *testing.T) {
	tests := []struct {
		name string
		tmpl Template
		want bool
	}{
		{"active with source", Template{Status: TemplateActive, SourceRef: "sha256:ab"}, true},
		{"active without source", Template{Status: TemplateActive}, false},
		{"draft", Template{Status: TemplateDraft, SourceRef: "sha256:ab"}, false},
		{"archived", Template{Status: TemplateArchived, SourceRef: "sha256:ab"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tmpl.CanGenerate(); got != tt.want {
				t.Errorf("CanGenerate() = %v, want %v", got, tt.want)
			}
		})
	}
}
