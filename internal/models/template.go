package models

import "time"

// TemplateStatus is the lifecycle status of a template.
type TemplateStatus string

const (
	TemplateDraft    TemplateStatus = "draft"
	TemplateActive   TemplateStatus = "active"
	TemplateArchived TemplateStatus = "archived"
)

// SignatorySpec configures one signature slot created for every document generated from a template.
type SignatorySpec struct {
	Role     string   `json:"role" yaml:"role" firestore:"role"`
	Label    string   `json:"label" yaml:"label" firestore:"label"`
	Required bool     `json:"required" yaml:"required" firestore:"required"`
	Position int      `json:"position" yaml:"position" firestore:"position"`
	Geometry Geometry `json:"geometry" yaml:"geometry" firestore:"geometry"`
	// AssigneeID pre-assigns the slot to one identity.
	AssigneeID string `json:"assignee_id,omitempty" yaml:"assignee_id,omitempty" firestore:"assigneeId,omitempty"`
	// ClaimRole lets any identity holding this role claim an unassigned slot.
	ClaimRole string `json:"claim_role,omitempty" yaml:"claim_role,omitempty" firestore:"claimRole,omitempty"`
}

// Template is a structured document with named placeholders and a signatory configuration.
type Template struct {
	ID                string            `json:"id" firestore:"id"`
	Name              string            `json:"name" firestore:"name"`
	Status            TemplateStatus    `json:"status" firestore:"status"`
	Placeholders      []string          `json:"placeholders" firestore:"placeholders"`
	FieldMap          map[string]string `json:"field_map" firestore:"fieldMap"`
	SourceRef         string            `json:"source_ref" firestore:"sourceRef"`
	PreviewRef        string            `json:"preview_ref,omitempty" firestore:"previewRef,omitempty"`
	SourcePath        string            `json:"source_path,omitempty" firestore:"sourcePath,omitempty"`
	Signatories       []SignatorySpec   `json:"signatories" firestore:"signatories"`
	SequentialSigning bool              `json:"sequential_signing" firestore:"sequentialSigning"`
	CreatedAt         time.Time         `json:"created_at" firestore:"createdAt"`
	UpdatedAt         time.Time         `json:"updated_at" firestore:"updatedAt"`
}

// CanGenerate reports whether documents can be generated from the template.
func (t *Template) CanGenerate() bool {
	return t.Status == TemplateActive && t.SourceRef != ""
}

// Touch implements Timestamped.
func (t *Template) Touch(now time.Time) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
}

// Versioned is implemented by entities updated with compare-and-set.
type Versioned interface {
	GetVersion() int64
}

// Timestamped is implemented by entities that carry created/updated times.
type Timestamped interface {
	Touch(now time.Time)
}
