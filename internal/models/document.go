// Package models defines core data structures for templates, generated documents, and signature slots.
package models

import "time"

// DocumentStatus is the lifecycle status of a generated document.
type DocumentStatus string

const (
	DocumentDraft             DocumentStatus = "draft"
	DocumentPendingSignatures DocumentStatus = "pending_signatures"
	DocumentCompleted         DocumentStatus = "completed"
	DocumentCancelled         DocumentStatus = "cancelled"
)

// Terminal reports whether no further signing transition is possible.
func (s DocumentStatus) Terminal() bool {
	return s == DocumentCompleted || s == DocumentCancelled
}

// PDFStatus tells whether a rendered artifact exists for the document.
type PDFStatus string

const (
	PDFCompleted PDFStatus = "completed"
	// PDFPending means no converter was reachable; SourceRef holds the filled
	// document so an external job can finish rendering.
	PDFPending PDFStatus = "pending"
)

// SlotStatus is the status of one signature slot.
type SlotStatus string

const (
	SlotPending SlotStatus = "pending"
	SlotSigned  SlotStatus = "signed"
)

// Geometry places a signature box on the rendered artifact. Coordinates are PDF
// user-space points with the origin at the bottom-left corner of the page.
type Geometry struct {
	Page   int     `json:"page" yaml:"page" firestore:"page"`
	X      float64 `json:"x" yaml:"x" firestore:"x"`
	Y      float64 `json:"y" yaml:"y" firestore:"y"`
	Width  float64 `json:"width" yaml:"width" firestore:"width"`
	Height float64 `json:"height" yaml:"height" firestore:"height"`
	// DateX and DateY place the timestamp label. Zero means just below the box.
	DateX float64 `json:"date_x,omitempty" yaml:"date_x,omitempty" firestore:"dateX,omitempty"`
	DateY float64 `json:"date_y,omitempty" yaml:"date_y,omitempty" firestore:"dateY,omitempty"`
}

// DateLabelPosition returns where the timestamp label goes.
func (g Geometry) DateLabelPosition() (x, y float64) {
	if g.DateX == 0 && g.DateY == 0 {
		return g.X, g.Y - 10
	}
	return g.DateX, g.DateY
}

// SignatureSlot is one signing obligation on a document.
type SignatureSlot struct {
	Role       string     `json:"role" firestore:"role"`
	Label      string     `json:"label" firestore:"label"`
	Required   bool       `json:"required" firestore:"required"`
	Position   int        `json:"position" firestore:"position"`
	Geometry   Geometry   `json:"geometry" firestore:"geometry"`
	Status     SlotStatus `json:"status" firestore:"status"`
	AssigneeID string     `json:"assignee_id,omitempty" firestore:"assigneeId,omitempty"`
	ClaimRole  string     `json:"claim_role,omitempty" firestore:"claimRole,omitempty"`

	SignerID     string     `json:"signer_id,omitempty" firestore:"signerId,omitempty"`
	SignerName   string     `json:"signer_name,omitempty" firestore:"signerName,omitempty"`
	SignatureRef string     `json:"signature_ref,omitempty" firestore:"signatureRef,omitempty"`
	SignedAt     *time.Time `json:"signed_at,omitempty" firestore:"signedAt,omitempty"`
}

// Signed reports whether the slot has been signed.
func (s *SignatureSlot) Signed() bool {
	return s.Status == SlotSigned
}

// Substitution records one placeholder replacement attempt.
type Substitution struct {
	Part    string `json:"part" firestore:"part"`
	Pattern string `json:"pattern" firestore:"pattern"`
	Value   string `json:"value,omitempty" firestore:"value,omitempty"`
	Found   bool   `json:"found" firestore:"found"`
}

// DocumentRecord is a document generated from a template, with its signature roster.
type DocumentRecord struct {
	ID            string          `json:"id" firestore:"id"`
	TemplateID    string          `json:"template_id" firestore:"templateId"`
	Status        DocumentStatus  `json:"status" firestore:"status"`
	SourceRef     string          `json:"source_ref" firestore:"sourceRef"`
	DraftRef      string          `json:"draft_ref,omitempty" firestore:"draftRef,omitempty"`
	FinalRef      string          `json:"final_ref,omitempty" firestore:"finalRef,omitempty"`
	PDFStatus     PDFStatus       `json:"pdf_generation_status" firestore:"pdfStatus"`
	Sequential    bool            `json:"sequential_signing" firestore:"sequential"`
	Slots         []SignatureSlot `json:"signatures" firestore:"slots"`
	Variables     map[string]any  `json:"variables,omitempty" firestore:"variables,omitempty"`
	Substitutions []Substitution  `json:"substitutions,omitempty" firestore:"substitutions,omitempty"`
	StampError    string          `json:"stamp_error,omitempty" firestore:"stampError,omitempty"`
	// StampingSince is set while a caller holds the stamping claim.
	StampingSince *time.Time      `json:"stamping_since,omitempty" firestore:"stampingSince,omitempty"`
	Version       int64           `json:"version" firestore:"version"`
	CreatedAt     time.Time       `json:"created_at" firestore:"createdAt"`
	UpdatedAt     time.Time       `json:"updated_at" firestore:"updatedAt"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty" firestore:"completedAt,omitempty"`
}

// RequiredSigned reports whether every required slot is signed.
func (d *DocumentRecord) RequiredSigned() bool {
	for i := range d.Slots {
		if d.Slots[i].Required && !d.Slots[i].Signed() {
			return false
		}
	}
	return true
}

// HasDraft reports whether a rendered artifact exists.
func (d *DocumentRecord) HasDraft() bool {
	return d.DraftRef != ""
}

// Clone returns a deep copy so callers can mutate a record before a compare-and-set.
func (d *DocumentRecord) Clone() *DocumentRecord {
	c := *d
	c.Slots = make([]SignatureSlot, len(d.Slots))
	for i, s := range d.Slots {
		if s.SignedAt != nil {
			t := *s.SignedAt
			s.SignedAt = &t
		}
		c.Slots[i] = s
	}
	if d.Variables != nil {
		c.Variables = make(map[string]any, len(d.Variables))
		for k, v := range d.Variables {
			c.Variables[k] = v
		}
	}
	c.Substitutions = append([]Substitution(nil), d.Substitutions...)
	if d.CompletedAt != nil {
		t := *d.CompletedAt
		c.CompletedAt = &t
	}
	if d.StampingSince != nil {
		t := *d.StampingSince
		c.StampingSince = &t
	}
	return &c
}

// GetVersion implements Versioned.
func (d *DocumentRecord) GetVersion() int64 { return d.Version }

// Touch implements Timestamped.
func (d *DocumentRecord) Touch(now time.Time) {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
}
