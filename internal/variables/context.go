// Package variables resolves template placeholders against business records and reports
// which placeholders cannot be filled.
package variables

import (
	"fmt"
	"strings"

	"github.com/hectronix2005/Valkiria-ECM-sub002/pkg/utils"
)

// Kind tags the business record a generation request originates from. It is only used at
// the boundary; resolution itself is kind-agnostic.
type Kind string

const (
	KindVacation      Kind = "vacation"
	KindCertification Kind = "certification"
	KindContract      Kind = "contract"
)

// ParseKind accepts a Kind name, case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(utils.Fold(s)); k {
	case KindVacation, KindCertification, KindContract:
		return k, nil
	case "":
		return "", fmt.Errorf("kind is required")
	default:
		return "", fmt.Errorf("unknown kind %q", s)
	}
}

// Source names one record of a Context.
type Source string

const (
	SourceSubject      Source = "subject"
	SourceOrganization Source = "organization"
	SourceRequester    Source = "requester"
	SourceThirdParty   Source = "third_party"
	SourceContract     Source = "contract"
	SourceUnmapped     Source = "unmapped"
)

// Sources lists the record sources in report order.
var Sources = []Source{SourceSubject, SourceOrganization, SourceRequester, SourceThirdParty, SourceContract, SourceUnmapped}

var sourceAliases = map[string]Source{
	"subject":      SourceSubject,
	"employee":     SourceSubject,
	"organization": SourceOrganization,
	"company":      SourceOrganization,
	"requester":    SourceRequester,
	"request":      SourceRequester,
	"third_party":  SourceThirdParty,
	"tercero":      SourceThirdParty,
	"contract":     SourceContract,
}

// ParseSource maps a path prefix (including aliases such as "employee") to a Source.
func ParseSource(name string) (Source, bool) {
	s, ok := sourceAliases[utils.Fold(name)]
	return s, ok
}

// SplitPath splits "source.field.sub" into its Source and the remaining field path.
func SplitPath(path string) (Source, string, bool) {
	prefix, field, ok := strings.Cut(strings.TrimSpace(path), ".")
	if !ok || field == "" {
		return SourceUnmapped, "", false
	}
	src, ok := ParseSource(prefix)
	if !ok {
		return SourceUnmapped, "", false
	}
	return src, field, true
}

// Record is one business record, possibly nested.
type Record map[string]any

// Context is the bundle of records a generation request is resolved against.
type Context struct {
	Kind         Kind   `yaml:"kind" json:"kind"`
	Subject      Record `yaml:"subject" json:"subject"`
	Organization Record `yaml:"organization" json:"organization"`
	Requester    Record `yaml:"requester" json:"requester"`
	ThirdParty   Record `yaml:"third_party" json:"third_party"`
	Contract     Record `yaml:"contract" json:"contract"`
}

// Record returns the record for src, or nil.
func (c Context) Record(src Source) Record {
	switch src {
	case SourceSubject:
		return c.Subject
	case SourceOrganization:
		return c.Organization
	case SourceRequester:
		return c.Requester
	case SourceThirdParty:
		return c.ThirdParty
	case SourceContract:
		return c.Contract
	}
	return nil
}
