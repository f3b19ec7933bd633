package entities

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// NoteVariant identifies the concrete note type inside the envelope
type NoteVariant string

const (
	NoteVariantStructured NoteVariant = "structured"
	NoteVariantProgress   NoteVariant = "progress"
)

// NoteContent is the variant-specific body of a clinical document. Each
// variant carries its own finalize-time completeness rule.
type NoteContent interface {
	// Variant returns the tag used for storage and dispatch
	Variant() NoteVariant

	// ValidateCompleteness reports why the note may not be finalized
	// yet, or nil when all required fields are present
	ValidateCompleteness() error

	// Clone returns a deep copy, used when deriving amendments
	Clone() NoteContent

	// PlainText flattens the note for full-text indexing
	PlainText() string

	// AppendToSection appends text into the named section, or into the
	// note's default narrative when section is empty. It reports whether
	// the section was recognized.
	AppendToSection(section, text string) bool
}

// Section names accepted by StructuredNote.AppendToSection
const (
	SectionSubjective = "subjective"
	SectionObjective  = "objective"
	SectionAssessment = "assessment"
	SectionPlan       = "plan"
)

// StructuredNote is a four-section (SOAP) clinical note. All four
// sections must be non-empty before finalize.
type StructuredNote struct {
	Subjective string `json:"subjective"`
	Objective  string `json:"objective"`
	Assessment string `json:"assessment"`
	Plan       string `json:"plan"`
}

func (n *StructuredNote) Variant() NoteVariant { return NoteVariantStructured }

func (n *StructuredNote) ValidateCompleteness() error {
	var missing []string
	if strings.TrimSpace(n.Subjective) == "" {
		missing = append(missing, SectionSubjective)
	}
	if strings.TrimSpace(n.Objective) == "" {
		missing = append(missing, SectionObjective)
	}
	if strings.TrimSpace(n.Assessment) == "" {
		missing = append(missing, SectionAssessment)
	}
	if strings.TrimSpace(n.Plan) == "" {
		missing = append(missing, SectionPlan)
	}
	if len(missing) > 0 {
		return fmt.Errorf("required sections missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (n *StructuredNote) Clone() NoteContent {
	clone := *n
	return &clone
}

func (n *StructuredNote) PlainText() string {
	return strings.TrimSpace(strings.Join([]string{n.Subjective, n.Objective, n.Assessment, n.Plan}, "\n"))
}

func (n *StructuredNote) AppendToSection(section, text string) bool {
	switch strings.ToLower(strings.TrimSpace(section)) {
	case SectionSubjective:
		n.Subjective = appendBlock(n.Subjective, text)
	case SectionObjective:
		n.Objective = appendBlock(n.Objective, text)
	case SectionAssessment:
		n.Assessment = appendBlock(n.Assessment, text)
	case SectionPlan, "":
		n.Plan = appendBlock(n.Plan, text)
	default:
		return false
	}
	return true
}

// ProgressNoteKind identifies the sub-type of a free-form progress note
type ProgressNoteKind string

const (
	ProgressNoteKindGeneral   ProgressNoteKind = "general"
	ProgressNoteKindShift     ProgressNoteKind = "shift"
	ProgressNoteKindDischarge ProgressNoteKind = "discharge"
	ProgressNoteKindProcedure ProgressNoteKind = "procedure"
)

// ShiftDetails are required when a progress note documents a shift
type ShiftDetails struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	ShiftType string    `json:"shift_type"`
}

// DischargeDetails are required when a progress note documents a discharge
type DischargeDetails struct {
	Disposition  string `json:"disposition"`
	Instructions string `json:"instructions"`
}

// ProcedureDetails are required when a progress note documents a procedure
type ProcedureDetails struct {
	Name     string `json:"name"`
	Findings string `json:"findings,omitempty"`
	Details  string `json:"details"`
}

// ProgressNote is a free-form narrative note with a condition tag and an
// optional kind-specific payload
type ProgressNote struct {
	Narrative string           `json:"narrative"`
	Condition string           `json:"condition"`
	Kind      ProgressNoteKind `json:"kind"`
	Shift     *ShiftDetails    `json:"shift,omitempty"`
	Discharge *DischargeDetails `json:"discharge,omitempty"`
	Procedure *ProcedureDetails `json:"procedure,omitempty"`
}

func (n *ProgressNote) Variant() NoteVariant { return NoteVariantProgress }

func (n *ProgressNote) ValidateCompleteness() error {
	if strings.TrimSpace(n.Narrative) == "" {
		return fmt.Errorf("narrative is required")
	}
	if strings.TrimSpace(n.Condition) == "" {
		return fmt.Errorf("condition tag is required")
	}

	switch n.Kind {
	case ProgressNoteKindGeneral, "":
		return nil
	case ProgressNoteKindShift:
		if n.Shift == nil {
			return fmt.Errorf("shift details are required for a shift note")
		}
		if n.Shift.Start.IsZero() || n.Shift.End.IsZero() {
			return fmt.Errorf("shift start and end are required")
		}
		if strings.TrimSpace(n.Shift.ShiftType) == "" {
			return fmt.Errorf("shift type is required")
		}
	case ProgressNoteKindDischarge:
		if n.Discharge == nil {
			return fmt.Errorf("discharge details are required for a discharge note")
		}
		if strings.TrimSpace(n.Discharge.Disposition) == "" {
			return fmt.Errorf("discharge disposition is required")
		}
		if strings.TrimSpace(n.Discharge.Instructions) == "" {
			return fmt.Errorf("discharge instructions are required")
		}
	case ProgressNoteKindProcedure:
		if n.Procedure == nil {
			return fmt.Errorf("procedure details are required for a procedure note")
		}
		if strings.TrimSpace(n.Procedure.Name) == "" || strings.TrimSpace(n.Procedure.Details) == "" {
			return fmt.Errorf("procedure name and details are required")
		}
	default:
		return fmt.Errorf("unknown progress note kind: %s", n.Kind)
	}
	return nil
}

func (n *ProgressNote) Clone() NoteContent {
	clone := *n
	if n.Shift != nil {
		s := *n.Shift
		clone.Shift = &s
	}
	if n.Discharge != nil {
		d := *n.Discharge
		clone.Discharge = &d
	}
	if n.Procedure != nil {
		p := *n.Procedure
		clone.Procedure = &p
	}
	return &clone
}

func (n *ProgressNote) PlainText() string {
	parts := []string{n.Narrative, n.Condition}
	if n.Procedure != nil {
		parts = append(parts, n.Procedure.Name, n.Procedure.Findings, n.Procedure.Details)
	}
	if n.Discharge != nil {
		parts = append(parts, n.Discharge.Disposition, n.Discharge.Instructions)
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func (n *ProgressNote) AppendToSection(section, text string) bool {
	switch strings.ToLower(strings.TrimSpace(section)) {
	case "", "narrative":
		n.Narrative = appendBlock(n.Narrative, text)
		return true
	default:
		return false
	}
}

func appendBlock(existing, text string) string {
	if strings.TrimSpace(existing) == "" {
		return text
	}
	return existing + "\n\n" + text
}

// noteEnvelope is the storage representation of a NoteContent: a variant
// tag plus the raw variant payload, decoded exactly once on load.
type noteEnvelope struct {
	Variant NoteVariant     `json:"variant"`
	Note    json.RawMessage `json:"note"`
}

// MarshalNoteContent serializes content with its variant tag
func MarshalNoteContent(content NoteContent) ([]byte, error) {
	if content == nil {
		return nil, fmt.Errorf("note content is nil")
	}
	note, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal note content: %w", err)
	}
	return json.Marshal(noteEnvelope{Variant: content.Variant(), Note: note})
}

// UnmarshalNoteContent decodes a variant-tagged payload back into its
// concrete note type
func UnmarshalNoteContent(data []byte) (NoteContent, error) {
	var env noteEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal note envelope: %w", err)
	}

	var content NoteContent
	switch env.Variant {
	case NoteVariantStructured:
		content = &StructuredNote{}
	case NoteVariantProgress:
		content = &ProgressNote{}
	default:
		return nil, fmt.Errorf("unknown note variant: %q", env.Variant)
	}

	if err := json.Unmarshal(env.Note, content); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s note: %w", env.Variant, err)
	}
	return content, nil
}
