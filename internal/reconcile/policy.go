// Package reconcile decides, per role, how each question field is presented
// and turns submitted edits into the patch written back to the sheet.
package reconcile

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"grammardesk/internal/question"
	"grammardesk/internal/rbac"
)

type Visibility string

const (
	ReadonlyHeader Visibility = "readonly_header"
	ReadonlyBody   Visibility = "readonly_body"
	Editable       Visibility = "editable"
	Suppressed     Visibility = "suppressed"
)

// Slot is where a field sits in the two-column form layout.
type Slot string

const (
	SlotLeft  Slot = "left"
	SlotRight Slot = "right"
	SlotMain  Slot = "main"
)

type Input string

const (
	InputNone     Input = ""
	InputText     Input = "text"
	InputTextArea Input = "textarea"
	InputNumber   Input = "number"
	InputSelect   Input = "select"
)

// Rule is the presentation of one field for one role.
type Rule struct {
	Visibility Visibility
	Slot       Slot
	Input      Input
	Markup     bool
	Height     int
}

// Policy holds both roles' rules for a field.
type Policy struct {
	Reviewer Rule
	Editor   Rule
}

func (p Policy) rule(role rbac.Role) Rule {
	if role == rbac.RoleEditor {
		return p.Editor
	}
	return p.Reviewer
}

// TypeCodes is the fixed set of question type codes offered to editors.
var TypeCodes = []string{
	"A1", "A2", "A3", "A4", "A5", "A6",
	"B1-1", "B1-2", "B1-N", "B2", "B3", "B4-1", "B4-2", "B4-N",
	"C1", "C2", "C3", "C4", "C4-2", "C5",
	"D1", "D1-2", "D1-N", "D2-1", "D2-2", "D3", "D4",
}

var suppressed = Rule{Visibility: Suppressed}

var policyTable = map[string]Policy{
	question.FieldID: {
		Reviewer: Rule{Visibility: ReadonlyHeader, Slot: SlotLeft},
		Editor:   Rule{Visibility: ReadonlyHeader, Slot: SlotLeft},
	},
	question.FieldStage: {
		Reviewer: Rule{Visibility: ReadonlyHeader, Slot: SlotLeft},
		Editor:   Rule{Visibility: Editable, Slot: SlotLeft, Input: InputNumber},
	},
	question.FieldCategory: {
		Reviewer: Rule{Visibility: ReadonlyHeader, Slot: SlotRight},
		Editor:   Rule{Visibility: Editable, Slot: SlotRight, Input: InputText},
	},
	question.FieldType: {
		Reviewer: Rule{Visibility: ReadonlyHeader, Slot: SlotRight},
		Editor:   Rule{Visibility: Editable, Slot: SlotRight, Input: InputSelect},
	},
	question.FieldEPassage: {
		Reviewer: Rule{Visibility: ReadonlyBody, Slot: SlotMain, Markup: true},
		Editor:   Rule{Visibility: Editable, Slot: SlotMain, Input: InputTextArea, Height: 90},
	},
	question.FieldSolve: {
		Reviewer: Rule{Visibility: ReadonlyBody, Slot: SlotMain, Markup: true},
		Editor:   Rule{Visibility: Editable, Slot: SlotMain, Input: InputTextArea, Height: 90, Markup: true},
	},
	question.FieldExplanation: {
		Reviewer: Rule{Visibility: ReadonlyBody, Slot: SlotMain, Markup: true},
		Editor:   Rule{Visibility: Editable, Slot: SlotMain, Input: InputTextArea, Height: 150, Markup: true},
	},
	question.FieldTranslation: {
		Reviewer: Rule{Visibility: ReadonlyBody, Slot: SlotMain, Markup: true},
		Editor:   Rule{Visibility: Editable, Slot: SlotMain, Input: InputText, Markup: true},
	},
	question.FieldDuplicate: {
		Reviewer: suppressed,
		Editor:   suppressed,
	},
	question.FieldReviewComment: {
		Reviewer: Rule{Visibility: Editable, Slot: SlotMain, Input: InputTextArea, Height: 90},
		Editor:   Rule{Visibility: ReadonlyBody, Slot: SlotMain},
	},
	question.FieldReviewExplanation: {
		Reviewer: Rule{Visibility: Editable, Slot: SlotMain, Input: InputTextArea, Height: 90},
		Editor:   Rule{Visibility: ReadonlyBody, Slot: SlotMain},
	},
	question.FieldReviewStamp: {
		Reviewer: Rule{Visibility: ReadonlyBody, Slot: SlotMain, Markup: true},
		Editor:   Rule{Visibility: ReadonlyBody, Slot: SlotMain},
	},
}

// defaultPolicy covers header fields without a row of their own, including
// the image fields (which are additionally gated on the image marker).
var defaultPolicy = Policy{
	Reviewer: Rule{Visibility: ReadonlyBody, Slot: SlotMain, Markup: true},
	Editor:   Rule{Visibility: Editable, Slot: SlotMain, Input: InputText},
}

// RequiredFields must exist in every question sheet header.
var RequiredFields = []string{
	question.FieldID,
	question.FieldCategory,
	question.FieldReviewComment,
	question.FieldReviewExplanation,
	question.FieldReviewStamp,
}

var (
	ErrUnknownRole   = errors.New("role has no field policy")
	ErrMissingFields = errors.New("sheet header is missing required fields")
)

// Options tunes the policy for a deployment.
type Options struct {
	// StageMax is the upper bound of the stage input (4 or 5 depending on the
	// content set). The lower bound is always 1.
	StageMax int
	// Location is the zone used for save stamps.
	Location *time.Location
}

// Reconciler applies the policy table. It holds no per-request state.
type Reconciler struct {
	stageMax int
	location *time.Location
	policies map[string]Policy
	types    map[string]struct{}
}

// New checks the policy table and returns a reconciler.
func New(opts Options) (*Reconciler, error) {
	if opts.StageMax < 1 {
		return nil, fmt.Errorf("stage max must be at least 1, got %d", opts.StageMax)
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if err := checkTable(policyTable); err != nil {
		return nil, err
	}
	types := make(map[string]struct{}, len(TypeCodes))
	for _, code := range TypeCodes {
		types[code] = struct{}{}
	}
	return &Reconciler{
		stageMax: opts.StageMax,
		location: opts.Location,
		policies: policyTable,
		types:    types,
	}, nil
}

func checkTable(table map[string]Policy) error {
	for name, policy := range table {
		for role, rule := range map[rbac.Role]Rule{rbac.RoleReviewer: policy.Reviewer, rbac.RoleEditor: policy.Editor} {
			if err := checkRule(rule); err != nil {
				return fmt.Errorf("policy %q for %s: %w", name, role, err)
			}
		}
	}
	for _, name := range RequiredFields {
		if _, ok := table[name]; !ok {
			return fmt.Errorf("policy table has no row for required field %q", name)
		}
	}
	return nil
}

func checkRule(rule Rule) error {
	switch rule.Visibility {
	case ReadonlyHeader, ReadonlyBody, Suppressed:
		if rule.Input != InputNone {
			return fmt.Errorf("read-only rule declares input %q", rule.Input)
		}
	case Editable:
		if rule.Input == InputNone {
			return errors.New("editable rule has no input kind")
		}
	default:
		return fmt.Errorf("unknown visibility %q", rule.Visibility)
	}
	if rule.Visibility != Suppressed && rule.Slot == "" {
		return errors.New("visible rule has no layout slot")
	}
	return nil
}

// SchemaReport is the outcome of checking a sheet header against the table.
type SchemaReport struct {
	Missing   []string `json:"missing,omitempty"`
	Defaulted []string `json:"defaulted,omitempty"`
}

// ValidateSchema reports required fields absent from the header and header
// fields that fall back to the default policy. It fails only on missing
// required fields.
func (r *Reconciler) ValidateSchema(schema *question.Schema) (SchemaReport, error) {
	var report SchemaReport
	for _, name := range RequiredFields {
		if !schema.Has(name) {
			report.Missing = append(report.Missing, name)
		}
	}
	for _, name := range schema.Names() {
		if name == "" {
			continue
		}
		if _, ok := r.policies[name]; !ok {
			report.Defaulted = append(report.Defaulted, name)
		}
	}
	sort.Strings(report.Defaulted)
	if len(report.Missing) > 0 {
		return report, fmt.Errorf("%w: %v", ErrMissingFields, report.Missing)
	}
	return report, nil
}

// StageMax is the configured stage upper bound.
func (r *Reconciler) StageMax() int {
	return r.stageMax
}

func (r *Reconciler) ruleFor(role rbac.Role, name string, record question.Record) Rule {
	if name == "" {
		return suppressed
	}
	if question.IsImageField(name) && !record.ShowsImages() {
		return suppressed
	}
	policy, ok := r.policies[name]
	if !ok {
		policy = defaultPolicy
	}
	return policy.rule(role)
}
