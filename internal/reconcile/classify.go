package reconcile

import (
	"strings"

	"grammardesk/internal/question"
	"grammardesk/internal/rbac"
)

// FieldView is one field as presented to a role. Rendered is left empty here
// and filled by the caller's markup formatter for fields with Markup set.
type FieldView struct {
	Name       string     `json:"name"`
	Label      string     `json:"label"`
	Value      string     `json:"value"`
	Visibility Visibility `json:"visibility"`
	Slot       Slot       `json:"slot,omitempty"`
	Input      Input      `json:"input,omitempty"`
	Markup     bool       `json:"markup,omitempty"`
	Rendered   string     `json:"rendered,omitempty"`
	Height     int        `json:"height,omitempty"`
	Min        int        `json:"min,omitempty"`
	Max        int        `json:"max,omitempty"`
	Options    []string   `json:"options,omitempty"`
	// Selected is the index of Value in Options, -1 for no selection. Only
	// set for select inputs.
	Selected *int `json:"selected,omitempty"`
}

// Classify lays out every field of record for role, in header order.
func (r *Reconciler) Classify(role rbac.Role, record question.Record) ([]FieldView, error) {
	if role != rbac.RoleReviewer && role != rbac.RoleEditor {
		return nil, ErrUnknownRole
	}
	fields := record.Fields()
	views := make([]FieldView, 0, len(fields))
	for _, field := range fields {
		rule := r.ruleFor(role, field.Name, record)
		view := FieldView{
			Name:       field.Name,
			Label:      strings.ToUpper(field.Name),
			Visibility: rule.Visibility,
		}
		if rule.Visibility == Suppressed {
			views = append(views, view)
			continue
		}
		view.Value = field.Value
		view.Slot = rule.Slot
		view.Input = rule.Input
		view.Markup = rule.Markup
		view.Height = rule.Height
		switch rule.Input {
		case InputNumber:
			view.Min = 1
			view.Max = r.stageMax
		case InputSelect:
			view.Options = append([]string(nil), TypeCodes...)
			selected := r.typeIndex(field.Value)
			view.Selected = &selected
		}
		views = append(views, view)
	}
	return views, nil
}

func (r *Reconciler) typeIndex(value string) int {
	for idx, code := range TypeCodes {
		if code == value {
			return idx
		}
	}
	return -1
}

// Visible drops suppressed fields.
func Visible(views []FieldView) []FieldView {
	out := make([]FieldView, 0, len(views))
	for _, view := range views {
		if view.Visibility != Suppressed {
			out = append(out, view)
		}
	}
	return out
}
