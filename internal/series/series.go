// Package series plans bulk edits over the members of a recurring group.
// There is no series record: a series is every reservation sharing a
// recurring group id.
package series

import (
	"fmt"
	"sort"
	"strings"

	"github.com/iliyamo/court-booking/internal/lifecycle"
	"github.com/iliyamo/court-booking/internal/model"
)

// Scope selects which members of a series an edit touches.
type Scope string

const (
	Single    Scope = "single"
	Following Scope = "following"
	All       Scope = "all"
)

// ParseScope reads a scope name. "future" and "this_and_following" are
// accepted for Following.
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single", "this":
		return Single, nil
	case "following", "future", "this_and_following":
		return Following, nil
	case "", "all":
		return All, nil
	}
	return "", model.Invalid("scope", fmt.Sprintf("unknown scope %q", s))
}

// Ref anchors Single (by ID) and Following (by Date) edits.
type Ref struct {
	ID   string
	Date string
}

// Mutation is a requested series edit: either a field patch or a delete.
type Mutation struct {
	Scope  Scope
	Ref    Ref
	Patch  model.FieldPatch
	Delete bool
}

// Plan is the set of reservations a mutation will write.
type Plan struct {
	Targets []model.Reservation
	Patch   model.FieldPatch
	Cancel  bool
	// Skipped counts selected members left alone because they are already
	// in a terminal state.
	Skipped int
}

// IDs returns the ids of the targets.
func (p Plan) IDs() []string {
	ids := make([]string, len(p.Targets))
	for i, r := range p.Targets {
		ids[i] = r.ID
	}
	return ids
}

// Select returns the members matched by scope, ordered by date. Following
// compares date keys lexicographically, which matches calendar order for
// YYYY-MM-DD.
func Select(members []model.Reservation, scope Scope, ref Ref) ([]model.Reservation, error) {
	var out []model.Reservation
	switch scope {
	case Single:
		if ref.ID == "" {
			return nil, model.Invalid("reference_id", "required for single scope")
		}
		for _, m := range members {
			if m.ID == ref.ID {
				out = append(out, m)
			}
		}
	case Following:
		if ref.Date == "" {
			return nil, model.Invalid("reference_date", "required for following scope")
		}
		for _, m := range members {
			if m.Date >= ref.Date {
				out = append(out, m)
			}
		}
	case All:
		out = append(out, members...)
	default:
		return nil, model.Invalid("scope", fmt.Sprintf("unknown scope %q", scope))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// Build turns a mutation into a plan over members.
func Build(members []model.Reservation, m Mutation) (Plan, error) {
	if !m.Delete && m.Patch.Empty() {
		return Plan{}, model.Invalid("fields", "nothing to update")
	}
	selected, err := Select(members, m.Scope, m.Ref)
	if err != nil {
		return Plan{}, err
	}
	if !m.Delete {
		return Plan{Targets: selected, Patch: m.Patch}, nil
	}
	plan := Plan{Cancel: true}
	for _, r := range selected {
		if lifecycle.CanCancel(r) {
			plan.Targets = append(plan.Targets, r)
		} else {
			plan.Skipped++
		}
	}
	return plan, nil
}
