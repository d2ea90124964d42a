package credit

import "placement-credit-sync/internal/model"

// Family groups course codes whose outcomes are reconciled as a set.
type Family int

const (
	FamilyNone Family = iota
	// FamilyPretest is the remedial placement pre-test (M 100T).
	FamilyPretest
	// FamilyDiagnostic is the remedial diagnostic (M 100M).
	FamilyDiagnostic
	// FamilyUmbrella is the consolidated placement-credit course (M 100C).
	FamilyUmbrella
)

func (f Family) String() string {
	switch f {
	case FamilyPretest:
		return "pretest"
	case FamilyDiagnostic:
		return "diagnostic"
	case FamilyUmbrella:
		return "umbrella"
	default:
		return "none"
	}
}

// familyPrefix covers every member of the remedial course family.
const familyPrefix = "M 100"

// familyRule says how a result in one family member interacts with the
// student's other member records.
type familyRule struct {
	// dominatedBy lists siblings whose presence makes the new result moot.
	dominatedBy []string
	// supersedes lists siblings removed before the new result is written.
	supersedes []string
	// clearFamily removes every other family member.
	clearFamily bool
}

var familyRules = map[Family]familyRule{
	FamilyNone:       {},
	FamilyPretest:    {dominatedBy: []string{model.CourseM100C, model.CourseM100M}},
	FamilyDiagnostic: {dominatedBy: []string{model.CourseM100C}, supersedes: []string{model.CourseM100T}},
	FamilyUmbrella:   {clearFamily: true},
}

func FamilyOf(courseID string) Family {
	switch courseID {
	case model.CourseM100T:
		return FamilyPretest
	case model.CourseM100M:
		return FamilyDiagnostic
	case model.CourseM100C:
		return FamilyUmbrella
	default:
		return FamilyNone
	}
}
