package card

import "fmt"

// Grade is the reviewer's answer to a card.
// Every grade up to and including GradeFail belongs to the fail family.
type Grade int

const (
	GradeFailSevere Grade = iota
	GradeFailMedium
	GradeFail
	GradeHard
	GradeGood
	GradeEasy
)

// IsFail reports whether g belongs to the fail family.
func (g Grade) IsFail() bool {
	return g <= GradeFail
}

// IsValid reports whether g is one of the known grades.
func (g Grade) IsValid() bool {
	return g >= GradeFailSevere && g <= GradeEasy
}

func (g Grade) String() string {
	switch g {
	case GradeFailSevere:
		return "fail-severe"
	case GradeFailMedium:
		return "fail-medium"
	case GradeFail:
		return "fail"
	case GradeHard:
		return "hard"
	case GradeGood:
		return "good"
	case GradeEasy:
		return "easy"
	default:
		return fmt.Sprintf("Grade(%d)", int(g))
	}
}

// LabelKey is the localization key of the grade button.
func (g Grade) LabelKey() string {
	return "review.grade." + g.String()
}

// GradeOption is one answer the presentation layer offers for a card.
type GradeOption struct {
	Grade    Grade
	LabelKey string
}

var (
	newGrades      = []Grade{GradeFail, GradeGood, GradeEasy}
	learningGrades = []Grade{GradeFail, GradeHard, GradeGood, GradeEasy}
	dueGrades      = []Grade{GradeFailSevere, GradeFailMedium, GradeFail, GradeHard, GradeGood, GradeEasy}
)

// ComputeGrades returns the grade options for the card's practice state, weakest first.
func (c *Card) ComputeGrades() []GradeOption {
	var grades []Grade
	switch {
	case c.IsNew():
		grades = newGrades
	case c.IsLearning():
		grades = learningGrades
	case c.IsDue():
		grades = dueGrades
	default:
		return nil
	}

	options := make([]GradeOption, len(grades))
	for i, g := range grades {
		options[i] = GradeOption{Grade: g, LabelKey: g.LabelKey()}
	}
	return options
}
