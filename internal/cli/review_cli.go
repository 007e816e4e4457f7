package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/at-ishikawa/cardreview/internal/card"
	"github.com/at-ishikawa/cardreview/internal/cardlist"
	"github.com/at-ishikawa/cardreview/internal/collection"
	"github.com/at-ishikawa/cardreview/internal/deck"
)

//go:generate mockgen -source=review_cli.go -destination=../mocks/cli/mock_reviewer.go -package=mock_cli Reviewer

// Reviewer is the review stream driven by the CLI.
type Reviewer interface {
	Current() *card.Card
	CurrentKind() (cardlist.Kind, bool)
	Answer(ctx context.Context, grade card.Grade) (bool, error)
	Dismiss(ctx context.Context) (bool, error)
	CountByState(mask collection.StateMask) int
}

var gradeLabels = map[string]string{
	card.GradeFailSevere.LabelKey(): "Again (no idea)",
	card.GradeFailMedium.LabelKey(): "Again (familiar)",
	card.GradeFail.LabelKey():       "Again",
	card.GradeHard.LabelKey():       "Hard",
	card.GradeGood.LabelKey():       "Good",
	card.GradeEasy.LabelKey():       "Easy",
}

// ReviewCLI reviews the cards of a collection one by one in the terminal.
type ReviewCLI struct {
	*InteractiveCLI
	reviewer Reviewer
	reviewed int
}

func NewReviewCLI(reviewer Reviewer, in io.Reader, out io.Writer) *ReviewCLI {
	return &ReviewCLI{
		InteractiveCLI: newInteractiveCLI(in, out),
		reviewer:       reviewer,
	}
}

// Reviewed returns the number of answered cards.
func (r *ReviewCLI) Reviewed() int {
	return r.reviewed
}

func (r *ReviewCLI) Session(ctx context.Context) error {
	current := r.reviewer.Current()
	if current == nil {
		r.println("No more cards to review today!")
		return errEnd
	}

	r.printCounts()
	face, err := deck.DecodeFace(current.Data)
	if err != nil {
		return fmt.Errorf("card %d: %w", current.ID, err)
	}
	r.printf("\n%s\n", r.bold.Sprint(face.Front))
	r.printf("%s", r.faint.Sprint("Press Enter to show the answer, d to dismiss, q to quit: "))
	input, err := r.readLine()
	if err != nil {
		return err
	}
	switch input {
	case "q":
		return errEnd
	case "d":
		return r.dismiss(ctx)
	}

	r.printf("%s\n\n", r.italic.Sprint(face.Back))
	options := current.ComputeGrades()
	for i, o := range options {
		r.printf("  %d) %s\n", i+1, label(o))
	}
	r.printf("Grade (1-%d): ", len(options))
	input, err = r.readLine()
	if err != nil {
		return err
	}
	if input == "q" {
		return errEnd
	}
	n, err := strconv.Atoi(input)
	if err != nil || n < 1 || n > len(options) {
		r.println(color.RedString("Invalid grade %q", input))
		return nil
	}

	grade := options[n-1].Grade
	if _, err := r.reviewer.Answer(ctx, grade); err != nil {
		return fmt.Errorf("answer card %d: %w", current.ID, err)
	}
	r.reviewed++
	if grade.IsFail() {
		r.println(color.RedString("❌ %s", label(options[n-1])))
	} else {
		r.println(color.GreenString("✅ %s", label(options[n-1])))
	}
	r.println()
	return nil
}

func (r *ReviewCLI) dismiss(ctx context.Context) error {
	if _, err := r.reviewer.Dismiss(ctx); err != nil {
		return fmt.Errorf("dismiss: %w", err)
	}
	r.println(color.YellowString("Dismissed for this session"))
	r.println()
	return nil
}

func (r *ReviewCLI) printCounts() {
	kind, _ := r.reviewer.CurrentKind()
	r.printf("%s  %s  %s  %s\n",
		color.BlueString("New: %d", r.reviewer.CountByState(collection.MaskNew)),
		color.RedString("Learning: %d", r.reviewer.CountByState(collection.MaskLearning)),
		color.GreenString("Due: %d", r.reviewer.CountByState(collection.MaskDue)),
		r.faint.Sprintf("(%s card)", kind))
}

func (r *ReviewCLI) readLine() (string, error) {
	line, err := r.stdinReader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", errEnd
		}
		return "", fmt.Errorf("error reading input: %w", err)
	}
	return strings.ToLower(strings.TrimSpace(line)), nil
}

func label(o card.GradeOption) string {
	if l, ok := gradeLabels[o.LabelKey]; ok {
		return l
	}
	return o.Grade.String()
}
