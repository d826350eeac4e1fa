package schedule

import (
	"fmt"
	"regexp"
	"time"
)

// Class-type labels follow SK<semester 1-10><A-D>, e.g. SK5A. Semesters roll
// twice a year on the fixed academic halves Jan-Jun and Jul-Dec.
var classTypePattern = regexp.MustCompile(`^SK(10|[1-9])([A-D])$`)

var classSuffixes = []string{"A", "B", "C", "D"}

var (
	oddSemesters  = []int{1, 3, 5, 7, 9}
	evenSemesters = []int{2, 4, 6, 8, 10}
)

// period identifies an academic half: half 1 is Jan-Jun, half 2 is Jul-Dec.
type period struct {
	year int
	half int
}

func periodOf(t time.Time, loc *time.Location) period {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	half := 1
	if t.Month() >= time.July {
		half = 2
	}
	return period{year: t.Year(), half: half}
}

// PeriodsPassed counts academic halves elapsed between two instants.
func PeriodsPassed(registration, now time.Time, loc *time.Location) int {
	from := periodOf(registration, loc)
	to := periodOf(now, loc)
	return (to.year-from.year)*2 + (to.half - from.half)
}

// RollClassType derives a student's current class-type label from the
// registration date and the base label's trailing letter. Returns the new
// label and whether it differs from current. A computed semester outside
// 1..10 freezes the label unchanged; graduation is not an error here.
func RollClassType(registration time.Time, current string, now time.Time, loc *time.Location) (string, bool) {
	if current == "" {
		return current, false
	}

	letter := "A"
	if m := classTypePattern.FindStringSubmatch(current); m != nil {
		letter = m[2]
	} else if n := len(current); n > 0 {
		if c := current[n-1]; c >= 'A' && c <= 'D' {
			letter = string(c)
		} else if c >= 'a' && c <= 'd' {
			letter = string(c - 'a' + 'A')
		}
	}

	semester := 1 + PeriodsPassed(registration, now, loc)
	if semester < 1 || semester > 10 {
		return current, false
	}

	rolled := fmt.Sprintf("SK%d%s", semester, letter)
	return rolled, rolled != current
}

// AvailableClassTypes enumerates the labels valid for the academic half that
// contains now: odd semesters during Jul-Dec, even semesters during Jan-Jun,
// each with suffixes A-D. Exactly one cohort progresses per half.
func AvailableClassTypes(now time.Time, loc *time.Location) []string {
	semesters := evenSemesters
	if periodOf(now, loc).half == 2 {
		semesters = oddSemesters
	}

	out := make([]string, 0, len(semesters)*len(classSuffixes))
	for _, sem := range semesters {
		for _, suffix := range classSuffixes {
			out = append(out, fmt.Sprintf("SK%d%s", sem, suffix))
		}
	}
	return out
}

// ValidClassType reports whether label is well-formed and assignable during
// the academic half containing now.
func ValidClassType(label string, now time.Time, loc *time.Location) bool {
	if !classTypePattern.MatchString(label) {
		return false
	}
	for _, available := range AvailableClassTypes(now, loc) {
		if available == label {
			return true
		}
	}
	return false
}
