package schedule

// Rule is one task's recurring-trigger specification. All fields are
// optional; a rule with several fields is evaluated independently against
// each (any match fires the task).
//
// Entry formats:
//
//	per_day:  "HH:MM"
//	per_week: "<Weekday> HH:MM"   (full English weekday name)
//	per_year: "MM-DD HH:MM"
type Rule struct {
	PerDay  []string `json:"per_day,omitempty"`
	PerWeek []string `json:"per_week,omitempty"`
	PerYear []string `json:"per_year,omitempty"`
}

// RuleSet maps task names to their rules.
type RuleSet map[string]Rule
