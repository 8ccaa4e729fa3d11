package template

import "fmt"

// Issue describes a construct that renders, but probably not the way the
// author intended.
type Issue struct {
	// Offset is the byte offset of the offending character in the source.
	Offset  int
	Message string
}

func (i Issue) String() string {
	return fmt.Sprintf("offset %d: %s", i.Offset, i.Message)
}

// Lint reports unmatched and nested brackets in src. It also reports
// placeholders that are not in known, when known is non-nil.
func Lint(src string, known []string) []Issue {
	var issues []Issue

	var open []int
	for i := 0; i < len(src); i++ {
		switch src[i] {
		case '[':
			if len(open) > 0 {
				issues = append(issues, Issue{Offset: i, Message: "nested '[' is kept as literal text inside the enclosing group"})
			}
			open = append(open, i)
		case ']':
			if len(open) == 0 {
				issues = append(issues, Issue{Offset: i, Message: "unmatched ']' is rendered literally"})
				continue
			}
			open = open[:len(open)-1]
		}
	}
	for _, off := range open {
		issues = append(issues, Issue{Offset: off, Message: "unmatched '[' is rendered literally"})
	}

	if known != nil {
		allowed := make(map[string]bool, len(known))
		for _, k := range known {
			allowed[k] = true
		}
		for _, name := range Parse(src).Placeholders() {
			if !allowed[name] {
				issues = append(issues, Issue{Offset: -1, Message: fmt.Sprintf("unknown placeholder {%s} always renders empty", name)})
			}
		}
	}

	return issues
}
