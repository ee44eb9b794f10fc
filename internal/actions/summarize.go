package actions

import "fmt"

// Summarize returns one human-readable line per action, in block order.
func Summarize(b *Block) []string {
	if b == nil {
		return nil
	}
	lines := make([]string, 0, len(b.Actions))
	for _, a := range b.Actions {
		lines = append(lines, Describe(a))
	}
	return lines
}

// Describe renders a single action for a confirmation prompt.
func Describe(a Action) string {
	switch v := a.(type) {
	case *Write:
		return fmt.Sprintf("write to `%s`", v.Range)
	case *Formula:
		return fmt.Sprintf("formula `%s` in `%s`", v.Formula, v.Range)
	case *Format:
		return fmt.Sprintf("formatting of `%s`", v.Range)
	default:
		return fmt.Sprintf("%s on `%s`", a.Kind(), a.Target())
	}
}
