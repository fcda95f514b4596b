package golden

import (
	"fmt"
	"strings"
	"time"
)

// Report renders a summary as a markdown document.
func Report(s *Summary) string {
	var b strings.Builder
	b.WriteString("# Fixture results\n\n")
	fmt.Fprintf(&b, "**%d passed, %d failed** of %d fixtures.\n\n", s.Passed(), len(s.Failed()), len(s.Results))

	if len(s.Results) == 0 {
		b.WriteString("_No fixtures found._\n")
		return b.String()
	}

	b.WriteString("| Fixture | Result | Time |\n")
	b.WriteString("|---|---|---|\n")
	for _, r := range s.Results {
		status := "PASS"
		if !r.Passed() {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "| %s | %s | %s |\n", r.Name, status, r.Duration.Round(time.Millisecond))
	}

	if failed := s.Failed(); len(failed) > 0 {
		b.WriteString("\n## Failures\n\n")
		for _, r := range s.Results {
			if r.Passed() {
				continue
			}
			fmt.Fprintf(&b, "- `%s`: %s\n", r.Name, strings.ReplaceAll(r.Err.Error(), "\n", " "))
		}
	}
	return b.String()
}
