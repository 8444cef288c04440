package anonymize

import (
	"fmt"
	"strings"
	"text/tabwriter"
)

// FormatReport renders the audit trail as an aligned text table, one row per
// placeholder occurrence, in document order. Returns an empty string when
// nothing was replaced.
func FormatReport(records []AuditRecord) string {
	if len(records) == 0 {
		return ""
	}
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PLACEHOLDER\tCATEGORY\tLOCATION\tORIGINAL")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Placeholder, r.Category, r.Location, r.Original)
	}
	w.Flush() //nolint:errcheck // strings.Builder writes cannot fail
	return b.String()
}
