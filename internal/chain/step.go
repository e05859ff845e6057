package chain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/contentgraph/internal/apperr"
)

// Ref pulls ids out of a prior step's results.
type Ref struct {
	Index int    // 0-based index of the prior step
	Field string // id-bearing field of that step's items
}

func (r Ref) String() string {
	return strconv.Itoa(r.Index) + r.Field
}

// Step is one parsed chain element.
type Step struct {
	Endpoint string
	Refs     []Ref
	// Body is the raw JSON search literal, nil when absent.
	Body []byte
}

var (
	stepHead = regexp.MustCompile(`^([a-z]+)((?:\.[0-9]+[a-z]+)*)$`)
	refPart  = regexp.MustCompile(`\.([0-9]+)([a-z]+)`)
)

// Parse reads one chain element of the form
//
//	endpoint(.indexFIELD)*(-json)?
//
// e.g. "content-{\"type\":\"content.page\"}" or "user.0createuserid".
// Everything after the first '-' is the search body.
func Parse(s string) (Step, error) {
	head, body, hasBody := strings.Cut(s, "-")
	m := stepHead.FindStringSubmatch(head)
	if m == nil {
		return Step{}, apperr.BadRequest("chain %q: expected endpoint(.indexFIELD)*(-json)?", s)
	}

	step := Step{Endpoint: m[1]}
	for _, part := range refPart.FindAllStringSubmatch(m[2], -1) {
		index, err := strconv.Atoi(part[1])
		if err != nil {
			return Step{}, apperr.BadRequest("chain %q: index %q: %v", s, part[1], err)
		}
		step.Refs = append(step.Refs, Ref{Index: index, Field: part[2]})
	}
	if hasBody {
		if strings.TrimSpace(body) == "" {
			return Step{}, apperr.BadRequest("chain %q: empty search body", s)
		}
		step.Body = []byte(body)
	}
	return step, nil
}

// String renders the step back into chain syntax.
func (s Step) String() string {
	var b strings.Builder
	b.WriteString(s.Endpoint)
	for _, r := range s.Refs {
		fmt.Fprintf(&b, ".%s", r)
	}
	if s.Body != nil {
		b.WriteByte('-')
		b.Write(s.Body)
	}
	return b.String()
}
