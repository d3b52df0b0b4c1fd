// Package dates resolves the free-text dates a voice agent passes along
// ("tomorrow", "next friday", "2026-09-12") to calendar dates.
package dates

import (
	"errors"
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

const ISODate = "2006-01-02"

var ErrUnresolvable = errors.New("date could not be resolved")

// Resolver turns free text into an ISO YYYY-MM-DD date.
type Resolver interface {
	Resolve(input string, now time.Time) (string, error)
}

// NLResolver resolves natural-language dates with english rules, trying
// exact layouts first so plain ISO input never goes through the NL parser.
type NLResolver struct {
	parser *when.Parser
}

func NewResolver() *NLResolver {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &NLResolver{parser: w}
}

var layouts = []string{ISODate, "01/02/2006", "January 2, 2006", "Jan 2, 2006", "January 2", "Jan 2"}

func (r *NLResolver) Resolve(input string, now time.Time) (string, error) {
	const op = "dates.Resolve"

	if input == "" {
		return "", fmt.Errorf("%s:%w", op, ErrUnresolvable)
	}

	for _, layout := range layouts {
		t, err := time.ParseInLocation(layout, input, now.Location())
		if err != nil {
			continue
		}
		// Month/day layouts carry year 0; pin them to the current year.
		if t.Year() == 0 {
			t = time.Date(now.Year(), t.Month(), t.Day(), 0, 0, 0, 0, now.Location())
		}
		return t.Format(ISODate), nil
	}

	res, err := r.parser.Parse(input, now)
	if err != nil {
		return "", fmt.Errorf("%s:%w", op, err)
	}
	if res == nil {
		return "", fmt.Errorf("%s:%w", op, ErrUnresolvable)
	}

	return res.Time.Format(ISODate), nil
}
