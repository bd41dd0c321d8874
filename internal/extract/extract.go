package extract

import "regexp"

// Record is one extracted carpool trip: the first name token after the
// trigger keyword is the driver, every following token a passenger.
type Record struct {
	Driver     string
	Passengers []string
}

// Options control extraction policy for the cases the grammar leaves
// open. Zero value means raw counting: self-references and repeated
// passengers are kept as-is.
type Options struct {
	// DropSelfPassenger removes passenger tokens equal to the driver.
	DropSelfPassenger bool
	// DedupePassengers keeps only the first occurrence of each passenger
	// within one event.
	DedupePassengers bool
}

// The grammar: the literal keyword "carpool" (case-insensitive,
// anywhere in the text), then one-or-more runs of (separator, token),
// at least two tokens total. A token is a maximal run of word
// characters; any non-word run separates tokens. First match wins.
var (
	triggerRe = regexp.MustCompile(`(?i)carpool((?:[^\p{L}\p{N}_]+[\p{L}\p{N}_]+){2,})`)
	tokenRe   = regexp.MustCompile(`[\p{L}\p{N}_]+`)
	digitsRe  = regexp.MustCompile(`^[0-9]+$`)
)

// Extract parses one event text with default options.
func Extract(text string) (Record, bool) {
	return ExtractWith(text, Options{})
}

// ExtractWith parses one event text into a Record, or reports no match.
// Malformed input is never an error: any string is a valid input, and
// anything the grammar does not recognize simply yields ok == false.
func ExtractWith(text string, opts Options) (Record, bool) {
	m := triggerRe.FindStringSubmatchIndex(text)
	if m == nil {
		return Record{}, false
	}

	// The token run after the trigger, starting with a separator.
	tail := text[m[2]:m[3]]
	toks := tokenRe.FindAllStringIndex(tail, -1)
	// The pattern guarantees at least two tokens here.
	if len(toks) < 2 {
		return Record{}, false
	}

	driver := tail[toks[0][0]:toks[0][1]]

	passengers := make([]string, 0, len(toks)-1)
	var seen map[string]bool
	if opts.DedupePassengers {
		seen = make(map[string]bool, len(toks)-1)
	}

	for _, t := range toks[1:] {
		name := tail[t[0]:t[1]]
		if isGuestToken(tail, t[0], name) {
			// "+N" anonymous guests are recognized but not billed.
			continue
		}
		if opts.DropSelfPassenger && name == driver {
			continue
		}
		if opts.DedupePassengers {
			if seen[name] {
				continue
			}
			seen[name] = true
		}
		passengers = append(passengers, name)
	}

	// A trip with no billable passenger is not a trip.
	if len(passengers) == 0 {
		return Record{}, false
	}

	return Record{Driver: driver, Passengers: passengers}, true
}

// isGuestToken reports whether the token at start is an anonymous
// "+N guests" marker: digits only, with a '+' immediately adjacent
// before it. "Wolfgang +1" drops the 1; "Wolfgang + 1" keeps it as an
// ordinary name token.
func isGuestToken(tail string, start int, tok string) bool {
	if !digitsRe.MatchString(tok) {
		return false
	}
	return start > 0 && tail[start-1] == '+'
}
