// Package address canonicalizes raw scraped address strings into the
// identity key used for property deduplication.
package address

import (
	"errors"
	"strings"
)

// ErrInvalidAddress marks an address that cannot identify a property after
// normalization (empty line or postal code). Observations carrying one are
// rejected, not retried.
var ErrInvalidAddress = errors.New("invalid address")

// Normalized is the canonical form of a raw address. Line, City and
// PostalCode form the identity key; the rest is retained for display and
// secondary lookups.
type Normalized struct {
	Line        string
	City        string
	State       string
	PostalCode  string
	County      string
	Unit        string
	DisplayLine string
}

// Key returns the identity triple as a single comparable string.
func (n Normalized) Key() string {
	return n.Line + "|" + n.City + "|" + n.PostalCode
}

// streetSuffixes maps spelled-out street suffixes to their canonical
// abbreviations (USPS style, without periods).
var streetSuffixes = map[string]string{
	"STREET":    "ST",
	"AVENUE":    "AVE",
	"BOULEVARD": "BLVD",
	"DRIVE":     "DR",
	"LANE":      "LN",
	"ROAD":      "RD",
	"COURT":     "CT",
	"CIRCLE":    "CIR",
	"PLACE":     "PL",
	"TERRACE":   "TER",
	"PARKWAY":   "PKWY",
	"HIGHWAY":   "HWY",
	"TRAIL":     "TRL",
	"SQUARE":    "SQ",
	"LOOP":      "LOOP",
	"WAY":       "WAY",
}

// unitDesignators start the unit/suite portion of an address line. That
// portion is kept for display but excluded from the identity key so that a
// source listing "123 Main St Apt 4" and one listing "123 Main St #4" do not
// split into two properties while distinct units still normalize distinctly.
var unitDesignators = map[string]bool{
	"APT":   true,
	"UNIT":  true,
	"STE":   true,
	"SUITE": true,
	"BLDG":  true,
	"LOT":   true,
	"TRLR":  true,
	"RM":    true,
}

// stateAbbrs maps spelled-out state names (upper-cased, spaces removed) to
// their two-letter form.
var stateAbbrs = map[string]string{
	"ALABAMA": "AL", "ALASKA": "AK", "ARIZONA": "AZ", "ARKANSAS": "AR",
	"CALIFORNIA": "CA", "COLORADO": "CO", "CONNECTICUT": "CT", "DELAWARE": "DE",
	"FLORIDA": "FL", "GEORGIA": "GA", "HAWAII": "HI", "IDAHO": "ID",
	"ILLINOIS": "IL", "INDIANA": "IN", "IOWA": "IA", "KANSAS": "KS",
	"KENTUCKY": "KY", "LOUISIANA": "LA", "MAINE": "ME", "MARYLAND": "MD",
	"MASSACHUSETTS": "MA", "MICHIGAN": "MI", "MINNESOTA": "MN", "MISSISSIPPI": "MS",
	"MISSOURI": "MO", "MONTANA": "MT", "NEBRASKA": "NE", "NEVADA": "NV",
	"NEWHAMPSHIRE": "NH", "NEWJERSEY": "NJ", "NEWMEXICO": "NM", "NEWYORK": "NY",
	"NORTHCAROLINA": "NC", "NORTHDAKOTA": "ND", "OHIO": "OH", "OKLAHOMA": "OK",
	"OREGON": "OR", "PENNSYLVANIA": "PA", "RHODEISLAND": "RI", "SOUTHCAROLINA": "SC",
	"SOUTHDAKOTA": "SD", "TENNESSEE": "TN", "TEXAS": "TX", "UTAH": "UT",
	"VERMONT": "VT", "VIRGINIA": "VA", "WASHINGTON": "WA", "WESTVIRGINIA": "WV",
	"WISCONSIN": "WI", "WYOMING": "WY", "DISTRICTOFCOLUMBIA": "DC",
}

// Normalize canonicalizes raw address components into a deterministic
// identity key. It fails with ErrInvalidAddress when the address line or
// postal code is empty after normalization.
func Normalize(line, city, state, postalCode, county string) (Normalized, error) {
	displayLine := collapseSpaces(line)

	normLine, unit := normalizeLine(displayLine)
	normCity := strings.ToUpper(collapseSpaces(city))
	normPostal := normalizePostal(postalCode)

	if normLine == "" || normPostal == "" {
		return Normalized{}, ErrInvalidAddress
	}

	return Normalized{
		Line:        normLine,
		City:        normCity,
		State:       NormalizeState(state),
		PostalCode:  normPostal,
		County:      collapseSpaces(county),
		Unit:        unit,
		DisplayLine: displayLine,
	}, nil
}

// NormalizeState upper-cases a state to its two-letter form. Unknown values
// pass through upper-cased so they remain visible rather than being dropped.
func NormalizeState(state string) string {
	s := strings.ToUpper(collapseSpaces(state))
	if len(s) == 2 {
		return s
	}
	if abbr, ok := stateAbbrs[strings.ReplaceAll(s, " ", "")]; ok {
		return abbr
	}
	return s
}

// normalizeLine upper-cases the address line, collapses whitespace, applies
// the street-suffix abbreviations and splits off the unit/suite portion.
func normalizeLine(line string) (norm, unit string) {
	tokens := strings.Fields(strings.ToUpper(line))

	var kept []string
	for i, tok := range tokens {
		tok = strings.TrimRight(tok, ".,")
		if tok == "" {
			continue
		}

		// "#4" or a designator token starts the unit portion; everything
		// from here on belongs to it.
		if strings.HasPrefix(tok, "#") || (unitDesignators[tok] && i > 0) {
			unit = strings.TrimPrefix(strings.Join(append([]string{tok}, upperTrimmed(tokens[i+1:])...), " "), "#")
			unit = strings.TrimSpace(unit)
			break
		}

		if abbr, ok := streetSuffixes[tok]; ok {
			tok = abbr
		}
		kept = append(kept, tok)
	}

	return strings.Join(kept, " "), unit
}

func upperTrimmed(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		t = strings.TrimRight(t, ".,")
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizePostal trims whitespace and reduces ZIP+4 codes to their 5-digit
// prefix so both forms produce the same identity key.
func normalizePostal(postal string) string {
	p := strings.TrimSpace(postal)
	if i := strings.IndexByte(p, '-'); i >= 0 {
		p = p[:i]
	}
	return p
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
