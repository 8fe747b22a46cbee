// Package query normalizes legal search queries and extracts the terms used for keyword boosting.
package query

import "strings"

// abbreviation maps a law-enforcement abbreviation to the text appended when it is found.
type abbreviation struct {
	short    string
	expanded string
}

// abbreviations is iterated in order; expansions are appended in this order.
var abbreviations = []abbreviation{
	{"owi", "operating while intoxicated"},
	{"dui", "driving under the influence"},
	{"dwi", "driving while intoxicated"},
	{"bac", "blood alcohol concentration"},
	{"pac", "prohibited alcohol concentration"},
	{"mvr", "motor vehicle record"},
	{"mva", "motor vehicle accident"},
	{"leo", "law enforcement officer"},
	{"tro", "temporary restraining order"},
	{"dv", "domestic violence"},
	{"cdl", "commercial driver license"},
	{"pts", "points"},
	{"fta", "failure to appear"},
	{"rso", "registered sex offender"},
	{"terry stop", "investigative stop reasonable suspicion"},
	{"miranda", "miranda rights warnings custodial interrogation"},
	{"4th amendment", "fourth amendment unreasonable search seizure"},
}

// corrections maps common misspellings of legal terms to the canonical term.
var corrections = map[string]string{
	"suspecion":     "suspicion",
	"suspicion":     "suspicion",
	"probale":       "probable",
	"probible":      "probable",
	"consitutional": "constitutional",
	"constiutional": "constitutional",
	"constituional": "constitutional",
	"restaining":    "restraining",
	"arest":         "arrest",
	"arested":       "arrested",
	"arrestted":     "arrested",
	"mirnada":       "miranda",
	"mianda":        "miranda",
	"mirada":        "miranda",
	"vehicel":       "vehicle",
	"vehical":       "vehicle",
	"trafic":        "traffic",
	"traffick":      "traffic",
	"reckeless":     "reckless",
	"reckless":      "reckless",
	"intoxicaed":    "intoxicated",
	"intoxicatd":    "intoxicated",
	"harasment":     "harassment",
	"harrasment":    "harassment",
	"assalt":        "assault",
	"baterry":       "battery",
	"batery":        "battery",
	"burglery":      "burglary",
	"robery":        "robbery",
	"homocide":      "homicide",
	"larcany":       "larceny",
	"recless":       "reckless",
	"neglagence":    "negligence",
	"neglegence":    "negligence",
	"warrent":       "warrant",
	"warant":        "warrant",
	"supena":        "subpoena",
	"subpena":       "subpoena",
	"witnes":        "witness",
	"evidance":      "evidence",
	"evidnce":       "evidence",
}

// Normalize spell-corrects raw and appends the expansions of any abbreviations it contains.
//
// Correction is per whitespace token, matched case-insensitively; tokens without a
// correction are kept verbatim. Abbreviations match by substring containment against
// the lowercased corrected text, and an expansion is appended only when it is not
// already present. Original terms are never removed.
func Normalize(raw string) string {
	expanded := Correct(raw)
	lower := strings.ToLower(expanded)
	for _, a := range abbreviations {
		if strings.Contains(lower, a.short) && !strings.Contains(lower, a.expanded) {
			expanded += " " + a.expanded
		}
	}
	return expanded
}

// Correct applies only the spelling corrections. Tokens are re-joined with single spaces.
func Correct(raw string) string {
	words := strings.Fields(raw)
	for i, w := range words {
		if c, ok := corrections[strings.ToLower(w)]; ok {
			words[i] = c
		}
	}
	return strings.Join(words, " ")
}
