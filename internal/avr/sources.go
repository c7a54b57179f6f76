package avr

import "strings"

// SourceTable maps two-character input-selector codes to their human-readable
// aliases. One physical input usually carries several interchangeable names
// ("03" is VIDEO4, AUX1 and AUX depending on the model year), so lookups by
// name accept any alias in the list, case-insensitively.
type SourceTable struct {
	byCode  map[string][]string
	byAlias map[string]string // upper-cased alias -> code
}

// NewSourceTable builds a table from code -> comma-separated alias list.
func NewSourceTable(entries map[string]string) *SourceTable {
	t := &SourceTable{
		byCode:  make(map[string][]string, len(entries)),
		byAlias: make(map[string]string),
	}
	for code, list := range entries {
		aliases := strings.Split(list, ",")
		for i, a := range aliases {
			aliases[i] = strings.TrimSpace(a)
		}
		t.byCode[code] = aliases
		for _, a := range aliases {
			t.byAlias[strings.ToUpper(a)] = code
		}
	}
	return t
}

// Name returns the canonical (first) alias for a selector code.
func (t *SourceTable) Name(code string) (string, bool) {
	aliases, ok := t.byCode[code]
	if !ok || len(aliases) == 0 {
		return "", false
	}
	return aliases[0], true
}

// Aliases returns every alias registered for a selector code.
func (t *SourceTable) Aliases(code string) []string {
	return t.byCode[code]
}

// Code resolves a name or alias, case-insensitively, to its selector code.
func (t *SourceTable) Code(alias string) (string, bool) {
	code, ok := t.byAlias[strings.ToUpper(strings.TrimSpace(alias))]
	return code, ok
}

// DefaultSources is the Onkyo input-selector set. Entries marked with an
// asterisk in the vendor docs (model-dependent inputs) keep the marker as
// part of the alias.
var DefaultSources = map[string]string{
	"00": "VIDEO1,VCR/DVR,STB/DVR",
	"01": "VIDEO2,CBL/SAT",
	"02": "VIDEO3,GAME/TV,GAME,GAME1",
	"03": "VIDEO4,AUX1,AUX",
	"04": "VIDEO5,AUX2,GAME2",
	"05": "VIDEO6,PC",
	"06": "VIDEO7",
	"07": "HIDDEN1,EXTRA1",
	"08": "HIDDEN2,EXTRA2",
	"09": "HIDDEN3,EXTRA3",
	"10": "DVD,BD/DVD",
	"20": "TAPE,TV/TAPE",
	"21": "TAPE2",
	"22": "PHONO",
	"23": "CD,TV/CD",
	"24": "FM",
	"25": "AM",
	"26": "TUNER",
	"27": "MUSIC SERVER,P4S,DLNA*2",
	"28": "INTERNET RADIO,IRADIO FAVORITE*3",
	"29": "USB/USB (FRONT)",
	"2A": "USB (REAR)",
	"2B": "NETWORK,NET",
	"2C": "USB (TOGGLE)",
	"2D": "AIPLAY",
	"30": "MULTICH",
	"31": "XM*1",
	"32": "SIRIUS*1",
	"33": "DAB*5",
	"40": "UNIVERSALPORT",
}
