package disposition

import (
	"strings"

	"dialer-engine/internal/contacts"
)

// Disposition is one allowed wrap-up classification.
type Disposition struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Outcome drives the contact's requeue/retire decision at finalize.
	Outcome contacts.Outcome `json:"outcome"`

	// RequiresNotes forces the agent to explain the call (e.g. callbacks
	// need a time window, complaints need a summary).
	RequiresNotes bool `json:"requires_notes"`

	// RequiresFollowUp flags dispositions the agent console should chase
	// with a follow-up task. Reference data only; the engine's requeue
	// decision comes from Outcome.
	RequiresFollowUp bool `json:"requires_follow_up"`
}

// Catalog is the closed set of dispositions agents may choose from.
//
// Resolution is forgiving on form, strict on substance: case, surrounding
// whitespace and space/underscore/hyphen differences are tolerated, but a
// name that does not fold onto a catalog entry is rejected outright. Agents
// cannot invent dispositions.
type Catalog struct {
	byName   map[string]Disposition
	byFolded map[string]Disposition
	ordered  []Disposition
}

func NewCatalog(items []Disposition) *Catalog {
	c := &Catalog{
		byName:   make(map[string]Disposition, len(items)),
		byFolded: make(map[string]Disposition, len(items)),
	}
	for _, d := range items {
		if d.Name == "" {
			continue
		}
		if _, dup := c.byName[d.Name]; dup {
			continue
		}
		c.byName[d.Name] = d
		c.byFolded[fold(d.Name)] = d
		c.ordered = append(c.ordered, d)
	}
	return c
}

// DefaultCatalog is the stock contact-center disposition set.
func DefaultCatalog() *Catalog {
	return NewCatalog([]Disposition{
		{ID: "disp-sale-made", Name: "Sale Made", Outcome: contacts.OutcomeContacted, RequiresFollowUp: true},
		{ID: "disp-interested", Name: "Interested", Outcome: contacts.OutcomeContacted, RequiresFollowUp: true},
		{ID: "disp-not-interested", Name: "Not Interested", Outcome: contacts.OutcomeContacted},
		{ID: "disp-do-not-call", Name: "Do Not Call", Outcome: contacts.OutcomeContacted, RequiresNotes: true},
		{ID: "disp-callback", Name: "Callback Requested", Outcome: contacts.OutcomeCallback, RequiresNotes: true, RequiresFollowUp: true},
		{ID: "disp-voicemail", Name: "Voicemail Left", Outcome: contacts.OutcomeVoicemail},
		{ID: "disp-wrong-number", Name: "Wrong Number", Outcome: contacts.OutcomeInvalidNumber},
		{ID: "disp-language-barrier", Name: "Language Barrier", Outcome: contacts.OutcomeContacted},
	})
}

// Resolve maps an agent-supplied name to a catalog entry: exact match
// first, then case-insensitive, then folded (separators ignored).
func (c *Catalog) Resolve(name string) (Disposition, bool) {
	if c == nil {
		return Disposition{}, false
	}
	if d, ok := c.byName[name]; ok {
		return d, true
	}
	trimmed := strings.TrimSpace(name)
	for stored, d := range c.byName {
		if strings.EqualFold(stored, trimmed) {
			return d, true
		}
	}
	d, ok := c.byFolded[fold(name)]
	return d, ok
}

// List returns the catalog in registration order.
func (c *Catalog) List() []Disposition {
	if c == nil {
		return nil
	}
	out := make([]Disposition, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// fold normalizes a disposition name for fuzzy matching: lowercase with
// all whitespace, underscores and hyphens removed.
func fold(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch r {
		case ' ', '\t', '_', '-':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
