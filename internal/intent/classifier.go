package intent

// Result is the outcome of classifying one message.
type Result struct {
	Intent   Intent
	Phrase   string
	Platform *Platform
}

// Classifier applies an ordered rule table, then the platform catalog.
type Classifier struct {
	rules   []Rule
	catalog *Catalog
}

// NewClassifier builds a classifier. A nil rule table uses DefaultRules and a nil
// catalog uses DefaultCatalog. Rule phrases are normalized here, so tables may
// be written with accents.
func NewClassifier(rules []Rule, catalog *Catalog) *Classifier {
	if rules == nil {
		rules = DefaultRules()
	}
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	normalized := make([]Rule, 0, len(rules))
	for _, r := range rules {
		phrases := make([]string, 0, len(r.Phrases))
		for _, p := range r.Phrases {
			if n := Normalize(p); n != "" {
				phrases = append(phrases, n)
			}
		}
		if len(r.Phrases) > 0 && len(phrases) == 0 {
			continue
		}
		normalized = append(normalized, Rule{Intent: r.Intent, Phrases: phrases, RequiresSupport: r.RequiresSupport})
	}
	return &Classifier{rules: normalized, catalog: catalog}
}

// Catalog exposes the platform catalog used for lookups.
func (c *Classifier) Catalog() *Catalog {
	return c.catalog
}

// Classify maps normalized text to an intent; first matching rule wins.
func (c *Classifier) Classify(normalized string, inSupport bool) Result {
	for _, r := range c.rules {
		if phrase, ok := r.match(normalized, inSupport); ok {
			return Result{Intent: r.Intent, Phrase: phrase}
		}
	}
	if p, ok := c.catalog.Lookup(normalized); ok {
		return Result{Intent: IntentPlatformLookup, Platform: &p}
	}
	return Result{Intent: IntentNone}
}
