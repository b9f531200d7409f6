package intent

import (
	"sort"
	"strings"
)

// Platform is one product of the storefront catalog.
type Platform struct {
	Key         string
	DisplayName string
	Price       string
	ImageURL    string
	Category    string
}

type alias struct {
	phrase string
	key    string
}

// Catalog resolves free text to a configured platform via an alias table.
type Catalog struct {
	platforms map[string]Platform
	aliases   []alias
	fallbacks map[string]string
}

// NewCatalog builds a catalog. Every configured key is also an alias of itself.
// fallbacks maps an alias target that may be missing from platforms to a
// substitute key (e.g. directv -> dgo).
func NewCatalog(platforms []Platform, aliases map[string]string, fallbacks map[string]string) *Catalog {
	c := &Catalog{
		platforms: make(map[string]Platform, len(platforms)),
		fallbacks: make(map[string]string, len(fallbacks)),
	}
	seen := make(map[string]bool)
	add := func(phrase, key string) {
		phrase = Normalize(strings.TrimSpace(phrase))
		key = Normalize(strings.TrimSpace(key))
		if phrase == "" || key == "" || seen[phrase] {
			return
		}
		seen[phrase] = true
		c.aliases = append(c.aliases, alias{phrase: phrase, key: key})
	}

	for _, p := range platforms {
		p.Key = Normalize(strings.TrimSpace(p.Key))
		if p.Key == "" {
			continue
		}
		if p.DisplayName == "" {
			p.DisplayName = strings.ToUpper(p.Key)
		}
		c.platforms[p.Key] = p
	}
	for phrase, key := range aliases {
		add(phrase, key)
	}
	for key := range c.platforms {
		add(key, key)
	}
	for from, to := range fallbacks {
		c.fallbacks[Normalize(from)] = Normalize(to)
	}

	// Longest alias first so "hbo max" wins over "hbo"; ties break lexically
	// to keep lookups deterministic.
	sort.Slice(c.aliases, func(i, j int) bool {
		a, b := c.aliases[i].phrase, c.aliases[j].phrase
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		return a < b
	})
	return c
}

// Lookup returns the first platform whose alias appears in the normalized text.
func (c *Catalog) Lookup(normalized string) (Platform, bool) {
	if c == nil || normalized == "" {
		return Platform{}, false
	}
	for _, a := range c.aliases {
		if !strings.Contains(normalized, a.phrase) {
			continue
		}
		if p, ok := c.platforms[a.key]; ok {
			return p, true
		}
		if fb, ok := c.fallbacks[a.key]; ok {
			if p, ok := c.platforms[fb]; ok {
				return p, true
			}
		}
	}
	return Platform{}, false
}

// Get returns the platform configured under key.
func (c *Catalog) Get(key string) (Platform, bool) {
	if c == nil {
		return Platform{}, false
	}
	p, ok := c.platforms[Normalize(key)]
	return p, ok
}

// Len reports the number of configured platforms.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.platforms)
}

// ByCategory lists the platforms of a category ordered by key.
func (c *Catalog) ByCategory(category string) []Platform {
	if c == nil {
		return nil
	}
	category = Normalize(category)
	var out []Platform
	for _, p := range c.platforms {
		if Normalize(p.Category) == category {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Categories returns the distinct categories in lexical order.
func (c *Catalog) Categories() []string {
	if c == nil {
		return nil
	}
	set := make(map[string]struct{})
	for _, p := range c.platforms {
		set[p.Category] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for cat := range set {
		out = append(out, cat)
	}
	sort.Strings(out)
	return out
}

// DefaultCatalog returns the Multiplay store catalog.
func DefaultCatalog() *Catalog {
	return NewCatalog(defaultPlatforms, defaultAliases, map[string]string{"directv": "dgo"})
}

var defaultPlatforms = []Platform{
	{Key: "netflix", Price: "13.000", ImageURL: "https://i.postimg.cc/7ZzgJh3X/NETFLIX.png", Category: "streaming"},
	{Key: "disney", Price: "9.000", ImageURL: "https://i.postimg.cc/YS1fZ0jj/DISNEY.png", Category: "streaming"},
	{Key: "hbo", Price: "9.000", ImageURL: "https://i.postimg.cc/pXpQxqyw/HBOMAX.png", Category: "streaming"},
	{Key: "prime", Price: "9.000", ImageURL: "https://i.postimg.cc/C5d8hxMG/PRIMEVIDEO.png", Category: "streaming"},
	{Key: "vix", Price: "9.000", ImageURL: "https://i.postimg.cc/y80ZY5Kb/VIX.png", Category: "streaming"},
	{Key: "directv", Price: "30.000", ImageURL: "https://i.postimg.cc/nzpYJxQ2/DGO.png", Category: "deportes"},
	{Key: "dgo", Price: "30.000", ImageURL: "https://i.postimg.cc/nzpYJxQ2/DGO.png", Category: "deportes"},
	{Key: "spotify", Price: "9.000", ImageURL: "https://i.postimg.cc/gj5Znbrf/SPOTIFY.png", Category: "musica"},
	{Key: "youtube", Price: "9.000", ImageURL: "https://i.postimg.cc/MGDf1Qv0/YTPREMIUMX1.png", Category: "musica"},
	{Key: "canva", Price: "15.000", ImageURL: "https://i.postimg.cc/RVFdhvpb/CANVAPRO.png", Category: "diseño"},
	{Key: "office", Price: "20.000", ImageURL: "https://i.postimg.cc/bvj1xPLP/OFFICE365.png", Category: "productividad"},
	{Key: "duolingo", Price: "10.000", ImageURL: "https://i.postimg.cc/1tB0RdGQ/DUOLINGO.png", Category: "educacion"},
	{Key: "pornhub", Price: "12.000", ImageURL: "https://i.postimg.cc/Y9dgBW72/PONHUB.png", Category: "adulto"},
	{Key: "onlyfans", Price: "20.000", ImageURL: "https://i.postimg.cc/TPqgQsHD/ONLYFANS.png", Category: "adulto"},
}

var defaultAliases = map[string]string{
	"nf": "netflix", "netf": "netflix",
	"spot": "spotify", "spoti": "spotify",
	"yt": "youtube", "youtube premium": "youtube",
	"disney+": "disney", "disney plus": "disney",
	"hbo max": "hbo", "hbomax": "hbo",
	"amazon prime": "prime", "prime video": "prime",
	"vix+": "vix", "vix plus": "vix",
	"office 365": "office", "microsoft office": "office",
	"duo": "duolingo", "duolingo plus": "duolingo",
	"of": "onlyfans", "only": "onlyfans",
	"ph": "pornhub", "pornhub premium": "pornhub",
	"win sports": "dgo", "directv go": "directv",
	"directv": "directv",
}
