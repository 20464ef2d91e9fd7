package browser

// SelectorKind distinguishes CSS from XPath selectors.
type SelectorKind int

const (
	CSS SelectorKind = iota
	XPath
)

// Selector names one way to locate a logical UI control. Controls that render
// differently across portal revisions carry an ordered list of variants; the
// session primitives try them in order and the first success wins.
type Selector struct {
	Kind  SelectorKind
	Value string
}

// Css builds a CSS selector.
func Css(value string) Selector { return Selector{Kind: CSS, Value: value} }

// Xp builds an XPath selector.
func Xp(value string) Selector { return Selector{Kind: XPath, Value: value} }

func (s Selector) String() string { return s.Value }
