package runner

// Symbol is a collectible letter and the colour it is drawn with.
type Symbol struct {
	Glyph string
	Color string
}

// Alphabet is the fixed set of collectible letters.
var Alphabet = []Symbol{
	{"A", "#ef4444"},
	{"B", "#f97316"},
	{"C", "#eab308"},
	{"D", "#22c55e"},
	{"E", "#06b6d4"},
	{"F", "#3b82f6"},
	{"G", "#8b5cf6"},
	{"H", "#ec4899"},
}

// Avatars are the selectable characters. They are cosmetic.
var Avatars = []string{"fox", "owl", "robot"}

// Rect is an axis-aligned box; Y grows downwards.
type Rect struct {
	X, Y, W, H float64
}

// Overlaps reports whether two boxes share any area.
func (a Rect) Overlaps(b Rect) bool {
	return a.X < b.X+b.W && b.X < a.X+a.W && a.Y < b.Y+b.H && b.Y < a.Y+a.H
}

// Inset shrinks the box by m on every side.
func (a Rect) Inset(m float64) Rect {
	return Rect{X: a.X + m, Y: a.Y + m, W: a.W - 2*m, H: a.H - 2*m}
}

// Player is the avatar. Y is the top edge.
type Player struct {
	Y         float64
	VY        float64
	JumpsUsed int
}

type Obstacle struct {
	X       float64
	Variant int
	Width   float64
	Height  float64
}

// Letter is a collectible; X and Y are its centre.
type Letter struct {
	X         float64
	Y         float64
	Symbol    int
	Collected bool
}
