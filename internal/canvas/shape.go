package canvas

// Point is a vertex of a polygon.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is the drawable area in pixels.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Style is shared by every shape. Empty colours mean "none".
type Style struct {
	Stroke string  `json:"stroke,omitempty"`
	Fill   string  `json:"fill,omitempty"`
	Width  float64 `json:"strokeWidth,omitempty"`
}

// Shape is anything the scene can hold.
type Shape interface {
	Kind() string
}

type Circle struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	R float64 `json:"r"`
	Style
}

type Line struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
	Style
}

type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
	Style
}

type Polygon struct {
	Points []Point `json:"points"`
	Style
}

type Text struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Text string  `json:"text"`
	Size float64 `json:"size,omitempty"`
	Style
}

func (Circle) Kind() string  { return "circle" }
func (Line) Kind() string    { return "line" }
func (Rect) Kind() string    { return "rect" }
func (Polygon) Kind() string { return "polygon" }
func (Text) Kind() string    { return "text" }
