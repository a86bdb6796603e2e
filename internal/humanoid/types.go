// internal/humanoid/types.go
package humanoid

// MouseEventType defines the type of mouse event.
// These strings align with standard DOM event types.
type MouseEventType string

const (
	MouseMove MouseEventType = "mouseMoved"
)

// MouseEventData holds the data required to dispatch a mouse event.
// This is an agnostic structure used by the Executor interface.
type MouseEventData struct {
	Type MouseEventType
	X    float64
	Y    float64
}

// Vector2D is a point on the page in CSS pixels.
type Vector2D struct {
	X float64
	Y float64
}

// Add returns the component-wise sum of two vectors.
func (v Vector2D) Add(o Vector2D) Vector2D {
	return Vector2D{X: v.X + o.X, Y: v.Y + o.Y}
}
