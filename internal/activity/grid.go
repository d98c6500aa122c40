package activity

// Position is one cell on the snake grid.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Movement directions as sent by clients, already uppercased.
const (
	DirUp    = "UP"
	DirDown  = "DOWN"
	DirLeft  = "LEFT"
	DirRight = "RIGHT"
)

var directionDelta = map[string]Position{
	DirUp:    {X: 0, Y: -1},
	DirDown:  {X: 0, Y: 1},
	DirLeft:  {X: -1, Y: 0},
	DirRight: {X: 1, Y: 0},
}

func validDirection(dir string) bool {
	_, ok := directionDelta[dir]
	return ok
}

// opposed reports whether two valid directions point at each other.
func opposed(a, b string) bool {
	da, db := directionDelta[a], directionDelta[b]
	return da.X+db.X == 0 && da.Y+db.Y == 0
}

// step returns the cell adjacent to p in the given direction.
func step(p Position, dir string) Position {
	d := directionDelta[dir]
	return Position{X: p.X + d.X, Y: p.Y + d.Y}
}

func inBounds(p Position, w, h int) bool {
	return p.X >= 0 && p.X < w && p.Y >= 0 && p.Y < h
}
