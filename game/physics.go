package game

import "math"

// Court geometry and movement constants. The court is normalized to
// [0,1]x[0,1] and every client renders the same proportions, so these are
// protocol constants rather than configuration.
const (
	BallSize     = 0.02
	PaddleWidth  = 0.02
	PaddleHeight = 0.15

	LeftPaddleX  = 0.0
	RightPaddleX = 1.0 - PaddleWidth

	// Canonical reset positions: ball and paddles centered on the court.
	BallStartX   = 0.5 - BallSize/2
	BallStartY   = 0.5 - BallSize/2
	PaddleStartY = 0.5 - PaddleHeight/2

	// Fixed serve velocity, applied on every reset.
	BallStartSpeedX = 0.02
	BallStartSpeedY = 0.01

	// Per-tick paddle displacement while a key is held.
	PaddleSpeed = 0.02

	// Steepest vertical speed a paddle edge hit can impart.
	maxBounceSpeed = 0.02

	// First side to reach this many points wins outright.
	WinningScore = 3
)

// Ball is the square ball of the simulation. Positions refer to the
// top-left corner of its bounding box.
type Ball struct {
	X      float64
	Y      float64
	SpeedX float64
	SpeedY float64
}

// NewBall returns a ball at the canonical serve position.
func NewBall() Ball {
	return Ball{X: BallStartX, Y: BallStartY, SpeedX: BallStartSpeedX, SpeedY: BallStartSpeedY}
}

// Update advances the ball by one tick and bounces it off the top and
// bottom walls.
func (b *Ball) Update() {
	b.X += b.SpeedX
	b.Y += b.SpeedY

	if b.Y <= 0 {
		b.Y = 0
		b.SpeedY = -b.SpeedY
	} else if b.Y+BallSize >= 1 {
		b.Y = 1 - BallSize
		b.SpeedY = -b.SpeedY
	}
}

// Collides reports whether the ball's bounding box intersects the paddle's.
func (b *Ball) Collides(p *Paddle) bool {
	return b.X < p.X+PaddleWidth &&
		b.X+BallSize > p.X &&
		b.Y < p.Y+PaddleHeight &&
		b.Y+BallSize > p.Y
}

// CalculateAngle reflects the ball off the paddle. The horizontal speed is
// mirrored and the vertical speed is set from the contact offset relative
// to the paddle center, so edge hits leave at a steeper angle than center
// hits. The ball is pushed flush against the paddle face to keep a single
// contact from registering twice.
func (b *Ball) CalculateAngle(p *Paddle) {
	offset := (b.Y + BallSize/2 - (p.Y + PaddleHeight/2)) / (PaddleHeight / 2)
	if offset > 1 {
		offset = 1
	} else if offset < -1 {
		offset = -1
	}

	b.SpeedX = -b.SpeedX
	b.SpeedY = offset * maxBounceSpeed

	if b.SpeedX > 0 {
		b.X = p.X + PaddleWidth
	} else {
		b.X = p.X - BallSize
	}
}

// Paddle is one side's paddle. X is fixed at construction; Moving is the
// per-tick velocity set by key input (-PaddleSpeed, 0 or +PaddleSpeed).
type Paddle struct {
	X      float64
	Y      float64
	Moving float64
}

// NewPaddle returns a vertically centered paddle for the given side.
func NewPaddle(side int) Paddle {
	x := LeftPaddleX
	if side == 1 {
		x = RightPaddleX
	}
	return Paddle{X: x, Y: PaddleStartY}
}

// Update advances the paddle by its current velocity, clamped to the court.
func (p *Paddle) Update() {
	p.Y += p.Moving
	if p.Y < 0 {
		p.Y = 0
	} else if p.Y > 1-PaddleHeight {
		p.Y = 1 - PaddleHeight
	}
}

// truncate2 cuts a coordinate to two decimal places for wire snapshots.
func truncate2(v float64) float64 {
	return math.Trunc(v*100) / 100
}
