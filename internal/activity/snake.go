package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const snakeName = "🐍 Snake Game"

const (
	statusWaiting  = "waiting"
	statusPlaying  = "playing"
	statusFinished = "finished"
)

const initialFood = 3

type snakeConfig struct {
	GridWidth  int `json:"grid_width"`
	GridHeight int `json:"grid_height"`
	TickRate   int `json:"tick_rate"`
	MaxPlayers int `json:"max_players"`
}

type snakePlayer struct {
	positions []Position
	direction string
	alive     bool
	score     int
}

type snakePlayerState struct {
	Positions []Position `json:"positions"`
	Direction string     `json:"direction"`
	Alive     bool       `json:"alive"`
	Score     int        `json:"score"`
}

type snakeState struct {
	Status    string                      `json:"status"`
	Players   map[string]snakePlayerState `json:"players"`
	Food      []Position                  `json:"food"`
	TickCount int                         `json:"tick_count"`
	Winner    string                      `json:"winner"`
}

type snakeStateEvent struct {
	Type  string     `json:"type"`
	State snakeState `json:"state"`
}

type snakeSnapshot struct {
	Type         string      `json:"type"`
	ActivityType string      `json:"activity_type"`
	ActivityName string      `json:"activity_name"`
	State        snakeState  `json:"state"`
	IsPlayer     bool        `json:"is_player"`
	Users        []string    `json:"users"`
	Config       snakeConfig `json:"config"`
}

type snakePlayerEvent struct {
	Type        string `json:"type"`
	UserID      string `json:"user_id"`
	PlayerCount int    `json:"player_count"`
}

type snakeStartedEvent struct {
	Type        string `json:"type"`
	PlayerCount int    `json:"player_count"`
}

type snakeRestartedEvent struct {
	Type string `json:"type"`
}

type snakeNotice struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type snakeDirectionReply struct {
	Type      string `json:"type"`
	Direction string `json:"direction"`
}

// SnakeGame is the tick-driven multiplayer snake. All snakes move at
// once per tick against a pre-move board snapshot, so the outcome does
// not depend on join order: two heads aiming at the same cell both
// die, and a snake crossing any body, dead ones included, dies too.
type SnakeGame struct {
	roomID string
	m      Messenger
	log    *zerolog.Logger
	cfg    snakeConfig
	rng    *rand.Rand

	mu            sync.Mutex
	users         map[string]struct{}
	status        string
	players       map[string]*snakePlayer
	joinOrder     []string
	food          []Position
	tickCount     int
	winner        string
	startingCount int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSnakeGame creates the snake activity for a room. Config fields
// grid_width, grid_height, tick_rate and max_players default to 20,
// 20, 10 and 8.
func NewSnakeGame(roomID string, cfg json.RawMessage, m Messenger, logger *zerolog.Logger) (*SnakeGame, error) {
	conf := snakeConfig{GridWidth: 20, GridHeight: 20, TickRate: 10, MaxPlayers: 8}
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &conf); err != nil {
			return nil, fmt.Errorf("parse snake config: %w", err)
		}
	}
	if conf.GridWidth < 5 || conf.GridHeight < 5 {
		return nil, fmt.Errorf("grid must be at least 5x5, got %dx%d", conf.GridWidth, conf.GridHeight)
	}
	if conf.TickRate < 1 {
		return nil, fmt.Errorf("tick rate must be positive, got %d", conf.TickRate)
	}
	if conf.MaxPlayers < 1 {
		return nil, fmt.Errorf("max players must be positive, got %d", conf.MaxPlayers)
	}
	return &SnakeGame{
		roomID:  roomID,
		m:       m,
		log:     logger,
		cfg:     conf,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		users:   make(map[string]struct{}),
		status:  statusWaiting,
		players: make(map[string]*snakePlayer),
	}, nil
}

var _ Activity = (*SnakeGame)(nil)

func (g *SnakeGame) Type() string { return TypeSnake }
func (g *SnakeGame) Name() string { return snakeName }

func (g *SnakeGame) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	g.wg.Add(1)
	go g.loop(ctx)
	g.log.Info().Str("room_id", g.roomID).Int("tick_rate", g.cfg.TickRate).Msg("snake game started")
	return nil
}

func (g *SnakeGame) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
	g.wg.Wait()
	g.log.Info().Str("room_id", g.roomID).Msg("snake game stopped")
}

func (g *SnakeGame) loop(ctx context.Context) {
	defer g.wg.Done()
	ticker := time.NewTicker(time.Second / time.Duration(g.cfg.TickRate))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.tick()
		}
	}
}

// tick advances the simulation by one step and broadcasts the board.
// Outside the playing state it does nothing.
func (g *SnakeGame) tick() {
	g.mu.Lock()
	if g.status != statusPlaying {
		g.mu.Unlock()
		return
	}
	g.advanceLocked()
	ev := snakeStateEvent{Type: "snake_state", State: g.stateLocked()}
	g.mu.Unlock()
	g.m.Broadcast(ev, "")
}

func (g *SnakeGame) advanceLocked() {
	g.tickCount++

	// Pre-move occupancy. Dead snakes stay on the board as obstacles.
	occupied := make(map[Position]struct{})
	for _, p := range g.players {
		for _, cell := range p.positions {
			occupied[cell] = struct{}{}
		}
	}

	heads := make(map[string]Position, len(g.players))
	targets := make(map[Position]int, len(g.players))
	for _, user := range g.joinOrder {
		p := g.players[user]
		if !p.alive {
			continue
		}
		head := step(p.positions[0], p.direction)
		heads[user] = head
		targets[head]++
	}

	for _, user := range g.joinOrder {
		p := g.players[user]
		if !p.alive {
			continue
		}
		head := heads[user]
		if !inBounds(head, g.cfg.GridWidth, g.cfg.GridHeight) {
			p.alive = false
			continue
		}
		if _, hit := occupied[head]; hit {
			p.alive = false
			continue
		}
		if targets[head] > 1 {
			p.alive = false
			continue
		}
		p.positions = append([]Position{head}, p.positions...)
		if g.eatFoodLocked(head) {
			p.score++
			g.spawnFoodLocked()
		} else {
			p.positions = p.positions[:len(p.positions)-1]
		}
	}

	alive := 0
	var survivor string
	for user, p := range g.players {
		if p.alive {
			alive++
			survivor = user
		}
	}
	// Solo games run until restart; a real match ends when at most one
	// of its starters is left standing.
	if g.startingCount >= 2 && alive <= 1 {
		g.status = statusFinished
		if alive == 1 {
			g.winner = survivor
		}
	}
}

func (g *SnakeGame) eatFoodLocked(pos Position) bool {
	for i, f := range g.food {
		if f == pos {
			g.food = append(g.food[:i], g.food[i+1:]...)
			return true
		}
	}
	return false
}

// spawnFoodLocked places one food item on a random free cell. It gives
// up after 100 attempts on a crowded board.
func (g *SnakeGame) spawnFoodLocked() {
	for attempts := 0; attempts < 100; attempts++ {
		pos := Position{X: g.rng.Intn(g.cfg.GridWidth), Y: g.rng.Intn(g.cfg.GridHeight)}
		if g.cellFreeLocked(pos) {
			g.food = append(g.food, pos)
			return
		}
	}
}

func (g *SnakeGame) cellFreeLocked(pos Position) bool {
	for _, p := range g.players {
		for _, cell := range p.positions {
			if cell == pos {
				return false
			}
		}
	}
	for _, f := range g.food {
		if f == pos {
			return false
		}
	}
	return true
}

// stateLocked serializes the board. Slices are copied because the
// caller sends the result after releasing the lock.
func (g *SnakeGame) stateLocked() snakeState {
	players := make(map[string]snakePlayerState, len(g.players))
	for user, p := range g.players {
		players[user] = snakePlayerState{
			Positions: append([]Position(nil), p.positions...),
			Direction: p.direction,
			Alive:     p.alive,
			Score:     p.score,
		}
	}
	return snakeState{
		Status:    g.status,
		Players:   players,
		Food:      append([]Position(nil), g.food...),
		TickCount: g.tickCount,
		Winner:    g.winner,
	}
}

func (g *SnakeGame) AddMember(user string) {
	g.mu.Lock()
	g.users[user] = struct{}{}
	g.mu.Unlock()
}

func (g *SnakeGame) RemoveMember(user string) {
	g.mu.Lock()
	delete(g.users, user)
	_, wasPlayer := g.players[user]
	var count int
	if wasPlayer {
		delete(g.players, user)
		for i, u := range g.joinOrder {
			if u == user {
				g.joinOrder = append(g.joinOrder[:i], g.joinOrder[i+1:]...)
				break
			}
		}
		count = len(g.players)
	}
	g.mu.Unlock()

	if wasPlayer {
		g.m.Broadcast(snakePlayerEvent{Type: "snake_player_left", UserID: user, PlayerCount: count}, "")
	}
}

func (g *SnakeGame) StateFor(user string) any {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, isPlayer := g.players[user]
	return snakeSnapshot{
		Type:         "activity_state",
		ActivityType: TypeSnake,
		ActivityName: snakeName,
		State:        g.stateLocked(),
		IsPlayer:     isPlayer,
		Users:        sortedUsers(g.users),
		Config:       g.cfg,
	}
}

func (g *SnakeGame) HandleAction(user, action string, payload json.RawMessage) (Result, error) {
	op := actionName(TypeSnake, action)
	switch op {
	case "join_game":
		return g.joinGame(user)
	case "change_direction":
		return g.changeDirection(user, payload)
	case "start_game":
		return g.startGame(user)
	case "restart_game":
		return g.restartGame(user)
	}
	return Result{}, validationErr(fmt.Sprintf("Unknown snake action: %s", op))
}

// joinGame adds the user as a snake. Joining mid-game is allowed.
func (g *SnakeGame) joinGame(user string) (Result, error) {
	g.mu.Lock()
	if _, ok := g.players[user]; ok {
		g.mu.Unlock()
		return Result{}, conflictErr("Already in game")
	}
	if len(g.players) >= g.cfg.MaxPlayers {
		g.mu.Unlock()
		return Result{}, conflictErr("Game is full")
	}
	g.players[user] = &snakePlayer{
		positions: []Position{g.spawnPositionLocked()},
		direction: DirRight,
		alive:     true,
	}
	g.joinOrder = append(g.joinOrder, user)
	if len(g.players) == 1 {
		for i := 0; i < initialFood; i++ {
			g.spawnFoodLocked()
		}
	}
	count := len(g.players)
	g.mu.Unlock()

	g.m.Broadcast(snakePlayerEvent{Type: "snake_player_joined", UserID: user, PlayerCount: count}, "")
	return Result{
		Reply:        snakeNotice{Type: "snake_joined", Message: "Joined snake game"},
		StateChanged: true,
	}, nil
}

// spawnPositionLocked picks a random cell two cells clear of the walls.
func (g *SnakeGame) spawnPositionLocked() Position {
	return Position{
		X: g.rng.Intn(g.cfg.GridWidth-4) + 2,
		Y: g.rng.Intn(g.cfg.GridHeight-4) + 2,
	}
}

func (g *SnakeGame) changeDirection(user string, payload json.RawMessage) (Result, error) {
	var data struct {
		Direction string `json:"direction"`
	}
	if err := json.Unmarshal(payload, &data); err != nil {
		return Result{}, validationErr("Invalid action payload")
	}
	dir := strings.ToUpper(data.Direction)

	g.mu.Lock()
	p, ok := g.players[user]
	if !ok {
		g.mu.Unlock()
		return Result{}, conflictErr("Not in game")
	}
	if !validDirection(dir) {
		g.mu.Unlock()
		return Result{}, validationErr(fmt.Sprintf("Invalid direction: %s", dir))
	}
	if opposed(dir, p.direction) {
		g.mu.Unlock()
		return Result{}, conflictErr("Cannot reverse direction")
	}
	p.direction = dir
	g.mu.Unlock()

	return Result{Reply: snakeDirectionReply{Type: "snake_direction_changed", Direction: dir}}, nil
}

func (g *SnakeGame) startGame(user string) (Result, error) {
	g.mu.Lock()
	if g.status != statusWaiting {
		g.mu.Unlock()
		return Result{}, conflictErr("Game already started or finished")
	}
	if len(g.players) < 1 {
		g.mu.Unlock()
		return Result{}, conflictErr("Need at least 1 player")
	}
	g.status = statusPlaying
	g.startingCount = len(g.players)
	count := len(g.players)
	g.mu.Unlock()

	g.m.Broadcast(snakeStartedEvent{Type: "snake_game_started", PlayerCount: count}, "")
	return Result{
		Reply:        snakeNotice{Type: "snake_game_started", Message: "Game started"},
		StateChanged: true,
	}, nil
}

// restartGame resets the board to waiting and respawns everyone who
// had joined, keeping them in the game.
func (g *SnakeGame) restartGame(user string) (Result, error) {
	g.mu.Lock()
	g.status = statusWaiting
	g.tickCount = 0
	g.winner = ""
	g.startingCount = 0
	for _, p := range g.players {
		p.positions = []Position{g.spawnPositionLocked()}
		p.direction = DirRight
		p.alive = true
		p.score = 0
	}
	g.food = nil
	for i := 0; i < initialFood; i++ {
		g.spawnFoodLocked()
	}
	g.mu.Unlock()

	g.m.Broadcast(snakeRestartedEvent{Type: "snake_game_restarted"}, "")
	return Result{
		Reply:        snakeNotice{Type: "snake_game_restarted", Message: "Game restarted"},
		StateChanged: true,
	}, nil
}
