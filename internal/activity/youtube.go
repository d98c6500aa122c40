package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const youtubeName = "📺 Watch Together"

// Per-user minimum spacing between actions of the same kind. Actions
// absent from this map are never throttled.
var youtubeThrottles = map[string]time.Duration{
	"load_video":     3 * time.Second,
	"seek":           time.Second,
	"set_rate":       time.Second,
	"play":           500 * time.Millisecond,
	"pause":          500 * time.Millisecond,
	"sync_request":   time.Second,
	"request_master": 2 * time.Second,
}

// Grace period between the last buffer_end and the automatic resume.
const resumeDelay = 500 * time.Millisecond

// Resume is cancelled when any action lands in the meantime, which the
// loop detects by comparing stamp against the current action time.
type pendingResume struct {
	at    time.Time
	stamp time.Time
}

// youtubeAction is the last user action kept for display.
type youtubeAction struct {
	User      string  `json:"user"`
	Type      string  `json:"type"`
	Timestamp float64 `json:"timestamp"`
}

type youtubeVideoLoadedEvent struct {
	Type        string  `json:"type"`
	VideoID     string  `json:"video_id"`
	LoadedBy    string  `json:"loaded_by"`
	CurrentTime float64 `json:"current_time"`
}

type youtubeVideoLoadedReply struct {
	Type    string `json:"type"`
	VideoID string `json:"video_id"`
}

// youtubePlaybackEvent is the youtube_play / youtube_pause broadcast.
type youtubePlaybackEvent struct {
	Type            string  `json:"type"`
	CurrentTime     float64 `json:"current_time"`
	IsPlaying       bool    `json:"is_playing"`
	TriggeredBy     string  `json:"triggered_by"`
	LastActionUser  string  `json:"last_action_user"`
	ServerTimestamp float64 `json:"server_timestamp"`
}

type youtubeSeekEvent struct {
	Type            string  `json:"type"`
	CurrentTime     float64 `json:"current_time"`
	TriggeredBy     string  `json:"triggered_by"`
	LastActionUser  string  `json:"last_action_user"`
	ServerTimestamp float64 `json:"server_timestamp"`
}

// youtubePositionReply answers play, pause and seek.
type youtubePositionReply struct {
	Type        string  `json:"type"`
	CurrentTime float64 `json:"current_time"`
}

type youtubeRateEvent struct {
	Type         string  `json:"type"`
	PlaybackRate float64 `json:"playback_rate"`
	CurrentTime  float64 `json:"current_time"`
	TriggeredBy  string  `json:"triggered_by"`
}

type youtubeRateReply struct {
	Type         string  `json:"type"`
	PlaybackRate float64 `json:"playback_rate"`
}

// youtubeSyncUpdate is the periodic drift correction broadcast.
type youtubeSyncUpdate struct {
	Type            string  `json:"type"`
	VideoID         string  `json:"video_id"`
	CurrentTime     float64 `json:"current_time"`
	IsPlaying       bool    `json:"is_playing"`
	PlaybackRate    float64 `json:"playback_rate"`
	LastActionUser  string  `json:"last_action_user"`
	ServerTimestamp float64 `json:"server_timestamp"`
}

// youtubeReportUpdate relays an accepted authoritative state report.
type youtubeReportUpdate struct {
	Type              string  `json:"type"`
	VideoID           string  `json:"video_id"`
	CurrentTime       float64 `json:"current_time"`
	IsPlaying         bool    `json:"is_playing"`
	PlaybackRate      float64 `json:"playback_rate"`
	MasterUser        string  `json:"master_user"`
	AuthoritativeUser string  `json:"authoritative_user"`
	ServerTimestamp   float64 `json:"server_timestamp"`
}

type youtubeSyncResponse struct {
	Type            string  `json:"type"`
	VideoID         string  `json:"video_id"`
	CurrentTime     float64 `json:"current_time"`
	IsPlaying       bool    `json:"is_playing"`
	PlaybackRate    float64 `json:"playback_rate"`
	ServerTimestamp float64 `json:"server_timestamp"`
}

type youtubeBufferEvent struct {
	Type           string `json:"type"`
	UserID         string `json:"user_id"`
	BufferingCount int    `json:"buffering_count"`
}

type youtubeMasterChanged struct {
	Type      string `json:"type"`
	NewMaster string `json:"new_master"`
}

type youtubeNotice struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type youtubeReportAck struct {
	Type string `json:"type"`
}

type youtubeState struct {
	VideoID           string         `json:"video_id"`
	CurrentTime       float64        `json:"current_time"`
	IsPlaying         bool           `json:"is_playing"`
	PlaybackRate      float64        `json:"playback_rate"`
	LastActionUser    string         `json:"last_action_user"`
	BufferingUsers    []string       `json:"buffering_users"`
	IsBuffering       bool           `json:"is_buffering"`
	LastAction        *youtubeAction `json:"last_action"`
	MasterUser        string         `json:"master_user"`
	IsMaster          bool           `json:"is_master"`
	AuthoritativeUser string         `json:"authoritative_user"`
	IsAuthoritative   bool           `json:"is_authoritative"`
}

type youtubeSnapshot struct {
	Type            string       `json:"type"`
	ActivityType    string       `json:"activity_type"`
	ActivityName    string       `json:"activity_name"`
	State           youtubeState `json:"state"`
	Users           []string     `json:"users"`
	ServerTimestamp float64      `json:"server_timestamp"`
}

// YouTubeSync keeps one video position synchronized across a room.
// The first member to join becomes the master; the master alone may
// load, seek and change rate, while play and pause stay open to all.
// A background loop advances the position server-side when clients go
// quiet and resumes playback after everyone finishes buffering.
type YouTubeSync struct {
	roomID string
	m      Messenger
	log    *zerolog.Logger

	mu              sync.Mutex
	users           map[string]struct{}
	videoID         string
	currentTime     float64
	playing         bool
	rate            float64
	lastActionTime  time.Time
	lastStateUpdate time.Time
	lastActionUser  string
	lastAction      *youtubeAction
	master          string
	authoritative   string
	buffering       map[string]struct{}
	throttleStamps  map[string]time.Time
	resume          *pendingResume

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewYouTubeSync creates the watch-together activity for a room. cfg
// may preload a video: {"video_id": "..."}.
func NewYouTubeSync(roomID string, cfg json.RawMessage, m Messenger, logger *zerolog.Logger) (*YouTubeSync, error) {
	var conf struct {
		VideoID string `json:"video_id"`
	}
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &conf); err != nil {
			return nil, fmt.Errorf("parse youtube config: %w", err)
		}
	}
	now := time.Now()
	return &YouTubeSync{
		roomID:          roomID,
		m:               m,
		log:             logger,
		users:           make(map[string]struct{}),
		videoID:         conf.VideoID,
		rate:            1.0,
		lastActionTime:  now,
		lastStateUpdate: now,
		buffering:       make(map[string]struct{}),
		throttleStamps:  make(map[string]time.Time),
	}, nil
}

var _ Activity = (*YouTubeSync)(nil)

func (y *YouTubeSync) Type() string { return TypeYouTube }
func (y *YouTubeSync) Name() string { return youtubeName }

func (y *YouTubeSync) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	y.cancel = cancel
	y.wg.Add(1)
	go y.loop(ctx)
	y.log.Info().Str("room_id", y.roomID).Msg("youtube sync started")
	return nil
}

func (y *YouTubeSync) Stop() {
	if y.cancel != nil {
		y.cancel()
	}
	y.wg.Wait()
	y.log.Info().Str("room_id", y.roomID).Msg("youtube sync stopped")
}

func (y *YouTubeSync) loop(ctx context.Context) {
	defer y.wg.Done()
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			y.step(time.Now())
		}
	}
}

// step runs one loop pass: fire a due auto-resume, then correct drift
// when no client has reported state for a while.
func (y *YouTubeSync) step(now time.Time) {
	var msgs []any

	y.mu.Lock()
	resumed := false
	if y.resume != nil && !now.Before(y.resume.at) {
		due := y.resume
		y.resume = nil
		if len(y.buffering) == 0 && y.master != "" && y.videoID != "" &&
			!y.playing && y.lastActionTime.Equal(due.stamp) {
			msgs = append(msgs, y.playLocked(y.master, now))
			resumed = true
		}
	}
	if !resumed && y.playing && len(y.buffering) == 0 &&
		now.Sub(y.lastStateUpdate).Seconds() > 5.0 {
		elapsed := now.Sub(y.lastActionTime).Seconds()
		y.currentTime += elapsed * y.rate
		y.lastActionTime = now
		y.lastStateUpdate = now
		msgs = append(msgs, youtubeSyncUpdate{
			Type:            "youtube_sync_update",
			VideoID:         y.videoID,
			CurrentTime:     y.currentTime,
			IsPlaying:       y.playing,
			PlaybackRate:    y.rate,
			LastActionUser:  y.lastActionUser,
			ServerTimestamp: unixSeconds(now),
		})
	}
	y.mu.Unlock()

	for _, msg := range msgs {
		y.m.Broadcast(msg, "")
	}
}

// AddMember registers a room member. The first member becomes master.
func (y *YouTubeSync) AddMember(user string) {
	y.mu.Lock()
	if len(y.users) == 0 {
		y.master = user
	}
	y.users[user] = struct{}{}
	y.mu.Unlock()
}

// RemoveMember drops a member and the per-user bookkeeping attached to
// it. A departed master is not replaced here; re-election happens on
// the next request_master or load_video.
func (y *YouTubeSync) RemoveMember(user string) {
	y.mu.Lock()
	delete(y.users, user)
	delete(y.buffering, user)
	for key := range y.throttleStamps {
		if strings.HasPrefix(key, user+":") {
			delete(y.throttleStamps, key)
		}
	}
	if y.master == user {
		y.master = ""
	}
	if y.authoritative == user {
		y.authoritative = ""
	}
	y.mu.Unlock()
}

func (y *YouTubeSync) StateFor(user string) any {
	now := time.Now()
	y.mu.Lock()
	defer y.mu.Unlock()
	_, buffering := y.buffering[user]
	return youtubeSnapshot{
		Type:         "activity_state",
		ActivityType: TypeYouTube,
		ActivityName: youtubeName,
		State: youtubeState{
			VideoID:           y.videoID,
			CurrentTime:       y.positionLocked(now),
			IsPlaying:         y.playing,
			PlaybackRate:      y.rate,
			LastActionUser:    y.lastActionUser,
			BufferingUsers:    sortedUsers(y.buffering),
			IsBuffering:       buffering,
			LastAction:        y.lastAction,
			MasterUser:        y.master,
			IsMaster:          y.master == user,
			AuthoritativeUser: y.authoritative,
			IsAuthoritative:   y.authoritative == user,
		},
		Users:           sortedUsers(y.users),
		ServerTimestamp: unixSeconds(now),
	}
}

func (y *YouTubeSync) HandleAction(user, action string, payload json.RawMessage) (Result, error) {
	op := actionName(TypeYouTube, action)
	now := time.Now()

	y.mu.Lock()
	err := y.checkThrottleLocked(user, op, now)
	y.mu.Unlock()
	if err != nil {
		return Result{}, err
	}

	switch op {
	case "load_video":
		return y.loadVideo(user, payload, now)
	case "play":
		return y.play(user, now)
	case "pause":
		return y.pause(user, now)
	case "seek":
		return y.seek(user, payload, now)
	case "set_rate":
		return y.setRate(user, payload, now)
	case "sync_request":
		return y.syncRequest(now)
	case "buffer_start":
		return y.bufferStart(user, now)
	case "buffer_end":
		return y.bufferEnd(user, now)
	case "request_master":
		return y.requestMaster(user, now)
	case "state_report":
		return y.stateReport(user, payload, now)
	}
	return Result{}, validationErr(fmt.Sprintf("Unknown YouTube action: %s", op))
}

// checkThrottleLocked enforces per-user action spacing. An attempt
// outside the window consumes it immediately, so an action rejected by
// later validation still counts.
func (y *YouTubeSync) checkThrottleLocked(user, op string, now time.Time) error {
	window, throttled := youtubeThrottles[op]
	if !throttled {
		return nil
	}
	key := user + ":" + op
	last, seen := y.throttleStamps[key]
	if !seen || now.Sub(last) >= window {
		y.throttleStamps[key] = now
		return nil
	}
	remaining := window - now.Sub(last)
	return throttledErr(fmt.Sprintf("Please wait %.1fs between %s actions",
		remaining.Seconds(), strings.ReplaceAll(op, "_", " ")))
}

// positionLocked extrapolates the playhead from the last action.
func (y *YouTubeSync) positionLocked(now time.Time) float64 {
	pos := y.currentTime
	if y.playing && len(y.buffering) == 0 {
		pos += now.Sub(y.lastActionTime).Seconds() * y.rate
	}
	return pos
}

// playLocked applies the full play flow and returns the broadcast.
func (y *YouTubeSync) playLocked(user string, now time.Time) youtubePlaybackEvent {
	y.playing = true
	y.lastActionTime = now
	y.lastActionUser = user
	y.authoritative = user
	y.lastAction = &youtubeAction{User: user, Type: "play", Timestamp: unixSeconds(now)}
	return youtubePlaybackEvent{
		Type:            "youtube_play",
		CurrentTime:     y.currentTime,
		IsPlaying:       true,
		TriggeredBy:     user,
		LastActionUser:  user,
		ServerTimestamp: unixSeconds(now),
	}
}

// pauseLocked applies the full pause flow and returns the broadcast.
func (y *YouTubeSync) pauseLocked(user string, now time.Time) youtubePlaybackEvent {
	if y.playing {
		y.currentTime += now.Sub(y.lastActionTime).Seconds() * y.rate
	}
	y.playing = false
	y.lastActionTime = now
	y.lastActionUser = user
	y.authoritative = user
	y.lastAction = &youtubeAction{User: user, Type: "pause", Timestamp: unixSeconds(now)}
	return youtubePlaybackEvent{
		Type:            "youtube_pause",
		CurrentTime:     y.currentTime,
		IsPlaying:       false,
		TriggeredBy:     user,
		LastActionUser:  user,
		ServerTimestamp: unixSeconds(now),
	}
}

func (y *YouTubeSync) loadVideo(user string, payload json.RawMessage, now time.Time) (Result, error) {
	var data struct {
		VideoID   string  `json:"video_id"`
		StartTime float64 `json:"start_time"`
	}
	if err := json.Unmarshal(payload, &data); err != nil {
		return Result{}, validationErr("Invalid action payload")
	}

	y.mu.Lock()
	if y.master != "" && y.master != user {
		y.mu.Unlock()
		return Result{}, permissionErr("Only the master user can load videos")
	}
	videoID := strings.TrimSpace(data.VideoID)
	if videoID == "" {
		y.mu.Unlock()
		return Result{}, validationErr("Video ID required")
	}
	if y.master == "" {
		y.master = user
	}
	y.authoritative = user
	y.videoID = videoID
	y.currentTime = data.StartTime
	y.playing = false
	y.rate = 1.0
	y.lastActionTime = now
	y.lastActionUser = user
	y.buffering = make(map[string]struct{})
	y.lastAction = &youtubeAction{User: user, Type: "load_video", Timestamp: unixSeconds(now)}
	ev := youtubeVideoLoadedEvent{
		Type:        "youtube_video_loaded",
		VideoID:     videoID,
		LoadedBy:    user,
		CurrentTime: y.currentTime,
	}
	y.mu.Unlock()

	y.m.Broadcast(ev, "")
	return Result{
		Reply:        youtubeVideoLoadedReply{Type: "youtube_video_loaded", VideoID: videoID},
		StateChanged: true,
	}, nil
}

func (y *YouTubeSync) play(user string, now time.Time) (Result, error) {
	y.mu.Lock()
	if y.videoID == "" {
		y.mu.Unlock()
		return Result{}, conflictErr("No video loaded")
	}
	ev := y.playLocked(user, now)
	y.mu.Unlock()

	y.m.Broadcast(ev, "")
	return Result{
		Reply:        youtubePositionReply{Type: "youtube_play", CurrentTime: ev.CurrentTime},
		StateChanged: true,
	}, nil
}

func (y *YouTubeSync) pause(user string, now time.Time) (Result, error) {
	y.mu.Lock()
	if y.videoID == "" {
		y.mu.Unlock()
		return Result{}, conflictErr("No video loaded")
	}
	ev := y.pauseLocked(user, now)
	y.mu.Unlock()

	y.m.Broadcast(ev, "")
	return Result{
		Reply:        youtubePositionReply{Type: "youtube_pause", CurrentTime: ev.CurrentTime},
		StateChanged: true,
	}, nil
}

func (y *YouTubeSync) seek(user string, payload json.RawMessage, now time.Time) (Result, error) {
	var data struct {
		Time float64 `json:"time"`
	}
	if err := json.Unmarshal(payload, &data); err != nil {
		return Result{}, validationErr("Invalid action payload")
	}

	y.mu.Lock()
	if y.master != user {
		y.mu.Unlock()
		return Result{}, permissionErr("Only the master user can seek")
	}
	if y.videoID == "" {
		y.mu.Unlock()
		return Result{}, conflictErr("No video loaded")
	}
	target := data.Time
	if target < 0 {
		target = 0
	}
	y.currentTime = target
	y.lastActionTime = now
	y.lastActionUser = user
	y.lastAction = &youtubeAction{User: user, Type: "seek", Timestamp: unixSeconds(now)}
	ev := youtubeSeekEvent{
		Type:            "youtube_seek",
		CurrentTime:     target,
		TriggeredBy:     user,
		LastActionUser:  user,
		ServerTimestamp: unixSeconds(now),
	}
	y.mu.Unlock()

	y.m.Broadcast(ev, "")
	return Result{
		Reply:        youtubePositionReply{Type: "youtube_seek", CurrentTime: target},
		StateChanged: true,
	}, nil
}

func (y *YouTubeSync) setRate(user string, payload json.RawMessage, now time.Time) (Result, error) {
	var data struct {
		Rate *float64 `json:"rate"`
	}
	if err := json.Unmarshal(payload, &data); err != nil {
		return Result{}, validationErr("Invalid action payload")
	}
	rate := 1.0
	if data.Rate != nil {
		rate = *data.Rate
	}

	y.mu.Lock()
	if y.master != user {
		y.mu.Unlock()
		return Result{}, permissionErr("Only the master user can change playback rate")
	}
	if rate <= 0 || rate > 2.0 {
		y.mu.Unlock()
		return Result{}, validationErr("Invalid playback rate")
	}
	if y.playing {
		y.currentTime += now.Sub(y.lastActionTime).Seconds() * y.rate
	}
	y.rate = rate
	y.lastActionTime = now
	y.lastAction = &youtubeAction{User: user, Type: "set_rate", Timestamp: unixSeconds(now)}
	ev := youtubeRateEvent{
		Type:         "youtube_rate_changed",
		PlaybackRate: rate,
		CurrentTime:  y.currentTime,
		TriggeredBy:  user,
	}
	y.mu.Unlock()

	y.m.Broadcast(ev, "")
	return Result{
		Reply:        youtubeRateReply{Type: "youtube_rate_changed", PlaybackRate: rate},
		StateChanged: true,
	}, nil
}

// syncRequest answers with the current state and mutates nothing.
func (y *YouTubeSync) syncRequest(now time.Time) (Result, error) {
	y.mu.Lock()
	reply := youtubeSyncResponse{
		Type:            "youtube_sync_response",
		VideoID:         y.videoID,
		CurrentTime:     y.positionLocked(now),
		IsPlaying:       y.playing,
		PlaybackRate:    y.rate,
		ServerTimestamp: unixSeconds(now),
	}
	y.mu.Unlock()
	return Result{Reply: reply}, nil
}

func (y *YouTubeSync) bufferStart(user string, now time.Time) (Result, error) {
	y.mu.Lock()
	y.buffering[user] = struct{}{}
	var pauseEv *youtubePlaybackEvent
	if y.playing {
		ev := y.pauseLocked(user, now)
		pauseEv = &ev
	}
	count := len(y.buffering)
	y.mu.Unlock()

	if pauseEv != nil {
		y.m.Broadcast(*pauseEv, "")
	}
	y.m.Broadcast(youtubeBufferEvent{
		Type:           "youtube_user_buffering",
		UserID:         user,
		BufferingCount: count,
	}, user)
	return Result{Reply: youtubeNotice{Type: "youtube_buffer_start", Message: "Buffering started"}}, nil
}

func (y *YouTubeSync) bufferEnd(user string, now time.Time) (Result, error) {
	y.mu.Lock()
	delete(y.buffering, user)
	count := len(y.buffering)
	if count == 0 && y.master != "" {
		y.resume = &pendingResume{at: now.Add(resumeDelay), stamp: y.lastActionTime}
	}
	y.mu.Unlock()

	y.m.Broadcast(youtubeBufferEvent{
		Type:           "youtube_user_buffer_end",
		UserID:         user,
		BufferingCount: count,
	}, user)
	return Result{Reply: youtubeNotice{Type: "youtube_buffer_end", Message: "Buffering ended"}}, nil
}

func (y *YouTubeSync) requestMaster(user string, now time.Time) (Result, error) {
	y.mu.Lock()
	_, present := y.users[y.master]
	if y.master != "" && present {
		held := y.master
		y.mu.Unlock()
		return Result{}, conflictErr(fmt.Sprintf("Master control is held by %s", held))
	}
	y.master = user
	y.lastAction = &youtubeAction{User: user, Type: "request_master", Timestamp: unixSeconds(now)}
	y.mu.Unlock()

	y.m.Broadcast(youtubeMasterChanged{Type: "youtube_master_changed", NewMaster: user}, "")
	return Result{Reply: youtubeNotice{Type: "youtube_master_assigned", Message: "You are now the master"}}, nil
}

func (y *YouTubeSync) stateReport(user string, payload json.RawMessage, now time.Time) (Result, error) {
	var data struct {
		ClientTimestamp float64  `json:"client_timestamp"`
		CurrentTime     *float64 `json:"current_time"`
		IsPlaying       *bool    `json:"is_playing"`
		PlaybackRate    *float64 `json:"playback_rate"`
	}
	if err := json.Unmarshal(payload, &data); err != nil {
		return Result{}, validationErr("Invalid action payload")
	}

	y.mu.Lock()
	if y.authoritative != user {
		y.mu.Unlock()
		return Result{}, permissionErr("Only authoritative user can report state")
	}
	// A report captured before the latest server-side action would
	// rewind it; drop those instead of applying them.
	if data.ClientTimestamp > 0 && data.ClientTimestamp < unixSeconds(y.lastActionTime) {
		y.mu.Unlock()
		return Result{Reply: youtubeNotice{Type: "state_report_rejected", Message: "Stale state report"}}, nil
	}
	if data.CurrentTime != nil {
		y.currentTime = *data.CurrentTime
	}
	if data.IsPlaying != nil {
		y.playing = *data.IsPlaying
	}
	if data.PlaybackRate != nil {
		y.rate = *data.PlaybackRate
	}
	y.lastStateUpdate = now
	ev := youtubeReportUpdate{
		Type:              "youtube_sync_update",
		VideoID:           y.videoID,
		CurrentTime:       y.currentTime,
		IsPlaying:         y.playing,
		PlaybackRate:      y.rate,
		MasterUser:        y.master,
		AuthoritativeUser: user,
		ServerTimestamp:   unixSeconds(now),
	}
	y.mu.Unlock()

	y.m.Broadcast(ev, user)
	return Result{Reply: youtubeReportAck{Type: "state_report_accepted"}}, nil
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
