// Package mediactl 把播放状态同步到系统媒体控制，并把系统的控制指令转回播放器
package mediactl

import "errors"

// ErrUnsupportedAction 宿主不支持的控制指令
var ErrUnsupportedAction = errors.New("unsupported media session action")

// Action 系统媒体控制指令
type Action string

const (
	ActionPlay          Action = "play"
	ActionPause         Action = "pause"
	ActionStop          Action = "stop"
	ActionNextTrack     Action = "nexttrack"
	ActionPreviousTrack Action = "previoustrack"
	ActionSeekBackward  Action = "seekbackward"
	ActionSeekForward   Action = "seekforward"
	ActionSeekTo        Action = "seekto"
)

// Actions 注册顺序
var Actions = []Action{
	ActionPlay,
	ActionPause,
	ActionStop,
	ActionNextTrack,
	ActionPreviousTrack,
	ActionSeekBackward,
	ActionSeekForward,
	ActionSeekTo,
}

// ActionDetails 指令参数，单位为秒
type ActionDetails struct {
	SeekOffset float64 // seekbackward / seekforward，0 表示使用默认步长
	SeekTime   float64 // seekto
}

// ActionHandler 指令回调
type ActionHandler func(ActionDetails)

// PlaybackState 系统媒体会话的播放状态
type PlaybackState string

const (
	PlaybackNone    PlaybackState = "none"
	PlaybackPaused  PlaybackState = "paused"
	PlaybackPlaying PlaybackState = "playing"
)

// Artwork 封面
type Artwork struct {
	Src string
}

// Metadata 正在播放的信息
type Metadata struct {
	Title   string
	Artist  string
	Album   string
	Artwork []Artwork
}

// PositionState 播放位置，单位为秒
type PositionState struct {
	Duration     float64
	PlaybackRate float64
	Position     float64
}

// Session 系统媒体会话能力，不存在时传 nil
type Session interface {
	// SetActionHandler 注册指令回调，handler 为 nil 时注销
	SetActionHandler(action Action, handler ActionHandler) error
	// SetMetadata 设置正在播放信息，nil 表示清空
	SetMetadata(meta *Metadata) error
	SetPlaybackState(state PlaybackState) error
	SetPositionState(state PositionState) error
}
