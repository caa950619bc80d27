package mediactl

import (
	"fmt"
	"math"
	"slices"
	"sync"

	"BucketFM/logger"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
)

const (
	mprisBusName     = "org.mpris.MediaPlayer2.bucketfm"
	mprisObjectPath  = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	mprisRootIface   = "org.mpris.MediaPlayer2"
	mprisPlayerIface = "org.mpris.MediaPlayer2.Player"

	noTrackPath      = dbus.ObjectPath("/org/mpris/MediaPlayer2/TrackList/NoTrack")
	currentTrackPath = dbus.ObjectPath("/org/bucketfm/track/current")
)

// MPRIS 通过 D-Bus 会话总线实现 Session（Linux 桌面）
type MPRIS struct {
	conn  *dbus.Conn
	props *prop.Properties

	mu       sync.RWMutex
	handlers map[Action]ActionHandler
	meta     *Metadata
	length   float64
}

// NewMPRIS 连接会话总线并注册 org.mpris.MediaPlayer2.bucketfm
func NewMPRIS(identity string) (*MPRIS, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}

	reply, err := conn.RequestName(mprisBusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("request name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return nil, fmt.Errorf("bus name %s already taken", mprisBusName)
	}

	m := &MPRIS{
		conn:     conn,
		handlers: make(map[Action]ActionHandler),
	}
	if err := m.export(identity); err != nil {
		conn.Close()
		return nil, err
	}

	logger.Info("MPRIS 已注册", logger.String("busName", mprisBusName))
	return m, nil
}

func (m *MPRIS) export(identity string) error {
	root := mprisRoot{}
	player := &mprisPlayer{m: m}

	if err := m.conn.Export(root, mprisObjectPath, mprisRootIface); err != nil {
		return fmt.Errorf("export root: %w", err)
	}
	if err := m.conn.Export(player, mprisObjectPath, mprisPlayerIface); err != nil {
		return fmt.Errorf("export player: %w", err)
	}

	props, err := prop.Export(m.conn, mprisObjectPath, prop.Map{
		mprisRootIface: {
			"CanQuit":             {Value: false, Emit: prop.EmitConst},
			"CanRaise":            {Value: false, Emit: prop.EmitConst},
			"HasTrackList":        {Value: false, Emit: prop.EmitConst},
			"Identity":            {Value: identity, Emit: prop.EmitConst},
			"SupportedUriSchemes": {Value: []string{"http", "https", "file"}, Emit: prop.EmitConst},
			"SupportedMimeTypes":  {Value: []string{"audio/mpeg", "audio/flac", "audio/ogg", "audio/wav"}, Emit: prop.EmitConst},
		},
		mprisPlayerIface: {
			"PlaybackStatus": {Value: "Stopped", Emit: prop.EmitTrue},
			"Rate":           {Value: 1.0, Emit: prop.EmitTrue},
			"Metadata":       {Value: metadataMap(nil, math.NaN()), Emit: prop.EmitTrue},
			"Volume":         {Value: 1.0, Emit: prop.EmitTrue},
			"Position":       {Value: int64(0), Emit: prop.EmitFalse},
			"MinimumRate":    {Value: 1.0, Emit: prop.EmitConst},
			"MaximumRate":    {Value: 1.0, Emit: prop.EmitConst},
			"CanGoNext":      {Value: false, Emit: prop.EmitTrue},
			"CanGoPrevious":  {Value: false, Emit: prop.EmitTrue},
			"CanPlay":        {Value: false, Emit: prop.EmitTrue},
			"CanPause":       {Value: false, Emit: prop.EmitTrue},
			"CanSeek":        {Value: false, Emit: prop.EmitTrue},
			"CanControl":     {Value: true, Emit: prop.EmitConst},
		},
	})
	if err != nil {
		return fmt.Errorf("export properties: %w", err)
	}
	m.props = props

	node := &introspect.Node{
		Name: string(mprisObjectPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name:       mprisRootIface,
				Methods:    introspect.Methods(root),
				Properties: props.Introspection(mprisRootIface),
			},
			{
				Name:       mprisPlayerIface,
				Methods:    introspect.Methods(player),
				Properties: props.Introspection(mprisPlayerIface),
			},
		},
	}
	if err := m.conn.Export(introspect.NewIntrospectable(node), mprisObjectPath,
		"org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("export introspection: %w", err)
	}
	return nil
}

// SetActionHandler implements Session.
func (m *MPRIS) SetActionHandler(action Action, handler ActionHandler) error {
	capability, ok := actionCapability[action]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedAction, action)
	}

	m.mu.Lock()
	if handler == nil {
		delete(m.handlers, action)
	} else {
		m.handlers[action] = handler
	}
	enabled := m.capabilityEnabledLocked(capability)
	m.mu.Unlock()

	m.props.SetMust(mprisPlayerIface, capability, enabled)
	return nil
}

// SetMetadata implements Session.
func (m *MPRIS) SetMetadata(meta *Metadata) error {
	m.mu.Lock()
	m.length = lengthFor(m.meta, meta, m.length)
	m.meta = meta
	length := m.length
	m.mu.Unlock()

	m.props.SetMust(mprisPlayerIface, "Metadata", metadataMap(meta, length))
	return nil
}

// SetPlaybackState implements Session.
func (m *MPRIS) SetPlaybackState(state PlaybackState) error {
	m.props.SetMust(mprisPlayerIface, "PlaybackStatus", playbackStatus(state))
	return nil
}

// SetPositionState implements Session.
func (m *MPRIS) SetPositionState(state PositionState) error {
	m.mu.Lock()
	lengthChanged := m.meta != nil && m.length != state.Duration
	m.length = state.Duration
	meta := m.meta
	m.mu.Unlock()

	if lengthChanged {
		m.props.SetMust(mprisPlayerIface, "Metadata", metadataMap(meta, state.Duration))
	}
	m.props.SetMust(mprisPlayerIface, "Rate", state.PlaybackRate)
	m.props.SetMust(mprisPlayerIface, "Position", microseconds(state.Position))
	return nil
}

// Close 释放总线名并断开连接
func (m *MPRIS) Close() error {
	if _, err := m.conn.ReleaseName(mprisBusName); err != nil {
		logger.Debug("释放 MPRIS 总线名失败", logger.ErrorField(err))
	}
	return m.conn.Close()
}

func (m *MPRIS) dispatch(action Action, details ActionDetails) *dbus.Error {
	m.mu.RLock()
	handler := m.handlers[action]
	m.mu.RUnlock()

	if handler == nil {
		return dbus.MakeFailedError(fmt.Errorf("%w: %s", ErrUnsupportedAction, action))
	}
	// 播放可能需要加载音频，不能阻塞 D-Bus 分发
	go handler(details)
	return nil
}

func (m *MPRIS) capabilityEnabledLocked(capability string) bool {
	for action, c := range actionCapability {
		if c == capability && m.handlers[action] != nil {
			return true
		}
	}
	return false
}

// actionCapability 指令对应的 MPRIS Can* 属性
var actionCapability = map[Action]string{
	ActionPlay:          "CanPlay",
	ActionPause:         "CanPause",
	ActionStop:          "CanPause",
	ActionNextTrack:     "CanGoNext",
	ActionPreviousTrack: "CanGoPrevious",
	ActionSeekBackward:  "CanSeek",
	ActionSeekForward:   "CanSeek",
	ActionSeekTo:        "CanSeek",
}

// mprisRoot org.mpris.MediaPlayer2
type mprisRoot struct{}

func (mprisRoot) Raise() *dbus.Error { return nil }
func (mprisRoot) Quit() *dbus.Error  { return nil }

// mprisPlayer org.mpris.MediaPlayer2.Player
type mprisPlayer struct {
	m *MPRIS
}

func (p *mprisPlayer) Next() *dbus.Error { return p.m.dispatch(ActionNextTrack, ActionDetails{}) }
func (p *mprisPlayer) Previous() *dbus.Error {
	return p.m.dispatch(ActionPreviousTrack, ActionDetails{})
}
func (p *mprisPlayer) Pause() *dbus.Error { return p.m.dispatch(ActionPause, ActionDetails{}) }
func (p *mprisPlayer) Play() *dbus.Error  { return p.m.dispatch(ActionPlay, ActionDetails{}) }
func (p *mprisPlayer) Stop() *dbus.Error  { return p.m.dispatch(ActionStop, ActionDetails{}) }

func (p *mprisPlayer) PlayPause() *dbus.Error {
	status, err := p.m.props.Get(mprisPlayerIface, "PlaybackStatus")
	if err == nil && status.Value() == "Playing" {
		return p.Pause()
	}
	return p.Play()
}

// Seek 相对跳转，offset 单位为微秒
func (p *mprisPlayer) Seek(offset int64) *dbus.Error {
	seconds := float64(offset) / 1e6
	if seconds < 0 {
		return p.m.dispatch(ActionSeekBackward, ActionDetails{SeekOffset: -seconds})
	}
	return p.m.dispatch(ActionSeekForward, ActionDetails{SeekOffset: seconds})
}

// SetPosition 绝对跳转，position 单位为微秒
func (p *mprisPlayer) SetPosition(trackID dbus.ObjectPath, position int64) *dbus.Error {
	if trackID != currentTrackPath {
		return nil
	}
	return p.m.dispatch(ActionSeekTo, ActionDetails{SeekTime: float64(position) / 1e6})
}

func (p *mprisPlayer) OpenUri(string) *dbus.Error {
	return dbus.MakeFailedError(fmt.Errorf("%w: OpenUri", ErrUnsupportedAction))
}

// lengthFor 换了曲目时上一首的时长作废，等下一次位置更新再填
func lengthFor(prev, next *Metadata, length float64) float64 {
	if next == nil || !sameTrack(prev, next) {
		return math.NaN()
	}
	return length
}

func sameTrack(a, b *Metadata) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Title == b.Title && a.Artist == b.Artist && a.Album == b.Album &&
		slices.Equal(a.Artwork, b.Artwork)
}

// metadataMap 转换为 xesam / mpris 元数据
func metadataMap(meta *Metadata, length float64) map[string]dbus.Variant {
	if meta == nil {
		return map[string]dbus.Variant{
			"mpris:trackid": dbus.MakeVariant(noTrackPath),
		}
	}

	out := map[string]dbus.Variant{
		"mpris:trackid": dbus.MakeVariant(currentTrackPath),
		"xesam:title":   dbus.MakeVariant(meta.Title),
		"xesam:artist":  dbus.MakeVariant([]string{meta.Artist}),
		"xesam:album":   dbus.MakeVariant(meta.Album),
	}
	if len(meta.Artwork) > 0 && meta.Artwork[0].Src != "" {
		out["mpris:artUrl"] = dbus.MakeVariant(meta.Artwork[0].Src)
	}
	if !math.IsNaN(length) && !math.IsInf(length, 0) && length > 0 {
		out["mpris:length"] = dbus.MakeVariant(microseconds(length))
	}
	return out
}

func playbackStatus(state PlaybackState) string {
	switch state {
	case PlaybackPlaying:
		return "Playing"
	case PlaybackPaused:
		return "Paused"
	default:
		return "Stopped"
	}
}

func microseconds(seconds float64) int64 {
	return int64(seconds * 1e6)
}
