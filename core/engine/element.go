package engine

import (
	"errors"
	"sync"
	"time"
)

// MediaEventType 媒体元素事件类型
type MediaEventType string

const (
	EventTimeUpdate     MediaEventType = "timeupdate"
	EventEnded          MediaEventType = "ended"
	EventLoadedMetadata MediaEventType = "loadedmetadata"
	EventError          MediaEventType = "error"
)

// ErrAutoplayBlocked 自动播放被拒绝（对应浏览器的 autoplay 策略）
// 控制器捕获后回退到就绪态，绝不向上抛
var ErrAutoplayBlocked = errors.New("autoplay blocked: user gesture required")

// MediaEvent 媒体元素产生的事件
type MediaEvent struct {
	Type     MediaEventType
	Position float64 // 当前播放位置（秒）
	Duration float64 // 实测时长（loadedmetadata 时有效）
	Err      error
}

// MediaElement 底层媒体元素的抽象
// 整个时间线共享一对元素（一个视频、一个音频），来源与播放控制
// 只允许 MediaBinder 触碰，其余组件一律只读
type MediaElement interface {
	// SetSource 设置媒体源地址
	SetSource(url string)
	// ClearSource 清空媒体源并中止未完成的加载
	ClearSource()
	// Load 触发元数据加载，完成后异步产生 loadedmetadata 或 error 事件
	Load()
	// Play 开始播放，自动播放被策略拒绝时返回 ErrAutoplayBlocked
	Play() error
	// Pause 暂停播放，不重置位置
	Pause()
	// SeekTo 跳转到指定位置（秒）
	SeekTo(seconds float64)
	// SetMuted 设置静音
	SetMuted(muted bool)
	// CurrentTime 当前播放位置（秒）
	CurrentTime() float64
	// Subscribe 订阅事件，返回取消订阅函数
	Subscribe(fn func(MediaEvent)) (unsubscribe func())
}

// MetadataFunc 按地址解析实测时长，返回错误表示媒体加载失败
type MetadataFunc func(url string) (float64, error)

// SimElement 时钟驱动的媒体元素实现
// 服务端没有真实的 <video>/<audio>，用它承载同样的事件语义：
// Play 后按 tick 周期推进位置并产生 timeupdate，到达时长后产生 ended
type SimElement struct {
	mu sync.Mutex

	kind string // video / audio，仅用于日志与调试
	tick time.Duration

	src      string
	position float64
	duration float64
	muted    bool
	playing  bool
	stop     chan struct{}

	metadata   MetadataFunc
	rejectPlay func(url string, muted bool) bool

	subs    map[int]func(MediaEvent)
	nextSub int

	events    chan MediaEvent
	closed    chan struct{}
	closeOnce sync.Once
}

// NewSimElement 创建模拟媒体元素
// tick 为 0 时不启动自走时钟，只能通过 Advance 手动推进（测试用）
func NewSimElement(kind string, tick time.Duration) *SimElement {
	e := &SimElement{
		kind:   kind,
		tick:   tick,
		subs:   make(map[int]func(MediaEvent)),
		events: make(chan MediaEvent, 256),
		closed: make(chan struct{}),
	}
	// 事件统一经由单 goroutine 派发，保证顺序且不在调用方栈上回调
	go e.dispatch()
	return e
}

// SetMetadataFunc 设置元数据解析钩子
func (e *SimElement) SetMetadataFunc(fn MetadataFunc) {
	e.mu.Lock()
	e.metadata = fn
	e.mu.Unlock()
}

// SetRejectPlayFunc 设置自动播放拒绝钩子（测试/策略注入）
func (e *SimElement) SetRejectPlayFunc(fn func(url string, muted bool) bool) {
	e.mu.Lock()
	e.rejectPlay = fn
	e.mu.Unlock()
}

func (e *SimElement) dispatch() {
	for {
		select {
		case ev := <-e.events:
			e.mu.Lock()
			fns := make([]func(MediaEvent), 0, len(e.subs))
			for _, fn := range e.subs {
				fns = append(fns, fn)
			}
			e.mu.Unlock()
			for _, fn := range fns {
				fn(ev)
			}
		case <-e.closed:
			return
		}
	}
}

func (e *SimElement) emit(ev MediaEvent) {
	select {
	case e.events <- ev:
	case <-e.closed:
	}
}

// SetSource 设置媒体源
func (e *SimElement) SetSource(url string) {
	e.mu.Lock()
	e.src = url
	e.position = 0
	e.duration = 0
	e.mu.Unlock()
}

// ClearSource 清空媒体源，中止未完成的加载
func (e *SimElement) ClearSource() {
	e.mu.Lock()
	e.src = ""
	e.position = 0
	e.duration = 0
	e.stopTickerLocked()
	e.playing = false
	e.mu.Unlock()
}

// Load 异步解析元数据
func (e *SimElement) Load() {
	e.mu.Lock()
	src := e.src
	fn := e.metadata
	e.mu.Unlock()
	if src == "" || fn == nil {
		return
	}

	go func() {
		dur, err := fn(src)

		e.mu.Lock()
		// 加载期间源被替换则丢弃结果，等价于中止了旧的加载请求
		if e.src != src {
			e.mu.Unlock()
			return
		}
		if err == nil {
			e.duration = dur
		}
		e.mu.Unlock()

		if err != nil {
			e.emit(MediaEvent{Type: EventError, Err: err})
			return
		}
		e.emit(MediaEvent{Type: EventLoadedMetadata, Duration: dur})
	}()
}

// Play 开始播放
func (e *SimElement) Play() error {
	e.mu.Lock()
	if e.rejectPlay != nil && e.rejectPlay(e.src, e.muted) {
		e.mu.Unlock()
		return ErrAutoplayBlocked
	}
	if e.playing {
		e.mu.Unlock()
		return nil
	}
	e.playing = true
	if e.tick > 0 {
		stop := make(chan struct{})
		e.stop = stop
		go e.run(stop)
	}
	e.mu.Unlock()
	return nil
}

func (e *SimElement) run(stop chan struct{}) {
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if done := e.step(e.tick.Seconds()); done {
				return
			}
		}
	}
}

// step 推进播放位置，返回是否已到达结尾
func (e *SimElement) step(dt float64) bool {
	e.mu.Lock()
	if !e.playing {
		e.mu.Unlock()
		return true
	}
	e.position += dt
	ended := e.duration > 0 && e.position >= e.duration
	if ended {
		e.position = e.duration
		e.playing = false
		e.stopTickerLocked()
	}
	pos := e.position
	e.mu.Unlock()

	e.emit(MediaEvent{Type: EventTimeUpdate, Position: pos})
	if ended {
		e.emit(MediaEvent{Type: EventEnded, Position: pos})
	}
	return ended
}

// Advance 手动推进播放位置（测试用，tick 为 0 时的驱动方式）
func (e *SimElement) Advance(seconds float64) {
	e.step(seconds)
}

// Pause 暂停播放
func (e *SimElement) Pause() {
	e.mu.Lock()
	e.playing = false
	e.stopTickerLocked()
	e.mu.Unlock()
}

func (e *SimElement) stopTickerLocked() {
	if e.stop != nil {
		close(e.stop)
		e.stop = nil
	}
}

// SeekTo 跳转到指定位置
func (e *SimElement) SeekTo(seconds float64) {
	e.mu.Lock()
	if seconds < 0 {
		seconds = 0
	}
	if e.duration > 0 && seconds > e.duration {
		seconds = e.duration
	}
	e.position = seconds
	e.mu.Unlock()
}

// SetMuted 设置静音
func (e *SimElement) SetMuted(muted bool) {
	e.mu.Lock()
	e.muted = muted
	e.mu.Unlock()
}

// Muted 返回当前静音状态
func (e *SimElement) Muted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.muted
}

// Source 返回当前媒体源
func (e *SimElement) Source() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.src
}

// CurrentTime 当前播放位置
func (e *SimElement) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.position
}

// Subscribe 订阅事件
func (e *SimElement) Subscribe(fn func(MediaEvent)) func() {
	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs, id)
			e.mu.Unlock()
		})
	}
}

// Close 停止事件派发，元素不再可用
func (e *SimElement) Close() {
	e.mu.Lock()
	e.stopTickerLocked()
	e.playing = false
	e.mu.Unlock()

	e.closeOnce.Do(func() {
		close(e.closed)
	})
}
