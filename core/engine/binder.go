package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"SceneCast/logger"
	"SceneCast/model"
)

// BoundCallbacks 绑定期间媒体/时钟事件的出口
// 每个回调都带上绑定代数，接收方必须用 IsCurrent 复核后再改状态
type BoundCallbacks struct {
	OnTick       func(gen int64, localElapsed float64)
	OnEnded      func(gen int64)
	OnMetadata   func(gen int64, measuredDuration float64)
	OnMediaError func(gen int64, err error)
}

// BindRequest 一次段绑定的全部输入
type BindRequest struct {
	Index     int
	Segment   *PlanSegment
	Duration  float64 // 当前有效时长，墙钟策略据此合成 ended
	Offset    float64 // 段内起始偏移（seek 进入时非 0）
	Muted     bool
	Playing   bool
	Callbacks BoundCallbacks
}

// MediaBinder 段切换时媒体资源的绑定与释放
// 共享的一对媒体元素只允许经由它修改；每次 Bind 先 Unbind 上一段，
// 并推进代数计数器，让迟到的旧段事件必然失效
type MediaBinder struct {
	video MediaElement
	audio MediaElement
	tick  time.Duration

	mu           sync.Mutex
	gen          int64 // atomic
	disposeClock Disposer
	unsubMeta    func()
	bound        bool
	boundIndex   int
	req          BindRequest
}

// NewMediaBinder 创建绑定器
func NewMediaBinder(video, audio MediaElement, tick time.Duration) *MediaBinder {
	return &MediaBinder{
		video:      video,
		audio:      audio,
		tick:       tick,
		boundIndex: -1,
	}
}

// Generation 当前绑定代数
func (b *MediaBinder) Generation() int64 {
	return atomic.LoadInt64(&b.gen)
}

// IsCurrent 判断代数是否仍然有效（过期事件的守卫）
func (b *MediaBinder) IsCurrent(gen int64) bool {
	return gen == atomic.LoadInt64(&b.gen)
}

// BoundIndex 当前绑定的段索引，未绑定时 ok 为 false
func (b *MediaBinder) BoundIndex() (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.boundIndex, b.bound
}

// Bind 绑定一个段，固定顺序执行：
// 释放上一段 → 按策略设置媒体源 → 复位位置 → 订阅元数据 → 挂载时钟 → 按需起播
func (b *MediaBinder) Bind(req BindRequest) (int64, error) {
	b.Unbind()
	gen := atomic.AddInt64(&b.gen, 1)

	b.mu.Lock()
	b.req = req
	b.bound = true
	b.boundIndex = req.Index

	switch req.Segment.Strategy {
	case model.StrategySingleVideo, model.StrategySceneVideo:
		b.video.SetSource(req.Segment.VideoURL)
		b.audio.ClearSource()
	case model.StrategyCarouselAudio:
		b.audio.SetSource(req.Segment.AudioURL)
		b.video.ClearSource()
	default:
		b.video.ClearSource()
		b.audio.ClearSource()
	}

	b.video.SetMuted(req.Muted)
	b.audio.SetMuted(req.Muted)

	if el := b.authoritativeLocked(); el != nil {
		el.SeekTo(req.Offset)

		cb := req.Callbacks
		b.unsubMeta = el.Subscribe(func(ev MediaEvent) {
			if !b.IsCurrent(gen) {
				return
			}
			switch ev.Type {
			case EventLoadedMetadata:
				if cb.OnMetadata != nil {
					cb.OnMetadata(gen, ev.Duration)
				}
			case EventError:
				if cb.OnMediaError != nil {
					cb.OnMediaError(gen, ev.Err)
				}
			}
		})

		el.Load()
	}
	b.mu.Unlock()

	logger.Debug("segment bound",
		logger.Int("index", req.Index),
		logger.String("strategy", string(req.Segment.Strategy)),
		logger.Int64("generation", gen))

	if req.Playing {
		if err := b.Start(gen, req.Offset); err != nil {
			return gen, err
		}
	}
	return gen, nil
}

// Start 从指定偏移起播（或恢复）当前绑定段的权威时钟
// 自动播放被拒时原样返回 ErrAutoplayBlocked，不挂载时钟
func (b *MediaBinder) Start(gen int64, offset float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.bound || !b.IsCurrent(gen) {
		return nil
	}

	// 同一时刻最多一个时钟
	if b.disposeClock != nil {
		b.disposeClock()
		b.disposeClock = nil
	}

	req := b.req
	cb := req.Callbacks
	wrapped := ClockCallbacks{
		OnTick: func(elapsed float64) {
			if b.IsCurrent(gen) && cb.OnTick != nil {
				cb.OnTick(gen, elapsed)
			}
		},
		OnEnded: func() {
			if b.IsCurrent(gen) && cb.OnEnded != nil {
				cb.OnEnded(gen)
			}
		},
	}

	el := b.authoritativeLocked()
	if el != nil {
		el.SeekTo(offset)
	}

	b.disposeClock = AttachClock(b.video, b.audio, req.Segment.Strategy, req.Duration, offset, b.tick, wrapped)

	if el != nil {
		if err := el.Play(); err != nil {
			b.disposeClock()
			b.disposeClock = nil
			return err
		}
	}
	return nil
}

// Pause 暂停当前段：释放时钟并暂停媒体元素，不重置位置
func (b *MediaBinder) Pause(gen int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.bound || !b.IsCurrent(gen) {
		return
	}
	if b.disposeClock != nil {
		b.disposeClock()
		b.disposeClock = nil
	}
	if el := b.authoritativeLocked(); el != nil {
		el.Pause()
	}
}

// SetMuted 静音状态同步到共享的两个媒体元素
func (b *MediaBinder) SetMuted(muted bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.video.SetMuted(muted)
	b.audio.SetMuted(muted)
}

// Unbind 释放当前绑定：先释放时钟与监听，再清空媒体源
// 代数随之推进，尚在事件队列里的旧回调从此必然不命中 IsCurrent
func (b *MediaBinder) Unbind() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.disposeClock != nil {
		b.disposeClock()
		b.disposeClock = nil
	}
	if b.unsubMeta != nil {
		b.unsubMeta()
		b.unsubMeta = nil
	}
	if b.bound {
		b.video.Pause()
		b.audio.Pause()
		b.video.ClearSource()
		b.audio.ClearSource()
		b.bound = false
		b.boundIndex = -1
	}
	atomic.AddInt64(&b.gen, 1)
}

func (b *MediaBinder) authoritativeLocked() MediaElement {
	switch b.req.Segment.Strategy {
	case model.StrategySingleVideo, model.StrategySceneVideo:
		return b.video
	case model.StrategyCarouselAudio:
		return b.audio
	default:
		return nil
	}
}
