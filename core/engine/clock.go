package engine

import (
	"sync"
	"time"

	"SceneCast/model"
)

// ClockCallbacks 权威时钟回调
type ClockCallbacks struct {
	OnTick  func(localElapsed float64)
	OnEnded func()
}

// Disposer 释放时钟占用的监听/定时器，可安全重复调用
// 任意时刻最多挂载一个时钟：挂载新时钟前必须先执行上一个 Disposer
type Disposer func()

// AttachClock 按策略挂载该段的权威时钟
//
//	single-video / scene-video        → 视频元素的 timeupdate/ended
//	image-carousel-with-audio         → 音频元素的 timeupdate/ended（图片切换跟随音频）
//	image-carousel-silent / empty     → 墙钟轮询，elapsed >= duration 时合成 ended
//
// duration、offset、tick 只对墙钟策略生效；媒体策略的位置由元素自身时钟决定
func AttachClock(video, audio MediaElement, strategy model.Strategy, duration, offset float64, tick time.Duration, cb ClockCallbacks) Disposer {
	switch strategy {
	case model.StrategySingleVideo, model.StrategySceneVideo:
		return attachMediaClock(video, cb)
	case model.StrategyCarouselAudio:
		return attachMediaClock(audio, cb)
	default:
		return attachWallClock(duration, offset, tick, cb)
	}
}

// attachMediaClock 媒体元素事件驱动的时钟
func attachMediaClock(el MediaElement, cb ClockCallbacks) Disposer {
	unsubscribe := el.Subscribe(func(ev MediaEvent) {
		switch ev.Type {
		case EventTimeUpdate:
			if cb.OnTick != nil {
				cb.OnTick(ev.Position)
			}
		case EventEnded:
			if cb.OnEnded != nil {
				cb.OnEnded()
			}
		}
	})

	var once sync.Once
	return func() {
		once.Do(unsubscribe)
	}
}

// attachWallClock 没有媒体时钟时的墙钟轮询
// 从挂载时刻起算，elapsed = offset + 流逝的真实时间
func attachWallClock(duration, offset float64, tick time.Duration, cb ClockCallbacks) Disposer {
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}

	start := time.Now()
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				elapsed := offset + time.Since(start).Seconds()
				if duration > 0 && elapsed >= duration {
					if cb.OnTick != nil {
						cb.OnTick(duration)
					}
					if cb.OnEnded != nil {
						cb.OnEnded()
					}
					return
				}
				if cb.OnTick != nil {
					cb.OnTick(elapsed)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
		})
	}
}
