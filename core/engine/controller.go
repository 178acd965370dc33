package engine

import (
	"errors"
	"math"
	"sync"
	"time"

	"SceneCast/logger"
	"SceneCast/model"
)

// State 时间线状态机的状态
type State string

const (
	// StateIdle 初始态，尚未装入演示文稿
	StateIdle State = "idle"
	// StateReady 已装入、处于暂停、位置已知
	StateReady State = "ready"
	// StatePlaying 播放中
	StatePlaying State = "playing"
	// StateSeeking 瞬态：暂停底层时钟、重定位、回到 seek 前的播放/暂停态
	StateSeeking State = "seeking"
	// StateEnded 完整播放一遍结束；快照已归零，对外等价于位置 0 的 Ready
	StateEnded State = "ended"
)

// ErrNoPresentation 尚未装入演示文稿时收到播放/跳转命令
var ErrNoPresentation = errors.New("no presentation loaded")

// TimelineController 时间线状态机
// 把异构的计时来源（视频时钟、音频时钟、墙钟）拼成一条单调的全局时间线：
// 持有当前段索引与播放快照，响应时钟 tick、段结束事件和外部命令，
// 所有状态变更都从这里发出，其余组件对快照只读
type TimelineController struct {
	mu sync.Mutex

	binder    *MediaBinder
	plan      []*PlanSegment
	durations *DurationSet

	state   State
	snap    model.PlaybackState
	elapsed float64 // 当前段内已播秒数
	version int64

	listener func(model.PlaybackState)
}

// NewTimelineController 创建控制器
// video/audio 是整条时间线共享的一对媒体元素，tick 是墙钟轮询周期
func NewTimelineController(video, audio MediaElement, tick time.Duration) *TimelineController {
	return &TimelineController{
		binder: NewMediaBinder(video, audio, tick),
		state:  StateIdle,
	}
}

// SetSnapshotListener 注册快照监听，每次 tick 和状态变更都会推送
func (c *TimelineController) SetSnapshotListener(fn func(model.PlaybackState)) {
	c.mu.Lock()
	c.listener = fn
	c.mu.Unlock()
}

// State 当前状态机状态
func (c *TimelineController) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot 当前播放快照
func (c *TimelineController) Snapshot() model.PlaybackState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// TotalDuration 当前总时长（秒）
func (c *TimelineController) TotalDuration() float64 {
	c.mu.Lock()
	d := c.durations
	c.mu.Unlock()
	if d == nil {
		return 0
	}
	return d.Total()
}

// SetPresentation 装入新的演示文稿
// 无论此前处于什么状态都完全复位：释放旧绑定、丢弃全部实测时长、回到位置 0
// 唯一的致命错误是空演示文稿（既无段也无 singleMediaUrl），此时停留在 Idle
func (c *TimelineController) SetPresentation(p *model.Presentation) error {
	c.mu.Lock()
	c.binder.Unbind()

	if err := p.Validate(); err != nil {
		c.plan = nil
		c.durations = nil
		c.state = StateIdle
		c.snap = model.PlaybackState{}
		snap := c.publishLocked()
		c.unlockAndNotify(snap)

		logger.Warn("presentation rejected", logger.ErrorField(err))
		return err
	}

	c.plan = BuildPlan(p)
	c.durations = NewDurationSet(FallbackDurations(c.plan))
	c.elapsed = 0
	c.state = StateReady
	c.snap = model.PlaybackState{
		CurrentSegmentIndex: 0,
		IsMuted:             c.snap.IsMuted, // 静音偏好跨演示文稿保留
	}
	segments := len(c.plan)
	total := c.durations.Total()
	snap := c.publishLocked()
	c.unlockAndNotify(snap)

	logger.Info("presentation loaded",
		logger.Int("segments", segments),
		logger.Float64("totalDuration", total))
	return nil
}

// Play 开始/恢复播放
// 自动播放被拒时回退到 Ready 并在快照里标记 needsGesture，不向调用方抛错
func (c *TimelineController) Play() error {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return ErrNoPresentation
	}
	if c.state == StatePlaying {
		c.mu.Unlock()
		return nil
	}
	c.snap.EndedPass = false

	if err := c.bindAndStartLocked(c.snap.CurrentSegmentIndex, c.elapsed); err != nil {
		// 需要用户手势，保持暂停并向宿主暴露条件
		c.state = StateReady
		c.snap.IsPlaying = false
		c.snap.NeedsGesture = true
		snap := c.publishLocked()
		c.unlockAndNotify(snap)

		logger.Info("playback start rejected, waiting for user gesture",
			logger.Int("segment", snap.CurrentSegmentIndex))
		return nil
	}

	c.state = StatePlaying
	c.snap.IsPlaying = true
	c.snap.NeedsGesture = false
	snap := c.publishLocked()
	c.unlockAndNotify(snap)
	return nil
}

// Pause 暂停播放，保留位置
func (c *TimelineController) Pause() {
	c.mu.Lock()
	if c.state != StatePlaying {
		c.mu.Unlock()
		return
	}
	c.binder.Pause(c.binder.Generation())
	c.state = StateReady
	c.snap.IsPlaying = false
	snap := c.publishLocked()
	c.unlockAndNotify(snap)
}

// ToggleMute 切换静音，同步到当前绑定的视频与音频元素
func (c *TimelineController) ToggleMute() {
	c.mu.Lock()
	c.snap.IsMuted = !c.snap.IsMuted
	c.binder.SetMuted(c.snap.IsMuted)
	snap := c.publishLocked()
	c.unlockAndNotify(snap)
}

// RequestFullscreen 切换全屏标记，实际视口操作由宿主 UI 执行
func (c *TimelineController) RequestFullscreen() {
	c.mu.Lock()
	c.snap.IsFullscreen = !c.snap.IsFullscreen
	snap := c.publishLocked()
	c.unlockAndNotify(snap)
}

// Seek 跳转到全局百分比位置，越界值静默钳制到 [0,100]
// 一律取消当前绑定并重绑目标段（最后一次 seek 生效），
// 结束后回到 seek 前的播放/暂停状态
func (c *TimelineController) Seek(percent float64) error {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return ErrNoPresentation
	}

	wasPlaying := c.state == StatePlaying
	c.state = StateSeeking
	c.snap.EndedPass = false

	durs := c.durations.Snapshot()
	idx, offset := FromGlobalPercent(percent, durs)

	c.snap.CurrentSegmentIndex = idx
	c.elapsed = offset
	c.snap.GlobalProgressPercent = ToGlobalPercent(idx, offset, durs)
	c.snap.CurrentImageIndex = carouselImageIndex(offset, durs[idx], c.plan[idx].ImageCount())

	if wasPlaying {
		if err := c.bindAndStartLocked(idx, offset); err != nil {
			c.state = StateReady
			c.snap.IsPlaying = false
			c.snap.NeedsGesture = true
			snap := c.publishLocked()
			c.unlockAndNotify(snap)
			return nil
		}
		c.state = StatePlaying
		c.snap.IsPlaying = true
	} else {
		// 暂停态下也要重绑，让画面停在目标段的正确位置
		c.bindPausedLocked(idx, offset)
		c.state = StateReady
		c.snap.IsPlaying = false
	}

	snap := c.publishLocked()
	c.unlockAndNotify(snap)

	logger.Debug("seek applied",
		logger.Float64("percent", percent),
		logger.Int("segment", idx),
		logger.Float64("offset", offset))
	return nil
}

// SetMeasuredDuration 写入某段的实测时长（元数据加载或外部探测）
// 只改总时长分母：段内已播秒数保持不变，百分比可能因此跳变一次
func (c *TimelineController) SetMeasuredDuration(i int, duration float64) {
	c.mu.Lock()
	if c.durations == nil || !c.durations.SetMeasured(i, duration) {
		c.mu.Unlock()
		return
	}
	c.recomputeProgressLocked()
	total := c.durations.Total()
	snap := c.publishLocked()
	c.unlockAndNotify(snap)

	logger.Debug("measured duration applied",
		logger.Int("segment", i),
		logger.Float64("duration", duration),
		logger.Float64("total", total))
}

// ReportImageFailure 宿主上报某段图片加载失败，按解析链降级
func (c *TimelineController) ReportImageFailure(segmentIndex int) {
	c.mu.Lock()
	if segmentIndex < 0 || segmentIndex >= len(c.plan) {
		c.mu.Unlock()
		return
	}
	c.plan[segmentIndex].MarkImagesFailed()
	c.degradeRebindLocked(segmentIndex)
}

// Close 卸载引擎：同步释放时钟与绑定，此后不再有任何回调生效
func (c *TimelineController) Close() {
	c.mu.Lock()
	c.binder.Unbind()
	c.state = StateIdle
	c.listener = nil
	c.mu.Unlock()
}

// ========== 内部：绑定 ==========

func (c *TimelineController) callbacksLocked() BoundCallbacks {
	return BoundCallbacks{
		OnTick:       c.onTick,
		OnEnded:      c.onEnded,
		OnMetadata:   c.onMetadata,
		OnMediaError: c.onMediaError,
	}
}

func (c *TimelineController) bindAndStartLocked(idx int, offset float64) error {
	_, err := c.binder.Bind(BindRequest{
		Index:     idx,
		Segment:   c.plan[idx],
		Duration:  c.durations.Effective(idx),
		Offset:    offset,
		Muted:     c.snap.IsMuted,
		Playing:   true,
		Callbacks: c.callbacksLocked(),
	})
	return err
}

func (c *TimelineController) bindPausedLocked(idx int, offset float64) {
	c.binder.Bind(BindRequest{
		Index:     idx,
		Segment:   c.plan[idx],
		Duration:  c.durations.Effective(idx),
		Offset:    offset,
		Muted:     c.snap.IsMuted,
		Playing:   false,
		Callbacks: c.callbacksLocked(),
	})
}

// degradeRebindLocked 策略降级后重绑当前段，持有锁进入，内部释放
func (c *TimelineController) degradeRebindLocked(segmentIndex int) {
	if segmentIndex != c.snap.CurrentSegmentIndex {
		c.mu.Unlock()
		return
	}

	playing := c.state == StatePlaying
	if playing {
		if err := c.bindAndStartLocked(segmentIndex, c.elapsed); err != nil {
			c.state = StateReady
			c.snap.IsPlaying = false
			c.snap.NeedsGesture = true
		}
	} else {
		c.bindPausedLocked(segmentIndex, c.elapsed)
	}
	snap := c.publishLocked()
	c.unlockAndNotify(snap)
}

// ========== 内部：事件处理 ==========

// onTick 时钟 tick：换算全局百分比，轮播段顺带换算图片索引
func (c *TimelineController) onTick(gen int64, localElapsed float64) {
	c.mu.Lock()
	if !c.binder.IsCurrent(gen) || c.state != StatePlaying {
		c.mu.Unlock()
		return
	}

	c.elapsed = localElapsed
	idx := c.snap.CurrentSegmentIndex
	durs := c.durations.Snapshot()
	c.snap.GlobalProgressPercent = ToGlobalPercent(idx, localElapsed, durs)

	ps := c.plan[idx]
	switch ps.Strategy {
	case model.StrategyCarouselAudio, model.StrategyCarouselSilent:
		c.snap.CurrentImageIndex = carouselImageIndex(localElapsed, durs[idx], ps.ImageCount())
	}

	snap := c.publishLocked()
	c.unlockAndNotify(snap)
}

// onEnded 段结束：还有后续段则推进并重绑，否则完成一轮归零
func (c *TimelineController) onEnded(gen int64) {
	c.mu.Lock()
	if !c.binder.IsCurrent(gen) || c.state != StatePlaying {
		c.mu.Unlock()
		return
	}

	idx := c.snap.CurrentSegmentIndex
	if idx < len(c.plan)-1 {
		next := idx + 1
		c.snap.CurrentSegmentIndex = next
		c.snap.CurrentImageIndex = 0
		c.elapsed = 0
		c.recomputeProgressLocked()

		if err := c.bindAndStartLocked(next, 0); err != nil {
			c.state = StateReady
			c.snap.IsPlaying = false
			c.snap.NeedsGesture = true
		}
		snap := c.publishLocked()
		c.unlockAndNotify(snap)

		logger.Debug("advanced to next segment", logger.Int("segment", next))
		return
	}

	// 最后一段结束：进入 Ended 并立即归一化到位置 0 的暂停态，
	// EndedPass 只是给关心“完整播完一遍”的调用方的信号
	c.binder.Unbind()
	c.state = StateEnded
	c.snap.CurrentSegmentIndex = 0
	c.snap.CurrentImageIndex = 0
	c.snap.GlobalProgressPercent = 0
	c.snap.IsPlaying = false
	c.snap.EndedPass = true
	c.elapsed = 0

	snap := c.publishLocked()
	c.unlockAndNotify(snap)

	logger.Info("presentation playback completed")
}

// onMetadata 权威媒体元素的实测时长到达
func (c *TimelineController) onMetadata(gen int64, measured float64) {
	c.mu.Lock()
	if !c.binder.IsCurrent(gen) {
		c.mu.Unlock()
		return
	}
	idx := c.snap.CurrentSegmentIndex
	if c.durations == nil || !c.durations.SetMeasured(idx, measured) {
		c.mu.Unlock()
		return
	}
	c.recomputeProgressLocked()
	snap := c.publishLocked()
	c.unlockAndNotify(snap)
}

// onMediaError 权威媒体加载失败：按解析链降级为图片/占位后重绑，
// 单段失败绝不中断整个演示文稿
func (c *TimelineController) onMediaError(gen int64, err error) {
	c.mu.Lock()
	if !c.binder.IsCurrent(gen) {
		c.mu.Unlock()
		return
	}

	idx := c.snap.CurrentSegmentIndex
	ps := c.plan[idx]
	old := ps.Strategy
	switch ps.Strategy {
	case model.StrategySingleVideo, model.StrategySceneVideo:
		ps.MarkVideoFailed()
	case model.StrategyCarouselAudio:
		ps.MarkAudioFailed()
	}

	logger.Warn("media load failed, degrading segment",
		logger.Int("segment", idx),
		logger.String("from", string(old)),
		logger.String("to", string(ps.Strategy)),
		logger.ErrorField(err))

	c.degradeRebindLocked(idx)
}

// ========== 内部：工具 ==========

// recomputeProgressLocked 时长集合变化后用保留的段内秒数重算百分比
func (c *TimelineController) recomputeProgressLocked() {
	if c.state == StateIdle || c.durations == nil {
		return
	}
	durs := c.durations.Snapshot()
	c.snap.GlobalProgressPercent = ToGlobalPercent(c.snap.CurrentSegmentIndex, c.elapsed, durs)
}

// publishLocked 盖上版本号与时间戳，返回待推送的快照副本
func (c *TimelineController) publishLocked() model.PlaybackState {
	c.version++
	c.snap.StateVersion = c.version
	c.snap.UpdatedAt = time.Now().UnixMilli()
	return c.snap
}

// unlockAndNotify 释放锁后再推送快照，避免监听方回调持锁
func (c *TimelineController) unlockAndNotify(snap model.PlaybackState) {
	fn := c.listener
	c.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}

// carouselImageIndex 轮播图片索引：floor(elapsed / (duration / imageCount))
func carouselImageIndex(elapsed, duration float64, imageCount int) int {
	if imageCount <= 0 || duration <= 0 {
		return 0
	}
	idx := int(math.Floor(elapsed / (duration / float64(imageCount))))
	if idx < 0 {
		return 0
	}
	if idx >= imageCount {
		return imageCount - 1
	}
	return idx
}
