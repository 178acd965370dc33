package engine

import "sync"

// DurationSet 聚合声明时长与实测时长
// 每个段先记兜底时长，媒体元数据加载后用实测值覆盖一次；
// 覆盖只改总时长分母，不动已经流逝的段内时间
type DurationSet struct {
	mu       sync.RWMutex
	fallback []float64
	measured map[int]float64
}

// NewDurationSet 用兜底时长初始化
func NewDurationSet(fallback []float64) *DurationSet {
	fb := make([]float64, len(fallback))
	copy(fb, fallback)
	return &DurationSet{
		fallback: fb,
		measured: make(map[int]float64),
	}
}

// Len 段数
func (d *DurationSet) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.fallback)
}

// SetMeasured 写入实测时长，返回有效时长是否因此变化
func (d *DurationSet) SetMeasured(i int, dur float64) bool {
	if dur <= 0 {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.fallback) {
		return false
	}
	if prev, ok := d.measured[i]; ok && prev == dur {
		return false
	}
	changed := d.effectiveLocked(i) != dur
	d.measured[i] = dur
	return changed
}

// Effective 段 i 的有效时长：实测优先，否则兜底
func (d *DurationSet) Effective(i int) float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.effectiveLocked(i)
}

func (d *DurationSet) effectiveLocked(i int) float64 {
	if i < 0 || i >= len(d.fallback) {
		return 0
	}
	if m, ok := d.measured[i]; ok {
		return m
	}
	return d.fallback[i]
}

// Total 当前总时长
func (d *DurationSet) Total() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	total := 0.0
	for i := range d.fallback {
		total += d.effectiveLocked(i)
	}
	return total
}

// Snapshot 当前各段有效时长的副本，供投影计算使用
func (d *DurationSet) Snapshot() []float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]float64, len(d.fallback))
	for i := range d.fallback {
		out[i] = d.effectiveLocked(i)
	}
	return out
}
