package engine

// 进度投影：在（段索引，段内已播秒数）和全局百分比之间互相换算。
// 两个方向都是纯函数，只依赖传入的时长切片。

// ToGlobalPercent 把段内位置映射为全局百分比，结果钳制在 [0,100]
func ToGlobalPercent(segmentIndex int, localElapsed float64, durations []float64) float64 {
	total := 0.0
	for _, d := range durations {
		total += d
	}
	if total <= 0 {
		return 0
	}

	abs := 0.0
	for i := 0; i < segmentIndex && i < len(durations); i++ {
		abs += durations[i]
	}
	abs += localElapsed

	percent := 100 * abs / total
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}

// FromGlobalPercent 把全局百分比反解为（段索引，段内偏移）
// 恰好落在段边界时归属下一段的起点，唯一例外是时间线终点：
// 100% 落在最后一段的结尾而不是越过它，避免 seek 到终点触发自动推进
func FromGlobalPercent(percent float64, durations []float64) (segmentIndex int, localOffset float64) {
	if len(durations) == 0 {
		return 0, 0
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	total := 0.0
	for _, d := range durations {
		total += d
	}
	if total <= 0 {
		return 0, 0
	}

	target := percent / 100 * total

	acc := 0.0
	for i, d := range durations {
		last := i == len(durations)-1
		// 非末段：target == acc+d 属于下一段起点；末段允许取到结尾
		if target < acc+d || last {
			off := target - acc
			if off < 0 {
				off = 0
			}
			if off > d {
				off = d
			}
			return i, off
		}
		acc += d
	}

	// 浮点兜底，正常不可达
	lastIdx := len(durations) - 1
	return lastIdx, durations[lastIdx]
}
