package media

import (
	"context"

	"SceneCast/core/engine"
	"SceneCast/logger"
	"SceneCast/model"
	"SceneCast/storage"

	"golang.org/x/sync/errgroup"
)

// DurationFunc 查询单个媒体引用的实测时长，查不到返回 (0, nil)
type DurationFunc func(ctx context.Context, ref string) (float64, error)

// Prober 并发探测各单元主控媒体的实测时长
// 探测结果通过回调逐段上报，调用方（播放会话）负责喂给时间线
type Prober struct {
	workers int
	stat    DurationFunc
}

func NewProber(workers int) *Prober {
	if workers <= 0 {
		workers = 4
	}
	return &Prober{workers: workers, stat: storage.StatMediaDuration}
}

// NewProberWithStat 注入探测函数，测试用
func NewProberWithStat(workers int, stat DurationFunc) *Prober {
	p := NewProber(workers)
	p.stat = stat
	return p
}

// Probe 对播放计划的每个单元探测主控媒体时长，report(index, duration) 只在测得有效值时调用
// 单个单元探测失败只记日志，不中断其它单元
func (p *Prober) Probe(ctx context.Context, plan []*engine.PlanSegment, report func(i int, d float64)) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i, ps := range plan {
		ref := authoritativeRef(ps)
		if ref == "" {
			continue
		}
		i, ref := i, ref
		g.Go(func() error {
			d, err := p.stat(ctx, ref)
			if err != nil {
				logger.Warn("时长探测失败",
					logger.Int("segment", i),
					logger.String("ref", ref),
					logger.ErrorField(err))
				return nil
			}
			if d > 0 {
				report(i, d)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// authoritativeRef 返回该单元时长的权威媒体引用
// 无声轮播与占位段走声明时长，没有可探测的媒体
func authoritativeRef(ps *engine.PlanSegment) string {
	switch ps.Strategy {
	case model.StrategySingleVideo, model.StrategySceneVideo:
		return ps.VideoURL
	case model.StrategyCarouselAudio:
		return ps.AudioURL
	default:
		return ""
	}
}
