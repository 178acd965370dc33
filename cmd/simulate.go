package cmd

import (
	"fmt"
	"log"
	"os"
	"time"

	"SceneCast/core/engine"
	"SceneCast/model"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	simTickMs  int
	simTimeout time.Duration
)

// simManifest 与清单文件同构，模拟命令不依赖数据库
type simManifest struct {
	Title          string          `yaml:"title"`
	SingleMediaURL string          `yaml:"singleMediaUrl"`
	Segments       []model.Segment `yaml:"segments"`
}

var simulateCmd = &cobra.Command{
	Use:   "simulate <manifest.yaml>",
	Short: "无头播放一份清单",
	Long:  `不起服务器，直接把清单装进时间线完整播一遍，打印每次状态变化。用于验证清单的策略解析与时长推进。`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		data, err := os.ReadFile(args[0])
		if err != nil {
			log.Fatalf("读取清单失败: %v", err)
		}

		var m simManifest
		if err := yaml.Unmarshal(data, &m); err != nil {
			log.Fatalf("解析清单失败: %v", err)
		}

		p := &model.Presentation{
			SingleMediaURL: m.SingleMediaURL,
			Segments:       m.Segments,
		}

		// 模拟环境没有真实媒体，用声明时长充当实测时长
		durations := make(map[string]float64)
		plan := engine.BuildPlan(p)
		for _, ps := range plan {
			if ps.VideoURL != "" {
				durations[ps.VideoURL] = ps.Fallback
			}
			if ps.AudioURL != "" {
				durations[ps.AudioURL] = ps.Fallback
			}
		}
		metadata := func(url string) (float64, error) {
			return durations[url], nil
		}

		tick := time.Duration(simTickMs) * time.Millisecond
		video := engine.NewSimElement("video", tick)
		audio := engine.NewSimElement("audio", tick)
		video.SetMetadataFunc(metadata)
		audio.SetMetadataFunc(metadata)
		defer video.Close()
		defer audio.Close()

		ctrl := engine.NewTimelineController(video, audio, tick)
		defer ctrl.Close()

		done := make(chan struct{}, 1)
		ctrl.SetSnapshotListener(func(snap model.PlaybackState) {
			fmt.Printf("[%6.2f%%] segment=%d image=%d playing=%v state=%s\n",
				snap.GlobalProgressPercent,
				snap.CurrentSegmentIndex,
				snap.CurrentImageIndex,
				snap.IsPlaying,
				ctrl.State())
			if snap.EndedPass {
				select {
				case done <- struct{}{}:
				default:
				}
			}
		})

		if err := ctrl.SetPresentation(p); err != nil {
			log.Fatalf("装载清单失败: %v", err)
		}

		fmt.Printf("清单 %q：%d 个播放单元，总时长 %.2fs\n", m.Title, len(plan), ctrl.TotalDuration())

		if err := ctrl.Play(); err != nil {
			log.Fatalf("启动播放失败: %v", err)
		}

		select {
		case <-done:
			fmt.Println("播放完成")
		case <-time.After(simTimeout):
			log.Fatalf("播放未在 %v 内完成", simTimeout)
		}
	},
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().IntVar(&simTickMs, "tick", 100, "时钟周期（毫秒）")
	simulateCmd.Flags().DurationVar(&simTimeout, "timeout", 10*time.Minute, "最长等待时间")
}
