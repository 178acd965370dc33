package library

import (
	"context"
	"fmt"

	"SceneCast/logger"

	"github.com/fsnotify/fsnotify"
)

// Watch 监听清单目录，新增或修改的 yaml 热加载进库
// 返回停止函数，调用后监听协程退出
func (l *Library) Watch(dir string) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("创建目录监听失败: %w", err)
	}

	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("监听清单目录失败: %w", err)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write) == 0 || !isManifest(event.Name) {
					continue
				}
				if _, err := l.LoadFile(context.Background(), event.Name); err != nil {
					logger.Warn("清单热加载失败",
						logger.String("file", event.Name),
						logger.ErrorField(err))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("清单监听异常", logger.ErrorField(err))
			case <-done:
				return
			}
		}
	}()

	logger.Info("清单目录监听中", logger.String("dir", dir))
	return func() {
		close(done)
		watcher.Close()
	}, nil
}
