// 配置热重载管理器实现。
//
// 配置文件变更后重新加载、校验并通知回调；AI 设置、重试、日志级别与价格表可以在运行中生效，
// 其余字段的变更只记录并提示需要重启。
package config

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"go.uber.org/zap"
)

// --- 热重载类型定义 ---

// HotReloadManager 管理配置热重载
type HotReloadManager struct {
	mu sync.RWMutex

	config *Config
	loader *Loader

	watcher   *FileWatcher
	watchOpts []WatcherOption

	changeCallbacks []ChangeCallback
	reloadCallbacks []ReloadCallback

	changeLog []ConfigChange

	logger *zap.Logger
}

// ChangeCallback 配置字段变更时调用
type ChangeCallback func(change ConfigChange)

// ReloadCallback 新配置生效后调用，返回错误时回滚到旧配置
type ReloadCallback func(oldConfig, newConfig *Config) error

// ConfigChange 代表一次字段变更
type ConfigChange struct {
	Timestamp time.Time `json:"timestamp"`
	// 来源: file, api
	Source string `json:"source"`
	// 字段路径，例如 "AI.Model"
	Path     string `json:"path"`
	OldValue any    `json:"old_value,omitempty"`
	NewValue any    `json:"new_value,omitempty"`
	// 是否需要重启才能生效
	RequiresRestart bool `json:"requires_restart"`
}

// hotField 描述一个可热重载字段
type hotField struct {
	Sensitive bool
}

// hotReloadableFields 运行中可以生效的字段，未列出的字段变更需要重启
var hotReloadableFields = map[string]hotField{
	"AI.Provider":    {},
	"AI.APIKey":      {Sensitive: true},
	"AI.Endpoint":    {},
	"AI.Model":       {},
	"AI.MaxTokens":   {},
	"AI.Temperature": {},

	"Retry.MaxRetries": {},
	"Retry.BaseDelay":  {},
	"Retry.MaxDelay":   {},

	"Log.Level": {},

	"Pricing": {},
}

// sensitiveFields 需要重启的敏感字段，日志中同样隐藏取值
var sensitiveFields = map[string]bool{
	"Auth.APIKeys":   true,
	"Auth.JWTSecret": true,
}

const maxChangeLog = 1000

// HotReloadOption 配置 HotReloadManager
type HotReloadOption func(*HotReloadManager)

// WithHotReloadLogger 设置日志
func WithHotReloadLogger(logger *zap.Logger) HotReloadOption {
	return func(m *HotReloadManager) {
		m.logger = logger
	}
}

// WithWatcherOptions 传递给内部 FileWatcher 的选项
func WithWatcherOptions(opts ...WatcherOption) HotReloadOption {
	return func(m *HotReloadManager) {
		m.watchOpts = append(m.watchOpts, opts...)
	}
}

// NewHotReloadManager 创建热重载管理器，loader 决定配置文件路径与环境变量前缀
func NewHotReloadManager(config *Config, loader *Loader, opts ...HotReloadOption) *HotReloadManager {
	m := &HotReloadManager{
		config: config,
		loader: loader,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start 开始监听配置文件
func (m *HotReloadManager) Start(ctx context.Context) error {
	path := m.loader.ConfigPath()
	if path == "" {
		return fmt.Errorf("no config path set")
	}

	opts := append([]WatcherOption{WithWatcherLogger(m.logger)}, m.watchOpts...)
	watcher, err := NewFileWatcher([]string{path}, opts...)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	watcher.OnChange(m.handleFileChange)
	if err := watcher.Start(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	m.watcher = watcher
	m.mu.Unlock()
	return nil
}

// Stop 停止监听
func (m *HotReloadManager) Stop() error {
	m.mu.Lock()
	watcher := m.watcher
	m.watcher = nil
	m.mu.Unlock()

	if watcher == nil {
		return nil
	}
	return watcher.Stop()
}

func (m *HotReloadManager) handleFileChange(event FileEvent) {
	m.logger.Info("configuration file changed",
		zap.String("path", event.Path),
		zap.String("op", event.Op.String()))

	if event.Op == FileOpWrite || event.Op == FileOpCreate {
		if err := m.ReloadFromFile(); err != nil {
			m.logger.Error("failed to reload configuration", zap.Error(err))
		}
	}
}

// ReloadFromFile 从文件重新加载配置。加载或校验失败时保留当前配置。
func (m *HotReloadManager) ReloadFromFile() error {
	newConfig, err := m.loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := newConfig.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return m.ApplyConfig(newConfig, "file")
}

// ApplyConfig 应用新配置。回调失败或 panic 时恢复旧配置并返回错误。
func (m *HotReloadManager) ApplyConfig(newConfig *Config, source string) error {
	m.mu.Lock()
	oldConfig := m.config

	changes := detectChanges(oldConfig, newConfig)
	if len(changes) == 0 {
		m.mu.Unlock()
		m.logger.Debug("configuration unchanged", zap.String("source", source))
		return nil
	}

	now := time.Now()
	var requiresRestart bool
	for i := range changes {
		changes[i].Source = source
		changes[i].Timestamp = now
		if changes[i].RequiresRestart {
			requiresRestart = true
		}
		m.logChange(changes[i])
	}

	m.config = newConfig
	m.changeLog = append(m.changeLog, changes...)
	if len(m.changeLog) > maxChangeLog {
		m.changeLog = m.changeLog[len(m.changeLog)-maxChangeLog:]
	}

	changeCallbacks := append([]ChangeCallback(nil), m.changeCallbacks...)
	reloadCallbacks := append([]ReloadCallback(nil), m.reloadCallbacks...)
	m.mu.Unlock()

	if err := notifyCallbacks(changeCallbacks, reloadCallbacks, oldConfig, newConfig, changes); err != nil {
		m.mu.Lock()
		if m.config == newConfig {
			m.config = oldConfig
			m.logger.Error("reload callback failed, rolled back", zap.Error(err))
		}
		m.mu.Unlock()
		return fmt.Errorf("config applied but callback failed: %w", err)
	}

	if requiresRestart {
		m.logger.Warn("some configuration changes require restart to take effect")
	}
	m.logger.Info("configuration reloaded",
		zap.String("source", source),
		zap.Int("changes", len(changes)),
		zap.Bool("requires_restart", requiresRestart))
	return nil
}

// notifyCallbacks 依次通知回调，捕获 panic
func notifyCallbacks(changeCallbacks []ChangeCallback, reloadCallbacks []ReloadCallback, oldConfig, newConfig *Config, changes []ConfigChange) (retErr error) {
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("callback panicked: %v", r)
		}
	}()
	for _, cb := range changeCallbacks {
		for _, change := range changes {
			cb(change)
		}
	}
	for _, cb := range reloadCallbacks {
		if err := cb(oldConfig, newConfig); err != nil {
			return err
		}
	}
	return nil
}

// detectChanges 比较新旧配置，敏感字段的取值被隐藏
func detectChanges(oldConfig, newConfig *Config) []ConfigChange {
	var changes []ConfigChange
	compareStructs("", reflect.ValueOf(oldConfig).Elem(), reflect.ValueOf(newConfig).Elem(), &changes)

	for i := range changes {
		field, hot := hotReloadableFields[changes[i].Path]
		changes[i].RequiresRestart = !hot
		if field.Sensitive || sensitiveFields[changes[i].Path] {
			changes[i].OldValue = "[REDACTED]"
			changes[i].NewValue = "[REDACTED]"
		}
	}
	return changes
}

// compareStructs 递归比较结构体字段
func compareStructs(prefix string, oldVal, newVal reflect.Value, changes *[]ConfigChange) {
	t := oldVal.Type()
	for i := 0; i < oldVal.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		fieldPath := field.Name
		if prefix != "" {
			fieldPath = prefix + "." + field.Name
		}

		oldField := oldVal.Field(i)
		newField := newVal.Field(i)

		if oldField.Kind() == reflect.Struct {
			compareStructs(fieldPath, oldField, newField, changes)
			continue
		}
		if !reflect.DeepEqual(oldField.Interface(), newField.Interface()) {
			*changes = append(*changes, ConfigChange{
				Path:     fieldPath,
				OldValue: oldField.Interface(),
				NewValue: newField.Interface(),
			})
		}
	}
}

func (m *HotReloadManager) logChange(change ConfigChange) {
	m.logger.Info("configuration changed",
		zap.String("path", change.Path),
		zap.String("source", change.Source),
		zap.Bool("requires_restart", change.RequiresRestart),
		zap.Any("old_value", change.OldValue),
		zap.Any("new_value", change.NewValue),
	)
}

// OnChange 注册字段变更回调
func (m *HotReloadManager) OnChange(callback ChangeCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changeCallbacks = append(m.changeCallbacks, callback)
}

// OnReload 注册重新加载回调
func (m *HotReloadManager) OnReload(callback ReloadCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reloadCallbacks = append(m.reloadCallbacks, callback)
}

// GetConfig 返回当前配置
func (m *HotReloadManager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetChangeLog 返回最近的 limit 条变更，limit <= 0 时返回全部
func (m *HotReloadManager) GetChangeLog(limit int) []ConfigChange {
	m.mu.RLock()
	defer m.mu.RUnlock()

	start := 0
	if limit > 0 && len(m.changeLog) > limit {
		start = len(m.changeLog) - limit
	}
	out := make([]ConfigChange, len(m.changeLog)-start)
	copy(out, m.changeLog[start:])
	return out
}
