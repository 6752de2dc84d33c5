// Package config 提供应用程序的配置加载和管理功能
// 使用 TOML 格式的配置文件，支持多路径查找
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml" // TOML 配置文件解析库
)

// MainConfig 主配置，包含应用基本信息
type MainConfig struct {
	AppName  string `toml:"appName"`  // 应用名称，用于日志标识等
	Host     string `toml:"host"`     // 服务器监听地址，如 "0.0.0.0"
	Port     int    `toml:"port"`     // 服务器监听端口，如 8000
	Mode     string `toml:"mode"`     // 运行模式："dev" 或 "release"
	ForceTLS bool   `toml:"forceTLS"` // 是否将 HTTP 请求重定向到 HTTPS
}

// MysqlConfig MySQL 数据库连接配置，Host 为空时不启用审计持久化
type MysqlConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	DatabaseName string `toml:"databaseName"`
}

// RedisConfig Redis 连接配置，Host 为空时分析快照只保存在内存
type RedisConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Password string `toml:"password"`
	Db       int    `toml:"db"`
	Workers  int    `toml:"workers"` // 异步缓存任务 Worker 数量
	Buffer   int    `toml:"buffer"`  // 异步缓存任务通道容量
}

// LogConfig 日志配置，使用 lumberjack 进行日志轮转
type LogConfig struct {
	LogPath    string `toml:"logPath"`    // 日志文件存储目录
	FileName   string `toml:"fileName"`   // 日志文件名
	MaxSize    int    `toml:"maxSize"`    // 单个日志文件最大大小（MB）
	MaxBackups int    `toml:"maxBackups"` // 保留旧日志文件的最大个数
	MaxAge     int    `toml:"maxAge"`     // 保留旧日志文件的最大天数
	Level      string `toml:"level"`      // 日志级别：debug, info, warn, error
}

// MQConfig 事件导出配置
type MQConfig struct {
	Mode       string        `toml:"mode"`       // "none"、"kafka" 或 "nats"
	HostPort   string        `toml:"hostPort"`   // Kafka 地址，如 "localhost:9092"
	NatsURL    string        `toml:"natsUrl"`    // NATS 地址，如 "nats://127.0.0.1:4222"
	EventTopic string        `toml:"eventTopic"` // 已通过审核的消息事件主题
	AuditTopic string        `toml:"auditTopic"` // 审核动作主题
	Timeout    time.Duration `toml:"timeout"`    // 写超时（秒）
	Workers    int           `toml:"workers"`    // 异步发布 Worker 数量
	Buffer     int           `toml:"buffer"`     // 异步发布通道容量
	EncryptKey string        `toml:"encryptKey"` // 房间开启加密时用于导出载荷的 AES key（16/24/32 字节）
}

// JWTConfig JWT 认证配置
type JWTConfig struct {
	Secret            string `toml:"secret"`            // JWT 签名密钥，建议 32 字符以上
	Issuer            string `toml:"issuer"`            // 签发者
	AccessTokenExpiry int    `toml:"accessTokenExpiry"` // Access Token 有效期（分钟）
}

// SnowflakeConfig 雪花算法配置
type SnowflakeConfig struct {
	MachineID int64 `toml:"machineId"` // 雪花算法节点 ID，范围 0-1023
}

// ChatConfig 实时通信核心的全部可调参数
type ChatConfig struct {
	RateWindow        time.Duration `toml:"rateWindow"`        // 限流窗口（秒）
	MessageCeiling    int           `toml:"messageCeiling"`    // 每窗口消息默认上限
	TipCeiling        int           `toml:"tipCeiling"`        // 每窗口打赏默认上限
	ReactionCeiling   int           `toml:"reactionCeiling"`   // 每窗口表情回应默认上限
	VoteCeiling       int           `toml:"voteCeiling"`       // 每窗口投票默认上限
	HeartbeatInterval time.Duration `toml:"heartbeatInterval"` // 心跳巡检间隔（秒）
	InactivityTimeout time.Duration `toml:"inactivityTimeout"` // 无活动强制断开时间（秒）
	HistoryCapacity   int           `toml:"historyCapacity"`   // 房间消息环形缓冲容量
	ReplayCount       int           `toml:"replayCount"`       // 新加入成员回放的消息条数
	SendQueueSize     int           `toml:"sendQueueSize"`     // 每个连接的发送队列大小
	AnalyticsInterval time.Duration `toml:"analyticsInterval"` // 分析快照间隔（秒）
	RoomIdleTTL       time.Duration `toml:"roomIdleTTL"`       // 无人房间回收时间（秒），0 表示不回收
	FrameRate         float64       `toml:"frameRate"`         // 单连接每秒入站帧数
	FrameBurst        int           `toml:"frameBurst"`        // 单连接入站帧突发量
	AuditCapacity     int           `toml:"auditCapacity"`     // 房间内存审计日志容量
	ReviewCapacity    int           `toml:"reviewCapacity"`    // 待人工复核队列容量
}

// Config 应用程序总配置，聚合所有子配置
type Config struct {
	MainConfig      `toml:"mainConfig"`
	MysqlConfig     `toml:"mysqlConfig"`
	RedisConfig     `toml:"redisConfig"`
	LogConfig       `toml:"logConfig"`
	MQConfig        `toml:"mqConfig"`
	JWTConfig       `toml:"jwtConfig"`
	SnowflakeConfig `toml:"snowflakeConfig"`
	ChatConfig      `toml:"chatConfig"`
}

// config 全局配置单例，延迟加载
var config *Config

// Default 返回全部字段都已填充的默认配置
func Default() *Config {
	c := new(Config)
	c.Normalize()
	return c
}

// Normalize 为零值字段填充默认值
// toml 中的时长字段按秒书写，这里统一换算成 time.Duration
func (c *Config) Normalize() {
	if c.AppName == "" {
		c.AppName = "chatsphere"
	}
	if c.MainConfig.Host == "" {
		c.MainConfig.Host = "0.0.0.0"
	}
	if c.MainConfig.Port == 0 {
		c.MainConfig.Port = 8000
	}
	if c.MainConfig.Mode == "" {
		c.MainConfig.Mode = "dev"
	}
	if c.RedisConfig.Workers == 0 {
		c.RedisConfig.Workers = 4
	}
	if c.RedisConfig.Buffer == 0 {
		c.RedisConfig.Buffer = 1000
	}
	if c.LogConfig.LogPath == "" {
		c.LogConfig.LogPath = "logs"
	}
	if c.MQConfig.Mode == "" {
		c.MQConfig.Mode = "none"
	}
	if c.MQConfig.EventTopic == "" {
		c.MQConfig.EventTopic = "chatsphere.messages"
	}
	if c.MQConfig.AuditTopic == "" {
		c.MQConfig.AuditTopic = "chatsphere.moderation"
	}
	c.MQConfig.Timeout = seconds(c.MQConfig.Timeout, 5)
	if c.MQConfig.Workers == 0 {
		c.MQConfig.Workers = 2
	}
	if c.MQConfig.Buffer == 0 {
		c.MQConfig.Buffer = 1000
	}
	if c.JWTConfig.AccessTokenExpiry == 0 {
		c.JWTConfig.AccessTokenExpiry = 60
	}

	ch := &c.ChatConfig
	ch.RateWindow = seconds(ch.RateWindow, 60)
	if ch.MessageCeiling == 0 {
		ch.MessageCeiling = 20
	}
	if ch.TipCeiling == 0 {
		ch.TipCeiling = 10
	}
	if ch.ReactionCeiling == 0 {
		ch.ReactionCeiling = 30
	}
	if ch.VoteCeiling == 0 {
		ch.VoteCeiling = 10
	}
	ch.HeartbeatInterval = seconds(ch.HeartbeatInterval, 30)
	ch.InactivityTimeout = seconds(ch.InactivityTimeout, 300)
	if ch.HistoryCapacity == 0 {
		ch.HistoryCapacity = 200
	}
	if ch.ReplayCount == 0 {
		ch.ReplayCount = 50
	}
	if ch.SendQueueSize == 0 {
		ch.SendQueueSize = 256
	}
	ch.AnalyticsInterval = seconds(ch.AnalyticsInterval, 300)
	ch.RoomIdleTTL = seconds(ch.RoomIdleTTL, 0)
	if ch.FrameRate == 0 {
		ch.FrameRate = 20
	}
	if ch.FrameBurst == 0 {
		ch.FrameBurst = 40
	}
	if ch.AuditCapacity == 0 {
		ch.AuditCapacity = 1000
	}
	if ch.ReviewCapacity == 0 {
		ch.ReviewCapacity = 100
	}
}

// seconds 把按秒书写的整数时长换算为 time.Duration，已经是完整时长的值原样返回
func seconds(d time.Duration, def int64) time.Duration {
	if d == 0 {
		d = time.Duration(def)
	}
	if d > 0 && d < time.Millisecond {
		return d * time.Second
	}
	return d
}

// LoadConfig 从多个候选路径加载配置文件
// 按顺序尝试加载，找到第一个可用的配置文件即停止
func LoadConfig() error {
	paths := []string{
		"configs/config_local.toml",       // 本地开发配置（优先）
		"configs/config.toml",             // 默认配置
		"../../configs/config_local.toml", // 从子目录运行时的路径
		"../../configs/config.toml",
	}

	for _, path := range paths {
		if err := LoadFile(path); err == nil {
			return nil
		}
	}
	if config == nil {
		config = new(Config)
	}
	config.Normalize()
	return fmt.Errorf("could not find configuration file in any of the search paths")
}

// LoadFile 从指定路径加载配置并替换全局单例
func LoadFile(path string) error {
	c := new(Config)
	if _, err := toml.DecodeFile(path, c); err != nil {
		return err
	}
	c.Normalize()
	config = c
	return nil
}

// GetConfig 获取全局配置实例（单例模式）
// 首次调用时会自动加载配置文件
func GetConfig() *Config {
	if config == nil {
		config = new(Config)
		_ = LoadConfig() // 忽略加载错误，使用默认值
	}
	return config
}
