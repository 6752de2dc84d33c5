package snowflake

import (
	"sync"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
)

var (
	node     *snowflake.Node
	nodeOnce sync.Once
	// machineID 在 Init 之前可通过 SetMachineID 覆盖
	machineID int64 = 1
)

// SetMachineID 设置节点 ID，必须在第一次生成 ID 之前调用
func SetMachineID(id int64) {
	machineID = id
}

// Init 初始化雪花算法节点
// 应在程序启动时调用一次
func Init() {
	nodeOnce.Do(func() {
		id := machineID
		if id < 0 || id > 1023 {
			id = 1 // 默认节点 ID
			zap.L().Warn("Invalid MachineID in config, using default value 1")
		}
		var err error
		node, err = snowflake.NewNode(id)
		if err != nil {
			zap.L().Fatal("Failed to initialize snowflake node", zap.Error(err))
		}
		zap.L().Info("Snowflake node initialized", zap.Int64("machineID", id))
	})
}

// GenerateID 生成雪花 ID (int64)
func GenerateID() int64 {
	Init()
	return node.Generate().Int64()
}

// GenerateIDString 生成雪花 ID (string)
// 用于 JSON 序列化，避免 JavaScript 精度丢失
func GenerateIDString() string {
	Init()
	return node.Generate().String()
}
