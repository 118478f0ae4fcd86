package driver

import "time"

// 缓冲区和等待配置常量
const (
	RxChannelBufferSize = 1024                   // 接收通道缓冲区大小
	MsgBufferSize       = 1024                   // 接收 FIFO 默认容量 (报文数)
	TxFifoSize          = 128                    // 发送 FIFO 默认容量 (报文数)
	ReadBatchSize       = 64                     // 单次从 FIFO 读取的最大报文数
	PollingInterval     = 10 * time.Millisecond  // 发送 FIFO 满时的重试间隔
	WriteTimeout        = 100 * time.Millisecond // 发送 FIFO 满时的最长等待
)

// CanType 定义 CAN 类型
type CanType byte

const (
	CAN   CanType = 0
	CANFD CanType = 1
)

func (t CanType) String() string {
	if t == CANFD {
		return "CANFD"
	}
	return "CAN"
}
