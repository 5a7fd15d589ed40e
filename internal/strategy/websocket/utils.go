package websocket

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

const (
	// ModeLTP 只订阅最新成交价
	ModeLTP = 1

	ltpPacketSize = 51
	tokenStart    = 2
	tokenEnd      = 27
)

// SmartStream 交易所类型编码
var exchangeTypes = map[string]int{
	"NSE":   1,
	"NFO":   2,
	"BSE":   3,
	"BFO":   4,
	"MCX":   5,
	"NCDEX": 7,
	"CDS":   13,
}

// Tick 一条LTP推送
type Tick struct {
	Mode         int
	ExchangeType int
	Token        string
	Sequence     int64
	ExchangeTime time.Time
	LTP          float64
}

// exchangeType 返回交易所对应的SmartStream编码
func exchangeType(exchange string) (int, error) {
	code, ok := exchangeTypes[strings.ToUpper(exchange)]
	if !ok {
		return 0, fmt.Errorf("不支持的交易所: %s", exchange)
	}
	return code, nil
}

// priceDivisor 价格以最小单位传输，货币期货精度更高
func priceDivisor(exchangeType int) float64 {
	if exchangeType == exchangeTypes["CDS"] {
		return 10000000
	}
	return 100
}

// parseLTPPacket 解析小端序二进制LTP包
//
//	[0] mode  [1] exchange type  [2:27] token  [27:35] sequence
//	[35:43] exchange timestamp(ms)  [43:51] ltp
func parseLTPPacket(data []byte) (*Tick, error) {
	if len(data) < ltpPacketSize {
		return nil, fmt.Errorf("LTP数据包长度不足: %d", len(data))
	}

	token := data[tokenStart:tokenEnd]
	if i := bytes.IndexByte(token, 0); i >= 0 {
		token = token[:i]
	}

	exType := int(data[1])
	ts := int64(binary.LittleEndian.Uint64(data[35:43]))
	ltp := int64(binary.LittleEndian.Uint64(data[43:51]))

	return &Tick{
		Mode:         int(data[0]),
		ExchangeType: exType,
		Token:        string(token),
		Sequence:     int64(binary.LittleEndian.Uint64(data[27:35])),
		ExchangeTime: time.UnixMilli(ts),
		LTP:          float64(ltp) / priceDivisor(exType),
	}, nil
}
