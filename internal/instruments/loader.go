package instruments

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"alpha15-sentry/pkg/types"
)

// ErrEmpty 过滤后没有可用合约
var ErrEmpty = errors.New("no valid instruments")

type yamlFile struct {
	Instruments []types.Instrument `yaml:"instruments"`
}

// Load 读取合约列表：.yaml/.yml 为YAML，其余按masterlist CSV解析。
// 格式错误的记录跳过并告警，不影响其余合约
func Load(cfg types.InstrumentConfig) ([]types.Instrument, error) {
	f, err := os.Open(cfg.File)
	if err != nil {
		return nil, fmt.Errorf("打开合约列表失败: %w", err)
	}
	defer f.Close()

	var list []types.Instrument
	switch strings.ToLower(filepath.Ext(cfg.File)) {
	case ".yaml", ".yml":
		list, err = parseYAML(f, cfg.Exchange)
	default:
		list, err = parseCSV(f, cfg.Exchange)
	}
	if err != nil {
		return nil, err
	}

	list = filter(list, cfg.Symbols)
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmpty, cfg.File)
	}

	zap.L().Info("📋 合约列表加载完成", zap.String("file", cfg.File), zap.Int("count", len(list)))
	return list, nil
}

func parseYAML(r io.Reader, defaultExchange string) ([]types.Instrument, error) {
	var doc yamlFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("解析YAML合约列表失败: %w", err)
	}

	out := make([]types.Instrument, 0, len(doc.Instruments))
	for i, inst := range doc.Instruments {
		inst.Symbol = strings.TrimSpace(inst.Symbol)
		inst.Token = normalizeToken(inst.Token)
		if inst.Exchange == "" {
			inst.Exchange = defaultExchange
		}
		if err := inst.Validate(); err != nil {
			zap.L().Warn("⚠️ 跳过无效合约", zap.Int("index", i), zap.Error(err))
			continue
		}
		out = append(out, inst)
	}
	return out, nil
}

// parseCSV 按表头定位列：symbol、token、tick_size，交易所取 exch_seg 或 exchange
func parseCSV(r io.Reader, defaultExchange string) ([]types.Instrument, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("读取CSV表头失败: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"symbol", "token", "tick_size"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("CSV缺少列 %q", required)
		}
	}
	exchangeCol, hasExchange := cols["exch_seg"]
	if !hasExchange {
		exchangeCol, hasExchange = cols["exchange"]
	}

	field := func(rec []string, i int) string {
		if i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	var out []types.Instrument
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			zap.L().Warn("⚠️ 跳过无法解析的行", zap.Int("line", line), zap.Error(err))
			continue
		}

		tick, err := strconv.ParseFloat(field(rec, cols["tick_size"]), 64)
		if err != nil {
			zap.L().Warn("⚠️ 跳过无效合约", zap.Int("line", line), zap.String("tick_size", field(rec, cols["tick_size"])))
			continue
		}
		inst := types.Instrument{
			Symbol:   field(rec, cols["symbol"]),
			Token:    normalizeToken(field(rec, cols["token"])),
			TickSize: tick,
			Exchange: defaultExchange,
		}
		if hasExchange {
			if ex := field(rec, exchangeCol); ex != "" {
				inst.Exchange = ex
			}
		}
		if err := inst.Validate(); err != nil {
			zap.L().Warn("⚠️ 跳过无效合约", zap.Int("line", line), zap.Error(err))
			continue
		}
		out = append(out, inst)
	}
	return out, nil
}

// filter 按配置的合约名过滤并去重，保持文件顺序
func filter(list []types.Instrument, symbols []string) []types.Instrument {
	var wanted map[string]bool
	if len(symbols) > 0 {
		wanted = make(map[string]bool, len(symbols))
		for _, s := range symbols {
			wanted[strings.TrimSpace(s)] = false
		}
	}

	seen := make(map[string]struct{}, len(list))
	out := make([]types.Instrument, 0, len(list))
	for _, inst := range list {
		if wanted != nil {
			if _, ok := wanted[inst.Symbol]; !ok {
				continue
			}
			wanted[inst.Symbol] = true
		}
		if _, dup := seen[inst.Symbol]; dup {
			zap.L().Warn("⚠️ 重复合约，保留第一条", zap.String("symbol", inst.Symbol))
			continue
		}
		seen[inst.Symbol] = struct{}{}
		out = append(out, inst)
	}

	for s, found := range wanted {
		if !found {
			zap.L().Warn("⚠️ 配置的合约不在列表中", zap.String("symbol", s))
		}
	}
	return out
}

// normalizeToken 表格导出的 "2885.0" 还原为 "2885"
func normalizeToken(token string) string {
	token = strings.TrimSpace(token)
	if f, err := strconv.ParseFloat(token, 64); err == nil && f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return token
}
