// Package patch 负责 pchtxt 补丁文本的解析与 IPS32 二进制补丁的生成。
//
// pchtxt 是逐行文本格式：
//
//	@nsobid-<hex>            目标 NSO 的 build id（决定输出文件名）
//	@flag offset_shift <n>   后续地址统一加上偏移
//	@enabled / @disabled     块开关：disabled 块整体跳过
//	@stop                    结束当前块
//	XXXXXXXX AA BB CC        地址（十六进制）+ 字节序列
//
// // 之后是行内注释。
package patch

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Record 是一条写入：在 Offset 处覆盖 Data。
type Record struct {
	Offset uint32
	Data   []byte
}

// Patch 是一份解析后的 pchtxt。
type Patch struct {
	NSOBID  string
	Records []Record
}

// Error 携带行号，便于用户对照 pchtxt 定位。
type Error struct {
	Line int
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("pchtxt 第 %d 行：%s", e.Line, e.Msg)
}

// Parse 解析 pchtxt。只有 @enabled 块内的地址行会生成写入记录。
func Parse(r io.Reader) (*Patch, error) {
	p := &Patch{}

	var (
		emit  bool
		shift uint64
	)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if i := strings.Index(line, "//"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "@") {
			switch {
			case strings.HasPrefix(line, "@nsobid-"):
				p.NSOBID = strings.TrimSpace(strings.TrimPrefix(line, "@nsobid-"))
			case line == "@enabled":
				emit = true
			case line == "@disabled":
				emit = false
			case line == "@stop":
				emit = false
			case strings.HasPrefix(line, "@flag"):
				fields := strings.Fields(line)
				if len(fields) == 3 && fields[1] == "offset_shift" {
					v, err := parseUint(fields[2])
					if err != nil {
						return nil, &Error{Line: lineNo, Msg: fmt.Sprintf("offset_shift 无效：%v", err)}
					}
					shift = v
				}
				// 其他 flag 不影响输出，忽略。
			}
			continue
		}

		if !emit {
			continue
		}

		rec, err := parseRecord(line, shift)
		if err != nil {
			return nil, &Error{Line: lineNo, Msg: err.Error()}
		}
		p.Records = append(p.Records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return p, nil
}

func parseRecord(line string, shift uint64) (Record, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Record{}, fmt.Errorf("地址行需要“地址 + 字节”两部分：%q", line)
	}

	addr, err := strconv.ParseUint(fields[0], 16, 64)
	if err != nil {
		return Record{}, fmt.Errorf("地址无效：%q", fields[0])
	}
	addr += shift
	if addr > 0xFFFFFFFF {
		return Record{}, fmt.Errorf("地址溢出 32 位：%#x", addr)
	}

	data, err := hex.DecodeString(strings.Join(fields[1:], ""))
	if err != nil {
		return Record{}, fmt.Errorf("字节序列无效：%q", strings.Join(fields[1:], " "))
	}
	if len(data) == 0 {
		return Record{}, fmt.Errorf("字节序列为空：%q", line)
	}
	if len(data) > 0xFFFF {
		return Record{}, fmt.Errorf("单条写入超过 65535 字节")
	}

	return Record{Offset: uint32(addr), Data: data}, nil
}

func parseUint(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if v, ok := strings.CutPrefix(s, "0x"); ok {
		return strconv.ParseUint(v, 16, 32)
	}
	return strconv.ParseUint(s, 10, 32)
}
