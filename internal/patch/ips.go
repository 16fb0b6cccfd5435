package patch

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/John-Robertt/NXMM/internal/infra/fsx"
)

// IPS32 布局：
//
//	"IPS32"
//	记录 × N：offset（4 字节大端）+ size（2 字节大端）+ data
//	"EEOF"
var (
	ipsMagic   = []byte("IPS32")
	ipsTrailer = []byte("EEOF")
)

// Encode 把解析后的补丁编码为 IPS32 字节流。
func Encode(p *Patch) []byte {
	size := len(ipsMagic) + len(ipsTrailer)
	for _, r := range p.Records {
		size += 4 + 2 + len(r.Data)
	}

	out := make([]byte, 0, size)
	out = append(out, ipsMagic...)
	for _, r := range p.Records {
		var hdr [6]byte
		binary.BigEndian.PutUint32(hdr[:4], r.Offset)
		binary.BigEndian.PutUint16(hdr[4:], uint16(len(r.Data)))
		out = append(out, hdr[:]...)
		out = append(out, r.Data...)
	}
	return append(out, ipsTrailer...)
}

// ConvertFile 把 src 处的 pchtxt 转换为 <dstDir>/<nsobid>.ips，返回写入路径。
// 输出原子落盘；缺少 @nsobid 头时报错（没有它无法命名输出）。
func ConvertFile(src, dstDir string) (string, error) {
	f, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer f.Close()

	p, err := Parse(f)
	if err != nil {
		return "", fmt.Errorf("%s：%w", src, err)
	}
	if p.NSOBID == "" {
		return "", fmt.Errorf("%s：缺少 @nsobid 头，无法确定输出文件名", src)
	}
	if len(p.Records) == 0 {
		return "", errors.New(src + "：没有启用的写入记录")
	}

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return "", err
	}
	name := p.NSOBID + ".ips"
	if err := fsx.WriteFileAtomicReplace(dstDir, name, Encode(p)); err != nil {
		return "", err
	}
	return filepath.Join(dstDir, name), nil
}
