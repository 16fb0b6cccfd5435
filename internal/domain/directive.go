package domain

// Op 是 package.ini 指令行的操作名。
type Op string

const (
	OpMove     Op = "move"
	OpCopy     Op = "copy"
	OpDelete   Op = "delete"
	OpMkdir    Op = "mkdir"
	OpUnzip    Op = "unzip"
	OpDownload Op = "download"
	OpCompare  Op = "compare"
	OpConvert  Op = "convert"
)

// KnownOp 判断 op 是否为已知指令。
func KnownOp(op Op) bool {
	switch op {
	case OpMove, OpCopy, OpDelete, OpMkdir, OpUnzip, OpDownload, OpCompare, OpConvert:
		return true
	default:
		return false
	}
}

// Directive 是一条已解析的指令（在所属 section 内保序）。
type Directive struct {
	Op   Op
	Args []string

	// Meta 来自紧挨在指令上方的 ;key=value 行（例如 ;mode=overwrite）。
	Meta map[string]string

	// Line 是 package.ini 内的行号（1 起），用于错误定位。
	Line int
}
