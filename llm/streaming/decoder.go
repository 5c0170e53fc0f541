package streaming

import (
	"bytes"

	"github.com/BaSui01/wonderland/llm"
)

// LineParser 解析一行完整的流式数据，llm.Adapter 满足该接口
type LineParser interface {
	ParseStreamLine(line string) (llm.StreamChunk, bool)
}

// Decoder 是按行切分的流式解码状态机。
// 网络读取的分片可能在任意字节处断开，Decoder 只把完整的行交给 LineParser，
// 未完成的尾部留在缓冲区等待下一次 Feed。
// Decoder 不是并发安全的，每次调用创建一个。
type Decoder struct {
	parse LineParser
	buf   []byte
	done  bool
}

// NewDecoder 创建解码器
func NewDecoder(parse LineParser) *Decoder {
	return &Decoder{parse: parse}
}

// Feed 追加一个分片并返回其中完整行解析出的 chunk（按出现顺序）。
// 遇到结束信号后，后续数据全部丢弃。
func (d *Decoder) Feed(fragment []byte) []llm.StreamChunk {
	if d.done {
		return nil
	}
	d.buf = append(d.buf, fragment...)

	var out []llm.StreamChunk
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := d.buf[:i]
		d.buf = d.buf[i+1:]

		if chunk, ok := d.parseLine(line); ok {
			out = append(out, chunk)
			if chunk.Done {
				d.done = true
				d.buf = nil
				break
			}
		}
	}
	// 压缩缓冲区，避免长流下底层数组只增不减
	if len(d.buf) == 0 {
		d.buf = d.buf[:0:0]
	}
	return out
}

// Flush 在流结束（EOF）时解析缓冲区中最后一段没有换行的数据。
func (d *Decoder) Flush() []llm.StreamChunk {
	if d.done || len(d.buf) == 0 {
		return nil
	}
	line := d.buf
	d.buf = nil
	chunk, ok := d.parseLine(line)
	if !ok {
		return nil
	}
	if chunk.Done {
		d.done = true
	}
	return []llm.StreamChunk{chunk}
}

// Done 报告是否已经收到结束信号
func (d *Decoder) Done() bool { return d.done }

func (d *Decoder) parseLine(line []byte) (llm.StreamChunk, bool) {
	line = bytes.TrimRight(line, "\r")
	if len(bytes.TrimSpace(line)) == 0 {
		return llm.StreamChunk{}, false
	}
	return d.parse.ParseStreamLine(string(line))
}
