package audio

import (
	"bytes"
	"encoding/binary"
	"time"
)

// Blob is one finished utterance recording.
type Blob struct {
	Data         []byte
	EncodingInfo EncodingInfo
}

func (b Blob) IsEmpty() bool { return len(b.Data) == 0 }

func (b Blob) Duration() time.Duration { return b.EncodingInfo.Duration(len(b.Data)) }

// WAV wraps linear16 blob data in a mono RIFF/WAVE container.
func (b Blob) WAV() []byte {
	const headerSize = 44
	encoding := b.EncodingInfo
	if encoding.IsZero() {
		encoding = GetDefaultEncodingInfo()
	}
	bitsPerSample := uint16(encoding.Format.ByteSize() * 8)
	blockAlign := uint16(encoding.Format.ByteSize())
	byteRate := uint32(encoding.BytesPerSecond())
	dataSize := uint32(len(b.Data))

	var formatTag uint16 = 1
	switch encoding.Format {
	case EncodingALaw:
		formatTag = 6
	case EncodingMulaw:
		formatTag = 7
	}

	buf := bytes.NewBuffer(make([]byte, 0, headerSize+len(b.Data)))
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36)+dataSize)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, formatTag)
	_ = binary.Write(buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(buf, binary.LittleEndian, uint32(encoding.SampleRate))
	_ = binary.Write(buf, binary.LittleEndian, byteRate)
	_ = binary.Write(buf, binary.LittleEndian, blockAlign)
	_ = binary.Write(buf, binary.LittleEndian, bitsPerSample)
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, dataSize)
	buf.Write(b.Data)
	return buf.Bytes()
}
