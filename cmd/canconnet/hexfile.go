package main

import (
	"fmt"
	"os"

	"github.com/marcinbor85/gohex"

	"github.com/LoveWonYoung/vci4go/vci"
)

type hexSegment struct {
	Address uint32
	Data    []byte
	Blocks  [][]byte
}

func splitBlock(data []byte, bs int) [][]byte {
	if bs <= 0 {
		return nil
	}
	blocks := make([][]byte, 0, (len(data)+bs-1)/bs)
	for i := 0; i < len(data); i += bs {
		end := min(i+bs, len(data))
		blocks = append(blocks, data[i:end])
	}
	return blocks
}

// parseHexSegments reads an Intel HEX file and splits every data segment
// into blocks of at most blockSize bytes.
func parseHexSegments(path string, blockSize int) ([]hexSegment, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("blockSize must be > 0")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	segments := mem.GetDataSegments()
	if len(segments) == 0 {
		return nil, fmt.Errorf("%s: no data segments found in hex file", path)
	}
	out := make([]hexSegment, 0, len(segments))
	for _, seg := range segments {
		out = append(out, hexSegment{
			Address: seg.Address,
			Data:    seg.Data,
			Blocks:  splitBlock(seg.Data, blockSize),
		})
	}
	return out, nil
}

// hexFrames turns the contents of a HEX file into data frames with
// identifier id, 8 bytes per frame or 64 with fd.
func hexFrames(path string, id uint32, fd bool) ([]vci.CanMessage, error) {
	size := 8
	if fd {
		size = 64
	}
	segments, err := parseHexSegments(path, size)
	if err != nil {
		return nil, err
	}
	var frames []vci.CanMessage
	for _, seg := range segments {
		for _, block := range seg.Blocks {
			frames = append(frames, dataFrame(id, fd, block))
		}
	}
	return frames, nil
}

func dataFrame(id uint32, fd bool, data []byte) vci.CanMessage {
	msg := vci.CanMessage{
		Identifier:          id,
		FrameType:           vci.FrameData,
		ExtendedFrameFormat: id > 0x7FF,
	}
	msg.SetPayload(data)
	if fd {
		msg.ExtendedDataLength = true
		msg.FastDataRate = true
		msg.DataLength = uint8(vci.DLCToDataLen(vci.DataLenToDLC(len(data))))
	}
	return msg
}
