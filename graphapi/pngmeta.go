package graphapi

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/richinsley/comfyagent/comfyerr"
	"github.com/richinsley/comfyagent/internal/xjson"
)

var pngSignature = []byte{137, 80, 78, 71, 13, 10, 26, 10}

// maxTextChunk bounds the tEXt payload read into memory.
const maxTextChunk = 64 << 20

// ReadPNGText returns the keyword -> text map of a PNG's tEXt chunks.
func ReadPNGText(r io.Reader) (map[string]string, error) {
	header := make([]byte, 8)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	if !bytes.Equal(header, pngSignature) {
		return nil, errors.New("not a valid PNG file")
	}

	chunks := make(map[string]string)
	for {
		var length uint32
		err := binary.Read(r, binary.BigEndian, &length)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		chunkType := make([]byte, 4)
		if _, err := io.ReadFull(r, chunkType); err != nil {
			return nil, err
		}

		if string(chunkType) == "tEXt" {
			if length > maxTextChunk {
				return nil, fmt.Errorf("tEXt chunk of %d bytes exceeds limit of %d", length, maxTextChunk)
			}
			data := make([]byte, length)
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, err
			}
			sep := bytes.IndexByte(data, 0)
			if sep == -1 {
				return nil, errors.New("malformed tEXt chunk")
			}
			chunks[string(data[:sep])] = string(data[sep+1:])
		} else if _, err := io.CopyN(io.Discard, r, int64(length)); err != nil {
			return nil, err
		}

		// crc
		if _, err := io.CopyN(io.Discard, r, 4); err != nil {
			return nil, err
		}
		if string(chunkType) == "IEND" {
			break
		}
	}
	return chunks, nil
}

// ExtractPNGWorkflow decodes the workflow embedded by the server in a saved
// image. The executable prompt is preferred over the editor workflow.
func ExtractPNGWorkflow(r io.Reader) (any, error) {
	chunks, err := ReadPNGText(r)
	if err != nil {
		return nil, comfyerr.New(comfyerr.InvalidWorkflow, "failed to read PNG metadata").Wrap(err)
	}
	for _, key := range []string{"prompt", "workflow"} {
		text, ok := chunks[key]
		if !ok {
			continue
		}
		var doc any
		if err := xjson.Unmarshal([]byte(text), &doc); err != nil {
			continue
		}
		if _, err := Normalize(doc); err == nil {
			return doc, nil
		}
	}
	return nil, comfyerr.New(comfyerr.InvalidWorkflow, "png does not contain workflow metadata")
}
