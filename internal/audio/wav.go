package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// DecodeWAV reads a 16-bit PCM WAV file and returns mono float32 samples in
// [-1, 1] plus the sample rate. Multi-channel audio is downmixed by arithmetic
// mean across channels.
func DecodeWAV(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var riff [12]byte
	if _, err := io.ReadFull(f, riff[:]); err != nil {
		return nil, 0, fmt.Errorf("short RIFF header: %v", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("not a RIFF/WAVE file")
	}

	var (
		channels   int
		sampleRate int
		bits       int
		data       []byte
	)

	// Walk chunks until we've seen fmt and data
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(f, hdr[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, 0, err
		}
		id := string(hdr[0:4])
		size := binary.LittleEndian.Uint32(hdr[4:8])

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(f, body); err != nil {
				return nil, 0, fmt.Errorf("short fmt chunk: %v", err)
			}
			format := binary.LittleEndian.Uint16(body[0:2])
			if format != 1 { // PCM only; ffmpeg output is always pcm_s16le
				return nil, 0, fmt.Errorf("unsupported WAV encoding %d", format)
			}
			channels = int(binary.LittleEndian.Uint16(body[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			bits = int(binary.LittleEndian.Uint16(body[14:16]))
		case "data":
			data = make([]byte, size)
			if _, err := io.ReadFull(f, data); err != nil {
				return nil, 0, fmt.Errorf("short data chunk: %v", err)
			}
		default:
			// Skip unknown chunks (LIST, fact, ...). Chunks are word-aligned.
			skip := int64(size)
			if size%2 == 1 {
				skip++
			}
			if _, err := f.Seek(skip, io.SeekCurrent); err != nil {
				return nil, 0, err
			}
			continue
		}

		if channels > 0 && data != nil {
			break
		}
	}

	if channels == 0 || sampleRate == 0 {
		return nil, 0, fmt.Errorf("missing fmt chunk")
	}
	if bits != 16 {
		return nil, 0, fmt.Errorf("unsupported bit depth %d", bits)
	}
	if data == nil {
		return nil, 0, fmt.Errorf("missing data chunk")
	}

	frameSize := channels * 2
	frames := len(data) / frameSize
	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			off := i*frameSize + ch*2
			v := int16(binary.LittleEndian.Uint16(data[off : off+2]))
			sum += float64(v) / 32768.0
		}
		samples[i] = float32(sum / float64(channels))
	}

	return samples, sampleRate, nil
}

// EncodeWAV writes mono float32 samples as a 16-bit PCM WAV file.
func EncodeWAV(path string, samples []float32, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dataSize := len(samples) * 2
	var hdr [44]byte
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(36+dataSize))
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(hdr[22:24], 1) // mono
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(hdr[32:34], 2)
	binary.LittleEndian.PutUint16(hdr[34:36], 16)
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], uint32(dataSize))

	if _, err := f.Write(hdr[:]); err != nil {
		return err
	}

	buf := make([]byte, dataSize)
	for i, s := range samples {
		v := float64(s)
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		binary.LittleEndian.PutUint16(buf[i*2:i*2+2], uint16(int16(math.Round(v*32767))))
	}
	_, err = f.Write(buf)
	return err
}
