// Package wav reads and writes the PCM16 RIFF/WAVE files the pipeline
// exchanges. Decoding walks the RIFF chunks rather than assuming a fixed
// 44-byte header because fmt chunk sizes vary between encoders.
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Info holds the format metadata from the "fmt " sub-chunk.
type Info struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	DataOffset    int // byte offset of the first PCM sample
	DataSize      int // byte length of the data chunk
}

var (
	ErrNotRIFF       = errors.New("wav: missing RIFF header")
	ErrNotWAVE       = errors.New("wav: missing WAVE identifier")
	ErrNoDataChunk   = errors.New("wav: missing data chunk")
	ErrUnsupported   = errors.New("wav: only 16-bit PCM is supported")
	ErrTruncatedFile = errors.New("wav: file too short")
)

// Parse scans the RIFF container and returns the audio format without
// touching the sample data.
func Parse(data []byte) (Info, error) {
	if len(data) < 12 {
		return Info{}, ErrTruncatedFile
	}
	if string(data[0:4]) != "RIFF" {
		return Info{}, ErrNotRIFF
	}
	if string(data[8:12]) != "WAVE" {
		return Info{}, ErrNotWAVE
	}

	var info Info
	foundFmt := false

	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && offset+8+16 <= len(data) {
				fmtData := data[offset+8:]
				info.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
				info.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
				info.BitsPerSample = int(binary.LittleEndian.Uint16(fmtData[14:16]))
				foundFmt = true
			}
		case "data":
			if !foundFmt {
				return Info{}, errors.New("wav: data chunk before fmt chunk")
			}
			info.DataOffset = offset + 8
			info.DataSize = chunkSize
			if info.DataOffset+info.DataSize > len(data) {
				info.DataSize = len(data) - info.DataOffset
			}
			return info, nil
		}

		// Chunks are word-aligned: pad by 1 if the size is odd.
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return Info{}, ErrNoDataChunk
}

// Decode parses data and returns the waveform as mono float32 samples in
// [-1, 1] along with the source format. Multi-channel input is down-mixed
// by averaging the channels per frame.
func Decode(data []byte) ([]float32, Info, error) {
	info, err := Parse(data)
	if err != nil {
		return nil, Info{}, err
	}
	if info.BitsPerSample != 16 {
		return nil, Info{}, fmt.Errorf("%w (got %d bits)", ErrUnsupported, info.BitsPerSample)
	}
	if info.Channels < 1 {
		return nil, Info{}, fmt.Errorf("wav: invalid channel count %d", info.Channels)
	}

	pcm := data[info.DataOffset : info.DataOffset+info.DataSize]
	samples := pcmToFloat32Mono(pcm, info.Channels)
	return samples, info, nil
}

// pcmToFloat32Mono converts 16-bit little-endian PCM to mono float32,
// averaging all channels per frame. A trailing odd byte is ignored.
func pcmToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels <= 1 {
		n := len(pcm) / 2
		samples := make([]float32, n)
		for i := range n {
			s := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
			samples[i] = float32(s) / 32768.0
		}
		return samples
	}
	frames := len(pcm) / (2 * channels)
	mono := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			idx := (i*channels + ch) * 2
			s := int16(binary.LittleEndian.Uint16(pcm[idx : idx+2]))
			sum += float32(s) / 32768.0
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}

// Resample converts samples from srcRate to dstRate using linear
// interpolation. Returns the input unchanged when the rates match.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]float32, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstLen {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		s0 := samples[srcIdx]
		s1 := s0
		if srcIdx+1 < len(samples) {
			s1 = samples[srcIdx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}

// Encode serializes mono float32 samples as a 16-bit PCM WAV file at the
// given sample rate. Samples outside [-1, 1] are clipped.
func Encode(samples []float32, sampleRate int) []byte {
	const headerLen = 44
	dataLen := len(samples) * 2
	buf := make([]byte, headerLen+dataLen)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataLen))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(buf[32:34], 2)
	binary.LittleEndian.PutUint16(buf[34:36], 16)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))

	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		binary.LittleEndian.PutUint16(buf[headerLen+i*2:headerLen+i*2+2], uint16(v))
	}
	return buf
}
