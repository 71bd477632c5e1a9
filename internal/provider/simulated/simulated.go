// Package simulated implements the `mode: simulated` ProducerHandler
// (§4.5): deterministic stub artifacts that satisfy a producer's declared
// output schema without calling any external service, grounded on the
// teacher's internal/core/normalizer.go deterministic-output discipline
// generalized from stripping nondeterministic substrings to synthesizing
// nondeterminism-free bytes from scratch.
package simulated

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"

	"weavecore/internal/executor"
	"weavecore/internal/ids"
	"weavecore/internal/schema"
	"weavecore/internal/store"
)

// Handler is the simulated ProducerHandler. WarmStart is a no-op since there
// is no external credential to validate.
type Handler struct{}

// New constructs a simulated Handler.
func New() *Handler { return &Handler{} }

func (h *Handler) WarmStart(ctx context.Context) error { return nil }

// Invoke synthesizes one succeeded ProducedArtifact per requested produces
// entry. Content is entirely a function of the artefactId (and, for JSON
// stubs, the output schema's defaults), so two runs of the same job produce
// byte-identical stubs; the job's inputs do not affect the content.
func (h *Handler) Invoke(ctx context.Context, req executor.ProduceRequest) (executor.ProduceResult, error) {
	var compiled *schema.Compiled
	if len(req.Context.SchemaOutput) > 0 {
		c, err := schema.Compile(req.Context.SchemaOutput)
		if err == nil {
			compiled = c
		}
	}

	arts := make([]executor.ProducedArtifact, 0, len(req.Produces))
	for _, want := range req.Produces {
		blob := h.synthesize(want, compiled)
		arts = append(arts, executor.ProducedArtifact{
			ArtefactID: want,
			Status:     store.StatusSucceeded,
			Blob:       blob,
		})
	}
	return executor.ProduceResult{Status: "succeeded", Artefacts: arts}, nil
}

func (h *Handler) synthesize(id ids.ID, compiled *schema.Compiled) *executor.ProducedBlob {
	leaf := leafFieldName(id)
	seed := seedFor(id)

	switch {
	case hasAny(leaf, "Image", "Thumbnail", "Frame"):
		return &executor.ProducedBlob{Data: stubPNG(seed), MimeType: "image/png"}
	case hasAny(leaf, "Audio", "Voice", "Narration", "Music"):
		return &executor.ProducedBlob{Data: stubWAV(seed), MimeType: "audio/wav"}
	case hasAny(leaf, "Video", "Clip"):
		return &executor.ProducedBlob{Data: stubMP4(seed), MimeType: "video/mp4"}
	default:
		return &executor.ProducedBlob{Data: stubJSON(id, leaf, seed, compiled), MimeType: "application/json"}
	}
}

func leafFieldName(id ids.ID) string {
	body := id.Body()
	if i := strings.LastIndexByte(body, '.'); i >= 0 {
		body = body[i+1:]
	}
	if i := strings.IndexByte(body, '['); i >= 0 {
		body = body[:i]
	}
	return body
}

func hasAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func seedFor(id ids.ID) [32]byte {
	return sha256.Sum256([]byte(id))
}

// stubPNG returns a minimal PNG-shaped byte stream (signature + IHDR + an
// IDAT holding the raw seed bytes + IEND, every chunk CRC left as zero) with
// dimensions derived from the seed so distinct artifacts get distinct (but
// stable) sizes. It is not a decodable image.
func stubPNG(seed [32]byte) []byte {
	width := 64 + int(seed[0])%64
	height := 64 + int(seed[1])%64

	var buf []byte
	buf = append(buf, 0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A)
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], uint32(width))
	binary.BigEndian.PutUint32(ihdr[4:8], uint32(height))
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // color type RGBA
	buf = append(buf, pngChunk("IHDR", ihdr)...)
	buf = append(buf, pngChunk("IDAT", seed[:])...)
	buf = append(buf, pngChunk("IEND", nil)...)
	return buf
}

func pngChunk(typ string, data []byte) []byte {
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))
	chunk := append([]byte(typ), data...)
	out := append(length, chunk...)
	out = append(out, 0, 0, 0, 0) // CRC placeholder; simulated mode never validates it
	return out
}

// stubWAV returns a minimal valid WAV header (44 bytes, PCM, mono, 16-bit)
// with a silent payload whose duration is derived from the seed.
func stubWAV(seed [32]byte) []byte {
	const sampleRate = 16000
	durationSeconds := 1 + int(seed[0])%8
	numSamples := sampleRate * durationSeconds
	dataSize := numSamples * 2

	buf := make([]byte, 44+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], sampleRate)
	binary.LittleEndian.PutUint32(buf[28:32], sampleRate*2)
	binary.LittleEndian.PutUint16(buf[32:34], 2)
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	return buf
}

// stubMP4 returns a minimal ftyp/moov-free placeholder box stream; simulated
// mode never decodes it, only sizes it deterministically.
func stubMP4(seed [32]byte) []byte {
	var buf []byte
	box := append([]byte{0, 0, 0, 24}, []byte("ftypisom")...)
	box = append(box, 0, 0, 2, 0)
	box = append(box, []byte("isom")...)
	buf = append(buf, box...)
	buf = append(buf, seed[:]...)
	return buf
}

// stubJSON synthesizes a scalar JSON value for a non-media leaf: the
// schema's declared default when present, otherwise a deterministic string
// token derived from the artefactId.
func stubJSON(id ids.ID, leaf string, seed [32]byte, compiled *schema.Compiled) []byte {
	if compiled != nil {
		if def, ok := compiled.Default(leaf); ok {
			return def
		}
	}
	token := fmt.Sprintf("simulated:%s:%x", leaf, seed[:4])
	b, _ := json.Marshal(token)
	return b
}
