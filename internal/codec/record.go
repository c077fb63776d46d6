package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/annel0/voxel-chunks/internal/vec"
	"github.com/annel0/voxel-chunks/internal/world"
	"github.com/annel0/voxel-chunks/internal/world/block"
	"github.com/cespare/xxhash/v2"
)

// Формат записи чанка (все целые - varint из encoding/binary):
//
//	magic "VCH1"
//	X, Y, Z        zigzag varint координаты чанка
//	flags          1 байт, бит 0 - слой бедрока
//	count          uvarint число пар
//	count * (block uvarint, length uvarint)
//	checksum       8 байт big-endian xxhash64 всего предшествующего
const (
	recordMagic   = "VCH1"
	flagBedrock   = 1 << 0
	checksumBytes = 8
	maxBlockID    = 0xFFFF
)

// Record - заголовок чанка вместе с его RLE-представлением
type Record struct {
	Coords  vec.Vec3
	Bedrock bool
	Runs    CompressedChunk
}

// NewRecord кодирует чанк в запись
func NewRecord(c *world.Chunk) Record {
	return Record{
		Coords:  c.Coords,
		Bedrock: c.HasBedrockLayer(),
		Runs:    Encode(c),
	}
}

// Chunk восстанавливает чанк из записи
func (r Record) Chunk() (*world.Chunk, error) {
	c, err := DecodeAt(r.Coords, r.Runs)
	if err != nil {
		return nil, err
	}
	c.MarkBedrockLayer(r.Bedrock)
	return c, nil
}

// MarshalRecord сериализует запись в бинарный вид
func MarshalRecord(r Record) []byte {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	buf.WriteString(recordMagic)
	for _, v := range []int{r.Coords.X, r.Coords.Y, r.Coords.Z} {
		n := binary.PutVarint(tmp[:], int64(v))
		buf.Write(tmp[:n])
	}

	var flags byte
	if r.Bedrock {
		flags |= flagBedrock
	}
	buf.WriteByte(flags)

	n := binary.PutUvarint(tmp[:], uint64(len(r.Runs.Runs)))
	buf.Write(tmp[:n])
	for _, run := range r.Runs.Runs {
		n = binary.PutUvarint(tmp[:], uint64(run.Block))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run.Length))
		buf.Write(tmp[:n])
	}

	var sum [checksumBytes]byte
	binary.BigEndian.PutUint64(sum[:], xxhash.Sum64(buf.Bytes()))
	buf.Write(sum[:])

	return buf.Bytes()
}

// UnmarshalRecord разбирает бинарную запись и проверяет её целостность
func UnmarshalRecord(data []byte) (Record, error) {
	if len(data) < len(recordMagic)+checksumBytes {
		return Record{}, fmt.Errorf("%w: record too short (%d bytes)", ErrInvalidData, len(data))
	}
	if string(data[:len(recordMagic)]) != recordMagic {
		return Record{}, fmt.Errorf("%w: bad magic %q", ErrInvalidData, data[:len(recordMagic)])
	}

	body := data[:len(data)-checksumBytes]
	want := binary.BigEndian.Uint64(data[len(data)-checksumBytes:])
	if got := xxhash.Sum64(body); got != want {
		return Record{}, fmt.Errorf("%w: checksum mismatch %016x != %016x", ErrInvalidData, got, want)
	}

	rd := &reader{buf: body, pos: len(recordMagic)}

	var rec Record
	coords := make([]int, 3)
	for i := range coords {
		v, err := rd.varint()
		if err != nil {
			return Record{}, err
		}
		coords[i] = int(v)
	}
	rec.Coords = vec.Vec3{X: coords[0], Y: coords[1], Z: coords[2]}

	flags, err := rd.readByte()
	if err != nil {
		return Record{}, err
	}
	rec.Bedrock = flags&flagBedrock != 0

	count, err := rd.uvarint()
	if err != nil {
		return Record{}, err
	}
	if count < 1 || count > world.ChunkVolume {
		return Record{}, fmt.Errorf("%w: run count %d", ErrInvalidData, count)
	}

	runs := make([]Run, 0, count)
	for i := uint64(0); i < count; i++ {
		id, err := rd.uvarint()
		if err != nil {
			return Record{}, err
		}
		if id > maxBlockID {
			return Record{}, fmt.Errorf("%w: block id too large: %d", ErrInvalidData, id)
		}
		length, err := rd.uvarint()
		if err != nil {
			return Record{}, err
		}
		if length > world.ChunkVolume {
			return Record{}, fmt.Errorf("%w: run %d has length %d", ErrInvalidData, i, length)
		}
		runs = append(runs, Run{Block: block.BlockID(id), Length: int(length)})
	}

	if rd.pos != len(body) {
		return Record{}, fmt.Errorf("%w: %d trailing bytes", ErrInvalidData, len(body)-rd.pos)
	}
	if err := validateRuns(runs); err != nil {
		return Record{}, err
	}

	rec.Runs = CompressedChunk{Runs: runs}
	return rec, nil
}

// MarshalChunk кодирует чанк сразу в бинарную запись
func MarshalChunk(c *world.Chunk) []byte {
	return MarshalRecord(NewRecord(c))
}

// UnmarshalChunk восстанавливает чанк из бинарной записи
func UnmarshalChunk(data []byte) (*world.Chunk, error) {
	rec, err := UnmarshalRecord(data)
	if err != nil {
		return nil, err
	}
	return rec.Chunk()
}

type reader struct {
	buf []byte
	pos int
}

func (r *reader) varint() (int64, error) {
	v, n := binary.Varint(r.buf[r.pos:])
	if n <= 0 {
		return 0, fmt.Errorf("%w: bad varint at %d", ErrInvalidData, r.pos)
	}
	r.pos += n
	return v, nil
}

func (r *reader) uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 {
		return 0, fmt.Errorf("%w: bad uvarint at %d", ErrInvalidData, r.pos)
	}
	r.pos += n
	return v, nil
}

func (r *reader) readByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, fmt.Errorf("%w: unexpected end of record at %d", ErrInvalidData, r.pos)
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}
