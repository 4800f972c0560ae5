package fst

import (
	"fmt"
	"io"
	"math"
	"math/bits"
	"os"
	"sort"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/exp/mmap"
)

// Serialized form, version 1:
//
//	uint32 total size in bytes, including this field
//	4 byte magic "dfst"
//	uint8 format version
//	uint32 header length
//	CBOR header: counts, alphabet, and the field widths below
//	slot records, bit packed, one per slot:
//	    CheckBits  symbol code owning the slot, 0 when vacant
//	    BaseBits   base of the state addressed here
//	    2 bits     terminal tag
//	    PosBits    output start in the data blob
//	    LenBits    output length
//	residual records, bit packed, sorted by slot:
//	    BaseBits   slot of the final state
//	    PosBits    residual start in the data blob
//	    LenBits    residual length
//	zero padding to the next byte boundary
//	output data blob
//
// Everything is byte for byte deterministic for a given transducer: the
// header uses canonical CBOR and the sections depend only on slot order.

const (
	fstMagic      = "dfst"
	formatVersion = 1

	// Bytes before the CBOR header: size, magic, version, header length.
	headerFixed = 13
)

// diskHeader is the CBOR metadata record at the head of the file.
type diskHeader struct {
	Keys      uint64 `cbor:"1,keyasint"`
	States    uint64 `cbor:"2,keyasint"`
	Slots     uint64 `cbor:"3,keyasint"`
	Occupied  uint64 `cbor:"4,keyasint"`
	Residuals uint64 `cbor:"5,keyasint"`
	Alphabet  []byte `cbor:"6,keyasint"`
	CheckBits uint8  `cbor:"7,keyasint"`
	BaseBits  uint8  `cbor:"8,keyasint"`
	PosBits   uint8  `cbor:"9,keyasint"`
	LenBits   uint8  `cbor:"10,keyasint"`
	DataLen   uint64 `cbor:"11,keyasint"`
}

// layout holds the bit offsets derived from a header. The writer and the
// reader compute it the same way, so they cannot disagree.
type layout struct {
	checkBits  int64
	baseBits   int64
	posBits    int64
	lenBits    int64
	recBits    int64
	slotBits   int64
	resBits    int64
	resRecBits int64
	numRes     int64
	blobOff    int64
}

func computeLayout(hdr *diskHeader, headerLen int) layout {
	lay := layout{
		checkBits: int64(hdr.CheckBits),
		baseBits:  int64(hdr.BaseBits),
		posBits:   int64(hdr.PosBits),
		lenBits:   int64(hdr.LenBits),
		numRes:    int64(hdr.Residuals),
	}
	lay.recBits = lay.checkBits + lay.baseBits + 2 + lay.posBits + lay.lenBits
	lay.slotBits = int64(headerFixed+headerLen) * 8
	lay.resBits = lay.slotBits + int64(hdr.Slots)*lay.recBits
	lay.resRecBits = lay.baseBits + lay.posBits + lay.lenBits
	lay.blobOff = (lay.resBits + lay.numRes*lay.resRecBits + 7) / 8
	return lay
}

// WriteTo serializes the transducer. A file backed transducer copies its
// backing bytes through unchanged.
func (f *FST) WriteTo(w io.Writer) (int64, error) {
	if f.r != nil {
		return io.Copy(w, io.NewSectionReader(f.r, 0, f.size))
	}

	maxLen := uint32(0)
	for _, ref := range f.outs {
		if ref.n > maxLen {
			maxLen = ref.n
		}
	}
	for _, ref := range f.residual {
		if ref.n > maxLen {
			maxLen = ref.n
		}
	}
	hdr := diskHeader{
		Keys:      uint64(f.numKeys),
		States:    uint64(f.numStates),
		Slots:     uint64(f.slots),
		Occupied:  uint64(f.occupied),
		Residuals: uint64(len(f.residual)),
		Alphabet:  f.alpha.syms,
		CheckBits: uint8(bits.Len(uint(f.alpha.size()))),
		BaseBits:  uint8(bits.Len(uint(f.slots - 1))),
		PosBits:   uint8(bits.Len(uint(len(f.outData)))),
		LenBits:   uint8(bits.Len(uint(maxLen))),
		DataLen:   uint64(len(f.outData)),
	}

	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return 0, err
	}
	hb, err := em.Marshal(&hdr)
	if err != nil {
		return 0, err
	}

	lay := computeLayout(&hdr, len(hb))
	total := lay.blobOff + int64(len(f.outData))
	if total > math.MaxUint32 {
		return 0, fmt.Errorf("fst: serialized form exceeds 4 GiB")
	}

	bw := newBitWriter(w)
	var werr error
	put := func(v uint64, n int) {
		if werr == nil {
			werr = bw.WriteBits(v, n)
		}
	}

	put(uint64(total), 32)
	for i := 0; i < len(fstMagic); i++ {
		put(uint64(fstMagic[i]), 8)
	}
	put(formatVersion, 8)
	put(uint64(len(hb)), 32)
	for _, b := range hb {
		put(uint64(b), 8)
	}

	cb, ab := int(hdr.CheckBits), int(hdr.BaseBits)
	pb, lb := int(hdr.PosBits), int(hdr.LenBits)
	for t := uint32(0); t < f.slots; t++ {
		put(uint64(f.check[t]), cb)
		put(uint64(f.base[t]), ab)
		put(uint64(f.term[t]), 2)
		ref := f.outs[t]
		put(uint64(ref.pos), pb)
		put(uint64(ref.n), lb)
	}

	addrs := make([]uint32, 0, len(f.residual))
	for a := range f.residual {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	for _, a := range addrs {
		ref := f.residual[a]
		put(uint64(a), ab)
		put(uint64(ref.pos), pb)
		put(uint64(ref.n), lb)
	}

	if werr == nil {
		werr = bw.Flush()
	}
	if werr == nil {
		_, werr = w.Write(f.outData)
	}
	if werr != nil {
		return 0, werr
	}
	return total, nil
}

// Save writes the transducer to a file and returns its size in bytes.
func (f *FST) Save(filename string) (int64, error) {
	file, err := os.Create(filename)
	if err != nil {
		return 0, err
	}
	defer file.Close()
	return f.WriteTo(file)
}

// Read opens a serialized transducer in place: queries decode slot
// records straight out of r, so startup does no work proportional to its
// size. r must stay valid until Close.
func Read(r io.ReaderAt, offset int64) (*FST, error) {
	size, err := readUint32At(r, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: reading size: %v", ErrCorrupt, err)
	}
	if offset != 0 {
		r = io.NewSectionReader(r, offset, int64(size))
	}

	var magic [4]byte
	if _, err := r.ReadAt(magic[:], 4); err != nil {
		return nil, fmt.Errorf("%w: truncated header", ErrCorrupt)
	}
	if string(magic[:]) != fstMagic {
		return nil, ErrBadMagic
	}
	var vers [1]byte
	if _, err := r.ReadAt(vers[:], 8); err != nil {
		return nil, fmt.Errorf("%w: truncated header", ErrCorrupt)
	}
	if vers[0] != formatVersion {
		return nil, fmt.Errorf("%w: version %d", ErrBadVersion, vers[0])
	}
	hlen, err := readUint32At(r, 9)
	if err != nil {
		return nil, fmt.Errorf("%w: truncated header", ErrCorrupt)
	}
	if headerFixed+int64(hlen) > int64(size) {
		return nil, fmt.Errorf("%w: header past the end", ErrCorrupt)
	}
	hb := make([]byte, hlen)
	if _, err := r.ReadAt(hb, headerFixed); err != nil {
		return nil, fmt.Errorf("%w: truncated header", ErrCorrupt)
	}
	var hdr diskHeader
	if err := cbor.Unmarshal(hb, &hdr); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}

	if hdr.Slots < 1 || hdr.Slots > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d slots", ErrCorrupt, hdr.Slots)
	}
	if hdr.Residuals > hdr.Slots {
		return nil, fmt.Errorf("%w: %d residuals for %d slots", ErrCorrupt, hdr.Residuals, hdr.Slots)
	}
	if hdr.CheckBits > 16 || hdr.BaseBits > 32 || hdr.PosBits > 32 || hdr.LenBits > 32 {
		return nil, fmt.Errorf("%w: field widths out of range", ErrCorrupt)
	}
	alpha, err := restoreAlphabet(hdr.Alphabet)
	if err != nil {
		return nil, err
	}
	lay := computeLayout(&hdr, int(hlen))
	if lay.blobOff+int64(hdr.DataLen) != int64(size) {
		return nil, fmt.Errorf("%w: section sizes disagree with the envelope", ErrCorrupt)
	}

	return &FST{
		alpha:     alpha,
		slots:     uint32(hdr.Slots),
		numKeys:   int(hdr.Keys),
		numStates: int(hdr.States),
		occupied:  int(hdr.Occupied),
		r:         r,
		size:      int64(size),
		lay:       lay,
	}, nil
}

// ReadAll reads a serialized transducer fully into memory. The result no
// longer touches r, so r may be closed once ReadAll returns.
func ReadAll(r io.ReaderAt, offset int64) (*FST, error) {
	f, err := Read(r, offset)
	if err != nil {
		return nil, err
	}
	m := &FST{
		check:     make([]uint16, f.slots),
		base:      make([]uint32, f.slots),
		term:      make([]terminal, f.slots),
		outs:      make([]outRef, f.slots),
		residual:  make(map[uint32]outRef, f.lay.numRes),
		alpha:     f.alpha,
		slots:     f.slots,
		numKeys:   f.numKeys,
		numStates: f.numStates,
		occupied:  f.occupied,
	}
	q := f.seeker()
	for t := uint32(0); t < f.slots; t++ {
		q.Seek(f.lay.slotBits + int64(t)*f.lay.recBits)
		m.check[t] = uint16(q.ReadBits(f.lay.checkBits))
		m.base[t] = uint32(q.ReadBits(f.lay.baseBits))
		m.term[t] = terminal(q.ReadBits(2))
		pos := uint32(q.ReadBits(f.lay.posBits))
		n := uint32(q.ReadBits(f.lay.lenBits))
		m.outs[t] = outRef{pos: pos, n: n}
	}
	for i := int64(0); i < f.lay.numRes; i++ {
		q.Seek(f.lay.resBits + i*f.lay.resRecBits)
		addr := uint32(q.ReadBits(f.lay.baseBits))
		pos := uint32(q.ReadBits(f.lay.posBits))
		n := uint32(q.ReadBits(f.lay.lenBits))
		m.residual[addr] = outRef{pos: pos, n: n}
	}
	m.outData = make([]byte, f.size-f.lay.blobOff)
	if len(m.outData) > 0 {
		if _, err := f.r.ReadAt(m.outData, f.lay.blobOff); err != nil {
			return nil, fmt.Errorf("%w: output data: %v", ErrCorrupt, err)
		}
	}
	return m, nil
}

// Load memory maps a file written by Save and opens it with Read. Close
// the transducer to release the mapping.
func Load(filename string) (*FST, error) {
	r, err := mmap.Open(filename)
	if err != nil {
		return nil, err
	}
	f, err := Read(r, 0)
	if err != nil {
		r.Close()
		return nil, err
	}
	return f, nil
}

func readUint32At(r io.ReaderAt, at int64) (uint32, error) {
	var data [4]byte
	if _, err := r.ReadAt(data[:], at); err != nil {
		return 0, err
	}
	return uint32(data[0])<<24 | uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3]), nil
}
