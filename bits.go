package fst

import "io"

// maskTop[i] clears the i bits already consumed from the top of a byte.
var maskTop = [8]uint8{
	0xff, 0x7f, 0x3f, 0x1f, 0x0f, 0x07, 0x03, 0x01,
}

// bitWriter packs big endian bit fields into an io.Writer.
type bitWriter struct {
	w     io.Writer
	cache uint8
	used  int
}

func newBitWriter(w io.Writer) *bitWriter {
	return &bitWriter{w: w}
}

// WriteBits writes the low n bits of v, most significant first.
func (w *bitWriter) WriteBits(v uint64, n int) error {
	for n > 0 {
		take := n
		if take+w.used > 8 {
			take = 8 - w.used
		}
		mask := uint8(uint16(1<<take) - 1)
		w.used += take
		w.cache = w.cache<<take | uint8(v>>(n-take))&mask
		if w.used == 8 {
			if _, err := w.w.Write([]byte{w.cache}); err != nil {
				return err
			}
			w.used = 0
		}
		n -= take
	}
	return nil
}

// Flush pads the pending byte with zero bits and writes it out.
func (w *bitWriter) Flush() error {
	if w.used == 0 {
		return nil
	}
	_, err := w.w.Write([]byte{w.cache << (8 - w.used)})
	w.cache = 0
	w.used = 0
	return err
}

// bitSeeker reads big endian bit fields at arbitrary bit offsets of an
// io.ReaderAt. It carries a position, so it is not safe for concurrent
// use; each query creates its own. Reads past the end of the data yield
// zero bits.
type bitSeeker struct {
	r   io.ReaderAt
	p   int64
	buf [1]byte
}

func newBitSeeker(r io.ReaderAt) *bitSeeker {
	return &bitSeeker{r: r}
}

func (r *bitSeeker) nextByte() byte {
	r.buf[0] = 0
	r.r.ReadAt(r.buf[:], r.p>>3)
	return r.buf[0]
}

// ReadBits returns the next n bits, most significant first. n is at most
// 64.
func (r *bitSeeker) ReadBits(n int64) uint64 {
	if r.p&7+n <= 8 {
		ret := uint64((r.nextByte() & maskTop[r.p&7]) >> (8 - r.p&7 - n))
		r.p += n
		return ret
	}

	// The field spans byte boundaries: a leading fragment, whole bytes,
	// then a trailing fragment.
	result := uint64(r.nextByte() & maskTop[r.p&7])
	l := 8 - r.p&7
	r.p += l
	n -= l

	for n >= 8 {
		result = result<<8 | uint64(r.nextByte())
		r.p += 8
		n -= 8
	}

	if n > 0 {
		r.p += n
		result = result<<n | uint64(r.nextByte()>>(8-n))
	}
	return result
}

// Seek positions the reader at an absolute bit offset.
func (r *bitSeeker) Seek(p int64) {
	r.p = p
}
