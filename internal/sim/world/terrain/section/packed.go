package section

// packed stores Volume fixed-width fields in 64-bit words. A field never
// straddles two words; leftover high bits of each word stay zero.
type packed struct {
	bits    uint8
	perWord int
	mask    uint64
	words   []uint64
}

func newPacked(bits uint8) packed {
	return packed{
		bits:    bits,
		perWord: 64 / int(bits),
		mask:    uint64(1)<<bits - 1,
		words:   make([]uint64, wordCount(bits)),
	}
}

func wordCount(bits uint8) int {
	per := 64 / int(bits)
	return (Volume + per - 1) / per
}

func (p *packed) get(i int) uint32 {
	shift := uint(i%p.perWord) * uint(p.bits)
	return uint32((p.words[i/p.perWord] >> shift) & p.mask)
}

func (p *packed) set(i int, v uint32) {
	w := i / p.perWord
	shift := uint(i%p.perWord) * uint(p.bits)
	p.words[w] = p.words[w]&^(p.mask<<shift) | (uint64(v)&p.mask)<<shift
}

func (p *packed) reset() {
	clear(p.words)
}

// repack reads every field at the current width and writes f(field) into a
// fresh array of the given width. The receiver is left untouched.
func (p *packed) repack(bits uint8, f func(uint32) uint32) packed {
	out := newPacked(bits)
	for i := 0; i < Volume; i++ {
		out.set(i, f(p.get(i)))
	}
	return out
}

func (p *packed) clone() packed {
	out := *p
	out.words = append([]uint64(nil), p.words...)
	return out
}
