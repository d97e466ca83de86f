package video

import (
	"image"
	"image/color"
	"sort"
)

// Pixels with alpha below this become the transparent palette entry
const alphaThreshold = 128

// Upper bound on histogram samples drawn from the whole sequence
const maxSamples = 1 << 18

// Spread of the ordered dither offset in 8-bit channel units
const ditherSpread = 32.0

var bayer4 = [4][4]float64{
	{0, 8, 2, 10},
	{12, 4, 14, 6},
	{3, 11, 1, 9},
	{15, 7, 13, 5},
}

var bayer8 = [8][8]float64{
	{0, 32, 8, 40, 2, 34, 10, 42},
	{48, 16, 56, 24, 50, 18, 58, 26},
	{12, 44, 4, 36, 14, 46, 6, 38},
	{60, 28, 52, 20, 62, 30, 54, 22},
	{3, 35, 11, 43, 1, 33, 9, 41},
	{51, 19, 59, 27, 49, 17, 57, 25},
	{15, 47, 7, 39, 13, 45, 5, 37},
	{63, 31, 55, 23, 61, 29, 53, 21},
}

type histEntry struct {
	c     [3]uint8
	count int
}

type colorBox struct {
	entries []histEntry
}

// QuantizePalette builds one palette shared by every frame with median cut.
// With cfg.Transparent, index 0 is fully transparent and the remaining
// entries are opaque.
func QuantizePalette(frames []*image.RGBA, cfg PaletteConfig) color.Palette {
	size := cfg.Size
	if size > 256 {
		size = 256
	}
	if size < 2 {
		size = 2
	}

	var pal color.Palette
	if cfg.Transparent {
		pal = append(pal, color.RGBA{})
		size--
	}

	hist := histogram(frames)
	if len(hist) == 0 {
		if len(pal) == 0 {
			pal = append(pal, color.RGBA{A: 255})
		}
		return pal
	}

	for _, box := range medianCut(hist, size) {
		pal = append(pal, box.average())
	}
	return pal
}

func histogram(frames []*image.RGBA) []histEntry {
	total := 0
	for _, f := range frames {
		total += len(f.Pix) / 4
	}
	stride := 1
	if total > maxSamples {
		stride = total/maxSamples + 1
	}

	counts := make(map[[3]uint8]int)
	i := 0
	for _, f := range frames {
		for p := 0; p < len(f.Pix); p += 4 {
			i++
			if i%stride != 0 {
				continue
			}
			a := f.Pix[p+3]
			if a < alphaThreshold {
				continue
			}
			counts[unpremultiply(f.Pix[p], f.Pix[p+1], f.Pix[p+2], a)]++
		}
	}

	hist := make([]histEntry, 0, len(counts))
	for c, n := range counts {
		hist = append(hist, histEntry{c: c, count: n})
	}
	// Map iteration order is random; sort so the palette is reproducible.
	sort.Slice(hist, func(i, j int) bool {
		a, b := hist[i].c, hist[j].c
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		if a[1] != b[1] {
			return a[1] < b[1]
		}
		return a[2] < b[2]
	})
	return hist
}

func medianCut(hist []histEntry, n int) []colorBox {
	boxes := []colorBox{{entries: hist}}
	for len(boxes) < n {
		best, channel, widest := -1, 0, 0
		for i, b := range boxes {
			if len(b.entries) < 2 {
				continue
			}
			ch, r := b.widestChannel()
			if r > widest {
				best, channel, widest = i, ch, r
			}
		}
		if best < 0 {
			break
		}

		lo, hi := boxes[best].split(channel)
		boxes[best] = lo
		boxes = append(boxes, hi)
	}
	return boxes
}

func (b colorBox) widestChannel() (int, int) {
	channel, widest := 0, -1
	for ch := 0; ch < 3; ch++ {
		lo, hi := uint8(255), uint8(0)
		for _, e := range b.entries {
			lo = min(lo, e.c[ch])
			hi = max(hi, e.c[ch])
		}
		if r := int(hi) - int(lo); r > widest {
			channel, widest = ch, r
		}
	}
	return channel, widest
}

// split cuts the box at the weighted median of the channel
func (b colorBox) split(channel int) (colorBox, colorBox) {
	entries := make([]histEntry, len(b.entries))
	copy(entries, b.entries)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].c[channel] < entries[j].c[channel] })

	total := 0
	for _, e := range entries {
		total += e.count
	}

	cut, acc := 1, 0
	for i, e := range entries[:len(entries)-1] {
		acc += e.count
		if acc*2 >= total {
			cut = i + 1
			break
		}
	}

	return colorBox{entries: entries[:cut]}, colorBox{entries: entries[cut:]}
}

func (b colorBox) average() color.RGBA {
	var r, g, bl, n int
	for _, e := range b.entries {
		r += int(e.c[0]) * e.count
		g += int(e.c[1]) * e.count
		bl += int(e.c[2]) * e.count
		n += e.count
	}
	if n == 0 {
		return color.RGBA{A: 255}
	}
	return color.RGBA{R: uint8(r / n), G: uint8(g / n), B: uint8(bl / n), A: 255}
}

// Paletter maps frames onto a fixed palette with optional ordered dithering
type Paletter struct {
	pal         color.Palette
	dither      Dither
	transparent bool
	cache       map[uint32]uint8
}

func NewPaletter(pal color.Palette, cfg PaletteConfig) *Paletter {
	return &Paletter{
		pal:         pal,
		dither:      cfg.Dither,
		transparent: cfg.Transparent,
		cache:       make(map[uint32]uint8),
	}
}

// Apply converts one frame to a paletted image
func (p *Paletter) Apply(frame *image.RGBA) *image.Paletted {
	b := frame.Bounds()
	out := image.NewPaletted(image.Rect(0, 0, b.Dx(), b.Dy()), p.pal)

	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			i := frame.PixOffset(b.Min.X+x, b.Min.Y+y)
			a := frame.Pix[i+3]
			if p.transparent && a < alphaThreshold {
				out.Pix[out.PixOffset(x, y)] = 0
				continue
			}
			c := unpremultiply(frame.Pix[i], frame.Pix[i+1], frame.Pix[i+2], a)
			if off := p.ditherOffset(x, y); off != 0 {
				c = [3]uint8{shift(c[0], off), shift(c[1], off), shift(c[2], off)}
			}
			out.Pix[out.PixOffset(x, y)] = p.nearest(c)
		}
	}
	return out
}

func (p *Paletter) ditherOffset(x, y int) float64 {
	switch p.dither {
	case DitherFine:
		return (bayer8[y%8][x%8]/64 - 0.5) * ditherSpread
	case DitherCoarse:
		return (bayer4[y%4][x%4]/16 - 0.5) * ditherSpread
	default:
		return 0
	}
}

func (p *Paletter) nearest(c [3]uint8) uint8 {
	key := uint32(c[0])<<16 | uint32(c[1])<<8 | uint32(c[2])
	if idx, ok := p.cache[key]; ok {
		return idx
	}

	start := 0
	if p.transparent && len(p.pal) > 1 {
		start = 1
	}
	best, bestDist := start, int(^uint(0)>>1)
	for i := start; i < len(p.pal); i++ {
		pc := p.pal[i].(color.RGBA)
		dr := int(c[0]) - int(pc.R)
		dg := int(c[1]) - int(pc.G)
		db := int(c[2]) - int(pc.B)
		if d := dr*dr + dg*dg + db*db; d < bestDist {
			best, bestDist = i, d
		}
	}

	p.cache[key] = uint8(best)
	return uint8(best)
}

func unpremultiply(r, g, b, a uint8) [3]uint8 {
	if a == 255 || a == 0 {
		return [3]uint8{r, g, b}
	}
	return [3]uint8{
		uint8(min(255, int(r)*255/int(a))),
		uint8(min(255, int(g)*255/int(a))),
		uint8(min(255, int(b)*255/int(a))),
	}
}

func shift(v uint8, off float64) uint8 {
	s := float64(v) + off
	if s < 0 {
		return 0
	}
	if s > 255 {
		return 255
	}
	return uint8(s)
}

// palettize quantizes and maps a whole sequence with one shared palette
func palettize(frames []*image.RGBA, cfg PaletteConfig) (color.Palette, []*image.Paletted) {
	pal := QuantizePalette(frames, cfg)
	mapper := NewPaletter(pal, cfg)

	out := make([]*image.Paletted, len(frames))
	for i, f := range frames {
		out[i] = mapper.Apply(f)
	}
	return pal, out
}
