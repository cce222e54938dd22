package effect

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"github.com/gogpu/scrim/gpucore"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// First and last code points of the printable ASCII glyph range.
const (
	firstGlyph = 0x20
	lastGlyph  = 0x7E
)

// DefaultTileSize is the tile edge used when none is configured.
const DefaultTileSize = 8

// ErrGlyphs is returned when a glyph source cannot be used.
var ErrGlyphs = errors.New("effect: glyph sheet")

// GlyphSet is the resampled glyph sheet of the tiles effect and the
// brightness of each glyph.
type GlyphSet struct {
	TileSize int

	// Coverage holds Count tiles of TileSize*TileSize coverage values
	// (0 to 255), glyph after glyph, rows top to bottom.
	Coverage []uint8

	// Brightness is the mean coverage of each glyph, scaled so the densest
	// glyph is 1.
	Brightness []float32
}

// Count returns the number of glyphs.
func (g *GlyphSet) Count() int { return len(g.Brightness) }

// At returns the coverage of glyph i at (x, y) inside its tile.
func (g *GlyphSet) At(i, x, y int) uint8 {
	ts := g.TileSize
	return g.Coverage[i*ts*ts+y*ts+x]
}

// Nearest returns the glyph whose brightness is closest to lum. Exact ties
// go to the lowest index.
func (g *GlyphSet) Nearest(lum float32) int {
	best := 0
	bestDist := float32(math.Abs(float64(g.Brightness[0] - lum)))
	for i := 1; i < len(g.Brightness); i++ {
		if d := float32(math.Abs(float64(g.Brightness[i] - lum))); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// LoadGlyphs builds the glyph set described by opts: a PNG sheet if
// opts.Sheet is set, else the printable ASCII range of a TrueType or
// OpenType font if opts.Font is set, else of basicfont.Face7x13.
func LoadGlyphs(opts TilesOptions) (*GlyphSet, error) {
	ts := opts.TileSize
	if ts == 0 {
		ts = DefaultTileSize
	}
	if ts < 1 || ts > 64 {
		return nil, fmt.Errorf("%w: tile size %d out of range 1..64", ErrGlyphs, ts)
	}

	var cells []*image.Gray
	switch {
	case opts.Sheet != "":
		sheet, err := readPNG(opts.Sheet)
		if err != nil {
			return nil, err
		}
		if cells, err = sheetCells(sheet, opts.SheetCell); err != nil {
			return nil, err
		}
	case opts.Font != "":
		data, err := os.ReadFile(opts.Font)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrGlyphs, err)
		}
		f, err := opentype.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrGlyphs, opts.Font, err)
		}
		size := opts.FontSize
		if size == 0 {
			size = 24
		}
		face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrGlyphs, opts.Font, err)
		}
		defer face.Close()
		cells = rasterizeASCII(face)
	default:
		cells = rasterizeASCII(basicfont.Face7x13)
	}
	return newGlyphSet(cells, ts), nil
}

// rasterizeASCII draws each printable ASCII glyph into its own cell,
// sized to the face's line height and widest advance.
func rasterizeASCII(face font.Face) []*image.Gray {
	m := face.Metrics()
	height := (m.Ascent + m.Descent).Ceil()
	var advance fixed.Int26_6
	for r := rune(firstGlyph); r <= lastGlyph; r++ {
		if a, ok := face.GlyphAdvance(r); ok && a > advance {
			advance = a
		}
	}
	width := max(advance.Ceil(), 1)
	height = max(height, 1)

	cells := make([]*image.Gray, 0, lastGlyph-firstGlyph+1)
	for r := rune(firstGlyph); r <= lastGlyph; r++ {
		cell := image.NewGray(image.Rect(0, 0, width, height))
		d := font.Drawer{
			Dst:  cell,
			Src:  image.White,
			Face: face,
			Dot:  fixed.Point26_6{X: 0, Y: m.Ascent},
		}
		d.DrawString(string(r))
		cells = append(cells, cell)
	}
	return cells
}

func readPNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGlyphs, err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrGlyphs, path, err)
	}
	return img, nil
}

// sheetCells cuts a sheet into square cells of side cell, row-major. A
// zero cell uses the sheet height, which reads a single-row strip.
// Coverage is luminance times alpha.
func sheetCells(sheet image.Image, cell int) ([]*image.Gray, error) {
	b := sheet.Bounds()
	if cell == 0 {
		cell = b.Dy()
	}
	if cell <= 0 || b.Dx() < cell || b.Dy() < cell {
		return nil, fmt.Errorf("%w: %dx%d sheet cannot hold %d px cells", ErrGlyphs, b.Dx(), b.Dy(), cell)
	}
	var cells []*image.Gray
	for y := b.Min.Y; y+cell <= b.Max.Y; y += cell {
		for x := b.Min.X; x+cell <= b.Max.X; x += cell {
			g := image.NewGray(image.Rect(0, 0, cell, cell))
			for cy := range cell {
				for cx := range cell {
					c := color.NRGBAModel.Convert(sheet.At(x+cx, y+cy)).(color.NRGBA)
					lum := (299*uint32(c.R) + 587*uint32(c.G) + 114*uint32(c.B)) / 1000
					g.Pix[cy*g.Stride+cx] = uint8(lum * uint32(c.A) / 255) //nolint:gosec // <= 255
				}
			}
			cells = append(cells, g)
		}
	}
	return cells, nil
}

// newGlyphSet resamples cells to ts x ts and computes the brightness table.
func newGlyphSet(cells []*image.Gray, ts int) *GlyphSet {
	g := &GlyphSet{
		TileSize:   ts,
		Coverage:   make([]uint8, 0, len(cells)*ts*ts),
		Brightness: make([]float32, len(cells)),
	}
	tile := image.NewGray(image.Rect(0, 0, ts, ts))
	var maxMean float32
	for i, c := range cells {
		clear(tile.Pix)
		draw.ApproxBiLinear.Scale(tile, tile.Bounds(), c, c.Bounds(), draw.Src, nil)
		var sum int
		for _, v := range tile.Pix {
			sum += int(v)
		}
		g.Coverage = append(g.Coverage, tile.Pix...)
		g.Brightness[i] = float32(sum) / float32(255*ts*ts)
		maxMean = max(maxMean, g.Brightness[i])
	}
	if maxMean > 0 {
		for i := range g.Brightness {
			g.Brightness[i] /= maxMean
		}
	}
	return g
}

// aux encodes the glyph set as the tiles effect's auxiliary buffers.
func (g *GlyphSet) aux() []gpucore.AuxSpec {
	params := make([]byte, 16)
	binary.LittleEndian.PutUint32(params[0:], uint32(g.TileSize)) //nolint:gosec // tile size <= 64
	binary.LittleEndian.PutUint32(params[4:], uint32(g.Count()))  //nolint:gosec // small glyph count

	sheet := make([]byte, len(g.Coverage)*4)
	for i, c := range g.Coverage {
		binary.LittleEndian.PutUint32(sheet[i*4:], uint32(c))
	}
	table := make([]byte, len(g.Brightness)*4)
	for i, b := range g.Brightness {
		binary.LittleEndian.PutUint32(table[i*4:], math.Float32bits(b))
	}
	return []gpucore.AuxSpec{
		{Name: auxTileParams, Data: params},
		{Name: auxGlyphSheet, Data: sheet},
		{Name: auxBrightness, Data: table},
	}
}
