package mesh

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/golang/geo/r3"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// SnapshotRenderer renders orthographic wireframe views of the floating and
// target meshes, used to inspect registration progress iteration by
// iteration. The target is drawn in gray underneath the floating mesh in
// blue.
type SnapshotRenderer struct {
	Width   float64
	Height  float64
	Padding float64
	// Resolution for PNG output.
	Resolution canvas.Resolution

	TargetColor   color.RGBA
	FloatingColor color.RGBA
}

// NewSnapshotRenderer creates a renderer with the given canvas size in
// millimeters.
func NewSnapshotRenderer(width, height float64) *SnapshotRenderer {
	return &SnapshotRenderer{
		Width:         width,
		Height:        height,
		Padding:       10,
		Resolution:    canvas.DPI(150),
		TargetColor:   color.RGBA{R: 180, G: 180, B: 180, A: 255},
		FloatingColor: color.RGBA{R: 30, G: 80, B: 200, A: 255},
	}
}

// canvasRenderer is the interface both the svg and rasterizer backends
// implement.
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderToSVG writes a wireframe overlay of both meshes as SVG.
func (r *SnapshotRenderer) RenderToSVG(w io.Writer, floating, target *Mesh) error {
	svgRenderer := svg.New(w, r.Width, r.Height, nil)
	r.renderToCanvas(svgRenderer, floating, target)
	return svgRenderer.Close()
}

// RenderToPNG writes a wireframe overlay of both meshes as PNG.
func (r *SnapshotRenderer) RenderToPNG(w io.Writer, floating, target *Mesh) error {
	rast := rasterizer.New(r.Width, r.Height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, floating, target)
	return png.Encode(w, rast)
}

func (r *SnapshotRenderer) renderToCanvas(renderer canvasRenderer, floating, target *Mesh) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(r.Width, r.Height), bgStyle, canvas.Identity)

	minX, minY, maxX, maxY := projectedBounds(floating, target)
	spanX := maxX - minX
	spanY := maxY - minY
	if spanX <= 0 {
		spanX = 1
	}
	if spanY <= 0 {
		spanY = 1
	}
	scale := math.Min((r.Width-2*r.Padding)/spanX, (r.Height-2*r.Padding)/spanY)
	toCanvas := func(p r3.Vector) (float64, float64) {
		return r.Padding + (p.X-minX)*scale, r.Padding + (p.Y-minY)*scale
	}

	r.renderWireframe(renderer, target, toCanvas, r.TargetColor, 0.2)
	r.renderWireframe(renderer, floating, toCanvas, r.FloatingColor, 0.3)
}

// renderWireframe draws every mesh edge once, projected onto the XY plane.
func (r *SnapshotRenderer) renderWireframe(renderer canvasRenderer, m *Mesh, toCanvas func(r3.Vector) (float64, float64), c color.RGBA, strokeWidth float64) {
	style := canvas.DefaultStyle
	style.Fill = canvas.Paint{Color: canvas.Transparent}
	style.Stroke = canvas.Paint{Color: c}
	style.StrokeWidth = strokeWidth

	type edge struct{ a, b int }
	seen := make(map[edge]bool, 3*len(m.Faces))
	path := &canvas.Path{}
	for _, face := range m.Faces {
		for e := 0; e < 3; e++ {
			a, b := face[e], face[(e+1)%3]
			if a > b {
				a, b = b, a
			}
			if seen[edge{a, b}] {
				continue
			}
			seen[edge{a, b}] = true
			x0, y0 := toCanvas(m.Features[a].Position)
			x1, y1 := toCanvas(m.Features[b].Position)
			path.MoveTo(x0, y0)
			path.LineTo(x1, y1)
		}
	}
	renderer.RenderPath(path, style, canvas.Identity)
}

func projectedBounds(meshes ...*Mesh) (minX, minY, maxX, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, m := range meshes {
		for _, f := range m.Features {
			minX = math.Min(minX, f.Position.X)
			minY = math.Min(minY, f.Position.Y)
			maxX = math.Max(maxX, f.Position.X)
			maxY = math.Max(maxY, f.Position.Y)
		}
	}
	return minX, minY, maxX, maxY
}

// SnapshotHook returns a driver OnIteration callback that writes a labeled
// PNG snapshot into dir every stride iterations, rendering the working mesh
// the iteration reports.
func (r *SnapshotRenderer) SnapshotHook(dir string, stride int, target *Mesh) func(IterationInfo) {
	return func(info IterationInfo) {
		if stride < 1 || info.Iteration%stride != 0 || info.Floating == nil {
			return
		}
		name := fmt.Sprintf("%s-%03d.png", info.Stage, info.Iteration)
		if err := r.writeLabeledPNG(filepath.Join(dir, name), info.Floating, target, info); err != nil {
			fmt.Fprintf(os.Stderr, "snapshot %s: %v\n", name, err)
		}
	}
}

func (r *SnapshotRenderer) writeLabeledPNG(path string, floating, target *Mesh, info IterationInfo) error {
	rast := rasterizer.New(r.Width, r.Height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, floating, target)
	label := fmt.Sprintf("%s L%d it%d rms=%.4g", info.Stage, info.Level, info.Iteration, info.Residual)
	drawText(rast.RGBA, 10, 20, label, color.RGBA{A: 255})

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, rast); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// drawText renders text onto an image at the specified position.
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
